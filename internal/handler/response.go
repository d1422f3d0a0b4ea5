// Package handler implements the stateless HTTP handlers mapping routes to
// the query engine, risk pipeline, model-status engine, warmup orchestrator,
// task manager, and the CRUD surfaces over redemptions/top-ups/tokens/users
// (spec.md §6).
package handler

import (
	"encoding/json"
	"net/http"

	"github.com/newapi-sidecar/sidecar/internal/domain"
)

// WriteJSON writes the success envelope with the given HTTP status and data.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	writeEnvelope(w, status, domain.Envelope{Success: true, Data: data})
}

// WriteMessage writes a success envelope carrying only a human message.
func WriteMessage(w http.ResponseWriter, status int, message string) {
	writeEnvelope(w, status, domain.Envelope{Success: true, Message: message})
}

// WriteError writes the failure envelope with a machine-readable code.
func WriteError(w http.ResponseWriter, status int, code, message string) {
	writeEnvelope(w, status, domain.Envelope{
		Success: false,
		Error:   &domain.EnvelopeError{Code: code, Message: message},
	})
}

// WriteRateLimited writes the 429 envelope shape specified in spec.md §7.
func WriteRateLimited(w http.ResponseWriter, waitSeconds int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success":      false,
		"error_type":   "rate_limit",
		"wait_seconds": waitSeconds,
		"message":      "请求被限速，请等待 N 秒后重试",
	})
}

func writeEnvelope(w http.ResponseWriter, status int, env domain.Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(env)
}
