package handler

import (
	"encoding/json"
	"net/http"

	"github.com/newapi-sidecar/sidecar/internal/dbx"
)

const serviceVersion = "0.1.0"

// HealthHandler serves the two unauthenticated liveness endpoints (spec.md §6.2).
type HealthHandler struct {
	db *dbx.Manager
}

// NewHealthHandler constructs the health handler.
func NewHealthHandler(db *dbx.Manager) *HealthHandler {
	return &HealthHandler{db: db}
}

// Health reports process liveness without touching the database.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{"status": "healthy", "version": serviceVersion})
}

// dbHealthBody is the response shape for GET /api/health/db (spec.md §6.2):
// {success, status, engine}, independent of the generic envelope's error field.
type dbHealthBody struct {
	Success bool   `json:"success"`
	Status  string `json:"status"`
	Engine  string `json:"engine"`
	Message string `json:"message,omitempty"`
}

// DB reports whether the gateway database connection is alive.
func (h *HealthHandler) DB(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if !h.db.Health() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(dbHealthBody{Success: false, Status: "disconnected", Engine: h.db.Engine(), Message: "database connection failed"})
		return
	}
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(dbHealthBody{Success: true, Status: "connected", Engine: h.db.Engine()})
}
