package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/newapi-sidecar/sidecar/internal/dbx"
	"github.com/newapi-sidecar/sidecar/internal/modelstatus"
)

// modelStatusConfigKeys is every admin-settable display preference stored
// in the local config table under a "model_status:" prefix (spec.md §6.4).
var modelStatusConfigKeys = map[string]string{
	"selected":         "model_status:selected",
	"time-window":      "model_status:time_window",
	"theme":            "model_status:theme",
	"refresh-interval": "model_status:refresh_interval",
	"sort-mode":        "model_status:sort_mode",
	"custom-order":     "model_status:custom_order",
}

// ModelStatusHandler serves the model-status dashboard API: time windows,
// per-model slot histories, and the persisted display config, plus the
// public embed mirrors and the uptime-kuma-compatible shim.
type ModelStatusHandler struct {
	engine *modelstatus.Engine
	local  *dbx.Local
}

// NewModelStatusHandler constructs the model-status handler.
func NewModelStatusHandler(engine *modelstatus.Engine, local *dbx.Local) *ModelStatusHandler {
	return &ModelStatusHandler{engine: engine, local: local}
}

// TimeWindows serves GET /model-status/time-windows.
func (h *ModelStatusHandler) TimeWindows(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, modelstatus.Windows)
}

// Models serves GET /model-status/models.
func (h *ModelStatusHandler) Models(w http.ResponseWriter, r *http.Request) {
	out, err := h.engine.AvailableModels(r.Context())
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "database_failure", err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, out)
}

// Status serves GET /model-status/status/:model_name.
func (h *ModelStatusHandler) Status(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "model_name")
	window := queryString(r, "window", "1h")
	out, err := h.engine.Status(r.Context(), name, window)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_param", err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, out)
}

type multipleStatusRequest struct {
	Models []string `json:"models"`
	Window string   `json:"window"`
}

// StatusMultiple serves POST /model-status/status/multiple.
func (h *ModelStatusHandler) StatusMultiple(w http.ResponseWriter, r *http.Request) {
	var req multipleStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_body", "request body must be valid JSON")
		return
	}
	if req.Window == "" {
		req.Window = "1h"
	}
	out := make(map[string]*modelstatus.ModelStatus, len(req.Models))
	for _, name := range req.Models {
		status, err := h.engine.Status(r.Context(), name, req.Window)
		if err != nil {
			WriteError(w, http.StatusBadRequest, "invalid_param", err.Error())
			return
		}
		out[name] = status
	}
	WriteJSON(w, http.StatusOK, out)
}

// StatusAll serves GET /model-status/status/all.
func (h *ModelStatusHandler) StatusAll(w http.ResponseWriter, r *http.Request) {
	window := queryString(r, "window", "1h")
	models, err := h.engine.AvailableModels(r.Context())
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "database_failure", err.Error())
		return
	}
	out := make(map[string]*modelstatus.ModelStatus, len(models))
	for _, name := range models {
		status, err := h.engine.Status(r.Context(), name, window)
		if err != nil {
			continue
		}
		out[name] = status
	}
	WriteJSON(w, http.StatusOK, out)
}

// GetConfig serves GET /model-status/config/:key, one of the keys in
// modelStatusConfigKeys.
func (h *ModelStatusHandler) GetConfig(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	storeKey, ok := modelStatusConfigKeys[key]
	if !ok {
		WriteError(w, http.StatusBadRequest, "invalid_param", "unknown config key")
		return
	}
	value, found, err := h.local.GetConfig(r.Context(), storeKey)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "database_failure", err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"key": key, "value": value, "found": found})
}

type setConfigRequest struct {
	Value string `json:"value"`
}

// SetConfig serves POST /model-status/config/:key.
func (h *ModelStatusHandler) SetConfig(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	storeKey, ok := modelStatusConfigKeys[key]
	if !ok {
		WriteError(w, http.StatusBadRequest, "invalid_param", "unknown config key")
		return
	}
	var req setConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_body", "request body must be valid JSON")
		return
	}
	if err := h.local.SetConfig(r.Context(), storeKey, req.Value); err != nil {
		WriteError(w, http.StatusInternalServerError, "database_failure", err.Error())
		return
	}
	WriteMessage(w, http.StatusOK, "saved")
}

// --- Uptime-kuma-compatible public shim (spec.md §6.4, no auth) ---

// kumaHeartbeat is one slot rendered in uptime-kuma's heartbeat shape.
type kumaHeartbeat struct {
	Status int     `json:"status"`
	Time   string  `json:"time"`
	Msg    string  `json:"msg"`
	Ping   float64 `json:"ping"`
}

func statusToKuma(color string) int {
	switch color {
	case "green":
		return 1
	case "yellow":
		return 2
	default:
		return 0
	}
}

func toHeartbeats(status *modelstatus.ModelStatus) []kumaHeartbeat {
	out := make([]kumaHeartbeat, 0, len(status.Slots))
	for _, slot := range status.Slots {
		out = append(out, kumaHeartbeat{
			Status: statusToKuma(slot.Status),
			Time:   timeRFC3339(slot.EndTime),
			Msg:    "",
			Ping:   slot.SuccessRate,
		})
	}
	return out
}

// StatusPage serves GET /api/status-page/:slug, treating the slug as a
// model name and returning its 24h slot history in the uptime-kuma page shape.
func (h *ModelStatusHandler) StatusPage(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	status, err := h.engine.Status(r.Context(), slug, "24h")
	if err != nil {
		WriteError(w, http.StatusNotFound, "not_found", "unknown model")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"slug":        slug,
		"heartbeats":  toHeartbeats(status),
		"status_name": status.CurrentStatus,
	})
}

// StatusPageHeartbeat serves GET /status-page/heartbeat/:slug.
func (h *ModelStatusHandler) StatusPageHeartbeat(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	status, err := h.engine.Status(r.Context(), slug, "1h")
	if err != nil {
		WriteError(w, http.StatusNotFound, "not_found", "unknown model")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"heartbeatList": map[string][]kumaHeartbeat{slug: toHeartbeats(status)}})
}

// StatusPageBadge serves GET /status-page/:slug/badge, an SVG-less JSON
// stand-in badge (color + label), matching uptime-kuma's badge payload fields.
func (h *ModelStatusHandler) StatusPageBadge(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	status, err := h.engine.Status(r.Context(), slug, "24h")
	if err != nil {
		WriteError(w, http.StatusNotFound, "not_found", "unknown model")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"label": slug, "color": status.CurrentStatus})
}

// StatusPageSummary serves GET /status-page/:slug/summary.
func (h *ModelStatusHandler) StatusPageSummary(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	status, err := h.engine.Status(r.Context(), slug, "24h")
	if err != nil {
		WriteError(w, http.StatusNotFound, "not_found", "unknown model")
		return
	}
	up := status.CurrentStatus != "red"
	WriteJSON(w, http.StatusOK, map[string]any{"slug": slug, "up": up, "status": status.CurrentStatus})
}
