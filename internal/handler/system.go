package handler

import (
	"net/http"
	"time"

	"github.com/newapi-sidecar/sidecar/internal/dbx"
	"github.com/newapi-sidecar/sidecar/internal/task"
	"github.com/newapi-sidecar/sidecar/internal/warmup"
)

// SystemHandler serves operational endpoints: scale detection, warmup
// progress, index maintenance, and task status (spec.md §6.4 "system" routes).
type SystemHandler struct {
	scale   *warmup.ScaleDetector
	warmup  *warmup.Orchestrator
	db      *dbx.Manager
	tasks   *task.Manager
}

// NewSystemHandler constructs the system handler.
func NewSystemHandler(scale *warmup.ScaleDetector, orchestrator *warmup.Orchestrator, db *dbx.Manager, tasks *task.Manager) *SystemHandler {
	return &SystemHandler{scale: scale, warmup: orchestrator, db: db, tasks: tasks}
}

// Scale serves GET /system/scale.
func (h *SystemHandler) Scale(w http.ResponseWriter, r *http.Request) {
	scale, err := h.scale.Detect(r.Context(), false)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "database_failure", err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"scale": string(scale)})
}

// ScaleRefresh serves POST /system/scale/refresh.
func (h *SystemHandler) ScaleRefresh(w http.ResponseWriter, r *http.Request) {
	scale, err := h.scale.Detect(r.Context(), true)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "database_failure", err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"scale": string(scale)})
}

// WarmupStatus serves GET /system/warmup-status.
func (h *SystemHandler) WarmupStatus(w http.ResponseWriter, r *http.Request) {
	status, steps := h.warmup.Status()
	WriteJSON(w, http.StatusOK, map[string]any{"status": status, "steps": steps, "tasks": h.tasks.GetStatus()})
}

// Indexes serves GET /system/indexes.
func (h *SystemHandler) Indexes(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, dbx.RequiredIndexes)
}

// IndexesEnsure serves POST /system/indexes/ensure.
func (h *SystemHandler) IndexesEnsure(w http.ResponseWriter, r *http.Request) {
	if err := h.db.EnsureIndexes(r.Context(), false, 250*time.Millisecond); err != nil {
		WriteError(w, http.StatusInternalServerError, "database_failure", err.Error())
		return
	}
	WriteMessage(w, http.StatusOK, "indexes ensured")
}
