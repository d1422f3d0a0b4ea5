package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/newapi-sidecar/sidecar/internal/dbx"
	"github.com/newapi-sidecar/sidecar/internal/risk"
)

const aibanConfigKey = "thresholds"
const aibanModeKey = "mode"

// aibanMode is the persisted enabled/dry-run pair (spec.md §4.5).
type aibanMode struct {
	Enabled bool `json:"enabled"`
	DryRun  bool `json:"dry_run"`
}

// AIBanHandler serves the AI-assisted ban pipeline's admin surface
// (spec.md §6.4 "ai-ban" routes).
type AIBanHandler struct {
	pipeline  *risk.Pipeline
	whitelist *risk.Whitelist
	audit     *risk.AuditLogger
	db        *dbx.Manager
	local     *dbx.Local
}

// NewAIBanHandler constructs the AI-ban handler.
func NewAIBanHandler(pipeline *risk.Pipeline, whitelist *risk.Whitelist, audit *risk.AuditLogger, db *dbx.Manager, local *dbx.Local) *AIBanHandler {
	return &AIBanHandler{pipeline: pipeline, whitelist: whitelist, audit: audit, db: db, local: local}
}

// GetConfig serves GET /ai-ban/config.
func (h *AIBanHandler) GetConfig(w http.ResponseWriter, r *http.Request) {
	thresholds := risk.DefaultThresholds
	if raw, found, err := h.local.GetAIBanConfig(r.Context(), aibanConfigKey); err == nil && found {
		_ = json.Unmarshal([]byte(raw), &thresholds)
	}
	mode := aibanMode{}
	if raw, found, err := h.local.GetAIBanConfig(r.Context(), aibanModeKey); err == nil && found {
		_ = json.Unmarshal([]byte(raw), &mode)
	}
	WriteJSON(w, http.StatusOK, map[string]any{"thresholds": thresholds, "enabled": mode.Enabled, "dry_run": mode.DryRun})
}

type setConfigBody struct {
	Thresholds *risk.Thresholds `json:"thresholds"`
	Enabled    *bool            `json:"enabled"`
	DryRun     *bool            `json:"dry_run"`
}

// SetConfig serves POST /ai-ban/config, persisting thresholds and/or mode
// and applying the mode change to the live pipeline immediately.
func (h *AIBanHandler) SetConfig(w http.ResponseWriter, r *http.Request) {
	var body setConfigBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_body", "request body must be valid JSON")
		return
	}

	if body.Thresholds != nil {
		raw, _ := json.Marshal(body.Thresholds)
		if err := h.local.SetAIBanConfig(r.Context(), aibanConfigKey, string(raw)); err != nil {
			WriteError(w, http.StatusInternalServerError, "database_failure", err.Error())
			return
		}
		h.pipeline.SetThresholds(*body.Thresholds)
	}

	if body.Enabled != nil || body.DryRun != nil {
		mode := aibanMode{}
		if raw, found, err := h.local.GetAIBanConfig(r.Context(), aibanModeKey); err == nil && found {
			_ = json.Unmarshal([]byte(raw), &mode)
		}
		if body.Enabled != nil {
			mode.Enabled = *body.Enabled
		}
		if body.DryRun != nil {
			mode.DryRun = *body.DryRun
		}
		raw, _ := json.Marshal(mode)
		if err := h.local.SetAIBanConfig(r.Context(), aibanModeKey, string(raw)); err != nil {
			WriteError(w, http.StatusInternalServerError, "database_failure", err.Error())
			return
		}
		h.pipeline.SetMode(mode.Enabled, mode.DryRun)
	}

	WriteMessage(w, http.StatusOK, "saved")
}

// ResetAPIHealth serves POST /ai-ban/reset-api-health.
func (h *AIBanHandler) ResetAPIHealth(w http.ResponseWriter, r *http.Request) {
	h.pipeline.ResetAPIHealth()
	WriteMessage(w, http.StatusOK, "api health reset")
}

// AuditLogs serves GET /ai-ban/audit-logs.
func (h *AIBanHandler) AuditLogs(w http.ResponseWriter, r *http.Request) {
	action := queryString(r, "action", "")
	limit := queryInt(r, "limit", 50, 1, 500)
	page := queryInt(r, "page", 1, 1, 0)
	entries, err := h.audit.List(r.Context(), action, limit, (page-1)*limit)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "database_failure", err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, entries)
}

// DeleteAuditLogs serves DELETE /ai-ban/audit-logs, clearing the whole log.
func (h *AIBanHandler) DeleteAuditLogs(w http.ResponseWriter, r *http.Request) {
	if err := h.audit.Clear(r.Context()); err != nil {
		WriteError(w, http.StatusInternalServerError, "database_failure", err.Error())
		return
	}
	WriteMessage(w, http.StatusOK, "audit logs cleared")
}

// Suspicious serves GET /ai-ban/suspicious, listing the IDs of recent
// candidate users. No scoring is run and no audit entries are written.
func (h *AIBanHandler) Suspicious(w http.ResponseWriter, r *http.Request) {
	windowSeconds := queryInt64(r, "window_seconds", 86400)
	limit := queryInt(r, "limit", 100, 1, 1000)

	ids, err := risk.CandidateUserIDs(r.Context(), h.db, windowSeconds, limit)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "database_failure", err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"candidate_user_ids": ids, "count": len(ids)})
}

type assessRequest struct {
	UserIDs       []int64 `json:"user_ids"`
	WindowSeconds int64   `json:"window_seconds"`
}

// Assess serves POST /ai-ban/assess, a foreground scan over an explicit
// user-ID list (as opposed to the background ai_ban_scan task).
func (h *AIBanHandler) Assess(w http.ResponseWriter, r *http.Request) {
	var req assessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_body", "request body must be valid JSON")
		return
	}
	if req.WindowSeconds == 0 {
		req.WindowSeconds = 86400
	}
	result, err := h.pipeline.Scan(r.Context(), req.UserIDs, req.WindowSeconds)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "database_failure", err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, result)
}

type scanRequest struct {
	Limit         int   `json:"limit"`
	WindowSeconds int64 `json:"window_seconds"`
}

// Scan serves POST /ai-ban/scan, the same foreground trigger used by the
// "ai_ban_scan" background task but invoked on demand over discovered
// candidates instead of an explicit list.
func (h *AIBanHandler) Scan(w http.ResponseWriter, r *http.Request) {
	var req scanRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	if req.Limit == 0 {
		req.Limit = 200
	}
	if req.WindowSeconds == 0 {
		req.WindowSeconds = 86400
	}

	ids, err := risk.CandidateUserIDs(r.Context(), h.db, req.WindowSeconds, req.Limit)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "database_failure", err.Error())
		return
	}
	result, err := h.pipeline.Scan(r.Context(), ids, req.WindowSeconds)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "database_failure", err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, result)
}

// TestConnection serves POST /ai-ban/test-connection.
func (h *AIBanHandler) TestConnection(w http.ResponseWriter, r *http.Request) {
	if err := h.pipeline.TestConnection(r.Context()); err != nil {
		WriteError(w, http.StatusServiceUnavailable, "upstream_unreachable", err.Error())
		return
	}
	WriteMessage(w, http.StatusOK, "connection ok")
}

// Models serves GET /ai-ban/models: the built-in chat-completion models the
// AI-ban client is known to work with.
func (h *AIBanHandler) Models(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, []string{"gpt-4o-mini", "gpt-4o", "gpt-3.5-turbo"})
}

// TestModel serves POST /ai-ban/test-model, reusing TestConnection since the
// client's model is fixed at construction time.
func (h *AIBanHandler) TestModel(w http.ResponseWriter, r *http.Request) {
	h.TestConnection(w, r)
}

// WhitelistList serves GET /ai-ban/whitelist.
func (h *AIBanHandler) WhitelistList(w http.ResponseWriter, r *http.Request) {
	keyword := queryString(r, "keyword", "")
	entries, err := h.whitelist.Search(r.Context(), h.db, keyword)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "database_failure", err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, entries)
}

type whitelistAddRequest struct {
	UserID    int64  `json:"user_id"`
	Reason    string `json:"reason"`
	AddedBy   string `json:"added_by"`
	ExpiresAt *int64 `json:"expires_at,omitempty"`
}

// WhitelistAdd serves POST /ai-ban/whitelist.
func (h *AIBanHandler) WhitelistAdd(w http.ResponseWriter, r *http.Request) {
	var req whitelistAddRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_body", "request body must be valid JSON")
		return
	}
	var expires *time.Time
	if req.ExpiresAt != nil {
		t := time.Unix(*req.ExpiresAt, 0)
		expires = &t
	}
	if err := h.whitelist.Add(r.Context(), req.UserID, req.Reason, req.AddedBy, expires); err != nil {
		WriteError(w, http.StatusInternalServerError, "database_failure", err.Error())
		return
	}
	WriteMessage(w, http.StatusOK, "added")
}

// WhitelistRemove serves DELETE /ai-ban/whitelist/:user_id.
func (h *AIBanHandler) WhitelistRemove(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "user_id"), 10, 64)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_param", "user_id must be numeric")
		return
	}
	if err := h.whitelist.Remove(r.Context(), userID); err != nil {
		WriteError(w, http.StatusInternalServerError, "database_failure", err.Error())
		return
	}
	WriteMessage(w, http.StatusOK, "removed")
}

// Ban serves POST /ai-ban/users/:user_id/ban, a manual override of the
// pipeline's own decision gate.
func (h *AIBanHandler) Ban(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "user_id"), 10, 64)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_param", "user_id must be numeric")
		return
	}
	var body struct {
		Reason string `json:"reason"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)
	if err := h.pipeline.Ban(r.Context(), userID, body.Reason, "admin"); err != nil {
		WriteError(w, http.StatusInternalServerError, "database_failure", err.Error())
		return
	}
	WriteMessage(w, http.StatusOK, "banned")
}

// Unban serves POST /ai-ban/users/:user_id/unban.
func (h *AIBanHandler) Unban(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "user_id"), 10, 64)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_param", "user_id must be numeric")
		return
	}
	if err := h.pipeline.Unban(r.Context(), userID); err != nil {
		WriteError(w, http.StatusInternalServerError, "database_failure", err.Error())
		return
	}
	WriteMessage(w, http.StatusOK, "unbanned")
}
