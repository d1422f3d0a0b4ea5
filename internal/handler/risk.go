package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/newapi-sidecar/sidecar/internal/query"
	"github.com/newapi-sidecar/sidecar/internal/risk"
)

// RiskHandler serves the real-time leaderboards, per-user risk analysis,
// and the token-rotation/affiliated-account/same-IP analyzers
// (spec.md §6.4 "risk" routes).
type RiskHandler struct {
	engine *query.Engine
	audit  *risk.AuditLogger
}

// NewRiskHandler constructs the risk handler.
func NewRiskHandler(engine *query.Engine, audit *risk.AuditLogger) *RiskHandler {
	return &RiskHandler{engine: engine, audit: audit}
}

// Leaderboards serves GET /risk/leaderboards.
func (h *RiskHandler) Leaderboards(w http.ResponseWriter, r *http.Request) {
	windows := splitCSVParam(r, "windows")
	if len(windows) == 0 {
		windows = []string{"1h"}
	}
	limit := queryInt(r, "limit", 50, 1, 500)
	sortBy := queryString(r, "sort_by", "requests")

	out, err := h.engine.Leaderboards(r.Context(), windows, limit, sortBy, queryBool(r, "no_cache", false))
	if writeWindowErr(w, err) {
		return
	}
	WriteJSON(w, http.StatusOK, out)
}

// UserAnalysis serves GET /risk/users/:user_id/analysis.
func (h *RiskHandler) UserAnalysis(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "user_id"), 10, 64)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_param", "user_id must be numeric")
		return
	}

	window := queryString(r, "window", "24h")
	dur, err := query.ResolveWindow(window)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_param", "invalid window")
		return
	}
	endTime := queryInt64(r, "end_time", 0)

	out, err := h.engine.UserAnalysis(r.Context(), userID, int64(dur.Seconds()), endTime)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "database_failure", err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, out)
}

// BanRecords serves GET /risk/ban-records, reading the AI-ban audit log.
// Entries are filtered by the optional action and user_id parameters; with
// no action given, every action is returned.
func (h *RiskHandler) BanRecords(w http.ResponseWriter, r *http.Request) {
	page := queryInt(r, "page", 1, 1, 0)
	pageSize := queryInt(r, "page_size", 20, 1, 200)
	action := queryString(r, "action", "")

	entries, err := h.audit.List(r.Context(), action, pageSize, (page-1)*pageSize)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "database_failure", err.Error())
		return
	}

	userIDFilter := queryString(r, "user_id", "")
	if userIDFilter != "" {
		id, perr := strconv.ParseInt(userIDFilter, 10, 64)
		if perr == nil {
			filtered := entries[:0]
			for _, e := range entries {
				if e.UserID == id {
					filtered = append(filtered, e)
				}
			}
			entries = filtered
		}
	}

	WriteJSON(w, http.StatusOK, map[string]any{"records": entries, "page": page, "page_size": pageSize})
}

// TokenRotation serves GET /risk/token-rotation.
func (h *RiskHandler) TokenRotation(w http.ResponseWriter, r *http.Request) {
	window := queryString(r, "window", "24h")
	minTokens := queryInt(r, "min_tokens", 3, 1, 0)
	maxPerToken := queryFloat(r, "max_requests_per_token", 5)
	limit := queryInt(r, "limit", 50, 1, 500)

	out, err := h.engine.TokenRotation(r.Context(), window, minTokens, maxPerToken, limit, queryBool(r, "no_cache", false))
	if writeWindowErr(w, err) {
		return
	}
	WriteJSON(w, http.StatusOK, out)
}

// AffiliatedAccounts serves GET /risk/affiliated-accounts.
func (h *RiskHandler) AffiliatedAccounts(w http.ResponseWriter, r *http.Request) {
	minInvited := queryInt(r, "min_invited", 3, 1, 0)
	limit := queryInt(r, "limit", 50, 1, 500)

	out, err := h.engine.AffiliatedAccounts(r.Context(), minInvited, limit)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "database_failure", err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, out)
}

// SameIPRegistrations serves GET /risk/same-ip-registrations.
func (h *RiskHandler) SameIPRegistrations(w http.ResponseWriter, r *http.Request) {
	window := queryString(r, "window", "24h")
	minUsers := queryInt(r, "min_users", 3, 1, 0)
	limit := queryInt(r, "limit", 50, 1, 500)

	out, err := h.engine.SameIPRegistrations(r.Context(), window, minUsers, limit)
	if writeWindowErr(w, err) {
		return
	}
	WriteJSON(w, http.StatusOK, out)
}
