package handler

import (
	"net/http"

	"github.com/newapi-sidecar/sidecar/internal/cachex"
	"github.com/newapi-sidecar/sidecar/internal/query"
)

// DashboardHandler serves the overview/usage/trends/rankings surface
// (spec.md §6.4 "dashboard" routes), all backed by the cached query engine.
type DashboardHandler struct {
	engine *query.Engine
	cache  *cachex.Manager
}

// NewDashboardHandler constructs the dashboard handler.
func NewDashboardHandler(engine *query.Engine, cache *cachex.Manager) *DashboardHandler {
	return &DashboardHandler{engine: engine, cache: cache}
}

func periodParam(r *http.Request) string { return queryString(r, "period", "24h") }

// Overview serves GET /dashboard/overview.
func (h *DashboardHandler) Overview(w http.ResponseWriter, r *http.Request) {
	out, err := h.engine.Overview(r.Context(), periodParam(r), queryBool(r, "no_cache", false))
	if writeWindowErr(w, err) {
		return
	}
	WriteJSON(w, http.StatusOK, out)
}

// Usage serves GET /dashboard/usage.
func (h *DashboardHandler) Usage(w http.ResponseWriter, r *http.Request) {
	out, err := h.engine.Usage(r.Context(), periodParam(r), queryBool(r, "no_cache", false))
	if writeWindowErr(w, err) {
		return
	}
	WriteJSON(w, http.StatusOK, out)
}

// Models serves GET /dashboard/models.
func (h *DashboardHandler) Models(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 10, 1, 100)
	out, err := h.engine.ModelUsage(r.Context(), periodParam(r), limit, queryBool(r, "no_cache", false))
	if writeWindowErr(w, err) {
		return
	}
	WriteJSON(w, http.StatusOK, out)
}

// TrendsDaily serves GET /dashboard/trends/daily?days=1..90.
func (h *DashboardHandler) TrendsDaily(w http.ResponseWriter, r *http.Request) {
	days := queryInt(r, "days", 7, 1, 90)
	out, err := h.engine.DailyTrends(r.Context(), days, queryBool(r, "no_cache", false))
	if writeWindowErr(w, err) {
		return
	}
	WriteJSON(w, http.StatusOK, out)
}

// TrendsHourly serves GET /dashboard/trends/hourly?hours=1..168.
func (h *DashboardHandler) TrendsHourly(w http.ResponseWriter, r *http.Request) {
	hours := queryInt(r, "hours", 24, 1, 168)
	out, err := h.engine.HourlyTrends(r.Context(), hours, queryBool(r, "no_cache", false))
	if writeWindowErr(w, err) {
		return
	}
	WriteJSON(w, http.StatusOK, out)
}

// TopUsers serves GET /dashboard/top-users.
func (h *DashboardHandler) TopUsers(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 10, 1, 200)
	out, err := h.engine.TopUsers(r.Context(), periodParam(r), limit, queryBool(r, "no_cache", false))
	if writeWindowErr(w, err) {
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"ranking": out})
}

// Channels serves GET /dashboard/channels.
func (h *DashboardHandler) Channels(w http.ResponseWriter, r *http.Request) {
	out, err := h.engine.Channels(r.Context(), queryBool(r, "no_cache", false))
	if writeWindowErr(w, err) {
		return
	}
	WriteJSON(w, http.StatusOK, out)
}

// IPDistribution serves GET /dashboard/ip-distribution.
func (h *DashboardHandler) IPDistribution(w http.ResponseWriter, r *http.Request) {
	window := queryString(r, "window", "24h")
	out, err := h.engine.IPDistribution(r.Context(), window, queryBool(r, "no_cache", false))
	if writeWindowErr(w, err) {
		return
	}
	WriteJSON(w, http.StatusOK, out)
}

// CacheInvalidate serves POST /dashboard/cache/invalidate, dropping every
// cached query-engine result so the next read is a live miss (spec.md §8.6).
func (h *DashboardHandler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	n, err := h.cache.DeleteByPrefix(r.Context(), "query:")
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "database_failure", err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"invalidated": n})
}

// writeWindowErr translates a query-engine error into the 400/500 envelope
// and reports whether the caller should stop (true = error handled).
func writeWindowErr(w http.ResponseWriter, err error) bool {
	if err == nil {
		return false
	}
	if err == query.ErrInvalidWindow || err == query.ErrInvalidSort {
		WriteError(w, http.StatusBadRequest, "invalid_param", err.Error())
		return true
	}
	WriteError(w, http.StatusInternalServerError, "database_failure", err.Error())
	return true
}
