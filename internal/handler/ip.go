package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/newapi-sidecar/sidecar/internal/dbx"
	"github.com/newapi-sidecar/sidecar/internal/geoip"
	"github.com/newapi-sidecar/sidecar/internal/ipsetting"
	"github.com/newapi-sidecar/sidecar/internal/query"
)

// IPHandler serves the shared-IP/multi-IP/geography surface (spec.md §6.4
// "ip" routes).
type IPHandler struct {
	engine *query.Engine
	geo    *geoip.Service
	db     *dbx.Manager
}

// NewIPHandler constructs the IP handler.
func NewIPHandler(engine *query.Engine, geo *geoip.Service, db *dbx.Manager) *IPHandler {
	return &IPHandler{engine: engine, geo: geo, db: db}
}

// Stats serves GET /ip/stats.
func (h *IPHandler) Stats(w http.ResponseWriter, r *http.Request) {
	window := queryString(r, "window", "24h")
	out, err := h.engine.IPStats(r.Context(), window, queryBool(r, "no_cache", false))
	if writeWindowErr(w, err) {
		return
	}
	WriteJSON(w, http.StatusOK, out)
}

// Shared serves GET /ip/shared.
func (h *IPHandler) Shared(w http.ResponseWriter, r *http.Request) {
	window := queryString(r, "window", "24h")
	minTokens := queryInt(r, "min_tokens", 2, 1, 0)
	limit := queryInt(r, "limit", 50, 1, 500)
	out, err := h.engine.SharedIPs(r.Context(), window, minTokens, limit, queryBool(r, "no_cache", false))
	if writeWindowErr(w, err) {
		return
	}
	WriteJSON(w, http.StatusOK, out)
}

// MultiIPTokens serves GET /ip/multi-ip-tokens.
func (h *IPHandler) MultiIPTokens(w http.ResponseWriter, r *http.Request) {
	window := queryString(r, "window", "24h")
	minIPs := queryInt(r, "min_ips", 3, 1, 0)
	limit := queryInt(r, "limit", 50, 1, 500)
	out, err := h.engine.MultiIPTokens(r.Context(), window, minIPs, limit, queryBool(r, "no_cache", false))
	if writeWindowErr(w, err) {
		return
	}
	WriteJSON(w, http.StatusOK, out)
}

// MultiIPUsers serves GET /ip/multi-ip-users.
func (h *IPHandler) MultiIPUsers(w http.ResponseWriter, r *http.Request) {
	window := queryString(r, "window", "24h")
	minIPs := queryInt(r, "min_ips", 3, 1, 0)
	limit := queryInt(r, "limit", 50, 1, 500)
	out, err := h.engine.MultiIPUsers(r.Context(), window, minIPs, limit, queryBool(r, "no_cache", false))
	if writeWindowErr(w, err) {
		return
	}
	WriteJSON(w, http.StatusOK, out)
}

// Lookup serves GET /ip/lookup/:ip.
func (h *IPHandler) Lookup(w http.ResponseWriter, r *http.Request) {
	ip := chi.URLParam(r, "ip")
	if ip == "" {
		WriteError(w, http.StatusBadRequest, "invalid_param", "ip is required")
		return
	}
	out, err := h.engine.IPLookup(r.Context(), ip)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "database_failure", err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, out)
}

// UserIPs serves GET /ip/users/:user_id/ips.
func (h *IPHandler) UserIPs(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "user_id"), 10, 64)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_param", "user_id must be numeric")
		return
	}
	out, err := h.engine.UserIPs(r.Context(), userID)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "database_failure", err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, out)
}

// Geo serves GET /ip/geo/:ip.
func (h *IPHandler) Geo(w http.ResponseWriter, r *http.Request) {
	ip := chi.URLParam(r, "ip")
	if ip == "" {
		WriteError(w, http.StatusBadRequest, "invalid_param", "ip is required")
		return
	}
	rec, ok := h.geo.Lookup(ip)
	if !ok {
		WriteError(w, http.StatusNotFound, "not_found", "no geo record for ip")
		return
	}
	WriteJSON(w, http.StatusOK, rec)
}

type geoBatchRequest struct {
	IPs []string `json:"ips"`
}

// GeoBatch serves POST /ip/geo/batch.
func (h *IPHandler) GeoBatch(w http.ResponseWriter, r *http.Request) {
	var req geoBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_body", "request body must be valid JSON")
		return
	}
	out := h.geo.LookupBatch(req.IPs)
	WriteJSON(w, http.StatusOK, out)
}

// EnableAllRecording serves POST /ip/enable-all-recording, flipping
// record_ip_log on for every user with a non-empty setting blob that doesn't
// already have it set (spec.md §4.7 "ip_recording_enforce" task, run here on
// demand).
func (h *IPHandler) EnableAllRecording(w http.ResponseWriter, r *http.Request) {
	n, err := ipsetting.EnforceAll(r.Context(), h.db)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "database_failure", err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"updated": n})
}
