package query

import (
	"context"
	"time"

	"github.com/newapi-sidecar/sidecar/internal/geoip"
)

// IPStats is the global IP-traffic summary for GET /ip/stats.
type IPStats struct {
	DistinctIPs   int64 `json:"distinct_ips"`
	DistinctUsers int64 `json:"distinct_users"`
	DistinctToken int64 `json:"distinct_tokens"`
	TotalRequests int64 `json:"total_requests"`
}

// IPStats summarizes IP/user/token cardinality over a window.
func (e *Engine) IPStats(ctx context.Context, window string, noCache bool) (*IPStats, error) {
	dur, err := ResolveWindow(window)
	if err != nil {
		return nil, err
	}
	key := cacheKey("ip_stats", window)
	return getCached(ctx, e, key, 3*time.Minute, noCache, func(ctx context.Context) (*IPStats, error) {
		start := time.Now().Add(-dur).Unix()
		row, err := e.db.QueryOne(ctx, `
			SELECT COUNT(DISTINCT ip) AS distinct_ips,
				COUNT(DISTINCT user_id) AS distinct_users,
				COUNT(DISTINCT token_id) AS distinct_tokens,
				COUNT(*) AS total_requests
			FROM logs WHERE created_at >= ?`, start)
		if err != nil {
			return nil, err
		}
		return &IPStats{
			DistinctIPs:   row["distinct_ips"].Int64(),
			DistinctUsers: row["distinct_users"].Int64(),
			DistinctToken: row["distinct_tokens"].Int64(),
			TotalRequests: row["total_requests"].Int64(),
		}, nil
	})
}

// IPLookupResult is the per-IP detail for GET /ip/lookup/:ip.
type IPLookupResult struct {
	IP           string        `json:"ip"`
	RequestCount int64         `json:"request_count"`
	UserIDs      []int64       `json:"user_ids"`
	TokenIDs     []int64       `json:"token_ids"`
	Geo          *geoip.Record `json:"geo,omitempty"`
}

// IPLookup reports every distinct user/token seen from a single IP in the
// last 30 days, plus its resolved geography.
func (e *Engine) IPLookup(ctx context.Context, ip string) (*IPLookupResult, error) {
	start := time.Now().Add(-30 * 24 * time.Hour).Unix()

	countRow, err := e.db.QueryOne(ctx,
		`SELECT COUNT(*) AS total FROM logs WHERE ip = ? AND created_at >= ?`, ip, start)
	if err != nil {
		return nil, err
	}

	rows, err := e.db.Query(ctx, `
		SELECT user_id, token_id FROM logs
		WHERE ip = ? AND created_at >= ?
		GROUP BY user_id, token_id`, ip, start)
	if err != nil {
		return nil, err
	}

	out := &IPLookupResult{IP: ip}
	if countRow != nil {
		out.RequestCount = countRow["total"].Int64()
	}
	users := make(map[int64]bool)
	tokens := make(map[int64]bool)
	for _, row := range rows {
		uid := row["user_id"].Int64()
		tid := row["token_id"].Int64()
		if !users[uid] {
			users[uid] = true
			out.UserIDs = append(out.UserIDs, uid)
		}
		if tid != 0 && !tokens[tid] {
			tokens[tid] = true
			out.TokenIDs = append(out.TokenIDs, tid)
		}
	}

	if e.geo != nil {
		if rec, ok := e.geo.Lookup(ip); ok {
			out.Geo = &rec
		}
	}
	return out, nil
}

// UserIPEntry is one IP a given user has been seen from.
type UserIPEntry struct {
	IP           string `json:"ip"`
	RequestCount int64  `json:"request_count"`
	LastSeen     int64  `json:"last_seen"`
}

// UserIPs lists every IP a user has connected from in the last 30 days.
func (e *Engine) UserIPs(ctx context.Context, userID int64) ([]UserIPEntry, error) {
	start := time.Now().Add(-30 * 24 * time.Hour).Unix()
	rows, err := e.db.Query(ctx, `
		SELECT ip, COUNT(*) AS request_count, MAX(created_at) AS last_seen
		FROM logs WHERE user_id = ? AND created_at >= ? AND ip != ''
		GROUP BY ip
		ORDER BY request_count DESC`, userID, start)
	if err != nil {
		return nil, err
	}
	out := make([]UserIPEntry, 0, len(rows))
	for _, row := range rows {
		out = append(out, UserIPEntry{
			IP:           row["ip"].String(),
			RequestCount: row["request_count"].Int64(),
			LastSeen:     row["last_seen"].Int64(),
		})
	}
	return out, nil
}
