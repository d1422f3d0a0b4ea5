package query

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// LeaderboardEntry is one user's row in a window's leaderboard.
type LeaderboardEntry struct {
	UserID           int64   `json:"user_id"`
	Username         string  `json:"username"`
	RequestCount     int64   `json:"request_count"`
	FailureRequests  int64   `json:"failure_requests"`
	FailureRate      float64 `json:"failure_rate"`
	QuotaUsed        int64   `json:"quota_used"`
	PromptTokens     int64   `json:"prompt_tokens"`
	CompletionTokens int64   `json:"completion_tokens"`
	UniqueIPs        int64   `json:"unique_ips"`
}

// sortExpressions whitelists the only ORDER BY expressions callers may pick;
// anything else is rejected before it ever reaches SQL.
var sortExpressions = map[string]string{
	"requests":     "request_count DESC",
	"quota":        "quota_used DESC",
	"failure_rate": "failure_rate DESC",
}

// ErrInvalidSort is returned for a sort_by value outside sortExpressions.
var ErrInvalidSort = fmt.Errorf("invalid sort_by")

// Leaderboards computes per-user aggregates for each requested window.
func (e *Engine) Leaderboards(ctx context.Context, windows []string, limit int, sortBy string, noCache bool) (map[string][]LeaderboardEntry, error) {
	orderExpr, ok := sortExpressions[sortBy]
	if !ok {
		return nil, ErrInvalidSort
	}
	for _, w := range windows {
		if _, err := ResolveWindow(w); err != nil {
			return nil, err
		}
	}

	key := cacheKey("leaderboards", strings.Join(windows, ","), limit, sortBy)
	return getCached(ctx, e, key, 3*time.Minute, noCache, func(ctx context.Context) (map[string][]LeaderboardEntry, error) {
		out := make(map[string][]LeaderboardEntry, len(windows))
		for _, w := range windows {
			entries, err := e.leaderboardWindow(ctx, w, limit, orderExpr)
			if err != nil {
				return nil, err
			}
			out[w] = entries
		}
		return out, nil
	})
}

func (e *Engine) leaderboardWindow(ctx context.Context, window string, limit int, orderExpr string) ([]LeaderboardEntry, error) {
	dur, _ := ResolveWindow(window)
	start := time.Now().Add(-dur).Unix()

	query := fmt.Sprintf(`
		SELECT agg.user_id AS user_id, u.username AS username,
			agg.request_count AS request_count,
			agg.failure_requests AS failure_requests,
			CASE WHEN agg.request_count = 0 THEN 0 ELSE agg.failure_requests * 1.0 / agg.request_count END AS failure_rate,
			agg.quota_used AS quota_used,
			agg.prompt_tokens AS prompt_tokens,
			agg.completion_tokens AS completion_tokens,
			agg.unique_ips AS unique_ips
		FROM (
			SELECT user_id,
				COUNT(*) AS request_count,
				SUM(CASE WHEN type = 5 THEN 1 ELSE 0 END) AS failure_requests,
				COALESCE(SUM(quota), 0) AS quota_used,
				COALESCE(SUM(prompt_tokens), 0) AS prompt_tokens,
				COALESCE(SUM(completion_tokens), 0) AS completion_tokens,
				COUNT(DISTINCT ip) AS unique_ips
			FROM logs WHERE created_at >= ? AND type IN (2, 5)
			GROUP BY user_id
		) agg
		LEFT JOIN users u ON u.id = agg.user_id
		ORDER BY %s
		LIMIT ?`, orderExpr)

	rows, err := e.db.Query(ctx, query, start, limit)
	if err != nil {
		return nil, err
	}

	out := make([]LeaderboardEntry, 0, len(rows))
	for _, row := range rows {
		out = append(out, LeaderboardEntry{
			UserID:           row["user_id"].Int64(),
			Username:         row["username"].String(),
			RequestCount:     row["request_count"].Int64(),
			FailureRequests:  row["failure_requests"].Int64(),
			FailureRate:      row["failure_rate"].Float64(),
			QuotaUsed:        row["quota_used"].Int64(),
			PromptTokens:     row["prompt_tokens"].Int64(),
			CompletionTokens: row["completion_tokens"].Int64(),
			UniqueIPs:        row["unique_ips"].Int64(),
		})
	}
	return out, nil
}
