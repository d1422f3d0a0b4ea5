package query

import (
	"context"
	"time"
)

// TokenRotationUser is one user whose token usage pattern looks like
// rotation to stay under per-token rate limits (spec.md §4.3.12).
type TokenRotationUser struct {
	UserID               int64   `json:"user_id"`
	Username             string  `json:"username"`
	TokenCount           int64   `json:"token_count"`
	TotalRequests        int64   `json:"total_requests"`
	AvgRequestsPerToken  float64 `json:"avg_requests_per_token"`
}

// TokenRotation flags users with >= minTokens distinct tokens whose average
// requests-per-token stays at or below maxPerToken.
func (e *Engine) TokenRotation(ctx context.Context, window string, minTokens int, maxPerToken float64, limit int, noCache bool) ([]TokenRotationUser, error) {
	dur, err := ResolveWindow(window)
	if err != nil {
		return nil, err
	}
	key := cacheKey("token_rotation", window, minTokens, maxPerToken, limit)
	return getCached(ctx, e, key, 3*time.Minute, noCache, func(ctx context.Context) ([]TokenRotationUser, error) {
		start := time.Now().Add(-dur).Unix()
		rows, err := e.db.Query(ctx, `
			SELECT agg.user_id AS user_id, u.username AS username,
				agg.token_count AS token_count, agg.total_requests AS total_requests
			FROM (
				SELECT user_id, COUNT(DISTINCT token_id) AS token_count, COUNT(*) AS total_requests
				FROM logs WHERE created_at >= ?
				GROUP BY user_id
				HAVING COUNT(DISTINCT token_id) >= ?
			) agg
			LEFT JOIN users u ON u.id = agg.user_id
			LIMIT ?`, start, minTokens, limit*4)
		if err != nil {
			return nil, err
		}

		out := make([]TokenRotationUser, 0, limit)
		for _, row := range rows {
			tokenCount := row["token_count"].Int64()
			totalRequests := row["total_requests"].Int64()
			if tokenCount == 0 {
				continue
			}
			avg := float64(totalRequests) / float64(tokenCount)
			if avg > maxPerToken {
				continue
			}
			out = append(out, TokenRotationUser{
				UserID:              row["user_id"].Int64(),
				Username:            row["username"].String(),
				TokenCount:          tokenCount,
				TotalRequests:       totalRequests,
				AvgRequestsPerToken: avg,
			})
			if len(out) >= limit {
				break
			}
		}
		return out, nil
	})
}
