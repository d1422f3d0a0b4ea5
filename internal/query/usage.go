package query

import (
	"context"
	"time"
)

// Usage implements spec.md §4.3.2.
type Usage struct {
	TotalRequests         int64   `json:"total_requests"`
	TotalQuotaUsed        int64   `json:"total_quota_used"`
	TotalPromptTokens     int64   `json:"total_prompt_tokens"`
	TotalCompletionTokens int64   `json:"total_completion_tokens"`
	AverageResponseTime   float64 `json:"average_response_time"`
}

// ModelUsage is one row of the per-model ranking (spec.md §4.3.3).
type ModelUsage struct {
	ModelName    string `json:"model_name"`
	RequestCount int64  `json:"request_count"`
	QuotaUsed    int64  `json:"quota_used"`
}

// Usage computes aggregate usage for period, over type=2 (successful) logs only.
func (e *Engine) Usage(ctx context.Context, period string, noCache bool) (*Usage, error) {
	dur, err := ResolveWindow(period)
	if err != nil {
		return nil, err
	}
	key := cacheKey("usage", period)
	return getCached(ctx, e, key, 3*time.Minute, noCache, func(ctx context.Context) (*Usage, error) {
		start := time.Now().Add(-dur).Unix()
		row, err := e.db.QueryOne(ctx, `
			SELECT
				COUNT(*) AS total_requests,
				COALESCE(SUM(quota), 0) AS total_quota_used,
				COALESCE(SUM(prompt_tokens), 0) AS total_prompt_tokens,
				COALESCE(SUM(completion_tokens), 0) AS total_completion_tokens,
				COALESCE(AVG(use_time), 0) AS average_response_time
			FROM logs WHERE type = 2 AND created_at >= ?`, start)
		if err != nil {
			return nil, err
		}
		out := &Usage{}
		if row != nil {
			out.TotalRequests = row["total_requests"].Int64()
			out.TotalQuotaUsed = row["total_quota_used"].Int64()
			out.TotalPromptTokens = row["total_prompt_tokens"].Int64()
			out.TotalCompletionTokens = row["total_completion_tokens"].Int64()
			out.AverageResponseTime = row["average_response_time"].Float64()
		}
		return out, nil
	})
}

// ModelUsage computes the top models by request count for period.
func (e *Engine) ModelUsage(ctx context.Context, period string, limit int, noCache bool) ([]ModelUsage, error) {
	dur, err := ResolveWindow(period)
	if err != nil {
		return nil, err
	}
	key := cacheKey("model_usage", period, limit)
	return getCached(ctx, e, key, 3*time.Minute, noCache, func(ctx context.Context) ([]ModelUsage, error) {
		start := time.Now().Add(-dur).Unix()
		rows, err := e.db.Query(ctx, `
			SELECT model_name, COUNT(*) AS request_count, COALESCE(SUM(quota), 0) AS quota_used
			FROM logs
			WHERE type = 2 AND created_at >= ?
			GROUP BY model_name
			ORDER BY request_count DESC
			LIMIT ?`, start, limit)
		if err != nil {
			return nil, err
		}
		out := make([]ModelUsage, 0, len(rows))
		for _, row := range rows {
			out = append(out, ModelUsage{
				ModelName:    row["model_name"].String(),
				RequestCount: row["request_count"].Int64(),
				QuotaUsed:    row["quota_used"].Int64(),
			})
		}
		return out, nil
	})
}
