package query

import (
	"context"
	"time"
)

// Overview implements spec.md §4.3.1.
type Overview struct {
	TotalUsers        int64 `json:"total_users"`
	ActiveUsers       int64 `json:"active_users"`
	TotalTokens       int64 `json:"total_tokens"`
	ActiveTokens      int64 `json:"active_tokens"`
	TotalChannels     int64 `json:"total_channels"`
	ActiveChannels    int64 `json:"active_channels"`
	TotalModels       int64 `json:"total_models"`
	TotalRedemptions  int64 `json:"total_redemptions"`
	UnusedRedemptions int64 `json:"unused_redemptions"`
}

// Overview computes the dashboard overview for period, honoring noCache.
func (e *Engine) Overview(ctx context.Context, period string, noCache bool) (*Overview, error) {
	dur, err := ResolveWindow(period)
	if err != nil {
		return nil, err
	}
	key := cacheKey("overview", period)
	return getCached(ctx, e, key, 3*time.Minute, noCache, func(ctx context.Context) (*Overview, error) {
		return e.computeOverview(ctx, dur)
	})
}

func (e *Engine) computeOverview(ctx context.Context, dur time.Duration) (*Overview, error) {
	start := time.Now().Add(-dur).Unix()
	out := &Overview{}

	row, err := e.db.QueryOne(ctx, `SELECT COUNT(*) AS total FROM users WHERE deleted_at IS NULL`)
	if err != nil {
		return nil, err
	}
	if row != nil {
		out.TotalUsers = row["total"].Int64()
	}

	row, err = e.db.QueryOne(ctx,
		`SELECT COUNT(DISTINCT user_id) AS active FROM logs WHERE created_at >= ?`, start)
	if err != nil {
		return nil, err
	}
	if row != nil {
		out.ActiveUsers = row["active"].Int64()
	}

	row, err = e.db.QueryOne(ctx, `SELECT COUNT(*) AS total FROM tokens`)
	if err != nil {
		return nil, err
	}
	if row != nil {
		out.TotalTokens = row["total"].Int64()
	}

	row, err = e.db.QueryOne(ctx, `SELECT COUNT(*) AS active FROM tokens WHERE status = 1`)
	if err != nil {
		return nil, err
	}
	if row != nil {
		out.ActiveTokens = row["active"].Int64()
	}

	row, err = e.db.QueryOne(ctx, `SELECT COUNT(*) AS total FROM channels`)
	if err != nil {
		return nil, err
	}
	if row != nil {
		out.TotalChannels = row["total"].Int64()
	}

	row, err = e.db.QueryOne(ctx, `SELECT COUNT(*) AS active FROM channels WHERE status = 1`)
	if err != nil {
		return nil, err
	}
	if row != nil {
		out.ActiveChannels = row["active"].Int64()
	}

	models, err := e.db.QueryOne(ctx,
		`SELECT COUNT(DISTINCT abilities.model) AS total FROM abilities JOIN channels ON channels.id = abilities.channel_id WHERE channels.status = 1`)
	if err != nil || models == nil {
		models, err = e.db.QueryOne(ctx, `SELECT COUNT(*) AS total FROM models`)
		if err != nil {
			return nil, err
		}
	}
	if models != nil {
		out.TotalModels = models["total"].Int64()
	}

	row, err = e.db.QueryOne(ctx, `SELECT COUNT(*) AS total FROM redemptions WHERE deleted_at IS NULL`)
	if err != nil {
		return nil, err
	}
	if row != nil {
		out.TotalRedemptions = row["total"].Int64()
	}

	row, err = e.db.QueryOne(ctx, `SELECT COUNT(*) AS total FROM redemptions WHERE status = 1 AND deleted_at IS NULL`)
	if err != nil {
		return nil, err
	}
	if row != nil {
		out.UnusedRedemptions = row["total"].Int64()
	}

	return out, nil
}
