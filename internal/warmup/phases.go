package warmup

import (
	"context"
	"time"
)

func (o *Orchestrator) phaseRestore(ctx context.Context) error {
	_, err := o.cache.RestoreToRedis(ctx)
	return err
}

func (o *Orchestrator) phaseCheck(ctx context.Context) error {
	o.cache.IsRedisAvailable()
	return nil
}

func (o *Orchestrator) phaseLeaderboard(ctx context.Context) error {
	windowSets := [][]string{{"24h"}, {"7d"}, {"30d"}} // today, week, month equivalents
	for _, windows := range windowSets {
		if _, err := o.engine.Leaderboards(ctx, windows, 50, "requests", true); err != nil {
			return err
		}
		time.Sleep(500 * time.Millisecond)
	}
	return nil
}

func (o *Orchestrator) phaseDashboard(ctx context.Context) error {
	if _, err := o.engine.Overview(ctx, "7d", true); err != nil {
		return err
	}
	for _, p := range []string{"7d", "24h", "3d"} {
		if _, err := o.engine.Usage(ctx, p, true); err != nil {
			return err
		}
	}
	if _, err := o.engine.ModelUsage(ctx, "7d", 20, true); err != nil {
		return err
	}
	for _, d := range []int{7, 3} {
		if _, err := o.engine.DailyTrends(ctx, d, true); err != nil {
			return err
		}
	}
	if _, err := o.engine.TopUsers(ctx, "7d", 20, true); err != nil {
		return err
	}
	if _, err := o.engine.HourlyTrends(ctx, 24, true); err != nil {
		return err
	}
	if _, err := o.engine.Channels(ctx, true); err != nil {
		return err
	}
	return nil
}

func (o *Orchestrator) phaseUserActivity(ctx context.Context) error {
	scale, err := o.scale.Detect(ctx, false)
	if err != nil {
		return err
	}
	if scale != ScaleLarge && scale != ScaleXLarge {
		return nil
	}
	_, err = o.db.Query(ctx, `SELECT id FROM users ORDER BY quota DESC LIMIT 100`)
	if err != nil {
		return err
	}
	_, err = o.db.Query(ctx, `SELECT id FROM users ORDER BY used_quota DESC LIMIT 100`)
	return err
}

func (o *Orchestrator) phaseIPMonitoring(ctx context.Context) error {
	for _, w := range []string{"1h", "24h", "7d"} {
		if _, err := o.engine.SharedIPs(ctx, w, 2, 50, true); err != nil {
			return err
		}
		if _, err := o.engine.MultiIPTokens(ctx, w, 2, 50, true); err != nil {
			return err
		}
		if _, err := o.engine.MultiIPUsers(ctx, w, 2, 50, true); err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) phaseIPDistribution(ctx context.Context) error {
	for _, w := range []string{"1h", "6h", "24h", "7d"} {
		if _, err := o.engine.IPDistribution(ctx, w, true); err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) phaseModelStatus(ctx context.Context) error {
	_, err := o.models.RefreshAvailableModels(ctx)
	return err
}

// RefreshHotSet re-runs the dashboard hot set plus leaderboards (the phase
// 3+4 work) for the cache_refresh background task, without touching
// WarmupStatus (spec.md §4.7).
func (o *Orchestrator) RefreshHotSet(ctx context.Context) error {
	if err := o.phaseLeaderboard(ctx); err != nil {
		return err
	}
	return o.phaseDashboard(ctx)
}
