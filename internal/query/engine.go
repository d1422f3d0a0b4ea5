// Package query implements the analytical SQL engine: overviews, usage,
// per-model stats, trends, rankings, IP distribution, risk leaderboards,
// and the IP-switch/token-rotation/affiliated-account analyzers.
package query

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/newapi-sidecar/sidecar/internal/cachex"
	"github.com/newapi-sidecar/sidecar/internal/dbx"
	"github.com/newapi-sidecar/sidecar/internal/geoip"
)

// Windows maps every accepted window/period name to its length in seconds
// (spec.md §4.3.10).
var Windows = map[string]int64{
	"1h":  3600,
	"3h":  10800,
	"6h":  21600,
	"12h": 43200,
	"24h": 86400,
	"3d":  259200,
	"7d":  604800,
	"14d": 1209600,
	"30d": 2592000,
}

// ErrInvalidWindow is returned for a window/period name outside Windows.
var ErrInvalidWindow = fmt.Errorf("invalid window")

// ResolveWindow validates a window name and returns its duration.
func ResolveWindow(name string) (time.Duration, error) {
	secs, ok := Windows[name]
	if !ok {
		return 0, ErrInvalidWindow
	}
	return time.Duration(secs) * time.Second, nil
}

// Engine is the analytics query layer over the gateway database, backed by
// the two-tier cache for every result it produces.
type Engine struct {
	db     *dbx.Manager
	cache  *cachex.Manager
	geo    *geoip.Service
	tz     *time.Location
	logger zerolog.Logger

	hasQuotaData bool
	hasCheckins  bool
}

// New constructs the query engine and probes for the optional quota_data
// and checkins tables once at startup.
func New(ctx context.Context, db *dbx.Manager, cache *cachex.Manager, geo *geoip.Service, tz *time.Location, logger zerolog.Logger) (*Engine, error) {
	hasQuota, err := db.TableExists(ctx, "quota_data")
	if err != nil {
		logger.Warn().Err(err).Msg("quota_data existence probe failed, assuming absent")
	}
	hasCheckins, err := db.TableExists(ctx, "checkins")
	if err != nil {
		logger.Warn().Err(err).Msg("checkins existence probe failed, assuming absent")
	}
	return &Engine{
		db:           db,
		cache:        cache,
		geo:          geo,
		tz:           tz,
		logger:       logger,
		hasQuotaData: hasQuota,
		hasCheckins:  hasCheckins,
	}, nil
}

// tzOffsetSeconds is the fixed offset used for local-time bucketing; the
// engine's configured zone is assumed non-DST-shifting within a query
// window (spec.md §4.3.4).
func (e *Engine) tzOffsetSeconds() int64 {
	_, offset := time.Now().In(e.tz).Zone()
	return int64(offset)
}

func cacheKey(parts ...any) string {
	key := "query"
	for _, p := range parts {
		key += fmt.Sprintf(":%v", p)
	}
	return key
}

// getCached runs fn only on a cache miss, storing its JSON-encoded result
// under key for ttl.
func getCached[T any](ctx context.Context, e *Engine, key string, ttl time.Duration, noCache bool, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	if !noCache {
		if found, err := e.cache.GetJSON(ctx, key, &out); err == nil && found {
			return out, nil
		}
	}

	result, err := fn(ctx)
	if err != nil {
		var zero T
		return zero, err
	}

	if err := e.cache.SetJSON(ctx, key, result, ttl); err != nil {
		e.logger.Warn().Err(err).Str("key", key).Msg("cache write failed")
	}
	return result, nil
}
