package warmup

import (
	"context"
	"sync"
	"time"

	"github.com/newapi-sidecar/sidecar/internal/dbx"
)

// SystemScale classifies the deployment's data volume for warmup gating.
type SystemScale string

const (
	ScaleSmall  SystemScale = "small"
	ScaleMedium SystemScale = "medium"
	ScaleLarge  SystemScale = "large"
	ScaleXLarge SystemScale = "xlarge"
)

// ScaleDetector classifies system scale from the total log count (the user
// count is not consulted), caching the result until a forced refresh.
type ScaleDetector struct {
	db *dbx.Manager

	mu       sync.RWMutex
	cached   SystemScale
	cachedAt time.Time
}

// NewScaleDetector constructs the detector.
func NewScaleDetector(db *dbx.Manager) *ScaleDetector {
	return &ScaleDetector{db: db}
}

// Detect returns the cached scale unless force is true or nothing is cached yet.
func (d *ScaleDetector) Detect(ctx context.Context, force bool) (SystemScale, error) {
	d.mu.RLock()
	if !force && d.cached != "" {
		cached := d.cached
		d.mu.RUnlock()
		return cached, nil
	}
	d.mu.RUnlock()

	row, err := d.db.QueryOne(ctx, `SELECT COUNT(*) AS total FROM logs`)
	if err != nil {
		return "", err
	}
	var logCount int64
	if row != nil {
		logCount = row["total"].Int64()
	}

	scale := classify(logCount)

	d.mu.Lock()
	d.cached = scale
	d.cachedAt = time.Now()
	d.mu.Unlock()

	return scale, nil
}

func classify(logCount int64) SystemScale {
	switch {
	case logCount > 10_000_000:
		return ScaleXLarge
	case logCount > 1_000_000:
		return ScaleLarge
	case logCount > 100_000:
		return ScaleMedium
	default:
		return ScaleSmall
	}
}
