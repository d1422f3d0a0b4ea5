// Package modelstatus computes per-model availability slots across fixed
// time windows (spec.md §4.4).
package modelstatus

import (
	"context"
	"fmt"
	"time"

	"github.com/newapi-sidecar/sidecar/internal/cachex"
	"github.com/newapi-sidecar/sidecar/internal/dbx"
)

// WindowSpec describes one fixed slot layout.
type WindowSpec struct {
	Name        string
	SlotCount   int
	SlotSeconds int64
}

// Windows lists the fixed slot layouts: 1h of 60x60s, 6h of 24x900s,
// 12h of 24x1800s, 24h of 24x3600s.
var Windows = []WindowSpec{
	{Name: "1h", SlotCount: 60, SlotSeconds: 60},
	{Name: "6h", SlotCount: 24, SlotSeconds: 900},
	{Name: "12h", SlotCount: 24, SlotSeconds: 1800},
	{Name: "24h", SlotCount: 24, SlotSeconds: 3600},
}

func windowByName(name string) (WindowSpec, bool) {
	for _, w := range Windows {
		if w.Name == name {
			return w, true
		}
	}
	return WindowSpec{}, false
}

// Slot is one bucket of a model's status history.
type Slot struct {
	Slot          int     `json:"slot"`
	StartTime     int64   `json:"start_time"`
	EndTime       int64   `json:"end_time"`
	TotalRequests int64   `json:"total_requests"`
	SuccessCount  int64   `json:"success_count"`
	SuccessRate   float64 `json:"success_rate"`
	Status        string  `json:"status"`
}

// ModelStatus is the full slot history for one model and window.
type ModelStatus struct {
	ModelName     string `json:"model_name"`
	Window        string `json:"window"`
	Slots         []Slot `json:"slots"`
	CurrentStatus string `json:"current_status"`
}

// Color thresholds: green >=95%, yellow >=80%, red <80%; green if no traffic.
func colorFor(total, success int64) (float64, string) {
	if total == 0 {
		return 0, "green"
	}
	rate := float64(success) / float64(total) * 100
	switch {
	case rate >= 95:
		return rate, "green"
	case rate >= 80:
		return rate, "yellow"
	default:
		return rate, "red"
	}
}

// Engine computes model-status slot histories over the gateway logs table.
type Engine struct {
	db    *dbx.Manager
	cache *cachex.Manager
}

// New constructs the model-status engine.
func New(db *dbx.Manager, cache *cachex.Manager) *Engine {
	return &Engine{db: db, cache: cache}
}

// Status computes the slot history for one model and window name.
func (e *Engine) Status(ctx context.Context, modelName, windowName string) (*ModelStatus, error) {
	spec, ok := windowByName(windowName)
	if !ok {
		return nil, fmt.Errorf("unknown model-status window %q", windowName)
	}

	key := fmt.Sprintf("model_status:%s:%s", modelName, windowName)
	var cached ModelStatus
	if found, err := e.cache.GetJSON(ctx, key, &cached); err == nil && found {
		return &cached, nil
	}

	result, err := e.computeStatus(ctx, modelName, spec)
	if err != nil {
		return nil, err
	}
	if err := e.cache.SetJSON(ctx, key, result, 30*time.Second); err != nil {
		return result, nil
	}
	return result, nil
}

func (e *Engine) computeStatus(ctx context.Context, modelName string, spec WindowSpec) (*ModelStatus, error) {
	span := spec.SlotSeconds * int64(spec.SlotCount)
	now := time.Now().Unix()
	start := now - span

	rows, err := e.db.Query(ctx, `
		SELECT FLOOR((created_at - ?) / ?) AS slot,
			COUNT(*) AS total,
			SUM(CASE WHEN type = 2 THEN 1 ELSE 0 END) AS success
		FROM logs
		WHERE model_name = ? AND type IN (2, 5) AND created_at >= ? AND created_at < ?
		GROUP BY slot
		ORDER BY slot`, start, spec.SlotSeconds, modelName, start, now)
	if err != nil {
		return nil, err
	}

	bySlot := make(map[int64][2]int64, len(rows))
	for _, row := range rows {
		bySlot[row["slot"].Int64()] = [2]int64{row["total"].Int64(), row["success"].Int64()}
	}

	slots := make([]Slot, spec.SlotCount)
	var totalAll, successAll int64
	for i := 0; i < spec.SlotCount; i++ {
		counts := bySlot[int64(i)]
		total, success := counts[0], counts[1]
		totalAll += total
		successAll += success
		rate, color := colorFor(total, success)
		slots[i] = Slot{
			Slot:          i,
			StartTime:     start + int64(i)*spec.SlotSeconds,
			EndTime:       start + int64(i+1)*spec.SlotSeconds,
			TotalRequests: total,
			SuccessCount:  success,
			SuccessRate:   rate,
			Status:        color,
		}
	}

	_, overallStatus := colorFor(totalAll, successAll)

	return &ModelStatus{
		ModelName:     modelName,
		Window:        spec.Name,
		Slots:         slots,
		CurrentStatus: overallStatus,
	}, nil
}

const availableModelsKey = "model_status:available_models"

// AvailableModels lists distinct model names seen in the logs table, used
// to seed the model-status listing.
func (e *Engine) AvailableModels(ctx context.Context) ([]string, error) {
	var cached []string
	if found, err := e.cache.GetJSON(ctx, availableModelsKey, &cached); err == nil && found {
		return cached, nil
	}
	return e.RefreshAvailableModels(ctx)
}

// RefreshAvailableModels recomputes the model listing and writes it through
// the 30-minute cache regardless of what is currently cached, for the
// model_status_refresh background task (spec.md §4.7).
func (e *Engine) RefreshAvailableModels(ctx context.Context) ([]string, error) {
	rows, err := e.db.Query(ctx, `SELECT DISTINCT model_name FROM logs WHERE created_at >= ? ORDER BY model_name`,
		time.Now().Add(-24*time.Hour).Unix())
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(rows))
	for _, row := range rows {
		out = append(out, row["model_name"].String())
	}
	if err := e.cache.SetJSON(ctx, availableModelsKey, out, 30*time.Minute); err != nil {
		return out, nil
	}
	return out, nil
}
