// Package warmup implements the staged cache-priming sequence that runs at
// startup and on demand (spec.md §4.6).
package warmup

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/newapi-sidecar/sidecar/internal/cachex"
	"github.com/newapi-sidecar/sidecar/internal/dbx"
	"github.com/newapi-sidecar/sidecar/internal/domain"
	"github.com/newapi-sidecar/sidecar/internal/modelstatus"
	"github.com/newapi-sidecar/sidecar/internal/query"
)

// Step is one phase's reported state.
type Step struct {
	Name       string     `json:"name"`
	Status     string     `json:"status"` // pending, running, done, error
	Error      string     `json:"error,omitempty"`
	Progress   int        `json:"progress"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

var phaseNames = []string{
	"restore", "check", "leaderboard", "dashboard",
	"user_activity", "ip_monitoring", "ip_distribution", "model_status",
}

// startProgress is the baseline reported the instant Run begins, before the
// first phase completes.
const startProgress = 5

// phaseProgress holds the progress percent reached on completion of each
// phase, continuing the startProgress baseline: 5, 10, 15, 40, 55, 65, 80,
// 90, 100 (spec.md §4.6).
var phaseProgress = []int{10, 15, 40, 55, 65, 80, 90, 100}

// Orchestrator runs the 8-phase warmup sequence and exposes progress.
type Orchestrator struct {
	db     *dbx.Manager
	cache  *cachex.Manager
	engine *query.Engine
	models *modelstatus.Engine
	scale  *ScaleDetector
	logger zerolog.Logger

	mu       sync.RWMutex
	status   domain.WarmupStatus
	steps    []Step
	doneOnce sync.Once
	doneCh   chan struct{}
}

// New constructs the warmup orchestrator.
func New(db *dbx.Manager, cache *cachex.Manager, engine *query.Engine, models *modelstatus.Engine, scale *ScaleDetector, logger zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		db:     db,
		cache:  cache,
		engine: engine,
		models: models,
		scale:  scale,
		logger: logger,
		doneCh: make(chan struct{}),
		steps:  initialSteps(),
		status: domain.WarmupStatus{Status: "pending", TotalPhase: len(phaseNames), Total: len(phaseNames)},
	}
}

func initialSteps() []Step {
	steps := make([]Step, len(phaseNames))
	for i, n := range phaseNames {
		steps[i] = Step{Name: n, Status: "pending"}
	}
	return steps
}

// DoneCh returns the channel closed once warmup completes, for
// StartAfterWarmup tasks to select on.
func (o *Orchestrator) DoneCh() <-chan struct{} { return o.doneCh }

// Status returns a copy of the current warmup status and steps.
func (o *Orchestrator) Status() (domain.WarmupStatus, []Step) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	steps := make([]Step, len(o.steps))
	copy(steps, o.steps)
	return o.status, steps
}

// Run executes all 8 phases in order. Idempotent: calling it again resets
// every step to pending and re-runs from the top.
func (o *Orchestrator) Run(ctx context.Context) {
	o.mu.Lock()
	o.steps = initialSteps()
	o.status = domain.WarmupStatus{
		Status:      "initializing",
		Phase:       phaseNames[0],
		TotalPhase:  len(phaseNames),
		Total:       len(phaseNames),
		Progress:    startProgress,
		CurrentTask: phaseNames[0],
		Message:     "warmup starting",
		StartedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
	o.mu.Unlock()

	phases := []func(context.Context) error{
		o.phaseRestore,
		o.phaseCheck,
		o.phaseLeaderboard,
		o.phaseDashboard,
		o.phaseUserActivity,
		o.phaseIPMonitoring,
		o.phaseIPDistribution,
		o.phaseModelStatus,
	}

	for i, phase := range phases {
		o.setRunning(i)
		err := phase(ctx)
		o.setResult(i, err)
	}

	now := time.Now()
	o.mu.Lock()
	o.status.Done = true
	o.status.Status = "ready"
	o.status.Progress = 100
	o.status.CurrentTask = ""
	o.status.Message = "warmup complete"
	o.status.CompletedAt = &now
	o.status.UpdatedAt = now
	o.mu.Unlock()

	o.doneOnce.Do(func() { close(o.doneCh) })
}

func (o *Orchestrator) setRunning(i int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.steps[i].Status = "running"
	o.status.Phase = phaseNames[i]
	o.status.PhaseIndex = i
	o.status.CurrentTask = phaseNames[i]
	o.status.Message = "running " + phaseNames[i]
	o.status.UpdatedAt = time.Now()
}

func (o *Orchestrator) setResult(i int, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	now := time.Now()
	if err != nil {
		o.steps[i].Status = "error"
		o.steps[i].Error = err.Error()
		o.status.Message = "phase " + phaseNames[i] + " failed: " + err.Error()
		o.logger.Warn().Err(err).Str("phase", phaseNames[i]).Msg("warmup phase failed")
	} else {
		o.steps[i].Status = "done"
		o.status.Message = "completed " + phaseNames[i]
	}
	o.steps[i].Progress = phaseProgress[i]
	o.steps[i].CompletedAt = &now
	o.status.Progress = phaseProgress[i]
	o.status.UpdatedAt = now
}
