// Package task drives the background task manager: interval-scheduled
// jobs with immediate-first-run, warmup gating, and status reporting
// (spec.md §4.7). Built on robfig/cron's "@every" scheduling. Each task's
// first invocation runs in its own goroutine as soon as it is registered
// (or once warmup is done), and only then is the cron entry added, so
// "immediate plus interval" holds even though cron itself only ticks on its
// own schedule.
package task

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/newapi-sidecar/sidecar/internal/domain"
)

// Handler is a background task body. A returned error is logged and
// recorded as last_error; it never stops the schedule.
type Handler func(ctx context.Context) error

type registeredTask struct {
	name        string
	cadence     time.Duration
	handler     Handler
	waitsWarmup bool

	mu        sync.Mutex
	lastRun   time.Time
	lastError string
	runCount  int64
}

// Manager owns every registered background task and the shared shutdown context.
type Manager struct {
	cron   *cron.Cron
	logger zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu    sync.RWMutex
	tasks map[string]*registeredTask

	warmupDoneOnce sync.Once
	warmupDoneCh   chan struct{}
}

// New constructs the task manager bound to a parent context; cancelling
// parent (or calling Shutdown) stops every registered task.
func New(parent context.Context, logger zerolog.Logger) *Manager {
	ctx, cancel := context.WithCancel(parent)
	m := &Manager{
		cron:         cron.New(),
		logger:       logger,
		ctx:          ctx,
		cancel:       cancel,
		tasks:        make(map[string]*registeredTask),
		warmupDoneCh: make(chan struct{}),
	}
	m.cron.Start()
	go func() {
		<-ctx.Done()
		<-m.cron.Stop().Done()
	}()
	return m
}

// Register schedules handler to run immediately, then every interval.
func (m *Manager) Register(name string, interval time.Duration, handler Handler) {
	m.register(name, interval, handler, false)
}

// StartAfterWarmup schedules handler the same way as Register, but the
// first (and therefore every subsequent) invocation blocks until
// SignalWarmupDone has been called.
func (m *Manager) StartAfterWarmup(name string, interval time.Duration, handler Handler) {
	m.register(name, interval, handler, true)
}

func (m *Manager) register(name string, interval time.Duration, handler Handler, waitsWarmup bool) {
	rt := &registeredTask{name: name, cadence: interval, handler: handler, waitsWarmup: waitsWarmup}

	m.mu.Lock()
	m.tasks[name] = rt
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()

		if waitsWarmup {
			select {
			case <-m.warmupDoneCh:
			case <-m.ctx.Done():
				return
			}
		}

		m.runOnce(rt)

		if m.ctx.Err() != nil {
			return
		}
		_, _ = m.cron.AddFunc(fmt.Sprintf("@every %s", interval), func() {
			if m.ctx.Err() == nil {
				m.runOnce(rt)
			}
		})
	}()
}

func (m *Manager) runOnce(rt *registeredTask) {
	defer func() {
		if r := recover(); r != nil {
			rt.mu.Lock()
			rt.lastError = fmt.Sprintf("panic: %v", r)
			rt.mu.Unlock()
			m.logger.Error().Str("task", rt.name).Interface("panic", r).Msg("background task panicked")
		}
	}()

	err := rt.handler(m.ctx)

	rt.mu.Lock()
	rt.lastRun = time.Now()
	rt.runCount++
	if err != nil {
		rt.lastError = err.Error()
	} else {
		rt.lastError = ""
	}
	rt.mu.Unlock()

	if err != nil {
		m.logger.Warn().Err(err).Str("task", rt.name).Msg("background task returned an error")
	}
}

// SignalWarmupDone unblocks every StartAfterWarmup task. Only the first
// call has an effect; later calls are no-ops.
func (m *Manager) SignalWarmupDone() {
	m.warmupDoneOnce.Do(func() { close(m.warmupDoneCh) })
}

// GetStatus reports every registered task's last-run state.
func (m *Manager) GetStatus() []domain.TaskStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]domain.TaskStatus, 0, len(m.tasks))
	for _, rt := range m.tasks {
		rt.mu.Lock()
		out = append(out, domain.TaskStatus{
			Name:        rt.name,
			Cadence:     rt.cadence,
			LastRun:     rt.lastRun,
			LastError:   rt.lastError,
			RunCount:    rt.runCount,
			WaitsWarmup: rt.waitsWarmup,
		})
		rt.mu.Unlock()
	}
	return out
}

// Shutdown cancels every background task and waits for them to exit.
func (m *Manager) Shutdown() {
	m.cancel()
	m.wg.Wait()
}
