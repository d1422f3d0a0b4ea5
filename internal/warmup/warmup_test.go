package warmup

import (
	"context"
	"database/sql"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newapi-sidecar/sidecar/internal/cachex"
	"github.com/newapi-sidecar/sidecar/internal/config"
	"github.com/newapi-sidecar/sidecar/internal/dbx"
	"github.com/newapi-sidecar/sidecar/internal/geoip"
	"github.com/newapi-sidecar/sidecar/internal/modelstatus"
	"github.com/newapi-sidecar/sidecar/internal/query"
	"github.com/newapi-sidecar/sidecar/internal/task"
)

// newTestOrchestrator wires a real Orchestrator against an empty sqlite
// gateway schema, enough for every phase to run to completion quickly.
func newTestOrchestrator(t *testing.T) *Orchestrator {
	t.Helper()

	rawDB, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "gateway.db"))
	require.NoError(t, err)
	rawDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = rawDB.Close() })

	schema := []string{
		`CREATE TABLE logs (
			id INTEGER PRIMARY KEY, user_id INTEGER, username TEXT, token_id INTEGER, token_name TEXT,
			channel_id INTEGER, channel_name TEXT, model_name TEXT, type INTEGER,
			prompt_tokens INTEGER, completion_tokens INTEGER, quota INTEGER,
			use_time INTEGER, ip TEXT, created_at INTEGER, group_id TEXT
		)`,
		`CREATE TABLE users (
			id INTEGER PRIMARY KEY, username TEXT, display_name TEXT, email TEXT,
			status INTEGER, "group" TEXT, request_count INTEGER, quota INTEGER,
			used_quota INTEGER, inviter_id INTEGER, setting TEXT, linux_do_id TEXT,
			deleted_at INTEGER
		)`,
		`CREATE TABLE channels (id INTEGER PRIMARY KEY, name TEXT, type INTEGER, status INTEGER, priority INTEGER, used_quota INTEGER, balance INTEGER, deleted_at INTEGER)`,
		`CREATE TABLE redemptions (id INTEGER PRIMARY KEY, key TEXT, name TEXT, quota INTEGER, status INTEGER, created_time INTEGER, expired_time INTEGER, deleted_at INTEGER)`,
		`CREATE TABLE tokens (id INTEGER PRIMARY KEY, user_id INTEGER, name TEXT, key TEXT, status INTEGER, remain_quota INTEGER, unlimited_quota INTEGER, model_limits TEXT, allow_ips TEXT, "group" TEXT, created_time INTEGER, expired_time INTEGER, deleted_at INTEGER)`,
		`CREATE TABLE abilities (channel_id INTEGER, model TEXT)`,
	}
	for _, stmt := range schema {
		_, err := rawDB.Exec(stmt)
		require.NoError(t, err)
	}

	db := &dbx.Manager{DB: rawDB, IsPG: false}

	local, err := dbx.OpenLocal(filepath.Join(t.TempDir(), "local.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = local.Close() })
	cache := cachex.New(config.RedisConfig{}, local, zerolog.Nop())
	geo := geoip.New(config.GeoIPConfig{}, zerolog.Nop())

	engine, err := query.New(context.Background(), db, cache, geo, time.UTC, zerolog.Nop())
	require.NoError(t, err)

	models := modelstatus.New(db, cache)
	scale := NewScaleDetector(db)

	return New(db, cache, engine, models, scale, zerolog.Nop())
}

func TestNewOrchestratorStartsPending(t *testing.T) {
	o := newTestOrchestrator(t)
	status, steps := o.Status()
	assert.Equal(t, "pending", status.Status)
	assert.False(t, status.Done)
	assert.Len(t, steps, 8)
	for _, s := range steps {
		assert.Equal(t, "pending", s.Status)
	}
}

func TestRunCompletesWithReadyStatus(t *testing.T) {
	o := newTestOrchestrator(t)
	o.Run(context.Background())

	status, steps := o.Status()
	assert.Equal(t, "ready", status.Status)
	assert.Equal(t, 100, status.Progress)
	assert.True(t, status.Done)
	require.NotNil(t, status.CompletedAt)
	assert.Len(t, steps, 8)
	for _, s := range steps {
		assert.Contains(t, []string{"done", "error"}, s.Status)
	}
}

func TestRunClosesDoneChannel(t *testing.T) {
	o := newTestOrchestrator(t)

	select {
	case <-o.DoneCh():
		t.Fatal("DoneCh closed before Run")
	default:
	}

	o.Run(context.Background())

	select {
	case <-o.DoneCh():
	default:
		t.Fatal("DoneCh not closed after Run completes")
	}
}

func TestRunIsIdempotentAndResetsSteps(t *testing.T) {
	o := newTestOrchestrator(t)
	o.Run(context.Background())
	o.Run(context.Background())

	status, steps := o.Status()
	assert.Equal(t, "ready", status.Status)
	assert.Equal(t, 100, status.Progress)
	assert.Len(t, steps, 8)
}

// TestStartAfterWarmupGatingViaOrchestratorDone exercises testable property
// 8: a task registered with StartAfterWarmup never runs before the
// orchestrator's DoneCh closes, wired the same way cmd/sidecar/main.go
// connects the two (spec.md §5, §4.7).
func TestStartAfterWarmupGatingViaOrchestratorDone(t *testing.T) {
	o := newTestOrchestrator(t)
	tasks := task.New(context.Background(), zerolog.Nop())
	defer tasks.Shutdown()

	go func() {
		<-o.DoneCh()
		tasks.SignalWarmupDone()
	}()

	var ran int32
	tasks.StartAfterWarmup("gated", time.Hour, func(ctx context.Context) error {
		atomic.StoreInt32(&ran, 1)
		return nil
	})

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(0), atomic.LoadInt32(&ran), "gated task must not run before warmup signals done")

	o.Run(context.Background())

	require.Eventually(t, func() bool { return atomic.LoadInt32(&ran) == 1 }, time.Second, 5*time.Millisecond)
}

func TestProgressMonotonicAcrossPhases(t *testing.T) {
	o := newTestOrchestrator(t)
	o.Run(context.Background())

	_, steps := o.Status()
	last := 0
	for _, s := range steps {
		assert.GreaterOrEqual(t, s.Progress, last)
		last = s.Progress
	}
	assert.Equal(t, 100, last)
}
