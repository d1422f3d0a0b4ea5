package cachex

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newapi-sidecar/sidecar/internal/config"
	"github.com/newapi-sidecar/sidecar/internal/dbx"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	local, err := dbx.OpenLocal(filepath.Join(t.TempDir(), "local.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = local.Close() })
	return New(config.RedisConfig{}, local, zerolog.Nop())
}

func TestSetGetRoundTrip(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "dashboard:overview:7d", "payload", time.Minute))

	val, found, err := m.Get(ctx, "dashboard:overview:7d")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "payload", val)
}

func TestGetMissingKey(t *testing.T) {
	m := newTestManager(t)
	_, found, err := m.Get(context.Background(), "does:not:exist")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestSetJSONGetJSON(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	type payload struct {
		Count int `json:"count"`
	}
	require.NoError(t, m.SetJSON(ctx, "analytics:x", payload{Count: 42}, time.Minute))

	var out payload
	found, err := m.GetJSON(ctx, "analytics:x", &out)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 42, out.Count)
}

func TestDurablePrefixSurvivesRestoreFromSQLite(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "local.db")

	local, err := dbx.OpenLocal(dbPath, zerolog.Nop())
	require.NoError(t, err)
	m := New(config.RedisConfig{}, local, zerolog.Nop())

	require.NoError(t, m.Set(ctx, "model_status:gpt-4:1h", "cached-value", time.Hour))
	require.NoError(t, local.Close())

	// Simulate a cold restart: fresh manager, same SQLite file.
	local2, err := dbx.OpenLocal(dbPath, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = local2.Close() })
	m2 := New(config.RedisConfig{}, local2, zerolog.Nop())

	val, found, err := m2.Get(ctx, "model_status:gpt-4:1h")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "cached-value", val)
}

func TestEphemeralPrefixDoesNotSurviveRestart(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "local.db")

	local, err := dbx.OpenLocal(dbPath, zerolog.Nop())
	require.NoError(t, err)
	m := New(config.RedisConfig{}, local, zerolog.Nop())
	require.NoError(t, m.Set(ctx, "dashboard:overview:7d", "ephemeral-value", time.Hour))
	require.NoError(t, local.Close())

	local2, err := dbx.OpenLocal(dbPath, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = local2.Close() })
	m2 := New(config.RedisConfig{}, local2, zerolog.Nop())

	_, found, err := m2.Get(ctx, "dashboard:overview:7d")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestDeleteRemovesKey(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	require.NoError(t, m.Set(ctx, "app:config:foo", "v", 0))

	require.NoError(t, m.Delete(ctx, "app:config:foo"))
	_, found, err := m.Get(ctx, "app:config:foo")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestDeleteByPrefix(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	require.NoError(t, m.Set(ctx, "risk:leaderboards:1h", "a", time.Minute))
	require.NoError(t, m.Set(ctx, "risk:leaderboards:24h", "b", time.Minute))
	require.NoError(t, m.Set(ctx, "dashboard:overview:7d", "c", time.Minute))

	count, err := m.DeleteByPrefix(ctx, "risk:")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	_, found, _ := m.Get(ctx, "risk:leaderboards:1h")
	assert.False(t, found)
	_, found, _ = m.Get(ctx, "dashboard:overview:7d")
	assert.True(t, found)
}

func TestHashOperations(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.HashSet(ctx, "model_status:selected", "gpt-4", "1"))
	require.NoError(t, m.HashSet(ctx, "model_status:selected", "gpt-3.5", "1"))

	val, found, err := m.HashGet(ctx, "model_status:selected", "gpt-4")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "1", val)

	all, err := m.GetAllHashFields(ctx, "model_status:selected")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	require.NoError(t, m.HashDelete(ctx, "model_status:selected", "gpt-4"))
	_, found, err = m.HashGet(ctx, "model_status:selected", "gpt-4")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestExpiredKeyNotReturned(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	require.NoError(t, m.Set(ctx, "dashboard:x", "v", time.Nanosecond))
	time.Sleep(10 * time.Millisecond)

	_, found, err := m.Get(ctx, "dashboard:x")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestCleanupExpired(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	require.NoError(t, m.Set(ctx, "app:config:a", "v", time.Nanosecond))
	time.Sleep(10 * time.Millisecond)

	n, err := m.CleanupExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestGetStatsReportsRedisDown(t *testing.T) {
	m := newTestManager(t)
	stats := m.GetStats()
	assert.False(t, stats.RedisUp)
}
