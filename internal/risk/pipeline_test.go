package risk

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
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
	"github.com/newapi-sidecar/sidecar/internal/query"
)

func newTestPipelineDeps(t *testing.T) (*dbx.Manager, *query.Engine, *Whitelist, *AuditLogger) {
	t.Helper()

	rawDB, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "gateway.db"))
	require.NoError(t, err)
	rawDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = rawDB.Close() })

	schema := []string{
		`CREATE TABLE logs (
			id INTEGER PRIMARY KEY, user_id INTEGER, username TEXT, token_id INTEGER,
			model_name TEXT, type INTEGER, prompt_tokens INTEGER, completion_tokens INTEGER,
			quota INTEGER, use_time INTEGER, ip TEXT, created_at INTEGER
		)`,
		`CREATE TABLE users (id INTEGER PRIMARY KEY, username TEXT, status INTEGER)`,
	}
	for _, stmt := range schema {
		_, err := rawDB.Exec(stmt)
		require.NoError(t, err)
	}

	db := &dbx.Manager{DB: rawDB, IsPG: false}

	local := newTestLocal(t)
	cache := cachex.New(config.RedisConfig{}, local, zerolog.Nop())
	geo := geoip.New(config.GeoIPConfig{}, zerolog.Nop())

	engine, err := query.New(context.Background(), db, cache, geo, time.UTC, zerolog.Nop())
	require.NoError(t, err)

	return db, engine, NewWhitelist(local), NewAuditLogger(local)
}

func TestPipelineScanDisabledIsNoop(t *testing.T) {
	db, engine, wl, audit := newTestPipelineDeps(t)
	p := NewPipeline(db, engine, wl, audit, nil, zerolog.Nop(), false, false)

	result, err := p.Scan(context.Background(), []int64{1}, 3600)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Scanned)
}

func insertManyFailuresAcrossIPs(t *testing.T, db *dbx.Manager, userID int64, username string) {
	t.Helper()
	now := time.Now().Unix()
	for i := 0; i < 40; i++ {
		ip := fmt.Sprintf("10.0.%d.1", i%15) // 15 distinct IPs, well over MANY_IPS threshold
		_, err := db.Execute(context.Background(),
			`INSERT INTO logs (user_id, username, token_id, model_name, type, quota, ip, created_at) VALUES (?, ?, 1, 'gpt-4', 5, 0, ?, ?)`,
			userID, username, ip, now-int64(i))
		require.NoError(t, err)
	}
}

func TestPipelineScanFlagsAndBansHighRiskUser(t *testing.T) {
	db, engine, wl, audit := newTestPipelineDeps(t)
	p := NewPipeline(db, engine, wl, audit, nil, zerolog.Nop(), true, false)

	_, err := db.Execute(context.Background(), `INSERT INTO users (id, username, status) VALUES (1, 'bad-actor', 1)`)
	require.NoError(t, err)
	insertManyFailuresAcrossIPs(t, db, 1, "bad-actor")

	// windowSeconds=60 so the 40 requests crammed into the last 40s also trip HIGH_RPM.
	result, err := p.Scan(context.Background(), []int64{1}, 60)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Scanned)
	assert.Equal(t, 1, result.Flagged)
	assert.Equal(t, 1, result.Banned)

	row, err := db.QueryOne(context.Background(), `SELECT status FROM users WHERE id = ?`, int64(1))
	require.NoError(t, err)
	assert.Equal(t, int64(bannedStatus), row["status"].Int64())

	entries, err := audit.List(context.Background(), "banned", 10, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, int64(1), entries[0].UserID)
}

func TestPipelineScanDryRunDoesNotBan(t *testing.T) {
	db, engine, wl, audit := newTestPipelineDeps(t)
	p := NewPipeline(db, engine, wl, audit, nil, zerolog.Nop(), true, true)

	_, err := db.Execute(context.Background(), `INSERT INTO users (id, username, status) VALUES (1, 'bad-actor', 1)`)
	require.NoError(t, err)
	insertManyFailuresAcrossIPs(t, db, 1, "bad-actor")

	result, err := p.Scan(context.Background(), []int64{1}, 60)
	require.NoError(t, err)
	assert.Equal(t, 1, result.WouldBan)
	assert.Equal(t, 0, result.Banned)

	row, err := db.QueryOne(context.Background(), `SELECT status FROM users WHERE id = ?`, int64(1))
	require.NoError(t, err)
	assert.Equal(t, int64(1), row["status"].Int64())
}

func TestPipelineScanSkipsWhitelistedUser(t *testing.T) {
	db, engine, wl, audit := newTestPipelineDeps(t)
	p := NewPipeline(db, engine, wl, audit, nil, zerolog.Nop(), true, false)

	_, err := db.Execute(context.Background(), `INSERT INTO users (id, username, status) VALUES (1, 'alice', 1)`)
	require.NoError(t, err)
	require.NoError(t, wl.Add(context.Background(), 1, "known partner", "admin", nil))
	insertManyFailuresAcrossIPs(t, db, 1, "alice")

	result, err := p.Scan(context.Background(), []int64{1}, 60)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Flagged)
	assert.Equal(t, 0, result.Banned)
}

func TestPipelineBanIsIdempotent(t *testing.T) {
	db, engine, wl, audit := newTestPipelineDeps(t)
	p := NewPipeline(db, engine, wl, audit, nil, zerolog.Nop(), true, false)

	_, err := db.Execute(context.Background(), `INSERT INTO users (id, username, status) VALUES (1, 'alice', 1)`)
	require.NoError(t, err)

	require.NoError(t, p.Ban(context.Background(), 1, "manual", "admin"))
	require.NoError(t, p.Ban(context.Background(), 1, "manual", "admin"))

	row, err := db.QueryOne(context.Background(), `SELECT status FROM users WHERE id = ?`, int64(1))
	require.NoError(t, err)
	assert.Equal(t, int64(bannedStatus), row["status"].Int64())
}

func TestPipelineUnban(t *testing.T) {
	db, engine, wl, audit := newTestPipelineDeps(t)
	p := NewPipeline(db, engine, wl, audit, nil, zerolog.Nop(), true, false)

	_, err := db.Execute(context.Background(), `INSERT INTO users (id, username, status) VALUES (1, 'alice', ?)`, bannedStatus)
	require.NoError(t, err)

	require.NoError(t, p.Unban(context.Background(), 1))

	row, err := db.QueryOne(context.Background(), `SELECT status FROM users WHERE id = ?`, int64(1))
	require.NoError(t, err)
	assert.Equal(t, int64(1), row["status"].Int64())
}

func TestPipelineTestConnectionWithoutAIClient(t *testing.T) {
	db, engine, wl, audit := newTestPipelineDeps(t)
	p := NewPipeline(db, engine, wl, audit, nil, zerolog.Nop(), true, false)

	err := p.TestConnection(context.Background())
	assert.Error(t, err)
}
