package query

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/newapi-sidecar/sidecar/internal/cachex"
	"github.com/newapi-sidecar/sidecar/internal/config"
	"github.com/newapi-sidecar/sidecar/internal/dbx"
	"github.com/newapi-sidecar/sidecar/internal/geoip"
)

// newTestEngine builds an Engine backed by an on-disk sqlite database
// standing in for the gateway DB (Postgres/MySQL in production), and a
// cache manager degraded to in-process + local SQLite mirror (no Redis).
// Bucket-grouping SQL uses FLOOR(), supported by sqlite's math functions.
func newTestEngine(t *testing.T) (*Engine, *dbx.Manager) {
	t.Helper()

	gatewayPath := filepath.Join(t.TempDir(), "gateway.db")
	rawDB, err := sql.Open("sqlite", gatewayPath)
	require.NoError(t, err)
	rawDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = rawDB.Close() })

	schema := []string{
		`CREATE TABLE logs (
			id INTEGER PRIMARY KEY,
			user_id INTEGER, username TEXT, token_id INTEGER, token_name TEXT,
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

	e := &Engine{
		db:     db,
		cache:  cache,
		geo:    geo,
		tz:     time.UTC,
		logger: zerolog.Nop(),
	}
	return e, db
}

func insertLog(t *testing.T, db *dbx.Manager, userID int64, typ int, quota int64, ip string, createdAt int64, model string) {
	t.Helper()
	_, err := db.Execute(context.Background(), `
		INSERT INTO logs (user_id, username, token_id, channel_id, model_name, type, prompt_tokens, completion_tokens, quota, use_time, ip, created_at)
		VALUES (?, '', 1, 1, ?, ?, 0, 1, ?, 10, ?, ?)`,
		userID, model, typ, quota, ip, createdAt)
	require.NoError(t, err)
}

func insertUser(t *testing.T, db *dbx.Manager, id int64, username string) {
	t.Helper()
	_, err := db.Execute(context.Background(), `INSERT INTO users (id, username, status) VALUES (?, ?, 1)`, id, username)
	require.NoError(t, err)
}
