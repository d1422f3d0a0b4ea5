package ipsetting

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/newapi-sidecar/sidecar/internal/dbx"
)

func newTestDB(t *testing.T) *dbx.Manager {
	t.Helper()
	rawDB, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "gateway.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = rawDB.Close() })
	_, err = rawDB.Exec(`CREATE TABLE users (id INTEGER PRIMARY KEY, setting TEXT)`)
	require.NoError(t, err)
	return &dbx.Manager{DB: rawDB, IsPG: false}
}

func TestEnforceAllFlipsMissingFlag(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	_, err := db.Execute(ctx, `INSERT INTO users (id, setting) VALUES (1, '{"theme":"dark"}')`)
	require.NoError(t, err)

	updated, err := EnforceAll(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, 1, updated)

	row, err := db.QueryOne(ctx, `SELECT setting FROM users WHERE id = 1`)
	require.NoError(t, err)
	assert.True(t, gjson.Get(row["setting"].String(), recordIPLogField).Bool())
}

func TestEnforceAllSkipsAlreadySet(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	_, err := db.Execute(ctx, `INSERT INTO users (id, setting) VALUES (1, '{"record_ip_log":true}')`)
	require.NoError(t, err)

	updated, err := EnforceAll(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, 0, updated)
}

func TestEnforceAllSkipsEmptySetting(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	_, err := db.Execute(ctx, `INSERT INTO users (id, setting) VALUES (1, NULL)`)
	require.NoError(t, err)
	_, err = db.Execute(ctx, `INSERT INTO users (id, setting) VALUES (2, '')`)
	require.NoError(t, err)

	updated, err := EnforceAll(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, 0, updated)
}
