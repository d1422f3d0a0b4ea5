package risk

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newapi-sidecar/sidecar/internal/dbx"
)

func newTestLocal(t *testing.T) *dbx.Local {
	t.Helper()
	local, err := dbx.OpenLocal(filepath.Join(t.TempDir(), "local.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = local.Close() })
	return local
}

func newTestGateway(t *testing.T) *dbx.Manager {
	t.Helper()
	rawDB, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "gateway.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = rawDB.Close() })
	_, err = rawDB.Exec(`CREATE TABLE users (id INTEGER PRIMARY KEY, username TEXT)`)
	require.NoError(t, err)
	return &dbx.Manager{DB: rawDB, IsPG: false}
}

func TestWhitelistAddAndIsWhitelisted(t *testing.T) {
	w := NewWhitelist(newTestLocal(t))
	ctx := context.Background()

	whitelisted, err := w.IsWhitelisted(ctx, 1)
	require.NoError(t, err)
	assert.False(t, whitelisted)

	require.NoError(t, w.Add(ctx, 1, "trusted partner", "admin", nil))
	whitelisted, err = w.IsWhitelisted(ctx, 1)
	require.NoError(t, err)
	assert.True(t, whitelisted)
}

func TestWhitelistExpiredEntryNotWhitelisted(t *testing.T) {
	w := NewWhitelist(newTestLocal(t))
	ctx := context.Background()
	past := time.Now().Add(-time.Hour)
	require.NoError(t, w.Add(ctx, 1, "temp", "admin", &past))

	whitelisted, err := w.IsWhitelisted(ctx, 1)
	require.NoError(t, err)
	assert.False(t, whitelisted)
}

func TestWhitelistRemove(t *testing.T) {
	w := NewWhitelist(newTestLocal(t))
	ctx := context.Background()
	require.NoError(t, w.Add(ctx, 1, "trusted", "admin", nil))
	require.NoError(t, w.Remove(ctx, 1))

	whitelisted, err := w.IsWhitelisted(ctx, 1)
	require.NoError(t, err)
	assert.False(t, whitelisted)
}

func TestWhitelistSearchByUserIDAndUsername(t *testing.T) {
	local := newTestLocal(t)
	gw := newTestGateway(t)
	w := NewWhitelist(local)
	ctx := context.Background()

	_, err := gw.DB.ExecContext(ctx, `INSERT INTO users (id, username) VALUES (1, 'alice')`)
	require.NoError(t, err)
	require.NoError(t, w.Add(ctx, 1, "trusted", "admin", nil))

	results, err := w.Search(ctx, gw, "alice")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, int64(1), results[0].UserID)

	results, err = w.Search(ctx, gw, "1")
	require.NoError(t, err)
	require.Len(t, results, 1)

	results, err = w.Search(ctx, gw, "nope")
	require.NoError(t, err)
	assert.Empty(t, results)
}
