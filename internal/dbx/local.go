package dbx

import (
	"context"
	"database/sql"
	"time"

	_ "modernc.org/sqlite"

	"github.com/rs/zerolog"
)

// Local wraps the side-car's own durable SQLite store (config, cache
// mirror, analytics watermarks, AI-ban state — §3.2).
type Local struct {
	DB     *sql.DB
	logger zerolog.Logger
}

// OpenLocal opens (and creates if absent) the local SQLite database file.
func OpenLocal(path string, logger zerolog.Logger) (*Local, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1) // modernc's sqlite driver is not safe for concurrent writers

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	l := &Local{DB: db, logger: logger}
	if err := l.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return l, nil
}

// Close closes the local database handle.
func (l *Local) Close() error { return l.DB.Close() }

// localSchema is the fixed, idempotent DDL list for side-car-owned tables.
// Unlike the gateway's own schema this has no external consumers to track
// across releases, so a plain ordered list of CREATE TABLE IF NOT EXISTS
// statements replaces the teacher's embedded-file migration runner. The
// whole list runs in order on every boot and is logged once when done.
var localSchema = []string{
	`CREATE TABLE IF NOT EXISTS config (
		key TEXT PRIMARY KEY,
		value TEXT,
		updated_at INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS cache (
		key TEXT PRIMARY KEY,
		value TEXT,
		expire_at INTEGER,
		created_at INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS analytics_state (
		key TEXT PRIMARY KEY,
		value INTEGER,
		updated_at INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS analytics_meta (
		key TEXT PRIMARY KEY,
		value INTEGER,
		updated_at INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS aiban_whitelist (
		user_id INTEGER UNIQUE NOT NULL,
		reason TEXT,
		added_by TEXT,
		expires_at INTEGER,
		created_at INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS aiban_audit_logs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		scan_id TEXT NOT NULL,
		action TEXT NOT NULL,
		user_id INTEGER NOT NULL,
		username TEXT,
		details TEXT,
		operator TEXT,
		risk_score REAL,
		created_at INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS aiban_config (
		key TEXT PRIMARY KEY,
		value TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_cache_expire_at ON cache(expire_at)`,
	`CREATE INDEX IF NOT EXISTS idx_aiban_audit_user ON aiban_audit_logs(user_id)`,
	`CREATE INDEX IF NOT EXISTS idx_aiban_audit_created ON aiban_audit_logs(created_at)`,
}

func (l *Local) migrate(ctx context.Context) error {
	for _, stmt := range localSchema {
		if _, err := l.DB.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	l.logger.Info().Int("statements", len(localSchema)).Msg("Local store schema ready")
	return nil
}
