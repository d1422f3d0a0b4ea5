// Package dbx provides a dialect-portable connection pool to the gateway
// database (PostgreSQL or MySQL) plus typed-row scanning helpers.
package dbx

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/zerolog"

	"github.com/newapi-sidecar/sidecar/internal/config"
)

// Manager wraps the gateway SQL connection and exposes dialect-aware helpers.
type Manager struct {
	DB     *sql.DB
	IsPG   bool
	logger zerolog.Logger
}

// New opens the gateway database connection using the configured dialect.
func New(cfg config.DatabaseConfig, logger zerolog.Logger) (*Manager, error) {
	driver := "pgx"
	if cfg.Engine == config.EngineMySQL {
		driver = "mysql"
	}

	db, err := sql.Open(driver, cfg.DSN)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info().
		Str("engine", string(cfg.Engine)).
		Str("dsn", maskDSN(cfg.DSN)).
		Int("max_open_conns", cfg.MaxOpenConns).
		Msg("Connected to gateway database")

	return &Manager{
		DB:     db,
		IsPG:   cfg.Engine != config.EngineMySQL,
		logger: logger,
	}, nil
}

// Close closes the underlying connection pool.
func (m *Manager) Close() error {
	return m.DB.Close()
}

// Health reports whether the gateway database is reachable.
func (m *Manager) Health() bool {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	return m.DB.PingContext(ctx) == nil
}

// Ready mirrors Health for the HealthChecker interface.
func (m *Manager) Ready() bool { return m.Health() }

// Engine returns the human-readable dialect name used by the health endpoint.
func (m *Manager) Engine() string {
	if m.IsPG {
		return "postgresql"
	}
	return "mysql"
}

// RebindQuery rewrites "?" placeholders to "$1,$2,..." when the dialect is
// Postgres; otherwise it is the identity function.
func (m *Manager) RebindQuery(query string) string {
	if !m.IsPG {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Placeholder returns the dialect-specific placeholder for position i (1-based).
func (m *Manager) Placeholder(i int) string {
	if m.IsPG {
		return fmt.Sprintf("$%d", i)
	}
	return "?"
}

// BuildPlaceholders returns n comma-joined placeholders starting at startIdx
// (1-based, only meaningful for Postgres) — used for dialect-correct IN (...) lists.
func BuildPlaceholders(isPG bool, n, startIdx int) string {
	parts := make([]string, n)
	for i := 0; i < n; i++ {
		if isPG {
			parts[i] = fmt.Sprintf("$%d", startIdx+i)
		} else {
			parts[i] = "?"
		}
	}
	return strings.Join(parts, ", ")
}

// Quote returns the dialect-specific identifier quoting for reserved words
// such as "group".
func (m *Manager) Quote(ident string) string {
	if m.IsPG {
		return `"` + ident + `"`
	}
	return "`" + ident + "`"
}

// Query runs a query and returns each row as a column-name keyed mapping.
func (m *Manager) Query(ctx context.Context, query string, args ...any) ([]Row, error) {
	rows, err := m.DB.QueryContext(ctx, m.RebindQuery(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRows(rows)
}

// QueryWithTimeout runs Query bounded by the given timeout.
func (m *Manager) QueryWithTimeout(ctx context.Context, timeout time.Duration, query string, args ...any) ([]Row, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return m.Query(ctx, query, args...)
}

// QueryOne returns the first row, or (nil, nil) if the result set is empty.
func (m *Manager) QueryOne(ctx context.Context, query string, args ...any) (Row, error) {
	rows, err := m.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

// Execute runs a statement and returns the number of affected rows.
func (m *Manager) Execute(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := m.DB.ExecContext(ctx, m.RebindQuery(query), args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// WithTx runs fn inside a transaction, committing on a nil return and
// rolling back otherwise. Statements run through tx must still go through
// m.RebindQuery for Postgres placeholder rewriting.
func (m *Manager) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := m.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// TableExists probes information_schema/pg_tables for table presence.
func (m *Manager) TableExists(ctx context.Context, name string) (bool, error) {
	var query string
	var args []any
	if m.IsPG {
		query = `SELECT 1 FROM pg_tables WHERE schemaname = current_schema() AND tablename = $1`
		args = []any{name}
	} else {
		query = `SELECT 1 FROM information_schema.tables WHERE table_schema = DATABASE() AND table_name = ?`
		args = []any{name}
	}
	row, err := m.QueryOne(ctx, query, args...)
	if err != nil {
		return false, err
	}
	return row != nil, nil
}

func scanRows(rows *sql.Rows) ([]Row, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out []Row
	for rows.Next() {
		raw := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(Row, len(cols))
		for i, c := range cols {
			row[c] = NewValue(raw[i])
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func maskDSN(dsn string) string {
	if len(dsn) > 24 {
		return dsn[:24] + "..."
	}
	return dsn
}
