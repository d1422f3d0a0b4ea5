package dbx

import (
	"context"
	"fmt"
	"time"
)

// IndexSpec describes one documented index this side-car depends on for
// acceptable analytical query latency.
type IndexSpec struct {
	Table   string
	Name    string
	Columns []string
}

// RequiredIndexes lists the indexes the query engine assumes exist on the
// gateway's logs/users tables.
var RequiredIndexes = []IndexSpec{
	{Table: "logs", Name: "idx_logs_created_at", Columns: []string{"created_at"}},
	{Table: "logs", Name: "idx_logs_user_id_created_at", Columns: []string{"user_id", "created_at"}},
	{Table: "logs", Name: "idx_logs_token_id", Columns: []string{"token_id"}},
	{Table: "logs", Name: "idx_logs_model_name", Columns: []string{"model_name"}},
	{Table: "logs", Name: "idx_logs_ip", Columns: []string{"ip"}},
	{Table: "logs", Name: "idx_logs_type_created_at", Columns: []string{"type", "created_at"}},
	{Table: "users", Name: "idx_users_inviter_id", Columns: []string{"inviter_id"}},
	{Table: "users", Name: "idx_users_status", Columns: []string{"status"}},
}

// EnsureIndexes creates any missing indexes from RequiredIndexes, pacing
// between statements to avoid contending with the primary gateway workload.
func (m *Manager) EnsureIndexes(ctx context.Context, inBackground bool, pacing time.Duration) error {
	for _, spec := range RequiredIndexes {
		if !m.IsPG {
			// MySQL (pre-8.0) lacks CREATE INDEX IF NOT EXISTS; probe the
			// catalog first rather than relying on the clause.
			exists, err := m.indexExistsMySQL(ctx, spec.Table, spec.Name)
			if err != nil {
				return err
			}
			if exists {
				continue
			}
		}

		ifNotExists := "IF NOT EXISTS "
		if !m.IsPG {
			ifNotExists = ""
		}
		stmt := fmt.Sprintf("CREATE INDEX %s%s ON %s (%s)",
			ifNotExists, spec.Name, spec.Table, columnList(spec.Columns))
		if _, err := m.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create index %s: %w", spec.Name, err)
		}

		if inBackground && pacing > 0 {
			time.Sleep(pacing)
		}
	}
	return nil
}

func (m *Manager) indexExistsMySQL(ctx context.Context, table, name string) (bool, error) {
	row, err := m.QueryOne(ctx,
		`SELECT 1 FROM information_schema.statistics WHERE table_schema = DATABASE() AND table_name = ? AND index_name = ?`,
		table, name)
	if err != nil {
		return false, err
	}
	return row != nil, nil
}

func columnList(cols []string) string {
	out := cols[0]
	for _, c := range cols[1:] {
		out += ", " + c
	}
	return out
}
