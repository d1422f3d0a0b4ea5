package risk

import (
	"context"
	"time"

	"github.com/newapi-sidecar/sidecar/internal/dbx"
	"github.com/newapi-sidecar/sidecar/internal/domain"
)

// AuditLogger persists AI-ban scan actions to the local SQLite store.
type AuditLogger struct {
	local *dbx.Local
}

// NewAuditLogger constructs the audit logger.
func NewAuditLogger(local *dbx.Local) *AuditLogger {
	return &AuditLogger{local: local}
}

// Write records one audit row for a scan action.
func (a *AuditLogger) Write(ctx context.Context, entry domain.AIBanAuditLog) error {
	_, err := a.local.DB.ExecContext(ctx, `
		INSERT INTO aiban_audit_logs (scan_id, action, user_id, username, details, operator, risk_score, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ScanID, entry.Action, entry.UserID, entry.Username, entry.Details, entry.Operator, entry.RiskScore, time.Now().Unix())
	return err
}

// List returns audit rows, most recent first, optionally filtered by action.
func (a *AuditLogger) List(ctx context.Context, action string, limit, offset int) ([]domain.AIBanAuditLog, error) {
	query := `SELECT id, scan_id, action, user_id, username, details, operator, risk_score, created_at FROM aiban_audit_logs`
	args := []any{}
	if action != "" {
		query += ` WHERE action = ?`
		args = append(args, action)
	}
	query += ` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := a.local.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.AIBanAuditLog
	for rows.Next() {
		var e domain.AIBanAuditLog
		var createdAt int64
		if err := rows.Scan(&e.ID, &e.ScanID, &e.Action, &e.UserID, &e.Username, &e.Details, &e.Operator, &e.RiskScore, &createdAt); err != nil {
			return nil, err
		}
		e.CreatedAt = time.Unix(createdAt, 0)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Clear deletes every audit row.
func (a *AuditLogger) Clear(ctx context.Context) error {
	_, err := a.local.DB.ExecContext(ctx, `DELETE FROM aiban_audit_logs`)
	return err
}
