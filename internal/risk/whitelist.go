package risk

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/newapi-sidecar/sidecar/internal/dbx"
	"github.com/newapi-sidecar/sidecar/internal/domain"
)

// Whitelist persists AI-ban exemptions in the local SQLite store.
type Whitelist struct {
	local *dbx.Local
}

// NewWhitelist constructs the whitelist collaborator.
func NewWhitelist(local *dbx.Local) *Whitelist {
	return &Whitelist{local: local}
}

// Add exempts a user from scanning, optionally until expiresAt.
func (w *Whitelist) Add(ctx context.Context, userID int64, reason, addedBy string, expiresAt *time.Time) error {
	var exp *int64
	if expiresAt != nil {
		t := expiresAt.Unix()
		exp = &t
	}
	_, err := w.local.DB.ExecContext(ctx, `
		INSERT INTO aiban_whitelist (user_id, reason, added_by, expires_at, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET reason = excluded.reason, added_by = excluded.added_by, expires_at = excluded.expires_at`,
		userID, reason, addedBy, exp, time.Now().Unix())
	return err
}

// Remove drops a user's whitelist entry.
func (w *Whitelist) Remove(ctx context.Context, userID int64) error {
	_, err := w.local.DB.ExecContext(ctx, `DELETE FROM aiban_whitelist WHERE user_id = ?`, userID)
	return err
}

// IsWhitelisted reports whether userID currently has an unexpired entry.
func (w *Whitelist) IsWhitelisted(ctx context.Context, userID int64) (bool, error) {
	row := w.local.DB.QueryRowContext(ctx,
		`SELECT expires_at FROM aiban_whitelist WHERE user_id = ?`, userID)
	var expiresAt *int64
	if err := row.Scan(&expiresAt); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, err
	}
	if expiresAt != nil && *expiresAt <= time.Now().Unix() {
		return false, nil
	}
	return true, nil
}

// Search matches entries by user_id (exact) or joined username LIKE.
func (w *Whitelist) Search(ctx context.Context, gw *dbx.Manager, keyword string) ([]domain.AIBanWhitelistEntry, error) {
	rows, err := w.local.DB.QueryContext(ctx,
		`SELECT user_id, reason, added_by, expires_at, created_at FROM aiban_whitelist ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.AIBanWhitelistEntry
	for rows.Next() {
		var e domain.AIBanWhitelistEntry
		var expiresAt *int64
		var createdAt int64
		if err := rows.Scan(&e.UserID, &e.Reason, &e.AddedBy, &expiresAt, &createdAt); err != nil {
			return nil, err
		}
		e.CreatedAt = time.Unix(createdAt, 0)
		if expiresAt != nil {
			t := time.Unix(*expiresAt, 0)
			e.ExpiresAt = &t
		}

		if keyword == "" {
			out = append(out, e)
			continue
		}

		matched := fmt.Sprintf("%d", e.UserID) == keyword
		if !matched {
			userRow, err := gw.QueryOne(ctx, `SELECT username FROM users WHERE id = ?`, e.UserID)
			if err == nil && userRow != nil {
				matched = strings.Contains(strings.ToLower(userRow["username"].String()), strings.ToLower(keyword))
			}
		}
		if matched {
			out = append(out, e)
		}
	}
	return out, rows.Err()
}
