package dbx

import (
	"context"
	"database/sql"
	"time"
)

// GetConfig reads one admin-set option from the local config table.
func (l *Local) GetConfig(ctx context.Context, key string) (string, bool, error) {
	row := l.DB.QueryRowContext(ctx, `SELECT value FROM config WHERE key = ?`, key)
	var value string
	if err := row.Scan(&value); err != nil {
		if err == sql.ErrNoRows {
			return "", false, nil
		}
		return "", false, err
	}
	return value, true, nil
}

// SetConfig upserts one admin-set option into the local config table.
func (l *Local) SetConfig(ctx context.Context, key, value string) error {
	_, err := l.DB.ExecContext(ctx, `
		INSERT INTO config (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().Unix())
	return err
}

// GetState reads one analytics_state watermark (last_log_id, last_processed_at, total_processed).
func (l *Local) GetState(ctx context.Context, key string) (int64, bool, error) {
	row := l.DB.QueryRowContext(ctx, `SELECT value FROM analytics_state WHERE key = ?`, key)
	var value int64
	if err := row.Scan(&value); err != nil {
		if err == sql.ErrNoRows {
			return 0, false, nil
		}
		return 0, false, err
	}
	return value, true, nil
}

// SetState upserts one analytics_state watermark.
func (l *Local) SetState(ctx context.Context, key string, value int64) error {
	_, err := l.DB.ExecContext(ctx, `
		INSERT INTO analytics_state (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().Unix())
	return err
}

// GetMeta reads one analytics_meta initial-sync cutoff marker.
func (l *Local) GetMeta(ctx context.Context, key string) (int64, bool, error) {
	row := l.DB.QueryRowContext(ctx, `SELECT value FROM analytics_meta WHERE key = ?`, key)
	var value int64
	if err := row.Scan(&value); err != nil {
		if err == sql.ErrNoRows {
			return 0, false, nil
		}
		return 0, false, err
	}
	return value, true, nil
}

// SetMeta upserts one analytics_meta cutoff marker.
func (l *Local) SetMeta(ctx context.Context, key string, value int64) error {
	_, err := l.DB.ExecContext(ctx, `
		INSERT INTO analytics_meta (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().Unix())
	return err
}

// GetAIBanConfig reads one persisted AI-ban setting (JSON-encoded).
func (l *Local) GetAIBanConfig(ctx context.Context, key string) (string, bool, error) {
	row := l.DB.QueryRowContext(ctx, `SELECT value FROM aiban_config WHERE key = ?`, key)
	var value string
	if err := row.Scan(&value); err != nil {
		if err == sql.ErrNoRows {
			return "", false, nil
		}
		return "", false, err
	}
	return value, true, nil
}

// SetAIBanConfig upserts one persisted AI-ban setting.
func (l *Local) SetAIBanConfig(ctx context.Context, key, value string) error {
	_, err := l.DB.ExecContext(ctx, `
		INSERT INTO aiban_config (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value)
	return err
}
