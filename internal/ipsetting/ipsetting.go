// Package ipsetting enforces the gateway's per-user "record_ip_log" flag,
// a JSON field inside the users.setting blob, without requiring a schema
// migration on the gateway's own database (spec.md §4.7, task "ip_recording_enforce").
package ipsetting

import (
	"context"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/newapi-sidecar/sidecar/internal/dbx"
)

const recordIPLogField = "record_ip_log"

// EnforceAll walks every user row with a non-empty setting blob that does
// not already have record_ip_log=true, flips it on, and writes the row back.
// Rows whose setting is NULL or empty are left unchanged. It returns the
// number of rows updated.
func EnforceAll(ctx context.Context, db *dbx.Manager) (int, error) {
	rows, err := db.Query(ctx, `SELECT id, setting FROM users WHERE setting IS NOT NULL AND setting != ''`)
	if err != nil {
		return 0, err
	}

	updated := 0
	for _, row := range rows {
		id := row["id"].Int64()
		raw := row["setting"].String()
		if raw == "" {
			continue
		}
		if gjson.Get(raw, recordIPLogField).Bool() {
			continue
		}
		next, err := sjson.Set(raw, recordIPLogField, true)
		if err != nil {
			continue
		}
		if _, err := db.Execute(ctx, `UPDATE users SET setting = ? WHERE id = ?`, next, id); err != nil {
			return updated, err
		}
		updated++
	}
	return updated, nil
}
