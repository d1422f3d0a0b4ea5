package query

import (
	"context"
	"time"
)

// AffiliatedGroup is one inviter whose invited-user count meets the threshold.
type AffiliatedGroup struct {
	InviterID int64 `json:"inviter_id"`
	Invited   int64 `json:"invited_count"`
}

// AffiliatedAccounts groups users by inviter_id, keeping inviters with at
// least minInvited invited accounts (spec.md §4.3.13).
func (e *Engine) AffiliatedAccounts(ctx context.Context, minInvited int, limit int) ([]AffiliatedGroup, error) {
	rows, err := e.db.Query(ctx, `
		SELECT inviter_id, COUNT(*) AS invited
		FROM users
		WHERE inviter_id IS NOT NULL AND inviter_id != 0 AND deleted_at IS NULL
		GROUP BY inviter_id
		HAVING COUNT(*) >= ?
		ORDER BY invited DESC
		LIMIT ?`, minInvited, limit)
	if err != nil {
		return nil, err
	}
	out := make([]AffiliatedGroup, 0, len(rows))
	for _, row := range rows {
		out = append(out, AffiliatedGroup{
			InviterID: row["inviter_id"].Int64(),
			Invited:   row["invited"].Int64(),
		})
	}
	return out, nil
}

// SameIPRegistration is one IP address shared by several user registrations.
type SameIPRegistration struct {
	IP    string `json:"ip"`
	Users int64  `json:"user_count"`
}

// SameIPRegistrations finds the first-seen IP per user in window, then
// groups IPs shared by at least minUsers distinct users.
func (e *Engine) SameIPRegistrations(ctx context.Context, window string, minUsers int, limit int) ([]SameIPRegistration, error) {
	dur, err := ResolveWindow(window)
	if err != nil {
		return nil, err
	}
	start := time.Now().Add(-dur).Unix()

	rows, err := e.db.Query(ctx, `
		SELECT ip, COUNT(DISTINCT user_id) AS user_count FROM (
			SELECT l.user_id AS user_id, l.ip AS ip
			FROM logs l
			INNER JOIN (
				SELECT user_id, MIN(created_at) AS first_at FROM logs
				WHERE created_at >= ?
				GROUP BY user_id
			) fm ON fm.user_id = l.user_id AND fm.first_at = l.created_at
		) first_seen
		GROUP BY ip
		HAVING COUNT(DISTINCT user_id) >= ?
		ORDER BY user_count DESC
		LIMIT ?`, start, minUsers, limit)
	if err != nil {
		return nil, err
	}
	out := make([]SameIPRegistration, 0, len(rows))
	for _, row := range rows {
		out = append(out, SameIPRegistration{
			IP:    row["ip"].String(),
			Users: row["user_count"].Int64(),
		})
	}
	return out, nil
}
