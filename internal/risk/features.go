// Package risk implements the AI-ban scan pipeline: feature extraction,
// local rule-based scoring, an optional AI verdict, whitelist, and audit
// logging (spec.md §4.5). Grounded on the teacher's prompt-injection
// detector's policy/rule shape, retargeted from request-time text scanning
// to periodic user-level scoring.
package risk

import (
	"context"
	"time"

	"github.com/newapi-sidecar/sidecar/internal/dbx"
	"github.com/newapi-sidecar/sidecar/internal/query"
)

// Features is the extracted signal vector for one user over a scan window.
type Features struct {
	UserID            int64
	Username          string
	RequestsPerMinute float64
	UniqueIPs         int64
	UniqueTokens      int64
	FailureRate       float64
	EmptyRate         float64
	IPSwitchFlags     []string
	CheckinFlags      []string
	Whitelisted       bool
}

// ExtractFeatures builds the feature vector for a candidate user.
func ExtractFeatures(ctx context.Context, db *dbx.Manager, engine *query.Engine, userID int64, windowSeconds int64, whitelisted bool) (*Features, error) {
	analysis, err := engine.UserAnalysis(ctx, userID, windowSeconds, 0)
	if err != nil {
		return nil, err
	}

	row, err := db.QueryOne(ctx, `SELECT username FROM users WHERE id = ?`, userID)
	if err != nil {
		return nil, err
	}
	username := ""
	if row != nil {
		username = row["username"].String()
	}

	tokenRow, err := db.QueryOne(ctx,
		`SELECT COUNT(DISTINCT token_id) AS tokens, COUNT(DISTINCT ip) AS ips FROM logs WHERE user_id = ? AND created_at >= ?`,
		userID, time.Now().Unix()-windowSeconds)
	if err != nil {
		return nil, err
	}
	var uniqueTokens, uniqueIPs int64
	if tokenRow != nil {
		uniqueTokens = tokenRow["tokens"].Int64()
		uniqueIPs = tokenRow["ips"].Int64()
	}

	var checkinFlags []string
	if analysis.Risk.CheckinAnalysis != nil {
		for _, f := range analysis.Risk.RiskFlags {
			if f == "CHECKIN_ANOMALY" {
				checkinFlags = append(checkinFlags, f)
			}
		}
	}

	return &Features{
		UserID:            userID,
		Username:          username,
		RequestsPerMinute: analysis.Risk.RequestsPerMinute,
		UniqueIPs:         uniqueIPs,
		UniqueTokens:      uniqueTokens,
		FailureRate:       analysis.Summary.FailureRate,
		EmptyRate:         analysis.Summary.EmptyRate,
		IPSwitchFlags:     analysis.Risk.IPSwitchAnalysis.Flags,
		CheckinFlags:      checkinFlags,
		Whitelisted:       whitelisted,
	}, nil
}

// CandidateUserIDs returns up to limit users with activity in the scan
// window, lowest user_id first, used when no explicit user list is given
// to a scan invocation.
func CandidateUserIDs(ctx context.Context, db *dbx.Manager, windowSeconds int64, limit int) ([]int64, error) {
	rows, err := db.Query(ctx,
		`SELECT DISTINCT user_id FROM logs WHERE created_at >= ? ORDER BY user_id LIMIT ?`,
		time.Now().Unix()-windowSeconds, limit)
	if err != nil {
		return nil, err
	}
	out := make([]int64, 0, len(rows))
	for _, row := range rows {
		out = append(out, row["user_id"].Int64())
	}
	return out, nil
}
