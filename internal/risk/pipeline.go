package risk

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/newapi-sidecar/sidecar/internal/dbx"
	"github.com/newapi-sidecar/sidecar/internal/domain"
	"github.com/newapi-sidecar/sidecar/internal/query"
)

// bannedStatus matches the gateway's convention: users.status = 2 means banned.
const bannedStatus = 2

// Pipeline runs the AI-ban scan of spec.md §4.5. It keeps no scan state
// between Scan calls; each call returns its own ScanResult.
type Pipeline struct {
	db         *dbx.Manager
	engine     *query.Engine
	whitelist  *Whitelist
	audit      *AuditLogger
	ai         *Client
	logger     zerolog.Logger
	thresholds Thresholds
	enabled    bool
	dryRun     bool
}

// NewPipeline constructs the AI-ban pipeline.
func NewPipeline(db *dbx.Manager, engine *query.Engine, whitelist *Whitelist, audit *AuditLogger, ai *Client, logger zerolog.Logger, enabled, dryRun bool) *Pipeline {
	return &Pipeline{
		db:         db,
		engine:     engine,
		whitelist:  whitelist,
		audit:      audit,
		ai:         ai,
		logger:     logger,
		thresholds: DefaultThresholds,
		enabled:    enabled,
		dryRun:     dryRun,
	}
}

// SetThresholds replaces the local-scoring thresholds (from aiban_config).
func (p *Pipeline) SetThresholds(t Thresholds) { p.thresholds = t }

// SetMode updates the enabled/dry-run flags without reconstructing the pipeline.
func (p *Pipeline) SetMode(enabled, dryRun bool) {
	p.enabled = enabled
	p.dryRun = dryRun
}

// ScanResult summarizes one scan invocation.
type ScanResult struct {
	ScanID    string
	Scanned   int
	Flagged   int
	Banned    int
	WouldBan  int
	Errors    int
}

// Scan runs feature-extract -> local-score -> optional-AI-verdict ->
// decision -> audit-write for every candidate user.
func (p *Pipeline) Scan(ctx context.Context, userIDs []int64, windowSeconds int64) (*ScanResult, error) {
	if !p.enabled {
		return &ScanResult{ScanID: uuid.NewString()}, nil
	}

	scanID := uuid.NewString()
	result := &ScanResult{ScanID: scanID}

	for _, userID := range userIDs {
		result.Scanned++

		whitelisted, err := p.whitelist.IsWhitelisted(ctx, userID)
		if err != nil {
			p.logger.Warn().Err(err).Int64("user_id", userID).Msg("ai-ban whitelist check failed")
			result.Errors++
			continue
		}

		features, err := ExtractFeatures(ctx, p.db, p.engine, userID, windowSeconds, whitelisted)
		if err != nil {
			p.logger.Warn().Err(err).Int64("user_id", userID).Msg("ai-ban feature extraction failed")
			result.Errors++
			continue
		}

		verdict := ScoreLocal(features, p.thresholds)
		if verdict.Skip {
			continue
		}

		source := "local"
		flagged := verdict.Flagged
		reason := verdict.Reason

		if flagged && p.ai != nil && !p.dryRun && p.ai.Healthy() {
			aiVerdict, err := p.ai.Assess(ctx, features)
			if err != nil {
				p.logger.Warn().Err(err).Int64("user_id", userID).Msg("ai-ban AI verdict failed, falling back to local verdict")
			} else {
				source = "ai"
				flagged = aiVerdict.Decision == "ban"
				reason = aiVerdict.Reason
			}
		}

		if !flagged {
			continue
		}
		result.Flagged++

		action := "would_ban"
		if !p.dryRun {
			if err := p.Ban(ctx, userID, reason, "ai_ban_pipeline"); err != nil {
				p.logger.Warn().Err(err).Int64("user_id", userID).Msg("ai-ban enforcement failed")
				result.Errors++
				continue
			}
			action = "banned"
			result.Banned++
		} else {
			result.WouldBan++
		}

		if err := p.audit.Write(ctx, banAuditEntry(scanID, action, features, verdict.Score, reason, source)); err != nil {
			p.logger.Warn().Err(err).Msg("ai-ban audit write failed")
		}
	}

	return result, nil
}

func banAuditEntry(scanID, action string, f *Features, score float64, reason, source string) domain.AIBanAuditLog {
	return domain.AIBanAuditLog{
		ScanID:    scanID,
		Action:    action,
		UserID:    f.UserID,
		Username:  f.Username,
		Details:   fmt.Sprintf("source=%s reason=%s", source, reason),
		Operator:  "system",
		RiskScore: score,
	}
}

// Ban atomically sets users.status=2; a zero rows-affected result (already
// banned) is treated as success rather than an error, matching the
// transaction discipline's double-action tolerance.
func (p *Pipeline) Ban(ctx context.Context, userID int64, reason, operator string) error {
	_, err := p.db.Execute(ctx, `UPDATE users SET status = ? WHERE id = ? AND status != ?`, bannedStatus, userID, bannedStatus)
	if err != nil {
		return fmt.Errorf("ban user %d: %w", userID, err)
	}
	return nil
}

// Unban restores a user to active status.
func (p *Pipeline) Unban(ctx context.Context, userID int64) error {
	_, err := p.db.Execute(ctx, `UPDATE users SET status = 1 WHERE id = ? AND status = ?`, userID, bannedStatus)
	return err
}

// ResetAPIHealth clears the AI client's failure cooldown.
func (p *Pipeline) ResetAPIHealth() {
	if p.ai != nil {
		p.ai.ResetAPIHealth()
	}
}

// TestConnection verifies the configured AI endpoint answers within its timeout.
func (p *Pipeline) TestConnection(ctx context.Context) error {
	if p.ai == nil {
		return fmt.Errorf("ai-ban client not configured")
	}
	_, err := p.ai.Assess(ctx, &Features{UserID: 0, Username: "connection-test"})
	return err
}
