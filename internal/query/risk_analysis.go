package query

import (
	"context"
	"time"
)

// UserSummary holds the derived per-user rate metrics (spec.md §4.3.8).
type UserSummary struct {
	TotalRequests int64   `json:"total_requests"`
	SuccessCount  int64   `json:"success_count"`
	FailureRate   float64 `json:"failure_rate"`
	EmptyRate     float64 `json:"empty_rate"`
	AvgUseTime    float64 `json:"avg_use_time"`
}

// UserRisk holds the risk-scoring signals for one user.
type UserRisk struct {
	RequestsPerMinute   float64          `json:"requests_per_minute"`
	AvgQuotaPerRequest  float64          `json:"avg_quota_per_request"`
	RiskFlags           []string         `json:"risk_flags"`
	IPSwitchAnalysis    IPSwitchAnalysis `json:"ip_switch_analysis"`
	CheckinAnalysis     *CheckinAnalysis `json:"checkin_analysis,omitempty"`
}

// CheckinAnalysis reports the requests-per-checkin ratio used by CHECKIN_ANOMALY.
type CheckinAnalysis struct {
	CheckinCount        int64   `json:"checkin_count"`
	RequestsPerCheckin   float64 `json:"requests_per_checkin"`
}

// UserAnalysis is the full output of spec.md §4.3.8.
type UserAnalysis struct {
	UserID      int64            `json:"user_id"`
	Summary     UserSummary      `json:"summary"`
	Risk        UserRisk         `json:"risk"`
	TopModels   []ModelUsage     `json:"top_models"`
	TopChannels []ChannelSummary `json:"top_channels"`
	TopIPs      []IPCount        `json:"top_ips"`
	RangeStart  int64            `json:"range_start"`
	RangeEnd    int64            `json:"range_end"`
}

// UserAnalysis computes the full risk profile for one user over windowSeconds
// ending at endTime (or now, if endTime is zero).
func (e *Engine) UserAnalysis(ctx context.Context, userID int64, windowSeconds int64, endTime int64) (*UserAnalysis, error) {
	if endTime == 0 {
		endTime = time.Now().Unix()
	}
	start := endTime - windowSeconds

	summaryRow, err := e.db.QueryOne(ctx, `
		SELECT
			COUNT(*) AS total_requests,
			SUM(CASE WHEN type = 2 THEN 1 ELSE 0 END) AS success_count,
			SUM(CASE WHEN type = 5 THEN 1 ELSE 0 END) AS failure_count,
			SUM(CASE WHEN type = 2 AND completion_tokens = 0 THEN 1 ELSE 0 END) AS empty_count,
			COALESCE(AVG(use_time), 0) AS avg_use_time,
			COALESCE(SUM(quota), 0) AS total_quota
		FROM logs WHERE user_id = ? AND created_at >= ? AND created_at < ? AND type IN (2, 5)`, userID, start, endTime)
	if err != nil {
		return nil, err
	}

	summary := UserSummary{}
	var totalQuota int64
	if summaryRow != nil {
		summary.TotalRequests = summaryRow["total_requests"].Int64()
		summary.SuccessCount = summaryRow["success_count"].Int64()
		failureCount := summaryRow["failure_count"].Int64()
		emptyCount := summaryRow["empty_count"].Int64()
		summary.AvgUseTime = summaryRow["avg_use_time"].Float64()
		totalQuota = summaryRow["total_quota"].Int64()

		if summary.TotalRequests > 0 {
			summary.FailureRate = float64(failureCount) / float64(summary.TotalRequests)
		}
		if summary.SuccessCount > 0 {
			summary.EmptyRate = float64(emptyCount) / float64(summary.SuccessCount)
		}
	}

	ipRows, err := e.db.Query(ctx,
		`SELECT created_at, ip FROM logs WHERE user_id = ? AND created_at >= ? AND created_at < ? ORDER BY created_at`,
		userID, start, endTime)
	if err != nil {
		return nil, err
	}
	events := make([]IPEvent, 0, len(ipRows))
	uniqueIPs := make(map[string]bool)
	for _, row := range ipRows {
		ip := row["ip"].String()
		events = append(events, IPEvent{CreatedAt: row["created_at"].Int64(), IP: ip})
		uniqueIPs[ip] = true
	}
	ipSwitch := AnalyzeIPSwitches(events)

	risk := UserRisk{IPSwitchAnalysis: ipSwitch}
	minutes := float64(windowSeconds) / 60
	if minutes > 0 {
		risk.RequestsPerMinute = float64(summary.TotalRequests) / minutes
	}
	if summary.TotalRequests > 0 {
		risk.AvgQuotaPerRequest = float64(totalQuota) / float64(summary.TotalRequests)
	}

	flags := append([]string{}, ipSwitch.Flags...)
	if risk.RequestsPerMinute > 5 {
		flags = append(flags, "HIGH_RPM")
	}
	if len(uniqueIPs) > 10 {
		flags = append(flags, "MANY_IPS")
	}
	if summary.FailureRate > 0.5 && summary.TotalRequests > 10 {
		flags = append(flags, "HIGH_FAILURE_RATE")
	}

	if e.hasCheckins {
		checkinRow, err := e.db.QueryOne(ctx,
			`SELECT COUNT(*) AS checkin_count FROM checkins WHERE user_id = ? AND created_at >= ? AND created_at < ?`,
			userID, start, endTime)
		if err == nil && checkinRow != nil {
			count := checkinRow["checkin_count"].Int64()
			if count > 0 {
				ratio := float64(summary.TotalRequests) / float64(count)
				risk.CheckinAnalysis = &CheckinAnalysis{CheckinCount: count, RequestsPerCheckin: ratio}
				if count > 3 && ratio < 5 {
					flags = append(flags, "CHECKIN_ANOMALY")
				}
			}
		}
	}
	risk.RiskFlags = flags

	topModels, err := e.db.Query(ctx, `
		SELECT model_name, COUNT(*) AS request_count, COALESCE(SUM(quota), 0) AS quota_used
		FROM logs WHERE user_id = ? AND created_at >= ? AND created_at < ?
		GROUP BY model_name ORDER BY request_count DESC LIMIT 10`, userID, start, endTime)
	if err != nil {
		return nil, err
	}
	models := make([]ModelUsage, 0, len(topModels))
	for _, row := range topModels {
		models = append(models, ModelUsage{
			ModelName:    row["model_name"].String(),
			RequestCount: row["request_count"].Int64(),
			QuotaUsed:    row["quota_used"].Int64(),
		})
	}

	ipCounts := make(map[string]int64)
	for _, ev := range events {
		ipCounts[ev.IP]++
	}
	topIPs := sortedCounts(ipCounts)
	if len(topIPs) > 10 {
		topIPs = topIPs[:10]
	}

	return &UserAnalysis{
		UserID:     userID,
		Summary:    summary,
		Risk:       risk,
		TopModels:  models,
		TopIPs:     topIPs,
		RangeStart: start,
		RangeEnd:   endTime,
	}, nil
}
