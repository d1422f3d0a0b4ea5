package risk

import "strings"

// Thresholds holds the configurable weights for local scoring, persisted
// in the aiban_config table and overridable from the admin UI.
type Thresholds struct {
	MaxRequestsPerMinute float64
	MaxUniqueIPs         int64
	MaxFailureRate       float64
	MaxEmptyRate         float64
	WeightRPM            float64
	WeightIPs            float64
	WeightFailure        float64
	WeightEmpty          float64
	WeightIPSwitch       float64
	BanScoreThreshold    float64
}

// DefaultThresholds mirrors the flag thresholds already established by the
// query engine's risk analysis (HIGH_RPM, MANY_IPS, HIGH_FAILURE_RATE).
var DefaultThresholds = Thresholds{
	MaxRequestsPerMinute: 5,
	MaxUniqueIPs:         10,
	MaxFailureRate:       0.5,
	MaxEmptyRate:         0.5,
	WeightRPM:            0.25,
	WeightIPs:            0.2,
	WeightFailure:        0.25,
	WeightEmpty:          0.1,
	WeightIPSwitch:       0.2,
	BanScoreThreshold:    0.6,
}

// Verdict is the outcome of scoring one user.
type Verdict struct {
	UserID  int64
	Score   float64
	Flagged bool
	Skip    bool
	Reason  string
	Source  string
}

// ScoreLocal computes a weighted rule-based score. A whitelist hit
// short-circuits to skip; otherwise the score is a weighted sum of
// normalized flag signals compared against BanScoreThreshold.
func ScoreLocal(f *Features, t Thresholds) Verdict {
	if f.Whitelisted {
		return Verdict{UserID: f.UserID, Skip: true, Reason: "whitelisted", Source: "local"}
	}

	var score float64
	var reasons []string

	if f.RequestsPerMinute > t.MaxRequestsPerMinute {
		score += t.WeightRPM
		reasons = append(reasons, "high requests/min")
	}
	if f.UniqueIPs > t.MaxUniqueIPs {
		score += t.WeightIPs
		reasons = append(reasons, "many distinct IPs")
	}
	if f.FailureRate > t.MaxFailureRate {
		score += t.WeightFailure
		reasons = append(reasons, "high failure rate")
	}
	if f.EmptyRate > t.MaxEmptyRate {
		score += t.WeightEmpty
		reasons = append(reasons, "high empty-response rate")
	}
	if len(f.IPSwitchFlags) > 0 {
		score += t.WeightIPSwitch
		reasons = append(reasons, "ip switch pattern")
	}

	verdict := Verdict{
		UserID:  f.UserID,
		Score:   score,
		Flagged: score >= t.BanScoreThreshold,
		Source:  "local",
	}
	if verdict.Flagged {
		verdict.Reason = joinReasons(reasons)
	}
	return verdict
}

func joinReasons(reasons []string) string {
	return strings.Join(reasons, "; ")
}
