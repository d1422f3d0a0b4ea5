// Package domain holds the shared types passed between the side-car's
// collaborators: gateway-table mirrors plus side-car-owned state.
package domain

import "time"

// User mirrors the subset of the gateway's users table the side-car reads.
type User struct {
	ID        int64
	Username  string
	Email     string
	Quota     int64
	UsedQuota int64
	Status    int
	Group     string
	InviterID int64
	CreatedAt time.Time
}

// Token mirrors the gateway's tokens table.
type Token struct {
	ID        int64
	UserID    int64
	Name      string
	Status    int
	UsedQuota int64
	CreatedAt time.Time
}

// LogEntry mirrors one row of the gateway's logs table.
type LogEntry struct {
	ID        int64
	UserID    int64
	TokenID   int64
	ModelName string
	IP        string
	Type      int
	Quota     int64
	CreatedAt time.Time
}

// Channel mirrors the gateway's channels table.
type Channel struct {
	ID     int64
	Name   string
	Type   int
	Status int
}

// TopUp represents a quota top-up redemption event.
type TopUp struct {
	ID        int64
	UserID    int64
	Amount    int64
	Money     string // decimal string as stored by the gateway
	CreatedAt time.Time
}

// RedemptionKey is a single unused or consumed redemption code.
type RedemptionKey struct {
	ID        int64
	Code      string
	Quota     int64
	CreatedBy int64
	UsedBy    int64
	Status    int
	CreatedAt time.Time
}

// Envelope is the uniform JSON response shape for every HTTP endpoint.
type Envelope struct {
	Success bool          `json:"success"`
	Data    any           `json:"data,omitempty"`
	Message string        `json:"message,omitempty"`
	Error   *EnvelopeError `json:"error,omitempty"`
}

// EnvelopeError carries a machine-readable code alongside the human message.
type EnvelopeError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

// WarmupStatus reports the side-car's staged startup progress (spec.md §3.3).
type WarmupStatus struct {
	Status      string     `json:"status"` // pending, initializing, ready
	Phase       string     `json:"phase"`
	PhaseIndex  int        `json:"phase_index"`
	TotalPhase  int        `json:"total_phases"`
	Progress    int        `json:"progress"` // 0-100
	Total       int        `json:"total"`
	CurrentTask string     `json:"current_task"`
	Message     string     `json:"message,omitempty"`
	Done        bool       `json:"done"`
	Error       string     `json:"error,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// TaskStatus reports a single registered background task's last run.
type TaskStatus struct {
	Name        string        `json:"name"`
	Cadence     time.Duration `json:"cadence"`
	LastRun     time.Time     `json:"last_run"`
	LastError   string        `json:"last_error,omitempty"`
	RunCount    int64         `json:"run_count"`
	WaitsWarmup bool          `json:"waits_warmup"`
}

// AIBanWhitelistEntry exempts a user from the AI-ban scan.
type AIBanWhitelistEntry struct {
	UserID    int64
	Reason    string
	AddedBy   string
	ExpiresAt *time.Time
	CreatedAt time.Time
}

// AIBanAuditLog records one action taken (or proposed) by the AI-ban pipeline.
type AIBanAuditLog struct {
	ID        int64
	ScanID    string
	Action    string
	UserID    int64
	Username  string
	Details   string
	Operator  string
	RiskScore float64
	CreatedAt time.Time
}

// RiskFeatures is the set of extracted signals fed into local scoring and the
// AI verdict prompt.
type RiskFeatures struct {
	UserID             int64
	Username           string
	DistinctIPCount    int
	DistinctTokenCount int
	RequestRatePerMin  float64
	ErrorRate          float64
	QuotaBurnRatio     float64
	AccountAgeHours    float64
	SharedIPUserCount  int
}

// RiskVerdict is the outcome of scoring one user, either locally or via AI.
type RiskVerdict struct {
	UserID     int64
	Score      float64
	Flagged    bool
	Reason     string
	Source     string // "local" or "ai"
	ScannedAt  time.Time
}

// ModelStatusWindow is one slot in the model-availability timeline.
type ModelStatusWindow struct {
	Label       string `json:"label"`
	SuccessRate float64 `json:"success_rate"`
	Total       int64  `json:"total"`
	Color       string `json:"color"` // green, yellow, red
}

// ModelStatus is the full status summary for one model across all windows.
type ModelStatus struct {
	ModelName string              `json:"model_name"`
	Windows   []ModelStatusWindow `json:"windows"`
}

// IPSwitchFlag describes a detected IP-hopping pattern for one user.
type IPSwitchFlag struct {
	UserID       int64
	SwitchCount  int
	DualStack    bool
	RapidHopping bool
	WindowStart  time.Time
	WindowEnd    time.Time
}
