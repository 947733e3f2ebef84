package model

// Severity weights a suspicious-activity entry for the blocking threshold.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Suspicious-activity entry types.
const (
	SuspiciousRateLimitExceeded = "RATE_LIMIT_EXCEEDED"
	SuspiciousInvalidData       = "INVALID_DATA"
	SuspiciousReward            = "SUSPICIOUS_REWARD"
	SuspiciousTiming            = "SUSPICIOUS_TIMING"
)

// SuspiciousActivity is one append-only ledger entry for an actor. Entries
// are never mutated; the ledger may be cleared only by an authorized
// administrative action.
type SuspiciousActivity struct {
	Type      string         `json:"type"`
	Timestamp int64          `json:"timestamp"` // ms epoch
	Details   map[string]any `json:"details,omitempty"`
	Severity  Severity       `json:"severity"`
}
