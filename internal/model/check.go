package model

// Reason codes surfaced to callers. The guard never throws past its public
// surface; every denial is one of these strings so the client can render a
// deterministic response.
const (
	ReasonNotAuthenticated   = "NOT_AUTHENTICATED"
	ReasonSessionTimeout     = "SESSION_TIMEOUT"
	ReasonInvalidToken       = "INVALID_TOKEN"
	ReasonNoToken            = "NO_TOKEN"
	ReasonError              = "ERROR"
	ReasonBlocked            = "BLOCKED"
	ReasonCooldown           = "COOLDOWN"
	ReasonMaxAttempts        = "MAX_ATTEMPTS_EXCEEDED"
	ReasonSuspiciousActivity = "SUSPICIOUS_ACTIVITY_DETECTED"
	ReasonInvalidData        = "INVALID_DATA"
	ReasonSessionNotFound    = "SESSION_NOT_FOUND"
	ReasonSuspiciousReward   = "SUSPICIOUS_REWARD_AMOUNT"
	ReasonCompletedTooFast   = "GAME_COMPLETED_TOO_FAST"
	ReasonStorageUnavailable = "STORAGE_UNAVAILABLE"
)

// Follow-up actions the caller should take on a denial.
const (
	ActionRedirectLogin = "REDIRECT_LOGIN"
	ActionShowCooldown  = "SHOW_COOLDOWN"
	ActionBlockUser     = "BLOCK_USER"
	ActionRejectRequest = "REJECT_REQUEST"
)

// Named game actions, each carrying its own rate-limit policy. Unlisted
// actions fall back to the GameAction default policy.
const (
	GameActionSpinWheel   = "SPIN_WHEEL"
	GameActionScratchCard = "SCRATCH_CARD"
	GameActionQuizStart   = "QUIZ_START"
	GameActionQuizAnswer  = "QUIZ_ANSWER"
	GameActionClaimReward = "CLAIM_REWARD"
	GameActionDefault     = "GAME_ACTION"
)

// CheckResult is the composite guard decision for one attempted action.
type CheckResult struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
	Action  string `json:"action,omitempty"`
}

// SessionState is the derived authentication state, computed fresh on every
// query from the stored credential and last-activity timestamp.
type SessionState struct {
	IsAuthenticated bool   `json:"is_authenticated"`
	ActorID         string `json:"actor_id,omitempty"`
	Reason          string `json:"reason,omitempty"`
}
