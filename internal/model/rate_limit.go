package model

// AttemptRecord tracks attempts for one (actor, action) pair. Timestamps are
// millisecond epochs in non-decreasing order; entries older than the policy
// window are pruned lazily on read. BlockedUntil, when set and in the
// future, supersedes normal window and cooldown logic.
type AttemptRecord struct {
	Timestamps   []int64 `json:"timestamps"`
	BlockedUntil *int64  `json:"blocked_until,omitempty"`
}

// Clone returns a deep copy so cached records can be handed out without
// sharing the timestamp slice.
func (r *AttemptRecord) Clone() *AttemptRecord {
	if r == nil {
		return &AttemptRecord{}
	}
	out := &AttemptRecord{Timestamps: make([]int64, len(r.Timestamps))}
	copy(out.Timestamps, r.Timestamps)
	if r.BlockedUntil != nil {
		v := *r.BlockedUntil
		out.BlockedUntil = &v
	}
	return out
}

// CooldownInfo is the read-only view of an actor's standing for one action,
// suitable for rendering "try again in 4h 12m" style hints.
type CooldownInfo struct {
	InCooldown  bool   `json:"in_cooldown"`
	IsBlocked   bool   `json:"is_blocked"`
	RemainingMs int64  `json:"remaining_ms"`
	Formatted   string `json:"formatted"`
	Unavailable bool   `json:"unavailable,omitempty"`
}
