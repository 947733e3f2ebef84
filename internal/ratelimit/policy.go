package ratelimit

import (
	"time"

	"game-guard/internal/model"
)

// Policy is the static per-action rate-limit configuration.
type Policy struct {
	MaxAttempts   int
	Window        time.Duration
	Cooldown      time.Duration
	BlockDuration time.Duration // 0 falls back to Window
}

// FallbackPolicy names the behavior when the backing store cannot be read.
// The source design is permissive on storage outage; the policy is named so
// it can be flipped to fail-closed where abuse resistance outranks
// availability.
type FallbackPolicy int

const (
	// FallbackAllow treats an unreadable record as "no prior attempts".
	FallbackAllow FallbackPolicy = iota
	// FallbackDeny refuses the action when the record cannot be read.
	FallbackDeny
)

// DefaultPolicies returns the per-action limits for the reward games.
// Unlisted actions use the GameActionDefault entry.
func DefaultPolicies() map[string]Policy {
	return map[string]Policy{
		model.GameActionSpinWheel: {
			MaxAttempts: 1,
			Window:      24 * time.Hour,
		},
		model.GameActionScratchCard: {
			MaxAttempts: 3,
			Window:      24 * time.Hour,
		},
		model.GameActionQuizStart: {
			MaxAttempts: 5,
			Window:      time.Hour,
		},
		model.GameActionQuizAnswer: {
			MaxAttempts: 30,
			Window:      10 * time.Minute,
			Cooldown:    2 * time.Second,
		},
		model.GameActionClaimReward: {
			MaxAttempts: 10,
			Window:      time.Hour,
			Cooldown:    5 * time.Second,
		},
		model.GameActionDefault: {
			MaxAttempts: 60,
			Window:      time.Minute,
			Cooldown:    time.Second,
		},
	}
}
