// Package ratelimit implements the per-(actor, action) sliding-window
// limiter with cooldowns and escalating blocks.
package ratelimit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"game-guard/internal/model"
	"game-guard/internal/store"
)

const storeKeyPrefix = "rate_limit_"

// ErrStoreUnavailable is surfaced when the record cannot be read and the
// limiter runs with FallbackDeny.
var ErrStoreUnavailable = errors.New("rate limit store unavailable")

// Decision is the limiter's verdict for one check.
type Decision struct {
	Allowed           bool          `json:"allowed"`
	Reason            string        `json:"reason,omitempty"`
	RemainingAttempts int           `json:"remaining_attempts"`
	CooldownRemaining time.Duration `json:"cooldown_remaining_ms"`
}

// Limiter evaluates sliding-window rate limits. Attempt history is
// persisted through the key-value store and mirrored in an in-memory
// write-through cache guarded by per-key locks.
type Limiter struct {
	store    store.KeyValueStore
	policies map[string]Policy
	fallback FallbackPolicy
	logger   *zap.Logger
	now      func() time.Time

	mu    sync.Mutex
	cache map[string]*model.AttemptRecord
	locks map[string]*sync.Mutex
	group singleflight.Group
}

// Option customizes a Limiter.
type Option func(*Limiter)

// WithFallbackPolicy selects the storage-outage behavior.
func WithFallbackPolicy(p FallbackPolicy) Option {
	return func(l *Limiter) { l.fallback = p }
}

// WithPolicies replaces the default per-action policies.
func WithPolicies(policies map[string]Policy) Option {
	return func(l *Limiter) { l.policies = policies }
}

// WithClock replaces the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// NewLimiter creates a limiter over the given store.
func NewLimiter(kv store.KeyValueStore, logger *zap.Logger, opts ...Option) *Limiter {
	l := &Limiter{
		store:    kv,
		policies: DefaultPolicies(),
		fallback: FallbackAllow,
		logger:   logger,
		now:      time.Now,
		cache:    make(map[string]*model.AttemptRecord),
		locks:    make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func cacheKey(actorID, action string) string {
	return actorID + "_" + action
}

// policyFor resolves the action's policy, falling back to the default
// GAME_ACTION policy for unlisted actions.
func (l *Limiter) policyFor(action string) Policy {
	if p, ok := l.policies[action]; ok {
		return p
	}
	return l.policies[model.GameActionDefault]
}

func (l *Limiter) lockFor(key string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	lock, ok := l.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		l.locks[key] = lock
	}
	return lock
}

// loadRecord returns the cached record, reading through to the store on a
// miss. Concurrent cold loads for the same key are collapsed. A store read
// failure yields an empty record under FallbackAllow, or an error under
// FallbackDeny.
func (l *Limiter) loadRecord(ctx context.Context, key string) (*model.AttemptRecord, error) {
	l.mu.Lock()
	if rec, ok := l.cache[key]; ok {
		clone := rec.Clone()
		l.mu.Unlock()
		return clone, nil
	}
	l.mu.Unlock()

	loaded, err, _ := l.group.Do(key, func() (any, error) {
		raw, err := l.store.Get(ctx, storeKeyPrefix+key)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return &model.AttemptRecord{}, nil
			}
			return nil, err
		}
		var rec model.AttemptRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, fmt.Errorf("malformed attempt record %s: %w", key, err)
		}
		return &rec, nil
	})
	if err != nil {
		if l.fallback == FallbackDeny {
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		// permissive fallback: treat as no prior attempts
		l.logger.Warn("rate limit record unreadable, assuming empty",
			zap.String("key", key),
			zap.Error(err))
		return &model.AttemptRecord{}, nil
	}

	rec := loaded.(*model.AttemptRecord)
	l.mu.Lock()
	if _, ok := l.cache[key]; !ok {
		l.cache[key] = rec.Clone()
	}
	l.mu.Unlock()
	return rec.Clone(), nil
}

// persistRecord writes through: cache first, then store. The record's TTL
// covers both the window and any active block so stale keys age out.
func (l *Limiter) persistRecord(ctx context.Context, key string, rec *model.AttemptRecord, policy Policy) error {
	l.mu.Lock()
	l.cache[key] = rec.Clone()
	l.mu.Unlock()

	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal attempt record %s: %w", key, err)
	}
	ttl := 2 * policy.Window
	if policy.BlockDuration > policy.Window {
		ttl = 2 * policy.BlockDuration
	}
	if err := l.store.Set(ctx, storeKeyPrefix+key, raw, ttl); err != nil {
		return fmt.Errorf("persist attempt record %s: %w", key, err)
	}
	return nil
}

// pruneRecent returns timestamps within the trailing window. Lazy,
// read-time only; pruned state is not persisted except when a block is set.
func pruneRecent(timestamps []int64, nowMs, windowMs int64) []int64 {
	cutoff := nowMs - windowMs
	recent := make([]int64, 0, len(timestamps))
	for _, ts := range timestamps {
		if ts > cutoff {
			recent = append(recent, ts)
		}
	}
	return recent
}

// CheckRateLimit evaluates the action without consuming an attempt.
// Precedence: active block, cooldown spacing, window quota.
func (l *Limiter) CheckRateLimit(ctx context.Context, actorID, action string) Decision {
	key := cacheKey(actorID, action)
	policy := l.policyFor(action)

	lock := l.lockFor(key)
	lock.Lock()
	defer lock.Unlock()

	return l.evaluate(ctx, key, policy)
}

func (l *Limiter) evaluate(ctx context.Context, key string, policy Policy) Decision {
	rec, err := l.loadRecord(ctx, key)
	if err != nil {
		return Decision{Allowed: false, Reason: model.ReasonStorageUnavailable}
	}

	nowMs := l.now().UnixMilli()

	// 1. active hard block supersedes everything
	if rec.BlockedUntil != nil && *rec.BlockedUntil > nowMs {
		return Decision{
			Allowed:           false,
			Reason:            model.ReasonBlocked,
			CooldownRemaining: time.Duration(*rec.BlockedUntil-nowMs) * time.Millisecond,
		}
	}

	// 2. prune to the trailing window
	recent := pruneRecent(rec.Timestamps, nowMs, policy.Window.Milliseconds())

	// 3. cooldown spacing between consecutive attempts
	if policy.Cooldown > 0 && len(recent) > 0 {
		last := recent[len(recent)-1]
		if nowMs-last < policy.Cooldown.Milliseconds() {
			return Decision{
				Allowed:           false,
				Reason:            model.ReasonCooldown,
				CooldownRemaining: time.Duration(policy.Cooldown.Milliseconds()-(nowMs-last)) * time.Millisecond,
			}
		}
	}

	// 4. window quota exhausted: escalate to a hard block
	if len(recent) >= policy.MaxAttempts {
		blockFor := policy.BlockDuration
		if blockFor == 0 {
			blockFor = policy.Window
		}
		until := nowMs + blockFor.Milliseconds()
		blocked := &model.AttemptRecord{Timestamps: recent, BlockedUntil: &until}
		if err := l.persistRecord(ctx, key, blocked, policy); err != nil {
			l.logger.Error("failed to persist block", zap.String("key", key), zap.Error(err))
		}
		return Decision{
			Allowed:           false,
			Reason:            model.ReasonMaxAttempts,
			CooldownRemaining: blockFor,
		}
	}

	// 5. allowed
	return Decision{
		Allowed:           true,
		RemainingAttempts: policy.MaxAttempts - len(recent) - 1,
	}
}

// RecordAttempt appends now to the attempt history and persists it. Callers
// record only after the action actually ran, so an undone action never
// consumes quota.
func (l *Limiter) RecordAttempt(ctx context.Context, actorID, action string) error {
	key := cacheKey(actorID, action)
	policy := l.policyFor(action)

	lock := l.lockFor(key)
	lock.Lock()
	defer lock.Unlock()

	rec, err := l.loadRecord(ctx, key)
	if err != nil {
		return err
	}
	rec.Timestamps = append(rec.Timestamps, l.now().UnixMilli())
	return l.persistRecord(ctx, key, rec, policy)
}

// TryConsume folds check and record into one atomic step under the key
// lock, closing the check-then-record gap for callers that opt in.
func (l *Limiter) TryConsume(ctx context.Context, actorID, action string) (Decision, error) {
	key := cacheKey(actorID, action)
	policy := l.policyFor(action)

	lock := l.lockFor(key)
	lock.Lock()
	defer lock.Unlock()

	decision := l.evaluate(ctx, key, policy)
	if !decision.Allowed {
		return decision, nil
	}

	rec, err := l.loadRecord(ctx, key)
	if err != nil {
		return Decision{Allowed: false, Reason: model.ReasonStorageUnavailable}, err
	}
	rec.Timestamps = append(rec.Timestamps, l.now().UnixMilli())
	if err := l.persistRecord(ctx, key, rec, policy); err != nil {
		return Decision{Allowed: false, Reason: model.ReasonStorageUnavailable}, err
	}
	return decision, nil
}

// GetCooldownInfo is the read-only view of an actor's standing for UI
// display. It never mutates state and never consumes an attempt.
func (l *Limiter) GetCooldownInfo(ctx context.Context, actorID, action string) model.CooldownInfo {
	key := cacheKey(actorID, action)
	policy := l.policyFor(action)

	rec, err := l.loadRecord(ctx, key)
	if err != nil {
		// deny posture with no record to read: report the outage instead
		// of fabricating a countdown
		return model.CooldownInfo{InCooldown: true, Unavailable: true}
	}

	nowMs := l.now().UnixMilli()

	if rec.BlockedUntil != nil && *rec.BlockedUntil > nowMs {
		remaining := *rec.BlockedUntil - nowMs
		return model.CooldownInfo{
			InCooldown:  true,
			IsBlocked:   true,
			RemainingMs: remaining,
			Formatted:   FormatRemaining(time.Duration(remaining) * time.Millisecond),
		}
	}

	recent := pruneRecent(rec.Timestamps, nowMs, policy.Window.Milliseconds())
	if policy.Cooldown > 0 && len(recent) > 0 {
		last := recent[len(recent)-1]
		if elapsed := nowMs - last; elapsed < policy.Cooldown.Milliseconds() {
			remaining := policy.Cooldown.Milliseconds() - elapsed
			return model.CooldownInfo{
				InCooldown:  true,
				RemainingMs: remaining,
				Formatted:   FormatRemaining(time.Duration(remaining) * time.Millisecond),
			}
		}
	}

	return model.CooldownInfo{Formatted: FormatRemaining(0)}
}

// ResetRateLimit evicts one (actor, action) record from cache and store.
func (l *Limiter) ResetRateLimit(ctx context.Context, actorID, action string) error {
	key := cacheKey(actorID, action)

	lock := l.lockFor(key)
	lock.Lock()
	defer lock.Unlock()

	l.mu.Lock()
	delete(l.cache, key)
	l.mu.Unlock()

	if err := l.store.Delete(ctx, storeKeyPrefix+key); err != nil {
		return fmt.Errorf("reset rate limit %s: %w", key, err)
	}
	return nil
}

// ClearAll evicts every record this limiter instance has touched, from
// both cache and store. Records persisted by other processes that this
// instance never loaded are left in place. Used on logout and in tests.
func (l *Limiter) ClearAll(ctx context.Context) error {
	l.mu.Lock()
	keys := make([]string, 0, len(l.cache))
	for key := range l.cache {
		keys = append(keys, storeKeyPrefix+key)
	}
	l.cache = make(map[string]*model.AttemptRecord)
	l.locks = make(map[string]*sync.Mutex)
	l.mu.Unlock()

	if len(keys) == 0 {
		return nil
	}
	if err := l.store.Delete(ctx, keys...); err != nil {
		return fmt.Errorf("clear rate limits: %w", err)
	}
	return nil
}
