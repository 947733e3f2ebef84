// Package security composes the auth guard, the rate limiter, payload
// validation and the suspicious-activity ledger into one composite decision
// per attempted game action, and issues/verifies provably-fair game
// sessions.
package security

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"game-guard/internal/auth"
	"game-guard/internal/bucketing"
	"game-guard/internal/encryption"
	"game-guard/internal/events"
	"game-guard/internal/hashing"
	"game-guard/internal/model"
	"game-guard/internal/ratelimit"
	"game-guard/internal/store"
	"game-guard/internal/util"
)

const currentSessionKey = "current_session_id"

// ErrAdminUnauthorized is returned when an administrative operation is
// attempted without a valid admin key.
var ErrAdminUnauthorized = errors.New("admin key not authorized")

// Middleware is the composite security check. Every guarded game action
// passes through PerformSecurityCheck before the caller runs any game
// logic.
type Middleware struct {
	guard   *auth.Guard
	limiter *ratelimit.Limiter
	store   store.KeyValueStore
	sealer  *encryption.Manager
	sink    events.Sink
	buckets *bucketing.Manager
	hasher  *hashing.Hasher
	logger  *zap.Logger
	now     func() time.Time

	adminKeyHash  string
	clientVersion string
	platform      string

	ledger *ledger
}

// MiddlewareOption customizes a Middleware.
type MiddlewareOption func(*Middleware)

// WithSink installs the security-event fan-out.
func WithSink(s events.Sink) MiddlewareOption {
	return func(m *Middleware) { m.sink = s }
}

// WithAdminKeyHash sets the argon2id hash that authorizes administrative
// operations. With no hash configured those operations are always denied.
func WithAdminKeyHash(hash string) MiddlewareOption {
	return func(m *Middleware) { m.adminKeyHash = hash }
}

// WithEventBuckets sets the number of partition buckets stamped on
// published security events.
func WithEventBuckets(n int) MiddlewareOption {
	return func(m *Middleware) { m.buckets = bucketing.NewManager(n) }
}

// WithClientInfo sets the version and platform reported in outbound
// security headers.
func WithClientInfo(version, platform string) MiddlewareOption {
	return func(m *Middleware) {
		m.clientVersion = version
		m.platform = platform
	}
}

// WithClock replaces the time source, for tests.
func WithClock(now func() time.Time) MiddlewareOption {
	return func(m *Middleware) { m.now = now }
}

// NewMiddleware wires the composite check over its collaborators.
func NewMiddleware(
	guard *auth.Guard,
	limiter *ratelimit.Limiter,
	kv store.KeyValueStore,
	sealer *encryption.Manager,
	logger *zap.Logger,
	opts ...MiddlewareOption,
) *Middleware {
	m := &Middleware{
		guard:         guard,
		limiter:       limiter,
		store:         kv,
		sealer:        sealer,
		sink:          events.NopSink{},
		buckets:       bucketing.NewManager(bucketing.DefaultEventBuckets),
		hasher:        hashing.NewHasher(hashing.DefaultParams()),
		logger:        logger,
		now:           time.Now,
		clientVersion: "1.0.0",
		platform:      "server",
	}
	m.ledger = &ledger{store: kv, logger: logger}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// PerformSecurityCheck runs the ordered checks for one attempted action and
// short-circuits on the first failure. It never returns an error: every
// outcome is a structured result the caller can render.
func (m *Middleware) PerformSecurityCheck(ctx context.Context, action string, payload map[string]any) model.CheckResult {
	state := m.guard.IsAuthenticated(ctx)
	if !state.IsAuthenticated {
		return model.CheckResult{
			Allowed: false,
			Reason:  model.ReasonNotAuthenticated,
			Action:  model.ActionRedirectLogin,
		}
	}
	actorID := state.ActorID

	decision := m.limiter.CheckRateLimit(ctx, actorID, action)
	if !decision.Allowed {
		m.LogSuspiciousActivity(ctx, actorID, model.SuspiciousRateLimitExceeded,
			map[string]any{"action": action, "reason": decision.Reason},
			model.SeverityMedium)
		return model.CheckResult{
			Allowed: false,
			Reason:  decision.Reason,
			Action:  model.ActionShowCooldown,
		}
	}

	if m.CheckSuspiciousActivity(ctx, actorID) {
		// no further detail disclosed to the caller
		return model.CheckResult{
			Allowed: false,
			Reason:  model.ReasonSuspiciousActivity,
			Action:  model.ActionBlockUser,
		}
	}

	if err := validatePayload(action, payload); err != nil {
		m.logger.Warn("payload validation failed",
			util.String("actor_id", actorID),
			util.String("action", action),
			zap.Error(err))
		m.LogSuspiciousActivity(ctx, actorID, model.SuspiciousInvalidData,
			map[string]any{"action": action, "error": err.Error()},
			model.SeverityHigh)
		return model.CheckResult{
			Allowed: false,
			Reason:  model.ReasonInvalidData,
			Action:  model.ActionRejectRequest,
		}
	}

	if err := m.guard.UpdateActivity(ctx); err != nil {
		m.logger.Error("failed to refresh activity", zap.Error(err))
	}
	return model.CheckResult{Allowed: true}
}

// validatePayload dispatches by action name. A nil payload passes; actions
// with structured payloads validate their fields, everything else gets
// generic recursive sanitization.
func validatePayload(action string, payload map[string]any) error {
	if payload == nil {
		return nil
	}
	switch action {
	case model.GameActionQuizAnswer:
		return validateQuizAnswer(payload)
	case model.GameActionClaimReward:
		return validateCoinAmount(payload)
	case model.GameActionScratchCard:
		return validateScratchCard(payload)
	default:
		_, err := util.SanitizeMap(payload)
		return err
	}
}

func validateQuizAnswer(payload map[string]any) error {
	raw, ok := payload["answer"]
	if !ok {
		return fmt.Errorf("quiz answer missing")
	}
	answer, ok := asInt(raw)
	if !ok {
		return fmt.Errorf("quiz answer is not an integer")
	}
	if answer < 0 || answer > 3 {
		return fmt.Errorf("quiz answer %d out of range", answer)
	}
	return nil
}

func validateCoinAmount(payload map[string]any) error {
	raw, ok := payload["amount"]
	if !ok {
		return fmt.Errorf("coin amount missing")
	}
	amount, ok := asInt(raw)
	if !ok {
		return fmt.Errorf("coin amount is not a number")
	}
	if amount <= 0 {
		return fmt.Errorf("coin amount %d is not positive", amount)
	}
	if amount > maxCoinsPerResult {
		return fmt.Errorf("coin amount %d exceeds ceiling", amount)
	}
	return nil
}

func validateScratchCard(payload map[string]any) error {
	raw, ok := payload["card_id"]
	if !ok {
		return fmt.Errorf("scratch card id missing")
	}
	cardID, ok := raw.(string)
	if !ok || cardID == "" {
		return fmt.Errorf("scratch card id must be a non-empty string")
	}
	if util.ContainsSuspicious(cardID) {
		return fmt.Errorf("suspicious scratch card id")
	}
	return nil
}

// asInt accepts the numeric shapes a decoded JSON payload can carry.
func asInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		if n != float64(int64(n)) {
			return 0, false
		}
		return int64(n), true
	default:
		return 0, false
	}
}

// SecurityHeaders builds the outbound call metadata for the current
// session. Headers for missing state are simply omitted.
func (m *Middleware) SecurityHeaders(ctx context.Context) map[string]string {
	headers := map[string]string{
		"X-Client-Version": m.clientVersion,
		"X-Platform":       m.platform,
	}
	if token, ok := m.guard.Token(ctx); ok {
		headers["Authorization"] = "Bearer " + token
	}
	if raw, err := m.store.Get(ctx, currentSessionKey); err == nil && len(raw) > 0 {
		headers["X-Session-ID"] = string(raw)
	}
	return headers
}
