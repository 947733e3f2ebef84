package security

import (
	"context"
	"encoding/base64"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"game-guard/internal/auth"
	"game-guard/internal/encryption"
	"game-guard/internal/hashing"
	"game-guard/internal/model"
	"game-guard/internal/ratelimit"
	"game-guard/internal/store"
)

type fixture struct {
	mw      *Middleware
	kv      *store.MemoryStore
	limiter *ratelimit.Limiter
	sink    *captureSink
	clock   time.Time
}

type captureSink struct {
	events []model.SecurityEvent
}

func (c *captureSink) Publish(ctx context.Context, event model.SecurityEvent) error {
	c.events = append(c.events, event)
	return nil
}

func (c *captureSink) Close() error { return nil }

func newFixture(t *testing.T, opts ...MiddlewareOption) *fixture {
	t.Helper()
	f := &fixture{
		kv:    store.NewMemoryStore(),
		sink:  &captureSink{},
		clock: time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC),
	}
	now := func() time.Time { return f.clock }
	f.kv.SetClock(now)

	logger := zap.NewNop()
	guard := auth.NewGuard(f.kv, logger, auth.WithClock(now))
	f.limiter = ratelimit.NewLimiter(f.kv, logger, ratelimit.WithClock(now))

	all := append([]MiddlewareOption{WithSink(f.sink)}, opts...)
	f.mw = NewMiddleware(guard, f.limiter, f.kv, encryption.NewManager(nil, ""), logger, all...)
	// WithClock last so the ledger clock is replaced too
	WithClock(now)(f.mw)
	return f
}

func (f *fixture) advance(d time.Duration) {
	f.clock = f.clock.Add(d)
}

// signIn seeds a valid credential, actor profile and fresh activity.
func (f *fixture) signIn(t *testing.T, actorID string) {
	t.Helper()
	ctx := context.Background()
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"none"}`))
	payload := base64.RawURLEncoding.EncodeToString(
		[]byte(fmt.Sprintf(`{"sub":%q,"exp":%d}`, actorID, f.clock.Add(12*time.Hour).Unix())))
	token := header + "." + payload + ".sig"

	require.NoError(t, f.kv.Set(ctx, "auth_token", []byte(token), 0))
	require.NoError(t, f.kv.Set(ctx, "auth_user", []byte(fmt.Sprintf(`{"actor_id":%q}`, actorID)), 0))
	require.NoError(t, f.kv.Set(ctx, "last_activity",
		[]byte(fmt.Sprintf("%d", f.clock.UnixMilli())), 0))
}

func TestCheckDeniesWithoutCredential(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	result := f.mw.PerformSecurityCheck(ctx, model.GameActionSpinWheel, nil)
	assert.False(t, result.Allowed)
	assert.Equal(t, model.ReasonNotAuthenticated, result.Reason)
	assert.Equal(t, model.ActionRedirectLogin, result.Action)

	// the limiter must not have been touched
	info := f.limiter.GetCooldownInfo(ctx, "", model.GameActionSpinWheel)
	assert.False(t, info.InCooldown)
}

func TestCheckAllowsAndRefreshesActivity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.signIn(t, "actor-1")

	f.advance(10 * time.Minute)
	result := f.mw.PerformSecurityCheck(ctx, model.GameActionSpinWheel, nil)
	assert.True(t, result.Allowed)

	raw, err := f.kv.Get(ctx, "last_activity")
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("%d", f.clock.UnixMilli()), string(raw))
}

func TestCheckRateLimitDenialLogsSuspicious(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.signIn(t, "actor-1")

	require.NoError(t, f.limiter.RecordAttempt(ctx, "actor-1", model.GameActionSpinWheel))
	f.advance(time.Minute)

	result := f.mw.PerformSecurityCheck(ctx, model.GameActionSpinWheel, nil)
	assert.False(t, result.Allowed)
	assert.Equal(t, model.ReasonMaxAttempts, result.Reason)
	assert.Equal(t, model.ActionShowCooldown, result.Action)

	require.Len(t, f.sink.events, 1)
	assert.Equal(t, model.SuspiciousRateLimitExceeded, f.sink.events[0].EventType)
	assert.Equal(t, "medium", f.sink.events[0].Severity)
	assert.Equal(t, model.GameActionSpinWheel, f.sink.events[0].GameAction)
}

func TestCheckBlocksFlaggedActor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.signIn(t, "actor-1")

	f.mw.LogSuspiciousActivity(ctx, "actor-1", model.SuspiciousReward, nil, model.SeverityHigh)
	f.mw.LogSuspiciousActivity(ctx, "actor-1", model.SuspiciousTiming, nil, model.SeverityHigh)

	result := f.mw.PerformSecurityCheck(ctx, model.GameActionQuizStart, nil)
	assert.False(t, result.Allowed)
	assert.Equal(t, model.ReasonSuspiciousActivity, result.Reason)
	assert.Equal(t, model.ActionBlockUser, result.Action)
}

func TestCheckInvalidPayload(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.signIn(t, "actor-1")

	result := f.mw.PerformSecurityCheck(ctx, model.GameActionQuizAnswer,
		map[string]any{"answer": 7})
	assert.False(t, result.Allowed)
	assert.Equal(t, model.ReasonInvalidData, result.Reason)
	assert.Equal(t, model.ActionRejectRequest, result.Action)

	require.Len(t, f.sink.events, 1)
	assert.Equal(t, model.SuspiciousInvalidData, f.sink.events[0].EventType)
	assert.Equal(t, "high", f.sink.events[0].Severity)
}

func TestValidatePayload(t *testing.T) {
	tests := []struct {
		name    string
		action  string
		payload map[string]any
		wantErr bool
	}{
		{"nil payload passes", model.GameActionQuizAnswer, nil, false},
		{"quiz answer in range", model.GameActionQuizAnswer, map[string]any{"answer": 3}, false},
		{"quiz answer json float", model.GameActionQuizAnswer, map[string]any{"answer": float64(2)}, false},
		{"quiz answer negative", model.GameActionQuizAnswer, map[string]any{"answer": -1}, true},
		{"quiz answer fractional", model.GameActionQuizAnswer, map[string]any{"answer": 1.5}, true},
		{"quiz answer missing", model.GameActionQuizAnswer, map[string]any{"other": 1}, true},
		{"claim positive", model.GameActionClaimReward, map[string]any{"amount": 250}, false},
		{"claim zero", model.GameActionClaimReward, map[string]any{"amount": 0}, true},
		{"claim over ceiling", model.GameActionClaimReward, map[string]any{"amount": 10001}, true},
		{"scratch card ok", model.GameActionScratchCard, map[string]any{"card_id": "card-42"}, false},
		{"scratch card empty", model.GameActionScratchCard, map[string]any{"card_id": ""}, true},
		{"scratch card injected", model.GameActionScratchCard, map[string]any{"card_id": "<script>"}, true},
		{"generic clean", "CUSTOM_ACTION", map[string]any{"note": "hello"}, false},
		{"generic injected", "CUSTOM_ACTION", map[string]any{"note": "<script>alert(1)</script>"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validatePayload(tt.action, tt.payload)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestEventBucketsOption(t *testing.T) {
	f := newFixture(t, WithEventBuckets(4))
	ctx := context.Background()

	actors := []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j"}
	for _, actor := range actors {
		f.mw.LogSuspiciousActivity(ctx, actor, model.SuspiciousRateLimitExceeded, nil, model.SeverityLow)
	}

	require.Len(t, f.sink.events, len(actors))
	for _, event := range f.sink.events {
		assert.GreaterOrEqual(t, event.EventBucket, 0)
		assert.Less(t, event.EventBucket, 4)
	}
}

func TestSuspiciousThreshold(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// 1 high + 3 low stays under both thresholds
	f.mw.LogSuspiciousActivity(ctx, "actor-1", model.SuspiciousInvalidData, nil, model.SeverityHigh)
	for i := 0; i < 3; i++ {
		f.mw.LogSuspiciousActivity(ctx, "actor-1", model.SuspiciousRateLimitExceeded, nil, model.SeverityLow)
	}
	assert.False(t, f.mw.CheckSuspiciousActivity(ctx, "actor-1"))

	// a second high entry flips the flag
	f.mw.LogSuspiciousActivity(ctx, "actor-1", model.SuspiciousTiming, nil, model.SeverityHigh)
	assert.True(t, f.mw.CheckSuspiciousActivity(ctx, "actor-1"))
}

func TestSuspiciousFiveTotal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		f.mw.LogSuspiciousActivity(ctx, "actor-1", model.SuspiciousRateLimitExceeded, nil, model.SeverityLow)
	}
	assert.True(t, f.mw.CheckSuspiciousActivity(ctx, "actor-1"))
}

func TestSuspiciousWindowExpires(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.mw.LogSuspiciousActivity(ctx, "actor-1", model.SuspiciousReward, nil, model.SeverityHigh)
	f.mw.LogSuspiciousActivity(ctx, "actor-1", model.SuspiciousTiming, nil, model.SeverityHigh)
	require.True(t, f.mw.CheckSuspiciousActivity(ctx, "actor-1"))

	f.advance(61 * time.Minute)
	assert.False(t, f.mw.CheckSuspiciousActivity(ctx, "actor-1"))
}

func TestSuspiciousLedgerIsCapped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < maxLedgerEntries+20; i++ {
		f.mw.LogSuspiciousActivity(ctx, "actor-1", model.SuspiciousRateLimitExceeded, nil, model.SeverityLow)
	}
	entries := f.mw.ledger.load(ctx, "actor-1")
	assert.Len(t, entries, maxLedgerEntries)
}

func TestSuspiciousIsolatedPerActor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.mw.LogSuspiciousActivity(ctx, "actor-1", model.SuspiciousReward, nil, model.SeverityHigh)
	f.mw.LogSuspiciousActivity(ctx, "actor-1", model.SuspiciousTiming, nil, model.SeverityHigh)

	assert.True(t, f.mw.CheckSuspiciousActivity(ctx, "actor-1"))
	assert.False(t, f.mw.CheckSuspiciousActivity(ctx, "actor-2"))
}

func TestClearSuspiciousRequiresAdminKey(t *testing.T) {
	hasher := hashing.NewHasher(hashing.DefaultParams())
	keyHash, err := hasher.Hash("operator-secret")
	require.NoError(t, err)

	f := newFixture(t, WithAdminKeyHash(keyHash))
	ctx := context.Background()

	f.mw.LogSuspiciousActivity(ctx, "actor-1", model.SuspiciousReward, nil, model.SeverityHigh)
	f.mw.LogSuspiciousActivity(ctx, "actor-1", model.SuspiciousTiming, nil, model.SeverityHigh)
	require.True(t, f.mw.CheckSuspiciousActivity(ctx, "actor-1"))

	assert.ErrorIs(t, f.mw.ClearSuspiciousActivities(ctx, "actor-1", "wrong"), ErrAdminUnauthorized)
	require.True(t, f.mw.CheckSuspiciousActivity(ctx, "actor-1"))

	require.NoError(t, f.mw.ClearSuspiciousActivities(ctx, "actor-1", "operator-secret"))
	assert.False(t, f.mw.CheckSuspiciousActivity(ctx, "actor-1"))
}

func TestClearSuspiciousDeniedWithoutConfiguredHash(t *testing.T) {
	f := newFixture(t)
	err := f.mw.ClearSuspiciousActivities(context.Background(), "actor-1", "anything")
	assert.ErrorIs(t, err, ErrAdminUnauthorized)
}

func TestSecurityHeaders(t *testing.T) {
	f := newFixture(t, WithClientInfo("2.3.1", "android"))
	ctx := context.Background()
	f.signIn(t, "actor-1")

	session, err := f.mw.CreateGameSession(ctx, "spin-wheel")
	require.NoError(t, err)

	headers := f.mw.SecurityHeaders(ctx)
	assert.Contains(t, headers["Authorization"], "Bearer ")
	assert.Equal(t, session.SessionID, headers["X-Session-ID"])
	assert.Equal(t, "2.3.1", headers["X-Client-Version"])
	assert.Equal(t, "android", headers["X-Platform"])
}

func TestSecurityHeadersWithoutSession(t *testing.T) {
	f := newFixture(t)
	headers := f.mw.SecurityHeaders(context.Background())
	assert.NotContains(t, headers, "Authorization")
	assert.NotContains(t, headers, "X-Session-ID")
	assert.Equal(t, "1.0.0", headers["X-Client-Version"])
}
