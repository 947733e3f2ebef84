package auth

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"go.uber.org/zap"

	"game-guard/internal/model"
	"game-guard/internal/store"
	"game-guard/internal/util"
)

// Store keys owned by the guard.
const (
	authTokenKey    = "auth_token"
	authUserKey     = "auth_user"
	lastActivityKey = "last_activity"
)

// DefaultSessionTimeout is the idle window after which a session is treated
// as expired even when the credential itself has not expired.
const DefaultSessionTimeout = 30 * time.Minute

// Redirector is the external navigation side effect taken when RequireAuth
// denies: send the actor to sign-in, remembering where they came from.
type Redirector interface {
	RedirectToLogin(ctx context.Context, returnTo string)
}

// actorProfile is the stored shape under auth_user.
type actorProfile struct {
	ActorID string `json:"actor_id"`
}

// Guard owns the is-this-actor-logged-in state machine: credential presence,
// claimed token expiry, and the idle-session timeout.
type Guard struct {
	store      store.KeyValueStore
	timeout    time.Duration
	redirector Redirector
	logger     *zap.Logger
	now        func() time.Time
}

// GuardOption customizes a Guard.
type GuardOption func(*Guard)

// WithSessionTimeout overrides the 30-minute idle timeout.
func WithSessionTimeout(d time.Duration) GuardOption {
	return func(g *Guard) { g.timeout = d }
}

// WithRedirector installs the sign-in redirect side effect.
func WithRedirector(r Redirector) GuardOption {
	return func(g *Guard) { g.redirector = r }
}

// WithClock replaces the time source, for tests.
func WithClock(now func() time.Time) GuardOption {
	return func(g *Guard) { g.now = now }
}

// NewGuard creates an auth guard over the given store.
func NewGuard(kv store.KeyValueStore, logger *zap.Logger, opts ...GuardOption) *Guard {
	g := &Guard{
		store:   kv,
		timeout: DefaultSessionTimeout,
		logger:  logger,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// IsAuthenticated computes the session state fresh from the stored
// credential and last-activity timestamp. It never returns an error: any
// internal failure maps to an unauthenticated state with reason ERROR.
func (g *Guard) IsAuthenticated(ctx context.Context) model.SessionState {
	token, err := g.store.Get(ctx, authTokenKey)
	if err != nil {
		if err == store.ErrNotFound {
			return model.SessionState{Reason: model.ReasonNoToken}
		}
		g.logger.Error("failed to read credential", zap.Error(err))
		return model.SessionState{Reason: model.ReasonError}
	}

	now := g.now()
	if !ValidateToken(string(token), now) {
		// expired or malformed credential forces re-login
		g.clearAuthState(ctx)
		return model.SessionState{Reason: model.ReasonInvalidToken}
	}

	if expired, err := g.idleExpired(ctx, now); err != nil {
		g.logger.Error("failed to read last activity", zap.Error(err))
		return model.SessionState{Reason: model.ReasonError}
	} else if expired {
		g.clearAuthState(ctx)
		return model.SessionState{Reason: model.ReasonSessionTimeout}
	}

	return model.SessionState{
		IsAuthenticated: true,
		ActorID:         g.storedActorID(ctx),
	}
}

func (g *Guard) idleExpired(ctx context.Context, now time.Time) (bool, error) {
	raw, err := g.store.Get(ctx, lastActivityKey)
	if err != nil {
		if err == store.ErrNotFound {
			// first guarded call after sign-in
			return false, nil
		}
		return false, err
	}
	lastMs, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		g.logger.Warn("malformed last-activity timestamp", zap.String("value", string(raw)))
		return false, nil
	}
	return now.UnixMilli()-lastMs > g.timeout.Milliseconds(), nil
}

func (g *Guard) storedActorID(ctx context.Context) string {
	raw, err := g.store.Get(ctx, authUserKey)
	if err != nil {
		return ""
	}
	var profile actorProfile
	if err := json.Unmarshal(raw, &profile); err != nil {
		return ""
	}
	return profile.ActorID
}

// RequireAuth checks the session and, on failure, triggers the sign-in
// redirect side effect. Returns whether the caller may proceed.
func (g *Guard) RequireAuth(ctx context.Context, returnTo string) bool {
	state := g.IsAuthenticated(ctx)
	if state.IsAuthenticated {
		return true
	}
	g.logger.Info("auth required, denying",
		util.String("reason", state.Reason),
		util.String("return_to", returnTo))
	if g.redirector != nil {
		g.redirector.RedirectToLogin(ctx, returnTo)
	}
	return false
}

// Token returns the stored credential, re-validating first so an expired
// session never leaks a token.
func (g *Guard) Token(ctx context.Context) (string, bool) {
	if !g.IsAuthenticated(ctx).IsAuthenticated {
		return "", false
	}
	token, err := g.store.Get(ctx, authTokenKey)
	if err != nil {
		return "", false
	}
	return string(token), true
}

// ActorID returns the authenticated actor's ID, or false for an expired or
// absent session.
func (g *Guard) ActorID(ctx context.Context) (string, bool) {
	state := g.IsAuthenticated(ctx)
	if !state.IsAuthenticated {
		return "", false
	}
	return state.ActorID, true
}

// UpdateActivity overwrites the stored activity timestamp with now.
// Idempotent; called after every successful guarded action.
func (g *Guard) UpdateActivity(ctx context.Context) error {
	ms := strconv.FormatInt(g.now().UnixMilli(), 10)
	return g.store.Set(ctx, lastActivityKey, []byte(ms), 0)
}

// ClearAuth removes credential, actor profile and activity timestamp.
// Best-effort: failures are logged, not surfaced, so logout always
// completes from the caller's point of view.
func (g *Guard) ClearAuth(ctx context.Context) {
	g.clearAuthState(ctx)
}

func (g *Guard) clearAuthState(ctx context.Context) {
	if err := g.store.Delete(ctx, authTokenKey, authUserKey, lastActivityKey); err != nil {
		g.logger.Error("failed to clear auth state", zap.Error(err))
	}
}
