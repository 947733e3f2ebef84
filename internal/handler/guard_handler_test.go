package handler

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"game-guard/internal/auth"
	"game-guard/internal/encryption"
	"game-guard/internal/hashing"
	"game-guard/internal/model"
	"game-guard/internal/ratelimit"
	"game-guard/internal/security"
	"game-guard/internal/store"
)

const testAdminKey = "operator-secret"

type apiFixture struct {
	router chi.Router
	kv     *store.MemoryStore
	clock  time.Time
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	f := &apiFixture{
		kv:    store.NewMemoryStore(),
		clock: time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC),
	}
	now := func() time.Time { return f.clock }
	f.kv.SetClock(now)

	logger := zap.NewNop()
	guard := auth.NewGuard(f.kv, logger, auth.WithClock(now))
	limiter := ratelimit.NewLimiter(f.kv, logger, ratelimit.WithClock(now))

	hasher := hashing.NewHasher(hashing.DefaultParams())
	keyHash, err := hasher.Hash(testAdminKey)
	require.NoError(t, err)

	mw := security.NewMiddleware(guard, limiter, f.kv, encryption.NewManager(nil, ""), logger,
		security.WithAdminKeyHash(keyHash),
		security.WithClientInfo("2.0.0", "test"),
		security.WithClock(now),
	)

	f.router = NewRouter(NewGuardHandler(mw, guard, limiter, logger), []string{"*"}, logger)
	return f
}

func (f *apiFixture) signIn(t *testing.T, actorID string) {
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

func (f *apiFixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestHealthEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	rec := f.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "game-guard")
}

func TestCheckWithoutCredential(t *testing.T) {
	f := newAPIFixture(t)
	rec := f.do(t, http.MethodPost, "/api/v1/guard/check",
		map[string]any{"action": model.GameActionSpinWheel})
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeResponse(t, rec)
	require.True(t, resp.Success)

	raw, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	var result model.CheckResult
	require.NoError(t, json.Unmarshal(raw, &result))
	assert.False(t, result.Allowed)
	assert.Equal(t, model.ReasonNotAuthenticated, result.Reason)
	assert.Equal(t, model.ActionRedirectLogin, result.Action)
}

func TestCheckRequiresAction(t *testing.T) {
	f := newAPIFixture(t)
	rec := f.do(t, http.MethodPost, "/api/v1/guard/check", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCheckAndRecordFlow(t *testing.T) {
	f := newAPIFixture(t)
	f.signIn(t, "actor-1")

	rec := f.do(t, http.MethodPost, "/api/v1/guard/check",
		map[string]any{"action": model.GameActionSpinWheel})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/v1/guard/attempts",
		map[string]any{"action": model.GameActionSpinWheel})
	require.Equal(t, http.StatusCreated, rec.Code)

	// quota for SPIN_WHEEL is one per day, the second check is denied
	f.clock = f.clock.Add(time.Minute)
	rec = f.do(t, http.MethodPost, "/api/v1/guard/check",
		map[string]any{"action": model.GameActionSpinWheel})
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeResponse(t, rec)
	raw, _ := json.Marshal(resp.Data)
	var result model.CheckResult
	require.NoError(t, json.Unmarshal(raw, &result))
	assert.False(t, result.Allowed)
	assert.Equal(t, model.ReasonMaxAttempts, result.Reason)
}

func TestRecordAttemptUnauthorized(t *testing.T) {
	f := newAPIFixture(t)
	rec := f.do(t, http.MethodPost, "/api/v1/guard/attempts",
		map[string]any{"action": model.GameActionQuizStart})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCooldownEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	f.signIn(t, "actor-1")

	rec := f.do(t, http.MethodGet, "/api/v1/guard/cooldown?action=QUIZ_ANSWER", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeResponse(t, rec)
	raw, _ := json.Marshal(resp.Data)
	var info model.CooldownInfo
	require.NoError(t, json.Unmarshal(raw, &info))
	assert.False(t, info.InCooldown)
	assert.Equal(t, "Now", info.Formatted)
}

func TestCooldownRequiresAction(t *testing.T) {
	f := newAPIFixture(t)
	f.signIn(t, "actor-1")
	rec := f.do(t, http.MethodGet, "/api/v1/guard/cooldown", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSessionLifecycleOverHTTP(t *testing.T) {
	f := newAPIFixture(t)
	f.signIn(t, "actor-1")

	rec := f.do(t, http.MethodPost, "/api/v1/guard/sessions",
		map[string]any{"game_id": "spin-wheel"})
	require.Equal(t, http.StatusCreated, rec.Code)

	resp := decodeResponse(t, rec)
	raw, _ := json.Marshal(resp.Data)
	var session model.GameSession
	require.NoError(t, json.Unmarshal(raw, &session))
	require.NotEmpty(t, session.SessionID)
	assert.Empty(t, session.ServerSeed)

	f.clock = f.clock.Add(5 * time.Second)
	rec = f.do(t, http.MethodPost, "/api/v1/guard/sessions/"+session.SessionID+"/verify",
		map[string]any{"coins_earned": 500})
	require.Equal(t, http.StatusOK, rec.Code)

	resp = decodeResponse(t, rec)
	raw, _ = json.Marshal(resp.Data)
	var verdict model.VerifyResult
	require.NoError(t, json.Unmarshal(raw, &verdict))
	assert.True(t, verdict.IsValid)
	assert.NotEmpty(t, verdict.ServerSeed)
}

func TestCreateSessionUnauthorized(t *testing.T) {
	f := newAPIFixture(t)
	rec := f.do(t, http.MethodPost, "/api/v1/guard/sessions",
		map[string]any{"game_id": "quiz"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestVerifyUnknownSessionOverHTTP(t *testing.T) {
	f := newAPIFixture(t)
	rec := f.do(t, http.MethodPost, "/api/v1/guard/sessions/nope/verify",
		map[string]any{"coins_earned": 10})
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeResponse(t, rec)
	raw, _ := json.Marshal(resp.Data)
	var verdict model.VerifyResult
	require.NoError(t, json.Unmarshal(raw, &verdict))
	assert.False(t, verdict.IsValid)
	assert.Equal(t, model.ReasonSessionNotFound, verdict.Reason)
}

func TestClearSuspiciousAdminKey(t *testing.T) {
	f := newAPIFixture(t)

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/guard/suspicious/actor-1", nil)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	req = httptest.NewRequest(http.MethodDelete, "/api/v1/guard/suspicious/actor-1", nil)
	req.Header.Set(adminKeyHeader, testAdminKey)
	rec = httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestResetLimitAdminKey(t *testing.T) {
	f := newAPIFixture(t)

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/guard/limits/actor-1/SPIN_WHEEL", nil)
	req.Header.Set(adminKeyHeader, "wrong")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	req = httptest.NewRequest(http.MethodDelete, "/api/v1/guard/limits/actor-1/SPIN_WHEEL", nil)
	req.Header.Set(adminKeyHeader, testAdminKey)
	rec = httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestUnknownRoute(t *testing.T) {
	f := newAPIFixture(t)
	rec := f.do(t, http.MethodGet, "/api/v1/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMethodNotAllowed(t *testing.T) {
	f := newAPIFixture(t)
	rec := f.do(t, http.MethodGet, "/api/v1/guard/check", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHeadersEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	f.signIn(t, "actor-1")

	rec := f.do(t, http.MethodGet, "/api/v1/guard/headers", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeResponse(t, rec)
	raw, _ := json.Marshal(resp.Data)
	var headers map[string]string
	require.NoError(t, json.Unmarshal(raw, &headers))
	assert.Contains(t, headers["Authorization"], "Bearer ")
	assert.Equal(t, "2.0.0", headers["X-Client-Version"])
	assert.Equal(t, "test", headers["X-Platform"])
}
