package security

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"game-guard/internal/encryption"
	"game-guard/internal/model"
	"game-guard/internal/store"
	"game-guard/internal/util"
)

const (
	gameSessionKeyPrefix = "game_session_"
	gameSessionTTL       = 24 * time.Hour

	// plausibility floors for result verification
	minGameDuration   = 1000 * time.Millisecond
	maxCoinsPerResult = 10000
)

// ErrNotAuthenticated is returned when a session is requested without an
// authenticated actor.
var ErrNotAuthenticated = errors.New("actor not authenticated")

// CreateGameSession issues a provably-fair session for a game start. The
// server seed is committed to via its SHA-256 hash; the seed itself is
// sealed at rest and revealed only by a valid verification.
func (m *Middleware) CreateGameSession(ctx context.Context, gameID string) (*model.GameSession, error) {
	actorID, ok := m.guard.ActorID(ctx)
	if !ok {
		return nil, ErrNotAuthenticated
	}

	now := m.now()
	sessionID := newSessionID(now)

	seedBytes := make([]byte, 32)
	if _, err := rand.Read(seedBytes); err != nil {
		return nil, fmt.Errorf("failed to generate server seed: %w", err)
	}
	serverSeed := hex.EncodeToString(seedBytes)
	seedHash := sha256.Sum256([]byte(serverSeed))

	sealed, err := m.sealer.Seal(ctx, []byte(serverSeed))
	if err != nil {
		return nil, fmt.Errorf("failed to seal server seed: %w", err)
	}
	sealedRaw, err := json.Marshal(sealed)
	if err != nil {
		return nil, fmt.Errorf("failed to encode sealed seed: %w", err)
	}

	session := model.GameSession{
		SessionID:  sessionID,
		GameID:     gameID,
		ActorID:    actorID,
		StartTime:  now.UnixMilli(),
		SealedSeed: sealedRaw,
		SeedHash:   hex.EncodeToString(seedHash[:]),
	}

	raw, err := json.Marshal(session)
	if err != nil {
		return nil, fmt.Errorf("failed to encode game session: %w", err)
	}
	if err := m.store.Set(ctx, gameSessionKeyPrefix+sessionID, raw, gameSessionTTL); err != nil {
		return nil, fmt.Errorf("failed to persist game session: %w", err)
	}
	if err := m.store.Set(ctx, currentSessionKey, []byte(sessionID), gameSessionTTL); err != nil {
		m.logger.Warn("failed to record current session pointer", zap.Error(err))
	}

	m.logger.Info("game session created",
		util.String("session_id", sessionID),
		util.String("game_id", gameID),
		util.String("actor_id", actorID))

	return &session, nil
}

// newSessionID builds a timestamp-plus-random identifier. Collision
// avoidance only, not secrecy; the seed carries the entropy that matters.
func newSessionID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.New().String(), "-", "")[:12]
	return strconv.FormatInt(now.UnixMilli(), 10) + "_" + suffix
}

// VerifyGameResult sanity-checks a claimed outcome against its session.
// Advisory only: it rejects implausible payouts and implausibly fast
// completions, it does not authorize rewards. A valid result reveals the
// server seed so the client can check the commitment hash.
func (m *Middleware) VerifyGameResult(ctx context.Context, sessionID string, result model.GameResult) model.VerifyResult {
	raw, err := m.store.Get(ctx, gameSessionKeyPrefix+sessionID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			m.logger.Error("failed to load game session",
				util.String("session_id", sessionID), zap.Error(err))
		}
		return model.VerifyResult{IsValid: false, Reason: model.ReasonSessionNotFound}
	}
	var session model.GameSession
	if err := json.Unmarshal(raw, &session); err != nil {
		m.logger.Error("malformed game session",
			util.String("session_id", sessionID), zap.Error(err))
		return model.VerifyResult{IsValid: false, Reason: model.ReasonSessionNotFound}
	}

	if result.CoinsEarned > maxCoinsPerResult {
		m.LogSuspiciousActivity(ctx, session.ActorID, model.SuspiciousReward,
			map[string]any{
				"session_id":   sessionID,
				"game_id":      session.GameID,
				"coins_earned": result.CoinsEarned,
			},
			model.SeverityHigh)
		return model.VerifyResult{IsValid: false, Reason: model.ReasonSuspiciousReward}
	}

	elapsed := m.now().UnixMilli() - session.StartTime
	if elapsed < minGameDuration.Milliseconds() {
		m.LogSuspiciousActivity(ctx, session.ActorID, model.SuspiciousTiming,
			map[string]any{
				"session_id": sessionID,
				"game_id":    session.GameID,
				"elapsed_ms": elapsed,
			},
			model.SeverityHigh)
		return model.VerifyResult{IsValid: false, Reason: model.ReasonCompletedTooFast}
	}

	verdict := model.VerifyResult{IsValid: true, SeedHash: session.SeedHash}
	verdict.ServerSeed = m.revealSeed(ctx, &session)
	return verdict
}

func (m *Middleware) revealSeed(ctx context.Context, session *model.GameSession) string {
	if len(session.SealedSeed) == 0 {
		return session.ServerSeed
	}
	var sealed encryption.EncryptedData
	if err := json.Unmarshal(session.SealedSeed, &sealed); err != nil {
		m.logger.Error("malformed sealed seed",
			util.String("session_id", session.SessionID), zap.Error(err))
		return ""
	}
	seed, err := m.sealer.Open(ctx, &sealed)
	if err != nil {
		m.logger.Error("failed to open sealed seed",
			util.String("session_id", session.SessionID), zap.Error(err))
		return ""
	}
	return string(seed)
}
