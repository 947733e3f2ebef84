package security

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"game-guard/internal/model"
	"game-guard/internal/store"
	"game-guard/internal/util"
)

const (
	suspiciousKeyPrefix = "suspicious_activity_"

	// blocking threshold over a rolling window
	suspiciousWindow         = time.Hour
	suspiciousTotalThreshold = 5
	suspiciousHighThreshold  = 2

	// ledger is capped to the most recent entries per actor
	maxLedgerEntries = 100
)

// ledger is the per-actor append-only suspicious-activity log.
type ledger struct {
	store  store.KeyValueStore
	logger *zap.Logger
	mu     sync.Mutex
}

func (l *ledger) key(actorID string) string {
	return suspiciousKeyPrefix + actorID
}

func (l *ledger) load(ctx context.Context, actorID string) []model.SuspiciousActivity {
	raw, err := l.store.Get(ctx, l.key(actorID))
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			l.logger.Error("failed to read suspicious-activity ledger",
				util.String("actor_id", actorID), zap.Error(err))
		}
		return nil
	}
	var entries []model.SuspiciousActivity
	if err := json.Unmarshal(raw, &entries); err != nil {
		l.logger.Warn("malformed suspicious-activity ledger, starting fresh",
			util.String("actor_id", actorID), zap.Error(err))
		return nil
	}
	return entries
}

func (l *ledger) append(ctx context.Context, actorID string, entry model.SuspiciousActivity) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries := append(l.load(ctx, actorID), entry)
	if len(entries) > maxLedgerEntries {
		entries = entries[len(entries)-maxLedgerEntries:]
	}

	raw, err := json.Marshal(entries)
	if err != nil {
		l.logger.Error("failed to encode suspicious-activity ledger", zap.Error(err))
		return
	}
	if err := l.store.Set(ctx, l.key(actorID), raw, 0); err != nil {
		l.logger.Error("failed to persist suspicious-activity ledger",
			util.String("actor_id", actorID), zap.Error(err))
	}
}

func (l *ledger) clear(ctx context.Context, actorID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.store.Delete(ctx, l.key(actorID)); err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}
	return nil
}

// LogSuspiciousActivity appends one entry to the actor's ledger and fans
// the event out to the configured sinks. Never fails the caller.
func (m *Middleware) LogSuspiciousActivity(ctx context.Context, actorID, activityType string, details map[string]any, severity model.Severity) {
	now := m.now()
	entry := model.SuspiciousActivity{
		Type:      activityType,
		Timestamp: now.UnixMilli(),
		Details:   details,
		Severity:  severity,
	}
	m.ledger.append(ctx, actorID, entry)

	m.logger.Warn("suspicious activity recorded",
		util.String("actor_id", actorID),
		util.String("type", activityType),
		util.String("severity", string(severity)))

	m.publishEvent(ctx, actorID, activityType, severity, details, now)
}

func (m *Middleware) publishEvent(ctx context.Context, actorID, eventType string, severity model.Severity, details map[string]any, at time.Time) {
	event := model.SecurityEvent{
		EventID:     uuid.New().String(),
		EventBucket: m.buckets.ActorBucket(actorID),
		ActorID:     actorID,
		EventDate:   m.buckets.DateBucket(at),
		EventTime:   at.UTC(),
		EventType:   eventType,
		Severity:    string(severity),
	}
	if details != nil {
		if action, ok := details["action"].(string); ok {
			event.GameAction = action
		}
		if sessionID, ok := details["session_id"].(string); ok {
			event.SessionID = sessionID
		}
		if raw, err := json.Marshal(details); err == nil {
			event.Details = string(raw)
		}
	}
	if err := m.sink.Publish(ctx, event); err != nil {
		m.logger.Error("failed to publish security event",
			util.String("event_id", event.EventID), zap.Error(err))
	}
}

// CheckSuspiciousActivity applies the blocking threshold: within the
// rolling window the actor is flagged at 5 total entries or 2 high-severity
// ones.
func (m *Middleware) CheckSuspiciousActivity(ctx context.Context, actorID string) bool {
	entries := m.ledger.load(ctx, actorID)
	if len(entries) == 0 {
		return false
	}

	cutoff := m.now().Add(-suspiciousWindow).UnixMilli()
	var total, high int
	for _, entry := range entries {
		if entry.Timestamp <= cutoff {
			continue
		}
		total++
		if entry.Severity == model.SeverityHigh {
			high++
		}
	}
	return total >= suspiciousTotalThreshold || high >= suspiciousHighThreshold
}

// VerifyAdminKey checks an operator key against the configured hash. With
// no hash configured every key is rejected.
func (m *Middleware) VerifyAdminKey(adminKey string) bool {
	if m.adminKeyHash == "" {
		return false
	}
	ok, err := m.hasher.Verify(adminKey, m.adminKeyHash)
	return err == nil && ok
}

// ClearSuspiciousActivities wipes an actor's ledger. Requires the operator
// admin key.
func (m *Middleware) ClearSuspiciousActivities(ctx context.Context, actorID, adminKey string) error {
	if !m.VerifyAdminKey(adminKey) {
		return ErrAdminUnauthorized
	}

	if err := m.ledger.clear(ctx, actorID); err != nil {
		return err
	}
	m.logger.Info("suspicious-activity ledger cleared", util.String("actor_id", actorID))
	return nil
}
