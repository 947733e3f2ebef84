// Package events delivers guard security events to downstream systems.
// Sinks are best-effort: the security path never fails a player action
// because an analytics backend is down.
package events

import (
	"context"

	"go.uber.org/zap"

	"game-guard/internal/model"
	"game-guard/internal/util"
)

// Sink accepts a security event for delivery.
type Sink interface {
	Publish(ctx context.Context, event model.SecurityEvent) error
	Close() error
}

// NopSink discards events. Used when no backend is configured.
type NopSink struct{}

func (NopSink) Publish(ctx context.Context, event model.SecurityEvent) error { return nil }
func (NopSink) Close() error                                                 { return nil }

// MultiSink fans out to several sinks. A failing sink is logged and
// skipped, the others still receive the event.
type MultiSink struct {
	sinks  []Sink
	logger *zap.Logger
}

func NewMultiSink(sinks ...Sink) *MultiSink {
	return &MultiSink{
		sinks:  sinks,
		logger: util.Get(),
	}
}

func (m *MultiSink) Publish(ctx context.Context, event model.SecurityEvent) error {
	for _, s := range m.sinks {
		if err := s.Publish(ctx, event); err != nil {
			m.logger.Error("failed to publish security event",
				zap.Error(err),
				zap.String("event_id", event.EventID),
				zap.String("event_type", event.EventType),
			)
		}
	}
	return nil
}

func (m *MultiSink) Close() error {
	var firstErr error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
