package events

import (
	"context"
	"fmt"
	"strings"
	"time"

	ch "github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.uber.org/zap"

	"game-guard/internal/model"
	"game-guard/internal/util"
)

const createEventsTable = `
CREATE TABLE IF NOT EXISTS guard_security_events (
    event_id     String,
    event_bucket UInt16,
    actor_id     String,
    event_date   Date,
    event_time   DateTime64(3),
    event_type   LowCardinality(String),
    severity     LowCardinality(String),
    session_id   String,
    game_action  LowCardinality(String),
    details      String
) ENGINE = MergeTree()
PARTITION BY toYYYYMM(event_date)
ORDER BY (event_bucket, actor_id, event_time)`

const insertEvent = `
INSERT INTO guard_security_events
    (event_id, event_bucket, actor_id, event_date, event_time,
     event_type, severity, session_id, game_action, details)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// ClickHouseSink writes security events into an analytics table partitioned
// by month and ordered by bucket for efficient per-actor scans.
type ClickHouseSink struct {
	conn   driver.Conn
	logger *zap.Logger
}

type ClickHouseOptions struct {
	URL      string
	Database string
	Username string
	Password string
}

func NewClickHouseSink(opts ClickHouseOptions) (*ClickHouseSink, error) {
	conn, err := ch.Open(&ch.Options{
		Addr: []string{extractHostPort(opts.URL)},
		Auth: ch.Auth{
			Username: opts.Username,
			Password: opts.Password,
			Database: opts.Database,
		},
		DialTimeout:      30 * time.Second,
		MaxOpenConns:     50,
		MaxIdleConns:     10,
		ConnMaxLifetime:  time.Hour,
		ConnOpenStrategy: ch.ConnOpenInOrder,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open ClickHouse connection: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := conn.Ping(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}
	if err := conn.Exec(ctx, createEventsTable); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create events table: %w", err)
	}

	util.Info("ClickHouse event sink initialized",
		zap.String("url", opts.URL),
		zap.String("database", opts.Database),
	)

	return &ClickHouseSink{
		conn:   conn,
		logger: util.Get(),
	}, nil
}

func (s *ClickHouseSink) Publish(ctx context.Context, event model.SecurityEvent) error {
	eventDate, err := time.Parse("2006-01-02", event.EventDate)
	if err != nil {
		eventDate = event.EventTime.UTC().Truncate(24 * time.Hour)
	}

	err = s.conn.Exec(ctx, insertEvent,
		event.EventID,
		uint16(event.EventBucket),
		event.ActorID,
		eventDate,
		event.EventTime,
		event.EventType,
		event.Severity,
		event.SessionID,
		event.GameAction,
		event.Details,
	)
	if err != nil {
		return fmt.Errorf("failed to insert security event: %w", err)
	}
	return nil
}

func (s *ClickHouseSink) HealthCheck(ctx context.Context) error {
	return s.conn.Ping(ctx)
}

func (s *ClickHouseSink) Close() error {
	if s.conn != nil {
		if err := s.conn.Close(); err != nil {
			s.logger.Error("failed to close ClickHouse sink", zap.Error(err))
			return err
		}
		s.logger.Info("ClickHouse event sink closed")
	}
	return nil
}

func extractHostPort(url string) string {
	cleanURL := strings.TrimPrefix(url, "http://")
	cleanURL = strings.TrimPrefix(cleanURL, "https://")
	if !strings.Contains(cleanURL, ":") {
		return cleanURL + ":9000"
	}
	return cleanURL
}
