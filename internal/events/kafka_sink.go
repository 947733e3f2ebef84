package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"game-guard/internal/model"
	"game-guard/internal/util"
)

// KafkaSink streams security events to a Kafka topic. Messages are keyed
// by the event bucket so a hot actor cannot skew a single partition.
type KafkaSink struct {
	writer *kafka.Writer
	topic  string
	logger *zap.Logger
}

func NewKafkaSink(brokers []string, topic string) (*KafkaSink, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("no kafka brokers configured")
	}

	logger := util.Get()
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Balancer:     &kafka.LeastBytes{},
		MaxAttempts:  3,
		BatchSize:    100,
		BatchBytes:   1048576, // 1MB
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
		Async:        false,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				logger.Error("failed to write kafka messages",
					zap.Error(err),
					zap.Int("message_count", len(messages)),
				)
			}
		},
	}

	util.Info("Kafka event sink initialized",
		zap.Strings("brokers", brokers),
		zap.String("topic", topic),
	)

	return &KafkaSink{
		writer: writer,
		topic:  topic,
		logger: logger,
	}, nil
}

func (s *KafkaSink) Publish(ctx context.Context, event model.SecurityEvent) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode security event: %w", err)
	}

	msg := kafka.Message{
		Topic: s.topic,
		Key:   []byte(strconv.Itoa(event.EventBucket)),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
			{Key: "severity", Value: []byte(event.Severity)},
		},
	}

	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write kafka message: %w", err)
	}

	s.logger.Debug("Published security event to kafka",
		zap.String("topic", s.topic),
		zap.String("event_id", event.EventID),
		zap.Int("value_size", len(value)),
	)
	return nil
}

func (s *KafkaSink) Close() error {
	if s.writer != nil {
		if err := s.writer.Close(); err != nil {
			s.logger.Error("failed to close kafka event sink", zap.Error(err))
			return err
		}
		s.logger.Info("Kafka event sink closed")
	}
	return nil
}
