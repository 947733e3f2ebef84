package model

import "time"

// SecurityEvent is the fan-out record published to the event sinks (Kafka
// stream, ClickHouse analytics, Elasticsearch index) whenever the guard
// flags an actor. EventBucket partitions high-volume actors across sinks.
type SecurityEvent struct {
	EventID     string    `json:"event_id"`
	EventBucket int       `json:"event_bucket"`
	ActorID     string    `json:"actor_id"`
	EventDate   string    `json:"event_date"`
	EventTime   time.Time `json:"event_time"`
	EventType   string    `json:"event_type"`
	Severity    string    `json:"severity"`
	SessionID   string    `json:"session_id,omitempty"`
	GameAction  string    `json:"game_action,omitempty"`
	Details     string    `json:"details,omitempty"`
}
