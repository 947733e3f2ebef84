// Package config loads the guard's runtime configuration from the
// environment, with an optional .env file for local development.
package config

import (
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	CORSOrigins  []string
}

type LoggingConfig struct {
	Level  string
	Format string
}

type RedisConfig struct {
	URL      string
	PoolSize int
}

type ScyllaConfig struct {
	Hosts    []string
	Keyspace string
}

type KafkaConfig struct {
	Enabled bool
	Brokers []string
	Topic   string
}

type ClickhouseConfig struct {
	Enabled  bool
	URL      string
	Database string
	Username string
	Password string
}

type ElasticsearchConfig struct {
	Enabled  bool
	URL      string
	Username string
	Password string
	Index    string
}

type KMSConfig struct {
	Enabled bool
	KeyID   string
	Region  string
}

// GuardConfig carries the anti-abuse knobs.
type GuardConfig struct {
	StoreBackend   string // memory, redis or scylla
	KeyPrefix      string // namespaces all guard keys on a shared backend
	SessionTimeout time.Duration
	FallbackDeny   bool
	EventBuckets   int
	AdminKeyHash   string
	ClientVersion  string
	Platform       string
}

type Config struct {
	Environment   string
	Server        ServerConfig
	Logging       LoggingConfig
	Redis         RedisConfig
	Scylla        ScyllaConfig
	Kafka         KafkaConfig
	Clickhouse    ClickhouseConfig
	Elasticsearch ElasticsearchConfig
	KMS           KMSConfig
	Guard         GuardConfig
}

var (
	global *Config
	once   sync.Once
)

// LoadConfig reads the environment once and caches the result.
func LoadConfig() *Config {
	once.Do(func() {
		// best-effort; production runs from real env vars
		_ = godotenv.Load()

		global = &Config{
			Environment: GetEnv("ENVIRONMENT", "development"),
			Server: ServerConfig{
				Port:         GetEnv("SERVER_PORT", "8080"),
				ReadTimeout:  GetDurationEnv("SERVER_READ_TIMEOUT", 15*time.Second),
				WriteTimeout: GetDurationEnv("SERVER_WRITE_TIMEOUT", 15*time.Second),
				IdleTimeout:  GetDurationEnv("SERVER_IDLE_TIMEOUT", 60*time.Second),
				CORSOrigins:  GetSliceEnv("CORS_ORIGINS", []string{"*"}),
			},
			Logging: LoggingConfig{
				Level:  GetEnv("LOG_LEVEL", "info"),
				Format: GetEnv("LOG_FORMAT", "json"),
			},
			Redis: RedisConfig{
				URL:      GetEnv("REDIS_URL", "redis://localhost:6379/0"),
				PoolSize: GetIntEnv("REDIS_POOL_SIZE", 10),
			},
			Scylla: ScyllaConfig{
				Hosts:    GetSliceEnv("SCYLLA_HOSTS", []string{"localhost:9042"}),
				Keyspace: GetEnv("SCYLLA_KEYSPACE", "game_guard"),
			},
			Kafka: KafkaConfig{
				Enabled: GetBoolEnv("KAFKA_ENABLED", false),
				Brokers: GetSliceEnv("KAFKA_BROKERS", []string{"localhost:9092"}),
				Topic:   GetEnv("KAFKA_SECURITY_TOPIC", "guard-security-events"),
			},
			Clickhouse: ClickhouseConfig{
				Enabled:  GetBoolEnv("CLICKHOUSE_ENABLED", false),
				URL:      GetEnv("CLICKHOUSE_URL", "localhost:9000"),
				Database: GetEnv("CLICKHOUSE_DATABASE", "game_guard"),
				Username: GetEnv("CLICKHOUSE_USERNAME", "default"),
				Password: GetEnv("CLICKHOUSE_PASSWORD", ""),
			},
			Elasticsearch: ElasticsearchConfig{
				Enabled:  GetBoolEnv("ELASTICSEARCH_ENABLED", false),
				URL:      GetEnv("ELASTICSEARCH_URL", "http://localhost:9200"),
				Username: GetEnv("ELASTICSEARCH_USERNAME", ""),
				Password: GetEnv("ELASTICSEARCH_PASSWORD", ""),
				Index:    GetEnv("ELASTICSEARCH_INDEX", "guard-security-events"),
			},
			KMS: KMSConfig{
				Enabled: GetBoolEnv("KMS_ENABLED", false),
				KeyID:   GetEnv("KMS_KEY_ID", ""),
				Region:  GetEnv("AWS_REGION", "us-east-1"),
			},
			Guard: GuardConfig{
				StoreBackend:   GetEnv("GUARD_STORE_BACKEND", "memory"),
				KeyPrefix:      GetEnv("GUARD_KEY_PREFIX", ""),
				SessionTimeout: GetDurationEnv("GUARD_SESSION_TIMEOUT", 30*time.Minute),
				FallbackDeny:   GetBoolEnv("GUARD_RATE_LIMIT_FALLBACK_DENY", false),
				EventBuckets:   GetIntEnv("GUARD_EVENT_BUCKETS", 64),
				AdminKeyHash:   GetEnv("GUARD_ADMIN_KEY_HASH", ""),
				ClientVersion:  GetEnv("GUARD_CLIENT_VERSION", "1.0.0"),
				Platform:       GetEnv("GUARD_PLATFORM", "server"),
			},
		}
	})
	return global
}

// Get returns the loaded configuration, loading it on first use.
func Get() *Config {
	return LoadConfig()
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) IsDevelopment() bool {
	return !c.IsProduction()
}

func GetEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func GetIntEnv(key string, fallback int) int {
	raw := GetEnv(key, "")
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

func GetBoolEnv(key string, fallback bool) bool {
	raw := GetEnv(key, "")
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return value
}

func GetDurationEnv(key string, fallback time.Duration) time.Duration {
	raw := GetEnv(key, "")
	if raw == "" {
		return fallback
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return value
}

func GetSliceEnv(key string, fallback []string) []string {
	raw := GetEnv(key, "")
	if raw == "" {
		return fallback
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
