// Package factory wires the guard's components from configuration and owns
// their lifecycle.
package factory

import (
	"context"
	"fmt"
	"sync"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"

	"game-guard/internal/auth"
	"game-guard/internal/config"
	"game-guard/internal/encryption"
	"game-guard/internal/events"
	"game-guard/internal/ratelimit"
	"game-guard/internal/security"
	"game-guard/internal/store"
	"game-guard/internal/util"
)

// Factory builds and holds the application dependencies.
type Factory struct {
	config *config.Config

	kvStore store.KeyValueStore
	guard   *auth.Guard
	limiter *ratelimit.Limiter
	sealer  *encryption.Manager
	sink    events.Sink
	mw      *security.Middleware

	redisStore  *store.RedisStore
	scyllaStore *store.ScyllaStore

	closeOnce sync.Once
	closed    chan struct{}
}

// NewFactory loads configuration and initializes every component.
func NewFactory() (*Factory, error) {
	cfg := config.LoadConfig()
	util.Init(cfg.Environment, cfg.Logging.Level, cfg.Logging.Format)

	f := &Factory{
		config: cfg,
		closed: make(chan struct{}),
	}

	if err := f.initializeStore(); err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}
	if err := f.initializeSealer(); err != nil {
		return nil, fmt.Errorf("failed to initialize encryption: %w", err)
	}
	f.initializeSinks()
	f.initializeGuard()

	util.Info("Factory initialized successfully",
		util.String("environment", cfg.Environment),
		util.String("store_backend", cfg.Guard.StoreBackend),
		util.Bool("kms_enabled", cfg.KMS.Enabled),
	)
	return f, nil
}

func (f *Factory) initializeStore() error {
	switch f.config.Guard.StoreBackend {
	case "redis":
		rs, err := store.NewRedisStore(f.config.Redis.URL, f.config.Redis.PoolSize)
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		f.redisStore = rs
		f.kvStore = rs
	case "scylla":
		ss, err := store.NewScyllaStore(store.ScyllaOptions{
			Nodes:    f.config.Scylla.Hosts,
			Keyspace: f.config.Scylla.Keyspace,
		})
		if err != nil {
			return fmt.Errorf("scylla: %w", err)
		}
		f.scyllaStore = ss
		f.kvStore = ss
	case "memory":
		f.kvStore = store.NewMemoryStore()
		if f.config.IsProduction() {
			util.Warn("memory store selected in production, guard state will not survive restarts")
		}
	default:
		return fmt.Errorf("unknown store backend %q", f.config.Guard.StoreBackend)
	}

	// namespace this instance's keys when several share one backend
	if prefix := f.config.Guard.KeyPrefix; prefix != "" {
		f.kvStore = store.NewPrefixStore(f.kvStore, prefix)
	}
	return nil
}

func (f *Factory) initializeSealer() error {
	var kmsClient *kms.Client
	if f.config.KMS.Enabled {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(f.config.KMS.Region))
		if err != nil {
			return fmt.Errorf("aws config: %w", err)
		}
		kmsClient = kms.NewFromConfig(awsCfg)
	}
	f.sealer = encryption.NewManager(kmsClient, f.config.KMS.KeyID)
	return nil
}

// initializeSinks builds the event fan-out from whatever backends are
// enabled. A backend that fails to connect is skipped with a warning so a
// broken analytics stack never takes the guard down.
func (f *Factory) initializeSinks() {
	var sinks []events.Sink

	if f.config.Kafka.Enabled {
		if sink, err := events.NewKafkaSink(f.config.Kafka.Brokers, f.config.Kafka.Topic); err != nil {
			util.Warn("Kafka sink initialization failed, proceeding without it", util.ErrorField(err))
		} else {
			sinks = append(sinks, sink)
		}
	}
	if f.config.Clickhouse.Enabled {
		sink, err := events.NewClickHouseSink(events.ClickHouseOptions{
			URL:      f.config.Clickhouse.URL,
			Database: f.config.Clickhouse.Database,
			Username: f.config.Clickhouse.Username,
			Password: f.config.Clickhouse.Password,
		})
		if err != nil {
			util.Warn("ClickHouse sink initialization failed, proceeding without it", util.ErrorField(err))
		} else {
			sinks = append(sinks, sink)
		}
	}
	if f.config.Elasticsearch.Enabled {
		sink, err := events.NewElasticSink(events.ElasticOptions{
			URL:      f.config.Elasticsearch.URL,
			Username: f.config.Elasticsearch.Username,
			Password: f.config.Elasticsearch.Password,
			Index:    f.config.Elasticsearch.Index,
		})
		if err != nil {
			util.Warn("Elasticsearch sink initialization failed, proceeding without it", util.ErrorField(err))
		} else {
			sinks = append(sinks, sink)
		}
	}

	if len(sinks) == 0 {
		f.sink = events.NopSink{}
		return
	}
	f.sink = events.NewMultiSink(sinks...)
}

func (f *Factory) initializeGuard() {
	logger := util.Get()

	f.guard = auth.NewGuard(f.kvStore, logger,
		auth.WithSessionTimeout(f.config.Guard.SessionTimeout))

	limiterOpts := []ratelimit.Option{}
	if f.config.Guard.FallbackDeny {
		limiterOpts = append(limiterOpts, ratelimit.WithFallbackPolicy(ratelimit.FallbackDeny))
	}
	f.limiter = ratelimit.NewLimiter(f.kvStore, logger, limiterOpts...)

	f.mw = security.NewMiddleware(f.guard, f.limiter, f.kvStore, f.sealer, logger,
		security.WithSink(f.sink),
		security.WithEventBuckets(f.config.Guard.EventBuckets),
		security.WithAdminKeyHash(f.config.Guard.AdminKeyHash),
		security.WithClientInfo(f.config.Guard.ClientVersion, f.config.Guard.Platform),
	)
}

func (f *Factory) Config() *config.Config           { return f.config }
func (f *Factory) Store() store.KeyValueStore       { return f.kvStore }
func (f *Factory) Guard() *auth.Guard               { return f.guard }
func (f *Factory) Limiter() *ratelimit.Limiter      { return f.limiter }
func (f *Factory) Middleware() *security.Middleware { return f.mw }
func (f *Factory) Sink() events.Sink                { return f.sink }

// HealthCheck reports per-dependency health.
func (f *Factory) HealthCheck(ctx context.Context) map[string]error {
	healthErrors := make(map[string]error)

	if f.redisStore != nil {
		if err := f.redisStore.HealthCheck(ctx); err != nil {
			healthErrors["redis"] = err
		}
	}
	if f.scyllaStore != nil {
		if err := f.scyllaStore.HealthCheck(ctx); err != nil {
			healthErrors["scylla"] = err
		}
	}
	return healthErrors
}

func (f *Factory) IsHealthy(ctx context.Context) bool {
	return len(f.HealthCheck(ctx)) == 0
}

// Close shuts every owned dependency down, once.
func (f *Factory) Close() error {
	f.closeOnce.Do(func() {
		close(f.closed)
		util.Info("Shutting down factory...")

		if f.sink != nil {
			if err := f.sink.Close(); err != nil {
				util.Error("Failed to close event sinks", util.ErrorField(err))
			}
		}
		if f.scyllaStore != nil {
			if err := f.scyllaStore.Close(); err != nil {
				util.Error("Failed to close Scylla store", util.ErrorField(err))
			}
		}
		if f.redisStore != nil {
			if err := f.redisStore.Close(); err != nil {
				util.Error("Failed to close Redis store", util.ErrorField(err))
			}
		}

		util.Sync()
		util.Info("Factory shutdown completed")
	})
	return nil
}

func (f *Factory) WaitForClose() {
	<-f.closed
}
