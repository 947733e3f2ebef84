package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"go.uber.org/zap"

	"game-guard/internal/util"
)

// ScyllaStore is an alternative durable KeyValueStore over a single
// guard_kv table:
//
//	CREATE TABLE guard_kv (key text PRIMARY KEY, value blob)
//
// TTLs map to the row's USING TTL clause.
type ScyllaStore struct {
	session *gocql.Session
}

// ScyllaOptions configures the cluster connection.
type ScyllaOptions struct {
	Nodes    []string
	Keyspace string
	Username string
	Password string
}

// NewScyllaStore connects to the cluster and prepares the session.
func NewScyllaStore(opts ScyllaOptions) (*ScyllaStore, error) {
	cluster := gocql.NewCluster(opts.Nodes...)
	cluster.Keyspace = opts.Keyspace
	cluster.Consistency = gocql.LocalQuorum
	cluster.Timeout = 10 * time.Second
	cluster.ConnectTimeout = 10 * time.Second
	cluster.NumConns = 4
	cluster.RetryPolicy = &gocql.ExponentialBackoffRetryPolicy{
		Min:        time.Second,
		Max:        10 * time.Second,
		NumRetries: 3,
	}

	if opts.Username != "" && opts.Password != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{
			Username: opts.Username,
			Password: opts.Password,
		}
	}

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create scylla session: %w", err)
	}

	util.Info("Scylla store initialized",
		zap.Strings("nodes", opts.Nodes),
		zap.String("keyspace", opts.Keyspace))

	return &ScyllaStore{session: session}, nil
}

func (s *ScyllaStore) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.session.Query(`SELECT value FROM guard_kv WHERE key = ?`, key).
		WithContext(ctx).Scan(&value)
	if err != nil {
		if errors.Is(err, gocql.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scylla get %s: %w", key, err)
	}
	return value, nil
}

func (s *ScyllaStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	var err error
	if ttl > 0 {
		err = s.session.Query(`INSERT INTO guard_kv (key, value) VALUES (?, ?) USING TTL ?`,
			key, value, int(ttl.Seconds())).WithContext(ctx).Exec()
	} else {
		err = s.session.Query(`INSERT INTO guard_kv (key, value) VALUES (?, ?)`,
			key, value).WithContext(ctx).Exec()
	}
	if err != nil {
		return fmt.Errorf("scylla set %s: %w", key, err)
	}
	return nil
}

func (s *ScyllaStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := s.session.Query(`DELETE FROM guard_kv WHERE key IN ?`, keys).
		WithContext(ctx).Exec(); err != nil {
		return fmt.Errorf("scylla delete: %w", err)
	}
	return nil
}

// HealthCheck verifies cluster connectivity.
func (s *ScyllaStore) HealthCheck(ctx context.Context) error {
	var release string
	if err := s.session.Query(`SELECT release_version FROM system.local`).
		WithContext(ctx).Scan(&release); err != nil {
		return fmt.Errorf("scylla health check: %w", err)
	}
	return nil
}

// Close shuts down the cluster session.
func (s *ScyllaStore) Close() error {
	s.session.Close()
	util.Info("Scylla store closed")
	return nil
}
