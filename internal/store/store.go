// Package store provides the persistent key-value storage the guard reads
// and writes. Every record type owns a disjoint key prefix, so no cross-key
// transactions are required of an implementation.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a key has no value.
var ErrNotFound = errors.New("key not found")

// KeyValueStore is the abstract persistent store behind the guard. Values
// survive process restarts. A zero TTL means no expiry.
type KeyValueStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// PrefixStore namespaces every key of an underlying store, giving each
// device its own keyspace over a shared backend.
type PrefixStore struct {
	inner  KeyValueStore
	prefix string
}

// NewPrefixStore wraps inner so all keys are prefixed.
func NewPrefixStore(inner KeyValueStore, prefix string) *PrefixStore {
	return &PrefixStore{inner: inner, prefix: prefix}
}

func (s *PrefixStore) Get(ctx context.Context, key string) ([]byte, error) {
	return s.inner.Get(ctx, s.prefix+key)
}

func (s *PrefixStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.inner.Set(ctx, s.prefix+key, value, ttl)
}

func (s *PrefixStore) Delete(ctx context.Context, keys ...string) error {
	prefixed := make([]string, len(keys))
	for i, k := range keys {
		prefixed[i] = s.prefix + k
	}
	return s.inner.Delete(ctx, prefixed...)
}
