// Package bucketing assigns stable partition buckets to actors and events
// so downstream sinks (Kafka partitions, ClickHouse shards) spread load
// without hot keys.
package bucketing

import (
	"hash"
	"sync"
	"time"

	"github.com/spaolacci/murmur3"
)

const DefaultEventBuckets = 64

type Manager struct {
	eventBuckets int
	hasherPool   sync.Pool
}

func NewManager(eventBuckets int) *Manager {
	if eventBuckets <= 0 {
		eventBuckets = DefaultEventBuckets
	}
	m := &Manager{eventBuckets: eventBuckets}
	// pool of hash states to avoid per-call allocation
	m.hasherPool = sync.Pool{
		New: func() interface{} {
			return murmur3.New64()
		},
	}
	return m
}

// ActorBucket returns a consistent bucket for an actor (0..eventBuckets-1).
func (m *Manager) ActorBucket(actorID string) int {
	return m.bucket(actorID)
}

// EventBucket returns the bucket for an arbitrary event identifier.
func (m *Manager) EventBucket(identifier string) int {
	return m.bucket(identifier)
}

// DateBucket returns the UTC date partition for an event time.
func (m *Manager) DateBucket(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

func (m *Manager) bucket(id string) int {
	h := m.hasherPool.Get().(hash.Hash64)
	h.Reset()
	_, _ = h.Write([]byte(id))
	sum := h.Sum64()
	m.hasherPool.Put(h)
	return int(sum % uint64(m.eventBuckets))
}
