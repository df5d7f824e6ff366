package mirror

import (
	"context"
	"sync"
	"time"

	"github.com/tabsync-dev/tabsync/pkg/storage"
)

// memoryStoreConfig holds configuration for MemoryStore.
type memoryStoreConfig struct {
	ttl             time.Duration
	cleanupInterval time.Duration
}

// MemoryStoreOption configures a MemoryStore.
type MemoryStoreOption func(*memoryStoreConfig)

// WithTTL sets how long snapshots are kept after their last save.
// Zero means snapshots never expire.
func WithTTL(ttl time.Duration) MemoryStoreOption {
	return func(c *memoryStoreConfig) {
		c.ttl = ttl
	}
}

// WithCleanupInterval sets how often expired snapshots are evicted.
func WithCleanupInterval(interval time.Duration) MemoryStoreOption {
	return func(c *memoryStoreConfig) {
		c.cleanupInterval = interval
	}
}

// MemoryStore keeps snapshots in memory. Suitable for development and
// single-instance deployments; snapshots are lost on restart.
type MemoryStore struct {
	mu    sync.RWMutex
	snaps map[snapKey]*Snapshot
	ttl   time.Duration

	done   chan struct{}
	closed bool
}

type snapKey struct {
	origin string
	area   storage.Area
}

// NewMemoryStore creates an in-memory snapshot store.
func NewMemoryStore(opts ...MemoryStoreOption) *MemoryStore {
	cfg := memoryStoreConfig{
		cleanupInterval: time.Minute,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	s := &MemoryStore{
		snaps: make(map[snapKey]*Snapshot),
		ttl:   cfg.ttl,
		done:  make(chan struct{}),
	}

	if s.ttl > 0 {
		go s.cleanupLoop(cfg.cleanupInterval)
	}

	return s
}

// Save persists a snapshot, replacing any previous one.
func (s *MemoryStore) Save(ctx context.Context, snap *Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed{}
	}

	// Copy so later caller mutations do not leak into the store.
	s.snaps[snapKey{snap.Origin, snap.Area}] = snap.Clone()
	return nil
}

// Load retrieves a snapshot. Returns (nil, nil) if none exists or it
// has expired.
func (s *MemoryStore) Load(ctx context.Context, origin string, area storage.Area) (*Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed{}
	}

	snap, ok := s.snaps[snapKey{origin, area}]
	if !ok {
		return nil, nil
	}
	if s.expired(snap, time.Now()) {
		return nil, nil
	}
	return snap.Clone(), nil
}

// Delete removes a snapshot.
func (s *MemoryStore) Delete(ctx context.Context, origin string, area storage.Area) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed{}
	}

	delete(s.snaps, snapKey{origin, area})
	return nil
}

// Close stops the cleanup goroutine and rejects further use.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	close(s.done)
	s.snaps = make(map[snapKey]*Snapshot)
	return nil
}

// Count returns the number of stored snapshots, for monitoring and
// testing purposes.
func (s *MemoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.snaps)
}

func (s *MemoryStore) expired(snap *Snapshot, now time.Time) bool {
	return s.ttl > 0 && now.Sub(snap.UpdatedAt) > s.ttl
}

// cleanupLoop periodically evicts expired snapshots.
func (s *MemoryStore) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.evictExpired()
		case <-s.done:
			return
		}
	}
}

func (s *MemoryStore) evictExpired() {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	for key, snap := range s.snaps {
		if s.expired(snap, now) {
			delete(s.snaps, key)
		}
	}
}
