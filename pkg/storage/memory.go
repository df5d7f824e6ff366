package storage

import (
	"sync"
)

// MemoryStore is the canonical in-memory Store implementation. It backs
// server-side mirrors of browser storage and stands in for the real
// thing in tests.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]string
	order []string
	usage int

	quota    int
	writeErr error
}

// MemoryStoreOption configures MemoryStore behavior.
type MemoryStoreOption func(*memoryStoreConfig)

type memoryStoreConfig struct {
	quota    int
	writeErr error
}

// WithQuota caps the store at n bytes, counting len(key)+len(value)
// per entry. Zero means unlimited. Default: unlimited.
func WithQuota(n int) MemoryStoreOption {
	return func(c *memoryStoreConfig) {
		c.quota = n
	}
}

// WithWriteError makes every SetItem fail with err. Used to exercise
// degraded-storage paths in tests.
func WithWriteError(err error) MemoryStoreOption {
	return func(c *memoryStoreConfig) {
		c.writeErr = err
	}
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(opts ...MemoryStoreOption) *MemoryStore {
	cfg := &memoryStoreConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	return &MemoryStore{
		items:    make(map[string]string),
		quota:    cfg.quota,
		writeErr: cfg.writeErr,
	}
}

// GetItem returns the value under key, if present.
func (m *MemoryStore) GetItem(key string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.items[key]
	return v, ok
}

// SetItem stores value under key. A replaced value's bytes are released
// before the new usage is checked against the quota.
func (m *MemoryStore) SetItem(key, value string) error {
	_, _, err := m.swap(key, value)
	return err
}

// swap stores value under key and returns the previous value, if any.
// Quota and write-error checks match SetItem.
func (m *MemoryStore) swap(key, value string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.writeErr != nil {
		return "", false, m.writeErr
	}

	old, existed := m.items[key]
	next := m.usage + len(key) + len(value)
	if existed {
		next -= len(key) + len(old)
	}
	if m.quota > 0 && next > m.quota {
		return "", false, ErrQuotaExceeded
	}

	m.items[key] = value
	m.usage = next
	if !existed {
		m.order = append(m.order, key)
	}
	return old, existed, nil
}

// take deletes key and returns the removed value, if any.
func (m *MemoryStore) take(key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	old, existed := m.items[key]
	if !existed {
		return "", false
	}

	delete(m.items, key)
	m.usage -= len(key) + len(old)
	for i, k := range m.order {
		if k == key {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return old, true
}

// RemoveItem deletes key from the store.
func (m *MemoryStore) RemoveItem(key string) {
	m.take(key)
}

// Keys returns the stored keys in insertion order.
func (m *MemoryStore) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, len(m.order))
	copy(keys, m.order)
	return keys
}

// Len returns the number of stored keys.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}

// Usage returns the current byte usage. This is for monitoring/testing
// purposes.
func (m *MemoryStore) Usage() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.usage
}

// Clear removes every key.
func (m *MemoryStore) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.items = make(map[string]string)
	m.order = nil
	m.usage = 0
}

// Replace swaps the full contents of the store for items. Insertion
// order of the new contents is unspecified between keys.
func (m *MemoryStore) Replace(items map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.items = make(map[string]string, len(items))
	m.order = make([]string, 0, len(items))
	m.usage = 0
	for k, v := range items {
		m.items[k] = v
		m.order = append(m.order, k)
		m.usage += len(k) + len(v)
	}
}
