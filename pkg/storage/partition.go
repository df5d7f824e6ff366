package storage

import (
	"sync"
)

// Partition models the storage of one origin: a local area shared by
// every execution context, a private session area per context, and the
// change broadcast that carries local-area writes to the other
// contexts.
//
// A Partition serves two roles. Server-side it is the shared mirror for
// all connected tabs of an origin. In tests and examples it stands in
// for the browser environment itself.
type Partition struct {
	local *MemoryStore
	bcast *Broadcaster

	mu       sync.Mutex
	sessions map[string]*MemoryStore
	opts     []MemoryStoreOption
}

// NewPartition creates an empty partition. The options are applied to
// the local store and to every session store it creates.
func NewPartition(opts ...MemoryStoreOption) *Partition {
	return &Partition{
		local:    NewMemoryStore(opts...),
		bcast:    NewBroadcaster(),
		sessions: make(map[string]*MemoryStore),
		opts:     opts,
	}
}

// Local returns a view of the shared local area whose writes are
// attributed to contextID. Changes made through the view are broadcast
// to every other subscribed context; a write that leaves the stored
// value unchanged is not broadcast.
func (p *Partition) Local(contextID string) Store {
	return &localView{part: p, origin: contextID}
}

// Session returns the session area for contextID, creating it on first
// use. Session-area changes are never broadcast.
func (p *Partition) Session(contextID string) Store {
	p.mu.Lock()
	defer p.mu.Unlock()

	s, ok := p.sessions[contextID]
	if !ok {
		s = NewMemoryStore(p.opts...)
		p.sessions[contextID] = s
	}
	return s
}

// Area returns the store for (contextID, area).
func (p *Partition) Area(contextID string, area Area) Store {
	if area == AreaSession {
		return p.Session(contextID)
	}
	return p.Local(contextID)
}

// Drop discards the session area of contextID. Called when the context
// ends.
func (p *Partition) Drop(contextID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.sessions, contextID)
}

// Subscribe registers contextID for local-area change events. Events
// originated by contextID itself are not delivered.
func (p *Partition) Subscribe(contextID string, buffer int) (<-chan Event, func()) {
	return p.bcast.Subscribe(contextID, buffer)
}

// SnapshotLocal copies the current local-area contents.
func (p *Partition) SnapshotLocal() map[string]string {
	return Snapshot(p.local)
}

// SeedLocal replaces the local-area contents without broadcasting.
// Used when a mirror is restored from persistence.
func (p *Partition) SeedLocal(items map[string]string) {
	p.local.Replace(items)
}

// Close shuts down the broadcast channel of the partition.
func (p *Partition) Close() {
	p.bcast.Close()
}

// localView attributes writes on the shared local store to one context
// and publishes the resulting change events.
type localView struct {
	part   *Partition
	origin string
}

func (v *localView) GetItem(key string) (string, bool) {
	return v.part.local.GetItem(key)
}

func (v *localView) SetItem(key, value string) error {
	old, had, err := v.part.local.swap(key, value)
	if err != nil {
		return err
	}
	if had && old == value {
		return nil
	}
	v.part.bcast.Publish(Event{
		Area:     AreaLocal,
		Key:      key,
		OldValue: old,
		NewValue: value,
		HasOld:   had,
		HasNew:   true,
		Origin:   v.origin,
	})
	return nil
}

func (v *localView) RemoveItem(key string) {
	old, had := v.part.local.take(key)
	if !had {
		return
	}
	v.part.bcast.Publish(Event{
		Area:     AreaLocal,
		Key:      key,
		OldValue: old,
		HasOld:   true,
		Origin:   v.origin,
	})
}

func (v *localView) Keys() []string {
	return v.part.local.Keys()
}

func (v *localView) Len() int {
	return v.part.local.Len()
}
