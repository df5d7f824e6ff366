package slot

import (
	"sync"

	"github.com/tabsync-dev/tabsync/pkg/storage"
)

// Slot is a typed value bound to a key in an execution context's
// storage. Reads never fail: an absent key or an unparseable stored
// value yields the slot's default. Writes go to storage and to every
// other slot bound to the same key in the same context, synchronously;
// storage failures are absorbed and the slot carries on in memory.
type Slot[T any] struct {
	binder       *Binder
	key          string
	area         storage.Area
	defaultValue T
	serialize    func(T) string
	deserialize  func(string) T
	deferInitial bool

	mu          sync.Mutex
	bound       bool
	touched     bool
	value       T
	raw         string
	present     bool
	watchers    map[int]func(T)
	nextWatcher int
}

// Use creates a slot for key with the given default, bound to b's
// local area. Configuration is chainable and should happen before the
// first access:
//
//	theme := slot.Use(b, "theme", "light")
//	count := slot.Use(b, "visits", 0).Area(storage.AreaSession)
//
// An empty key produces a slot that never touches storage and is not
// connected to other slots.
func Use[T any](b *Binder, key string, defaultValue T) *Slot[T] {
	return &Slot[T]{
		binder:       b,
		key:          key,
		area:         storage.AreaLocal,
		defaultValue: defaultValue,
		serialize:    DefaultSerializer[T](),
		deserialize:  DefaultDeserializer(defaultValue),
		value:        defaultValue,
		watchers:     make(map[int]func(T)),
	}
}

// Area selects the storage area. No effect once the slot is bound.
func (s *Slot[T]) Area(area storage.Area) *Slot[T] {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.bound {
		s.area = area
	}
	return s
}

// Serialize sets a custom serializer.
func (s *Slot[T]) Serialize(fn func(T) string) *Slot[T] {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.serialize = fn
	return s
}

// Deserialize sets a custom deserializer. The function decides what an
// unparseable input maps to; returning the slot's default keeps the
// standard fallback behavior.
func (s *Slot[T]) Deserialize(fn func(string) T) *Slot[T] {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deserialize = fn
	return s
}

// DeferInitial delays the first storage read until the binder's
// dispatcher runs it, instead of reading at bind time. Until then the
// slot holds its default. No effect once the slot is bound.
func (s *Slot[T]) DeferInitial() *Slot[T] {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.bound {
		s.deferInitial = true
	}
	return s
}

// Key returns the storage key.
func (s *Slot[T]) Key() string {
	return s.key
}

// Default returns the slot's default value.
func (s *Slot[T]) Default() T {
	return s.defaultValue
}

// Get returns the current value.
func (s *Slot[T]) Get() T {
	s.ensureBound()

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value
}

// IsSet reports whether the key currently holds a stored value, as
// opposed to the slot sitting on its default.
func (s *Slot[T]) IsSet() bool {
	s.ensureBound()

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.present
}

// Set stores value. Storage and every other same-key slot in the
// context observe the new value before Set returns.
func (s *Slot[T]) Set(value T) {
	s.ensureBound()

	s.mu.Lock()
	ser := s.serialize
	s.mu.Unlock()
	raw := ser(value)

	s.mu.Lock()
	changed := !s.present || s.raw != raw
	s.touched = true
	s.value = value
	s.raw = raw
	s.present = true
	watchers := s.watcherList()
	s.mu.Unlock()

	if s.key != "" {
		s.binder.writeItem(s.area, s.key, raw, s)
	}
	if changed {
		for _, w := range watchers {
			w(value)
		}
	}
}

// Update applies fn to the current value and stores the result.
func (s *Slot[T]) Update(fn func(T) T) {
	s.Set(fn(s.Get()))
}

// Clear deletes the stored value and resets the slot, and every other
// same-key slot in the context, to its default.
func (s *Slot[T]) Clear() {
	s.ensureBound()

	s.mu.Lock()
	changed := s.present
	s.touched = true
	s.value = s.defaultValue
	s.raw = ""
	s.present = false
	def := s.defaultValue
	watchers := s.watcherList()
	s.mu.Unlock()

	if s.key != "" {
		s.binder.removeItem(s.area, s.key, s)
	}
	if changed {
		for _, w := range watchers {
			w(def)
		}
	}
}

// Refresh re-reads the slot's key from storage. Rarely needed directly;
// bind-time and external-change reads already go through it.
func (s *Slot[T]) Refresh() {
	s.ensureBound()
	s.readStore()
}

// OnChange registers fn to run after the slot's value changes, on the
// goroutine that applied the change. The returned cancel removes the
// registration.
func (s *Slot[T]) OnChange(fn func(T)) func() {
	s.ensureBound()

	s.mu.Lock()
	id := s.nextWatcher
	s.nextWatcher++
	s.watchers[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.watchers, id)
		s.mu.Unlock()
	}
}

// Close detaches the slot from its binder. The slot keeps its last
// value but no longer hears about changes.
func (s *Slot[T]) Close() {
	s.mu.Lock()
	bound := s.bound
	s.watchers = make(map[int]func(T))
	s.mu.Unlock()

	if bound && s.key != "" {
		s.binder.unregister(s, s.area, s.key)
	}
}

// ensureBound performs the one-time registration and initial read.
func (s *Slot[T]) ensureBound() {
	s.mu.Lock()
	if s.bound {
		s.mu.Unlock()
		return
	}
	s.bound = true
	deferred := s.deferInitial
	s.mu.Unlock()

	if s.key != "" {
		s.binder.register(s, s.area, s.key)
	}

	if deferred {
		s.binder.Dispatch(func() {
			s.initialRead()
		})
		return
	}
	s.readStore()
}

// initialRead is the deferred first read. It aborts when the slot was
// written before the dispatcher got to it, so a fresh Set is not
// clobbered by stale storage.
func (s *Slot[T]) initialRead() {
	s.mu.Lock()
	touched := s.touched
	s.mu.Unlock()
	if touched {
		return
	}
	s.readStore()
}

func (s *Slot[T]) readStore() {
	if s.key == "" {
		return
	}
	st := s.binder.Store(s.area)
	if st == nil {
		return
	}
	raw, ok := st.GetItem(s.key)
	s.refresh(raw, ok)
}

// refresh applies a raw stored value (or its absence) to the slot.
// Called for bind-time reads, writes by sibling slots, and external
// changes. A value identical to the current one is a no-op.
func (s *Slot[T]) refresh(raw string, present bool) {
	s.mu.Lock()
	if s.present == present && s.raw == raw {
		s.mu.Unlock()
		return
	}
	deser := s.deserialize
	def := s.defaultValue
	s.mu.Unlock()

	var value T
	if present {
		value = deser(raw)
	} else {
		value = def
	}

	s.mu.Lock()
	s.value = value
	s.raw = raw
	s.present = present
	watchers := s.watcherList()
	s.mu.Unlock()

	for _, w := range watchers {
		w(value)
	}
}

// watcherList snapshots the watchers under the held lock.
func (s *Slot[T]) watcherList() []func(T) {
	if len(s.watchers) == 0 {
		return nil
	}
	out := make([]func(T), 0, len(s.watchers))
	for _, w := range s.watchers {
		out = append(out, w)
	}
	return out
}
