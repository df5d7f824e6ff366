package slot

import (
	"sync"

	"github.com/tabsync-dev/tabsync/pkg/storage"
)

// AreaProvider resolves the store backing one storage area of an
// execution context. A nil provider, or a provider returning nil,
// leaves slots running purely in memory.
type AreaProvider func(area storage.Area) storage.Store

// binding is the non-generic face a slot shows the registry.
type binding interface {
	refresh(raw string, present bool)
}

type bindingKey struct {
	area storage.Area
	key  string
}

// Binder hosts the slots of one execution context. It resolves their
// stores, keeps the registry that lets same-key slots observe each
// other synchronously, and tracks per-area storage degradation.
//
// A Binder on its own is not goroutine-safe in the sense that slot
// callbacks run on whatever goroutine triggers them; contexts that
// process concurrent inputs should funnel them through Dispatch.
type Binder struct {
	id       string
	areas    AreaProvider
	dispatch func(func())

	onDegrade func(area storage.Area, err error)

	mu       sync.Mutex
	bindings map[bindingKey][]binding
	degraded map[storage.Area]error
	cleanups []func()
	closed   bool
}

// BinderOption configures a Binder.
type BinderOption func(*binderConfig)

type binderConfig struct {
	dispatch  func(func())
	onDegrade func(area storage.Area, err error)
}

// WithDispatch routes deferred slot work through fn, typically an event
// loop. Default: run inline.
func WithDispatch(fn func(func())) BinderOption {
	return func(c *binderConfig) {
		c.dispatch = fn
	}
}

// WithDegradeObserver registers fn to be called once per area when that
// area's storage first fails a write. Slot callers never see the error;
// this is the place to log or count it.
func WithDegradeObserver(fn func(area storage.Area, err error)) BinderOption {
	return func(c *binderConfig) {
		c.onDegrade = fn
	}
}

// NewBinder creates a binder for the context identified by id, backed
// by the given area provider.
func NewBinder(id string, areas AreaProvider, opts ...BinderOption) *Binder {
	cfg := &binderConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	return &Binder{
		id:        id,
		areas:     areas,
		dispatch:  cfg.dispatch,
		onDegrade: cfg.onDegrade,
		bindings:  make(map[bindingKey][]binding),
		degraded:  make(map[storage.Area]error),
	}
}

// BindPartition creates a binder whose areas live in p and which
// receives p's cross-context change events, dispatched through the
// binder. This is the standard way to stand up an execution context
// against an in-process storage environment.
func BindPartition(p *storage.Partition, contextID string, opts ...BinderOption) *Binder {
	b := NewBinder(contextID, func(area storage.Area) storage.Store {
		return p.Area(contextID, area)
	}, opts...)

	events, cancel := p.Subscribe(contextID, 0)
	go func() {
		for ev := range events {
			ev := ev
			b.Dispatch(func() {
				b.ApplyExternal(ev)
			})
		}
	}()

	b.mu.Lock()
	b.cleanups = append(b.cleanups, cancel)
	b.mu.Unlock()
	return b
}

// ID returns the context ID the binder was created with.
func (b *Binder) ID() string {
	return b.id
}

// Dispatch runs fn through the binder's configured dispatcher, inline
// when none is set.
func (b *Binder) Dispatch(fn func()) {
	if b.dispatch != nil {
		b.dispatch(fn)
		return
	}
	fn()
}

// Store resolves the store for area, or nil when the context has none.
func (b *Binder) Store(area storage.Area) storage.Store {
	if b.areas == nil {
		return nil
	}
	return b.areas(area)
}

// ApplyExternal applies a change made by another execution context:
// every slot bound to the event's key re-reads the new value through
// its own deserializer. The caller is responsible for routing the call
// onto the context's goroutine, normally via Dispatch.
func (b *Binder) ApplyExternal(ev storage.Event) {
	targets := b.snapshot(bindingKey{area: ev.Area, key: ev.Key}, nil)
	for _, t := range targets {
		t.refresh(ev.NewValue, ev.HasNew)
	}
}

// RefreshAll re-reads every bound key from its store. Call it after a
// context resumes, when change notifications may have been missed
// while the context was suspended. Like ApplyExternal, the caller
// routes it onto the context's goroutine.
func (b *Binder) RefreshAll() {
	b.mu.Lock()
	keys := make([]bindingKey, 0, len(b.bindings))
	for k := range b.bindings {
		keys = append(keys, k)
	}
	b.mu.Unlock()

	for _, k := range keys {
		var raw string
		var present bool
		if st := b.Store(k.area); st != nil {
			raw, present = st.GetItem(k.key)
		}
		for _, t := range b.snapshot(k, nil) {
			t.refresh(raw, present)
		}
	}
}

// MarkDegraded records that area's backing storage failed with err.
// Only the first failure per area is kept and reported.
func (b *Binder) MarkDegraded(area storage.Area, err error) {
	if err == nil {
		return
	}

	b.mu.Lock()
	if _, already := b.degraded[area]; already {
		b.mu.Unlock()
		return
	}
	b.degraded[area] = err
	observer := b.onDegrade
	b.mu.Unlock()

	if observer != nil {
		observer(area, err)
	}
}

// Degraded reports whether area's storage has failed, and the first
// error seen.
func (b *Binder) Degraded(area storage.Area) (error, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	err, ok := b.degraded[area]
	return err, ok
}

// Close detaches every slot and releases the binder's subscriptions.
func (b *Binder) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	b.bindings = make(map[bindingKey][]binding)
	cleanups := b.cleanups
	b.cleanups = nil
	b.mu.Unlock()

	for _, fn := range cleanups {
		fn()
	}
}

// register adds s under (area, key).
func (b *Binder) register(s binding, area storage.Area, key string) {
	k := bindingKey{area: area, key: key}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.bindings[k] = append(b.bindings[k], s)
}

// unregister removes s from (area, key).
func (b *Binder) unregister(s binding, area storage.Area, key string) {
	k := bindingKey{area: area, key: key}

	b.mu.Lock()
	defer b.mu.Unlock()

	list := b.bindings[k]
	for i, bound := range list {
		if bound == s {
			b.bindings[k] = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(b.bindings[k]) == 0 {
		delete(b.bindings, k)
	}
}

// writeItem stores raw under (area, key) and notifies every other slot
// bound to the key. Storage failures degrade the area silently.
func (b *Binder) writeItem(area storage.Area, key, raw string, except binding) {
	if st := b.Store(area); st != nil {
		if err := st.SetItem(key, raw); err != nil {
			b.MarkDegraded(area, err)
		}
	}

	for _, t := range b.snapshot(bindingKey{area: area, key: key}, except) {
		t.refresh(raw, true)
	}
}

// removeItem deletes (area, key) and resets every other slot bound to
// the key to its default.
func (b *Binder) removeItem(area storage.Area, key string, except binding) {
	if st := b.Store(area); st != nil {
		st.RemoveItem(key)
	}

	for _, t := range b.snapshot(bindingKey{area: area, key: key}, except) {
		t.refresh("", false)
	}
}

// snapshot copies the binding list for k, minus except, so refresh
// callbacks run without holding the registry lock.
func (b *Binder) snapshot(k bindingKey, except binding) []binding {
	b.mu.Lock()
	defer b.mu.Unlock()

	list := b.bindings[k]
	if len(list) == 0 {
		return nil
	}
	out := make([]binding, 0, len(list))
	for _, bound := range list {
		if bound == except {
			continue
		}
		out = append(out, bound)
	}
	return out
}
