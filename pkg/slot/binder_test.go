package slot

import (
	"errors"
	"testing"

	"github.com/tabsync-dev/tabsync/pkg/storage"
)

func TestBinder_ApplyExternal(t *testing.T) {
	store := storage.NewMemoryStore()
	b := NewBinder("ctx-1", func(storage.Area) storage.Store { return store })

	s := Use(b, "k", "default")
	if got := s.Get(); got != "default" {
		t.Fatalf("Get: got %q", got)
	}

	b.ApplyExternal(storage.Event{
		Area:     storage.AreaLocal,
		Key:      "k",
		NewValue: "external",
		HasNew:   true,
		Origin:   "ctx-2",
	})

	if got := s.Get(); got != "external" {
		t.Errorf("Get after external change: got %q, want %q", got, "external")
	}

	b.ApplyExternal(storage.Event{
		Area:   storage.AreaLocal,
		Key:    "k",
		HasOld: true,
		Origin: "ctx-2",
	})

	if got := s.Get(); got != "default" {
		t.Errorf("Get after external removal: got %q, want %q", got, "default")
	}
}

func TestBinder_ApplyExternalIgnoresUnboundKeys(t *testing.T) {
	b := NewBinder("ctx-1", nil)

	// Nothing is bound; this must simply do nothing.
	b.ApplyExternal(storage.Event{Area: storage.AreaLocal, Key: "nobody", NewValue: "x", HasNew: true})
}

func TestBinder_MarkDegradedKeepsFirstError(t *testing.T) {
	first := errors.New("first failure")
	second := errors.New("second failure")

	calls := 0
	b := NewBinder("ctx-1", nil, WithDegradeObserver(func(storage.Area, error) {
		calls++
	}))

	b.MarkDegraded(storage.AreaLocal, first)
	b.MarkDegraded(storage.AreaLocal, second)
	b.MarkDegraded(storage.AreaSession, second)
	b.MarkDegraded(storage.AreaSession, nil)

	if err, ok := b.Degraded(storage.AreaLocal); !ok || !errors.Is(err, first) {
		t.Errorf("Degraded(local): got (%v, %v), want first error", err, ok)
	}
	if err, ok := b.Degraded(storage.AreaSession); !ok || !errors.Is(err, second) {
		t.Errorf("Degraded(session): got (%v, %v), want second error", err, ok)
	}
	if calls != 2 {
		t.Errorf("degrade observer calls: got %d, want 2", calls)
	}
}

func TestBinder_DispatchDefaultsInline(t *testing.T) {
	b := NewBinder("ctx-1", nil)

	ran := false
	b.Dispatch(func() { ran = true })
	if !ran {
		t.Error("Dispatch without a dispatcher did not run inline")
	}
}

func TestBinder_CloseStopsFanout(t *testing.T) {
	store := storage.NewMemoryStore()
	b := NewBinder("ctx-1", func(storage.Area) storage.Store { return store })

	a := Use(b, "k", "")
	c := Use(b, "k", "")
	a.Get()
	c.Get()

	b.Close()

	// Writes after Close still update the writing slot and storage,
	// but the registry is gone.
	a.Set("after")
	if got := c.Get(); got == "after" {
		t.Error("fanout still live after Close")
	}
}

func TestBinder_RefreshAll(t *testing.T) {
	store := storage.NewMemoryStore()
	b := NewBinder("ctx-1", func(storage.Area) storage.Store { return store })

	a := Use(b, "a", "def-a")
	c := Use(b, "c", "def-c")
	a.Get()
	c.Get()

	// Mutate the store behind the slots' backs, as if change events
	// were missed while the context was suspended.
	if err := store.SetItem("a", "changed"); err != nil {
		t.Fatalf("SetItem: %v", err)
	}

	b.RefreshAll()

	if got := a.Get(); got != "changed" {
		t.Errorf("a after RefreshAll: got %q, want %q", got, "changed")
	}
	if got := c.Get(); got != "def-c" {
		t.Errorf("c after RefreshAll: got %q, want %q", got, "def-c")
	}
}
