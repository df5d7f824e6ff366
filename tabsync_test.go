package tabsync

import (
	"testing"

	"github.com/tabsync-dev/tabsync/pkg/storage"
)

func TestUse_SlotLifecycle(t *testing.T) {
	s := NewMockSession()
	t.Cleanup(s.Close)

	theme := Use(s.Binder(), "theme", "light")
	if got := theme.Get(); got != "light" {
		t.Fatalf("Get() = %q, want default %q", got, "light")
	}
	if theme.IsSet() {
		t.Fatal("IsSet() = true before any write")
	}

	theme.Set("dark")
	if got := theme.Get(); got != "dark" {
		t.Fatalf("Get() after Set = %q, want %q", got, "dark")
	}

	theme.Update(func(v string) string { return v + "er" })
	if got := theme.Get(); got != "darker" {
		t.Fatalf("Get() after Update = %q, want %q", got, "darker")
	}

	theme.Clear()
	if got := theme.Get(); got != "light" {
		t.Fatalf("Get() after Clear = %q, want default %q", got, "light")
	}
}

func TestUse_SharedStateAcrossDeclarations(t *testing.T) {
	s := NewMockSession()
	t.Cleanup(s.Close)

	a := Use(s.Binder(), "count", 0)
	b := Use(s.Binder(), "count", 0)

	a.Set(41)
	if got := b.Get(); got != 41 {
		t.Fatalf("sibling Get() = %d, want 41", got)
	}

	var notified int
	cancel := b.OnChange(func(v int) { notified = v })
	defer cancel()

	a.Set(42)
	if notified != 42 {
		t.Fatalf("sibling OnChange saw %d, want 42", notified)
	}
}

func TestUse_SessionAreaSlot(t *testing.T) {
	s := NewMockSession()
	t.Cleanup(s.Close)

	draft := Use(s.Binder(), "draft", "").Area(AreaSession)
	draft.Set("hello")

	if got := draft.Get(); got != "hello" {
		t.Fatalf("Get() = %q, want %q", got, "hello")
	}
	if AreaSession != storage.AreaSession || AreaLocal != storage.AreaLocal {
		t.Fatal("area constants diverge from the storage package")
	}
}
