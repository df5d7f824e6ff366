package storage

import (
	"errors"
	"testing"
)

func TestMemoryStore_GetSet(t *testing.T) {
	s := NewMemoryStore()

	if _, ok := s.GetItem("missing"); ok {
		t.Error("GetItem on empty store: got ok=true, want false")
	}

	if err := s.SetItem("theme", "dark"); err != nil {
		t.Fatalf("SetItem failed: %v", err)
	}

	v, ok := s.GetItem("theme")
	if !ok {
		t.Fatal("GetItem after SetItem: got ok=false, want true")
	}
	if v != "dark" {
		t.Errorf("GetItem: got %q, want %q", v, "dark")
	}

	// Empty string is a legal value, distinct from absence.
	if err := s.SetItem("empty", ""); err != nil {
		t.Fatalf("SetItem failed: %v", err)
	}
	v, ok = s.GetItem("empty")
	if !ok || v != "" {
		t.Errorf("GetItem empty value: got (%q, %v), want (\"\", true)", v, ok)
	}
}

func TestMemoryStore_Remove(t *testing.T) {
	s := NewMemoryStore()
	s.SetItem("a", "1")

	s.RemoveItem("a")
	if _, ok := s.GetItem("a"); ok {
		t.Error("GetItem after RemoveItem: got ok=true, want false")
	}

	// Removing an absent key is a no-op.
	s.RemoveItem("a")
	if got := s.Len(); got != 0 {
		t.Errorf("Len: got %d, want 0", got)
	}
}

func TestMemoryStore_KeysOrder(t *testing.T) {
	s := NewMemoryStore()
	s.SetItem("c", "3")
	s.SetItem("a", "1")
	s.SetItem("b", "2")
	s.RemoveItem("a")
	s.SetItem("a", "1")

	want := []string{"c", "b", "a"}
	got := s.Keys()
	if len(got) != len(want) {
		t.Fatalf("Keys: got %d keys, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Keys[%d]: got %q, want %q", i, got[i], want[i])
		}
	}
}

func TestMemoryStore_Quota(t *testing.T) {
	s := NewMemoryStore(WithQuota(10))

	// "key" + "12345" = 8 bytes, fits.
	if err := s.SetItem("key", "12345"); err != nil {
		t.Fatalf("SetItem within quota failed: %v", err)
	}

	// "k2" + "1234" would push usage to 14.
	if err := s.SetItem("k2", "1234"); !errors.Is(err, ErrQuotaExceeded) {
		t.Errorf("SetItem over quota: got %v, want ErrQuotaExceeded", err)
	}
	if _, ok := s.GetItem("k2"); ok {
		t.Error("failed write left a value behind")
	}

	// Replacing releases the old value's bytes first.
	if err := s.SetItem("key", "1234567"); err != nil {
		t.Errorf("SetItem replacement within quota: got %v, want nil", err)
	}
	if got := s.Usage(); got != 10 {
		t.Errorf("Usage: got %d, want 10", got)
	}

	s.RemoveItem("key")
	if got := s.Usage(); got != 0 {
		t.Errorf("Usage after remove: got %d, want 0", got)
	}
}

func TestMemoryStore_WriteError(t *testing.T) {
	s := NewMemoryStore(WithWriteError(ErrUnavailable))

	if err := s.SetItem("a", "1"); !errors.Is(err, ErrUnavailable) {
		t.Errorf("SetItem: got %v, want ErrUnavailable", err)
	}
	if got := s.Len(); got != 0 {
		t.Errorf("Len after failed write: got %d, want 0", got)
	}
}

func TestMemoryStore_Replace(t *testing.T) {
	s := NewMemoryStore()
	s.SetItem("old", "gone")

	s.Replace(map[string]string{"a": "1", "b": "2"})

	if _, ok := s.GetItem("old"); ok {
		t.Error("Replace kept a stale key")
	}
	if got := s.Len(); got != 2 {
		t.Errorf("Len: got %d, want 2", got)
	}
	if got := s.Usage(); got != 4 {
		t.Errorf("Usage: got %d, want 4", got)
	}
}

func TestMemoryStore_Clear(t *testing.T) {
	s := NewMemoryStore()
	s.SetItem("a", "1")
	s.SetItem("b", "2")

	s.Clear()

	if got := s.Len(); got != 0 {
		t.Errorf("Len after Clear: got %d, want 0", got)
	}
	if got := len(s.Keys()); got != 0 {
		t.Errorf("Keys after Clear: got %d, want 0", got)
	}
}

func TestSnapshot(t *testing.T) {
	s := NewMemoryStore()
	s.SetItem("a", "1")
	s.SetItem("b", "2")

	snap := Snapshot(s)
	if len(snap) != 2 || snap["a"] != "1" || snap["b"] != "2" {
		t.Errorf("Snapshot: got %v", snap)
	}

	// Snapshot is a copy, not a view.
	s.SetItem("c", "3")
	if _, ok := snap["c"]; ok {
		t.Error("Snapshot reflects later writes")
	}
}

func TestParseArea(t *testing.T) {
	tests := []struct {
		in      string
		want    Area
		wantErr bool
	}{
		{"local", AreaLocal, false},
		{"session", AreaSession, false},
		{"", 0, true},
		{"Local", 0, true},
	}

	for _, tt := range tests {
		got, err := ParseArea(tt.in)
		if tt.wantErr {
			if !errors.Is(err, ErrUnknownArea) {
				t.Errorf("ParseArea(%q): got err %v, want ErrUnknownArea", tt.in, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseArea(%q): unexpected error %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseArea(%q): got %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestAreaString(t *testing.T) {
	if got := AreaLocal.String(); got != "local" {
		t.Errorf("AreaLocal.String(): got %q, want %q", got, "local")
	}
	if got := AreaSession.String(); got != "session" {
		t.Errorf("AreaSession.String(): got %q, want %q", got, "session")
	}
}
