package storage

import (
	"errors"
	"fmt"
)

// Area identifies one of the two key-value areas an origin exposes.
type Area uint8

const (
	// AreaLocal is the persistent area shared by every context of an
	// origin.
	AreaLocal Area = 0

	// AreaSession is the per-context area that lives and dies with a
	// single tab.
	AreaSession Area = 1
)

// String returns the wire and config name of the area.
func (a Area) String() string {
	switch a {
	case AreaLocal:
		return "local"
	case AreaSession:
		return "session"
	default:
		return fmt.Sprintf("area(%d)", uint8(a))
	}
}

// ParseArea converts an area name back to its Area value.
func ParseArea(s string) (Area, error) {
	switch s {
	case "local":
		return AreaLocal, nil
	case "session":
		return AreaSession, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownArea, s)
	}
}

// Storage errors.
var (
	// ErrQuotaExceeded is returned by SetItem when the write would push
	// the store past its byte quota. The store is left unchanged.
	ErrQuotaExceeded = errors.New("storage: quota exceeded")

	// ErrUnavailable indicates the backing store cannot be used at all,
	// e.g. the browser reported storage access as disabled.
	ErrUnavailable = errors.New("storage: unavailable")

	// ErrUnknownArea is returned by ParseArea for unrecognized names.
	ErrUnknownArea = errors.New("storage: unknown area")
)

// Store is a string key-value store with browser storage semantics.
// Implementations must be safe for concurrent use.
type Store interface {
	// GetItem returns the value under key. The second return is false
	// when the key is absent; an absent key is not an error.
	GetItem(key string) (string, bool)

	// SetItem stores value under key, replacing any previous value.
	// It returns ErrQuotaExceeded or ErrUnavailable when the write
	// cannot be applied; the store is unchanged in that case.
	SetItem(key, value string) error

	// RemoveItem deletes key. Removing an absent key is a no-op.
	RemoveItem(key string)

	// Keys returns the keys in insertion order.
	Keys() []string

	// Len returns the number of stored keys.
	Len() int
}

// Event describes one change to a store, in the shape of the browser's
// storage event. Absent old or new values are modeled with the Has
// flags rather than empty strings, since "" is a legal stored value.
type Event struct {
	Area     Area
	Key      string
	OldValue string
	NewValue string
	HasOld   bool
	HasNew   bool

	// Origin is the ID of the context that made the change. Events are
	// never delivered back to their origin.
	Origin string
}

// Removed reports whether the event describes a key deletion.
func (e Event) Removed() bool {
	return e.HasOld && !e.HasNew
}

// Snapshot copies the full contents of a store. Used to seed mirrors
// and to serve resync requests.
func Snapshot(s Store) map[string]string {
	items := make(map[string]string, s.Len())
	for _, k := range s.Keys() {
		if v, ok := s.GetItem(k); ok {
			items[k] = v
		}
	}
	return items
}
