package mirror

import (
	"context"
	"time"

	"github.com/tabsync-dev/tabsync/pkg/storage"
)

// Snapshot is a persisted copy of one storage area for one origin.
type Snapshot struct {
	Origin    string            `json:"origin"`
	Area      storage.Area      `json:"area"`
	Items     map[string]string `json:"items"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// Clone returns a deep copy of the snapshot.
func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return nil
	}
	items := make(map[string]string, len(s.Items))
	for k, v := range s.Items {
		items[k] = v
	}
	return &Snapshot{
		Origin:    s.Origin,
		Area:      s.Area,
		Items:     items,
		UpdatedAt: s.UpdatedAt,
	}
}

// Store persists area snapshots between sessions.
type Store interface {
	// Save persists a snapshot, replacing any previous one for the
	// same origin and area.
	Save(ctx context.Context, snap *Snapshot) error

	// Load retrieves a snapshot. Returns (nil, nil) if none exists.
	Load(ctx context.Context, origin string, area storage.Area) (*Snapshot, error)

	// Delete removes a snapshot. Deleting a missing snapshot is not
	// an error.
	Delete(ctx context.Context, origin string, area storage.Area) error

	// Close releases resources held by the store.
	Close() error
}

// ErrStoreClosed is returned when operations are attempted on a closed store.
type ErrStoreClosed struct{}

func (e ErrStoreClosed) Error() string {
	return "mirror store is closed"
}

// MergeStrategy decides between a client snapshot and a persisted
// mirror when both exist at connect time.
type MergeStrategy uint8

const (
	// ClientWins prefers the client snapshot. The browser's storage
	// is the source of truth; the mirror only fills in when the
	// client has nothing.
	ClientWins MergeStrategy = iota

	// MirrorWins prefers the persisted mirror whenever one exists.
	MirrorWins

	// LastWriteWins compares the mirror's UpdatedAt against the
	// connect time and keeps the newer side.
	LastWriteWins
)

// String returns the string representation of the strategy.
func (ms MergeStrategy) String() string {
	switch ms {
	case ClientWins:
		return "ClientWins"
	case MirrorWins:
		return "MirrorWins"
	case LastWriteWins:
		return "LastWriteWins"
	default:
		return "Unknown"
	}
}

// Merge picks the winning snapshot. The client snapshot carries the
// connect time as its UpdatedAt. Either side may be nil; the other
// side wins by default.
func Merge(client, mirrored *Snapshot, strategy MergeStrategy) *Snapshot {
	if mirrored == nil {
		return client
	}
	if client == nil {
		return mirrored
	}

	switch strategy {
	case MirrorWins:
		return mirrored
	case LastWriteWins:
		if mirrored.UpdatedAt.After(client.UpdatedAt) {
			return mirrored
		}
		return client
	default:
		// An empty client area means the context has nothing stored,
		// commonly a fresh browser profile; the mirror restores it.
		if len(client.Items) == 0 && len(mirrored.Items) > 0 {
			return mirrored
		}
		return client
	}
}
