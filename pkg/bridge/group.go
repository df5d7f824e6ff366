package bridge

import (
	"sync"
	"time"

	"github.com/tabsync-dev/tabsync/pkg/mirror"
	"github.com/tabsync-dev/tabsync/pkg/storage"
)

// Group is the set of live sessions sharing one synchronization scope,
// normally all connected tabs of an origin. It owns the storage
// partition those sessions read and write: the partition's broadcast is
// what carries one context's local-area writes to every other context
// in the group.
type Group struct {
	key      string
	part     *storage.Partition
	strategy mirror.MergeStrategy

	mu       sync.Mutex
	sessions map[string]*Session

	// restored holds the mirror snapshot the partition was seeded from,
	// until the first client snapshot consumes it in a merge.
	restored *mirror.Snapshot
	seeded   bool
}

// newGroup creates a group for key. When a persisted mirror snapshot is
// available the partition starts out seeded from it, so slots bound
// before the first client snapshot arrives already see restored values.
func newGroup(key string, strategy mirror.MergeStrategy, restored *mirror.Snapshot) *Group {
	g := &Group{
		key:      key,
		part:     storage.NewPartition(),
		strategy: strategy,
		sessions: make(map[string]*Session),
		restored: restored,
	}
	if restored != nil && len(restored.Items) > 0 {
		g.part.SeedLocal(restored.Items)
	}
	return g
}

// Key returns the group's synchronization scope key.
func (g *Group) Key() string {
	return g.key
}

// Partition returns the group's storage partition.
func (g *Group) Partition() *storage.Partition {
	return g.part
}

// Area returns the partition store for (contextID, area).
func (g *Group) Area(contextID string, area storage.Area) storage.Store {
	return g.part.Area(contextID, area)
}

// add registers a session with the group.
func (g *Group) add(s *Session) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sessions[s.ID] = s
}

// remove unregisters a session and drops its session area. Returns the
// number of sessions left.
func (g *Group) remove(id string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.sessions, id)
	g.part.Drop(id)
	return len(g.sessions)
}

// Count returns the number of sessions in the group.
func (g *Group) Count() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.sessions)
}

// ForEach iterates over the group's sessions. The callback must not
// block; it runs with the group lock held.
func (g *Group) ForEach(fn func(*Session) bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, s := range g.sessions {
		if !fn(s) {
			break
		}
	}
}

// claimSeed is called when a client local-area snapshot arrives. The
// first caller gets the restored mirror snapshot (nil when none was
// loaded) and merges against it; later callers reconcile against the
// live partition instead.
func (g *Group) claimSeed() (first bool, restored *mirror.Snapshot) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.seeded {
		return false, nil
	}
	g.seeded = true
	restored = g.restored
	g.restored = nil
	return true, restored
}

// snapshot captures the group's local area as a mirror snapshot.
func (g *Group) snapshot(now time.Time) *mirror.Snapshot {
	return &mirror.Snapshot{
		Origin:    g.key,
		Area:      storage.AreaLocal,
		Items:     g.part.SnapshotLocal(),
		UpdatedAt: now,
	}
}

// close releases the partition's broadcast channel.
func (g *Group) close() {
	g.part.Close()
}
