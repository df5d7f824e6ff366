package bridge

import (
	"sync"
	"time"

	"github.com/tabsync-dev/tabsync/pkg/protocol"
)

// opHistoryEntry stores a sent op frame for potential replay.
type opHistoryEntry struct {
	frame  protocol.OpFrame
	sentAt time.Time
}

// OpHistory is a thread-safe ring buffer of recently sent op frames.
// It supports:
//   - Fast insertion at head
//   - Lookup by sequence range for resync and resume
//   - A sliding recoverable window tracked by min/max sequence
//
// The ring buffer overwrites oldest entries when full, so a client that
// fell too far behind gets a snapshot request instead of a replay.
type OpHistory struct {
	mu       sync.RWMutex
	entries  []*opHistoryEntry
	head     int    // Next write position (circular)
	count    int    // Current number of entries
	capacity int    // Max entries
	minSeq   uint64 // Lowest sequence in buffer
	maxSeq   uint64 // Highest sequence in buffer
}

// NewOpHistory creates an op history ring buffer with the given capacity.
func NewOpHistory(capacity int) *OpHistory {
	if capacity <= 0 {
		capacity = 100 // Default from SessionConfig.MaxReplayFrames
	}
	return &OpHistory{
		entries:  make([]*opHistoryEntry, capacity),
		capacity: capacity,
	}
}

// Add stores an op frame in the buffer. The ops slice is copied so the
// caller may reuse it.
func (h *OpHistory) Add(frame *protocol.OpFrame) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ops := make([]protocol.Op, len(frame.Ops))
	copy(ops, frame.Ops)

	h.entries[h.head] = &opHistoryEntry{
		frame:  protocol.OpFrame{Seq: frame.Seq, Ops: ops},
		sentAt: time.Now(),
	}
	h.head = (h.head + 1) % h.capacity

	if h.count < h.capacity {
		h.count++
	}

	h.maxSeq = frame.Seq
	if h.count == 1 {
		h.minSeq = frame.Seq
	} else if h.count == h.capacity {
		// Buffer full: after the head advance, head points at the
		// oldest surviving entry.
		if oldest := h.entries[h.head]; oldest != nil {
			h.minSeq = oldest.frame.Seq
		}
	}
}

// Range returns the frames for sequences (afterSeq, toSeq], in order.
// Returns nil if any sequence in the range is no longer available.
func (h *OpHistory) Range(afterSeq, toSeq uint64) []protocol.OpFrame {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.count == 0 || afterSeq >= toSeq {
		return nil
	}
	if afterSeq+1 < h.minSeq || toSeq > h.maxSeq {
		return nil // Gap: the range has fallen out of the buffer
	}

	bySeq := make(map[uint64]protocol.OpFrame, h.count)
	for i := 0; i < h.count; i++ {
		idx := (h.head - h.count + i + h.capacity) % h.capacity
		if entry := h.entries[idx]; entry != nil {
			bySeq[entry.frame.Seq] = entry.frame
		}
	}

	frames := make([]protocol.OpFrame, 0, toSeq-afterSeq)
	for seq := afterSeq + 1; seq <= toSeq; seq++ {
		frame, ok := bySeq[seq]
		if !ok {
			return nil // Missing sequence in range
		}
		frames = append(frames, frame)
	}
	return frames
}

// CanRecover reports whether the buffer covers everything a client at
// lastSeq has missed.
func (h *OpHistory) CanRecover(lastSeq uint64) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.count == 0 {
		return false
	}
	return lastSeq+1 >= h.minSeq && lastSeq < h.maxSeq
}

// MinSeq returns the minimum recoverable sequence.
func (h *OpHistory) MinSeq() uint64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.minSeq
}

// MaxSeq returns the maximum sequence in the buffer.
func (h *OpHistory) MaxSeq() uint64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.maxSeq
}

// Count returns the number of entries in the buffer.
func (h *OpHistory) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count
}

// Clear removes all entries from the buffer.
func (h *OpHistory) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for i := range h.entries {
		h.entries[i] = nil
	}
	h.head = 0
	h.count = 0
	h.minSeq = 0
	h.maxSeq = 0
}
