package bridge

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tabsync-dev/tabsync/pkg/middleware"
	"github.com/tabsync-dev/tabsync/pkg/mirror"
	"github.com/tabsync-dev/tabsync/pkg/protocol"
	"github.com/tabsync-dev/tabsync/pkg/storage"
)

// readLoop reads frames from the connection and routes them. It owns
// the connection's read side; when it returns the session detaches
// unless a resume already took the connection over.
func (s *Session) readLoop(done chan struct{}) {
	defer s.loops.Done()
	gen := s.connGen.Load()
	defer s.closeIfCurrent(gen)

	s.connMu.Lock()
	conn := s.conn
	s.connMu.Unlock()
	if conn == nil {
		return
	}

	for {
		select {
		case <-done:
			return
		default:
		}

		_ = conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("websocket read failed", "error", err)
			} else {
				s.logger.Debug("websocket closed", "error", err)
			}
			return
		}
		s.touch()

		frame, err := protocol.DecodeFrame(msg)
		if err != nil {
			s.logger.Warn("frame decode failed", "size", len(msg), "error", err)
			s.sendError(protocol.ErrCodeInvalidFrame, "malformed frame", false)
			continue
		}

		info := &middleware.FrameInfo{
			SessionID: s.ID,
			Origin:    s.Origin,
			Type:      frameLabel(frame.Type),
			Size:      len(frame.Payload),
		}
		err = middleware.Run(context.Background(), s.mws, info, func(ctx context.Context, _ *middleware.FrameInfo) error {
			return s.handleFrame(ctx, frame)
		})
		if err != nil {
			s.logger.Debug("frame rejected",
				"type", frame.Type.String(),
				"error", err)
		}
	}
}

// writeLoop sends heartbeat pings until the session detaches.
func (s *Session) writeLoop(done chan struct{}) {
	defer s.loops.Done()
	ticker := time.NewTicker(s.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.sendPing(); err != nil {
				s.logger.Debug("heartbeat failed", "error", err)
				return
			}
		case <-done:
			return
		}
	}
}

// eventLoop is the session's single mutation goroutine. Client storage
// events, dispatched work and op flushes all run here, so slot state
// never needs locking.
func (s *Session) eventLoop(done chan struct{}) {
	defer s.loops.Done()
	for {
		select {
		case ev := <-s.events:
			s.handleStorageEvent(ev)
			s.flushOps()
		case fn := <-s.dispatchCh:
			s.executeDispatch(fn)
			s.flushOps()
		case <-s.flushCh:
			s.flushOps()
		case <-done:
			return
		}
	}
}

// relayLoop forwards sibling contexts' changes into the event loop. It
// exits when the partition subscription is cancelled at teardown.
func (s *Session) relayLoop(events <-chan storage.Event) {
	for ev := range events {
		ev := ev
		s.Dispatch(func() { s.applyRelay(ev) })
	}
}

// executeDispatch runs fn, converting a panic into a logged error so
// one broken handler cannot take the session down.
func (s *Session) executeDispatch(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			err := NewDispatchError(s.ID, r, debug.Stack())
			s.logger.Error("dispatch panic",
				"panic", fmt.Sprint(r),
				"stack", string(err.Stack))
		}
	}()
	fn()
}

// =============================================================================
// Frame handling
// =============================================================================

// handleFrame routes one decoded frame. Runs on the read loop; slot
// mutations are dispatched onto the event loop.
func (s *Session) handleFrame(ctx context.Context, frame *protocol.Frame) error {
	_ = ctx

	switch frame.Type {
	case protocol.FrameEvent:
		ev, err := protocol.DecodeStorageEvent(frame.Payload)
		if err != nil {
			s.sendError(protocol.ErrCodeInvalidEvent, "malformed storage event", false)
			return fmt.Errorf("decode event: %w", err)
		}
		return s.queueEvent(ev)

	case protocol.FrameResult:
		res, err := protocol.DecodeOpResult(frame.Payload)
		if err != nil {
			return fmt.Errorf("decode op result: %w", err)
		}
		s.Dispatch(func() { s.handleOpResult(res) })
		return nil

	case protocol.FrameSnapshot:
		snap, err := protocol.DecodeSnapshot(frame.Payload)
		if err != nil {
			s.sendError(protocol.ErrCodeInvalidFrame, "malformed snapshot", false)
			return fmt.Errorf("decode snapshot: %w", err)
		}
		s.Dispatch(func() { s.handleSnapshot(snap) })
		return nil

	case protocol.FrameAck:
		ack, err := protocol.DecodeAck(frame.Payload)
		if err != nil {
			return fmt.Errorf("decode ack: %w", err)
		}
		s.handleAck(ack)
		return nil

	case protocol.FrameControl:
		ct, msg, err := protocol.DecodeControl(frame.Payload)
		if err != nil {
			s.sendError(protocol.ErrCodeInvalidFrame, "malformed control message", false)
			return fmt.Errorf("decode control: %w", err)
		}
		return s.handleControl(ct, msg)

	case protocol.FrameError:
		em, err := protocol.DecodeError(frame.Payload)
		if err != nil {
			return fmt.Errorf("decode error frame: %w", err)
		}
		s.logger.Warn("client reported error",
			"code", em.Code.String(),
			"message", em.Message,
			"fatal", em.Fatal)
		if em.Fatal {
			s.Close()
		}
		return nil

	default:
		// Handshake frames after establishment, op frames from the
		// client, anything unknown.
		s.sendError(protocol.ErrCodeInvalidFrame, "unexpected frame type", false)
		return fmt.Errorf("unexpected frame type %s", frame.Type)
	}
}

// handleAck records the client's replay progress and window.
func (s *Session) handleAck(ack *protocol.Ack) {
	s.ackSeq.Store(ack.LastSeq)
	if ack.Window > 0 {
		s.window.Store(uint64(ack.Window))
	}
}

// handleControl routes a control message. Runs on the read loop.
func (s *Session) handleControl(ct protocol.ControlType, msg any) error {
	switch ct {
	case protocol.ControlPing:
		var ts uint64
		if p, ok := msg.(*protocol.PingPong); ok {
			ts = p.Timestamp
		}
		pt, pong := protocol.NewPong(ts)
		return s.sendControl(pt, pong)

	case protocol.ControlPong:
		return nil

	case protocol.ControlResyncRequest:
		req, ok := msg.(*protocol.ResyncRequest)
		if !ok {
			return fmt.Errorf("resync request: unexpected payload %T", msg)
		}
		return s.handleResyncRequest(req.LastSeq)

	case protocol.ControlClose:
		if cm, ok := msg.(*protocol.CloseMessage); ok {
			s.logger.Info("client closed session",
				"reason", cm.Reason.String(),
				"message", cm.Message)
		}
		s.Close()
		return nil

	default:
		s.sendError(protocol.ErrCodeInvalidFrame, "unexpected control message", false)
		return fmt.Errorf("unexpected control type %s", ct)
	}
}

// handleResyncRequest replays the op frames the client missed, or asks
// for fresh snapshots when the gap fell out of the replay buffer.
func (s *Session) handleResyncRequest(lastSeq uint64) error {
	top := s.sendSeq.Load()
	if lastSeq >= top {
		return nil
	}
	frames := s.history.Range(lastSeq, top)
	if frames == nil {
		ct, req := protocol.NewSnapshotRequest(s.areaBits())
		return s.sendControl(ct, req)
	}
	ct, ops := protocol.NewResyncOps(lastSeq, frames)
	return s.sendControl(ct, ops)
}

// =============================================================================
// Storage events
// =============================================================================

// handleStorageEvent applies a client-reported storage change: another
// context on the client side (or the user, via devtools) changed the
// underlying storage, and this context re-reads it. Event-loop
// confined.
func (s *Session) handleStorageEvent(ev *protocol.StorageEvent) {
	if ev.Seq > s.recvSeq.Load() {
		s.recvSeq.Store(ev.Seq)
	}

	if ev.SourceOp != 0 {
		// Echo of this session's own op arriving back through the
		// client's change notification. The write already applied.
		return
	}

	area, ok := storageArea(ev.Area)
	if !ok {
		s.sendError(protocol.ErrCodeInvalidEvent, "unknown storage area", false)
		return
	}
	middleware.RecordExternalEvent(area.String())

	st := s.group.Area(s.ID, area)
	switch {
	case ev.Cleared:
		for _, key := range st.Keys() {
			old, _ := st.GetItem(key)
			st.RemoveItem(key)
			s.binder.ApplyExternal(storage.Event{
				Area:     area,
				Key:      key,
				OldValue: old,
				HasOld:   true,
				Origin:   s.ID,
			})
		}

	case ev.Removed():
		old, had := st.GetItem(ev.Key)
		st.RemoveItem(ev.Key)
		if had {
			s.binder.ApplyExternal(storage.Event{
				Area:     area,
				Key:      ev.Key,
				OldValue: old,
				HasOld:   true,
				Origin:   s.ID,
			})
		}

	case ev.HasNew:
		old, had := st.GetItem(ev.Key)
		if had && old == ev.NewValue {
			return
		}
		if err := st.SetItem(ev.Key, ev.NewValue); err != nil {
			s.logger.Warn("storage event apply failed",
				"area", area.String(),
				"key", ev.Key,
				"error", err)
			return
		}
		s.binder.ApplyExternal(storage.Event{
			Area:     area,
			Key:      ev.Key,
			OldValue: old,
			NewValue: ev.NewValue,
			HasOld:   had,
			HasNew:   true,
			Origin:   s.ID,
		})
	}
}

// applyRelay applies a sibling context's change: bound slots re-read
// the value, and the change is queued for the client so its storage
// converges even when the native cross-tab notification cannot reach
// it. Clients apply relayed ops idempotently, so a tab that already
// observed the native event sees a no-op. Event-loop confined.
func (s *Session) applyRelay(ev storage.Event) {
	s.binder.ApplyExternal(ev)

	if _, degraded := s.binder.Degraded(ev.Area); degraded {
		return
	}
	if ev.Removed() {
		s.queueOp(protocol.NewRemoveOp(s.nextOp.Add(1), wireArea(ev.Area), ev.Key))
	} else {
		s.queueOp(protocol.NewSetOp(s.nextOp.Add(1), wireArea(ev.Area), ev.Key, ev.NewValue))
	}
}

// handleOpResult settles one tracked op. A quota or availability
// failure degrades the area: the server keeps its in-memory value and
// stops sending ops for that area. Event-loop confined.
func (s *Session) handleOpResult(res *protocol.OpResult) {
	info, ok := s.inflight[res.ID]
	if !ok {
		s.logger.Debug("op result without matching op",
			"op_id", res.ID,
			"status", res.Status.String())
		return
	}
	delete(s.inflight, res.ID)

	middleware.RecordOpApply(time.Since(info.sentAt))
	middleware.RecordStorageOp(info.area.String(), opLabel(info.op), statusLabel(res.Status))

	if !res.Status.Failed() {
		return
	}
	s.logger.Warn("storage op rejected by client",
		"op_id", res.ID,
		"area", info.area.String(),
		"op", opLabel(info.op),
		"status", res.Status.String(),
		"detail", res.Detail)

	switch res.Status {
	case protocol.OpQuotaExceeded:
		s.binder.MarkDegraded(info.area, storage.ErrQuotaExceeded)
	case protocol.OpUnavailable:
		s.binder.MarkDegraded(info.area, storage.ErrUnavailable)
	}
}

// =============================================================================
// Snapshots
// =============================================================================

// handleSnapshot seeds server-side state from the client's storage
// contents. Session areas always seed directly. For the shared local
// area only the group's first snapshot seeds the partition, merged
// against any mirrored state; later joiners are reconciled toward the
// live partition instead. Event-loop confined.
func (s *Session) handleSnapshot(snap *protocol.Snapshot) {
	area, ok := storageArea(snap.Area)
	if !ok {
		s.sendError(protocol.ErrCodeInvalidFrame, "unknown snapshot area", false)
		return
	}
	items := snap.SnapshotMap()

	if area == storage.AreaSession {
		s.seedArea(area, items)
		return
	}

	first, restored := s.group.claimSeed()
	if !first {
		s.reconcileLocal(items)
		return
	}

	merged := items
	if restored != nil {
		client := &mirror.Snapshot{
			Origin:    s.group.Key(),
			Area:      storage.AreaLocal,
			Items:     items,
			UpdatedAt: time.Now(),
		}
		if winner := mirror.Merge(client, restored, s.group.strategy); winner != nil {
			merged = winner.Items
		}
	}
	s.seedArea(area, merged)
	s.logger.Debug("local area seeded",
		"items", len(merged),
		"mirrored", restored != nil)
}

// seedArea replaces the area's server-side contents with items. The
// raw partition views are used so the seeding client gets no ops
// echoed back, while siblings still see the diffs; this session's own
// slots are notified explicitly. Event-loop confined.
func (s *Session) seedArea(area storage.Area, items map[string]string) {
	st := s.group.Area(s.ID, area)

	for _, key := range st.Keys() {
		if _, keep := items[key]; keep {
			continue
		}
		old, _ := st.GetItem(key)
		st.RemoveItem(key)
		s.binder.ApplyExternal(storage.Event{
			Area:     area,
			Key:      key,
			OldValue: old,
			HasOld:   true,
			Origin:   s.ID,
		})
	}

	for key, value := range items {
		old, had := st.GetItem(key)
		if had && old == value {
			continue
		}
		if err := st.SetItem(key, value); err != nil {
			s.logger.Warn("snapshot seed failed",
				"area", area.String(),
				"key", key,
				"error", err)
			continue
		}
		s.binder.ApplyExternal(storage.Event{
			Area:     area,
			Key:      key,
			OldValue: old,
			NewValue: value,
			HasOld:   had,
			HasNew:   true,
			Origin:   s.ID,
		})
	}
}

// reconcileLocal brings a joining client's local storage in line with
// the group's live partition. The partition wins: connected siblings
// have been applying writes the joiner never saw. Event-loop confined.
func (s *Session) reconcileLocal(items map[string]string) {
	if _, degraded := s.binder.Degraded(storage.AreaLocal); degraded {
		return
	}
	st := s.group.Area(s.ID, storage.AreaLocal)

	for _, key := range st.Keys() {
		val, _ := st.GetItem(key)
		if clientVal, ok := items[key]; !ok || clientVal != val {
			s.queueOp(protocol.NewSetOp(s.nextOp.Add(1), protocol.AreaLocal, key, val))
		}
	}
	for key := range items {
		if _, ok := st.GetItem(key); !ok {
			s.queueOp(protocol.NewRemoveOp(s.nextOp.Add(1), protocol.AreaLocal, key))
		}
	}
}
