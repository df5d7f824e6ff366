package bridge

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tabsync-dev/tabsync/pkg/middleware"
	"github.com/tabsync-dev/tabsync/pkg/mirror"
	"github.com/tabsync-dev/tabsync/pkg/protocol"
	"github.com/tabsync-dev/tabsync/pkg/slot"
	"github.com/tabsync-dev/tabsync/pkg/storage"
)

const (
	// maxInflightTracked bounds the op-result tracking map. Beyond it,
	// entries whose results never arrived are swept by age.
	maxInflightTracked = 4096

	// inflightTimeout is how long an op waits for its result before
	// tracking is dropped.
	inflightTimeout = 2 * time.Minute
)

// inflightOp tracks one op sent to the client until its result arrives.
type inflightOp struct {
	op     protocol.OpType
	area   storage.Area
	sentAt time.Time
}

// Session is one execution context: a connected tab synchronizing its
// storage areas through this server. All slot state for the context is
// confined to the session's event loop; Dispatch is the only way in
// from other goroutines.
//
// A session survives its connection. When the websocket drops the
// loops stop but the session, its binder and its slots stay registered
// for the retention window, so a reconnecting client resumes where it
// left off.
type Session struct {
	// ID uniquely identifies the execution context.
	ID string

	// Origin is the storage origin the context synchronizes.
	Origin string

	// CreatedAt is when the session was created.
	CreatedAt time.Time

	group  *Group
	binder *slot.Binder

	// Connection state
	conn    *websocket.Conn
	connMu  sync.Mutex // guards conn writes and swaps
	connGen atomic.Uint64
	closed  atomic.Bool
	running atomic.Bool
	loops   sync.WaitGroup

	// Sequencing
	sendSeq atomic.Uint64 // op frames sent
	recvSeq atomic.Uint64 // highest client event sequence seen
	ackSeq  atomic.Uint64 // highest op sequence the client acked
	nextOp  atomic.Uint64 // per-session op ID allocator
	window  atomic.Uint64 // client receive window

	// Event-loop confined state
	pending    []protocol.Op
	inflight   map[uint64]inflightOp
	flowWarned bool

	history *OpHistory

	// Channels
	events     chan *protocol.StorageEvent
	dispatchCh chan func()
	flushCh    chan struct{}

	// stateMu guards the fields below. done is reassigned on resume,
	// so loops capture it through doneChan at start.
	stateMu    sync.Mutex
	done       chan struct{}
	lastActive time.Time
	detachedAt time.Time
	areas      protocol.AreaBits

	unsub    func()
	onDetach func(*Session)

	config *SessionConfig
	logger *slog.Logger
	mws    []middleware.Middleware
}

// newSession creates a session bound to group. The connection may be
// nil for sessions driven directly in tests.
func newSession(conn *websocket.Conn, origin string, group *Group, config *SessionConfig, logger *slog.Logger, mws []middleware.Middleware) *Session {
	if config == nil {
		config = DefaultSessionConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}

	id := generateSessionID()
	s := &Session{
		ID:         id,
		Origin:     origin,
		CreatedAt:  time.Now(),
		group:      group,
		conn:       conn,
		inflight:   make(map[uint64]inflightOp),
		history:    NewOpHistory(config.MaxReplayFrames),
		events:     make(chan *protocol.StorageEvent, config.MaxEventQueue),
		dispatchCh: make(chan func(), config.MaxDispatchQueue),
		flushCh:    make(chan struct{}, 1),
		done:       make(chan struct{}),
		config:     config,
		logger:     logger.With("session_id", id),
		mws:        mws,
	}
	s.lastActive = s.CreatedAt
	s.window.Store(protocol.DefaultWindow)

	s.binder = slot.NewBinder(id, s.areaStore,
		slot.WithDispatch(s.Dispatch),
		slot.WithDegradeObserver(s.observeDegrade),
	)

	events, cancel := group.part.Subscribe(id, config.MaxEventQueue)
	s.unsub = cancel
	go s.relayLoop(events)

	group.add(s)
	return s
}

// generateSessionID returns a 128-bit random hex identifier.
func generateSessionID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		// SECURITY: weak session IDs are dangerous; refuse to run.
		panic(fmt.Sprintf("crypto/rand failed: %v", err))
	}
	return hex.EncodeToString(b)
}

// Binder returns the binder hosting this context's slots. Applications
// pass it to slot.Use when declaring slots in the OnSession callback.
func (s *Session) Binder() *slot.Binder {
	return s.binder
}

// Group returns the group the session belongs to.
func (s *Session) Group() *Group {
	return s.group
}

// Logger returns the session's logger.
func (s *Session) Logger() *slog.Logger {
	return s.logger
}

// areaStore resolves the store slots use for one area: reads hit the
// group partition, writes additionally queue an op for the client.
func (s *Session) areaStore(area storage.Area) storage.Store {
	return &wireStore{session: s, area: area, inner: s.group.Area(s.ID, area)}
}

// observeDegrade logs the first storage failure per area.
func (s *Session) observeDegrade(area storage.Area, err error) {
	s.logger.Warn("storage area degraded, continuing in memory",
		"area", area.String(),
		"error", err)
}

// Start launches the session's read, write and event loops.
func (s *Session) Start() {
	if s.running.Swap(true) {
		return
	}
	done := s.doneChan()
	s.loops.Add(3)
	go s.readLoop(done)
	go s.writeLoop(done)
	go s.eventLoop(done)
}

// NeedsRestart reports whether the loops have stopped and Start must be
// called again.
func (s *Session) NeedsRestart() bool {
	return !s.running.Load()
}

// Dispatch queues fn to run on the session's event loop. Work is
// dropped with a warning when the queue is full.
func (s *Session) Dispatch(fn func()) {
	select {
	case s.dispatchCh <- fn:
	default:
		s.logger.Warn("dispatch queue full, dropping work")
	}
}

// queueEvent hands a client storage event to the event loop.
func (s *Session) queueEvent(ev *protocol.StorageEvent) error {
	select {
	case s.events <- ev:
		return nil
	default:
		s.logger.Warn("event queue full, dropping storage event",
			"area", ev.Area.String(),
			"key", ev.Key)
		return ErrEventQueueFull
	}
}

// Close stops the loops and closes the connection. The session object
// stays registered for the retention window so the client can resume;
// the bridge's cleanup loop performs the final teardown.
func (s *Session) Close() {
	s.connMu.Lock()
	s.closeLocked()
	s.connMu.Unlock()
}

// closeLocked detaches the session. Caller holds connMu.
func (s *Session) closeLocked() {
	if s.closed.Swap(true) {
		return
	}
	s.running.Store(false)

	s.stateMu.Lock()
	s.detachedAt = time.Now()
	close(s.done)
	s.stateMu.Unlock()

	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}

	if s.onDetach != nil {
		go s.onDetach(s)
	}

	s.logger.Info("session detached",
		"send_seq", s.sendSeq.Load(),
		"recv_seq", s.recvSeq.Load())
}

// closeIfCurrent closes the session unless the connection generation
// has moved on, which means a resume already superseded this one.
func (s *Session) closeIfCurrent(gen uint64) {
	if s.connGen.Load() != gen {
		return
	}
	s.Close()
}

// Resume attaches a new connection to the session. Any loops still
// bound to the old connection are stopped first; the caller restarts
// them with Start.
func (s *Session) Resume(conn *websocket.Conn) {
	s.connGen.Add(1)
	s.Close()
	s.loops.Wait()

	s.connMu.Lock()
	s.conn = conn
	s.stateMu.Lock()
	s.done = make(chan struct{})
	s.detachedAt = time.Time{}
	s.lastActive = time.Now()
	s.stateMu.Unlock()
	s.closed.Store(false)
	s.connMu.Unlock()

	s.logger.Info("session resumed",
		"send_seq", s.sendSeq.Load(),
		"ack_seq", s.ackSeq.Load())
}

// teardown releases the session's resources for good.
func (s *Session) teardown() {
	s.Close()
	if s.unsub != nil {
		s.unsub()
	}
	s.binder.Close()
}

// IsClosed reports whether the session's connection is down.
func (s *Session) IsClosed() bool {
	return s.closed.Load()
}

// IsDetached reports whether the session is awaiting a resume.
func (s *Session) IsDetached() bool {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return !s.detachedAt.IsZero()
}

// LastActive returns the time of the last client activity.
func (s *Session) LastActive() time.Time {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.lastActive
}

// DetachedAt returns when the connection dropped, or the zero time
// while connected.
func (s *Session) DetachedAt() time.Time {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.detachedAt
}

func (s *Session) touch() {
	s.stateMu.Lock()
	s.lastActive = time.Now()
	s.stateMu.Unlock()
}

func (s *Session) doneChan() chan struct{} {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.done
}

// setAreas records which areas the client declared at handshake.
func (s *Session) setAreas(bits protocol.AreaBits) {
	s.stateMu.Lock()
	s.areas = bits
	s.stateMu.Unlock()
}

// areaBits returns the client's declared areas, defaulting to both.
func (s *Session) areaBits() protocol.AreaBits {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	if s.areas == 0 {
		return protocol.AreaBitLocal | protocol.AreaBitSession
	}
	return s.areas
}

// =============================================================================
// Op queueing and sending
// =============================================================================

// queueOp adds an op to the pending batch and signals the event loop to
// flush. Event-loop confined.
func (s *Session) queueOp(op protocol.Op) {
	s.pending = append(s.pending, op)
	select {
	case s.flushCh <- struct{}{}:
	default:
	}
}

// queueSet queues a set op unless the area has degraded.
func (s *Session) queueSet(area storage.Area, key, value string) {
	if _, degraded := s.binder.Degraded(area); degraded {
		return
	}
	s.queueOp(protocol.NewSetOp(s.nextOp.Add(1), wireArea(area), key, value))
}

// queueRemove queues a remove op unless the area has degraded.
func (s *Session) queueRemove(area storage.Area, key string) {
	if _, degraded := s.binder.Degraded(area); degraded {
		return
	}
	s.queueOp(protocol.NewRemoveOp(s.nextOp.Add(1), wireArea(area), key))
}

// flushOps sends the pending ops as one frame, records them for replay
// and tracks each op until its result arrives. Event-loop confined.
//
// The frame goes into history before the write: if the send fails the
// connection is going down and a resume replays the frame instead.
func (s *Session) flushOps() {
	if len(s.pending) == 0 {
		return
	}
	ops := s.pending
	s.pending = nil

	seq := s.sendSeq.Add(1)
	frame := &protocol.OpFrame{Seq: seq, Ops: ops}
	s.history.Add(frame)

	now := time.Now()
	for i := range ops {
		area, _ := storageArea(ops[i].Area)
		s.inflight[ops[i].ID] = inflightOp{op: ops[i].Type, area: area, sentAt: now}
	}
	s.pruneInflight(now)

	if err := s.sendOps(frame); err != nil {
		s.logger.Warn("op frame send failed",
			"seq", seq,
			"ops", len(ops),
			"error", err)
		return
	}

	if win := s.window.Load(); win > 0 && seq-s.ackSeq.Load() > win {
		if !s.flowWarned {
			s.flowWarned = true
			s.logger.Warn("client ack window exceeded",
				"send_seq", seq,
				"ack_seq", s.ackSeq.Load(),
				"window", win)
		}
	} else {
		s.flowWarned = false
	}
}

// pruneInflight sweeps op tracking entries whose results never came.
func (s *Session) pruneInflight(now time.Time) {
	if len(s.inflight) <= maxInflightTracked {
		return
	}
	for id, info := range s.inflight {
		if now.Sub(info.sentAt) > inflightTimeout {
			delete(s.inflight, id)
		}
	}
}

// sendFrame writes a frame to the connection. A write failure tears the
// connection down; the session stays resumable.
func (s *Session) sendFrame(f *protocol.Frame) error {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	if s.closed.Load() {
		return ErrSessionClosed
	}
	if s.conn == nil {
		return ErrNoConnection
	}

	_ = s.conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
	if err := s.conn.WriteMessage(websocket.BinaryMessage, f.Encode()); err != nil {
		s.closeLocked()
		return NewSessionError(s.ID, "write "+frameLabel(f.Type), err)
	}
	return nil
}

func (s *Session) sendOps(of *protocol.OpFrame) error {
	return s.sendFrame(protocol.NewFrame(protocol.FrameOp, protocol.EncodeOps(of)))
}

func (s *Session) sendControl(ct protocol.ControlType, payload any) error {
	return s.sendFrame(protocol.NewFrame(protocol.FrameControl, protocol.EncodeControl(ct, payload)))
}

func (s *Session) sendPing() error {
	ct, ping := protocol.NewPing(uint64(time.Now().UnixMilli()))
	return s.sendControl(ct, ping)
}

// sendError reports a protocol-level problem to the client. Best
// effort: a failed error send is only logged.
func (s *Session) sendError(code protocol.ErrorCode, message string, fatal bool) {
	em := &protocol.ErrorMessage{Code: code, Message: message, Fatal: fatal}
	if err := s.sendFrame(protocol.NewFrame(protocol.FrameError, protocol.EncodeError(em))); err != nil {
		s.logger.Debug("error frame send failed",
			"code", code.String(),
			"error", err)
	}
}

// SendClose notifies the client the connection is about to close.
func (s *Session) SendClose(reason protocol.CloseReason, message string) {
	ct, cm := protocol.NewClose(reason, message)
	if err := s.sendControl(ct, cm); err != nil {
		s.logger.Debug("close frame send failed", "error", err)
	}
}

// NewMockSession creates a session without a WebSocket connection for
// testing. Slots bind and dispatch normally; sends return
// ErrNoConnection.
func NewMockSession() *Session {
	g := newGroup("mock", mirror.ClientWins, nil)
	return newSession(nil, "mock", g, DefaultSessionConfig(), slog.Default(), nil)
}

// SessionStats is a point-in-time snapshot of session counters.
type SessionStats struct {
	ID         string
	Origin     string
	CreatedAt  time.Time
	LastActive time.Time
	Detached   bool
	SendSeq    uint64
	RecvSeq    uint64
	AckSeq     uint64
}

// Stats returns the session's counters.
func (s *Session) Stats() SessionStats {
	return SessionStats{
		ID:         s.ID,
		Origin:     s.Origin,
		CreatedAt:  s.CreatedAt,
		LastActive: s.LastActive(),
		Detached:   s.IsDetached(),
		SendSeq:    s.sendSeq.Load(),
		RecvSeq:    s.recvSeq.Load(),
		AckSeq:     s.ackSeq.Load(),
	}
}

// =============================================================================
// Store wiring
// =============================================================================

// wireStore backs slot operations for one area. Reads are served from
// the group partition; successful writes are additionally queued as
// ops so the client applies them to the real browser storage.
type wireStore struct {
	session *Session
	area    storage.Area
	inner   storage.Store
}

func (w *wireStore) GetItem(key string) (string, bool) {
	return w.inner.GetItem(key)
}

func (w *wireStore) SetItem(key, value string) error {
	if err := w.inner.SetItem(key, value); err != nil {
		return err
	}
	w.session.queueSet(w.area, key, value)
	return nil
}

func (w *wireStore) RemoveItem(key string) {
	w.inner.RemoveItem(key)
	w.session.queueRemove(w.area, key)
}

func (w *wireStore) Keys() []string {
	return w.inner.Keys()
}

func (w *wireStore) Len() int {
	return w.inner.Len()
}

// =============================================================================
// Conversions
// =============================================================================

// wireArea converts a storage area to its wire representation.
func wireArea(a storage.Area) protocol.Area {
	if a == storage.AreaSession {
		return protocol.AreaSession
	}
	return protocol.AreaLocal
}

// storageArea converts a wire area, reporting whether it is known.
func storageArea(a protocol.Area) (storage.Area, bool) {
	switch a {
	case protocol.AreaLocal:
		return storage.AreaLocal, true
	case protocol.AreaSession:
		return storage.AreaSession, true
	default:
		return 0, false
	}
}

// frameLabel returns the lowercase frame type label used for metrics
// and trace names.
func frameLabel(ft protocol.FrameType) string {
	switch ft {
	case protocol.FrameHandshake:
		return "handshake"
	case protocol.FrameEvent:
		return "event"
	case protocol.FrameOp:
		return "op"
	case protocol.FrameControl:
		return "control"
	case protocol.FrameAck:
		return "ack"
	case protocol.FrameError:
		return "error"
	case protocol.FrameSnapshot:
		return "snapshot"
	case protocol.FrameResult:
		return "result"
	default:
		return "unknown"
	}
}

// opLabel returns the lowercase op type label used for metrics.
func opLabel(ot protocol.OpType) string {
	switch ot {
	case protocol.OpSet:
		return "set"
	case protocol.OpRemove:
		return "remove"
	case protocol.OpClear:
		return "clear"
	default:
		return "unknown"
	}
}

// statusLabel returns the lowercase op status label used for metrics.
func statusLabel(st protocol.OpStatus) string {
	switch st {
	case protocol.OpApplied:
		return "applied"
	case protocol.OpQuotaExceeded:
		return "quota_exceeded"
	case protocol.OpUnavailable:
		return "unavailable"
	case protocol.OpInvalid:
		return "invalid"
	default:
		return "unknown"
	}
}
