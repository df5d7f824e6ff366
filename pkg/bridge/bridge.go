// Package bridge hosts execution contexts over WebSocket connections
// and keeps their browser storage synchronized with server-side slots.
package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tabsync-dev/tabsync/pkg/middleware"
	"github.com/tabsync-dev/tabsync/pkg/mirror"
	"github.com/tabsync-dev/tabsync/pkg/protocol"
	"github.com/tabsync-dev/tabsync/pkg/storage"
)

// persistTimeout bounds one mirror save.
const persistTimeout = 10 * time.Second

// Bridge accepts WebSocket connections, runs the storage handshake and
// manages the resulting sessions and their per-origin groups.
type Bridge struct {
	config   *Config
	logger   *slog.Logger
	upgrader websocket.Upgrader
	mirror   mirror.Store
	mws      []middleware.Middleware

	mu           sync.RWMutex
	sessions     map[string]*Session
	groups       map[string]*Group
	peakSessions int

	totalCreated atomic.Uint64
	totalClosed  atomic.Uint64

	closed      atomic.Bool
	done        chan struct{}
	cleanupDone chan struct{}
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithMiddleware adds frame middleware, outermost first. Every client
// frame and mirror save runs through the chain.
func WithMiddleware(mws ...middleware.Middleware) Option {
	return func(b *Bridge) { b.mws = append(b.mws, mws...) }
}

// WithLogger sets the bridge's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bridge) {
		if logger != nil {
			b.logger = logger.With("component", "bridge")
		}
	}
}

// New creates a bridge and starts its maintenance loop.
func New(config *Config, opts ...Option) *Bridge {
	config = config.withDefaults()

	b := &Bridge{
		config:      config,
		logger:      slog.Default().With("component", "bridge"),
		mirror:      config.Mirror,
		sessions:    make(map[string]*Session),
		groups:      make(map[string]*Group),
		done:        make(chan struct{}),
		cleanupDone: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}

	b.upgrader = websocket.Upgrader{
		ReadBufferSize:  config.ReadBufferSize,
		WriteBufferSize: config.WriteBufferSize,
		CheckOrigin:     config.CheckOrigin,
	}

	if len(config.TokenSecret) == 0 {
		b.logger.Warn("no token secret configured, handshake tokens are unsigned")
	}

	go b.maintenanceLoop()
	return b
}

// Handler returns the bridge's HTTP handler. Mount it at the root; it
// routes by the configured path prefix.
func (b *Bridge) Handler() http.Handler {
	return b
}

func (b *Bridge) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case b.config.PathPrefix + "/ws":
		b.HandleWebSocket(w, r)
	case b.config.PathPrefix + "/token":
		b.HandleToken(w, r)
	case b.config.PathPrefix + "/client.js":
		b.HandleClientScript(w, r)
	default:
		http.NotFound(w, r)
	}
}

// HandleToken issues a handshake token with its double-submit cookie.
// Pages fetch it before opening the websocket.
func (b *Bridge) HandleToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	token := b.GenerateToken()
	b.SetTokenCookie(w, r, token)
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"token":%q}`, token)
}

// HandleWebSocket upgrades the connection and runs the handshake.
func (b *Bridge) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	if b.closed.Load() {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}

	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	conn.SetReadLimit(b.config.Session.MaxMessageSize)
	conn.SetReadDeadline(time.Now().Add(b.config.Session.HandshakeTimeout))

	// Wait for the client hello
	_, msg, err := conn.ReadMessage()
	if err != nil {
		b.logger.Error("handshake read failed", "error", err)
		conn.Close()
		return
	}

	// Frame format: [type:1][flags:1][len:2][payload...]
	if len(msg) < protocol.FrameHeaderSize {
		b.sendHandshakeError(conn, protocol.HandshakeInvalidFormat)
		conn.Close()
		return
	}
	frameType := protocol.FrameType(msg[0])
	if frameType != protocol.FrameHandshake {
		b.logger.Error("handshake frame type mismatch", "got", frameType.String())
		b.sendHandshakeError(conn, protocol.HandshakeInvalidFormat)
		conn.Close()
		return
	}
	payloadLen := int(msg[2])<<8 | int(msg[3])
	if len(msg) < protocol.FrameHeaderSize+payloadLen {
		b.sendHandshakeError(conn, protocol.HandshakeInvalidFormat)
		conn.Close()
		return
	}
	payload := msg[protocol.FrameHeaderSize : protocol.FrameHeaderSize+payloadLen]

	hello, err := protocol.DecodeClientHello(payload)
	if err != nil {
		b.sendHandshakeError(conn, protocol.HandshakeInvalidFormat)
		conn.Close()
		return
	}

	if !protocol.CurrentVersion.Compatible(hello.Version) {
		b.logger.Warn("protocol version mismatch",
			"client", fmt.Sprintf("%d.%d", hello.Version.Major, hello.Version.Minor))
		b.sendHandshakeError(conn, protocol.HandshakeVersionMismatch)
		conn.Close()
		return
	}

	if !b.validateToken(r, hello.Token) {
		b.sendHandshakeError(conn, protocol.HandshakeInvalidToken)
		conn.Close()
		return
	}

	origin := hello.Origin
	if origin == "" {
		origin = r.Header.Get("Origin")
	}
	if !b.originAllowed(origin) {
		b.logger.Warn("origin rejected", "origin", origin)
		b.sendHandshakeError(conn, protocol.HandshakeOriginRejected)
		conn.Close()
		return
	}

	if hello.ContextID != "" && b.resumeSession(conn, hello, origin) {
		return
	}

	b.createSession(conn, r, hello, origin)
}

// resumeSession reattaches conn to a retained session. It reports
// whether the request was fully handled; when false the caller falls
// through to a fresh context.
func (b *Bridge) resumeSession(conn *websocket.Conn, hello *protocol.ClientHello, origin string) bool {
	b.mu.RLock()
	s := b.sessions[hello.ContextID]
	b.mu.RUnlock()

	if s == nil {
		b.logger.Info("resume for unknown context, starting fresh",
			"context_id", hello.ContextID)
		return false
	}

	if s.Origin != origin {
		b.logger.Warn("resume origin mismatch",
			"context_id", hello.ContextID,
			"origin", origin)
		b.sendHandshakeError(conn, protocol.HandshakeContextExpired)
		conn.Close()
		return true
	}

	if at := s.DetachedAt(); !at.IsZero() && time.Since(at) > b.config.Session.RetentionWindow {
		b.logger.Info("resume rejected: retention window passed",
			"context_id", s.ID,
			"detached_at", at)
		b.mu.Lock()
		delete(b.sessions, s.ID)
		b.mu.Unlock()
		go b.destroySession(s)
		return false
	}

	s.Resume(conn)
	s.ackSeq.Store(hello.LastSeq)
	if hello.Areas != 0 {
		s.setAreas(hello.Areas)
	}

	top := s.sendSeq.Load()
	replayable := hello.LastSeq == top || s.history.CanRecover(hello.LastSeq)

	flags := protocol.ServerFlagRelay
	if b.mirror != nil {
		flags |= protocol.ServerFlagMirrored
	}
	if !replayable {
		flags |= protocol.ServerFlagSnapshotWanted
	}
	b.sendServerHello(conn, protocol.HandshakeResumed, s.ID, top+1, flags)

	if replayable && hello.LastSeq < top {
		if frames := s.history.Range(hello.LastSeq, top); frames != nil {
			ct, ops := protocol.NewResyncOps(hello.LastSeq, frames)
			if err := s.sendControl(ct, ops); err != nil {
				b.logger.Warn("resume replay failed", "context_id", s.ID, "error", err)
				return true
			}
		}
	}

	if s.NeedsRestart() {
		s.Start()
	}
	// Slots re-read their keys in case relay events were dropped while
	// the context was detached.
	s.Dispatch(func() { s.binder.RefreshAll() })

	if replayable {
		middleware.RecordResume("resumed")
	} else {
		middleware.RecordResume("snapshot")
	}
	b.logger.Info("context resumed",
		"session_id", s.ID,
		"last_seq", hello.LastSeq,
		"replayed", replayable)
	return true
}

// createSession registers a fresh execution context and starts its
// loops.
func (b *Bridge) createSession(conn *websocket.Conn, r *http.Request, hello *protocol.ClientHello, origin string) {
	key := origin
	if b.config.GroupKey != nil {
		key = b.config.GroupKey(r, origin)
	}

	// Optimistic mirror load, outside the lock: only the first session
	// of a group pays it.
	var restored *mirror.Snapshot
	b.mu.RLock()
	_, haveGroup := b.groups[key]
	b.mu.RUnlock()
	if !haveGroup {
		restored = b.loadMirror(r.Context(), key)
	}

	b.mu.Lock()
	if b.config.MaxSessions > 0 && len(b.sessions) >= b.config.MaxSessions {
		b.mu.Unlock()
		b.logger.Warn("session limit reached", "max", b.config.MaxSessions)
		b.sendHandshakeError(conn, protocol.HandshakeServerBusy)
		conn.Close()
		return
	}
	group := b.groups[key]
	if group == nil {
		group = newGroup(key, b.config.MergeStrategy, restored)
		b.groups[key] = group
	}
	s := newSession(conn, origin, group, b.config.Session, b.logger, b.mws)
	s.onDetach = b.onSessionDetach
	if hello.Areas != 0 {
		s.setAreas(hello.Areas)
	}
	b.sessions[s.ID] = s
	if n := len(b.sessions); n > b.peakSessions {
		b.peakSessions = n
	}
	b.mu.Unlock()
	b.totalCreated.Add(1)

	flags := protocol.ServerFlagSnapshotWanted | protocol.ServerFlagRelay
	if b.mirror != nil {
		flags |= protocol.ServerFlagMirrored
	}
	b.sendServerHello(conn, protocol.HandshakeOK, s.ID, 1, flags)

	// Runs synchronously before the loops start, so slots declared here
	// exist before the first snapshot or event arrives.
	if b.config.OnSession != nil {
		b.config.OnSession(s)
	}

	s.Start()
	middleware.RecordSessionCreate()
	b.logger.Info("context created",
		"session_id", s.ID,
		"origin", origin,
		"group", key)
}

// sendHandshakeError sends a handshake error response.
func (b *Bridge) sendHandshakeError(conn *websocket.Conn, status protocol.HandshakeStatus) {
	hello := protocol.NewServerHello(status, "", 0, uint64(time.Now().UnixMilli()))
	frame := protocol.NewFrame(protocol.FrameHandshake, protocol.EncodeServerHello(hello))

	conn.SetWriteDeadline(time.Now().Add(b.config.Session.WriteTimeout))
	conn.WriteMessage(websocket.BinaryMessage, frame.Encode())
}

// sendServerHello sends a successful handshake response.
func (b *Bridge) sendServerHello(conn *websocket.Conn, status protocol.HandshakeStatus, contextID string, nextSeq uint64, flags uint16) {
	hello := protocol.NewServerHello(status, contextID, nextSeq, uint64(time.Now().UnixMilli()))
	hello.Flags = flags
	frame := protocol.NewFrame(protocol.FrameHandshake, protocol.EncodeServerHello(hello))

	conn.SetWriteDeadline(time.Now().Add(b.config.Session.WriteTimeout))
	conn.WriteMessage(websocket.BinaryMessage, frame.Encode())
}

// originAllowed reports whether origin may synchronize through this
// bridge. An empty allowlist admits every origin the upgrader already
// accepted.
func (b *Bridge) originAllowed(origin string) bool {
	if origin == "" {
		return false
	}
	if len(b.config.AllowedOrigins) == 0 {
		return true
	}
	for _, allowed := range b.config.AllowedOrigins {
		if allowed == origin || allowed == "*" {
			return true
		}
	}
	return false
}

// onSessionDetach persists the group when a connection drops, so a
// crash during the retention window loses nothing.
func (b *Bridge) onSessionDetach(s *Session) {
	if b.mirror == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	b.persistGroup(ctx, s.group)
}

// =============================================================================
// Maintenance
// =============================================================================

// maintenanceLoop expires detached sessions and persists group
// snapshots until Shutdown.
func (b *Bridge) maintenanceLoop() {
	defer close(b.cleanupDone)

	cleanup := time.NewTicker(b.config.CleanupInterval)
	defer cleanup.Stop()
	persist := time.NewTicker(b.config.PersistInterval)
	defer persist.Stop()

	for {
		select {
		case <-cleanup.C:
			b.cleanupExpired()
		case <-persist.C:
			b.persistGroups()
		case <-b.done:
			return
		}
	}
}

// cleanupExpired tears down sessions whose retention window has
// passed without a resume.
func (b *Bridge) cleanupExpired() {
	retention := b.config.Session.RetentionWindow
	now := time.Now()

	b.mu.Lock()
	var expired []*Session
	for id, s := range b.sessions {
		at := s.DetachedAt()
		if at.IsZero() || now.Sub(at) < retention {
			continue
		}
		delete(b.sessions, id)
		expired = append(expired, s)
	}
	b.mu.Unlock()

	for _, s := range expired {
		b.logger.Info("context expired", "session_id", s.ID)
		go b.destroySession(s)
	}
}

// destroySession is the final teardown of an unregistered session.
func (b *Bridge) destroySession(s *Session) {
	b.finalizeSession(context.Background(), s)
	b.totalClosed.Add(1)
	middleware.RecordSessionDestroy()
}

// finalizeSession releases a session's resources and group membership.
// The session must already be out of the session map. When the group
// empties, its state is persisted and the group is dropped.
func (b *Bridge) finalizeSession(ctx context.Context, s *Session) {
	s.teardown()

	g := s.group
	b.mu.Lock()
	remaining := g.remove(s.ID)
	if remaining == 0 {
		delete(b.groups, g.key)
	}
	b.mu.Unlock()

	if remaining == 0 {
		b.persistGroup(ctx, g)
		g.close()
	}
}

// persistGroups snapshots every group to the mirror store.
func (b *Bridge) persistGroups() {
	if b.mirror == nil {
		return
	}
	b.mu.RLock()
	groups := make([]*Group, 0, len(b.groups))
	for _, g := range b.groups {
		groups = append(groups, g)
	}
	b.mu.RUnlock()

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	for _, g := range groups {
		b.persistGroup(ctx, g)
	}
	middleware.SetMirrorSnapshots(len(groups))
}

// persistGroup saves one group's local area through the middleware
// chain, so mirror writes show up in metrics and traces like frames
// do.
func (b *Bridge) persistGroup(ctx context.Context, g *Group) {
	if b.mirror == nil {
		return
	}
	snap := g.snapshot(time.Now())
	info := &middleware.FrameInfo{Origin: g.key, Type: "mirror_save", Size: len(snap.Items)}
	err := middleware.Run(ctx, b.mws, info, func(ctx context.Context, _ *middleware.FrameInfo) error {
		return b.mirror.Save(ctx, snap)
	})
	if err != nil {
		b.logger.Warn("mirror save failed", "group", g.key, "error", err)
	}
}

// loadMirror restores a group's persisted local area, if any.
func (b *Bridge) loadMirror(ctx context.Context, key string) *mirror.Snapshot {
	if b.mirror == nil {
		return nil
	}
	snap, err := b.mirror.Load(ctx, key, storage.AreaLocal)
	if err != nil {
		b.logger.Warn("mirror load failed", "group", key, "error", err)
		return nil
	}
	return snap
}

// =============================================================================
// Lifecycle and introspection
// =============================================================================

// Shutdown persists all groups, notifies clients and closes every
// session. The bridge cannot be reused afterwards.
func (b *Bridge) Shutdown(ctx context.Context) error {
	if b.closed.Swap(true) {
		return nil
	}
	b.logger.Info("bridge shutting down")

	close(b.done)
	<-b.cleanupDone

	b.mu.Lock()
	sessions := make([]*Session, 0, len(b.sessions))
	for _, s := range b.sessions {
		sessions = append(sessions, s)
	}
	b.sessions = make(map[string]*Session)
	groups := make([]*Group, 0, len(b.groups))
	for _, g := range b.groups {
		groups = append(groups, g)
	}
	b.groups = make(map[string]*Group)
	b.mu.Unlock()

	// Persist before closing: ops already applied to the partitions are
	// what the next start restores.
	for _, g := range groups {
		b.persistGroup(ctx, g)
	}

	var wg sync.WaitGroup
	for _, s := range sessions {
		wg.Add(1)
		go func(s *Session) {
			defer wg.Done()
			s.SendClose(protocol.CloseServerShutdown, "server shutting down")
			s.teardown()
		}(s)
	}

	finished := make(chan struct{})
	go func() {
		wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
	case <-ctx.Done():
		return ctx.Err()
	}

	for _, g := range groups {
		g.close()
	}
	b.totalClosed.Add(uint64(len(sessions)))
	b.logger.Info("bridge shutdown complete", "sessions_closed", len(sessions))
	return nil
}

// BridgeStats is a point-in-time snapshot of bridge counters.
type BridgeStats struct {
	ActiveSessions   int
	DetachedSessions int
	Groups           int
	TotalCreated     uint64
	TotalClosed      uint64
	PeakSessions     int
}

// Stats returns the bridge's counters.
func (b *Bridge) Stats() BridgeStats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	st := BridgeStats{
		Groups:       len(b.groups),
		TotalCreated: b.totalCreated.Load(),
		TotalClosed:  b.totalClosed.Load(),
		PeakSessions: b.peakSessions,
	}
	for _, s := range b.sessions {
		if s.IsDetached() {
			st.DetachedSessions++
		} else {
			st.ActiveSessions++
		}
	}
	return st
}

// Session returns a tracked session by ID, or nil.
func (b *Bridge) Session(id string) *Session {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.sessions[id]
}

// Group returns the group for key, or nil.
func (b *Bridge) Group(key string) *Group {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.groups[key]
}

// ForEachSession calls fn for every tracked session until fn returns
// false.
func (b *Bridge) ForEachSession(fn func(*Session) bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, s := range b.sessions {
		if !fn(s) {
			return
		}
	}
}

// Config returns the bridge's configuration.
func (b *Bridge) Config() *Config {
	return b.config
}

// Logger returns the bridge's logger.
func (b *Bridge) Logger() *slog.Logger {
	return b.logger
}
