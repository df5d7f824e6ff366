package bridge

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tabsync-dev/tabsync/pkg/mirror"
	"github.com/tabsync-dev/tabsync/pkg/protocol"
	"github.com/tabsync-dev/tabsync/pkg/slot"
	"github.com/tabsync-dev/tabsync/pkg/storage"
)

const testOrigin = "https://app.test"

func testAreas() protocol.AreaBits {
	return protocol.AreaBitLocal | protocol.AreaBitSession
}

func newTestBridge(t *testing.T, cfg *Config) (*Bridge, *httptest.Server) {
	t.Helper()
	b := New(cfg)
	ts := httptest.NewServer(b.Handler())
	t.Cleanup(ts.Close)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = b.Shutdown(ctx)
	})
	return b, ts
}

func wsURL(t *testing.T, baseURL, path string) string {
	t.Helper()
	if !strings.HasPrefix(baseURL, "http") {
		t.Fatalf("unexpected base URL: %q", baseURL)
	}
	return "ws" + strings.TrimPrefix(baseURL, "http") + path
}

func dialWS(t *testing.T, url string, header http.Header) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatalf("Dial(%q) failed: %v", url, err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func writeHandshake(t *testing.T, conn *websocket.Conn, hello *protocol.ClientHello) {
	t.Helper()
	payload := protocol.EncodeClientHello(hello)
	frame := protocol.NewFrame(protocol.FrameHandshake, payload)
	if err := conn.WriteMessage(websocket.BinaryMessage, frame.Encode()); err != nil {
		t.Fatalf("write handshake failed: %v", err)
	}
}

func readServerHello(t *testing.T, conn *websocket.Conn) *protocol.ServerHello {
	t.Helper()
	frame := readWSFrame(t, conn)
	if frame.Type != protocol.FrameHandshake {
		t.Fatalf("frame type = %v, want %v", frame.Type, protocol.FrameHandshake)
	}
	hello, err := protocol.DecodeServerHello(frame.Payload)
	if err != nil {
		t.Fatalf("DecodeServerHello failed: %v", err)
	}
	return hello
}

func readWSFrame(t *testing.T, conn *websocket.Conn) *protocol.Frame {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read frame failed: %v", err)
	}
	frame, err := protocol.DecodeFrame(msg)
	if err != nil {
		t.Fatalf("DecodeFrame failed: %v", err)
	}
	return frame
}

func writeWSFrame(t *testing.T, conn *websocket.Conn, ft protocol.FrameType, payload []byte) {
	t.Helper()
	frame := protocol.NewFrame(ft, payload)
	if err := conn.WriteMessage(websocket.BinaryMessage, frame.Encode()); err != nil {
		t.Fatalf("write %s frame failed: %v", ft, err)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func getSessionEventually(t *testing.T, b *Bridge, id string) *Session {
	t.Helper()
	var s *Session
	waitFor(t, "session "+id, func() bool {
		s = b.Session(id)
		return s != nil
	})
	return s
}

func waitForDetached(t *testing.T, s *Session) {
	t.Helper()
	waitFor(t, "session detach", func() bool { return s.IsDetached() })
}

func TestBridge_HandshakeInvalidFormat(t *testing.T) {
	_, ts := newTestBridge(t, DefaultConfig())

	conn := dialWS(t, wsURL(t, ts.URL, "/tabsync/ws"), nil)

	// Too short to hold a frame header: the bridge replies with a
	// handshake error and closes.
	if err := conn.WriteMessage(websocket.BinaryMessage, []byte{0x01, 0x02}); err != nil {
		t.Fatalf("write invalid handshake failed: %v", err)
	}

	hello := readServerHello(t, conn)
	if hello.Status != protocol.HandshakeInvalidFormat {
		t.Fatalf("status = %v, want %v", hello.Status, protocol.HandshakeInvalidFormat)
	}
}

func TestBridge_HandshakeVersionMismatch(t *testing.T) {
	_, ts := newTestBridge(t, DefaultConfig())

	conn := dialWS(t, wsURL(t, ts.URL, "/tabsync/ws"), nil)
	hello := protocol.NewClientHello("", testOrigin, testAreas())
	hello.Version = protocol.ProtocolVersion{Major: 9}
	writeHandshake(t, conn, hello)

	reply := readServerHello(t, conn)
	if reply.Status != protocol.HandshakeVersionMismatch {
		t.Fatalf("status = %v, want %v", reply.Status, protocol.HandshakeVersionMismatch)
	}
}

func TestBridge_HandshakeTokenRequired(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TokenSecret = []byte("0123456789abcdef0123456789abcdef")
	b, ts := newTestBridge(t, cfg)

	// Missing token is rejected.
	c1 := dialWS(t, wsURL(t, ts.URL, "/tabsync/ws"), nil)
	writeHandshake(t, c1, protocol.NewClientHello("", testOrigin, testAreas()))
	if reply := readServerHello(t, c1); reply.Status != protocol.HandshakeInvalidToken {
		t.Fatalf("status without token = %v, want %v", reply.Status, protocol.HandshakeInvalidToken)
	}

	// A generated token with its double-submit cookie is accepted.
	token := b.GenerateToken()
	header := http.Header{}
	header.Set("Cookie", TokenCookieName+"="+token)
	c2 := dialWS(t, wsURL(t, ts.URL, "/tabsync/ws"), header)
	writeHandshake(t, c2, protocol.NewClientHello(token, testOrigin, testAreas()))
	if reply := readServerHello(t, c2); reply.Status != protocol.HandshakeOK {
		t.Fatalf("status with token = %v, want %v", reply.Status, protocol.HandshakeOK)
	}
}

func TestBridge_HandshakeOK_NewContext(t *testing.T) {
	b, ts := newTestBridge(t, DefaultConfig())

	conn := dialWS(t, wsURL(t, ts.URL, "/tabsync/ws"), nil)
	writeHandshake(t, conn, protocol.NewClientHello("", testOrigin, testAreas()))

	reply := readServerHello(t, conn)
	if reply.Status != protocol.HandshakeOK {
		t.Fatalf("status = %v, want %v", reply.Status, protocol.HandshakeOK)
	}
	if reply.ContextID == "" {
		t.Fatal("empty context ID")
	}
	if reply.NextSeq != 1 {
		t.Errorf("NextSeq = %d, want 1", reply.NextSeq)
	}
	if reply.Flags&protocol.ServerFlagSnapshotWanted == 0 {
		t.Error("SnapshotWanted flag not set for a fresh context")
	}
	if reply.Flags&protocol.ServerFlagRelay == 0 {
		t.Error("Relay flag not set")
	}
	if reply.Flags&protocol.ServerFlagMirrored != 0 {
		t.Error("Mirrored flag set without a mirror store")
	}

	s := getSessionEventually(t, b, reply.ContextID)
	if s.Origin != testOrigin {
		t.Errorf("session origin = %q, want %q", s.Origin, testOrigin)
	}
	if got := b.Stats().ActiveSessions; got != 1 {
		t.Errorf("active sessions = %d, want 1", got)
	}
}

func TestBridge_SnapshotSeedsServerSlots(t *testing.T) {
	var (
		mu    sync.Mutex
		theme *slot.Slot[string]
	)
	cfg := DefaultConfig()
	cfg.OnSession = func(s *Session) {
		mu.Lock()
		theme = slot.Use(s.Binder(), "theme", "light")
		mu.Unlock()
	}
	_, ts := newTestBridge(t, cfg)

	conn := dialWS(t, wsURL(t, ts.URL, "/tabsync/ws"), nil)
	writeHandshake(t, conn, protocol.NewClientHello("", testOrigin, testAreas()))
	if reply := readServerHello(t, conn); reply.Status != protocol.HandshakeOK {
		t.Fatalf("status = %v", reply.Status)
	}

	snap := protocol.SnapshotFromMap(protocol.AreaLocal, map[string]string{"theme": "dark"})
	writeWSFrame(t, conn, protocol.FrameSnapshot, protocol.EncodeSnapshot(snap))

	waitFor(t, "slot seeded from snapshot", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return theme != nil && theme.Get() == "dark"
	})
}

func TestBridge_SlotWriteReachesClient(t *testing.T) {
	var (
		mu    sync.Mutex
		sess  *Session
		theme *slot.Slot[string]
	)
	cfg := DefaultConfig()
	cfg.OnSession = func(s *Session) {
		mu.Lock()
		sess = s
		theme = slot.Use(s.Binder(), "theme", "light")
		mu.Unlock()
	}
	_, ts := newTestBridge(t, cfg)

	conn := dialWS(t, wsURL(t, ts.URL, "/tabsync/ws"), nil)
	writeHandshake(t, conn, protocol.NewClientHello("", testOrigin, testAreas()))
	if reply := readServerHello(t, conn); reply.Status != protocol.HandshakeOK {
		t.Fatalf("status = %v", reply.Status)
	}
	waitFor(t, "session captured", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return sess != nil
	})

	sess.Dispatch(func() { theme.Set("dark") })

	frame := readWSFrame(t, conn)
	if frame.Type != protocol.FrameOp {
		t.Fatalf("frame type = %v, want %v", frame.Type, protocol.FrameOp)
	}
	of, err := protocol.DecodeOps(frame.Payload)
	if err != nil {
		t.Fatalf("DecodeOps: %v", err)
	}
	if of.Seq != 1 || len(of.Ops) != 1 {
		t.Fatalf("op frame = seq %d with %d ops, want seq 1 with 1 op", of.Seq, len(of.Ops))
	}
	op := of.Ops[0]
	if op.Type != protocol.OpSet || op.Area != protocol.AreaLocal || op.Key != "theme" || op.Value != "dark" {
		t.Errorf("op = %+v, want set local theme=dark", op)
	}

	// The client confirms; the op stops being tracked.
	writeWSFrame(t, conn, protocol.FrameResult, protocol.EncodeOpResult(&protocol.OpResult{
		ID:     op.ID,
		Status: protocol.OpApplied,
	}))
	waitFor(t, "op settled", func() bool {
		settled := make(chan bool, 1)
		sess.Dispatch(func() { settled <- len(sess.inflight) == 0 })
		select {
		case ok := <-settled:
			return ok
		case <-time.After(100 * time.Millisecond):
			return false
		}
	})
}

func TestBridge_ClientEventUpdatesSlot(t *testing.T) {
	var (
		mu    sync.Mutex
		theme *slot.Slot[string]
	)
	cfg := DefaultConfig()
	cfg.OnSession = func(s *Session) {
		mu.Lock()
		theme = slot.Use(s.Binder(), "theme", "light")
		mu.Unlock()
	}
	_, ts := newTestBridge(t, cfg)

	conn := dialWS(t, wsURL(t, ts.URL, "/tabsync/ws"), nil)
	writeHandshake(t, conn, protocol.NewClientHello("", testOrigin, testAreas()))
	if reply := readServerHello(t, conn); reply.Status != protocol.HandshakeOK {
		t.Fatalf("status = %v", reply.Status)
	}

	ev := protocol.NewSetEvent(1, protocol.AreaLocal, "theme", "", "dark", false)
	writeWSFrame(t, conn, protocol.FrameEvent, protocol.EncodeStorageEvent(ev))

	waitFor(t, "slot updated from client event", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return theme != nil && theme.Get() == "dark"
	})
}

func TestBridge_RelayAcrossConnections(t *testing.T) {
	_, ts := newTestBridge(t, DefaultConfig())

	c1 := dialWS(t, wsURL(t, ts.URL, "/tabsync/ws"), nil)
	writeHandshake(t, c1, protocol.NewClientHello("", testOrigin, testAreas()))
	h1 := readServerHello(t, c1)
	if h1.Status != protocol.HandshakeOK {
		t.Fatalf("c1 status = %v", h1.Status)
	}

	c2 := dialWS(t, wsURL(t, ts.URL, "/tabsync/ws"), nil)
	writeHandshake(t, c2, protocol.NewClientHello("", testOrigin, testAreas()))
	h2 := readServerHello(t, c2)
	if h2.Status != protocol.HandshakeOK {
		t.Fatalf("c2 status = %v", h2.Status)
	}
	if h1.ContextID == h2.ContextID {
		t.Fatal("both connections got the same context ID")
	}

	// A storage change reported by tab 1 reaches tab 2 as a relayed op.
	ev := protocol.NewSetEvent(1, protocol.AreaLocal, "theme", "", "dark", false)
	writeWSFrame(t, c1, protocol.FrameEvent, protocol.EncodeStorageEvent(ev))

	frame := readWSFrame(t, c2)
	if frame.Type != protocol.FrameOp {
		t.Fatalf("c2 frame type = %v, want %v", frame.Type, protocol.FrameOp)
	}
	of, err := protocol.DecodeOps(frame.Payload)
	if err != nil {
		t.Fatalf("DecodeOps: %v", err)
	}
	if len(of.Ops) != 1 || of.Ops[0].Key != "theme" || of.Ops[0].Value != "dark" {
		t.Fatalf("relayed ops = %+v, want set theme=dark", of.Ops)
	}

	// The reporting tab gets nothing back.
	_ = c1.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	if _, _, err := c1.ReadMessage(); err == nil {
		t.Error("reporting tab received an echoed frame")
	}
}

func TestBridge_ResumeReplaysMissedOps(t *testing.T) {
	var (
		mu    sync.Mutex
		sess  *Session
		theme *slot.Slot[string]
	)
	cfg := DefaultConfig()
	cfg.OnSession = func(s *Session) {
		mu.Lock()
		sess = s
		theme = slot.Use(s.Binder(), "theme", "light")
		mu.Unlock()
	}
	b, ts := newTestBridge(t, cfg)

	c1 := dialWS(t, wsURL(t, ts.URL, "/tabsync/ws"), nil)
	writeHandshake(t, c1, protocol.NewClientHello("", testOrigin, testAreas()))
	h1 := readServerHello(t, c1)
	if h1.Status != protocol.HandshakeOK {
		t.Fatalf("status = %v", h1.Status)
	}
	s := getSessionEventually(t, b, h1.ContextID)
	waitFor(t, "session captured", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return sess != nil
	})

	// The server writes; the client drops before applying it.
	sess.Dispatch(func() { theme.Set("dark") })
	waitFor(t, "op flushed", func() bool { return s.sendSeq.Load() == 1 })
	_ = c1.Close()
	waitForDetached(t, s)

	c2 := dialWS(t, wsURL(t, ts.URL, "/tabsync/ws"), nil)
	resume := protocol.NewClientHello("", testOrigin, testAreas())
	resume.ContextID = h1.ContextID
	resume.LastSeq = 0
	writeHandshake(t, c2, resume)

	h2 := readServerHello(t, c2)
	if h2.Status != protocol.HandshakeResumed {
		t.Fatalf("resume status = %v, want %v", h2.Status, protocol.HandshakeResumed)
	}
	if h2.ContextID != h1.ContextID {
		t.Fatalf("resumed context = %q, want %q", h2.ContextID, h1.ContextID)
	}
	if h2.NextSeq != 2 {
		t.Errorf("NextSeq = %d, want 2", h2.NextSeq)
	}
	if h2.Flags&protocol.ServerFlagSnapshotWanted != 0 {
		t.Error("SnapshotWanted set although the gap is replayable")
	}

	frame := readWSFrame(t, c2)
	if frame.Type != protocol.FrameControl {
		t.Fatalf("frame type = %v, want %v", frame.Type, protocol.FrameControl)
	}
	ct, msg, err := protocol.DecodeControl(frame.Payload)
	if err != nil {
		t.Fatalf("DecodeControl: %v", err)
	}
	if ct != protocol.ControlResyncOps {
		t.Fatalf("control type = %v, want %v", ct, protocol.ControlResyncOps)
	}
	ro := msg.(*protocol.ResyncOps)
	if ro.FromSeq != 0 || len(ro.Frames) != 1 || ro.Frames[0].Seq != 1 {
		t.Fatalf("resync = from %d with %d frames, want from 0 with frame seq 1", ro.FromSeq, len(ro.Frames))
	}
	if op := ro.Frames[0].Ops[0]; op.Key != "theme" || op.Value != "dark" {
		t.Errorf("replayed op = %+v, want theme=dark", op)
	}

	// Slot state survived the reconnect.
	mu.Lock()
	got := theme.Get()
	mu.Unlock()
	if got != "dark" {
		t.Errorf("slot after resume = %q, want %q", got, "dark")
	}
}

func TestBridge_ResumeGapRequestsSnapshot(t *testing.T) {
	var (
		mu    sync.Mutex
		sess  *Session
		theme *slot.Slot[string]
	)
	cfg := DefaultConfig()
	cfg.Session.MaxReplayFrames = 2
	cfg.OnSession = func(s *Session) {
		mu.Lock()
		sess = s
		theme = slot.Use(s.Binder(), "theme", "light")
		mu.Unlock()
	}
	b, ts := newTestBridge(t, cfg)

	c1 := dialWS(t, wsURL(t, ts.URL, "/tabsync/ws"), nil)
	writeHandshake(t, c1, protocol.NewClientHello("", testOrigin, testAreas()))
	h1 := readServerHello(t, c1)
	s := getSessionEventually(t, b, h1.ContextID)
	waitFor(t, "session captured", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return sess != nil
	})

	// Three separate writes overflow the two-frame replay buffer.
	for _, v := range []string{"a", "b", "c"} {
		v := v
		sess.Dispatch(func() { theme.Set(v) })
	}
	waitFor(t, "ops flushed", func() bool { return s.sendSeq.Load() == 3 })
	_ = c1.Close()
	waitForDetached(t, s)

	c2 := dialWS(t, wsURL(t, ts.URL, "/tabsync/ws"), nil)
	resume := protocol.NewClientHello("", testOrigin, testAreas())
	resume.ContextID = h1.ContextID
	resume.LastSeq = 0
	writeHandshake(t, c2, resume)

	h2 := readServerHello(t, c2)
	if h2.Status != protocol.HandshakeResumed {
		t.Fatalf("resume status = %v, want %v", h2.Status, protocol.HandshakeResumed)
	}
	if h2.Flags&protocol.ServerFlagSnapshotWanted == 0 {
		t.Error("SnapshotWanted not set although the gap fell out of the buffer")
	}
}

func TestBridge_ResumeUnknownContextCreatesFresh(t *testing.T) {
	_, ts := newTestBridge(t, DefaultConfig())

	conn := dialWS(t, wsURL(t, ts.URL, "/tabsync/ws"), nil)
	hello := protocol.NewClientHello("", testOrigin, testAreas())
	hello.ContextID = "deadbeefdeadbeefdeadbeefdeadbeef"
	writeHandshake(t, conn, hello)

	reply := readServerHello(t, conn)
	if reply.Status != protocol.HandshakeOK {
		t.Fatalf("status = %v, want %v", reply.Status, protocol.HandshakeOK)
	}
	if reply.ContextID == "" || reply.ContextID == hello.ContextID {
		t.Fatalf("context ID = %q, want a fresh one", reply.ContextID)
	}
}

func TestBridge_MaxSessionsServerBusy(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxSessions = 1
	_, ts := newTestBridge(t, cfg)

	c1 := dialWS(t, wsURL(t, ts.URL, "/tabsync/ws"), nil)
	writeHandshake(t, c1, protocol.NewClientHello("", testOrigin, testAreas()))
	if h := readServerHello(t, c1); h.Status != protocol.HandshakeOK {
		t.Fatalf("first handshake status = %v, want %v", h.Status, protocol.HandshakeOK)
	}

	c2 := dialWS(t, wsURL(t, ts.URL, "/tabsync/ws"), nil)
	writeHandshake(t, c2, protocol.NewClientHello("", testOrigin, testAreas()))
	if h := readServerHello(t, c2); h.Status != protocol.HandshakeServerBusy {
		t.Fatalf("second handshake status = %v, want %v", h.Status, protocol.HandshakeServerBusy)
	}
}

func TestBridge_MirrorRestoresGroupState(t *testing.T) {
	store := mirror.NewMemoryStore()

	cfg := DefaultConfig()
	cfg.Mirror = store
	b1, ts1 := newTestBridge(t, cfg)

	conn := dialWS(t, wsURL(t, ts1.URL, "/tabsync/ws"), nil)
	writeHandshake(t, conn, protocol.NewClientHello("", testOrigin, testAreas()))
	h := readServerHello(t, conn)
	if h.Status != protocol.HandshakeOK {
		t.Fatalf("status = %v", h.Status)
	}
	if h.Flags&protocol.ServerFlagMirrored == 0 {
		t.Error("Mirrored flag not set with a mirror store")
	}

	snap := protocol.SnapshotFromMap(protocol.AreaLocal, map[string]string{"theme": "persisted"})
	writeWSFrame(t, conn, protocol.FrameSnapshot, protocol.EncodeSnapshot(snap))
	waitFor(t, "snapshot applied", func() bool {
		g := b1.Group(testOrigin)
		return g != nil && g.snapshot(time.Now()).Items["theme"] == "persisted"
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := b1.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	saved, err := store.Load(ctx, testOrigin, storage.AreaLocal)
	if err != nil || saved == nil {
		t.Fatalf("Load after shutdown = %+v, %v", saved, err)
	}
	if saved.Items["theme"] != "persisted" {
		t.Fatalf("persisted items = %v", saved.Items)
	}

	// A new bridge over the same store seeds new groups from it.
	cfg2 := DefaultConfig()
	cfg2.Mirror = store
	b2, ts2 := newTestBridge(t, cfg2)

	conn2 := dialWS(t, wsURL(t, ts2.URL, "/tabsync/ws"), nil)
	writeHandshake(t, conn2, protocol.NewClientHello("", testOrigin, testAreas()))
	if h2 := readServerHello(t, conn2); h2.Status != protocol.HandshakeOK {
		t.Fatalf("second bridge status = %v", h2.Status)
	}

	waitFor(t, "group restored from mirror", func() bool {
		g := b2.Group(testOrigin)
		return g != nil && g.snapshot(time.Now()).Items["theme"] == "persisted"
	})
}

func TestBridge_ShutdownNotifiesClients(t *testing.T) {
	b, ts := newTestBridge(t, DefaultConfig())

	conn := dialWS(t, wsURL(t, ts.URL, "/tabsync/ws"), nil)
	writeHandshake(t, conn, protocol.NewClientHello("", testOrigin, testAreas()))
	if h := readServerHello(t, conn); h.Status != protocol.HandshakeOK {
		t.Fatalf("status = %v", h.Status)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := b.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	frame := readWSFrame(t, conn)
	if frame.Type != protocol.FrameControl {
		t.Fatalf("frame type = %v, want %v", frame.Type, protocol.FrameControl)
	}
	ct, msg, err := protocol.DecodeControl(frame.Payload)
	if err != nil {
		t.Fatalf("DecodeControl: %v", err)
	}
	if ct != protocol.ControlClose {
		t.Fatalf("control type = %v, want %v", ct, protocol.ControlClose)
	}
	if cm := msg.(*protocol.CloseMessage); cm.Reason != protocol.CloseServerShutdown {
		t.Errorf("close reason = %v, want %v", cm.Reason, protocol.CloseServerShutdown)
	}

	if got := b.Stats().ActiveSessions + b.Stats().DetachedSessions; got != 0 {
		t.Errorf("tracked sessions after shutdown = %d, want 0", got)
	}
}
