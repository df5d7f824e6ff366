// Package bridge provides the server-side runtime for synchronized
// browser storage.
//
// The bridge manages WebSocket connections, one per execution context
// (browser tab). It is the integration layer that brings together the
// slot system (pkg/slot), the in-memory storage model (pkg/storage),
// the binary protocol (pkg/protocol) and persistence (pkg/mirror).
//
// # Architecture
//
//   - Session: per-context runtime hosting a slot.Binder, op queue and
//     replay history
//   - Group: the sessions sharing one storage origin, backed by a
//     shared storage.Partition for the local area
//   - Bridge: HTTP/WebSocket endpoint with handshake, token checking,
//     resume, mirror persistence and graceful shutdown
//
// # Session Lifecycle
//
// Each connection runs three goroutines:
//   - readLoop: receives frames, decodes them, routes through the
//     middleware chain
//   - eventLoop: the context's single mutation goroutine; storage
//     events, dispatched work and op flushes run here, so slot state
//     needs no locking
//   - writeLoop: sends heartbeat pings
//
// When the connection drops the loops stop, but the session and its
// slots stay registered for the retention window. A reconnecting
// client resumes with its context ID; missed ops are replayed from the
// session's ring buffer, or fresh snapshots are requested when the gap
// fell out of it.
//
// # Synchronization Flow
//
// A slot write inside a session:
//  1. Updates the group partition so siblings' reads see it
//  2. Queues a set op; the event loop flushes pending ops as one frame
//  3. The client applies the op to real browser storage and replies
//     with a result frame
//  4. Sibling sessions observe the partition change: their slots
//     re-read the value and the change is relayed to their clients
//
// Relayed ops are applied idempotently by clients, and storage events
// caused by the session's own ops carry the op ID, so the flow
// terminates instead of echoing forever.
//
// A client whose storage write fails (quota, privacy mode) reports the
// failure in the op result; the affected area degrades and the session
// continues purely in server memory.
//
// # Example Usage
//
//	cfg := bridge.DefaultConfig()
//	cfg.OnSession = func(s *bridge.Session) {
//	    theme := slot.Use(s.Binder(), "theme", "light")
//	    theme.OnChange(func(v string) {
//	        s.Logger().Info("theme changed", "value", v)
//	    })
//	}
//
//	b := bridge.New(cfg, bridge.WithMiddleware(middleware.Prometheus()))
//	http.ListenAndServe(":8080", b.Handler())
package bridge
