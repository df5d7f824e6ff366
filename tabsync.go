// Package tabsync provides the public API for the tabsync
// synchronization framework.
//
// This is the recommended import for most applications:
//
//	import "github.com/tabsync-dev/tabsync"
//
// Usage:
//
//	app := tabsync.New(tabsync.Config{
//	    OnSession: func(s *tabsync.Session) {
//	        theme := tabsync.Use(s.Binder(), "theme", "light")
//	        visits := tabsync.Use(s.Binder(), "visits", 0)
//	        s.Dispatch(func() { visits.Update(func(n int) int { return n + 1 }) })
//	        theme.OnChange(func(v string) { /* react */ })
//	    },
//	})
//	app.Run(":8080")
//
// A slot is a typed value bound to a key in one of the browser's
// storage areas. Reading an absent or unparseable value yields the
// default; writes propagate to the owning tab's storage, to sibling
// tabs on the same origin, and to the configured mirror store.
// Storage failures degrade silently to in-memory state.
package tabsync

import (
	"github.com/tabsync-dev/tabsync/pkg/bridge"
	"github.com/tabsync-dev/tabsync/pkg/middleware"
	"github.com/tabsync-dev/tabsync/pkg/mirror"
	"github.com/tabsync-dev/tabsync/pkg/slot"
	"github.com/tabsync-dev/tabsync/pkg/storage"
)

// =============================================================================
// Slots
// =============================================================================

// Slot is a typed value synchronized with a browser storage key.
type Slot[T any] = slot.Slot[T]

// Binder connects slots to one execution context's storage areas.
type Binder = slot.Binder

// Use declares a slot on a binder. It is the primary API:
//
//	theme := tabsync.Use(s.Binder(), "theme", "light")
//
// The slot reads defaultValue until the key holds a parseable value.
// Identical Use calls on one binder share state through the underlying
// store, so components can declare the same slot independently.
func Use[T any](b *Binder, key string, defaultValue T) *Slot[T] {
	return slot.Use(b, key, defaultValue)
}

// =============================================================================
// Storage Areas
// =============================================================================

// Area identifies a browser storage area.
type Area = storage.Area

const (
	// AreaLocal is localStorage: persistent, shared across tabs on one
	// origin. The default for slots.
	AreaLocal = storage.AreaLocal

	// AreaSession is sessionStorage: scoped to a single tab.
	AreaSession = storage.AreaSession
)

// =============================================================================
// Sessions
// =============================================================================

// Session is one connected execution context (browser tab).
type Session = bridge.Session

// Bridge is the websocket endpoint managing all sessions.
type Bridge = bridge.Bridge

// NewMockSession creates a disconnected session for tests. Slots
// declared on it work against in-memory storage.
var NewMockSession = bridge.NewMockSession

// =============================================================================
// Mirrors
// =============================================================================

// MirrorStore persists local areas between visits.
type MirrorStore = mirror.Store

// MergeStrategy decides between a connecting tab's snapshot and the
// persisted mirror.
type MergeStrategy = mirror.MergeStrategy

const (
	// ClientWins prefers the tab's snapshot. The default.
	ClientWins = mirror.ClientWins

	// MirrorWins prefers the persisted mirror.
	MirrorWins = mirror.MirrorWins

	// LastWriteWins compares timestamps.
	LastWriteWins = mirror.LastWriteWins
)

// NewMemoryMirror creates an in-memory mirror store, useful for tests
// and single-process deployments.
var NewMemoryMirror = mirror.NewMemoryStore

// NewFileMirror creates a mirror store that persists each origin to a
// JSON file under dir.
var NewFileMirror = mirror.NewFileStore

// =============================================================================
// Observability
// =============================================================================

// Middleware observes or intercepts every processed frame.
type Middleware = middleware.Middleware

// PrometheusMiddleware exposes frame, op, event and session metrics to
// a Prometheus registry. Config.Metrics installs it with defaults.
var PrometheusMiddleware = middleware.Prometheus

// TracingMiddleware wraps frame handling in OpenTelemetry spans.
// Config.Tracing installs it with defaults.
var TracingMiddleware = middleware.OpenTelemetry
