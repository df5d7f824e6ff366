// Package middleware provides production-grade observability for bridge
// frame handling.
//
// This package includes:
//   - OpenTelemetry distributed tracing middleware
//   - Prometheus metrics middleware
//   - Recording hooks for session and mirror lifecycle events
//
// # OpenTelemetry Middleware
//
// The OpenTelemetry middleware traces every inbound frame, carrying the
// session ID, origin, frame type and payload size as span attributes.
//
//	b := bridge.New(cfg,
//	    bridge.WithMiddleware(
//	        middleware.OpenTelemetry(),
//	    ),
//	)
//
// Configure with options:
//
//	middleware.OpenTelemetry(
//	    middleware.WithTracerName("my-app"),
//	    middleware.WithFrameFilter(func(frame *middleware.FrameInfo) bool {
//	        return frame.Type != "ack"
//	    }),
//	)
//
// # Prometheus Metrics
//
// The Prometheus middleware counts and times frame handling:
//   - tabsync_frames_total: Total frames by type and status
//   - tabsync_frame_size_bytes: Inbound payload size histogram
//   - tabsync_storage_ops_total: Storage ops by area, op and result
//   - tabsync_active_sessions: Current number of connected sessions
//   - tabsync_op_apply_seconds: Op round-trip latency histogram
//
//	b := bridge.New(cfg,
//	    bridge.WithMiddleware(
//	        middleware.Prometheus(),
//	    ),
//	)
//
// Then expose metrics on a separate port:
//
//	http.Handle("/metrics", promhttp.Handler())
//	go http.ListenAndServe(":9090", nil)
//
// # Context Propagation
//
// Middlewares pass a derived context to the wrapped handler, so mirror
// stores and other downstream calls inherit the trace:
//
//	func handle(ctx context.Context, frame *middleware.FrameInfo) error {
//	    // Mirror save inherits trace context
//	    return store.Save(ctx, snap)
//	}
package middleware
