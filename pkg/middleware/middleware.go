package middleware

import "context"

// FrameInfo describes one inbound frame being handled by a session.
// Middlewares receive it read-only; the handling session owns it.
type FrameInfo struct {
	// SessionID identifies the handling session.
	SessionID string

	// Origin is the origin the session belongs to.
	Origin string

	// Type is the frame type name ("event", "snapshot", "result", ...).
	Type string

	// Size is the frame payload size in bytes.
	Size int
}

// Handler processes one inbound frame.
type Handler func(ctx context.Context, frame *FrameInfo) error

// Middleware wraps frame handling with cross-cutting behavior.
// Implementations must call next exactly once unless they intend to
// short-circuit the frame, and may pass a derived context.
type Middleware interface {
	Handle(ctx context.Context, frame *FrameInfo, next func(context.Context) error) error
}

// MiddlewareFunc adapts a function to the Middleware interface.
type MiddlewareFunc func(ctx context.Context, frame *FrameInfo, next func(context.Context) error) error

// Handle implements Middleware.
func (f MiddlewareFunc) Handle(ctx context.Context, frame *FrameInfo, next func(context.Context) error) error {
	return f(ctx, frame, next)
}

// Run executes handler wrapped in the middleware chain.
// The first middleware is outermost. A nil or empty chain
// invokes the handler directly.
func Run(ctx context.Context, mws []Middleware, frame *FrameInfo, handler Handler) error {
	var exec func(ctx context.Context, i int) error
	exec = func(ctx context.Context, i int) error {
		if i >= len(mws) {
			return handler(ctx, frame)
		}
		return mws[i].Handle(ctx, frame, func(c context.Context) error {
			return exec(c, i+1)
		})
	}
	return exec(ctx, 0)
}
