package middleware

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Default tracer name for bridge spans.
const defaultTracerName = "tabsync"

// OTelConfig configures the OpenTelemetry middleware.
type OTelConfig struct {
	// TracerName is the name of the tracer (default: "tabsync").
	TracerName string

	// IncludeOrigin includes the session origin in traces.
	// Enabled by default.
	IncludeOrigin bool

	// Filter determines which frames to trace.
	// Return true to trace the frame, false to skip.
	// If nil, all frames are traced.
	Filter func(frame *FrameInfo) bool

	// AttributeExtractor extracts custom attributes per frame.
	// Called for each traced frame.
	AttributeExtractor func(frame *FrameInfo) []attribute.KeyValue

	// tracer is the resolved tracer instance.
	tracer trace.Tracer
}

// OTelOption configures the OpenTelemetry middleware.
type OTelOption func(*OTelConfig)

// WithTracerName sets the tracer name.
func WithTracerName(name string) OTelOption {
	return func(c *OTelConfig) {
		c.TracerName = name
	}
}

// WithIncludeOrigin enables/disables including the origin in traces.
func WithIncludeOrigin(include bool) OTelOption {
	return func(c *OTelConfig) {
		c.IncludeOrigin = include
	}
}

// WithFrameFilter sets a filter function for frames.
func WithFrameFilter(filter func(frame *FrameInfo) bool) OTelOption {
	return func(c *OTelConfig) {
		c.Filter = filter
	}
}

// WithAttributeExtractor sets a custom attribute extractor.
func WithAttributeExtractor(extractor func(frame *FrameInfo) []attribute.KeyValue) OTelOption {
	return func(c *OTelConfig) {
		c.AttributeExtractor = extractor
	}
}

// defaultOTelConfig returns the default OpenTelemetry configuration.
func defaultOTelConfig() OTelConfig {
	return OTelConfig{
		TracerName:    defaultTracerName,
		IncludeOrigin: true,
		Filter:        nil,
	}
}

// OpenTelemetry creates middleware that traces inbound frame handling.
//
// The middleware:
//   - Creates a span per frame named "tabsync.<type>"
//   - Passes the span context to the wrapped handler, so mirror
//     persistence and other downstream calls inherit the trace
//   - Records errors and sets span status
//
// The tracer uses the global OpenTelemetry tracer provider. Configure it
// in your main() before starting the server:
//
//	tp := sdktrace.NewTracerProvider(
//	    sdktrace.WithBatcher(exporter),
//	    sdktrace.WithResource(resource.NewWithAttributes(
//	        semconv.SchemaURL,
//	        semconv.ServiceName("my-app"),
//	    )),
//	)
//	otel.SetTracerProvider(tp)
func OpenTelemetry(opts ...OTelOption) Middleware {
	config := defaultOTelConfig()
	for _, opt := range opts {
		opt(&config)
	}

	// Resolve tracer from global provider
	config.tracer = otel.Tracer(config.TracerName)

	return MiddlewareFunc(func(ctx context.Context, frame *FrameInfo, next func(context.Context) error) error {
		if config.Filter != nil && !config.Filter(frame) {
			return next(ctx)
		}

		attrs := []attribute.KeyValue{
			attribute.String("tabsync.frame_type", frameTypeName(frame)),
		}
		if frame != nil {
			attrs = append(attrs,
				attribute.String("tabsync.session_id", frame.SessionID),
				attribute.Int("tabsync.frame_size", frame.Size),
			)
			if config.IncludeOrigin {
				attrs = append(attrs, attribute.String("tabsync.origin", frame.Origin))
			}
		}
		if config.AttributeExtractor != nil {
			attrs = append(attrs, config.AttributeExtractor(frame)...)
		}

		spanCtx, span := config.tracer.Start(
			ctx,
			"tabsync."+frameTypeName(frame),
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(attrs...),
			trace.WithTimestamp(time.Now()),
		)
		defer span.End()

		err := next(spanCtx)

		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}

		return err
	})
}

// SpanFromContext retrieves the current trace span from the context.
// Returns a no-op span when no span is recorded, so callers can set
// attributes unconditionally.
//
// Example:
//
//	func handle(ctx context.Context) error {
//	    middleware.SpanFromContext(ctx).SetAttributes(attribute.Int("my.count", 42))
//	    return nil
//	}
func SpanFromContext(ctx context.Context) trace.Span {
	return trace.SpanFromContext(ctx)
}

// frameTypeName names a frame for spans, tolerating nil frames.
func frameTypeName(frame *FrameInfo) string {
	if frame == nil || frame.Type == "" {
		return "unknown"
	}
	return frame.Type
}
