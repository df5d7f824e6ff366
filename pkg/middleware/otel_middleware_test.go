package middleware

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
)

func TestOpenTelemetryMiddleware_PassesDerivedContext(t *testing.T) {
	frame := &FrameInfo{SessionID: "sess-1", Origin: "https://example.com", Type: "event", Size: 64}

	extractorCalled := false
	mw := OpenTelemetry(
		WithIncludeOrigin(true),
		WithAttributeExtractor(func(f *FrameInfo) []attribute.KeyValue {
			extractorCalled = true
			if f != frame {
				t.Error("extractor received a different frame")
			}
			return []attribute.KeyValue{attribute.String("test.attr", "ok")}
		}),
	)

	parent := context.Background()
	err := mw.Handle(parent, frame, func(ctx context.Context) error {
		if ctx == parent {
			t.Error("expected a derived context inside the span")
		}
		// No SDK configured: the span is non-recording but must be usable.
		SpanFromContext(ctx).SetAttributes(attribute.Int("inner.attr", 1))
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !extractorCalled {
		t.Fatal("expected attribute extractor to be called")
	}
}

func TestOpenTelemetryMiddleware_ErrorPropagates(t *testing.T) {
	frame := &FrameInfo{SessionID: "sess-1", Type: "op", Size: 32}

	wantErr := errors.New("boom")
	err := OpenTelemetry().Handle(context.Background(), frame, func(context.Context) error { return wantErr })
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected error %v, got %v", wantErr, err)
	}
}

func TestOpenTelemetryMiddleware_FilterSkipsTracing(t *testing.T) {
	frame := &FrameInfo{Type: "ack"}

	nextCalled := false
	parent := context.Background()
	err := OpenTelemetry(
		WithFrameFilter(func(f *FrameInfo) bool { return f.Type != "ack" }),
	).Handle(parent, frame, func(ctx context.Context) error {
		nextCalled = true
		if ctx != parent {
			t.Error("expected the original context when filter skips tracing")
		}
		return nil
	})

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !nextCalled {
		t.Fatal("expected next to be called")
	}
}

func TestOpenTelemetryMiddleware_NilFrame(t *testing.T) {
	err := OpenTelemetry().Handle(context.Background(), nil, func(context.Context) error { return nil })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestFrameTypeName(t *testing.T) {
	if got := frameTypeName(nil); got != "unknown" {
		t.Errorf("frameTypeName(nil) = %q, want %q", got, "unknown")
	}
	if got := frameTypeName(&FrameInfo{}); got != "unknown" {
		t.Errorf("frameTypeName(empty) = %q, want %q", got, "unknown")
	}
	if got := frameTypeName(&FrameInfo{Type: "snapshot"}); got != "snapshot" {
		t.Errorf("frameTypeName = %q, want %q", got, "snapshot")
	}
}
