package middleware

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsConfig configures the Prometheus metrics middleware.
type MetricsConfig struct {
	// Namespace is the metrics namespace (default: "tabsync").
	Namespace string

	// Subsystem is the metrics subsystem (default: "").
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Buckets are the histogram buckets for op apply latency.
	// Default: prometheus.DefBuckets
	Buckets []float64

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// MetricsOption configures the Prometheus metrics middleware.
type MetricsOption func(*MetricsConfig)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Namespace = namespace
	}
}

// WithSubsystem sets the metrics subsystem.
func WithSubsystem(subsystem string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Subsystem = subsystem
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) MetricsOption {
	return func(c *MetricsConfig) {
		c.ConstLabels = labels
	}
}

// WithBuckets sets the histogram buckets for op apply latency.
func WithBuckets(buckets []float64) MetricsOption {
	return func(c *MetricsConfig) {
		c.Buckets = buckets
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) MetricsOption {
	return func(c *MetricsConfig) {
		c.Registry = registry
	}
}

// defaultMetricsConfig returns the default metrics configuration.
func defaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Namespace:   "tabsync",
		Subsystem:   "",
		ConstLabels: nil,
		Buckets:     prometheus.DefBuckets,
		Registry:    prometheus.DefaultRegisterer,
	}
}

// metrics holds the Prometheus metrics for the bridge.
type metrics struct {
	framesTotal     *prometheus.CounterVec
	frameErrors     *prometheus.CounterVec
	frameSize       prometheus.Histogram
	storageOps      *prometheus.CounterVec
	externalEvents  *prometheus.CounterVec
	sessionsTotal   prometheus.Counter
	resumesTotal    *prometheus.CounterVec
	activeSessions  prometheus.Gauge
	mirrorSnapshots prometheus.Gauge
	opApply         prometheus.Histogram
}

// globalMetrics is the singleton metrics instance.
// Created on first call to Prometheus().
var (
	globalMetrics   *metrics
	globalMetricsMu sync.Mutex
)

// initMetrics initializes the Prometheus metrics.
func initMetrics(config MetricsConfig) *metrics {
	factory := promauto.With(config.Registry)

	return &metrics{
		framesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "frames_total",
			Help:        "Total number of inbound frames handled",
			ConstLabels: config.ConstLabels,
		}, []string{"type", "status"}),

		frameErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "frame_errors_total",
			Help:        "Total number of frame handling errors",
			ConstLabels: config.ConstLabels,
		}, []string{"type", "error_type"}),

		frameSize: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "frame_size_bytes",
			Help:        "Inbound frame payload size in bytes",
			ConstLabels: config.ConstLabels,
			Buckets:     []float64{64, 256, 1024, 4096, 16384, 65536},
		}),

		storageOps: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "storage_ops_total",
			Help:        "Total number of storage operations sent to clients",
			ConstLabels: config.ConstLabels,
		}, []string{"area", "op", "status"}),

		externalEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "external_events_total",
			Help:        "Total number of storage changes reported from outside a session",
			ConstLabels: config.ConstLabels,
		}, []string{"area"}),

		sessionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "sessions_total",
			Help:        "Total number of sessions created",
			ConstLabels: config.ConstLabels,
		}),

		resumesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "resume_total",
			Help:        "Total number of resume attempts by outcome",
			ConstLabels: config.ConstLabels,
		}, []string{"status"}),

		activeSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "active_sessions",
			Help:        "Number of active WebSocket sessions",
			ConstLabels: config.ConstLabels,
		}),

		mirrorSnapshots: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "mirror_snapshots",
			Help:        "Number of snapshots currently persisted in the mirror store",
			ConstLabels: config.ConstLabels,
		}),

		opApply: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "op_apply_seconds",
			Help:        "Round-trip latency from op send to client result",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}),
	}
}

// Prometheus creates middleware that collects Prometheus metrics for
// inbound frames, and initializes the package-level recording functions.
//
// Metrics collected:
//   - tabsync_frames_total: Counter of frames by type and status
//   - tabsync_frame_errors_total: Counter of frame errors by type and error type
//   - tabsync_frame_size_bytes: Histogram of inbound payload sizes
//   - tabsync_storage_ops_total: Counter of ops by area, op and result status
//   - tabsync_external_events_total: Counter of externally caused changes
//   - tabsync_sessions_total: Counter of sessions created
//   - tabsync_resume_total: Counter of resume attempts by outcome
//   - tabsync_active_sessions: Gauge of connected sessions
//   - tabsync_mirror_snapshots: Gauge of persisted mirror snapshots
//   - tabsync_op_apply_seconds: Histogram of op round-trip latency
//
// Example:
//
//	b := bridge.New(
//	    bridge.WithMiddleware(
//	        middleware.Prometheus(
//	            middleware.WithNamespace("myapp"),
//	        ),
//	    ),
//	)
//
//	// Expose metrics endpoint
//	http.Handle("/metrics", promhttp.Handler())
func Prometheus(opts ...MetricsOption) Middleware {
	config := defaultMetricsConfig()
	for _, opt := range opts {
		opt(&config)
	}

	// Initialize metrics once
	globalMetricsMu.Lock()
	if globalMetrics == nil {
		globalMetrics = initMetrics(config)
	}
	m := globalMetrics
	globalMetricsMu.Unlock()

	return MiddlewareFunc(func(ctx context.Context, frame *FrameInfo, next func(context.Context) error) error {
		frameType := "unknown"
		if frame != nil && frame.Type != "" {
			frameType = frame.Type
		}
		if frame != nil {
			m.frameSize.Observe(float64(frame.Size))
		}

		err := next(ctx)

		status := "success"
		if err != nil {
			status = "error"
			m.frameErrors.WithLabelValues(frameType, categorizeError(err)).Inc()
		}
		m.framesTotal.WithLabelValues(frameType, status).Inc()

		return err
	})
}

// categorizeError returns a category for the error type.
// This prevents high-cardinality labels from error messages.
func categorizeError(err error) string {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "quota"):
		return "quota"
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "deadline"):
		return "timeout"
	case strings.Contains(msg, "expired"):
		return "expired"
	case strings.Contains(msg, "too large"):
		return "too_large"
	case strings.Contains(msg, "varint"), strings.Contains(msg, "buffer"), strings.Contains(msg, "decode"):
		return "decode"
	case strings.Contains(msg, "websocket"):
		return "websocket"
	case strings.Contains(msg, "unavailable"):
		return "unavailable"
	default:
		return "internal"
	}
}

// =============================================================================
// Metrics Recording Functions
// =============================================================================

// RecordStorageOp records one storage operation result.
// Call this when a client reports the outcome of a Set/Remove/Clear op.
func RecordStorageOp(area, op, status string) {
	if globalMetrics != nil {
		globalMetrics.storageOps.WithLabelValues(area, op, status).Inc()
	}
}

// RecordExternalEvent records a storage change caused outside any op,
// such as another tab or devtools writing to the same area.
func RecordExternalEvent(area string) {
	if globalMetrics != nil {
		globalMetrics.externalEvents.WithLabelValues(area).Inc()
	}
}

// RecordSessionCreate records a new session creation.
func RecordSessionCreate() {
	if globalMetrics != nil {
		globalMetrics.sessionsTotal.Inc()
		globalMetrics.activeSessions.Inc()
	}
}

// RecordSessionDestroy records a session ending.
func RecordSessionDestroy() {
	if globalMetrics != nil {
		globalMetrics.activeSessions.Dec()
	}
}

// RecordResume records a resume attempt with its outcome
// ("resumed", "snapshot", "rejected").
func RecordResume(status string) {
	if globalMetrics != nil {
		globalMetrics.resumesTotal.WithLabelValues(status).Inc()
	}
}

// RecordOpApply records the round-trip latency of one op,
// measured from send to the client's result frame.
func RecordOpApply(d time.Duration) {
	if globalMetrics != nil {
		globalMetrics.opApply.Observe(d.Seconds())
	}
}

// SetMirrorSnapshots sets the persisted snapshot count gauge.
// Stores that can count cheaply report after save and sweep.
func SetMirrorSnapshots(count int) {
	if globalMetrics != nil {
		globalMetrics.mirrorSnapshots.Set(float64(count))
	}
}

// =============================================================================
// Metrics Collector
// =============================================================================

// Collector returns the metrics for use in custom registrations.
// This allows collecting bridge metrics alongside other application metrics.
type Collector struct {
	framesTotal     *prometheus.CounterVec
	frameErrors     *prometheus.CounterVec
	frameSize       prometheus.Histogram
	storageOps      *prometheus.CounterVec
	externalEvents  *prometheus.CounterVec
	sessionsTotal   prometheus.Counter
	resumesTotal    *prometheus.CounterVec
	activeSessions  prometheus.Gauge
	mirrorSnapshots prometheus.Gauge
	opApply         prometheus.Histogram
}

// GetMetrics returns the global metrics collector.
// Returns nil if Prometheus middleware has not been initialized.
func GetMetrics() *Collector {
	if globalMetrics == nil {
		return nil
	}
	return &Collector{
		framesTotal:     globalMetrics.framesTotal,
		frameErrors:     globalMetrics.frameErrors,
		frameSize:       globalMetrics.frameSize,
		storageOps:      globalMetrics.storageOps,
		externalEvents:  globalMetrics.externalEvents,
		sessionsTotal:   globalMetrics.sessionsTotal,
		resumesTotal:    globalMetrics.resumesTotal,
		activeSessions:  globalMetrics.activeSessions,
		mirrorSnapshots: globalMetrics.mirrorSnapshots,
		opApply:         globalMetrics.opApply,
	}
}
