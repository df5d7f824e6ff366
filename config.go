package tabsync

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/tabsync-dev/tabsync/pkg/bridge"
	"github.com/tabsync-dev/tabsync/pkg/mirror"
)

// =============================================================================
// Configuration Types
// =============================================================================

// Config is the main application configuration.
// This is the user-friendly entry point for configuring a tabsync app.
type Config struct {
	// PathPrefix is the mount point for the bridge endpoints
	// (websocket, token, client script). Default: "/tabsync".
	PathPrefix string `json:"path_prefix"`

	// Session configures context lifetime and limits.
	Session SessionConfig `json:"session"`

	// Static configures static file serving for the application pages.
	Static StaticConfig `json:"static"`

	// Security configures handshake tokens and origin checking.
	Security SecurityConfig `json:"security"`

	// Mirror configures persistence of local areas between visits.
	Mirror MirrorConfig `json:"mirror"`

	// Metrics enables Prometheus metrics for frames, storage ops and
	// sessions. Scrape them by mounting promhttp alongside the app.
	Metrics bool `json:"metrics"`

	// Tracing enables OpenTelemetry spans around frame handling.
	Tracing bool `json:"tracing"`

	// DevMode disables origin checking so any page can connect.
	// SECURITY: NEVER use in production.
	DevMode bool `json:"dev_mode"`

	// Logger is the structured logger for the application.
	// If nil, slog.Default() is used.
	Logger *slog.Logger `json:"-"`

	// OnSession is called once for every new execution context, before
	// any client frames are processed. This is where applications
	// declare their slots:
	//
	//	OnSession: func(s *tabsync.Session) {
	//	    theme := tabsync.Use(s.Binder(), "theme", "light")
	//	    theme.OnChange(func(v string) { ... })
	//	}
	OnSession func(*Session) `json:"-"`

	// GroupKey derives the synchronization scope from the upgrade
	// request and the handshake origin. Contexts with equal keys share
	// a local area. Default: the origin itself.
	GroupKey func(r *http.Request, origin string) string `json:"-"`
}

// SessionConfig configures execution context behavior.
type SessionConfig struct {
	// RetentionWindow is how long a disconnected context remains
	// resumable. Within this window a reconnecting tab restores its
	// slot state and replays missed operations. Default: 5 minutes.
	RetentionWindow time.Duration `json:"retention_window"`

	// HeartbeatInterval is the time between keepalive pings.
	// Default: 30 seconds.
	HeartbeatInterval time.Duration `json:"heartbeat_interval"`

	// MaxSessions is the maximum number of concurrent contexts.
	// 0 means no limit.
	MaxSessions int `json:"max_sessions"`

	// MaxMessageSize is the maximum incoming websocket message size.
	// Default: 64KB.
	MaxMessageSize int64 `json:"max_message_size"`

	// MaxReplayFrames is the number of recent op frames kept per
	// context for resume. Default: 100.
	MaxReplayFrames int `json:"max_replay_frames"`
}

// StaticConfig configures static file serving.
type StaticConfig struct {
	// Dir is the directory containing static files (e.g., "public").
	// Empty disables static serving.
	Dir string `json:"dir"`

	// Prefix is the URL path prefix for static files.
	// Default: "/".
	Prefix string `json:"prefix"`

	// Headers are extra response headers applied to every static file.
	Headers map[string]string `json:"headers"`

	// CacheProfile selects the Cache-Control policy.
	CacheProfile CacheProfile `json:"cache_profile"`
}

// CacheProfile selects how static responses are cached.
type CacheProfile int

const (
	// CacheNone disables caching. Useful while iterating.
	CacheNone CacheProfile = iota

	// CacheProduction caches fingerprinted files for a year and
	// everything else for an hour with revalidation.
	CacheProduction
)

// SecurityConfig configures handshake security.
type SecurityConfig struct {
	// TokenSecret signs handshake tokens. If nil, token validation is
	// disabled and a warning is logged on startup.
	TokenSecret []byte `json:"-"`

	// AllowedOrigins restricts which storage origins may connect.
	// Empty means any non-empty origin is accepted.
	AllowedOrigins []string `json:"allowed_origins"`
}

// MirrorConfig configures local-area persistence.
type MirrorConfig struct {
	// Store persists local areas between sessions. Nil disables
	// persistence. Use mirror.NewMemoryStore, mirror.NewFileStore,
	// mirror.NewSQLStore or mirror.NewS3Store.
	Store mirror.Store `json:"-"`

	// Strategy decides between a connecting tab's snapshot and the
	// persisted mirror. Default: ClientWins.
	Strategy mirror.MergeStrategy `json:"strategy"`

	// PersistInterval is how often live areas are written to the
	// store. Default: 30 seconds.
	PersistInterval time.Duration `json:"persist_interval"`
}

// =============================================================================
// Default Configurations
// =============================================================================

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		PathPrefix: "/tabsync",
		Session:    DefaultSessionConfig(),
		Static:     DefaultStaticConfig(),
		Mirror: MirrorConfig{
			Strategy:        mirror.ClientWins,
			PersistInterval: 30 * time.Second,
		},
	}
}

// DefaultSessionConfig returns a SessionConfig with sensible defaults.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		RetentionWindow:   5 * time.Minute,
		HeartbeatInterval: 30 * time.Second,
		MaxMessageSize:    64 * 1024,
		MaxReplayFrames:   100,
	}
}

// DefaultStaticConfig returns a StaticConfig with sensible defaults.
func DefaultStaticConfig() StaticConfig {
	return StaticConfig{
		Prefix:       "/",
		CacheProfile: CacheNone,
	}
}

// =============================================================================
// Config to bridge.Config Translation
// =============================================================================

// buildBridgeConfig converts user-friendly tabsync.Config to the
// internal bridge.Config.
func buildBridgeConfig(cfg Config) *bridge.Config {
	bc := bridge.DefaultConfig()

	if cfg.PathPrefix != "" {
		bc.PathPrefix = cfg.PathPrefix
	}

	// Session settings
	if cfg.Session.RetentionWindow > 0 {
		bc.Session.RetentionWindow = cfg.Session.RetentionWindow
	}
	if cfg.Session.HeartbeatInterval > 0 {
		bc.Session.HeartbeatInterval = cfg.Session.HeartbeatInterval
	}
	if cfg.Session.MaxMessageSize > 0 {
		bc.Session.MaxMessageSize = cfg.Session.MaxMessageSize
	}
	if cfg.Session.MaxReplayFrames > 0 {
		bc.Session.MaxReplayFrames = cfg.Session.MaxReplayFrames
	}
	bc.MaxSessions = cfg.Session.MaxSessions

	// Security settings
	if cfg.Security.TokenSecret != nil {
		bc.TokenSecret = cfg.Security.TokenSecret
	}
	if len(cfg.Security.AllowedOrigins) > 0 {
		bc.AllowedOrigins = append([]string(nil), cfg.Security.AllowedOrigins...)
	}
	if cfg.DevMode {
		bc.CheckOrigin = func(r *http.Request) bool { return true }
	}

	// Mirror settings
	if cfg.Mirror.Store != nil {
		bc.Mirror = cfg.Mirror.Store
	}
	bc.MergeStrategy = cfg.Mirror.Strategy
	if cfg.Mirror.PersistInterval > 0 {
		bc.PersistInterval = cfg.Mirror.PersistInterval
	}

	// Callbacks
	if cfg.OnSession != nil {
		bc.OnSession = cfg.OnSession
	}
	if cfg.GroupKey != nil {
		bc.GroupKey = cfg.GroupKey
	}

	return bc
}
