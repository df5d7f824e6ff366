package bridge

import (
	"net/http"
	"net/url"
	"time"

	"github.com/tabsync-dev/tabsync/pkg/mirror"
)

// SessionConfig holds configuration for individual sessions.
type SessionConfig struct {
	// Timeouts

	// ReadTimeout is the maximum time to wait for a message from the client.
	// Default: 60 seconds.
	ReadTimeout time.Duration

	// WriteTimeout is the maximum time to wait when sending a message.
	// Default: 10 seconds.
	WriteTimeout time.Duration

	// HandshakeTimeout is the maximum time for the initial handshake.
	// Default: 10 seconds.
	HandshakeTimeout time.Duration

	// HeartbeatInterval is the time between heartbeat pings.
	// Default: 30 seconds.
	HeartbeatInterval time.Duration

	// RetentionWindow is how long a detached context stays resumable.
	// Default: 5 minutes.
	RetentionWindow time.Duration

	// Limits

	// MaxMessageSize is the maximum size of an incoming websocket message.
	// Default: 64KB.
	MaxMessageSize int64

	// MaxReplayFrames is the number of recent op frames kept for resume
	// and resync. Default: 100.
	MaxReplayFrames int

	// MaxEventQueue is the size of the storage event channel buffer.
	// Default: 256.
	MaxEventQueue int

	// MaxDispatchQueue is the size of the dispatch channel buffer.
	// Default: 256.
	MaxDispatchQueue int
}

// DefaultSessionConfig returns a SessionConfig with sensible defaults.
func DefaultSessionConfig() *SessionConfig {
	return &SessionConfig{
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
		HandshakeTimeout:  10 * time.Second,
		HeartbeatInterval: 30 * time.Second,
		RetentionWindow:   5 * time.Minute,
		MaxMessageSize:    64 * 1024,
		MaxReplayFrames:   100,
		MaxEventQueue:     256,
		MaxDispatchQueue:  256,
	}
}

// Clone returns a copy of the SessionConfig.
func (c *SessionConfig) Clone() *SessionConfig {
	if c == nil {
		return nil
	}
	clone := *c
	return &clone
}

// Config holds configuration for the Bridge.
type Config struct {
	// PathPrefix is the mount path for the websocket endpoint.
	// Default: "/tabsync".
	PathPrefix string

	// Websocket buffer sizes

	// ReadBufferSize is the websocket read buffer size.
	// Default: 4096.
	ReadBufferSize int

	// WriteBufferSize is the websocket write buffer size.
	// Default: 4096.
	WriteBufferSize int

	// CheckOrigin is called to validate the upgrade request origin.
	// Default: same-origin only.
	CheckOrigin func(r *http.Request) bool

	// AllowedOrigins restricts which storage origins may connect.
	// Empty means any non-empty origin is accepted.
	AllowedOrigins []string

	// Session is the configuration for individual sessions.
	// Default: DefaultSessionConfig().
	Session *SessionConfig

	// Limits

	// MaxSessions is the maximum number of concurrent sessions.
	// 0 means no limit. Default: 0.
	MaxSessions int

	// Security

	// TokenSecret is the secret key for handshake token signing.
	// If nil, token validation is disabled (not recommended for
	// production).
	TokenSecret []byte

	// Mirror persistence

	// Mirror persists local-area contents between sessions.
	// Nil disables persistence.
	Mirror mirror.Store

	// MergeStrategy decides between a client snapshot and a persisted
	// mirror at connect time. Default: mirror.ClientWins.
	MergeStrategy mirror.MergeStrategy

	// PersistInterval is how often live local areas are written to the
	// mirror store. Default: 30 seconds.
	PersistInterval time.Duration

	// CleanupInterval is the interval for the expired-session sweep.
	// Default: 30 seconds.
	CleanupInterval time.Duration

	// Callbacks

	// OnSession is called once for every new execution context, on its
	// event loop, before any client frames are processed. This is
	// where applications declare their slots.
	OnSession func(*Session)

	// GroupKey derives the synchronization scope from the upgrade
	// request and the client hello. Contexts with equal keys share a
	// local area. Default: the hello's Origin.
	GroupKey func(r *http.Request, origin string) string
}

// DefaultConfig returns a Config with sensible defaults.
// CheckOrigin enforces same-origin by default; TokenSecret is nil and a
// warning is logged on startup.
func DefaultConfig() *Config {
	return &Config{
		PathPrefix:      "/tabsync",
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     SameOriginCheck,
		Session:         DefaultSessionConfig(),
		MaxSessions:     0,
		MergeStrategy:   mirror.ClientWins,
		PersistInterval: 30 * time.Second,
		CleanupInterval: 30 * time.Second,
	}
}

// withDefaults fills unset fields from DefaultConfig.
func (c *Config) withDefaults() *Config {
	if c == nil {
		return DefaultConfig()
	}
	defaults := DefaultConfig()
	if c.PathPrefix == "" {
		c.PathPrefix = defaults.PathPrefix
	}
	if c.ReadBufferSize == 0 {
		c.ReadBufferSize = defaults.ReadBufferSize
	}
	if c.WriteBufferSize == 0 {
		c.WriteBufferSize = defaults.WriteBufferSize
	}
	if c.CheckOrigin == nil {
		c.CheckOrigin = defaults.CheckOrigin
	}
	if c.Session == nil {
		c.Session = defaults.Session
	}
	if c.PersistInterval == 0 {
		c.PersistInterval = defaults.PersistInterval
	}
	if c.CleanupInterval == 0 {
		c.CleanupInterval = defaults.CleanupInterval
	}
	return c
}

// Clone returns a copy of the Config.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	clone := *c
	if c.Session != nil {
		clone.Session = c.Session.Clone()
	}
	if c.TokenSecret != nil {
		clone.TokenSecret = make([]byte, len(c.TokenSecret))
		copy(clone.TokenSecret, c.TokenSecret)
	}
	if c.AllowedOrigins != nil {
		clone.AllowedOrigins = append([]string(nil), c.AllowedOrigins...)
	}
	return &clone
}

// SameOriginCheck validates that the websocket request origin matches
// the host. This is the secure default for CheckOrigin.
func SameOriginCheck(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		// No Origin header (e.g., same-origin request or curl).
		return true
	}

	originURL, err := url.Parse(origin)
	if err != nil {
		return false
	}

	host := r.Host
	if host == "" {
		return false
	}

	return originURL.Host == host
}
