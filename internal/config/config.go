package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultConfigFile is the conventional configuration file name.
	DefaultConfigFile = "tabsyncd.yaml"

	// DefaultListen is the default HTTP listen address.
	DefaultListen = ":8080"

	// DefaultShutdownTimeout bounds graceful shutdown on SIGINT/SIGTERM.
	DefaultShutdownTimeout = 10 * time.Second

	// minTokenSecret is the minimum accepted token secret length.
	// Shorter secrets make the handshake HMAC trivially brute-forceable.
	minTokenSecret = 16
)

// Config is the root configuration for the tabsyncd binary.
//
// It maps directly to the YAML configuration file structure. Use [Load]
// or [Parse] to create a Config; zero fields fall back to the library
// defaults when the server is built.
type Config struct {
	// Listen is the HTTP listen address. Defaults to ":8080".
	Listen string `yaml:"listen"`

	// PathPrefix is the mount point for the sync endpoints.
	// Defaults to "/tabsync".
	PathPrefix string `yaml:"path_prefix"`

	// Log configures the structured logger.
	Log LogConfig `yaml:"log"`

	// Static configures static file serving.
	Static StaticConfig `yaml:"static"`

	// Session configures context lifetime and limits.
	Session SessionConfig `yaml:"session"`

	// Security configures handshake tokens and origin checking.
	Security SecurityConfig `yaml:"security"`

	// Mirror configures persistence of local areas between visits.
	Mirror MirrorConfig `yaml:"mirror"`

	// Metrics exposes Prometheus metrics on /metrics.
	Metrics bool `yaml:"metrics"`

	// Tracing enables OpenTelemetry spans around frame handling.
	Tracing bool `yaml:"tracing"`

	// Dev disables origin checking so any page can connect.
	// Never enable in production.
	Dev bool `yaml:"dev"`

	// ShutdownTimeout is how long graceful shutdown may take before
	// connections are dropped. Accepts duration strings like "10s".
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
}

// LogConfig configures the binary's slog logger.
type LogConfig struct {
	// Level is the minimum log level: debug, info, warn or error.
	// Defaults to info.
	Level string `yaml:"level"`

	// Format is the handler format: json or text. Defaults to json.
	Format string `yaml:"format"`
}

// StaticConfig configures static file serving.
type StaticConfig struct {
	// Dir is the directory containing static files.
	// Empty disables static serving.
	Dir string `yaml:"dir"`

	// Prefix is the URL path prefix for static files. Defaults to "/".
	Prefix string `yaml:"prefix"`

	// Cache selects the Cache-Control policy: none or production.
	// Defaults to none.
	Cache string `yaml:"cache"`

	// Headers are extra response headers applied to every static file.
	Headers map[string]string `yaml:"headers"`
}

// SessionConfig configures execution context behavior. Zero values use
// the library defaults.
type SessionConfig struct {
	// RetentionWindow is how long a disconnected context remains
	// resumable.
	RetentionWindow Duration `yaml:"retention_window"`

	// HeartbeatInterval is the time between keepalive pings.
	HeartbeatInterval Duration `yaml:"heartbeat_interval"`

	// MaxSessions is the maximum number of concurrent contexts.
	// 0 means no limit.
	MaxSessions int `yaml:"max_sessions"`

	// MaxMessageSize is the maximum incoming websocket message size
	// in bytes.
	MaxMessageSize int64 `yaml:"max_message_size"`

	// MaxReplayFrames is the number of recent op frames kept per
	// context for resume.
	MaxReplayFrames int `yaml:"max_replay_frames"`
}

// SecurityConfig configures handshake security.
type SecurityConfig struct {
	// TokenSecret signs handshake tokens. Supports environment
	// variable substitution; must be at least 16 bytes when set.
	// Empty disables token validation.
	TokenSecret string `yaml:"token_secret"`

	// AllowedOrigins restricts which storage origins may connect.
	// Empty means any non-empty origin is accepted.
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// MirrorConfig selects and configures the snapshot store.
type MirrorConfig struct {
	// Backend is the store type: memory, file or s3.
	// Defaults to memory.
	Backend string `yaml:"backend"`

	// Dir is the snapshot directory for the file backend.
	Dir string `yaml:"dir"`

	// Bucket is the S3 bucket name for the s3 backend.
	Bucket string `yaml:"bucket"`

	// Prefix is the S3 object key prefix for the s3 backend.
	Prefix string `yaml:"prefix"`

	// Region is the AWS region for the s3 backend. Empty uses the
	// SDK's default resolution (environment, shared config).
	Region string `yaml:"region"`

	// Strategy decides between a connecting tab's snapshot and the
	// persisted mirror: client-wins, mirror-wins or last-write-wins.
	// Defaults to client-wins.
	Strategy string `yaml:"strategy"`

	// PersistInterval is how often live areas are written to the
	// store.
	PersistInterval Duration `yaml:"persist_interval"`
}

// Duration wraps time.Duration for YAML unmarshalling.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}

	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}

	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns.
// Group 1: variable name
// Group 2: the ":-default" part (if present, a default was specified)
// Group 3: the default value (may be empty for ${VAR:-})
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

// expandEnvVars replaces ${VAR} and ${VAR:-default} patterns with
// environment values. A reference to an unset variable without a
// default is an error.
func expandEnvVars(s string) (string, error) {
	var firstErr error

	result := envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		if firstErr != nil {
			return match
		}

		submatches := envVarPattern.FindStringSubmatch(match)
		if len(submatches) < 2 {
			return match
		}

		varName := submatches[1]
		hasDefault := len(submatches) > 2 && submatches[2] != ""
		defaultVal := ""
		if hasDefault && len(submatches) > 3 {
			defaultVal = submatches[3]
		}

		value, exists := os.LookupEnv(varName)
		if !exists {
			if hasDefault {
				return defaultVal
			}
			firstErr = fmt.Errorf("environment variable %q is not set", varName)
			return match
		}
		return value
	})

	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}

// Load reads and parses a YAML configuration file.
//
// Environment variables in the file are expanded before validation.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse parses YAML configuration data.
//
// Environment variables are expanded in address, path, secret and
// origin values. Defaults are applied for Listen (":8080") and
// ShutdownTimeout (10s).
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if cfg.Listen == "" {
		cfg.Listen = DefaultListen
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = Duration(DefaultShutdownTimeout)
	}

	if err := cfg.expandAndValidate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// expandAndValidate expands environment variables and validates the
// config.
func (c *Config) expandAndValidate() error {
	expanded, err := expandEnvVars(c.Listen)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	c.Listen = expanded

	if c.PathPrefix != "" {
		if !strings.HasPrefix(c.PathPrefix, "/") {
			return fmt.Errorf("path_prefix must start with /, got %q", c.PathPrefix)
		}
		if len(c.PathPrefix) > 1 && strings.HasSuffix(c.PathPrefix, "/") {
			return fmt.Errorf("path_prefix must not end with /, got %q", c.PathPrefix)
		}
	}

	switch strings.ToLower(c.Log.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log: level must be debug, info, warn or error, got %q", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "json", "text":
	default:
		return fmt.Errorf("log: format must be json or text, got %q", c.Log.Format)
	}

	if c.Static.Dir != "" {
		expanded, err := expandEnvVars(c.Static.Dir)
		if err != nil {
			return fmt.Errorf("static: dir: %w", err)
		}
		c.Static.Dir = expanded
	}
	switch strings.ToLower(c.Static.Cache) {
	case "", "none", "production":
	default:
		return fmt.Errorf("static: cache must be none or production, got %q", c.Static.Cache)
	}

	if err := c.Session.validate(); err != nil {
		return fmt.Errorf("session: %w", err)
	}

	if c.Security.TokenSecret != "" {
		expanded, err := expandEnvVars(c.Security.TokenSecret)
		if err != nil {
			return fmt.Errorf("security: token_secret: %w", err)
		}
		c.Security.TokenSecret = expanded
		if len(c.Security.TokenSecret) < minTokenSecret {
			return fmt.Errorf("security: token_secret must be at least %d bytes, got %d",
				minTokenSecret, len(c.Security.TokenSecret))
		}
	}
	for i, origin := range c.Security.AllowedOrigins {
		expanded, err := expandEnvVars(origin)
		if err != nil {
			return fmt.Errorf("security: allowed_origins[%d]: %w", i, err)
		}
		if expanded == "" {
			return fmt.Errorf("security: allowed_origins[%d] is empty", i)
		}
		c.Security.AllowedOrigins[i] = expanded
	}

	if err := c.Mirror.expandAndValidate(); err != nil {
		return fmt.Errorf("mirror: %w", err)
	}

	if c.ShutdownTimeout.Duration() < 0 {
		return fmt.Errorf("shutdown_timeout cannot be negative, got %s", c.ShutdownTimeout.Duration())
	}

	return nil
}

func (s *SessionConfig) validate() error {
	if s.RetentionWindow.Duration() < 0 {
		return fmt.Errorf("retention_window cannot be negative, got %s", s.RetentionWindow.Duration())
	}
	if s.HeartbeatInterval != 0 && s.HeartbeatInterval.Duration() < time.Second {
		return fmt.Errorf("heartbeat_interval must be at least 1s, got %s", s.HeartbeatInterval.Duration())
	}
	if s.MaxSessions < 0 {
		return fmt.Errorf("max_sessions cannot be negative, got %d", s.MaxSessions)
	}
	if s.MaxMessageSize < 0 {
		return fmt.Errorf("max_message_size cannot be negative, got %d", s.MaxMessageSize)
	}
	if s.MaxReplayFrames < 0 {
		return fmt.Errorf("max_replay_frames cannot be negative, got %d", s.MaxReplayFrames)
	}
	return nil
}

func (m *MirrorConfig) expandAndValidate() error {
	for _, field := range []struct {
		name  string
		value *string
	}{
		{"dir", &m.Dir},
		{"bucket", &m.Bucket},
		{"prefix", &m.Prefix},
		{"region", &m.Region},
	} {
		if *field.value == "" {
			continue
		}
		expanded, err := expandEnvVars(*field.value)
		if err != nil {
			return fmt.Errorf("%s: %w", field.name, err)
		}
		*field.value = expanded
	}

	switch strings.ToLower(m.Backend) {
	case "", "memory":
	case "file":
		if m.Dir == "" {
			return errors.New("backend file requires dir")
		}
	case "s3":
		if m.Bucket == "" {
			return errors.New("backend s3 requires bucket")
		}
	default:
		return fmt.Errorf("backend must be memory, file or s3, got %q", m.Backend)
	}

	switch strings.ToLower(m.Strategy) {
	case "", "client-wins", "mirror-wins", "last-write-wins":
	default:
		return fmt.Errorf("strategy must be client-wins, mirror-wins or last-write-wins, got %q", m.Strategy)
	}

	if m.PersistInterval.Duration() < 0 {
		return fmt.Errorf("persist_interval cannot be negative, got %s", m.PersistInterval.Duration())
	}

	return nil
}
