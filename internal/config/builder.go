package config

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/tabsync-dev/tabsync"
	"github.com/tabsync-dev/tabsync/pkg/mirror"
)

// Build converts a parsed file into the library configuration.
//
// The snapshot store named by the mirror section is constructed here;
// for the s3 backend this resolves AWS credentials from the
// environment, which is why a context is required.
func Build(ctx context.Context, cfg *Config, logger *slog.Logger) (tabsync.Config, error) {
	app := tabsync.DefaultConfig()
	app.Logger = logger

	if cfg.PathPrefix != "" {
		app.PathPrefix = cfg.PathPrefix
	}

	if cfg.Session.RetentionWindow != 0 {
		app.Session.RetentionWindow = cfg.Session.RetentionWindow.Duration()
	}
	if cfg.Session.HeartbeatInterval != 0 {
		app.Session.HeartbeatInterval = cfg.Session.HeartbeatInterval.Duration()
	}
	if cfg.Session.MaxSessions != 0 {
		app.Session.MaxSessions = cfg.Session.MaxSessions
	}
	if cfg.Session.MaxMessageSize != 0 {
		app.Session.MaxMessageSize = cfg.Session.MaxMessageSize
	}
	if cfg.Session.MaxReplayFrames != 0 {
		app.Session.MaxReplayFrames = cfg.Session.MaxReplayFrames
	}

	app.Static.Dir = cfg.Static.Dir
	if cfg.Static.Prefix != "" {
		app.Static.Prefix = cfg.Static.Prefix
	}
	if len(cfg.Static.Headers) > 0 {
		app.Static.Headers = cfg.Static.Headers
	}
	profile, err := parseCacheProfile(cfg.Static.Cache)
	if err != nil {
		return tabsync.Config{}, fmt.Errorf("static: %w", err)
	}
	app.Static.CacheProfile = profile

	if cfg.Security.TokenSecret != "" {
		app.Security.TokenSecret = []byte(cfg.Security.TokenSecret)
	}
	app.Security.AllowedOrigins = cfg.Security.AllowedOrigins

	store, err := BuildStore(ctx, cfg.Mirror)
	if err != nil {
		return tabsync.Config{}, fmt.Errorf("mirror: %w", err)
	}
	app.Mirror.Store = store
	strategy, err := parseStrategy(cfg.Mirror.Strategy)
	if err != nil {
		return tabsync.Config{}, fmt.Errorf("mirror: %w", err)
	}
	app.Mirror.Strategy = strategy
	if cfg.Mirror.PersistInterval != 0 {
		app.Mirror.PersistInterval = cfg.Mirror.PersistInterval.Duration()
	}

	app.Metrics = cfg.Metrics
	app.Tracing = cfg.Tracing
	app.DevMode = cfg.Dev

	return app, nil
}

// BuildStore creates the snapshot store named by the mirror section.
func BuildStore(ctx context.Context, mc MirrorConfig) (mirror.Store, error) {
	switch strings.ToLower(mc.Backend) {
	case "", "memory":
		return mirror.NewMemoryStore(), nil

	case "file":
		store, err := mirror.NewFileStore(mc.Dir)
		if err != nil {
			return nil, fmt.Errorf("file store: %w", err)
		}
		return store, nil

	case "s3":
		var opts []func(*awsconfig.LoadOptions) error
		if mc.Region != "" {
			opts = append(opts, awsconfig.WithRegion(mc.Region))
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("aws config: %w", err)
		}
		return mirror.NewS3Store(s3.NewFromConfig(awsCfg), mc.Bucket, mc.Prefix), nil

	default:
		return nil, fmt.Errorf("unknown backend %q", mc.Backend)
	}
}

// BuildLogger creates the binary's slog logger from the log section.
func BuildLogger(lc LogConfig, w io.Writer) (*slog.Logger, error) {
	var level slog.Level
	switch strings.ToLower(lc.Level) {
	case "", "info":
		level = slog.LevelInfo
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return nil, fmt.Errorf("unknown log level %q", lc.Level)
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch strings.ToLower(lc.Format) {
	case "", "json":
		handler = slog.NewJSONHandler(w, opts)
	case "text":
		handler = slog.NewTextHandler(w, opts)
	default:
		return nil, fmt.Errorf("unknown log format %q", lc.Format)
	}

	return slog.New(handler), nil
}

func parseCacheProfile(s string) (tabsync.CacheProfile, error) {
	switch strings.ToLower(s) {
	case "", "none":
		return tabsync.CacheNone, nil
	case "production":
		return tabsync.CacheProduction, nil
	default:
		return tabsync.CacheNone, fmt.Errorf("unknown cache profile %q", s)
	}
}

func parseStrategy(s string) (mirror.MergeStrategy, error) {
	switch strings.ToLower(s) {
	case "", "client-wins":
		return mirror.ClientWins, nil
	case "mirror-wins":
		return mirror.MirrorWins, nil
	case "last-write-wins":
		return mirror.LastWriteWins, nil
	default:
		return mirror.ClientWins, fmt.Errorf("unknown merge strategy %q", s)
	}
}
