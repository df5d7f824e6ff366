package tabsync

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/tabsync-dev/tabsync/pkg/bridge"
	"github.com/tabsync-dev/tabsync/pkg/middleware"
)

// =============================================================================
// App Type
// =============================================================================

// App is the main tabsync application entry point.
// It wraps the bridge and static file serving into a single http.Handler.
//
// Create an App with tabsync.New():
//
//	app := tabsync.New(tabsync.Config{
//	    Static: tabsync.StaticConfig{Dir: "public"},
//	    OnSession: func(s *tabsync.Session) {
//	        theme := tabsync.Use(s.Binder(), "theme", "light")
//	        theme.OnChange(func(v string) { s.Logger().Info("theme", "value", v) })
//	    },
//	})
//
//	app.Run(":8080")
type App struct {
	// Internal components
	bridge *bridge.Bridge

	// Static file serving
	staticDir    string
	staticPrefix string
	staticFS     http.FileSystem

	// Configuration
	config Config
	logger *slog.Logger

	mu         sync.Mutex
	httpServer *http.Server
}

// New creates a new tabsync application with the given configuration.
func New(cfg Config) *App {
	// Apply defaults
	if cfg.PathPrefix == "" {
		cfg.PathPrefix = DefaultConfig().PathPrefix
	}
	if cfg.Session.RetentionWindow == 0 {
		cfg.Session.RetentionWindow = DefaultSessionConfig().RetentionWindow
	}
	if cfg.Static.Prefix == "" {
		cfg.Static.Prefix = "/"
	}

	// Set up logger
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var opts []bridge.Option
	opts = append(opts, bridge.WithLogger(logger))
	var mws []middleware.Middleware
	if cfg.Tracing {
		mws = append(mws, middleware.OpenTelemetry())
	}
	if cfg.Metrics {
		mws = append(mws, middleware.Prometheus())
	}
	if len(mws) > 0 {
		opts = append(opts, bridge.WithMiddleware(mws...))
	}

	app := &App{
		bridge:       bridge.New(buildBridgeConfig(cfg), opts...),
		staticDir:    cfg.Static.Dir,
		staticPrefix: cfg.Static.Prefix,
		config:       cfg,
		logger:       logger,
	}

	// Set up static file system if configured
	if cfg.Static.Dir != "" {
		app.staticFS = http.Dir(cfg.Static.Dir)
	}

	return app
}

// =============================================================================
// http.Handler Implementation
// =============================================================================

// ServeHTTP implements http.Handler.
// It routes requests to the bridge endpoints or static files.
func (a *App) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path

	// Bridge paths (websocket, token, client script)
	if strings.HasPrefix(path, a.config.PathPrefix+"/") {
		a.bridge.ServeHTTP(w, r)
		return
	}

	// Static files
	if a.staticFS != nil && a.shouldServeStatic(path) {
		a.serveStatic(w, r)
		return
	}

	http.NotFound(w, r)
}

// Handler returns the App as an http.Handler.
// This is useful for explicit type conversion or middleware wrapping.
func (a *App) Handler() http.Handler {
	return a
}

// =============================================================================
// Bridge Access
// =============================================================================

// Bridge returns the underlying bridge for advanced use.
// Most apps won't need this.
func (a *App) Bridge() *bridge.Bridge {
	return a.bridge
}

// Config returns the app configuration.
func (a *App) Config() Config {
	return a.config
}

// GenerateToken issues a handshake token. Render it into pages that
// embed the client script when token validation is enabled.
func (a *App) GenerateToken() string {
	return a.bridge.GenerateToken()
}

// =============================================================================
// Lifecycle
// =============================================================================

// Run starts an HTTP server on addr and blocks until it stops.
// Shutdown stops it gracefully.
//
//	app := tabsync.New(cfg)
//	app.Run(":8080")
func (a *App) Run(addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           a,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	a.mu.Lock()
	a.httpServer = srv
	a.mu.Unlock()

	a.logger.Info("tabsync listening", "addr", addr)
	err := srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops the HTTP server (if Run was used), notifies connected
// clients, persists mirrored areas and releases all sessions.
func (a *App) Shutdown(ctx context.Context) error {
	a.mu.Lock()
	srv := a.httpServer
	a.httpServer = nil
	a.mu.Unlock()

	var httpErr error
	if srv != nil {
		httpErr = srv.Shutdown(ctx)
	}
	if err := a.bridge.Shutdown(ctx); err != nil {
		return err
	}
	return httpErr
}
