package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/tabsync-dev/tabsync"
	"github.com/tabsync-dev/tabsync/internal/config"
)

func serveCmd() *cobra.Command {
	var (
		configFile string
		listen     string
		logLevel   string
		dev        bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the sync server",
		Long: `Start the storage sync server.

The server will:
  - Load configuration from the specified YAML file
  - Serve the websocket endpoint and thin client script
  - Serve static files when a static directory is configured
  - Persist local areas through the configured mirror backend

The server runs until interrupted (Ctrl+C) or receives SIGTERM.

Examples:
  tabsyncd serve
  tabsyncd serve -c /etc/tabsync/tabsyncd.yaml
  tabsyncd serve --listen :9090 --log-level debug`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configFile, cmd.Flags().Changed("config"), listen, logLevel, dev)
		},
	}

	cmd.Flags().StringVarP(&configFile, "config", "c", config.DefaultConfigFile, "Path to config file")
	cmd.Flags().StringVarP(&listen, "listen", "l", "", "Listen address (overrides config)")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn or error (overrides config)")
	cmd.Flags().BoolVar(&dev, "dev", false, "Disable origin checks for local development")

	return cmd
}

// loadConfig reads the config file, falling back to defaults when the
// conventional file is absent and no explicit path was given.
func loadConfig(path string, explicit bool) (*config.Config, error) {
	if !explicit {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return config.Parse(nil)
		}
	}
	return config.Load(path)
}

func runServe(configFile string, explicit bool, listen, logLevel string, dev bool) error {
	cfg, err := loadConfig(configFile, explicit)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if listen != "" {
		cfg.Listen = listen
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if dev {
		cfg.Dev = true
	}

	logger, err := config.BuildLogger(cfg.Log, os.Stderr)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	appCfg, err := config.Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	app := tabsync.New(appCfg)

	r := chi.NewRouter()
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("ok"))
	})
	if cfg.Metrics {
		r.Handle("/metrics", promhttp.Handler())
	}
	r.Handle("/*", app.Handler())

	logger.Info("server starting",
		"listen", cfg.Listen,
		"path_prefix", appCfg.PathPrefix,
		"mirror_backend", mirrorBackendName(cfg.Mirror.Backend),
		"metrics", cfg.Metrics,
		"dev", cfg.Dev,
	)

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down", "timeout", cfg.ShutdownTimeout.Duration().String())

	shutCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout.Duration())
	defer cancel()

	if err := srv.Shutdown(shutCtx); err != nil {
		logger.Warn("http shutdown incomplete", "error", err)
	}
	if err := app.Shutdown(shutCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	logger.Info("shutdown complete")
	return nil
}

func mirrorBackendName(backend string) string {
	if backend == "" {
		return "memory"
	}
	return backend
}
