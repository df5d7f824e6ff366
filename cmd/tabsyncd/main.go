// Package main is the entry point for the tabsyncd binary.
//
// tabsyncd runs the storage sync bridge as a standalone server: it
// serves the websocket endpoint, the thin client script and an
// application's static pages, relays storage changes between the tabs
// of each origin, and persists local areas through the configured
// mirror backend. Server-side slot declarations need the library; the
// binary covers the pure sync-and-persist deployment.
//
// Usage:
//
//	tabsyncd serve -c tabsyncd.yaml    # Start the server
//	tabsyncd validate -c tabsyncd.yaml # Validate configuration
//	tabsyncd version                   # Show version info
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information set at build time via ldflags.
// Example: go build -ldflags "-X main.version=1.0.0"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "tabsyncd",
		Short: "Browser storage sync server",
		Long: `tabsyncd synchronizes browser storage across tabs and visits.

Pages load a thin JavaScript client that proxies localStorage and
sessionStorage over a binary websocket protocol. The server relays
changes between the tabs of each origin and persists local areas
through a mirror backend (memory, file or S3), so state survives
restarts and reconnects.

Quick start:
  1. Create a config file (tabsyncd.yaml)
  2. Run: tabsyncd serve -c tabsyncd.yaml
  3. Add <script src="/tabsync/client.js"></script> to your pages`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		serveCmd(),
		validateCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "\033[31mError:\033[0m %s\n", err)
		os.Exit(1)
	}
}
