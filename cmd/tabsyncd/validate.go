package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tabsync-dev/tabsync/internal/config"
)

func validateCmd() *cobra.Command {
	var configFile string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a config file",
		Long: `Validate a configuration file without starting the server.

This command parses the YAML, expands environment variables, and
validates all fields. Useful for CI pipelines and pre-deployment
checks.

Exit codes:
  0 - Config is valid
  1 - Config is invalid (error details printed to stderr)

Example:
  tabsyncd validate -c tabsyncd.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(configFile)
		},
	}

	cmd.Flags().StringVarP(&configFile, "config", "c", "", "Path to config file (required)")
	_ = cmd.MarkFlagRequired("config")

	return cmd
}

func runValidate(configFile string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	fmt.Printf("Config is valid!\n")
	fmt.Printf("  Listen:         %s\n", cfg.Listen)
	fmt.Printf("  Mirror backend: %s\n", mirrorBackendName(cfg.Mirror.Backend))
	if cfg.Static.Dir != "" {
		fmt.Printf("  Static dir:     %s\n", cfg.Static.Dir)
	}
	if cfg.Security.TokenSecret == "" {
		fmt.Printf("  Warning: no token_secret set, handshake tokens are unsigned\n")
	}

	return nil
}
