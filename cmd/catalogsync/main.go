// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// catalogsync mirrors a remote catalog into a local embedded database
// and keeps it current through full and incremental syncs.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/catalog-sync/pkg/logging"
	"github.com/AleutianAI/catalog-sync/services/catalog/config"
)

var (
	configPath string
	logLevel   string

	cfg    config.Config
	logger *logging.Logger
)

var rootCmd = &cobra.Command{
	Use:   "catalogsync",
	Short: "Local catalog mirror with full and incremental sync",
	Long: `catalogsync maintains a local mirror of a remote catalog.

The mirror lives in an embedded database and is kept current by full
syncs (replace everything) and incremental syncs (apply changes since
the last watermark). Syncs are resumable, cancellable, and protected by
retries and circuit breakers.

Examples:
  catalogsync serve --config config.yaml   # Run the HTTP API
  catalogsync sync full                    # One-shot full sync
  catalogsync sync incremental             # One-shot incremental sync
  catalogsync status                       # Inspect the local mirror`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if logLevel != "" {
			cfg.Logging.Level = logLevel
		}
		logger, err = logging.New(logging.Config{
			Level:   cfg.Logging.Level,
			Format:  cfg.Logging.Format,
			Service: "catalogsync",
		})
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Close()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"Path to YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"Override the configured log level (debug, info, warn, error)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(statusCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
