// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/sigil-dev/mnemo/internal/config"
	sigilerr "github.com/sigil-dev/mnemo/pkg/errors"
)

// loadConfig is swapped out in tests.
var loadConfig = config.Load

// NewRootCmd creates the root mnemo command with all subcommands registered.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "mnemo",
		Short:         "mnemo - semantic memory retrieval",
		Long:          "mnemo embeds memories with a pluggable provider, stores them in a pluggable vector index, and answers natural-language searches.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringP("config", "c", "", "path to config file (default: ./mnemo.yaml or ~/.config/mnemo/mnemo.yaml)")
	root.PersistentFlags().String("data-dir", "", "override data_dir")
	root.PersistentFlags().BoolP("verbose", "v", false, "log at debug level")

	root.AddCommand(
		newInitCmd(),
		newServeCmd(),
		newSearchCmd(),
		newIndexCmd(),
		newForgetCmd(),
		newStatsCmd(),
		newConfigCmd(),
		newSecretCmd(),
		newVersionCmd(),
	)
	return root
}

// setup loads configuration, applies global flag overrides and installs
// the default logger.
func setup(cmd *cobra.Command) (*config.Config, *slog.Logger, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := loadConfig(path)
	if err != nil {
		return nil, nil, err
	}

	if dir, _ := cmd.Flags().GetString("data-dir"); dir != "" {
		cfg.DataDir = dir
	}
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		cfg.Logging.Level = "debug"
	}

	log, err := newLogger(cfg.Logging, cmd.ErrOrStderr())
	if err != nil {
		return nil, nil, sigilerr.Wrap(err, sigilerr.CodeCLISetupFailure, "configuring logging")
	}
	slog.SetDefault(log)
	return cfg, log, nil
}
