// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"io"
	"log/slog"
	"strings"

	"github.com/sigil-dev/mnemo/internal/config"
	sigilerr "github.com/sigil-dev/mnemo/pkg/errors"
)

func newLogger(cfg config.LoggingConfig, w io.Writer) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToLower(cfg.Level))); err != nil {
		return nil, sigilerr.Errorf(sigilerr.CodeConfigValidateInvalidValue, "logging.level %q: %w", cfg.Level, err)
	}

	opts := &slog.HandlerOptions{Level: level}
	switch cfg.Format {
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	case "text", "":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	default:
		return nil, sigilerr.Errorf(sigilerr.CodeConfigValidateInvalidValue, "logging.format %q: want text or json", cfg.Format)
	}
}
