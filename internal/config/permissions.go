// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

//go:build !windows

package config

import (
	"log/slog"
	"os"
)

// CheckPermissions warns when the config file at path is readable by group
// or others, since it may hold API keys and database DSNs. It reports
// whether the file is exposed. Startup is never blocked.
func CheckPermissions(log *slog.Logger, path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	if err != nil {
		log.Debug("config permission check skipped", "path", path, "error", err)
		return false
	}
	if info.Mode().Perm()&0o044 == 0 {
		return false
	}
	log.Warn("config file is readable by other users and may expose credentials",
		"path", path,
		"mode", info.Mode().Perm().String(),
		"recommended", "0600",
	)
	return true
}
