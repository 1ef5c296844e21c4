// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

//go:build windows

package config

import "log/slog"

// CheckPermissions is a no-op on Windows, where access is governed by ACLs.
func CheckPermissions(log *slog.Logger, path string) bool {
	if path != "" {
		log.Debug("config permission check not supported on windows", "path", path)
	}
	return false
}
