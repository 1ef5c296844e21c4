// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package vector

import (
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	sigilerr "github.com/sigil-dev/mnemo/pkg/errors"
)

const (
	// DefaultProvider is the embedded backend used when no provider, or an
	// unknown one, is configured.
	DefaultProvider = "sqlite-vec"

	// DefaultTimeout bounds each call to a remote backend.
	DefaultTimeout = 10 * time.Second

	// DefaultSQLitePath is the sqlite-vec database file used when none is configured.
	DefaultSQLitePath = "vectors.db"
)

// Factory constructs a backend from configuration. Factories validate
// their own sub-config and must not perform I/O beyond opening clients.
type Factory func(cfg Config) (Backend, error)

var (
	factories   = map[string]Factory{}
	factoriesMu sync.RWMutex
)

// RegisterBackend registers a factory under name. Backend packages call
// this from init(). This function is goroutine-safe.
func RegisterBackend(name string, f Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[normalize(name)] = f
}

// Registered returns the sorted names of all registered backends.
func Registered() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()

	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New constructs the backend named by cfg.Provider. The returned backend
// is not yet initialized.
//
// An empty or unrecognised provider falls back to DefaultProvider so a
// misspelled name degrades instead of failing startup. A recognised remote
// provider with missing sub-config fails immediately.
func New(cfg Config) (Backend, error) {
	name := normalize(cfg.Provider)
	if name == "" {
		name = DefaultProvider
	}

	factoriesMu.RLock()
	factory, ok := factories[name]
	fallback, hasFallback := factories[DefaultProvider]
	factoriesMu.RUnlock()

	if !ok {
		if !hasFallback {
			return nil, sigilerr.New(sigilerr.CodeVectorConfigInvalid,
				"no embedded vector backend registered", sigilerr.FieldBackend(DefaultProvider))
		}
		slog.Warn("unknown vector provider, falling back to embedded backend",
			"provider", cfg.Provider, "fallback", DefaultProvider)
		cfg.Provider = DefaultProvider
		factory = fallback
	}

	return factory(cfg)
}

// normalize folds case and the common "sqlite_vec"/"sqlitevec" spellings.
func normalize(name string) string {
	n := strings.ToLower(strings.TrimSpace(name))
	switch n {
	case "sqlite_vec", "sqlitevec", "sqlite":
		return DefaultProvider
	}
	return n
}

// MissingConfig reports a remote provider selected without its sub-config.
func MissingConfig(backend, field string) error {
	return sigilerr.New(sigilerr.CodeVectorConfigInvalid,
		"vector provider "+backend+" requires "+field,
		sigilerr.FieldBackend(backend), sigilerr.Field("field", field))
}
