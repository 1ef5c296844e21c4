// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package embedding

import (
	"slices"
	"strings"
	"sync"

	sigilerr "github.com/sigil-dev/mnemo/pkg/errors"
)

// Factory constructs a provider from config.
type Factory func(cfg Config) (Provider, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

// RegisterProvider makes a provider available to New. Registering a name
// twice replaces the earlier factory.
func RegisterProvider(name string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[strings.ToLower(strings.TrimSpace(name))] = f
}

// Registered lists registered provider names in sorted order.
func Registered() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// New builds the provider named by cfg.Provider, defaulting to
// DefaultProvider. Unlike vector backends there is no fallback: an
// embedding model silently swapped for another would corrupt the index.
func New(cfg Config) (Provider, error) {
	name := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if name == "" {
		name = DefaultProvider
	}

	registryMu.RLock()
	f, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, sigilerr.New(sigilerr.CodeEmbeddingConfigInvalid, "unknown embedding provider",
			sigilerr.FieldProvider(name),
			sigilerr.Field("registered", strings.Join(Registered(), ",")),
		)
	}

	cfg.Provider = name
	p, err := f(cfg)
	if err != nil {
		return nil, err
	}

	if cfg.CacheSize > 0 {
		return NewCachedProvider(p, cfg.CacheSize, cfg.CacheTTL), nil
	}
	return p, nil
}
