// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package embedding

import "time"

const (
	DefaultProvider = "openai"
	DefaultTimeout  = 15 * time.Second
)

// Config selects and configures an embedding provider. Zero values take
// provider-specific defaults.
type Config struct {
	Provider   string
	APIKey     string
	Model      string
	Dimensions int
	BaseURL    string
	Timeout    time.Duration

	// CacheSize > 0 wraps the provider in an LRU cache.
	CacheSize int
	CacheTTL  time.Duration
}

// CallTimeout returns the configured timeout or DefaultTimeout.
func (c Config) CallTimeout() time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	return DefaultTimeout
}

// WithDefaults fills empty model and dimensions.
func (c Config) WithDefaults(model string, dimensions int) Config {
	if c.Model == "" {
		c.Model = model
	}
	if c.Dimensions <= 0 {
		c.Dimensions = dimensions
	}
	return c
}
