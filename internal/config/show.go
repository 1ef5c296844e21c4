// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package config

import (
	"gopkg.in/yaml.v3"

	sigilerr "github.com/sigil-dev/mnemo/pkg/errors"
)

const redacted = "********"

// Redacted returns a copy with every credential replaced by a placeholder.
// Empty values stay empty so that "unset" remains visible.
func (c *Config) Redacted() *Config {
	out := *c
	out.Networking.CORSOrigins = append([]string(nil), c.Networking.CORSOrigins...)
	for _, val := range out.secretFields() {
		if *val != "" {
			*val = redacted
		}
	}
	return &out
}

// YAML renders the redacted configuration.
func (c *Config) YAML() ([]byte, error) {
	return c.Redacted().Encode()
}

// Encode renders the configuration as written, credentials included. Use
// it only for files the user owns, such as the one written by mnemo init.
func (c *Config) Encode() ([]byte, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, sigilerr.Wrap(err, sigilerr.CodeConfigParseInvalidFormat, "encoding config")
	}
	return data, nil
}
