// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package secrets keeps credentials such as embedding API keys and vector
// database passwords out of mnemo.yaml. Config values of the form
// keyring://service/key are replaced with the stored secret at load time.
package secrets

// DefaultService is the keyring service used by the CLI when none is given.
const DefaultService = "mnemo"

// Store is a secret store keyed by service and key.
type Store interface {
	// Set saves value under service/key, replacing any previous value.
	Set(service, key, value string) error

	// Get returns the value for service/key. A missing entry reports
	// CodeSecretNotFound.
	Get(service, key string) (string, error)

	// Delete removes service/key. A missing entry reports CodeSecretNotFound.
	Delete(service, key string) error

	// List returns the keys stored under service.
	List(service string) ([]string, error)
}
