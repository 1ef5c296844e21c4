// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package vector defines the storage contract shared by every vector
// backend and the factory that selects one from configuration.
package vector

import "context"

// Backend stores embeddings and answers nearest-neighbour queries.
//
// Every implementation returns results ordered by ascending distance with
// ties broken by id, applies the filter before truncating to topK, and is
// safe for concurrent use by many in-flight requests.
type Backend interface {
	// Initialize creates the underlying table or collection sized for
	// dimensions. Calling it again with the same value is a no-op; a
	// different value is a configuration error.
	Initialize(ctx context.Context, dimensions int) error

	// Upsert inserts a record or replaces the record with the same id.
	Upsert(ctx context.Context, id string, embedding []float32, metadata map[string]any) error

	// Search returns up to topK results closest to query. A nil filter
	// matches every record.
	Search(ctx context.Context, query []float32, topK int, filter *Filter) ([]Result, error)

	// Delete removes records by id. Unknown ids are ignored.
	Delete(ctx context.Context, ids []string) error

	// Count returns the number of stored records.
	Count(ctx context.Context) (int64, error)

	// Close releases held resources. Further calls fail with a lifecycle error.
	Close() error

	// Name returns the provider name the backend was registered under.
	Name() string
}

// CategoryFilterer is implemented by backends that can filter on the
// category metadata key natively. Backends that do not implement it, or
// report false, have categories applied by the caller after search.
type CategoryFilterer interface {
	FiltersCategories() bool
}

// FiltersCategories reports whether b can push category constraints down
// into its own query.
func FiltersCategories(b Backend) bool {
	cf, ok := b.(CategoryFilterer)
	return ok && cf.FiltersCategories()
}
