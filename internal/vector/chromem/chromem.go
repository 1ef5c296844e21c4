// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package chromem implements an embedded vector backend on chromem-go, a
// pure Go vector database that runs in memory or persists to a directory.
package chromem

import (
	"context"
	"encoding/json"
	"sync"

	chromem "github.com/philippgille/chromem-go"

	"github.com/sigil-dev/mnemo/internal/vector"
	sigilerr "github.com/sigil-dev/mnemo/pkg/errors"
)

const (
	name = "chromem"

	// DefaultCollection is used when the config names none.
	DefaultCollection = "mnemo"
)

func init() {
	vector.RegisterBackend(name, func(cfg vector.Config) (vector.Backend, error) {
		c := vector.ChromemConfig{}
		if cfg.Chromem != nil {
			c = *cfg.Chromem
		}
		return Open(c)
	})
}

var _ vector.Backend = (*Backend)(nil)

// Backend stores vectors as chromem documents. The full metadata is kept
// as JSON in the document content; the string-typed chromem metadata map
// carries the same keys for where-clause filtering.
//
// chromem compares with cosine similarity; distances are 1 - similarity.
//
// mu keeps a search's size check and its query on the same collection
// state: deletes take it exclusively, searches and upserts share it.
type Backend struct {
	db         *chromem.DB
	collection string
	col        *chromem.Collection
	life       *vector.Lifecycle
	mu         sync.RWMutex
}

// Open creates an in-memory database, or a persistent one when cfg.Path
// is set.
func Open(cfg vector.ChromemConfig) (*Backend, error) {
	var (
		db  *chromem.DB
		err error
	)
	if cfg.Path == "" {
		db = chromem.NewDB()
	} else {
		db, err = chromem.NewPersistentDB(cfg.Path, cfg.Compress)
		if err != nil {
			return nil, sigilerr.Wrap(err, sigilerr.CodeVectorConfigInvalid, "opening chromem db",
				sigilerr.FieldBackend(name), sigilerr.Field("path", cfg.Path))
		}
	}

	collection := cfg.Collection
	if collection == "" {
		collection = DefaultCollection
	}

	return &Backend{db: db, collection: collection, life: vector.NewLifecycle(name)}, nil
}

func (b *Backend) Name() string { return name }

// Initialize gets or creates the collection. When the collection already
// holds documents their length must equal dimensions.
func (b *Backend) Initialize(ctx context.Context, dimensions int) error {
	return b.life.Begin(dimensions, func() error {
		col, err := b.db.GetOrCreateCollection(b.collection, nil, nil)
		if err != nil {
			return vector.BackendError(err, name, "creating collection")
		}
		if err := checkDimensions(ctx, col, dimensions); err != nil {
			return err
		}
		b.col = col
		return nil
	})
}

// checkDimensions probes an existing collection with a unit vector of the
// requested size. chromem rejects dot products over unequal lengths.
func checkDimensions(ctx context.Context, col *chromem.Collection, dimensions int) error {
	if col.Count() == 0 {
		return nil
	}

	probe := make([]float32, dimensions)
	probe[0] = 1
	res, err := col.QueryEmbedding(ctx, probe, 1, nil, nil)
	if err == nil && len(res) > 0 && len(res[0].Embedding) == dimensions {
		return nil
	}

	if err != nil {
		return sigilerr.Wrap(err, sigilerr.CodeVectorDimensionsMismatch, "collection holds vectors of a different size",
			sigilerr.FieldBackend(name), sigilerr.Field("requested_dimensions", dimensions))
	}
	have := 0
	if len(res) > 0 {
		have = len(res[0].Embedding)
	}
	return vector.DimensionMismatch(name, have, dimensions)
}

// Upsert adds or overwrites the document with the given id.
func (b *Backend) Upsert(ctx context.Context, id string, embedding []float32, metadata map[string]any) error {
	dims, err := b.life.Ready()
	if err != nil {
		return err
	}
	if err := vector.ValidateUpsert(name, dims, id, embedding); err != nil {
		return err
	}
	metadata = vector.CanonicalMetadata(metadata)

	content := []byte("{}")
	if len(metadata) > 0 {
		content, err = json.Marshal(metadata)
		if err != nil {
			return sigilerr.Wrap(err, sigilerr.CodeVectorMetadataInvalid, "marshalling metadata", sigilerr.FieldBackend(name))
		}
	}

	tags := make(map[string]string, len(metadata))
	for k, v := range metadata {
		tags[k] = vector.MetadataString(v)
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	doc := chromem.Document{
		ID:        id,
		Metadata:  tags,
		Embedding: append([]float32(nil), embedding...),
		Content:   string(content),
	}
	if err := b.col.AddDocument(ctx, doc); err != nil {
		return vector.BackendError(err, name, "adding document "+id)
	}
	return nil
}

// Search queries once per requested layer, since chromem where clauses are
// conjunctive equality matches, and merges the hits by distance.
// Categories are checked after the query, so a category-filtered search
// can return fewer than topK hits; callers that need topK over-fetch.
func (b *Backend) Search(ctx context.Context, query []float32, topK int, filter *vector.Filter) ([]vector.Result, error) {
	dims, err := b.life.Ready()
	if err != nil {
		return nil, err
	}
	if err := vector.ValidateSearch(name, dims, query, topK); err != nil {
		return nil, err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	// nResults may not exceed the collection size.
	n := min(topK, b.col.Count())
	if n == 0 {
		return []vector.Result{}, nil
	}

	var results []vector.Result
	for _, where := range whereClauses(filter) {
		hits, err := b.col.QueryEmbedding(ctx, query, n, where, nil)
		if err != nil {
			return nil, vector.BackendError(err, name, "querying collection")
		}
		for _, h := range hits {
			r, err := toResult(h)
			if err != nil {
				return nil, err
			}
			if !filter.MatchesCategories(r.Metadata) {
				continue
			}
			results = append(results, r)
		}
	}

	if results == nil {
		results = []vector.Result{}
	}
	vector.SortResults(results)
	return vector.TopK(results, topK), nil
}

func whereClauses(f *vector.Filter) []map[string]string {
	if f.IsEmpty() {
		return []map[string]string{nil}
	}

	base := map[string]string{}
	if f.AgentID != "" {
		base[vector.MetaAgentID] = f.AgentID
	}
	if len(f.Layers) == 0 {
		if len(base) == 0 {
			return []map[string]string{nil}
		}
		return []map[string]string{base}
	}

	seen := make(map[string]struct{}, len(f.Layers))
	clauses := make([]map[string]string, 0, len(f.Layers))
	for _, layer := range f.Layers {
		if _, dup := seen[layer]; dup {
			continue
		}
		seen[layer] = struct{}{}

		w := make(map[string]string, len(base)+1)
		for k, v := range base {
			w[k] = v
		}
		w[vector.MetaLayer] = layer
		clauses = append(clauses, w)
	}
	return clauses
}

func toResult(h chromem.Result) (vector.Result, error) {
	r := vector.Result{ID: h.ID, Distance: 1 - float64(h.Similarity)}
	if h.Content == "" || h.Content == "{}" {
		return r, nil
	}
	if err := json.Unmarshal([]byte(h.Content), &r.Metadata); err != nil {
		return vector.Result{}, sigilerr.Wrap(err, sigilerr.CodeVectorMetadataInvalid, "unmarshalling document metadata",
			sigilerr.FieldBackend(name), sigilerr.Field("id", h.ID))
	}
	return r, nil
}

// Delete removes documents by ID. Unknown IDs are ignored.
func (b *Backend) Delete(ctx context.Context, ids []string) error {
	if _, err := b.life.Ready(); err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.col.Delete(ctx, nil, nil, ids...); err != nil {
		return vector.BackendError(err, name, "deleting documents")
	}
	return nil
}

// Count returns the number of documents in the collection.
func (b *Backend) Count(_ context.Context) (int64, error) {
	if _, err := b.life.Ready(); err != nil {
		return 0, err
	}
	return int64(b.col.Count()), nil
}

// Close marks the backend closed. Persistent databases write through on
// every change, so there is nothing to flush.
func (b *Backend) Close() error {
	b.life.Close()
	return nil
}
