// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package search

import (
	"context"
	"strings"

	"github.com/sigil-dev/mnemo/internal/embedding"
	"github.com/sigil-dev/mnemo/internal/vector"
	sigilerr "github.com/sigil-dev/mnemo/pkg/errors"
)

// Document is one text to index.
type Document struct {
	ID       string         `json:"id"`
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Stats describes the index.
type Stats struct {
	Count      int64  `json:"count"`
	Backend    string `json:"backend"`
	Provider   string `json:"provider"`
	Model      string `json:"model"`
	Dimensions int    `json:"dimensions"`
}

// Index embeds text and upserts it under id.
func (s *Service) Index(ctx context.Context, id, text string, metadata map[string]any) error {
	return s.IndexBatch(ctx, []Document{{ID: id, Text: text, Metadata: metadata}})
}

// IndexBatch embeds all documents in one provider call, then upserts them
// in order. The first failed upsert stops the batch; earlier documents
// stay indexed.
func (s *Service) IndexBatch(ctx context.Context, docs []Document) error {
	ctx, span := s.tracer.Start(ctx, "search.IndexBatch")
	defer span.End()

	if len(docs) == 0 {
		return nil
	}

	texts := make([]string, len(docs))
	for i, d := range docs {
		if strings.TrimSpace(d.ID) == "" {
			return fail(span, sigilerr.New(sigilerr.CodeSearchRequestInvalid, "document id is required",
				sigilerr.Field("index", i)))
		}
		if strings.TrimSpace(d.Text) == "" {
			return fail(span, sigilerr.New(sigilerr.CodeSearchRequestInvalid, "document text is required",
				sigilerr.Field("id", d.ID)))
		}
		texts[i] = d.Text
	}

	vecs, err := s.provider.EmbedBatch(ctx, texts)
	if err != nil {
		return fail(span, err)
	}
	if err := embedding.CheckVectors(s.provider.Name(), len(docs), s.provider.Dimensions(), vecs); err != nil {
		return fail(span, err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.BackendTimeout)
	defer cancel()

	for i, d := range docs {
		if err := s.backend.Upsert(ctx, d.ID, vecs[i], d.Metadata); err != nil {
			return fail(span, vector.BackendError(err, s.backend.Name(), "upsert"))
		}
	}

	s.log.DebugContext(ctx, "indexed documents", "count", len(docs), "backend", s.backend.Name())
	return nil
}

// Forget deletes ids. Unknown ids are ignored.
func (s *Service) Forget(ctx context.Context, ids []string) error {
	ctx, span := s.tracer.Start(ctx, "search.Forget")
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, s.cfg.BackendTimeout)
	defer cancel()

	if err := s.backend.Delete(ctx, ids); err != nil {
		return fail(span, vector.BackendError(err, s.backend.Name(), "delete"))
	}
	return nil
}

// Stats reports the record count and the provider/backend identity.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.BackendTimeout)
	defer cancel()

	n, err := s.backend.Count(ctx)
	if err != nil {
		return nil, vector.BackendError(err, s.backend.Name(), "count")
	}
	return &Stats{
		Count:      n,
		Backend:    s.backend.Name(),
		Provider:   s.provider.Name(),
		Model:      s.provider.Model(),
		Dimensions: s.provider.Dimensions(),
	}, nil
}
