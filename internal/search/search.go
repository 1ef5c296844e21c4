// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package search turns a natural-language query into ranked memory ids by
// embedding the query and asking the vector backend for nearest neighbours.
package search

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/sigil-dev/mnemo/internal/embedding"
	"github.com/sigil-dev/mnemo/internal/vector"
	sigilerr "github.com/sigil-dev/mnemo/pkg/errors"
)

const tracerName = "github.com/sigil-dev/mnemo/internal/search"

const (
	DefaultLimit             = 10
	DefaultMaxLimit          = 100
	DefaultCategoryOverfetch = 4
	DefaultBackendTimeout    = 10 * time.Second
)

// Request is an inbound search.
type Request struct {
	Query      string   `json:"query"`
	Layers     []string `json:"layers,omitempty"`
	Categories []string `json:"categories,omitempty"`
	AgentID    string   `json:"agent_id,omitempty"`
	Limit      *int     `json:"limit,omitempty"`
	Debug      bool     `json:"debug,omitempty"`
}

// Result is one ranked hit.
type Result struct {
	ID       string         `json:"id"`
	Distance float64        `json:"distance"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Response holds results in backend order.
type Response struct {
	Results []Result   `json:"results"`
	Debug   *DebugInfo `json:"debug,omitempty"`
}

// DebugInfo describes how a search was executed.
type DebugInfo struct {
	Query              string         `json:"query"`
	Limit              int            `json:"limit"`
	Filter             *vector.Filter `json:"filter,omitempty"`
	Backend            string         `json:"backend"`
	Provider           string         `json:"provider"`
	Model              string         `json:"model"`
	Dimensions         int            `json:"dimensions"`
	Distances          []float64      `json:"distances"`
	CategoryPostFilter bool           `json:"category_post_filter"`
	Candidates         int            `json:"candidates"`
	EmbedMS            int64          `json:"embed_ms"`
	SearchMS           int64          `json:"search_ms"`
}

// MetadataSource supplies stored metadata for result ids. Missing ids are
// simply absent from the returned map.
type MetadataSource interface {
	Lookup(ctx context.Context, ids []string) (map[string]map[string]any, error)
}

// Config tunes the orchestrator. Zero values take the defaults above.
type Config struct {
	DefaultLimit      int
	MaxLimit          int
	CategoryOverfetch int
	BackendTimeout    time.Duration
}

func (c Config) withDefaults() Config {
	if c.DefaultLimit <= 0 {
		c.DefaultLimit = DefaultLimit
	}
	if c.MaxLimit <= 0 {
		c.MaxLimit = DefaultMaxLimit
	}
	if c.DefaultLimit > c.MaxLimit {
		c.DefaultLimit = c.MaxLimit
	}
	if c.CategoryOverfetch <= 0 {
		c.CategoryOverfetch = DefaultCategoryOverfetch
	}
	if c.BackendTimeout <= 0 {
		c.BackendTimeout = DefaultBackendTimeout
	}
	return c
}

// Option configures a Service.
type Option func(*Service)

// WithMetadataSource enriches results with stored metadata.
func WithMetadataSource(src MetadataSource) Option {
	return func(s *Service) { s.meta = src }
}

// WithLogger sets the logger; the default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.log = l }
}

// Service is the search orchestrator. It holds no request state and is
// safe for concurrent use; concurrency guarantees beyond that are the
// provider's and backend's.
type Service struct {
	provider embedding.Provider
	backend  vector.Backend
	cfg      Config
	meta     MetadataSource
	log      *slog.Logger
	tracer   trace.Tracer
}

// New builds a Service over an initialized backend.
func New(provider embedding.Provider, backend vector.Backend, cfg Config, opts ...Option) *Service {
	s := &Service{
		provider: provider,
		backend:  backend,
		cfg:      cfg.withDefaults(),
		log:      slog.Default(),
		tracer:   otel.Tracer(tracerName),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Search runs one query. Provider and backend errors are returned
// unchanged, and nothing is retried.
func (s *Service) Search(ctx context.Context, req Request) (*Response, error) {
	ctx, span := s.tracer.Start(ctx, "search.Search")
	defer span.End()

	query, limit, err := s.validate(req)
	if err != nil {
		return nil, fail(span, err)
	}

	embedStart := time.Now()
	qvec, err := s.embed(ctx, query)
	if err != nil {
		return nil, fail(span, err)
	}
	embedMS := time.Since(embedStart).Milliseconds()

	full := &vector.Filter{Layers: req.Layers, AgentID: req.AgentID, Categories: req.Categories}
	if full.IsEmpty() {
		full = nil
	}

	filter, fetch := full, limit
	postFilter := len(req.Categories) > 0 && !vector.FiltersCategories(s.backend)
	if postFilter {
		filter = full.WithoutCategories()
		fetch = limit * s.cfg.CategoryOverfetch
	}

	searchStart := time.Now()
	hits, err := s.backendSearch(ctx, qvec, fetch, filter)
	if err != nil {
		return nil, fail(span, err)
	}
	searchMS := time.Since(searchStart).Milliseconds()
	candidates := len(hits)

	if postFilter {
		kept := hits[:0:0]
		for _, h := range hits {
			if full.MatchesCategories(h.Metadata) {
				kept = append(kept, h)
			}
		}
		hits = kept
	}
	if len(hits) > limit {
		hits = hits[:limit]
	}

	results, err := s.enrich(ctx, hits)
	if err != nil {
		return nil, fail(span, err)
	}

	span.SetAttributes(
		attribute.Int("search.limit", limit),
		attribute.Int("search.candidates", candidates),
		attribute.Int("search.results", len(results)),
		attribute.Bool("search.category_post_filter", postFilter),
	)
	s.log.DebugContext(ctx, "search completed",
		"backend", s.backend.Name(),
		"limit", limit,
		"candidates", candidates,
		"results", len(results),
		"category_post_filter", postFilter,
		"embed_ms", embedMS,
		"search_ms", searchMS,
	)

	resp := &Response{Results: results}
	if req.Debug {
		distances := make([]float64, len(results))
		for i, r := range results {
			distances[i] = r.Distance
		}
		resp.Debug = &DebugInfo{
			Query:              query,
			Limit:              limit,
			Filter:             full,
			Backend:            s.backend.Name(),
			Provider:           s.provider.Name(),
			Model:              s.provider.Model(),
			Dimensions:         s.provider.Dimensions(),
			Distances:          distances,
			CategoryPostFilter: postFilter,
			Candidates:         candidates,
			EmbedMS:            embedMS,
			SearchMS:           searchMS,
		}
	}
	return resp, nil
}

func (s *Service) validate(req Request) (string, int, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return "", 0, sigilerr.New(sigilerr.CodeSearchRequestInvalid, "query is required")
	}

	limit := s.cfg.DefaultLimit
	if req.Limit != nil {
		limit = *req.Limit
	}
	if limit <= 0 {
		return "", 0, sigilerr.New(sigilerr.CodeSearchRequestInvalid, "limit must be positive",
			sigilerr.Field("limit", limit))
	}
	if limit > s.cfg.MaxLimit {
		limit = s.cfg.MaxLimit
	}
	return query, limit, nil
}

func (s *Service) embed(ctx context.Context, text string) ([]float32, error) {
	ctx, span := s.tracer.Start(ctx, "embedding.Embed", trace.WithAttributes(
		attribute.String("embedding.provider", s.provider.Name()),
		attribute.String("embedding.model", s.provider.Model()),
	))
	defer span.End()

	v, err := s.provider.Embed(ctx, text)
	if err != nil {
		return nil, fail(span, err)
	}
	return v, nil
}

func (s *Service) backendSearch(ctx context.Context, q []float32, topK int, f *vector.Filter) ([]vector.Result, error) {
	ctx, span := s.tracer.Start(ctx, "vector.Search", trace.WithAttributes(
		attribute.String("vector.backend", s.backend.Name()),
		attribute.Int("vector.top_k", topK),
	))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, s.cfg.BackendTimeout)
	defer cancel()

	hits, err := s.backend.Search(ctx, q, topK, f)
	if err != nil {
		return nil, fail(span, vector.BackendError(err, s.backend.Name(), "search"))
	}
	return hits, nil
}

// enrich merges stored metadata under backend metadata; backend keys win.
func (s *Service) enrich(ctx context.Context, hits []vector.Result) ([]Result, error) {
	results := make([]Result, len(hits))
	for i, h := range hits {
		results[i] = Result{ID: h.ID, Distance: h.Distance, Metadata: h.Metadata}
	}
	if s.meta == nil || len(hits) == 0 {
		return results, nil
	}

	ids := make([]string, len(hits))
	for i, h := range hits {
		ids[i] = h.ID
	}
	stored, err := s.meta.Lookup(ctx, ids)
	if err != nil {
		return nil, err
	}

	for i := range results {
		extra, ok := stored[results[i].ID]
		if !ok || len(extra) == 0 {
			continue
		}
		merged := make(map[string]any, len(extra)+len(results[i].Metadata))
		for k, v := range extra {
			merged[k] = v
		}
		for k, v := range results[i].Metadata {
			merged[k] = v
		}
		results[i].Metadata = merged
	}
	return results, nil
}

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
