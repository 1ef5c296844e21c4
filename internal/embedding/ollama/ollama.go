// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package ollama embeds text with a local Ollama server.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sigil-dev/mnemo/internal/embedding"
	sigilerr "github.com/sigil-dev/mnemo/pkg/errors"
)

const (
	name = "ollama"

	DefaultModel      = "nomic-embed-text"
	DefaultDimensions = 768
	DefaultBaseURL    = "http://localhost:11434"
)

func init() {
	embedding.RegisterProvider(name, func(cfg embedding.Config) (embedding.Provider, error) {
		return New(cfg), nil
	})
}

var _ embedding.Provider = (*Provider)(nil)

// Provider implements embedding.Provider over POST /api/embed. Ollama runs
// locally and needs no credential; an API key, when set, is sent as a
// bearer token for proxied deployments.
type Provider struct {
	baseURL string
	apiKey  string
	model   string
	dims    int
	timeout time.Duration
	client  *http.Client
}

type embedRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type embedResponse struct {
	Embeddings [][]float64 `json:"embeddings"`
}

// New builds a provider.
func New(cfg embedding.Config) *Provider {
	cfg = cfg.WithDefaults(DefaultModel, DefaultDimensions)
	base := cfg.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	return &Provider{
		baseURL: strings.TrimRight(base, "/"),
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		dims:    cfg.Dimensions,
		timeout: cfg.CallTimeout(),
		client:  &http.Client{},
	}
}

func (p *Provider) Name() string    { return name }
func (p *Provider) Model() string   { return p.model }
func (p *Provider) Dimensions() int { return p.dims }

func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	return embedding.Embed(ctx, p, text)
}

func (p *Provider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := embedding.ValidateInput(name, texts); err != nil {
		return nil, err
	}

	body, err := json.Marshal(embedRequest{Model: p.model, Input: texts, Dimensions: p.dims})
	if err != nil {
		return nil, sigilerr.Wrap(err, sigilerr.CodeEmbeddingRequestInvalid, "ollama: encoding request",
			sigilerr.FieldProvider(name))
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, sigilerr.Wrap(err, sigilerr.CodeEmbeddingConfigInvalid, "ollama: building request",
			sigilerr.FieldProvider(name))
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, embedding.TransportError(err, name, p.timeout)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, embedding.UpstreamError(nil, name, resp.StatusCode, string(raw))
	}

	var result embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, sigilerr.Wrap(err, sigilerr.CodeEmbeddingResponseInvalid, "ollama: decoding response",
			sigilerr.FieldProvider(name))
	}

	out := make([][]float32, len(result.Embeddings))
	for i, e := range result.Embeddings {
		out[i] = embedding.ToFloat32(e)
	}
	if err := embedding.CheckVectors(name, len(texts), p.dims, out); err != nil {
		return nil, err
	}
	return out, nil
}
