// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package openai embeds text with the OpenAI embeddings API or any
// compatible endpoint.
package openai

import (
	"context"
	"errors"
	"sort"
	"time"

	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/sigil-dev/mnemo/internal/embedding"
)

const (
	name = "openai"

	DefaultModel      = "text-embedding-3-small"
	DefaultDimensions = 1536

	// legacyModel rejects the dimensions parameter.
	legacyModel = "text-embedding-ada-002"
)

func init() {
	embedding.RegisterProvider(name, func(cfg embedding.Config) (embedding.Provider, error) {
		return New(cfg), nil
	})
}

var _ embedding.Provider = (*Provider)(nil)

// Provider implements embedding.Provider. SDK retries are disabled; the
// caller owns retry policy.
type Provider struct {
	client  openaisdk.Client
	model   string
	dims    int
	timeout time.Duration
	hasKey  bool
}

// New builds a provider. A missing API key is reported on each call, not
// here, so startup can proceed and surface the problem per request.
func New(cfg embedding.Config) *Provider {
	cfg = cfg.WithDefaults(DefaultModel, DefaultDimensions)

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
		option.WithRequestTimeout(cfg.CallTimeout()),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &Provider{
		client:  openaisdk.NewClient(opts...),
		model:   cfg.Model,
		dims:    cfg.Dimensions,
		timeout: cfg.CallTimeout(),
		hasKey:  cfg.APIKey != "",
	}
}

func (p *Provider) Name() string    { return name }
func (p *Provider) Model() string   { return p.model }
func (p *Provider) Dimensions() int { return p.dims }

func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	return embedding.Embed(ctx, p, text)
}

func (p *Provider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if !p.hasKey {
		return nil, embedding.MissingCredential(name)
	}
	if err := embedding.ValidateInput(name, texts); err != nil {
		return nil, err
	}

	params := openaisdk.EmbeddingNewParams{
		Input:          openaisdk.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Model:          openaisdk.EmbeddingModel(p.model),
		EncodingFormat: openaisdk.EmbeddingNewParamsEncodingFormatFloat,
	}
	if p.model != legacyModel {
		params.Dimensions = openaisdk.Int(int64(p.dims))
	}

	resp, err := p.client.Embeddings.New(ctx, params)
	if err != nil {
		var apiErr *openaisdk.Error
		if errors.As(err, &apiErr) {
			return nil, embedding.UpstreamError(err, name, apiErr.StatusCode, apiErr.RawJSON())
		}
		return nil, embedding.TransportError(err, name, p.timeout)
	}

	data := resp.Data
	sort.SliceStable(data, func(i, j int) bool { return data[i].Index < data[j].Index })

	out := make([][]float32, len(data))
	for i, d := range data {
		out[i] = embedding.ToFloat32(d.Embedding)
	}
	if err := embedding.CheckVectors(name, len(texts), p.dims, out); err != nil {
		return nil, err
	}
	return out, nil
}
