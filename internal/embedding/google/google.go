// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package google embeds text with the Gemini API.
package google

import (
	"context"
	"errors"
	"sync"
	"time"

	"google.golang.org/genai"

	"github.com/sigil-dev/mnemo/internal/embedding"
	sigilerr "github.com/sigil-dev/mnemo/pkg/errors"
)

const (
	name = "google"

	DefaultModel      = "gemini-embedding-001"
	DefaultDimensions = 768

	taskType = "RETRIEVAL_DOCUMENT"
)

func init() {
	embedding.RegisterProvider(name, func(cfg embedding.Config) (embedding.Provider, error) {
		return New(cfg), nil
	})
}

var _ embedding.Provider = (*Provider)(nil)

// Provider implements embedding.Provider using Models.EmbedContent.
type Provider struct {
	cfg     embedding.Config
	timeout time.Duration

	once      sync.Once
	client    *genai.Client
	clientErr error
}

// New builds a provider. The genai client is created on first use.
func New(cfg embedding.Config) *Provider {
	cfg = cfg.WithDefaults(DefaultModel, DefaultDimensions)
	return &Provider{cfg: cfg, timeout: cfg.CallTimeout()}
}

func (p *Provider) Name() string    { return name }
func (p *Provider) Model() string   { return p.cfg.Model }
func (p *Provider) Dimensions() int { return p.cfg.Dimensions }

func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	return embedding.Embed(ctx, p, text)
}

func (p *Provider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if p.cfg.APIKey == "" {
		return nil, embedding.MissingCredential(name)
	}
	if err := embedding.ValidateInput(name, texts); err != nil {
		return nil, err
	}

	client, err := p.getClient(ctx)
	if err != nil {
		return nil, err
	}

	contents := make([]*genai.Content, len(texts))
	for i, t := range texts {
		contents[i] = genai.NewContentFromText(t, genai.RoleUser)
	}

	dims := int32(p.cfg.Dimensions)
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	resp, err := client.Models.EmbedContent(ctx, p.cfg.Model, contents, &genai.EmbedContentConfig{
		TaskType:             taskType,
		OutputDimensionality: &dims,
	})
	if err != nil {
		var apiErr genai.APIError
		if errors.As(err, &apiErr) {
			return nil, embedding.UpstreamError(err, name, apiErr.Code, apiErr.Message)
		}
		return nil, embedding.TransportError(err, name, p.timeout)
	}

	out := make([][]float32, len(resp.Embeddings))
	for i, e := range resp.Embeddings {
		if e != nil {
			out[i] = e.Values
		}
	}
	if err := embedding.CheckVectors(name, len(texts), p.cfg.Dimensions, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (p *Provider) getClient(ctx context.Context) (*genai.Client, error) {
	p.once.Do(func() {
		cc := &genai.ClientConfig{
			APIKey:  p.cfg.APIKey,
			Backend: genai.BackendGeminiAPI,
		}
		if p.cfg.BaseURL != "" {
			cc.HTTPOptions = genai.HTTPOptions{BaseURL: p.cfg.BaseURL}
		}
		p.client, p.clientErr = genai.NewClient(ctx, cc)
		if p.clientErr != nil {
			p.clientErr = sigilerr.Wrap(p.clientErr, sigilerr.CodeEmbeddingConfigInvalid, "google: creating client",
				sigilerr.FieldProvider(name))
		}
	})
	return p.client, p.clientErr
}
