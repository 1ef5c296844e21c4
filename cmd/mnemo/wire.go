// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"context"
	"log/slog"
	"os"
	"sync"

	"github.com/sigil-dev/mnemo/internal/config"
	"github.com/sigil-dev/mnemo/internal/embedding"
	_ "github.com/sigil-dev/mnemo/internal/embedding/google" // register providers
	_ "github.com/sigil-dev/mnemo/internal/embedding/ollama"
	_ "github.com/sigil-dev/mnemo/internal/embedding/openai"
	"github.com/sigil-dev/mnemo/internal/search"
	"github.com/sigil-dev/mnemo/internal/vector"
	_ "github.com/sigil-dev/mnemo/internal/vector/chromem" // register backends
	_ "github.com/sigil-dev/mnemo/internal/vector/milvus"
	_ "github.com/sigil-dev/mnemo/internal/vector/pgvector"
	_ "github.com/sigil-dev/mnemo/internal/vector/qdrant"
	_ "github.com/sigil-dev/mnemo/internal/vector/sqlitevec"
	sigilerr "github.com/sigil-dev/mnemo/pkg/errors"
)

// App holds the wired provider, backend and orchestrator.
type App struct {
	Provider embedding.Provider
	Backend  vector.Backend
	Search   *search.Service

	closeOnce sync.Once
	closeErr  error
}

// Wire builds provider -> backend -> Initialize(dimensions) -> orchestrator.
// On failure everything opened so far is closed again.
func Wire(ctx context.Context, cfg *config.Config, log *slog.Logger) (*App, error) {
	if cfg.DataDir != "" {
		if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
			return nil, sigilerr.Errorf(sigilerr.CodeCLISetupFailure, "creating data directory: %w", err)
		}
	}

	provider, err := embedding.New(cfg.EmbeddingConfig())
	if err != nil {
		return nil, err
	}

	backend, err := vector.New(cfg.VectorConfig())
	if err != nil {
		return nil, err
	}

	if err := backend.Initialize(ctx, provider.Dimensions()); err != nil {
		_ = backend.Close()
		return nil, err
	}

	log.Info("vector index ready",
		"backend", backend.Name(),
		"provider", provider.Name(),
		"model", provider.Model(),
		"dimensions", provider.Dimensions(),
	)

	return &App{
		Provider: provider,
		Backend:  backend,
		Search:   search.New(provider, backend, cfg.SearchConfig(), search.WithLogger(log)),
	}, nil
}

// Close closes the backend exactly once.
func (a *App) Close() error {
	a.closeOnce.Do(func() {
		a.closeErr = a.Backend.Close()
	})
	return a.closeErr
}
