// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package ollama_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigil-dev/mnemo/internal/embedding"
	"github.com/sigil-dev/mnemo/internal/embedding/ollama"
	sigilerr "github.com/sigil-dev/mnemo/pkg/errors"
)

func TestProvider_EmbedBatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/embed", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Empty(t, r.Header.Get("Authorization"))

		var req struct {
			Model      string   `json:"model"`
			Input      []string `json:"input"`
			Dimensions int      `json:"dimensions"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "nomic-embed-text", req.Model)
		assert.Equal(t, 2, req.Dimensions)

		embs := make([][]float64, len(req.Input))
		for i, in := range req.Input {
			embs[i] = []float64{float64(len(in)), float64(i)}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"model": req.Model, "embeddings": embs})
	}))
	defer srv.Close()

	p := ollama.New(embedding.Config{BaseURL: srv.URL + "/", Dimensions: 2})

	out, err := p.EmbedBatch(context.Background(), []string{"ab", "cde"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{2, 0}, {3, 1}}, out)

	single, err := p.Embed(context.Background(), "ab")
	require.NoError(t, err)
	assert.Equal(t, out[0], single)
}

func TestProvider_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"model \"nomic-embed-text\" not found, try pulling it first"}`))
	}))
	defer srv.Close()

	p := ollama.New(embedding.Config{BaseURL: srv.URL})
	_, err := p.Embed(context.Background(), "x")
	require.Error(t, err)

	assert.True(t, sigilerr.IsUpstreamFailure(err))
	assert.Equal(t, http.StatusNotFound, sigilerr.FieldsOf(err)["status"])
	assert.Contains(t, sigilerr.FieldsOf(err)["body"], "try pulling it first")
}

func TestProvider_WrongLength(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"embeddings":[[1,2,3]]}`))
	}))
	defer srv.Close()

	p := ollama.New(embedding.Config{BaseURL: srv.URL, Dimensions: 2})
	_, err := p.Embed(context.Background(), "x")
	assert.True(t, sigilerr.HasCode(err, sigilerr.CodeEmbeddingResponseInvalid))
}

func TestProvider_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	p := ollama.New(embedding.Config{BaseURL: srv.URL, Timeout: 50 * time.Millisecond})
	_, err := p.Embed(context.Background(), "x")
	require.Error(t, err)
	assert.True(t, sigilerr.IsTimeout(err))
}

func TestProvider_BearerToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer proxy-key", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"embeddings":[[1]]}`))
	}))
	defer srv.Close()

	p := ollama.New(embedding.Config{BaseURL: srv.URL, APIKey: "proxy-key", Dimensions: 1})
	_, err := p.Embed(context.Background(), "x")
	require.NoError(t, err)
}

func TestRegistry_Ollama(t *testing.T) {
	p, err := embedding.New(embedding.Config{Provider: "ollama"})
	require.NoError(t, err)
	assert.Equal(t, "ollama", p.Name())
	assert.Equal(t, ollama.DefaultDimensions, p.Dimensions())
}
