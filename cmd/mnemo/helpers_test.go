// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"bytes"
	"context"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/sigil-dev/mnemo/internal/config"
	"github.com/sigil-dev/mnemo/internal/embedding"
	"github.com/sigil-dev/mnemo/internal/secrets"
	sigilerr "github.com/sigil-dev/mnemo/pkg/errors"
)

const keywordProviderName = "test-keywords"

// keywordAxes gives each known word its own dimension so nearest
// neighbours are predictable.
var keywordAxes = []string{"cat", "dog", "car", "tree"}

type keywordProvider struct{}

func (keywordProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	return embedding.Embed(ctx, keywordProvider{}, text)
}

func (keywordProvider) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		v := make([]float32, len(keywordAxes))
		for _, word := range strings.Fields(strings.ToLower(text)) {
			if j := slices.Index(keywordAxes, word); j >= 0 {
				v[j]++
			}
		}
		// Unknown text still gets a non-zero vector.
		v[len(v)-1] += 0.01
		out[i] = v
	}
	return out, nil
}

func (keywordProvider) Dimensions() int { return len(keywordAxes) }
func (keywordProvider) Name() string    { return keywordProviderName }
func (keywordProvider) Model() string   { return "keywords-v1" }

func init() {
	embedding.RegisterProvider(keywordProviderName, func(embedding.Config) (embedding.Provider, error) {
		return keywordProvider{}, nil
	})
}

// testConfig returns a config that uses the keyword provider and a
// persistent chromem index under a temp directory.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.DataDir = dir
	cfg.Embedding.Provider = keywordProviderName
	cfg.Embedding.Cache.Size = 0
	cfg.Vector.Provider = "chromem"
	cfg.Vector.Chromem.Path = filepath.Join(dir, "chromem")
	cfg.Logging.Level = "error"
	return cfg
}

// useConfig makes every command load cfg instead of reading files.
func useConfig(t *testing.T, cfg *config.Config) {
	t.Helper()
	orig := loadConfig
	loadConfig = func(string) (*config.Config, error) {
		c := *cfg
		return &c, nil
	}
	t.Cleanup(func() { loadConfig = orig })
}

// runCmd executes the root command with args and returns stdout and stderr.
func runCmd(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	root := NewRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

// memStore is an in-memory secrets.Store.
type memStore struct {
	mu   sync.Mutex
	data map[string]string
}

var _ secrets.Store = (*memStore)(nil)

func newMemStore(keys ...string) *memStore {
	m := &memStore{data: map[string]string{}}
	for _, k := range keys {
		m.data[secrets.DefaultService+"/"+k] = "redacted"
	}
	return m
}

func (m *memStore) Set(service, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[service+"/"+key] = value
	return nil
}

func (m *memStore) Get(service, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[service+"/"+key]
	if !ok {
		return "", sigilerr.New(sigilerr.CodeSecretNotFound, "secret not found")
	}
	return v, nil
}

func (m *memStore) Delete(service, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[service+"/"+key]; !ok {
		return sigilerr.New(sigilerr.CodeSecretNotFound, "secret not found")
	}
	delete(m.data, service+"/"+key)
	return nil
}

func (m *memStore) List(service string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var keys []string
	for k := range m.data {
		if name, ok := strings.CutPrefix(k, service+"/"); ok {
			keys = append(keys, name)
		}
	}
	slices.Sort(keys)
	return keys, nil
}

func useSecretStore(t *testing.T, s secrets.Store) {
	t.Helper()
	orig := secretStoreFactory
	secretStoreFactory = func() secrets.Store { return s }
	t.Cleanup(func() { secretStoreFactory = orig })
}
