// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package config

import (
	"errors"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/sigil-dev/mnemo/internal/embedding"
	"github.com/sigil-dev/mnemo/internal/search"
	"github.com/sigil-dev/mnemo/internal/secrets"
	"github.com/sigil-dev/mnemo/internal/vector"
	sigilerr "github.com/sigil-dev/mnemo/pkg/errors"
)

// Config is the top-level mnemo configuration.
type Config struct {
	Networking NetworkingConfig `mapstructure:"networking" yaml:"networking"`
	Logging    LoggingConfig    `mapstructure:"logging" yaml:"logging"`
	Embedding  EmbeddingConfig  `mapstructure:"embedding" yaml:"embedding"`
	Vector     VectorConfig     `mapstructure:"vector" yaml:"vector"`
	Search     SearchConfig     `mapstructure:"search" yaml:"search"`
	DataDir    string           `mapstructure:"data_dir" yaml:"data_dir"`

	file string
}

// NetworkingConfig controls the HTTP listener.
type NetworkingConfig struct {
	Listen         string   `mapstructure:"listen" yaml:"listen"`
	CORSOrigins    []string `mapstructure:"cors_origins" yaml:"cors_origins"`
	RateLimitRPS   float64  `mapstructure:"rate_limit_rps" yaml:"rate_limit_rps"`
	RateLimitBurst int      `mapstructure:"rate_limit_burst" yaml:"rate_limit_burst"`
}

// LoggingConfig selects the slog handler.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// EmbeddingConfig selects and configures the embedding provider.
type EmbeddingConfig struct {
	Provider   string        `mapstructure:"provider" yaml:"provider"`
	APIKey     string        `mapstructure:"api_key" yaml:"api_key"`
	Model      string        `mapstructure:"model" yaml:"model"`
	Dimensions int           `mapstructure:"dimensions" yaml:"dimensions"`
	BaseURL    string        `mapstructure:"base_url" yaml:"base_url"`
	Timeout    time.Duration `mapstructure:"timeout" yaml:"timeout"`
	Cache      CacheConfig   `mapstructure:"cache" yaml:"cache"`
}

// CacheConfig sizes the in-process embedding cache. Size 0 disables it.
type CacheConfig struct {
	Size int           `mapstructure:"size" yaml:"size"`
	TTL  time.Duration `mapstructure:"ttl" yaml:"ttl"`
}

// VectorConfig selects and configures the vector backend.
type VectorConfig struct {
	Provider  string          `mapstructure:"provider" yaml:"provider"`
	Timeout   time.Duration   `mapstructure:"timeout" yaml:"timeout"`
	SQLiteVec SQLiteVecConfig `mapstructure:"sqlite_vec" yaml:"sqlite_vec"`
	Chromem   ChromemConfig   `mapstructure:"chromem" yaml:"chromem"`
	Qdrant    QdrantConfig    `mapstructure:"qdrant" yaml:"qdrant"`
	Milvus    MilvusConfig    `mapstructure:"milvus" yaml:"milvus"`
	PGVector  PGVectorConfig  `mapstructure:"pgvector" yaml:"pgvector"`
}

type SQLiteVecConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

type ChromemConfig struct {
	Path       string `mapstructure:"path" yaml:"path"`
	Compress   bool   `mapstructure:"compress" yaml:"compress"`
	Collection string `mapstructure:"collection" yaml:"collection"`
}

type QdrantConfig struct {
	URL        string `mapstructure:"url" yaml:"url"`
	Collection string `mapstructure:"collection" yaml:"collection"`
	APIKey     string `mapstructure:"api_key" yaml:"api_key"`
}

type MilvusConfig struct {
	URI        string `mapstructure:"uri" yaml:"uri"`
	Collection string `mapstructure:"collection" yaml:"collection"`
	Username   string `mapstructure:"username" yaml:"username"`
	Password   string `mapstructure:"password" yaml:"password"`
}

type PGVectorConfig struct {
	DSN   string `mapstructure:"dsn" yaml:"dsn"`
	Table string `mapstructure:"table" yaml:"table"`
}

// SearchConfig tunes the orchestrator.
type SearchConfig struct {
	DefaultLimit      int           `mapstructure:"default_limit" yaml:"default_limit"`
	MaxLimit          int           `mapstructure:"max_limit" yaml:"max_limit"`
	CategoryOverfetch int           `mapstructure:"category_overfetch" yaml:"category_overfetch"`
	BackendTimeout    time.Duration `mapstructure:"backend_timeout" yaml:"backend_timeout"`
}

var defaults = map[string]any{
	"networking.listen":           "127.0.0.1:18790",
	"networking.cors_origins":     []string{},
	"networking.rate_limit_rps":   0.0,
	"networking.rate_limit_burst": 0,

	"logging.level":  "info",
	"logging.format": "text",

	"embedding.provider":   embedding.DefaultProvider,
	"embedding.api_key":    "",
	"embedding.model":      "",
	"embedding.dimensions": 0,
	"embedding.base_url":   "",
	"embedding.timeout":    embedding.DefaultTimeout,
	"embedding.cache.size": 0,
	"embedding.cache.ttl":  embedding.DefaultCacheTTL,

	"vector.provider":           vector.DefaultProvider,
	"vector.timeout":            vector.DefaultTimeout,
	"vector.sqlite_vec.path":    "",
	"vector.chromem.path":       "",
	"vector.chromem.compress":   false,
	"vector.chromem.collection": "",
	"vector.qdrant.url":         "",
	"vector.qdrant.collection":  "",
	"vector.qdrant.api_key":     "",
	"vector.milvus.uri":         "",
	"vector.milvus.collection":  "",
	"vector.milvus.username":    "",
	"vector.milvus.password":    "",
	"vector.pgvector.dsn":       "",
	"vector.pgvector.table":     "",

	"search.default_limit":      search.DefaultLimit,
	"search.max_limit":          search.DefaultMaxLimit,
	"search.category_overfetch": search.DefaultCategoryOverfetch,
	"search.backend_timeout":    search.DefaultBackendTimeout,

	"data_dir": "~/.local/share/mnemo",
}

// Default returns the built-in defaults without consulting files or the
// environment.
func Default() *Config {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	var cfg Config
	// Defaults are static and always decode.
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// Load reads configuration from path, or from mnemo.yaml in the working
// directory or ~/.config/mnemo when path is empty, with MNEMO_ environment
// overrides. keyring:// values are resolved from the OS keyring.
func Load(path string) (*Config, error) {
	return LoadWithStore(path, secrets.NewKeyringStore())
}

// LoadWithStore is Load with an explicit secret store.
func LoadWithStore(path string, store secrets.Store) (*Config, error) {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}

	v.SetEnvPrefix("MNEMO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, sigilerr.Errorf(sigilerr.CodeConfigLoadReadFailure, "reading config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("mnemo")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if dir, err := DefaultConfigDir(); err == nil {
			v.AddConfigPath(dir)
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, sigilerr.Errorf(sigilerr.CodeConfigParseInvalidFormat, "reading config: %w", err)
			}
		}
	}

	if store != nil {
		secrets.ResolveViper(v, store)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, sigilerr.Errorf(sigilerr.CodeConfigParseInvalidFormat, "unmarshalling config: %w", err)
	}
	cfg.file = v.ConfigFileUsed()
	cfg.DataDir = expandHome(cfg.DataDir)

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, sigilerr.Errorf(sigilerr.CodeConfigValidateInvalidValue, "validating config: %w", errors.Join(errs...))
	}
	return &cfg, nil
}

// File returns the config file that was read, or "" when only defaults
// and environment were used.
func (c *Config) File() string { return c.file }

// DefaultConfigDir returns ~/.config/mnemo.
func DefaultConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", sigilerr.Errorf(sigilerr.CodeConfigLoadReadFailure, "resolving home directory: %w", err)
	}
	return filepath.Join(home, ".config", "mnemo"), nil
}

func expandHome(p string) string {
	rest, ok := strings.CutPrefix(p, "~")
	if !ok || (rest != "" && rest[0] != '/' && rest[0] != filepath.Separator) {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, rest)
}

// EmbeddingProviders lists the provider names Validate accepts.
var EmbeddingProviders = []string{"openai", "google", "ollama"}

// Validate checks the configuration for logical errors. It returns every
// problem found rather than stopping at the first.
func (c *Config) Validate() []error {
	var errs []error
	errs = append(errs, c.validateNetworking()...)
	errs = append(errs, c.validateLogging()...)
	errs = append(errs, c.validateEmbedding()...)
	errs = append(errs, c.validateVector()...)
	errs = append(errs, c.validateSearch()...)
	errs = append(errs, c.validateSecrets()...)
	return errs
}

func invalid(format string, args ...any) error {
	return sigilerr.Errorf(sigilerr.CodeConfigValidateInvalidValue, "config: "+format, args...)
}

func (c *Config) validateNetworking() []error {
	var errs []error

	_, portStr, err := net.SplitHostPort(c.Networking.Listen)
	if err != nil {
		errs = append(errs, invalid("networking.listen must be a host:port address, got %q", c.Networking.Listen))
	} else if port, err := strconv.Atoi(portStr); err != nil || port < 1 || port > 65535 {
		errs = append(errs, invalid("networking.listen port must be between 1 and 65535, got %q", portStr))
	}

	if c.Networking.RateLimitRPS < 0 {
		errs = append(errs, invalid("networking.rate_limit_rps must not be negative, got %g", c.Networking.RateLimitRPS))
	}
	if c.Networking.RateLimitBurst < 0 {
		errs = append(errs, invalid("networking.rate_limit_burst must not be negative, got %d", c.Networking.RateLimitBurst))
	} else if c.Networking.RateLimitRPS > 0 && c.Networking.RateLimitBurst == 0 {
		errs = append(errs, invalid("networking.rate_limit_burst must be set when rate_limit_rps is"))
	}
	return errs
}

func (c *Config) validateLogging() []error {
	var errs []error
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, invalid("logging.level must be one of [debug, info, warn, error], got %q", c.Logging.Level))
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		errs = append(errs, invalid("logging.format must be one of [text, json], got %q", c.Logging.Format))
	}
	return errs
}

func (c *Config) validateEmbedding() []error {
	var errs []error
	e := c.Embedding

	known := false
	for _, p := range EmbeddingProviders {
		if strings.EqualFold(strings.TrimSpace(e.Provider), p) {
			known = true
		}
	}
	if !known {
		errs = append(errs, invalid("embedding.provider must be one of %v, got %q", EmbeddingProviders, e.Provider))
	}
	if e.Dimensions < 0 {
		errs = append(errs, invalid("embedding.dimensions must not be negative, got %d", e.Dimensions))
	}
	if e.Timeout <= 0 {
		errs = append(errs, invalid("embedding.timeout must be greater than 0, got %s", e.Timeout))
	}
	if e.Cache.Size < 0 {
		errs = append(errs, invalid("embedding.cache.size must not be negative, got %d", e.Cache.Size))
	}
	return errs
}

// validateVector leaves unknown providers alone: the factory falls back to
// sqlite-vec for them. Missing remote sub-config is reported by the
// factory as well, so it surfaces from both the CLI and the server.
func (c *Config) validateVector() []error {
	var errs []error
	if c.Vector.Timeout <= 0 {
		errs = append(errs, invalid("vector.timeout must be greater than 0, got %s", c.Vector.Timeout))
	}
	return errs
}

func (c *Config) validateSearch() []error {
	var errs []error
	s := c.Search
	if s.DefaultLimit <= 0 {
		errs = append(errs, invalid("search.default_limit must be greater than 0, got %d", s.DefaultLimit))
	}
	if s.MaxLimit < s.DefaultLimit {
		errs = append(errs, invalid("search.max_limit must be at least search.default_limit (%d), got %d", s.DefaultLimit, s.MaxLimit))
	}
	if s.CategoryOverfetch < 1 {
		errs = append(errs, invalid("search.category_overfetch must be at least 1, got %d", s.CategoryOverfetch))
	}
	if s.BackendTimeout <= 0 {
		errs = append(errs, invalid("search.backend_timeout must be greater than 0, got %s", s.BackendTimeout))
	}
	return errs
}

// validateSecrets rejects keyring references that could not be resolved.
func (c *Config) validateSecrets() []error {
	var errs []error
	for key, val := range c.secretFields() {
		if secrets.IsRef(*val) {
			errs = append(errs, invalid("%s: keyring reference %q could not be resolved", key, *val))
		}
	}
	return errs
}

func (c *Config) secretFields() map[string]*string {
	return map[string]*string{
		"embedding.api_key":      &c.Embedding.APIKey,
		"vector.qdrant.api_key":  &c.Vector.Qdrant.APIKey,
		"vector.milvus.password": &c.Vector.Milvus.Password,
		"vector.pgvector.dsn":    &c.Vector.PGVector.DSN,
	}
}

// EmbeddingConfig converts to the provider registry's config.
func (c *Config) EmbeddingConfig() embedding.Config {
	e := c.Embedding
	return embedding.Config{
		Provider:   e.Provider,
		APIKey:     e.APIKey,
		Model:      e.Model,
		Dimensions: e.Dimensions,
		BaseURL:    e.BaseURL,
		Timeout:    e.Timeout,
		CacheSize:  e.Cache.Size,
		CacheTTL:   e.Cache.TTL,
	}
}

// VectorConfig converts to the backend factory's config. A remote
// sub-config is only passed on when at least one of its fields is set.
func (c *Config) VectorConfig() vector.Config {
	v := c.Vector
	out := vector.Config{
		Provider: v.Provider,
		Timeout:  v.Timeout,
		SQLiteVec: &vector.SQLiteVecConfig{
			Path: v.SQLiteVec.Path,
		},
		Chromem: &vector.ChromemConfig{
			Path:       v.Chromem.Path,
			Compress:   v.Chromem.Compress,
			Collection: v.Chromem.Collection,
		},
	}
	if out.SQLiteVec.Path == "" && c.DataDir != "" {
		out.SQLiteVec.Path = filepath.Join(c.DataDir, vector.DefaultSQLitePath)
	}
	if q := v.Qdrant; q != (QdrantConfig{}) {
		out.Qdrant = &vector.QdrantConfig{URL: q.URL, Collection: q.Collection, APIKey: q.APIKey}
	}
	if m := v.Milvus; m != (MilvusConfig{}) {
		out.Milvus = &vector.MilvusConfig{URI: m.URI, Collection: m.Collection, Username: m.Username, Password: m.Password}
	}
	if p := v.PGVector; p != (PGVectorConfig{}) {
		out.PGVector = &vector.PGVectorConfig{DSN: p.DSN, Table: p.Table}
	}
	return out
}

// SearchConfig converts to the orchestrator's config.
func (c *Config) SearchConfig() search.Config {
	return search.Config{
		DefaultLimit:      c.Search.DefaultLimit,
		MaxLimit:          c.Search.MaxLimit,
		CategoryOverfetch: c.Search.CategoryOverfetch,
		BackendTimeout:    c.Search.BackendTimeout,
	}
}
