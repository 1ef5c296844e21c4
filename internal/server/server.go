// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package server exposes the search orchestrator over HTTP.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/sigil-dev/mnemo/internal/search"
	sigilerr "github.com/sigil-dev/mnemo/pkg/errors"
)

// Version is reported in the OpenAPI document.
var Version = "dev"

// Searcher is the subset of *search.Service the HTTP API needs.
type Searcher interface {
	Search(ctx context.Context, req search.Request) (*search.Response, error)
	IndexBatch(ctx context.Context, docs []search.Document) error
	Forget(ctx context.Context, ids []string) error
	Stats(ctx context.Context) (*search.Stats, error)
}

// Config holds HTTP server configuration.
type Config struct {
	ListenAddr   string
	CORSOrigins  []string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	RateLimit    RateLimitConfig
	Logger       *slog.Logger
}

// Server serves the mnemo REST API.
type Server struct {
	router  chi.Router
	api     huma.API
	cfg     Config
	svc     Searcher
	log     *slog.Logger
	handler http.Handler

	done      chan struct{}
	closeOnce sync.Once
}

// New builds the router, registers every route and wraps the result in
// OpenTelemetry HTTP instrumentation.
func New(cfg Config, svc Searcher) (*Server, error) {
	if cfg.ListenAddr == "" {
		return nil, sigilerr.New(sigilerr.CodeServerConfigInvalid, "listen address is required")
	}
	if svc == nil {
		return nil, sigilerr.New(sigilerr.CodeServerConfigInvalid, "search service is required")
	}
	if err := cfg.RateLimit.Validate(); err != nil {
		return nil, err
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 60 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	s := &Server{
		cfg:  cfg,
		svc:  svc,
		log:  cfg.Logger,
		done: make(chan struct{}),
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(corsMiddleware(cfg.CORSOrigins))
	r.Use(s.rateLimitMiddleware(cfg.RateLimit, s.done))

	humaConfig := huma.DefaultConfig("mnemo", Version)
	humaConfig.Info.Description = "Semantic memory retrieval API"
	s.api = humachi.New(r, humaConfig)
	s.router = r

	s.registerRoutes()
	s.handler = otelhttp.NewHandler(r, "mnemo",
		otelhttp.WithSpanNameFormatter(func(_ string, req *http.Request) string {
			return req.Method + " " + req.URL.Path
		}),
	)
	return s, nil
}

// Handler returns the instrumented http.Handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// API returns the huma API.
func (s *Server) API() huma.API {
	return s.api
}

// Close stops background goroutines. It does not close the backend.
func (s *Server) Close() error {
	s.closeOnce.Do(func() { close(s.done) })
	return nil
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return sigilerr.Wrapf(err, sigilerr.CodeServerStartFailure, "listening on %s", s.cfg.ListenAddr)
	}
	return s.Serve(ctx, ln)
}

// Serve is Start on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	defer func() { _ = s.Close() }()

	srv := &http.Server{
		Handler:      s.handler,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	s.log.Info("http server listening", "addr", ln.Addr().String())

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return sigilerr.Wrap(err, sigilerr.CodeServerStartFailure, "serving http")
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return sigilerr.Wrap(err, sigilerr.CodeServerShutdownFailure, "shutting down")
	}
	return <-errCh
}

func corsMiddleware(origins []string) func(http.Handler) http.Handler {
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173"}
	}
	return cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	})
}
