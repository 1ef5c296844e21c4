// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/sigil-dev/mnemo/internal/search"
	sigilerr "github.com/sigil-dev/mnemo/pkg/errors"
)

func (s *Server) registerRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
		Tags:        []string{"system"},
	}, s.handleHealth)

	huma.Register(s.api, huma.Operation{
		OperationID: "search-memories",
		Method:      http.MethodPost,
		Path:        "/api/v1/search",
		Summary:     "Semantic search over indexed memories",
		Tags:        []string{"search"},
	}, s.handleSearch)

	huma.Register(s.api, huma.Operation{
		OperationID:   "index-memories",
		Method:        http.MethodPost,
		Path:          "/api/v1/memories",
		Summary:       "Embed and index memories",
		Tags:          []string{"memories"},
		DefaultStatus: http.StatusCreated,
	}, s.handleIndex)

	huma.Register(s.api, huma.Operation{
		OperationID:   "forget-memories",
		Method:        http.MethodDelete,
		Path:          "/api/v1/memories",
		Summary:       "Remove memories from the index",
		Tags:          []string{"memories"},
		DefaultStatus: http.StatusNoContent,
	}, s.handleForget)

	huma.Register(s.api, huma.Operation{
		OperationID: "index-stats",
		Method:      http.MethodGet,
		Path:        "/api/v1/stats",
		Summary:     "Index statistics",
		Tags:        []string{"system"},
	}, s.handleStats)
}

type healthOutput struct {
	Body struct {
		Status string `json:"status" example:"ok" doc:"Health status"`
	}
}

func (s *Server) handleHealth(_ context.Context, _ *struct{}) (*healthOutput, error) {
	out := &healthOutput{}
	out.Body.Status = "ok"
	return out, nil
}

type searchInput struct {
	Body struct {
		Query      string   `json:"query,omitempty" doc:"Natural-language query"`
		Layers     []string `json:"layers,omitempty" doc:"Restrict to these memory layers"`
		Categories []string `json:"categories,omitempty" doc:"Restrict to these categories"`
		AgentID    string   `json:"agent_id,omitempty" doc:"Restrict to one agent"`
		Limit      *int     `json:"limit,omitempty" doc:"Maximum results; defaults to 10, capped at 100"`
		Debug      bool     `json:"debug,omitempty" doc:"Include execution details"`
	}
}

type searchOutput struct {
	Body *search.Response
}

func (s *Server) handleSearch(ctx context.Context, in *searchInput) (*searchOutput, error) {
	resp, err := s.svc.Search(ctx, search.Request{
		Query:      in.Body.Query,
		Layers:     in.Body.Layers,
		Categories: in.Body.Categories,
		AgentID:    in.Body.AgentID,
		Limit:      in.Body.Limit,
		Debug:      in.Body.Debug,
	})
	if err != nil {
		return nil, s.apiError(ctx, "search", err)
	}
	if resp.Results == nil {
		resp.Results = []search.Result{}
	}
	return &searchOutput{Body: resp}, nil
}

type indexInput struct {
	Body struct {
		Memories []search.Document `json:"memories" minItems:"1" maxItems:"256" doc:"Memories to embed and index"`
	}
}

type indexOutput struct {
	Body struct {
		Indexed int `json:"indexed"`
	}
}

func (s *Server) handleIndex(ctx context.Context, in *indexInput) (*indexOutput, error) {
	if err := s.svc.IndexBatch(ctx, in.Body.Memories); err != nil {
		return nil, s.apiError(ctx, "index", err)
	}
	out := &indexOutput{}
	out.Body.Indexed = len(in.Body.Memories)
	return out, nil
}

type forgetInput struct {
	Body struct {
		IDs []string `json:"ids" minItems:"1" doc:"Memory ids to remove; unknown ids are ignored"`
	}
}

func (s *Server) handleForget(ctx context.Context, in *forgetInput) (*struct{}, error) {
	if err := s.svc.Forget(ctx, in.Body.IDs); err != nil {
		return nil, s.apiError(ctx, "forget", err)
	}
	return nil, nil
}

type statsOutput struct {
	Body *search.Stats
}

func (s *Server) handleStats(ctx context.Context, _ *struct{}) (*statsOutput, error) {
	st, err := s.svc.Stats(ctx)
	if err != nil {
		return nil, s.apiError(ctx, "stats", err)
	}
	return &statsOutput{Body: st}, nil
}

// apiError maps a coded error onto an HTTP problem response. Server-side
// failures are logged; the machine code is returned to the client.
func (s *Server) apiError(ctx context.Context, op string, err error) error {
	status := sigilerr.HTTPStatus(err)
	code := string(sigilerr.CodeOf(err))
	if status >= http.StatusInternalServerError {
		s.log.ErrorContext(ctx, "request failed", "op", op, "status", status, "code", code, "error", err)
	}
	return huma.NewError(status, err.Error(), &huma.ErrorDetail{
		Message:  "error code",
		Location: "code",
		Value:    code,
	})
}
