// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package embedding defines the text embedding contract and its registry.
// Concrete providers live in subpackages and register themselves in init.
package embedding

import (
	"context"
	"errors"
	"time"

	sigilerr "github.com/sigil-dev/mnemo/pkg/errors"
)

// Provider turns text into fixed-length vectors. Implementations must be
// safe for concurrent use.
type Provider interface {
	// Embed returns the vector for a single text. It is equivalent to
	// EmbedBatch with one element.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch returns one vector per input, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions is the length of every returned vector.
	Dimensions() int

	Name() string
	Model() string
}

// Embed implements Provider.Embed in terms of EmbedBatch.
func Embed(ctx context.Context, p Provider, text string) ([]float32, error) {
	out, err := p.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// MissingCredential is returned by providers that were built without an
// API key. No network call is made.
func MissingCredential(provider string) error {
	return sigilerr.New(sigilerr.CodeEmbeddingConfigInvalid, provider+": missing api_key in config",
		sigilerr.FieldProvider(provider))
}

// ValidateInput rejects empty batches.
func ValidateInput(provider string, texts []string) error {
	if len(texts) == 0 {
		return sigilerr.New(sigilerr.CodeEmbeddingRequestInvalid, "no input texts", sigilerr.FieldProvider(provider))
	}
	return nil
}

// CheckVectors verifies the response shape: one vector per input, each of
// the declared length.
func CheckVectors(provider string, want, dims int, vectors [][]float32) error {
	if len(vectors) != want {
		return sigilerr.New(sigilerr.CodeEmbeddingResponseInvalid, "embedding count does not match input count",
			sigilerr.FieldProvider(provider),
			sigilerr.Field("inputs", want),
			sigilerr.Field("embeddings", len(vectors)),
		)
	}
	for i, v := range vectors {
		if len(v) != dims {
			return sigilerr.New(sigilerr.CodeEmbeddingResponseInvalid, "embedding has unexpected length",
				sigilerr.FieldProvider(provider),
				sigilerr.Field("index", i),
				sigilerr.Field("dimensions", dims),
				sigilerr.Field("length", len(v)),
			)
		}
	}
	return nil
}

// maxBodyLen bounds the response body kept on upstream errors.
const maxBodyLen = 2048

// UpstreamError reports a non-success response from the remote service.
func UpstreamError(err error, provider string, status int, body string) error {
	if len(body) > maxBodyLen {
		body = body[:maxBodyLen]
	}
	fields := []sigilerr.Attr{
		sigilerr.FieldProvider(provider),
		sigilerr.FieldStatus(status),
		sigilerr.FieldBody(body),
	}
	if err == nil {
		return sigilerr.New(sigilerr.CodeEmbeddingUpstreamFailure, provider+": embedding request failed", fields...)
	}
	return sigilerr.Wrap(err, sigilerr.CodeEmbeddingUpstreamFailure, provider+": embedding request failed", fields...)
}

// TransportError classifies a failure that produced no response.
func TransportError(err error, provider string, timeout time.Duration) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return sigilerr.Wrap(err, sigilerr.CodeEmbeddingRequestTimeout, provider+": embedding request timed out",
			sigilerr.FieldProvider(provider), sigilerr.Field("timeout", timeout.String()))
	}
	return sigilerr.Wrap(err, sigilerr.CodeEmbeddingUpstreamFailure, provider+": embedding request failed",
		sigilerr.FieldProvider(provider))
}

// ToFloat32 narrows float64 vectors as returned by JSON APIs.
func ToFloat32(in []float64) []float32 {
	out := make([]float32, len(in))
	for i, v := range in {
		out[i] = float32(v)
	}
	return out
}
