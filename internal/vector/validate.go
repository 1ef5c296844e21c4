// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package vector

import (
	"cmp"
	"context"
	"errors"
	"slices"

	sigilerr "github.com/sigil-dev/mnemo/pkg/errors"
)

// ValidateUpsert checks an upsert's id and embedding length.
func ValidateUpsert(backend string, dims int, id string, embedding []float32) error {
	if id == "" {
		return sigilerr.New(sigilerr.CodeVectorUpsertInvalid, "record id must not be empty",
			sigilerr.FieldBackend(backend))
	}
	if len(embedding) != dims {
		return sigilerr.New(sigilerr.CodeVectorUpsertInvalid, "embedding length does not match index dimensions",
			sigilerr.FieldBackend(backend),
			sigilerr.Field("id", id),
			sigilerr.Field("dimensions", dims),
			sigilerr.Field("length", len(embedding)))
	}
	return nil
}

// ValidateSearch checks a query vector's length and topK.
func ValidateSearch(backend string, dims int, query []float32, topK int) error {
	if topK <= 0 {
		return sigilerr.New(sigilerr.CodeVectorSearchInvalid, "topK must be positive",
			sigilerr.FieldBackend(backend), sigilerr.Field("top_k", topK))
	}
	if len(query) != dims {
		return sigilerr.New(sigilerr.CodeVectorSearchInvalid, "query length does not match index dimensions",
			sigilerr.FieldBackend(backend),
			sigilerr.Field("dimensions", dims),
			sigilerr.Field("length", len(query)))
	}
	return nil
}

// SortResults orders results by ascending distance, then by id.
func SortResults(results []Result) {
	slices.SortStableFunc(results, func(a, b Result) int {
		if c := cmp.Compare(a.Distance, b.Distance); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}

// TopK sorts results and truncates them to k.
func TopK(results []Result, k int) []Result {
	SortResults(results)
	if len(results) > k {
		results = results[:k]
	}
	return results
}

// BackendError classifies a failure from the underlying store. Deadline
// expiry becomes a timeout; everything else is a backend failure.
func BackendError(err error, backend, op string) error {
	if err == nil {
		return nil
	}
	if sigilerr.CodeOf(err) != "" {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return TimeoutError(err, backend, op)
	}
	return sigilerr.Wrap(err, sigilerr.CodeVectorBackendFailure, backend+": "+op,
		sigilerr.FieldBackend(backend))
}

// TimeoutError reports a backend call that exceeded its deadline.
func TimeoutError(err error, backend, op string) error {
	return sigilerr.Wrap(err, sigilerr.CodeVectorBackendTimeout, backend+": "+op+" timed out",
		sigilerr.FieldBackend(backend))
}
