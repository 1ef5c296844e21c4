// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package vector_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/sigil-dev/mnemo/internal/vector"
	sigilerr "github.com/sigil-dev/mnemo/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateUpsert(t *testing.T) {
	require.NoError(t, vector.ValidateUpsert("b", 3, "id", []float32{1, 2, 3}))

	err := vector.ValidateUpsert("b", 3, "", []float32{1, 2, 3})
	assert.True(t, sigilerr.IsInvalidInput(err))

	err = vector.ValidateUpsert("b", 3, "id", []float32{1, 2})
	assert.True(t, sigilerr.HasCode(err, sigilerr.CodeVectorUpsertInvalid))
	assert.Equal(t, 2, sigilerr.FieldsOf(err)["length"])
}

func TestValidateSearch(t *testing.T) {
	require.NoError(t, vector.ValidateSearch("b", 2, []float32{1, 0}, 1))
	assert.True(t, sigilerr.HasCode(vector.ValidateSearch("b", 2, []float32{1, 0}, 0), sigilerr.CodeVectorSearchInvalid))
	assert.True(t, sigilerr.HasCode(vector.ValidateSearch("b", 2, []float32{1}, 5), sigilerr.CodeVectorSearchInvalid))
}

func TestTopK_OrdersByDistanceThenID(t *testing.T) {
	results := []vector.Result{
		{ID: "c", Distance: 0.5},
		{ID: "b", Distance: 0.1},
		{ID: "a", Distance: 0.5},
		{ID: "d", Distance: 0.9},
	}

	got := vector.TopK(results, 3)
	require.Len(t, got, 3)
	assert.Equal(t, "b", got[0].ID)
	assert.Equal(t, "a", got[1].ID)
	assert.Equal(t, "c", got[2].ID)
}

func TestBackendError(t *testing.T) {
	assert.NoError(t, vector.BackendError(nil, "b", "op"))

	err := vector.BackendError(errors.New("conn reset"), "qdrant", "search")
	assert.True(t, sigilerr.HasCode(err, sigilerr.CodeVectorBackendFailure))
	assert.Equal(t, "qdrant", sigilerr.FieldsOf(err)["backend"])

	err = vector.BackendError(fmt.Errorf("query: %w", context.DeadlineExceeded), "pgvector", "search")
	assert.True(t, sigilerr.IsTimeout(err))

	coded := sigilerr.New(sigilerr.CodeVectorUpsertInvalid, "bad")
	assert.Same(t, coded, vector.BackendError(coded, "b", "op"))
}
