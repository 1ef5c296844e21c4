// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package errors_test

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	sigilerr "github.com/sigil-dev/mnemo/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---------------------------------------------------------------------------
// New / Errorf
// ---------------------------------------------------------------------------

func TestNewIncludesCodeAndFields(t *testing.T) {
	err := sigilerr.New(
		sigilerr.CodeEmbeddingUpstreamFailure,
		"embedding request rejected",
		sigilerr.FieldStatus(429),
		sigilerr.FieldProvider("openai"),
	)

	require.Error(t, err)
	assert.Equal(t, sigilerr.CodeEmbeddingUpstreamFailure, sigilerr.CodeOf(err))
	assert.True(t, sigilerr.HasCode(err, sigilerr.CodeEmbeddingUpstreamFailure))

	fields := sigilerr.FieldsOf(err)
	assert.Equal(t, 429, fields["status"])
	assert.Equal(t, "openai", fields["provider"])
}

func TestErrorfWrapsInnerError(t *testing.T) {
	inner := stderrors.New("disk full")
	err := sigilerr.Errorf(sigilerr.CodeVectorBackendFailure, "write failed: %w", inner)
	require.Error(t, err)
	assert.ErrorIs(t, err, inner)
	assert.Equal(t, sigilerr.CodeVectorBackendFailure, sigilerr.CodeOf(err))
	assert.Contains(t, err.Error(), "write failed")
}

// ---------------------------------------------------------------------------
// Wrap / With
// ---------------------------------------------------------------------------

func TestWrapPreservesWrappedErrorAndCode(t *testing.T) {
	root := stderrors.New("connection refused")
	err := sigilerr.Wrap(root, sigilerr.CodeVectorBackendFailure, "searching points",
		sigilerr.FieldBackend("qdrant"),
	)

	require.Error(t, err)
	assert.ErrorIs(t, err, root)
	assert.True(t, sigilerr.IsUpstreamFailure(err))
	assert.Equal(t, "qdrant", sigilerr.FieldsOf(err)["backend"])
}

func TestWrapNilReturnsNil(t *testing.T) {
	assert.NoError(t, sigilerr.Wrap(nil, sigilerr.CodeServerInternalFailure, "ignored"))
	assert.NoError(t, sigilerr.Wrapf(nil, sigilerr.CodeServerInternalFailure, "ignored %s", "arg"))
	assert.NoError(t, sigilerr.With(nil, sigilerr.FieldBackend("x")))
}

func TestWithAddsContextWithoutChangingCode(t *testing.T) {
	base := sigilerr.New(sigilerr.CodeVectorLifecycleClosed, "backend closed")
	withCtx := sigilerr.With(base, sigilerr.FieldBackend("sqlite-vec"))

	assert.Equal(t, sigilerr.CodeVectorLifecycleClosed, sigilerr.CodeOf(withCtx))
	assert.Equal(t, "sqlite-vec", sigilerr.FieldsOf(withCtx)["backend"])
}

func TestWithOnPlainErrorDefaultsToInternalCode(t *testing.T) {
	enriched := sigilerr.With(stderrors.New("something broke"), sigilerr.FieldModel("m"))
	assert.Equal(t, sigilerr.CodeServerInternalFailure, sigilerr.CodeOf(enriched))
}

func TestCodeOfReturnsInnermostCodedError(t *testing.T) {
	inner := sigilerr.New(sigilerr.CodeEmbeddingConfigInvalid, "missing api key")
	outer := sigilerr.Wrap(inner, sigilerr.CodeServerInternalFailure, "handler")
	assert.Equal(t, sigilerr.CodeEmbeddingConfigInvalid, sigilerr.CodeOf(outer))
}

func TestCodeOfNilAndPlain(t *testing.T) {
	assert.Equal(t, sigilerr.Code(""), sigilerr.CodeOf(nil))
	assert.Equal(t, sigilerr.Code(""), sigilerr.CodeOf(stderrors.New("plain")))
	assert.Nil(t, sigilerr.FieldsOf(nil))
	assert.Nil(t, sigilerr.FieldsOf(stderrors.New("plain")))
}

func TestFieldsWithEmptyKeyAreIgnored(t *testing.T) {
	err := sigilerr.New(sigilerr.CodeVectorBackendFailure, "oops",
		sigilerr.Field("", "should-be-dropped"),
		sigilerr.FieldBody("kept"),
	)
	fields := sigilerr.FieldsOf(err)
	assert.Equal(t, "kept", fields["body"])
	assert.NotContains(t, fields, "")
}

func TestErrorIsWithWrappedChain(t *testing.T) {
	sentinel := stderrors.New("root cause")
	mid := fmt.Errorf("mid: %w", sentinel)
	outer := sigilerr.Wrap(mid, sigilerr.CodeServerInternalFailure, "handler")

	assert.ErrorIs(t, outer, sentinel)
}

// ---------------------------------------------------------------------------
// Classification helpers
// ---------------------------------------------------------------------------

func TestClassificationAndStatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		code   sigilerr.Code
		status int
		check  func(error) bool
	}{
		{name: "search invalid", code: sigilerr.CodeSearchRequestInvalid, status: 400, check: sigilerr.IsInvalidInput},
		{name: "upsert invalid", code: sigilerr.CodeVectorUpsertInvalid, status: 400, check: sigilerr.IsInvalidInput},
		{name: "embedding config", code: sigilerr.CodeEmbeddingConfigInvalid, status: 500, check: sigilerr.IsConfigError},
		{name: "vector config", code: sigilerr.CodeVectorConfigInvalid, status: 500, check: sigilerr.IsConfigError},
		{name: "dimension mismatch", code: sigilerr.CodeVectorDimensionsMismatch, status: 500, check: sigilerr.IsConfigError},
		{name: "config validate", code: sigilerr.CodeConfigValidateInvalidValue, status: 500, check: sigilerr.IsConfigError},
		{name: "embedding timeout", code: sigilerr.CodeEmbeddingRequestTimeout, status: 504, check: sigilerr.IsTimeout},
		{name: "backend timeout", code: sigilerr.CodeVectorBackendTimeout, status: 504, check: sigilerr.IsTimeout},
		{name: "embedding upstream", code: sigilerr.CodeEmbeddingUpstreamFailure, status: 502, check: sigilerr.IsUpstreamFailure},
		{name: "backend failure", code: sigilerr.CodeVectorBackendFailure, status: 502, check: sigilerr.IsUpstreamFailure},
		{name: "closed", code: sigilerr.CodeVectorLifecycleClosed, status: 503, check: sigilerr.IsLifecycleError},
		{name: "not initialized", code: sigilerr.CodeVectorLifecycleNotReady, status: 503, check: sigilerr.IsLifecycleError},
		{name: "rate limited", code: sigilerr.CodeServerRateLimited, status: 429, check: sigilerr.IsRateLimited},
		{name: "secret not found", code: sigilerr.CodeSecretNotFound, status: 404, check: sigilerr.IsNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := sigilerr.New(tt.code, "boom")
			assert.Equal(t, tt.status, sigilerr.HTTPStatus(err))
			assert.True(t, tt.check(err))
		})
	}
}

func TestClassificationNegativeCases(t *testing.T) {
	err := sigilerr.New(sigilerr.CodeServerInternalFailure, "internal")
	assert.False(t, sigilerr.IsNotFound(err))
	assert.False(t, sigilerr.IsInvalidInput(err))
	assert.False(t, sigilerr.IsConfigError(err))
	assert.False(t, sigilerr.IsLifecycleError(err))
	assert.False(t, sigilerr.IsTimeout(err))
	assert.False(t, sigilerr.IsUpstreamFailure(err))
}

func TestClassificationOnNilAndPlainError(t *testing.T) {
	for _, err := range []error{nil, stderrors.New("plain")} {
		assert.False(t, sigilerr.IsNotFound(err))
		assert.False(t, sigilerr.IsInvalidInput(err))
		assert.False(t, sigilerr.IsConfigError(err))
		assert.False(t, sigilerr.IsLifecycleError(err))
		assert.False(t, sigilerr.IsTimeout(err))
		assert.False(t, sigilerr.IsUpstreamFailure(err))
		assert.Equal(t, http.StatusInternalServerError, sigilerr.HTTPStatus(err))
	}
}

func TestJoinCombinesErrors(t *testing.T) {
	a := stderrors.New("first")
	b := stderrors.New("second")
	joined := sigilerr.Join(a, b)

	require.Error(t, joined)
	assert.ErrorIs(t, joined, a)
	assert.ErrorIs(t, joined, b)
	assert.Equal(t, sigilerr.CodeServerInternalFailure, sigilerr.CodeOf(joined))
}
