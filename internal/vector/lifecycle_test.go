// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package vector_test

import (
	"errors"
	"sync"
	"testing"

	"github.com/sigil-dev/mnemo/internal/vector"
	sigilerr "github.com/sigil-dev/mnemo/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLifecycle_NotReadyBeforeInitialize(t *testing.T) {
	l := vector.NewLifecycle("test")
	_, err := l.Ready()
	require.Error(t, err)
	assert.True(t, sigilerr.HasCode(err, sigilerr.CodeVectorLifecycleNotReady))
}

func TestLifecycle_BeginIsIdempotent(t *testing.T) {
	l := vector.NewLifecycle("test")
	calls := 0
	init := func() error { calls++; return nil }

	require.NoError(t, l.Begin(3, init))
	require.NoError(t, l.Begin(3, init))
	assert.Equal(t, 1, calls)

	dims, err := l.Ready()
	require.NoError(t, err)
	assert.Equal(t, 3, dims)
}

func TestLifecycle_DimensionMismatch(t *testing.T) {
	l := vector.NewLifecycle("test")
	require.NoError(t, l.Begin(3, func() error { return nil }))

	err := l.Begin(4, func() error { return nil })
	require.Error(t, err)
	assert.True(t, sigilerr.IsConfigError(err))
	assert.Equal(t, 3, sigilerr.FieldsOf(err)["existing_dimensions"])
}

func TestLifecycle_InvalidDimensions(t *testing.T) {
	l := vector.NewLifecycle("test")
	err := l.Begin(0, func() error { return nil })
	require.Error(t, err)
	assert.True(t, sigilerr.HasCode(err, sigilerr.CodeVectorConfigInvalid))
}

func TestLifecycle_FailedInitCanBeRetried(t *testing.T) {
	l := vector.NewLifecycle("test")
	require.Error(t, l.Begin(3, func() error { return errors.New("boom") }))
	_, err := l.Ready()
	assert.True(t, sigilerr.IsLifecycleError(err))

	require.NoError(t, l.Begin(3, func() error { return nil }))
}

func TestLifecycle_Close(t *testing.T) {
	l := vector.NewLifecycle("test")
	require.NoError(t, l.Begin(3, func() error { return nil }))

	assert.True(t, l.Close())
	assert.False(t, l.Close(), "second close reports already closed")
	assert.True(t, l.Closed())

	_, err := l.Ready()
	assert.True(t, sigilerr.HasCode(err, sigilerr.CodeVectorLifecycleClosed))

	err = l.Begin(3, func() error { return nil })
	assert.True(t, sigilerr.HasCode(err, sigilerr.CodeVectorLifecycleClosed))
}

func TestLifecycle_ConcurrentBegin(t *testing.T) {
	l := vector.NewLifecycle("test")
	var mu sync.Mutex
	calls := 0

	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = l.Begin(8, func() error {
				mu.Lock()
				calls++
				mu.Unlock()
				return nil
			})
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, calls)
}
