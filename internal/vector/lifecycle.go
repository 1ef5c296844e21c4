// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package vector

import (
	"sync"
	"sync/atomic"

	sigilerr "github.com/sigil-dev/mnemo/pkg/errors"
)

// Lifecycle tracks the initialize/close state machine every backend
// shares. The zero value is an uninitialized, open backend.
type Lifecycle struct {
	name   string
	mu     sync.Mutex // serializes Initialize
	dims   atomic.Int64
	closed atomic.Bool
}

// NewLifecycle returns a Lifecycle whose errors name backend.
func NewLifecycle(backend string) *Lifecycle {
	return &Lifecycle{name: backend}
}

// Begin runs init under the initialize lock. init is skipped when the
// backend is already initialized with the same dimensions, and a
// different value fails with a dimension mismatch.
func (l *Lifecycle) Begin(dimensions int, init func() error) error {
	if dimensions <= 0 {
		return sigilerr.New(sigilerr.CodeVectorConfigInvalid,
			"vector dimensions must be positive",
			sigilerr.FieldBackend(l.name), sigilerr.Field("dimensions", dimensions))
	}
	if err := l.open(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	switch current := int(l.dims.Load()); {
	case current == dimensions:
		return nil
	case current != 0:
		return DimensionMismatch(l.name, current, dimensions)
	}

	if err := init(); err != nil {
		return err
	}
	l.dims.Store(int64(dimensions))
	return nil
}

// Ready returns the initialized dimensions, or a lifecycle error when the
// backend is closed or was never initialized.
func (l *Lifecycle) Ready() (int, error) {
	if err := l.open(); err != nil {
		return 0, err
	}
	dims := int(l.dims.Load())
	if dims == 0 {
		return 0, sigilerr.New(sigilerr.CodeVectorLifecycleNotReady,
			"vector backend used before Initialize", sigilerr.FieldBackend(l.name))
	}
	return dims, nil
}

// Close marks the backend closed. It returns true only for the first call.
func (l *Lifecycle) Close() bool {
	return l.closed.CompareAndSwap(false, true)
}

// Closed reports whether Close has been called.
func (l *Lifecycle) Closed() bool {
	return l.closed.Load()
}

func (l *Lifecycle) open() error {
	if l.closed.Load() {
		return sigilerr.New(sigilerr.CodeVectorLifecycleClosed,
			"vector backend is closed", sigilerr.FieldBackend(l.name))
	}
	return nil
}

// DimensionMismatch reports a backend whose stored dimensionality differs
// from the requested one.
func DimensionMismatch(backend string, have, want int) error {
	return sigilerr.New(sigilerr.CodeVectorDimensionsMismatch,
		"vector dimensions do not match existing index",
		sigilerr.FieldBackend(backend),
		sigilerr.Field("existing_dimensions", have),
		sigilerr.Field("requested_dimensions", want))
}
