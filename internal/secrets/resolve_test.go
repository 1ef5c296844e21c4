// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package secrets_test

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigil-dev/mnemo/internal/secrets"
	sigilerr "github.com/sigil-dev/mnemo/pkg/errors"
)

func TestParseRef(t *testing.T) {
	tests := []struct {
		ref         string
		wantService string
		wantKey     string
		wantErr     bool
	}{
		{ref: "keyring://mnemo/openai", wantService: "mnemo", wantKey: "openai"},
		{ref: "keyring://mnemo/qdrant/api-key", wantService: "mnemo", wantKey: "qdrant/api-key"},
		{ref: "keyring://mnemo/", wantErr: true},
		{ref: "keyring:///key", wantErr: true},
		{ref: "keyring://mnemo", wantErr: true},
		{ref: "keyring://", wantErr: true},
		{ref: "vault://mnemo/key", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			svc, key, err := secrets.ParseRef(tt.ref)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, sigilerr.HasCode(err, sigilerr.CodeSecretInvalidInput))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantService, svc)
			assert.Equal(t, tt.wantKey, key)
		})
	}
}

func TestResolve(t *testing.T) {
	ks := secrets.NewKeyringStore()
	require.NoError(t, ks.Set("mnemo-resolve", "openai", "sk-live"))

	got, err := secrets.Resolve(ks, "keyring://mnemo-resolve/openai")
	require.NoError(t, err)
	assert.Equal(t, "sk-live", got)

	got, err = secrets.Resolve(ks, "sk-literal")
	require.NoError(t, err)
	assert.Equal(t, "sk-literal", got)

	_, err = secrets.Resolve(ks, "keyring://mnemo-resolve/missing")
	require.Error(t, err)
	assert.True(t, sigilerr.IsNotFound(err))
}

func TestResolveViper(t *testing.T) {
	ks := secrets.NewKeyringStore()
	require.NoError(t, ks.Set("mnemo-viper", "openai", "sk-from-keyring"))
	require.NoError(t, ks.Set("mnemo-viper", "pg", "postgres://u:p@db/mnemo"))

	v := viper.New()
	v.Set("embedding.api_key", "keyring://mnemo-viper/openai")
	v.Set("vector.pgvector.dsn", "keyring://mnemo-viper/pg")
	v.Set("vector.qdrant.api_key", "keyring://mnemo-viper/missing")
	v.Set("embedding.model", "text-embedding-3-small")
	v.Set("search.max_limit", 100)

	n := secrets.ResolveViper(v, ks)
	assert.Equal(t, 2, n)
	assert.Equal(t, "sk-from-keyring", v.GetString("embedding.api_key"))
	assert.Equal(t, "postgres://u:p@db/mnemo", v.GetString("vector.pgvector.dsn"))
	assert.Equal(t, "keyring://mnemo-viper/missing", v.GetString("vector.qdrant.api_key"))
	assert.Equal(t, "text-embedding-3-small", v.GetString("embedding.model"))
}
