// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Inkwell Contributors

package secrets_test

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkwell-dev/inkwell/internal/secrets"
	inkerr "github.com/inkwell-dev/inkwell/pkg/errors"
)

func TestIsKeyringURI(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  bool
	}{
		{"valid URI", "keyring://inkwell/anthropic-api-key", true},
		{"valid URI with dashes", "keyring://my-svc/my-key", true},
		{"env var reference", "${ANTHROPIC_API_KEY}", false},
		{"literal value", "sk-abc123", false},
		{"empty string", "", false},
		{"bare scheme", "keyring://", true},
		{"other scheme", "vault://secret/key", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, secrets.IsKeyringURI(tt.value))
		})
	}
}

func TestParseKeyringURI(t *testing.T) {
	tests := []struct {
		name        string
		uri         string
		wantService string
		wantKey     string
		wantErr     bool
	}{
		{"valid", "keyring://inkwell/api-key", "inkwell", "api-key", false},
		{"dashes", "keyring://my-service/my-key-name", "my-service", "my-key-name", false},
		{"slashes in key", "keyring://inkwell/path/to/key", "inkwell", "path/to/key", false},
		{"not a keyring URI", "vault://secret/key", "", "", true},
		{"missing key", "keyring://inkwell/", "", "", true},
		{"missing service", "keyring:///key", "", "", true},
		{"missing both", "keyring://", "", "", true},
		{"no path", "keyring://inkwell", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service, key, err := secrets.ParseKeyringURI(tt.uri)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, inkerr.HasCode(err, inkerr.CodeSecretInvalidInput))
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.wantService, service)
			assert.Equal(t, tt.wantKey, key)
		})
	}
}

func TestResolve(t *testing.T) {
	ks := secrets.NewKeyring()
	require.NoError(t, ks.Set(secrets.Service, "test-key", "resolved-secret"))

	t.Run("resolves keyring URI", func(t *testing.T) {
		value, err := secrets.Resolve(ks, "keyring://inkwell/test-key")
		require.NoError(t, err)
		assert.Equal(t, "resolved-secret", value)
	})

	t.Run("passes through literal values", func(t *testing.T) {
		value, err := secrets.Resolve(ks, "literal-value")
		require.NoError(t, err)
		assert.Equal(t, "literal-value", value)
	})

	t.Run("passes through env var references", func(t *testing.T) {
		value, err := secrets.Resolve(ks, "${ENV_VAR}")
		require.NoError(t, err)
		assert.Equal(t, "${ENV_VAR}", value)
	})

	t.Run("missing secret fails", func(t *testing.T) {
		_, err := secrets.Resolve(ks, "keyring://inkwell/nonexistent")
		require.Error(t, err)
		assert.True(t, inkerr.HasCode(err, inkerr.CodeSecretResolveFailure))
		assert.Contains(t, err.Error(), "resolving keyring URI")
	})

	t.Run("malformed URI fails", func(t *testing.T) {
		_, err := secrets.Resolve(ks, "keyring://bad")
		require.Error(t, err)
	})
}

func TestResolveViperSecrets(t *testing.T) {
	ks := secrets.NewKeyring()
	require.NoError(t, ks.Set(secrets.Service, "anthropic-api-key", "sk-ant-secret"))
	require.NoError(t, ks.Set(secrets.Service, "openai-api-key", "sk-oai-secret"))

	v := viper.New()
	v.Set("providers.anthropic.api_key", "keyring://inkwell/anthropic-api-key")
	v.Set("providers.openai.api_key", "keyring://inkwell/openai-api-key")
	v.Set("gateway.listen", "127.0.0.1:8399")
	v.Set("providers.default", "anthropic/claude-sonnet-4-5")

	require.NoError(t, secrets.ResolveViperSecrets(v, ks))

	assert.Equal(t, "sk-ant-secret", v.GetString("providers.anthropic.api_key"))
	assert.Equal(t, "sk-oai-secret", v.GetString("providers.openai.api_key"))
	assert.Equal(t, "127.0.0.1:8399", v.GetString("gateway.listen"))
	assert.Equal(t, "anthropic/claude-sonnet-4-5", v.GetString("providers.default"))
}

func TestResolveViperSecretsMissingSecretFailsLoad(t *testing.T) {
	ks := secrets.NewKeyring()

	v := viper.New()
	v.Set("providers.anthropic.api_key", "keyring://inkwell/nonexistent-key")

	err := secrets.ResolveViperSecrets(v, ks)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "providers.anthropic.api_key")
	assert.Contains(t, err.Error(), "keyring://inkwell/nonexistent-key")
}
