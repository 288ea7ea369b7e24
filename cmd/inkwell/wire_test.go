// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Inkwell Contributors

package main

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/inkwell-dev/inkwell/internal/config"
	"github.com/inkwell-dev/inkwell/internal/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testGatewayConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Gateway: config.GatewayConfig{
			Listen:  "127.0.0.1:0",
			DataDir: t.TempDir(),
		},
		Storage: config.StorageConfig{
			Backend: "memory",
		},
	}
}

func TestWireGateway(t *testing.T) {
	gw, err := WireGateway(context.Background(), testGatewayConfig(t), nil)
	require.NoError(t, err)
	defer func() { _ = gw.Close() }()

	assert.NotNil(t, gw.Server)
	assert.NotNil(t, gw.Store)
	assert.NotNil(t, gw.Providers)
	assert.NotNil(t, gw.Plugins)
	assert.NotNil(t, gw.Engine)
}

func TestGateway_GracefulShutdown(t *testing.T) {
	gw, err := WireGateway(context.Background(), testGatewayConfig(t), nil)
	require.NoError(t, err)
	defer func() { _ = gw.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	// Start and let the deadline cancel it; shutdown must be clean.
	err = gw.Start(ctx)
	assert.NoError(t, err)
}

func TestWireGateway_ChatEndpointWired(t *testing.T) {
	gw, err := WireGateway(context.Background(), testGatewayConfig(t), nil)
	require.NoError(t, err)
	defer func() { _ = gw.Close() }()

	body := `{"content":"hello"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions/nope/messages", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	gw.Server.Handler().ServeHTTP(w, req)

	// Must NOT be 503: the engine is wired, so an unknown session is the
	// only problem with this request.
	assert.NotEqual(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestWireGateway_SessionEndToEnd(t *testing.T) {
	gw, err := WireGateway(context.Background(), testGatewayConfig(t), nil)
	require.NoError(t, err)
	defer func() { _ = gw.Close() }()

	body := `{"title":"Test Draft","content":"Hello."}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	gw.Server.Handler().ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code, "body: %s", w.Body.String())

	listReq := httptest.NewRequest(http.MethodGet, "/api/v1/sessions", nil)
	listW := httptest.NewRecorder()
	gw.Server.Handler().ServeHTTP(listW, listReq)

	assert.Equal(t, http.StatusOK, listW.Code)
	assert.Contains(t, listW.Body.String(), "sessions")
}

func TestWireGateway_ProviderRegistration(t *testing.T) {
	cfg := testGatewayConfig(t)
	cfg.Providers.Anthropic.APIKey = "test-key-anthropic"
	cfg.Providers.OpenAI.APIKey = "test-key-openai"
	cfg.Providers.Google.APIKey = "test-key-google"

	gw, err := WireGateway(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer func() { _ = gw.Close() }()

	for _, name := range []string{"anthropic", "openai", "google"} {
		p, err := gw.Providers.Get(name)
		assert.NoError(t, err, "provider %q should be registered", name)
		assert.NotNil(t, p, "provider %q should not be nil", name)
	}
}

func TestWireGateway_ProviderSkipsEmptyAPIKey(t *testing.T) {
	cfg := testGatewayConfig(t)
	cfg.Providers.Anthropic.APIKey = ""

	gw, err := WireGateway(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer func() { _ = gw.Close() }()

	_, err = gw.Providers.Get("anthropic")
	assert.Error(t, err, "provider with empty API key should not be registered")
}

func TestWireGateway_ProviderCreationFailureSkipped(t *testing.T) {
	// Inject a factory that always fails to exercise the skip path.
	orig := builtinProviderFactories["anthropic"]
	builtinProviderFactories["anthropic"] = func(_ *config.Config) (provider.Provider, error) {
		return nil, fmt.Errorf("injected failure")
	}
	t.Cleanup(func() { builtinProviderFactories["anthropic"] = orig })

	cfg := testGatewayConfig(t)
	cfg.Providers.Anthropic.APIKey = "test-key"

	gw, err := WireGateway(context.Background(), cfg, nil)
	require.NoError(t, err, "provider creation failure should not prevent startup")
	defer func() { _ = gw.Close() }()

	_, err = gw.Providers.Get("anthropic")
	assert.Error(t, err, "failed provider should not be registered")
}

func TestWireGateway_UnconfiguredDefaultModelStillStarts(t *testing.T) {
	cfg := testGatewayConfig(t)
	cfg.Providers.Default = "anthropic/claude-sonnet-4-5"
	// No provider credentials configured at all.

	gw, err := WireGateway(context.Background(), cfg, nil)
	require.NoError(t, err, "a fresh setup without keys must still start")
	defer func() { _ = gw.Close() }()

	assert.Empty(t, gw.Providers.Names())
}
