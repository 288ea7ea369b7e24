// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Inkwell Contributors

package provider

import (
	"context"
	"io"
	"net/http"

	inkerr "github.com/inkwell-dev/inkwell/pkg/errors"
)

// ProviderName identifies a supported LLM provider for key validation.
type ProviderName string

const (
	ProviderAnthropic  ProviderName = "anthropic"
	ProviderOpenAI     ProviderName = "openai"
	ProviderGoogle     ProviderName = "google"
	ProviderOpenRouter ProviderName = "openrouter"
)

// keyProbe describes the lightweight models-endpoint request used to
// confirm an API key works.
type keyProbe struct {
	url     string
	headers func(key string) map[string]string
}

func probeFor(name ProviderName) (keyProbe, bool) {
	switch name {
	case ProviderAnthropic:
		return keyProbe{
			url: "https://api.anthropic.com/v1/models",
			headers: func(key string) map[string]string {
				return map[string]string{
					"x-api-key":         key,
					"anthropic-version": "2023-06-01",
				}
			},
		}, true
	case ProviderOpenAI:
		return keyProbe{
			url: "https://api.openai.com/v1/models",
			headers: func(key string) map[string]string {
				return map[string]string{"Authorization": "Bearer " + key}
			},
		}, true
	case ProviderGoogle:
		// The Generative Language API authenticates via query parameter;
		// the key will appear in HTTP proxy/CDN access logs.
		return keyProbe{
			url: "https://generativelanguage.googleapis.com/v1/models?key=",
			headers: func(string) map[string]string {
				return nil
			},
		}, true
	case ProviderOpenRouter:
		return keyProbe{
			url: "https://openrouter.ai/api/v1/models",
			headers: func(key string) map[string]string {
				return map[string]string{"Authorization": "Bearer " + key}
			},
		}, true
	}
	return keyProbe{}, false
}

// ValidateKey makes a lightweight HTTP call to the provider's models
// endpoint to confirm the API key is valid.
func ValidateKey(ctx context.Context, client *http.Client, provider ProviderName, key string) error {
	return ValidateKeyWithURL(ctx, client, provider, key, "")
}

// ValidateKeyWithURL is a testable version of ValidateKey that accepts an
// explicit URL. When url is non-empty it overrides the provider default.
func ValidateKeyWithURL(ctx context.Context, client *http.Client, provider ProviderName, key, url string) error {
	probe, ok := probeFor(provider)
	if !ok {
		return inkerr.Errorf(inkerr.CodeProviderKeyInvalid, "unknown provider: %s", provider)
	}

	if url == "" {
		url = probe.url
		if provider == ProviderGoogle {
			url += key
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return inkerr.Errorf(inkerr.CodeProviderKeyCheckFailed, "building validation request: %w", err)
	}
	for k, v := range probe.headers(key) {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return inkerr.Errorf(inkerr.CodeProviderKeyCheckFailed, "validating %s key: %w", provider, err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return inkerr.Errorf(inkerr.CodeProviderKeyInvalid, "invalid %s API key (HTTP %d)", provider, resp.StatusCode)
	case resp.StatusCode >= 400:
		return inkerr.Errorf(inkerr.CodeProviderKeyCheckFailed, "%s validation failed (HTTP %d)", provider, resp.StatusCode)
	}

	return nil
}
