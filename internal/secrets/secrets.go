// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Inkwell Contributors

// Package secrets stores provider credentials in the OS keyring and
// resolves keyring:// references found in configuration.
package secrets

// Service is the keyring service name all gateway credentials live under.
const Service = "inkwell"

// APIKeyName returns the conventional keyring key for a provider's API
// key, e.g. "anthropic-api-key".
func APIKeyName(provider string) string {
	return provider + "-api-key"
}

// Store is a secret backend. The default implementation uses the OS
// keyring; tests swap in the mock keyring.
type Store interface {
	// Set saves value under service/key, overwriting any previous value.
	Set(service, key, value string) error

	// Get returns the value for service/key. A missing key reports
	// CodeSecretNotFound.
	Get(service, key string) (string, error)

	// Delete removes service/key. A missing key reports CodeSecretNotFound.
	Delete(service, key string) error

	// List returns the key names stored under service, sorted.
	List(service string) ([]string, error)
}
