// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Inkwell Contributors

package secrets

import (
	"strings"

	"github.com/spf13/viper"

	inkerr "github.com/inkwell-dev/inkwell/pkg/errors"
)

const keyringScheme = "keyring://"

// IsKeyringURI reports whether value is a keyring:// reference.
func IsKeyringURI(value string) bool {
	return strings.HasPrefix(value, keyringScheme)
}

// ParseKeyringURI splits keyring://service/key into its parts. The key
// may itself contain slashes.
func ParseKeyringURI(uri string) (service, key string, err error) {
	if !IsKeyringURI(uri) {
		return "", "", inkerr.Errorf(inkerr.CodeSecretInvalidInput, "not a keyring URI: %q", uri)
	}

	rest := strings.TrimPrefix(uri, keyringScheme)
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", inkerr.Errorf(inkerr.CodeSecretInvalidInput,
			"invalid keyring URI %q: expected keyring://service/key", uri)
	}
	return parts[0], parts[1], nil
}

// Resolve returns the secret a keyring:// value points at. Anything
// else, including ${ENV_VAR} references, passes through unchanged.
func Resolve(store Store, value string) (string, error) {
	if !IsKeyringURI(value) {
		return value, nil
	}

	service, key, err := ParseKeyringURI(value)
	if err != nil {
		return "", err
	}

	secret, err := store.Get(service, key)
	if err != nil {
		return "", inkerr.Wrapf(err, inkerr.CodeSecretResolveFailure, "resolving keyring URI %q", value)
	}
	return secret, nil
}

// ResolveViperSecrets replaces every keyring:// string value in v with
// the secret it names. A reference that cannot be resolved fails the
// load; a config that points at a missing credential should not boot
// half-working.
func ResolveViperSecrets(v *viper.Viper, store Store) error {
	for _, configKey := range v.AllKeys() {
		value := v.GetString(configKey)
		if !IsKeyringURI(value) {
			continue
		}

		resolved, err := Resolve(store, value)
		if err != nil {
			return inkerr.Wrapf(err, inkerr.CodeSecretResolveFailure,
				"config key %s references %s", configKey, value)
		}
		v.Set(configKey, resolved)
	}
	return nil
}
