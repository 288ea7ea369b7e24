// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Inkwell Contributors

package secrets

import (
	"encoding/json"
	"errors"
	"log/slog"
	"slices"

	"github.com/zalando/go-keyring"

	inkerr "github.com/inkwell-dev/inkwell/pkg/errors"
)

// indexSuffix forms the keyring entry that holds the JSON list of key
// names per service. go-keyring cannot enumerate entries, so List reads
// this index instead.
const indexSuffix = "::index"

// Keyring implements Store on the OS keyring: Keychain on macOS,
// secret-service on Linux, Credential Manager on Windows.
type Keyring struct{}

func NewKeyring() *Keyring {
	return &Keyring{}
}

var _ Store = (*Keyring)(nil)

func (k *Keyring) Set(service, key, value string) error {
	if err := checkNames(service, key); err != nil {
		return err
	}

	if err := keyring.Set(service, key, value); err != nil {
		return inkerr.Wrapf(err, inkerr.CodeSecretStoreFailure, "store secret %s/%s", service, key)
	}
	return k.indexAdd(service, key)
}

func (k *Keyring) Get(service, key string) (string, error) {
	if err := checkNames(service, key); err != nil {
		return "", err
	}

	value, err := keyring.Get(service, key)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", inkerr.Errorf(inkerr.CodeSecretNotFound, "secret %s/%s not found", service, key)
		}
		return "", inkerr.Wrapf(err, inkerr.CodeSecretStoreFailure, "read secret %s/%s", service, key)
	}
	return value, nil
}

func (k *Keyring) Delete(service, key string) error {
	if err := checkNames(service, key); err != nil {
		return err
	}

	if err := keyring.Delete(service, key); err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return inkerr.Errorf(inkerr.CodeSecretNotFound, "secret %s/%s not found", service, key)
		}
		return inkerr.Wrapf(err, inkerr.CodeSecretDeleteFailure, "delete secret %s/%s", service, key)
	}
	return k.indexRemove(service, key)
}

func (k *Keyring) List(service string) ([]string, error) {
	keys, err := k.indexLoad(service)
	if err != nil {
		return nil, err
	}
	slices.Sort(keys)
	return keys, nil
}

func checkNames(service, key string) error {
	if service == "" {
		return inkerr.New(inkerr.CodeSecretInvalidInput, "secret service must not be empty")
	}
	if key == "" {
		return inkerr.New(inkerr.CodeSecretInvalidInput, "secret key must not be empty")
	}
	return nil
}

func (k *Keyring) indexLoad(service string) ([]string, error) {
	raw, err := keyring.Get(service, service+indexSuffix)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil, nil
		}
		return nil, inkerr.Wrapf(err, inkerr.CodeSecretListFailure, "load key index for %s", service)
	}

	var keys []string
	if err := json.Unmarshal([]byte(raw), &keys); err != nil {
		return nil, inkerr.Wrapf(err, inkerr.CodeSecretListFailure, "decode key index for %s", service)
	}
	return keys, nil
}

func (k *Keyring) indexSave(service string, keys []string) error {
	indexKey := service + indexSuffix

	if len(keys) == 0 {
		if err := keyring.Delete(service, indexKey); err != nil && !errors.Is(err, keyring.ErrNotFound) {
			slog.Debug("empty key index cleanup failed", "service", service, "error", err)
		}
		return nil
	}

	data, err := json.Marshal(keys)
	if err != nil {
		return inkerr.Wrapf(err, inkerr.CodeSecretListFailure, "encode key index for %s", service)
	}
	if err := keyring.Set(service, indexKey, string(data)); err != nil {
		return inkerr.Wrapf(err, inkerr.CodeSecretListFailure, "save key index for %s", service)
	}
	return nil
}

func (k *Keyring) indexAdd(service, key string) error {
	keys, err := k.indexLoad(service)
	if err != nil {
		return err
	}
	if slices.Contains(keys, key) {
		return nil
	}
	return k.indexSave(service, append(keys, key))
}

func (k *Keyring) indexRemove(service, key string) error {
	keys, err := k.indexLoad(service)
	if err != nil {
		return err
	}

	kept := keys[:0]
	for _, existing := range keys {
		if existing != key {
			kept = append(kept, existing)
		}
	}
	return k.indexSave(service, kept)
}
