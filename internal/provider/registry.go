// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Inkwell Contributors

package provider

import (
	"context"
	"slices"
	"strings"
	"sync"

	inkerr "github.com/inkwell-dev/inkwell/pkg/errors"
)

// Registry manages provider registration, lookup, and routing with
// failover. It implements the Router interface.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider

	defaultRef string            // "provider/model" format
	overrides  map[string]string // sessionID → "provider/model"
	failover   []string          // ordered list of "provider/model" refs
}

// Compile-time check that Registry implements Router.
var _ Router = (*Registry)(nil)

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]Provider),
		overrides: make(map[string]string),
	}
}

// Register adds a provider to the registry.
func (r *Registry) Register(name string, p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[name] = p
}

// RegisterProvider adds a provider to the registry (Router interface).
func (r *Registry) RegisterProvider(name string, p Provider) error {
	r.Register(name, p)
	return nil
}

// Get retrieves a provider by name.
func (r *Registry) Get(name string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.providers[name]
	if !ok {
		return nil, inkerr.New(
			inkerr.CodeProviderNotFound,
			"provider not found: "+name,
			inkerr.FieldProvider(name),
		)
	}
	return p, nil
}

// Names returns the registered provider names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// SetDefault sets the default "provider/model" reference used when no
// session override matches. Returns an error if the provider portion
// of the ref is not registered.
func (r *Registry) SetDefault(ref string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	provName, _ := parseRef(ref)
	if _, ok := r.providers[provName]; !ok {
		return inkerr.New(
			inkerr.CodeProviderNotFound,
			"SetDefault: provider not registered: "+provName,
			inkerr.FieldProvider(provName),
		)
	}
	r.defaultRef = ref
	return nil
}

// SetOverride sets a session-specific "provider/model" override.
// Returns an error if the provider portion of the ref is not registered.
func (r *Registry) SetOverride(sessionID, ref string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	provName, _ := parseRef(ref)
	if _, ok := r.providers[provName]; !ok {
		return inkerr.New(
			inkerr.CodeProviderNotFound,
			"SetOverride: provider not registered: "+provName,
			inkerr.FieldProvider(provName),
		)
	}
	r.overrides[sessionID] = ref
	return nil
}

// ClearOverride removes a session-specific override.
func (r *Registry) ClearOverride(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.overrides, sessionID)
}

// SetFailover sets the ordered failover chain of "provider/model" refs.
// Returns an error if any provider portion of the refs is not registered.
func (r *Registry) SetFailover(chain []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, ref := range chain {
		provName, _ := parseRef(ref)
		if _, ok := r.providers[provName]; !ok {
			return inkerr.New(
				inkerr.CodeProviderNotFound,
				"SetFailover: provider not registered: "+provName,
				inkerr.FieldProvider(provName),
			)
		}
	}
	r.failover = append([]string(nil), chain...)
	return nil
}

// MaxAttempts returns 1 (primary) + len(failover chain) so the engine
// caps its retry count to exactly the number of configured provider
// candidates.
func (r *Registry) MaxAttempts() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return 1 + len(r.failover)
}

// Route selects a provider for the given session and model name.
// It implements the Router interface. When modelName is empty the
// default (or session override) is used.
func (r *Registry) Route(ctx context.Context, sessionID, modelName string) (Provider, string, error) {
	return r.RouteExcluding(ctx, sessionID, modelName, nil)
}

// RouteExcluding is like Route but skips providers named in exclude
// (already-tried providers in the current failover sequence), ensuring
// failover progresses even for providers that never mark themselves
// unavailable.
func (r *Registry) RouteExcluding(ctx context.Context, sessionID, modelName string, exclude []string) (Provider, string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ref, err := r.resolveRef(sessionID, modelName)
	if err != nil {
		return nil, "", err
	}
	if ref == "" {
		return nil, "", inkerr.New(
			inkerr.CodeProviderNoDefault,
			"no default provider configured",
		)
	}

	// Try the primary ref first, then walk the failover chain.
	provName, _ := parseRef(ref)
	if !slices.Contains(exclude, provName) {
		p, model, err := r.tryRef(ctx, ref)
		if err == nil {
			return p, model, nil
		}
	}

	for _, fallback := range r.failover {
		fbProv, _ := parseRef(fallback)
		if slices.Contains(exclude, fbProv) {
			continue
		}
		p, model, err := r.tryRef(ctx, fallback)
		if err == nil {
			return p, model, nil
		}
	}

	return nil, "", inkerr.New(
		inkerr.CodeProviderAllUnavailable,
		"all providers unavailable: no healthy provider found",
	)
}

// Close shuts down all registered providers.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for _, p := range r.providers {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return inkerr.Join(errs...)
	}
	return nil
}

// resolveRef determines which "provider/model" ref to use.
// Caller must hold r.mu (at least RLock).
// Returns an error for non-qualified model names (missing "provider/" prefix).
func (r *Registry) resolveRef(sessionID, modelName string) (string, error) {
	// Explicit model name must use "provider/model" format.
	if modelName != "" && modelName != "default" {
		if !strings.Contains(modelName, "/") {
			return "", inkerr.Errorf(
				inkerr.CodeProviderInvalidModelRef,
				"model name %q must use provider/model format", modelName,
			)
		}
		return modelName, nil
	}

	if sessionID != "" {
		if override, ok := r.overrides[sessionID]; ok {
			return override, nil
		}
	}

	return r.defaultRef, nil
}

// tryRef parses a "provider/model" ref, looks up the provider, and checks
// availability. Caller must hold r.mu (at least RLock).
func (r *Registry) tryRef(ctx context.Context, ref string) (Provider, string, error) {
	providerName, model := parseRef(ref)

	p, ok := r.providers[providerName]
	if !ok {
		return nil, "", inkerr.New(
			inkerr.CodeProviderNotFound,
			"provider not found: "+providerName,
			inkerr.FieldProvider(providerName),
		)
	}

	if !p.Available(ctx) {
		return nil, "", inkerr.New(
			inkerr.CodeProviderUpstreamFailure,
			"provider unavailable: "+providerName,
			inkerr.FieldProvider(providerName),
		)
	}

	return p, model, nil
}

// parseRef splits a "provider/model" reference on the first "/".
func parseRef(ref string) (providerName, model string) {
	idx := strings.Index(ref, "/")
	if idx < 0 {
		return ref, ""
	}
	return ref[:idx], ref[idx+1:]
}
