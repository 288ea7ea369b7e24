// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Inkwell Contributors

package main

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"github.com/inkwell-dev/inkwell/internal/agent"
	"github.com/inkwell-dev/inkwell/internal/config"
	"github.com/inkwell-dev/inkwell/internal/diff"
	"github.com/inkwell-dev/inkwell/internal/plugin"
	"github.com/inkwell-dev/inkwell/internal/provider"
	anthropicprov "github.com/inkwell-dev/inkwell/internal/provider/anthropic"
	googleprov "github.com/inkwell-dev/inkwell/internal/provider/google"
	openaiprov "github.com/inkwell-dev/inkwell/internal/provider/openai"
	openrouterprov "github.com/inkwell-dev/inkwell/internal/provider/openrouter"
	relayprov "github.com/inkwell-dev/inkwell/internal/provider/relay"
	"github.com/inkwell-dev/inkwell/internal/server"
	"github.com/inkwell-dev/inkwell/internal/store"
	_ "github.com/inkwell-dev/inkwell/internal/store/sqlite" // register sqlite backend
	inkerr "github.com/inkwell-dev/inkwell/pkg/errors"
)

// Gateway holds all wired subsystems and manages their lifecycle.
type Gateway struct {
	Server    *server.Server
	Store     store.Store
	Providers *provider.Registry
	Plugins   *plugin.Host
	Engine    *agent.Engine
}

// WireGateway creates every subsystem and wires them together: store,
// providers, tool table, plugin host, agent engine, HTTP server.
func WireGateway(ctx context.Context, cfg *config.Config, log *slog.Logger) (*Gateway, error) {
	if log == nil {
		log = slog.Default()
	}

	dataDir, err := cfg.DataDir()
	if err != nil {
		return nil, inkerr.Wrapf(err, inkerr.CodeCLISetupFailure, "resolving data directory")
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, inkerr.Wrapf(err, inkerr.CodeCLISetupFailure, "creating data directory %s", dataDir)
	}

	st, err := store.Open(cfg.Storage.Backend, dataDir)
	if err != nil {
		return nil, inkerr.Wrapf(err, inkerr.CodeCLISetupFailure, "opening %s store", cfg.Storage.Backend)
	}

	reg := provider.NewRegistry()
	registerBuiltinProviders(cfg, reg, log)

	// A default that names an unconfigured provider is normal on a fresh
	// setup; chat requests report the routing problem per attempt.
	if cfg.Providers.Default != "" {
		if err := reg.SetDefault(cfg.Providers.Default); err != nil {
			log.Warn("default model unusable until its provider is configured",
				"model", cfg.Providers.Default, "error", err)
		}
	}
	if len(cfg.Providers.Failover) > 0 {
		if err := reg.SetFailover(cfg.Providers.Failover); err != nil {
			log.Warn("failover chain not installed", "error", err)
		}
	}

	table := agent.NewToolTable()

	pluginsDir, err := cfg.PluginsDir()
	if err != nil {
		_ = st.Close()
		return nil, inkerr.Wrapf(err, inkerr.CodeCLISetupFailure, "resolving plugins directory")
	}
	host, err := plugin.NewHost(plugin.HostConfig{
		Dir:    pluginsDir,
		Table:  table,
		Logger: log,
	})
	if err != nil {
		_ = st.Close()
		return nil, inkerr.Wrapf(err, inkerr.CodeCLISetupFailure, "creating plugin host")
	}
	// A broken plugin directory must not keep the gateway down.
	if err := host.Start(ctx); err != nil {
		log.Warn("plugin discovery error", "error", err)
	}

	eng, err := agent.NewEngine(agent.Config{
		Router:         reg,
		Store:          st,
		Table:          table,
		Policy:         approvalPolicy(cfg, table),
		Remote:         host,
		MaxDepth:       cfg.Agent.MaxRounds,
		UnlimitedDepth: cfg.Agent.UnlimitedRounds,
		HistoryWindow:  cfg.Agent.HistoryWindow,
		DiffOptions: diff.Options{
			ContextLines:    cfg.Diff.ContextLines,
			MaxDisplayLines: cfg.Diff.MaxDisplayLines,
			SizeCeiling:     cfg.Diff.SizeCeiling,
		},
		FuzzyThreshold: cfg.Match.FuzzyThreshold,
		MaxCandidates:  cfg.Match.MaxCandidates,
		Logger:         log,
	})
	if err != nil {
		_ = host.Close()
		_ = st.Close()
		return nil, inkerr.Wrapf(err, inkerr.CodeCLISetupFailure, "creating agent engine")
	}

	if cfg.Gateway.Auth.Token == "" {
		log.Warn("authentication disabled: no gateway token configured")
	}

	srv, err := server.New(server.Config{
		ListenAddr:   cfg.Gateway.Listen,
		CORSOrigins:  cfg.Gateway.CORSOrigins,
		AuthToken:    cfg.Gateway.Auth.Token,
		Version:      version,
		DefaultModel: cfg.Providers.Default,
		Engine:       eng,
		Store:        st,
		Providers:    reg,
		Plugins:      host,
		Logger:       log,
	})
	if err != nil {
		_ = eng.Close()
		_ = host.Close()
		_ = st.Close()
		return nil, inkerr.Wrapf(err, inkerr.CodeCLISetupFailure, "creating server")
	}

	return &Gateway{
		Server:    srv,
		Store:     st,
		Providers: reg,
		Plugins:   host,
		Engine:    eng,
	}, nil
}

// Start runs the HTTP server and blocks until the context is cancelled.
func (gw *Gateway) Start(ctx context.Context) error {
	return gw.Server.Start(ctx)
}

// Close releases all resources in reverse wiring order.
func (gw *Gateway) Close() error {
	type closer interface{ Close() error }
	closers := []closer{gw.Server, gw.Engine, gw.Plugins, gw.Providers, gw.Store}

	var errs []error
	for _, c := range closers {
		if c != nil {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// providerFactory builds a provider.Provider from the loaded config.
type providerFactory func(cfg *config.Config) (provider.Provider, error)

// builtinProviderFactories maps provider names to their constructors.
// Declared as a variable so tests can inject failing factories.
var builtinProviderFactories = map[string]providerFactory{
	"anthropic": func(cfg *config.Config) (provider.Provider, error) {
		pc := cfg.Providers.Anthropic
		return anthropicprov.New(anthropicprov.Config{APIKey: pc.APIKey, BaseURL: pc.BaseURL})
	},
	"openai": func(cfg *config.Config) (provider.Provider, error) {
		pc := cfg.Providers.OpenAI
		return openaiprov.New(openaiprov.Config{APIKey: pc.APIKey, BaseURL: pc.BaseURL})
	},
	"google": func(cfg *config.Config) (provider.Provider, error) {
		return googleprov.New(googleprov.Config{APIKey: cfg.Providers.Google.APIKey})
	},
	"openrouter": func(cfg *config.Config) (provider.Provider, error) {
		pc := cfg.Providers.OpenRouter
		return openrouterprov.New(openrouterprov.Config{APIKey: pc.APIKey, BaseURL: pc.BaseURL})
	},
	"relay": func(cfg *config.Config) (provider.Provider, error) {
		rc := cfg.Providers.Relay
		return relayprov.New(relayprov.Config{BaseURL: rc.BaseURL, APIKey: rc.Token})
	},
}

// registerBuiltinProviders registers every configured backend. A
// provider that fails to construct is logged and skipped; the gateway
// starts either way.
func registerBuiltinProviders(cfg *config.Config, reg *provider.Registry, log *slog.Logger) {
	for _, name := range config.KnownProviders {
		if !cfg.Providers.Configured(name) {
			continue
		}
		factory, ok := builtinProviderFactories[name]
		if !ok {
			continue
		}
		p, err := factory(cfg)
		if err != nil {
			log.Warn("skipping provider", "provider", name, "error", err)
			continue
		}
		reg.Register(name, p)
		log.Info("registered provider", "provider", name)
	}
}

// approvalPolicy maps the approvals config onto an engine policy.
// Turning approvals.mutating off auto-approves every mutating tool in
// the table; read_tools names read tools that are held anyway.
func approvalPolicy(cfg *config.Config, table *agent.ToolTable) agent.ApprovalPolicy {
	auto := append([]string(nil), cfg.Approvals.AutoAccept...)
	if !cfg.Approvals.Mutating {
		for _, name := range table.Names() {
			if spec, ok := table.Lookup(name); ok && spec.Kind == agent.ToolKindMutating {
				auto = append(auto, name)
			}
		}
	}
	return agent.NewPolicy(auto, cfg.Approvals.ReadTools)
}
