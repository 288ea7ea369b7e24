// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Inkwell Contributors

// Package config loads and validates the gateway configuration from
// defaults, an optional YAML file, and INKWELL_ environment overrides.
package config

import (
	"errors"
	"net"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/viper"

	"github.com/inkwell-dev/inkwell/internal/secrets"
	inkerr "github.com/inkwell-dev/inkwell/pkg/errors"
)

// Config is the top-level Inkwell configuration.
type Config struct {
	Gateway   GatewayConfig   `mapstructure:"gateway"`
	Log       LogConfig       `mapstructure:"log"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Providers ProvidersConfig `mapstructure:"providers"`
	Agent     AgentConfig     `mapstructure:"agent"`
	Approvals ApprovalsConfig `mapstructure:"approvals"`
	Match     MatchConfig     `mapstructure:"match"`
	Diff      DiffConfig      `mapstructure:"diff"`
	Plugins   PluginsConfig   `mapstructure:"plugins"`
}

// GatewayConfig controls the HTTP listener.
type GatewayConfig struct {
	Listen      string     `mapstructure:"listen"`
	DataDir     string     `mapstructure:"data_dir"`
	CORSOrigins []string   `mapstructure:"cors_origins"`
	Auth        AuthConfig `mapstructure:"auth"`
}

// AuthConfig holds the bearer token clients must present. Empty disables
// auth (local-only use). The value may be a keyring:// reference.
type AuthConfig struct {
	Token string `mapstructure:"token"`
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// StorageConfig selects the persistence backend.
type StorageConfig struct {
	Backend string `mapstructure:"backend"`
}

// ProviderConfig holds credentials and endpoint for one model backend.
type ProviderConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
}

// RelayConfig points at a backend speaking the gateway wire protocol.
type RelayConfig struct {
	BaseURL string `mapstructure:"base_url"`
	Token   string `mapstructure:"token"`
}

// ProvidersConfig selects the default and failover models and configures
// the individual backends.
type ProvidersConfig struct {
	Default    string         `mapstructure:"default"`
	Failover   []string       `mapstructure:"failover"`
	Anthropic  ProviderConfig `mapstructure:"anthropic"`
	OpenAI     ProviderConfig `mapstructure:"openai"`
	Google     ProviderConfig `mapstructure:"google"`
	OpenRouter ProviderConfig `mapstructure:"openrouter"`
	Relay      RelayConfig    `mapstructure:"relay"`
}

// KnownProviders lists every provider name a model ref may use.
var KnownProviders = []string{"anthropic", "openai", "google", "openrouter", "relay"}

// Configured reports whether the named provider block carries enough
// configuration to construct the backend.
func (p ProvidersConfig) Configured(name string) bool {
	switch name {
	case "anthropic":
		return p.Anthropic.APIKey != ""
	case "openai":
		return p.OpenAI.APIKey != ""
	case "google":
		return p.Google.APIKey != ""
	case "openrouter":
		return p.OpenRouter.APIKey != ""
	case "relay":
		return p.Relay.BaseURL != ""
	default:
		return false
	}
}

func (p ProvidersConfig) anyConfigured() bool {
	for _, name := range KnownProviders {
		if p.Configured(name) {
			return true
		}
	}
	return false
}

// AgentConfig bounds the conversation loop.
type AgentConfig struct {
	MaxRounds       int  `mapstructure:"max_rounds"`
	UnlimitedRounds bool `mapstructure:"unlimited_rounds"`
	HistoryWindow   int  `mapstructure:"history_window"`
}

// ApprovalsConfig tunes which tool calls are held for the user.
type ApprovalsConfig struct {
	// Mutating holds every content/title edit for approval. Turning it
	// off lets the model edit the draft without asking.
	Mutating bool `mapstructure:"mutating"`
	// ReadTools names read tools that must be approved anyway.
	ReadTools []string `mapstructure:"read_tools"`
	// AutoAccept names tools that never ask, mutating or not.
	AutoAccept []string `mapstructure:"auto_accept"`
}

// MatchConfig tunes the search-text matcher.
type MatchConfig struct {
	FuzzyThreshold float64 `mapstructure:"fuzzy_threshold"`
	MaxCandidates  int     `mapstructure:"max_candidates"`
}

// DiffConfig tunes change summaries.
type DiffConfig struct {
	ContextLines    int `mapstructure:"context_lines"`
	MaxDisplayLines int `mapstructure:"max_display_lines"`
	SizeCeiling     int `mapstructure:"size_ceiling"`
}

// PluginsConfig locates tool plugins.
type PluginsConfig struct {
	Dir string `mapstructure:"dir"`
}

// Load reads configuration from path (or defaults when empty) with
// INKWELL_ environment overrides. keyring:// values stay unresolved; use
// LoadWithSecrets when a secret store is available.
func Load(path string) (*Config, error) {
	return LoadWithSecrets(path, nil)
}

// LoadWithSecrets is Load plus keyring:// resolution through store.
func LoadWithSecrets(path string, store secrets.Store) (*Config, error) {
	v := viper.New()
	SetDefaults(v)
	SetupEnv(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, inkerr.Wrapf(err, inkerr.CodeConfigLoadReadFailure, "reading config %s", path)
		}
	}

	if store != nil {
		if err := secrets.ResolveViperSecrets(v, store); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, inkerr.Wrapf(err, inkerr.CodeConfigParseInvalidFormat, "unmarshalling config")
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, inkerr.Wrapf(errors.Join(errs...), inkerr.CodeConfigValidateInvalidValue, "validating config")
	}

	return &cfg, nil
}

// SetDefaults installs every default value on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("gateway.listen", "127.0.0.1:8399")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("storage.backend", "sqlite")
	v.SetDefault("providers.default", "anthropic/claude-sonnet-4-5")
	v.SetDefault("agent.max_rounds", 8)
	v.SetDefault("agent.history_window", 50)
	v.SetDefault("approvals.mutating", true)
	v.SetDefault("match.fuzzy_threshold", 0.82)
	v.SetDefault("match.max_candidates", 20)
	v.SetDefault("diff.context_lines", 3)
	v.SetDefault("diff.max_display_lines", 500)
	v.SetDefault("diff.size_ceiling", 1<<20)
}

// SetupEnv binds INKWELL_ environment variables, dots become
// underscores: INKWELL_GATEWAY_LISTEN overrides gateway.listen.
func SetupEnv(v *viper.Viper) {
	v.SetEnvPrefix("INKWELL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// DataDir resolves the data directory, defaulting under the home dir.
func (c *Config) DataDir() (string, error) {
	if c.Gateway.DataDir != "" {
		return c.Gateway.DataDir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", inkerr.Wrapf(err, inkerr.CodeConfigLoadReadFailure, "resolving home directory")
	}
	return filepath.Join(home, ".local", "share", "inkwell"), nil
}

// PluginsDir resolves the plugin root, defaulting to <data>/plugins.
func (c *Config) PluginsDir() (string, error) {
	if c.Plugins.Dir != "" {
		return c.Plugins.Dir, nil
	}
	dataDir, err := c.DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dataDir, "plugins"), nil
}

// Validate collects every problem in the configuration rather than
// stopping at the first one.
func (c *Config) Validate() []error {
	var errs []error

	errs = append(errs, c.validateGateway()...)
	errs = append(errs, c.validateLog()...)
	errs = append(errs, c.validateStorage()...)
	errs = append(errs, c.validateProviders()...)
	errs = append(errs, c.validateAgent()...)
	errs = append(errs, c.validateMatch()...)
	errs = append(errs, c.validateDiff()...)

	return errs
}

func (c *Config) validateGateway() []error {
	var errs []error
	invalid := func(format string, args ...any) {
		errs = append(errs, inkerr.Errorf(inkerr.CodeConfigValidateInvalidValue, "config: "+format, args...))
	}

	if c.Gateway.Listen == "" {
		invalid("gateway.listen must not be empty")
		return errs
	}

	_, portStr, err := net.SplitHostPort(c.Gateway.Listen)
	if err != nil {
		invalid("gateway.listen must be a host:port address, got %q", c.Gateway.Listen)
		return errs
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		invalid("gateway.listen port must be a number, got %q", portStr)
	} else if port < 1 || port > 65535 {
		invalid("gateway.listen port must be between 1 and 65535, got %d", port)
	}

	return errs
}

func (c *Config) validateLog() []error {
	var errs []error

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, inkerr.Errorf(inkerr.CodeConfigValidateInvalidValue,
			"config: log.level must be one of [debug, info, warn, error], got %q", c.Log.Level))
	}

	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, inkerr.Errorf(inkerr.CodeConfigValidateInvalidValue,
			"config: log.format must be one of [text, json], got %q", c.Log.Format))
	}

	return errs
}

func (c *Config) validateStorage() []error {
	switch c.Storage.Backend {
	case "sqlite", "memory":
		return nil
	default:
		return []error{inkerr.Errorf(inkerr.CodeConfigValidateInvalidValue,
			"config: storage.backend must be one of [sqlite, memory], got %q", c.Storage.Backend)}
	}
}

func (c *Config) validateProviders() []error {
	var errs []error
	invalid := func(format string, args ...any) {
		errs = append(errs, inkerr.Errorf(inkerr.CodeConfigValidateInvalidValue, "config: "+format, args...))
	}

	// Until a provider is configured (fresh install) only the ref format
	// is checked; start and doctor report the missing credentials.
	checkConfigured := c.Providers.anyConfigured()

	checkRef := func(key, ref string) {
		name, _, ok := strings.Cut(ref, "/")
		if !ok || name == "" {
			invalid("%s must be in \"provider/model\" format, got %q", key, ref)
			return
		}
		if !slices.Contains(KnownProviders, name) {
			invalid("%s references unknown provider %q (known: %s)",
				key, name, strings.Join(KnownProviders, ", "))
			return
		}
		if checkConfigured && !c.Providers.Configured(name) {
			invalid("%s references provider %q which is not configured", key, name)
		}
	}

	if c.Providers.Default == "" {
		invalid("providers.default must not be empty")
	} else {
		checkRef("providers.default", c.Providers.Default)
	}

	for i, ref := range c.Providers.Failover {
		checkRef("providers.failover["+strconv.Itoa(i)+"]", ref)
	}

	return errs
}

func (c *Config) validateAgent() []error {
	var errs []error

	if !c.Agent.UnlimitedRounds && c.Agent.MaxRounds <= 0 {
		errs = append(errs, inkerr.Errorf(inkerr.CodeConfigValidateInvalidValue,
			"config: agent.max_rounds must be greater than 0, got %d", c.Agent.MaxRounds))
	}
	if c.Agent.HistoryWindow <= 0 {
		errs = append(errs, inkerr.Errorf(inkerr.CodeConfigValidateInvalidValue,
			"config: agent.history_window must be greater than 0, got %d", c.Agent.HistoryWindow))
	}

	return errs
}

func (c *Config) validateMatch() []error {
	var errs []error

	if c.Match.FuzzyThreshold <= 0 || c.Match.FuzzyThreshold > 1 {
		errs = append(errs, inkerr.Errorf(inkerr.CodeConfigValidateInvalidValue,
			"config: match.fuzzy_threshold must be in (0, 1], got %g", c.Match.FuzzyThreshold))
	}
	if c.Match.MaxCandidates <= 0 {
		errs = append(errs, inkerr.Errorf(inkerr.CodeConfigValidateInvalidValue,
			"config: match.max_candidates must be greater than 0, got %d", c.Match.MaxCandidates))
	}

	return errs
}

func (c *Config) validateDiff() []error {
	var errs []error

	if c.Diff.ContextLines < 0 {
		errs = append(errs, inkerr.Errorf(inkerr.CodeConfigValidateInvalidValue,
			"config: diff.context_lines must not be negative, got %d", c.Diff.ContextLines))
	}
	if c.Diff.MaxDisplayLines <= 0 {
		errs = append(errs, inkerr.Errorf(inkerr.CodeConfigValidateInvalidValue,
			"config: diff.max_display_lines must be greater than 0, got %d", c.Diff.MaxDisplayLines))
	}
	if c.Diff.SizeCeiling <= 0 {
		errs = append(errs, inkerr.Errorf(inkerr.CodeConfigValidateInvalidValue,
			"config: diff.size_ceiling must be greater than 0, got %d", c.Diff.SizeCeiling))
	}

	return errs
}
