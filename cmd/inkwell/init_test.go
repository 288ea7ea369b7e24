// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Inkwell Contributors

package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	inkerr "github.com/inkwell-dev/inkwell/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pressKey(t *testing.T, m initModel, msg tea.KeyMsg) (initModel, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	nm, ok := next.(initModel)
	require.True(t, ok, "Update must return an initModel")
	return nm, cmd
}

func keyRune(r rune) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}}
}

func TestInitModel_ProviderNavigation(t *testing.T) {
	m := newInitModel(newMockSecretStore())
	require.Equal(t, stepProvider, m.step)
	require.Equal(t, 0, m.providerIdx)

	// Up at the top stays put.
	m, _ = pressKey(t, m, tea.KeyMsg{Type: tea.KeyUp})
	assert.Equal(t, 0, m.providerIdx)

	m, _ = pressKey(t, m, tea.KeyMsg{Type: tea.KeyDown})
	m, _ = pressKey(t, m, tea.KeyMsg{Type: tea.KeyDown})
	assert.Equal(t, 2, m.providerIdx)

	// Down past the last entry stays on the last entry.
	for range 5 {
		m, _ = pressKey(t, m, tea.KeyMsg{Type: tea.KeyDown})
	}
	assert.Equal(t, len(supportedProviders)-1, m.providerIdx)

	m, _ = pressKey(t, m, keyRune('k'))
	assert.Equal(t, len(supportedProviders)-2, m.providerIdx)
}

func TestInitModel_SelectProviderAdvances(t *testing.T) {
	m := newInitModel(newMockSecretStore())

	m, _ = pressKey(t, m, keyRune('j'))
	m, cmd := pressKey(t, m, tea.KeyMsg{Type: tea.KeyEnter})

	assert.Equal(t, stepAPIKey, m.step)
	assert.Equal(t, ProviderOpenAI, m.result.Provider)
	assert.NotNil(t, cmd, "entering the key step should start the cursor blink")
}

func TestInitModel_QuitFromProviderStep(t *testing.T) {
	m := newInitModel(newMockSecretStore())

	_, cmd := pressKey(t, m, keyRune('q'))
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestInitModel_EmptyAPIKeyRejected(t *testing.T) {
	m := newInitModel(newMockSecretStore())
	m.step = stepAPIKey
	m.result.Provider = ProviderAnthropic

	m, cmd := pressKey(t, m, tea.KeyMsg{Type: tea.KeyEnter})

	assert.Equal(t, stepAPIKey, m.step)
	assert.Equal(t, "API key must not be empty", m.validationErr)
	assert.Nil(t, cmd)
}

func TestInitModel_APIKeySubmitStartsValidation(t *testing.T) {
	m := newInitModel(newMockSecretStore())
	m.step = stepAPIKey
	m.result.Provider = ProviderAnthropic
	m.apiKeyInput.SetValue("  sk-ant-test-123  ")

	m, cmd := pressKey(t, m, tea.KeyMsg{Type: tea.KeyEnter})

	assert.Equal(t, stepValidateKey, m.step)
	assert.Equal(t, "sk-ant-test-123", m.result.APIKey)
	assert.NotNil(t, cmd)
}

func TestInitModel_ValidationSuccessAdvancesToModel(t *testing.T) {
	m := newInitModel(newMockSecretStore())
	m.step = stepValidateKey
	m.result.Provider = ProviderAnthropic
	m.modelIdx = 2

	next, _ := m.Update(validationSuccessMsg{step: stepValidateKey})
	nm := next.(initModel)

	assert.Equal(t, stepModel, nm.step)
	assert.Equal(t, 0, nm.modelIdx, "model cursor resets on entry")
}

func TestInitModel_ValidationErrorReturnsToAPIKey(t *testing.T) {
	m := newInitModel(newMockSecretStore())
	m.step = stepValidateKey
	m.result.Provider = ProviderAnthropic

	next, _ := m.Update(validationErrorMsg{step: stepValidateKey, err: errors.New("invalid anthropic API key (HTTP 401)")})
	nm := next.(initModel)

	assert.Equal(t, stepAPIKey, nm.step)
	assert.Contains(t, nm.validationErr, "invalid anthropic API key")
}

func TestInitModel_ModelNavigationAndSelect(t *testing.T) {
	m := newInitModel(newMockSecretStore())
	m.step = stepModel
	m.result.Provider = ProviderAnthropic

	m, _ = pressKey(t, m, tea.KeyMsg{Type: tea.KeyDown})
	m, cmd := pressKey(t, m, tea.KeyMsg{Type: tea.KeyEnter})

	assert.Equal(t, "anthropic/claude-opus-4-1", m.result.Model)
	assert.NotNil(t, cmd, "selecting a model should kick off the config write")
}

func TestInitModel_ConfigWrittenFinishes(t *testing.T) {
	m := newInitModel(newMockSecretStore())
	m.step = stepModel

	next, cmd := m.Update(configWrittenMsg{path: "/tmp/inkwell/inkwell.yaml"})
	nm := next.(initModel)

	assert.Equal(t, stepDone, nm.step)
	assert.Equal(t, "/tmp/inkwell/inkwell.yaml", nm.configPath)
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestInitModel_FatalErrorQuits(t *testing.T) {
	m := newInitModel(newMockSecretStore())
	m.step = stepModel

	next, cmd := m.Update(errors.New("keyring locked"))
	nm := next.(initModel)

	assert.Equal(t, stepError, nm.step)
	require.Error(t, nm.errFinal)
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestInitModel_View(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(m *initModel)
		contains []string
	}{
		{
			name:  "provider step",
			setup: func(m *initModel) {},
			contains: []string{
				"Inkwell Setup Wizard",
				"Step 1/2: Pick your drafting provider",
				"anthropic",
				"openrouter",
			},
		},
		{
			name: "api key step",
			setup: func(m *initModel) {
				m.step = stepAPIKey
				m.result.Provider = ProviderOpenAI
			},
			contains: []string{"Step 1/2: openai API key"},
		},
		{
			name: "api key step with error",
			setup: func(m *initModel) {
				m.step = stepAPIKey
				m.result.Provider = ProviderOpenAI
				m.validationErr = "API key must not be empty"
			},
			contains: []string{"API key must not be empty"},
		},
		{
			name: "validating step",
			setup: func(m *initModel) {
				m.step = stepValidateKey
				m.result.Provider = ProviderGoogle
			},
			contains: []string{"Validating google API key"},
		},
		{
			name: "model step",
			setup: func(m *initModel) {
				m.step = stepModel
				m.result.Provider = ProviderAnthropic
			},
			contains: []string{
				"Step 2/2: Pick the default model",
				"anthropic/claude-sonnet-4-5",
				"anthropic/claude-haiku-4-5",
			},
		},
		{
			name: "done step",
			setup: func(m *initModel) {
				m.step = stepDone
				m.configPath = "/home/u/.config/inkwell/inkwell.yaml"
			},
			contains: []string{
				"Setup complete",
				"/home/u/.config/inkwell/inkwell.yaml",
				"inkwell start",
				"inkwell chat",
				"inkwell doctor",
			},
		},
		{
			name: "error step",
			setup: func(m *initModel) {
				m.step = stepError
				m.errFinal = errors.New("keyring locked")
			},
			contains: []string{"Setup failed", "keyring locked"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newInitModel(newMockSecretStore())
			tt.setup(&m)
			view := m.View()
			for _, want := range tt.contains {
				assert.Contains(t, view, want)
			}
		})
	}
}

func TestModelChoicesForProvider(t *testing.T) {
	tests := []struct {
		provider ProviderType
		count    int
		first    string
	}{
		{ProviderAnthropic, 3, "anthropic/claude-sonnet-4-5"},
		{ProviderOpenAI, 2, "openai/gpt-4o"},
		{ProviderGoogle, 2, "google/gemini-2.0-flash"},
		{ProviderOpenRouter, 2, "openrouter/anthropic/claude-sonnet-4-5"},
		{ProviderType("custom"), 1, "custom/default"},
	}

	for _, tt := range tests {
		t.Run(string(tt.provider), func(t *testing.T) {
			choices := modelChoicesForProvider(tt.provider)
			require.Len(t, choices, tt.count)
			assert.Equal(t, tt.first, choices[0])
		})
	}
}

func TestGenerateConfigYAML(t *testing.T) {
	tests := []struct {
		provider ProviderType
		model    string
	}{
		{ProviderAnthropic, "anthropic/claude-sonnet-4-5"},
		{ProviderOpenAI, "openai/gpt-4o"},
		{ProviderGoogle, "google/gemini-2.0-flash"},
		{ProviderOpenRouter, "openrouter/openai/gpt-4o"},
	}

	for _, tt := range tests {
		t.Run(string(tt.provider), func(t *testing.T) {
			yaml := GenerateConfigYAML(initResult{
				Provider: tt.provider,
				APIKey:   "sk-live-supersecret",
				Model:    tt.model,
			})

			assert.Contains(t, yaml, fmt.Sprintf("keyring://inkwell/%s-api-key", tt.provider))
			assert.Contains(t, yaml, fmt.Sprintf("default: %q", tt.model))
			assert.NotContains(t, yaml, "sk-live-supersecret", "API keys never land in the config file")

			for _, section := range []string{"gateway:", "storage:", "providers:", "agent:", "approvals:"} {
				assert.Contains(t, yaml, section)
			}
			assert.Contains(t, yaml, "max_rounds: 8")
		})
	}
}

func overrideConfigPath(t *testing.T, path string) {
	t.Helper()
	orig := configPathForWrite
	configPathForWrite = func() (string, error) { return path, nil }
	t.Cleanup(func() { configPathForWrite = orig })
}

func TestStoreSecretAndWriteConfig(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config", "inkwell.yaml")
	overrideConfigPath(t, cfgPath)

	mock := newMockSecretStore()
	result := initResult{
		Provider: ProviderAnthropic,
		APIKey:   "sk-ant-test",
		Model:    "anthropic/claude-sonnet-4-5",
	}

	path, err := storeSecretAndWriteConfig(result, mock, false)
	require.NoError(t, err)
	assert.Equal(t, cfgPath, path)

	assert.Equal(t, "sk-ant-test", mock.data["anthropic-api-key"])

	written, err := os.ReadFile(cfgPath)
	require.NoError(t, err)
	assert.Contains(t, string(written), "keyring://inkwell/anthropic-api-key")
	assert.NotContains(t, string(written), "sk-ant-test")
}

func TestStoreSecretAndWriteConfig_OverwriteProtection(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "inkwell.yaml")
	overrideConfigPath(t, cfgPath)
	require.NoError(t, os.WriteFile(cfgPath, []byte("# existing\n"), 0o600))

	mock := newMockSecretStore()
	result := initResult{
		Provider: ProviderOpenAI,
		APIKey:   "sk-oai-test",
		Model:    "openai/gpt-4o",
	}

	_, err := storeSecretAndWriteConfig(result, mock, false)
	require.Error(t, err)
	assert.True(t, inkerr.HasCode(err, inkerr.CodeConfigAlreadyExists))
	assert.Contains(t, err.Error(), "--force to overwrite")

	// --force replaces the existing file.
	path, err := storeSecretAndWriteConfig(result, mock, true)
	require.NoError(t, err)
	written, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(written), "openai/gpt-4o")
}

type failingSecretStore struct{}

func (failingSecretStore) Set(_, _, _ string) error        { return errors.New("keyring locked") }
func (failingSecretStore) Get(_, _ string) (string, error) { return "", errors.New("keyring locked") }
func (failingSecretStore) Delete(_, _ string) error        { return errors.New("keyring locked") }
func (failingSecretStore) List(_ string) ([]string, error) { return nil, errors.New("keyring locked") }

func TestStoreSecretAndWriteConfig_SecretFailure(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "inkwell.yaml")
	overrideConfigPath(t, cfgPath)

	_, err := storeSecretAndWriteConfig(initResult{
		Provider: ProviderAnthropic,
		APIKey:   "sk-ant-test",
		Model:    "anthropic/claude-sonnet-4-5",
	}, failingSecretStore{}, false)

	require.Error(t, err)
	assert.True(t, inkerr.HasCode(err, inkerr.CodeSecretStoreFailure))
	assert.NoFileExists(t, cfgPath, "config must not be written when the secret store fails")
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func swapInitHTTPClient(t *testing.T, status int) {
	t.Helper()
	orig := initHTTPClient
	initHTTPClient = &http.Client{Transport: roundTripFunc(func(_ *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: status,
			Body:       io.NopCloser(strings.NewReader("{}")),
			Header:     make(http.Header),
		}, nil
	})}
	t.Cleanup(func() { initHTTPClient = orig })
}

func TestValidateProviderKeyCmd(t *testing.T) {
	t.Run("valid key", func(t *testing.T) {
		swapInitHTTPClient(t, http.StatusOK)
		msg := validateProviderKeyCmd(ProviderAnthropic, "sk-ant-test")()
		assert.IsType(t, validationSuccessMsg{}, msg)
	})

	t.Run("rejected key", func(t *testing.T) {
		swapInitHTTPClient(t, http.StatusUnauthorized)
		msg := validateProviderKeyCmd(ProviderAnthropic, "sk-ant-bad")()
		errMsg, ok := msg.(validationErrorMsg)
		require.True(t, ok, "expected validationErrorMsg, got %T", msg)
		assert.Contains(t, errMsg.err.Error(), "invalid anthropic API key")
	})
}

func TestInit_RequiresTerminal(t *testing.T) {
	root := NewRootCmd()
	out := new(bytes.Buffer)
	errOut := new(bytes.Buffer)
	root.SetOut(out)
	root.SetErr(errOut)
	root.SetIn(bytes.NewBufferString(""))
	root.SetArgs([]string{"init"})

	err := root.Execute()
	require.Error(t, err)
	assert.True(t, inkerr.HasCode(err, inkerr.CodeCLISetupFailure))
	assert.Contains(t, errOut.String(), "interactive terminal")
}
