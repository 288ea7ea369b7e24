// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Inkwell Contributors

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/inkwell-dev/inkwell/internal/config"
	"github.com/inkwell-dev/inkwell/internal/provider"
	"github.com/inkwell-dev/inkwell/internal/secrets"
	inkerr "github.com/inkwell-dev/inkwell/pkg/errors"
	"github.com/spf13/cobra"
)

// initHTTPClient is the HTTP client used for provider key validation.
// Exposed as a variable so tests can replace it.
var initHTTPClient = &http.Client{Timeout: 10 * time.Second}

// ProviderType aliases provider.ProviderName for use in the init wizard.
type ProviderType = provider.ProviderName

const (
	ProviderAnthropic  = provider.ProviderAnthropic
	ProviderOpenAI     = provider.ProviderOpenAI
	ProviderGoogle     = provider.ProviderGoogle
	ProviderOpenRouter = provider.ProviderOpenRouter
)

// initWizardStep tracks which step of the wizard is active.
type initWizardStep int

const (
	stepProvider    initWizardStep = iota // select provider
	stepAPIKey                            // enter API key
	stepValidateKey                       // validating key (spinner)
	stepModel                             // select default model
	stepDone                              // wizard complete
	stepError                             // terminal error
)

// initResult holds the collected wizard configuration.
type initResult struct {
	Provider ProviderType
	APIKey   string
	Model    string
}

// --- bubbletea messages ---

type (
	validationSuccessMsg struct{ step initWizardStep }
	validationErrorMsg   struct {
		step initWizardStep
		err  error
	}
)
type configWrittenMsg struct{ path string }

// --- lipgloss styles ---

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("99"))
	promptStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("212"))
	selectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	successStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	boxStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("62")).Padding(0, 1)
)

var supportedProviders = []ProviderType{
	ProviderAnthropic,
	ProviderOpenAI,
	ProviderGoogle,
	ProviderOpenRouter,
}

// modelChoicesForProvider returns the provider/model routes offered in
// the model step. The first entry is the suggested default.
func modelChoicesForProvider(p ProviderType) []string {
	switch p {
	case ProviderAnthropic:
		return []string{
			"anthropic/claude-sonnet-4-5",
			"anthropic/claude-opus-4-1",
			"anthropic/claude-haiku-4-5",
		}
	case ProviderOpenAI:
		return []string{
			"openai/gpt-4o",
			"openai/gpt-4o-mini",
		}
	case ProviderGoogle:
		return []string{
			"google/gemini-2.0-flash",
			"google/gemini-2.5-pro",
		}
	case ProviderOpenRouter:
		return []string{
			"openrouter/anthropic/claude-sonnet-4-5",
			"openrouter/openai/gpt-4o",
		}
	default:
		return []string{string(p) + "/default"}
	}
}

// initModel is the bubbletea model for the init wizard.
type initModel struct {
	step           initWizardStep
	providerIdx    int
	modelIdx       int
	apiKeyInput    textinput.Model
	spinner        spinner.Model
	result         initResult
	validationErr  string
	configPath     string
	secretStore    secrets.Store
	errFinal       error
	forceOverwrite bool
}

func newInitModel(store secrets.Store) initModel {
	apiKey := textinput.New()
	apiKey.Placeholder = "paste API key here"
	apiKey.EchoMode = textinput.EchoPassword
	apiKey.EchoCharacter = '•'

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	return initModel{
		step:        stepProvider,
		providerIdx: 0,
		modelIdx:    0,
		apiKeyInput: apiKey,
		spinner:     sp,
		secretStore: store,
	}
}

func (m initModel) Init() tea.Cmd {
	return nil
}

func (m initModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case validationSuccessMsg:
		return m.handleValidationSuccess(msg)

	case validationErrorMsg:
		m.validationErr = msg.err.Error()
		if msg.step == stepValidateKey {
			m.step = stepAPIKey
			m.apiKeyInput.Focus()
		}
		return m, nil

	case configWrittenMsg:
		m.step = stepDone
		m.configPath = msg.path
		return m, tea.Quit

	case error:
		m.step = stepError
		m.errFinal = msg
		return m, tea.Quit
	}

	return m.updateInputs(msg)
}

func (m initModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch m.step {
	case stepProvider:
		return m.handleProviderKey(msg)
	case stepAPIKey:
		return m.handleAPIKeyInput(msg)
	case stepModel:
		return m.handleModelKey(msg)
	}
	return m, nil
}

func (m initModel) handleProviderKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "up", "k":
		if m.providerIdx > 0 {
			m.providerIdx--
		}
	case "down", "j":
		if m.providerIdx < len(supportedProviders)-1 {
			m.providerIdx++
		}
	case "enter":
		m.result.Provider = supportedProviders[m.providerIdx]
		m.step = stepAPIKey
		m.validationErr = ""
		m.apiKeyInput.SetValue("")
		m.apiKeyInput.Focus()
		return m, textinput.Blink
	case "q", "ctrl+c":
		return m, tea.Quit
	}
	return m, nil
}

func (m initModel) handleAPIKeyInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		key := strings.TrimSpace(m.apiKeyInput.Value())
		if key == "" {
			m.validationErr = "API key must not be empty"
			return m, nil
		}
		m.result.APIKey = key
		m.validationErr = ""
		m.step = stepValidateKey
		return m, tea.Batch(
			m.spinner.Tick,
			validateProviderKeyCmd(m.result.Provider, key),
		)
	case "ctrl+c":
		return m, tea.Quit
	}
	var cmd tea.Cmd
	m.apiKeyInput, cmd = m.apiKeyInput.Update(msg)
	return m, cmd
}

func (m initModel) handleModelKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	choices := modelChoicesForProvider(m.result.Provider)
	switch msg.String() {
	case "up", "k":
		if m.modelIdx > 0 {
			m.modelIdx--
		}
	case "down", "j":
		if m.modelIdx < len(choices)-1 {
			m.modelIdx++
		}
	case "enter":
		m.result.Model = choices[m.modelIdx]
		m.validationErr = ""
		return m, writeConfigCmd(m.result, m.secretStore, m.forceOverwrite)
	case "q", "ctrl+c":
		return m, tea.Quit
	}
	return m, nil
}

func (m initModel) handleValidationSuccess(msg validationSuccessMsg) (tea.Model, tea.Cmd) {
	if msg.step == stepValidateKey {
		m.step = stepModel
		m.modelIdx = 0
	}
	return m, nil
}

func (m initModel) updateInputs(msg tea.Msg) (tea.Model, tea.Cmd) {
	if m.step == stepAPIKey {
		var cmd tea.Cmd
		m.apiKeyInput, cmd = m.apiKeyInput.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m initModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("  Inkwell Setup Wizard  ") + "\n\n")

	switch m.step {
	case stepProvider:
		b.WriteString(promptStyle.Render("Step 1/2: Pick your drafting provider") + "\n\n")
		for i, p := range supportedProviders {
			if i == m.providerIdx {
				b.WriteString(selectedStyle.Render("  > "+string(p)) + "\n")
			} else {
				b.WriteString(dimStyle.Render("    "+string(p)) + "\n")
			}
		}
		b.WriteString("\n" + dimStyle.Render("↑/↓ to navigate  enter to select  q to quit"))

	case stepAPIKey:
		b.WriteString(promptStyle.Render("Step 1/2: "+string(m.result.Provider)+" API key") + "\n\n")
		b.WriteString(m.apiKeyInput.View() + "\n")
		if m.validationErr != "" {
			b.WriteString("\n" + errorStyle.Render("  "+m.validationErr) + "\n")
		}
		b.WriteString("\n" + dimStyle.Render("enter to continue  ctrl+c to quit"))

	case stepValidateKey:
		b.WriteString(m.spinner.View() + " Validating " + string(m.result.Provider) + " API key…\n")

	case stepModel:
		b.WriteString(promptStyle.Render("Step 2/2: Pick the default model") + "\n\n")
		for i, route := range modelChoicesForProvider(m.result.Provider) {
			if i == m.modelIdx {
				b.WriteString(selectedStyle.Render("  > "+route) + "\n")
			} else {
				b.WriteString(dimStyle.Render("    "+route) + "\n")
			}
		}
		b.WriteString("\n" + dimStyle.Render("↑/↓ to navigate  enter to select  q to quit"))

	case stepDone:
		b.WriteString(successStyle.Render("  Setup complete!  ") + "\n\n")
		if m.configPath != "" {
			b.WriteString(dimStyle.Render("Config written to: "+m.configPath) + "\n\n")
		}
		b.WriteString("Run " + promptStyle.Render("inkwell start") + " and " + promptStyle.Render("inkwell chat") + " to get started.\n")
		b.WriteString("Run " + promptStyle.Render("inkwell doctor") + " to verify setup.\n")

	case stepError:
		b.WriteString(errorStyle.Render("Setup failed: "+m.errFinal.Error()) + "\n")
	}

	return boxStyle.Render(b.String())
}

// --- tea.Cmd factories ---

func validateProviderKeyCmd(p ProviderType, key string) tea.Cmd {
	return func() tea.Msg {
		if err := provider.ValidateKey(context.Background(), initHTTPClient, p, key); err != nil {
			return validationErrorMsg{step: stepValidateKey, err: err}
		}
		return validationSuccessMsg{step: stepValidateKey}
	}
}

func writeConfigCmd(result initResult, store secrets.Store, forceOverwrite bool) tea.Cmd {
	return func() tea.Msg {
		path, err := storeSecretAndWriteConfig(result, store, forceOverwrite)
		if err != nil {
			return err
		}
		return configWrittenMsg{path: path}
	}
}

// --- Config generation (exported for tests) ---

// GenerateConfigYAML produces a minimal inkwell.yaml from the wizard
// result. The API key is referenced via a keyring:// URI; the actual
// secret is stored separately by storeSecretAndWriteConfig.
func GenerateConfigYAML(result initResult) string {
	providerKey := fmt.Sprintf("keyring://%s/%s", secrets.Service, secrets.APIKeyName(string(result.Provider)))

	var sb strings.Builder
	sb.WriteString("# Inkwell configuration generated by inkwell init\n")
	sb.WriteString("# https://github.com/inkwell-dev/inkwell\n\n")

	sb.WriteString("gateway:\n")
	sb.WriteString("  listen: \"127.0.0.1:8399\"\n\n")

	sb.WriteString("storage:\n")
	sb.WriteString("  backend: sqlite\n\n")

	sb.WriteString("providers:\n")
	sb.WriteString(fmt.Sprintf("  default: \"%s\"\n", result.Model))
	sb.WriteString(fmt.Sprintf("  %s:\n", result.Provider))
	sb.WriteString(fmt.Sprintf("    api_key: \"%s\"\n\n", providerKey))

	sb.WriteString("agent:\n")
	sb.WriteString("  max_rounds: 8\n")
	sb.WriteString("  history_window: 50\n\n")

	sb.WriteString("approvals:\n")
	sb.WriteString("  mutating: true\n")

	return sb.String()
}

// storeSecretAndWriteConfig saves the API key to the OS keyring and
// writes the config YAML to the default config path.
//
// When forceOverwrite is false and the config file already exists, an
// error is returned asking the user to pass --force. A stored secret is
// not rolled back when the config write fails; a re-run overwrites it.
func storeSecretAndWriteConfig(result initResult, store secrets.Store, forceOverwrite bool) (string, error) {
	keyName := secrets.APIKeyName(string(result.Provider))
	if err := store.Set(secrets.Service, keyName, result.APIKey); err != nil {
		return "", inkerr.Wrapf(err, inkerr.CodeSecretStoreFailure, "storing %s API key", result.Provider)
	}

	cfgPath, err := configPathForWrite()
	if err != nil {
		return "", err
	}

	if !forceOverwrite {
		if _, statErr := os.Stat(cfgPath); statErr == nil {
			return "", inkerr.Errorf(inkerr.CodeConfigAlreadyExists,
				"config file already exists at %s; use --force to overwrite", cfgPath)
		}
	}

	dir := filepath.Dir(cfgPath)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", inkerr.Wrapf(err, inkerr.CodeConfigLoadReadFailure, "creating config directory %s", dir)
	}

	if err := os.WriteFile(cfgPath, []byte(GenerateConfigYAML(result)), 0o600); err != nil {
		return "", inkerr.Wrapf(err, inkerr.CodeConfigLoadReadFailure, "writing config to %s", cfgPath)
	}

	return cfgPath, nil
}

// configPathForWrite returns the default config path. A variable so
// tests can point writes at a temp directory.
var configPathForWrite = config.DefaultConfigPath

// --- Cobra command ---

func newInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Interactive setup wizard for Inkwell",
		Long: `Run an interactive TUI wizard that walks you through:
  1. Adding your drafting provider (Anthropic, OpenAI, Google, OpenRouter)
  2. Picking the default model

The API key is stored securely in the OS keyring and referenced via a
keyring:// URI in the config file. No secrets are written in plain text.

After completion, run:
  inkwell start     start the gateway
  inkwell chat      start a drafting session
  inkwell doctor    verify your setup`,
		RunE: runInit,
	}

	cmd.Flags().Bool("force", false, "Overwrite existing config file")

	return cmd
}

func runInit(cmd *cobra.Command, _ []string) error {
	f, ok := cmd.InOrStdin().(*os.File)
	if !ok || !isTerminal(f) {
		_, _ = fmt.Fprintln(cmd.ErrOrStderr(),
			"inkwell init requires an interactive terminal.\n"+
				"To configure Inkwell non-interactively, edit ~/.config/inkwell/inkwell.yaml directly.")
		return inkerr.New(inkerr.CodeCLISetupFailure, "inkwell init: not an interactive terminal")
	}

	forceOverwrite, _ := cmd.Flags().GetBool("force")

	m := newInitModel(secretStoreFactory())
	m.forceOverwrite = forceOverwrite

	p := tea.NewProgram(m, tea.WithAltScreen())
	finalModel, err := p.Run()
	if err != nil {
		return inkerr.Wrapf(err, inkerr.CodeCLISetupFailure, "init wizard error")
	}

	fm, ok := finalModel.(initModel)
	if !ok {
		return inkerr.New(inkerr.CodeCLISetupFailure, "unexpected model type after wizard")
	}

	if fm.errFinal != nil {
		return inkerr.Wrapf(fm.errFinal, inkerr.CodeCLISetupFailure, "init failed")
	}

	// Quitting before stepDone is fine, nothing was written.
	return nil
}

// isTerminal reports whether f is a terminal file descriptor.
func isTerminal(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return (fi.Mode() & os.ModeCharDevice) != 0
}
