// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/sigil-dev/mnemo/internal/config"
	"github.com/sigil-dev/mnemo/internal/embedding"
	"github.com/sigil-dev/mnemo/internal/secrets"
	"github.com/sigil-dev/mnemo/internal/vector"
	sigilerr "github.com/sigil-dev/mnemo/pkg/errors"
)

type wizardStep int

const (
	stepProvider wizardStep = iota
	stepAPIKey
	stepValidateKey
	stepBackend
	stepEndpoint
	stepDone
	stepError
)

var (
	supportedProviders = []string{"openai", "google", "ollama"}
	supportedBackends  = []string{vector.DefaultProvider, "chromem", "qdrant", "milvus", "pgvector"}
)

// defaultCollection names the remote collection the wizard configures.
const defaultCollection = "mnemo"

// endpointPrompt names the single setting a remote backend needs.
var endpointPrompt = map[string]string{
	"qdrant":   "Qdrant gRPC URL (e.g. http://localhost:6334)",
	"milvus":   "Milvus address (e.g. localhost:19530)",
	"pgvector": "PostgreSQL DSN (stored in the keyring)",
}

type initResult struct {
	Provider string
	APIKey   string
	Backend  string
	Endpoint string
}

type (
	keyValidMsg   struct{}
	keyInvalidMsg struct{ err error }
	writtenMsg    struct{ path string }
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("99"))
	promptStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("212"))
	selectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	boxStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("62")).Padding(0, 1)
)

// probeProvider embeds a short text to check a credential. Tests replace it.
var probeProvider = func(ctx context.Context, provider, apiKey string) error {
	p, err := embedding.New(embedding.Config{Provider: provider, APIKey: apiKey, Timeout: embedding.DefaultTimeout})
	if err != nil {
		return err
	}
	_, err = p.Embed(ctx, "mnemo")
	return err
}

// configPathForWrite is swapped out in tests.
var configPathForWrite = func() (string, error) {
	dir, err := config.DefaultConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "mnemo.yaml"), nil
}

type initModel struct {
	step        wizardStep
	cursor      int
	input       textinput.Model
	spinner     spinner.Model
	result      initResult
	problem     string
	store       secrets.Store
	force       bool
	writtenPath string
	err         error
}

func newInitModel(store secrets.Store) initModel {
	in := textinput.New()
	in.EchoMode = textinput.EchoPassword
	in.EchoCharacter = '•'

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return initModel{step: stepProvider, input: in, spinner: sp, store: store}
}

func (m initModel) Init() tea.Cmd { return nil }

func (m initModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			return m, tea.Quit
		}
		switch m.step {
		case stepProvider:
			return m.choose(msg, supportedProviders, m.pickProvider)
		case stepBackend:
			return m.choose(msg, supportedBackends, m.pickBackend)
		case stepAPIKey, stepEndpoint:
			return m.typeInput(msg)
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case keyValidMsg:
		m.step, m.cursor = stepBackend, 0
		return m, nil

	case keyInvalidMsg:
		m.step = stepAPIKey
		m.problem = msg.err.Error()
		m.input.Focus()
		return m, nil

	case writtenMsg:
		m.step = stepDone
		m.writtenPath = msg.path
		return m, tea.Quit

	case error:
		m.step = stepError
		m.err = msg
		return m, tea.Quit
	}
	return m, nil
}

func (m initModel) choose(msg tea.KeyMsg, options []string, pick func(string) (initModel, tea.Cmd)) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "up", "k":
		m.cursor = max(0, m.cursor-1)
	case "down", "j":
		m.cursor = min(len(options)-1, m.cursor+1)
	case "enter":
		return pick(options[m.cursor])
	case "q":
		return m, tea.Quit
	}
	return m, nil
}

func (m initModel) pickProvider(p string) (initModel, tea.Cmd) {
	m.result.Provider = p
	m.problem = ""
	if p == "ollama" {
		m.step, m.cursor = stepBackend, 0
		return m, nil
	}
	m.step = stepAPIKey
	m.input.SetValue("")
	m.input.Placeholder = "paste " + p + " API key"
	m.input.EchoMode = textinput.EchoPassword
	m.input.Focus()
	return m, textinput.Blink
}

func (m initModel) pickBackend(b string) (initModel, tea.Cmd) {
	m.result.Backend = b
	m.problem = ""
	if _, remote := endpointPrompt[b]; !remote {
		return m, writeConfigCmd(m.result, m.store, m.force)
	}
	m.step = stepEndpoint
	m.input.SetValue("")
	m.input.Placeholder = endpointPrompt[b]
	if b == "pgvector" {
		m.input.EchoMode = textinput.EchoPassword
	} else {
		m.input.EchoMode = textinput.EchoNormal
	}
	m.input.Focus()
	return m, textinput.Blink
}

func (m initModel) typeInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.Type != tea.KeyEnter {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}

	value := strings.TrimSpace(m.input.Value())
	if value == "" {
		m.problem = "value must not be empty"
		return m, nil
	}
	m.problem = ""
	m.input.Blur()

	if m.step == stepAPIKey {
		m.result.APIKey = value
		m.step = stepValidateKey
		return m, tea.Batch(m.spinner.Tick, validateKeyCmd(m.result.Provider, value))
	}
	m.result.Endpoint = value
	return m, writeConfigCmd(m.result, m.store, m.force)
}

func (m initModel) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("  mnemo setup  ") + "\n\n")

	list := func(title string, options []string) {
		b.WriteString(promptStyle.Render(title) + "\n\n")
		for i, o := range options {
			if i == m.cursor {
				b.WriteString(selectedStyle.Render("  > "+o) + "\n")
			} else {
				b.WriteString(dimStyle.Render("    "+o) + "\n")
			}
		}
		b.WriteString("\n" + dimStyle.Render("↑/↓ navigate  enter select  q quit"))
	}

	switch m.step {
	case stepProvider:
		list("Step 1/2: embedding provider", supportedProviders)
	case stepAPIKey:
		b.WriteString(promptStyle.Render("Step 1/2: "+m.result.Provider+" API key") + "\n\n" + m.input.View() + "\n")
	case stepValidateKey:
		b.WriteString(m.spinner.View() + " Checking " + m.result.Provider + " credentials…\n")
	case stepBackend:
		list("Step 2/2: vector backend", supportedBackends)
	case stepEndpoint:
		b.WriteString(promptStyle.Render("Step 2/2: "+endpointPrompt[m.result.Backend]) + "\n\n" + m.input.View() + "\n")
	case stepDone:
		b.WriteString(selectedStyle.Render("Setup complete") + "\n\n")
		b.WriteString(dimStyle.Render("Config written to "+m.writtenPath) + "\n")
		b.WriteString("Run " + promptStyle.Render("mnemo serve") + " to start the API.\n")
	case stepError:
		b.WriteString(errorStyle.Render("Setup failed: "+m.err.Error()) + "\n")
	}
	if m.problem != "" {
		b.WriteString("\n" + errorStyle.Render("  "+m.problem) + "\n")
	}
	return boxStyle.Render(b.String())
}

func validateKeyCmd(provider, key string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := probeProvider(ctx, provider, key); err != nil {
			return keyInvalidMsg{err: err}
		}
		return keyValidMsg{}
	}
}

func writeConfigCmd(result initResult, store secrets.Store, force bool) tea.Cmd {
	return func() tea.Msg {
		path, err := writeInitConfig(result, store, force)
		if err != nil {
			return err
		}
		return writtenMsg{path: path}
	}
}

func keyringRef(name string) string {
	return "keyring://" + secrets.DefaultService + "/" + name
}

// buildInitConfig turns wizard answers into a config. Credentials become
// keyring references; the returned map holds the values to store.
func buildInitConfig(r initResult) (*config.Config, map[string]string) {
	cfg := config.Default()
	stored := map[string]string{}

	cfg.Embedding.Provider = r.Provider
	if r.APIKey != "" {
		name := r.Provider + "-api-key"
		stored[name] = r.APIKey
		cfg.Embedding.APIKey = keyringRef(name)
	}

	cfg.Vector.Provider = r.Backend
	switch r.Backend {
	case "qdrant":
		cfg.Vector.Qdrant.URL = r.Endpoint
		cfg.Vector.Qdrant.Collection = defaultCollection
	case "milvus":
		cfg.Vector.Milvus.URI = r.Endpoint
		cfg.Vector.Milvus.Collection = defaultCollection
	case "pgvector":
		stored["pgvector-dsn"] = r.Endpoint
		cfg.Vector.PGVector.DSN = keyringRef("pgvector-dsn")
	}
	return cfg, stored
}

func writeInitConfig(r initResult, store secrets.Store, force bool) (string, error) {
	path, err := configPathForWrite()
	if err != nil {
		return "", err
	}
	if !force {
		if _, err := os.Stat(path); err == nil {
			return "", sigilerr.Errorf(sigilerr.CodeCLIInputInvalid,
				"config file already exists at %s; use --force to overwrite", path)
		}
	}

	cfg, stored := buildInitConfig(r)
	for name, value := range stored {
		if err := store.Set(secrets.DefaultService, name, value); err != nil {
			return "", err
		}
	}

	data, err := cfg.Encode()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return "", sigilerr.Errorf(sigilerr.CodeCLISetupFailure, "creating config directory: %w", err)
	}
	header := "# generated by mnemo init\n"
	if err := os.WriteFile(path, append([]byte(header), data...), 0o600); err != nil {
		return "", sigilerr.Errorf(sigilerr.CodeCLISetupFailure, "writing %s: %w", path, err)
	}
	return path, nil
}

func newInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Interactive setup wizard",
		Long: `Pick an embedding provider and a vector backend, check the provider
credential, and write ~/.config/mnemo/mnemo.yaml. Credentials go to the OS
keyring and are referenced as keyring:// URIs.`,
		Args: cobra.NoArgs,
		RunE: runInit,
	}
	cmd.Flags().Bool("force", false, "overwrite an existing config file")
	return cmd
}

func runInit(cmd *cobra.Command, _ []string) error {
	f, ok := cmd.InOrStdin().(*os.File)
	if !ok || !isTerminal(f) {
		_, _ = fmt.Fprintln(cmd.ErrOrStderr(),
			"mnemo init needs an interactive terminal; edit ~/.config/mnemo/mnemo.yaml instead.")
		return sigilerr.New(sigilerr.CodeCLISetupFailure, "mnemo init: not an interactive terminal")
	}

	m := newInitModel(secretStoreFactory())
	m.force, _ = cmd.Flags().GetBool("force")

	final, err := tea.NewProgram(m, tea.WithAltScreen()).Run()
	if err != nil {
		return sigilerr.Errorf(sigilerr.CodeCLISetupFailure, "init wizard: %w", err)
	}
	if fm, ok := final.(initModel); ok {
		if fm.err != nil {
			return fm.err
		}
		if fm.writtenPath != "" {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", fm.writtenPath)
		}
	}
	return nil
}

func isTerminal(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}
