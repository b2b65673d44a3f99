// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package field provides an interactive terminal text field that is spell
// checked as you type.
//
// The field mirrors its value into a page.MemoryDocument, so the regular
// trigger pipeline and suggestion manager drive it exactly as they drive a
// browser page. Popups reach the program through Renderer.
//
// # Key Types
//
//   - Model: Bubble Tea model for the field, popup and help line
//   - Renderer: suggest.Renderer that turns popups into messages
//
// # Usage
//
//	r := field.NewRenderer()
//	popups := suggest.NewManager(doc, suggest.WithRenderer(r))
//	m := field.New(ctx, field.Config{Doc: doc, FieldID: "try", Popups: popups, Checking: pipeline, Renderer: r})
//	_, err := tea.NewProgram(m).Run()
package field

import (
	"context"
	"errors"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/llmspell/internal/page"
	"github.com/jeranaias/llmspell/internal/suggest"
	"github.com/jeranaias/llmspell/internal/ui/styles"
	"github.com/jeranaias/llmspell/internal/util"
)

// =============================================================================
// PORTS
// =============================================================================

// Popups accepts or rejects the suggestion on screen.
type Popups interface {
	Apply(ctx context.Context) error
	Ignore(ctx context.Context) error
}

// Switch turns as-you-type checking on and off.
type Switch interface {
	SetEnabled(on bool)
	Enabled() bool
}

// Config wires a Model to the checking stack.
type Config struct {
	Doc      *page.MemoryDocument
	FieldID  string
	Popups   Popups
	Checking Switch
	Renderer *Renderer

	// ModelName is shown in the header.
	ModelName string
}

// =============================================================================
// MODEL
// =============================================================================

// Model is the Bubble Tea model of the field.
type Model struct {
	ctx   context.Context
	cfg   Config
	input textinput.Model

	popup *page.Overlay
	err   error
	width int
}

// New creates the model. ctx bounds document and popup calls.
func New(ctx context.Context, cfg Config) Model {
	ti := textinput.New()
	ti.Placeholder = "Start typing; pause after a word to check it"
	ti.CharLimit = 2000
	ti.Width = 60
	ti.Prompt = "> "
	ti.PromptStyle = lipgloss.NewStyle().Foreground(styles.Cyan).Bold(true)
	ti.TextStyle = lipgloss.NewStyle().Foreground(styles.TextPrimary)
	ti.PlaceholderStyle = lipgloss.NewStyle().Foreground(styles.TextMuted).Italic(true)
	ti.Cursor.Style = lipgloss.NewStyle().Foreground(styles.Cyan)
	ti.Focus()

	return Model{ctx: ctx, cfg: cfg, input: ti, width: 80}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.cfg.Renderer.Wait())
}

// Value returns the text in the field.
func (m Model) Value() string {
	return m.input.Value()
}

// Popup returns the suggestion on screen, if any.
func (m Model) Popup() (page.Overlay, bool) {
	if m.popup == nil {
		return page.Overlay{}, false
	}
	return *m.popup, true
}

// Err returns the last document or popup error.
func (m Model) Err() error {
	return m.err
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.input.Width = max(20, msg.Width-6)
		return m, nil

	case OverlayMsg:
		o := msg.Overlay
		m.popup = &o
		return m, m.cfg.Renderer.Wait()

	case OverlayClosedMsg:
		if m.popup != nil && m.popup.ID == msg.ID {
			m.popup = nil
		}
		return m, m.cfg.Renderer.Wait()

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return m, tea.Quit
		case "esc":
			if m.popup == nil {
				return m, tea.Quit
			}
			m.popup = nil
			m.setErr(m.cfg.Popups.Ignore(m.ctx))
			return m, nil
		case "tab":
			if m.popup == nil {
				return m, nil
			}
			m.popup = nil
			m.setErr(m.cfg.Popups.Apply(m.ctx))
			m.syncFromDoc()
			return m, nil
		case "ctrl+e":
			m.cfg.Checking.SetEnabled(!m.cfg.Checking.Enabled())
			return m, nil
		}
	}

	before := m.input.Value()
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	if v := m.input.Value(); v != before {
		m.setErr(m.cfg.Doc.SetText(m.ctx, m.cfg.FieldID, v))
	}
	return m, cmd
}

func (m *Model) setErr(err error) {
	if errors.Is(err, suggest.ErrNoPopup) {
		err = nil
	}
	m.err = err
}

// syncFromDoc copies the document value back after an applied correction,
// which edits the document silently.
func (m *Model) syncFromDoc() {
	f, ok := m.cfg.Doc.Lookup(m.cfg.FieldID)
	if !ok {
		return
	}
	v, err := f.Value(m.ctx)
	if err != nil {
		m.err = err
		return
	}
	m.input.SetValue(v)
	m.input.CursorEnd()
}

// =============================================================================
// VIEW
// =============================================================================

var (
	titleStyle     = lipgloss.NewStyle().Foreground(styles.Cyan).Bold(true)
	mutedStyle     = lipgloss.NewStyle().Foreground(styles.TextMuted)
	onStyle        = lipgloss.NewStyle().Foreground(styles.Emerald)
	offStyle       = lipgloss.NewStyle().Foreground(styles.Amber)
	errStyle       = lipgloss.NewStyle().Foreground(styles.Rose)
	originalStyle  = lipgloss.NewStyle().Foreground(styles.Rose).Strikethrough(true)
	correctedStyle = lipgloss.NewStyle().Foreground(styles.Emerald).Bold(true)
	popupStyle     = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(styles.OverlayDim).
			Padding(0, 1).
			MarginLeft(2)
)

// popupRunes bounds each side of the popup line.
const popupRunes = 32

// View implements tea.Model.
func (m Model) View() string {
	var b strings.Builder

	state := onStyle.Render("checking on")
	if !m.cfg.Checking.Enabled() {
		state = offStyle.Render("checking off")
	}
	header := titleStyle.Render("llmspell")
	if m.cfg.ModelName != "" {
		header += mutedStyle.Render(" · " + m.cfg.ModelName)
	}
	b.WriteString(header + mutedStyle.Render(" · ") + state + "\n\n")

	b.WriteString(m.input.View() + "\n")

	if m.popup != nil {
		line := originalStyle.Render(util.TruncateRunes(m.popup.Original, popupRunes)) +
			mutedStyle.Render(" → ") +
			correctedStyle.Render(util.TruncateRunes(m.popup.Corrected, popupRunes))
		b.WriteString(popupStyle.Render(line) + "\n")
	} else {
		b.WriteString("\n")
	}

	if m.err != nil {
		b.WriteString(errStyle.Render(m.err.Error()) + "\n")
	}

	help := "tab apply · esc ignore · ctrl+e toggle checking · ctrl+c quit"
	if m.popup == nil {
		help = "esc quit · ctrl+e toggle checking · ctrl+c quit"
	}
	b.WriteString("\n" + mutedStyle.Render(help) + "\n")
	return b.String()
}
