// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/jeranaias/rigchat/internal/codec"
	"github.com/jeranaias/rigchat/internal/session"
	"github.com/jeranaias/rigchat/internal/util"
)

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case HistoryMsg:
		m.history = msg.Messages
		m.refresh()
		return m, nil

	case ErrorMsg:
		m.lastErr = msg.Err
		return m, nil

	case ResetMsg:
		m.history = nil
		m.liveText = ""
		m.rendered = make(map[string]string)
		m.lastErr = nil
		m.notice = "Conversation cleared."
		m.refresh()
		return m, nil

	case LiveTickMsg:
		if !m.busy {
			return m, nil
		}
		if text, ok := m.live.Flush(); ok {
			m.liveText = text
			m.refresh()
		}
		return m, liveTickCmd(m.live.Interval())

	case TurnDoneMsg:
		return m.finishTurn(msg), nil

	case ImageLoadedMsg:
		if msg.Err != nil {
			m.lastErr = msg.Err
			return m, nil
		}
		return m, m.attachCmd(msg.Path, msg)

	case ImageAttachedMsg:
		if msg.Err != nil {
			if errors.Is(msg.Err, session.ErrTurnInFlight) {
				m.notice = "Wait for the reply to finish before attaching."
				return m, nil
			}
			m.lastErr = msg.Err
			return m, nil
		}
		m.lastErr = nil
		m.notice = fmt.Sprintf("Attached %s. It will be sent with your next message.", msg.Path)
		return m, nil

	case CopiedMsg:
		if msg.Err != nil {
			m.lastErr = fmt.Errorf("copy failed: %w", msg.Err)
		} else {
			m.notice = fmt.Sprintf("Copied %s to the clipboard.", util.Plural(msg.Chars, "character"))
		}
		return m, nil

	case ConfigReloadedMsg:
		m.applyConfig(msg)
		return m, nil

	case spinner.TickMsg:
		if !m.busy {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

// =============================================================================
// KEYS
// =============================================================================

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		if m.engine != nil {
			m.engine.Cancel()
		}
		return m, tea.Quit

	case key.Matches(msg, m.keys.Cancel):
		if m.busy && m.engine != nil {
			m.engine.Cancel()
			m.notice = "Cancelling..."
		}
		return m, nil

	case key.Matches(msg, m.keys.Clear):
		return m.submit(session.ResetCommand)

	case key.Matches(msg, m.keys.Copy):
		text, ok := m.lastReply()
		if !ok || text == "" {
			m.notice = "No reply to copy yet."
			return m, nil
		}
		return m, copyCmd(m.clipboard, text)

	case key.Matches(msg, m.keys.PageUp), key.Matches(msg, m.keys.PageDown):
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd

	case key.Matches(msg, m.keys.Submit):
		line := m.input.Value()
		m.input.Reset()
		return m.handleLine(line)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleLine(line string) (tea.Model, tea.Cmd) {
	action := ParseInput(line)
	switch action.Kind {
	case ActionNone:
		return m, nil
	case ActionHelp:
		m.notice = helpText(m.keys)
		return m, nil
	case ActionQuit:
		if m.engine != nil {
			m.engine.Cancel()
		}
		return m, tea.Quit
	case ActionUnknownCommand:
		m.lastErr = fmt.Errorf("unknown command %s (try /help)", action.Text)
		return m, nil
	case ActionImage:
		m.notice = "Loading " + action.Text + "..."
		return m, loadImageCmd(action.Text, m.imageMaxBytes)
	default:
		return m.submit(action.Text)
	}
}

// =============================================================================
// TURNS
// =============================================================================

// submit hands text to the session on a command goroutine. The model stays
// responsive and learns the outcome from sink messages and TurnDoneMsg.
func (m Model) submit(text string) (tea.Model, tea.Cmd) {
	if m.engine == nil {
		return m, nil
	}
	if m.busy {
		m.notice = "A reply is still in progress (Esc to cancel)."
		return m, nil
	}

	m.busy = true
	m.turnStart = time.Now()
	m.lastErr = nil
	m.notice = ""
	m.liveText = ""
	m.live.Reset()

	engine, ctx, logger := m.engine, m.ctx, m.logger
	run := func() tea.Msg {
		err := engine.Submit(ctx, text)
		if err != nil {
			logger.Debug("submit finished with error", zap.Error(err))
		}
		return TurnDoneMsg{Input: text, Err: err}
	}
	return m, tea.Batch(run, m.spinner.Tick, liveTickCmd(m.live.Interval()))
}

func (m Model) finishTurn(msg TurnDoneMsg) Model {
	m.busy = false
	m.live.Reset()
	m.liveText = ""

	switch {
	case msg.Err == nil:
	case errors.Is(msg.Err, session.ErrTurnInFlight):
		m.notice = "A reply is still in progress (Esc to cancel)."
	case errors.Is(msg.Err, session.ErrTurnCancelled):
		m.lastErr = nil
		m.notice = "Reply cancelled."
	default:
		m.lastErr = msg.Err
	}
	m.refresh()
	return m
}

func (m Model) attachCmd(path string, loaded ImageLoadedMsg) tea.Cmd {
	engine := m.engine
	if engine == nil {
		return nil
	}
	return func() tea.Msg {
		return ImageAttachedMsg{Path: path, Err: engine.PasteImage(loaded.Image)}
	}
}

func loadImageCmd(path string, maxBytes int) tea.Cmd {
	return func() tea.Msg {
		img, err := codec.LoadImageFile(path, maxBytes)
		return ImageLoadedMsg{Path: path, Image: img, Err: err}
	}
}

func copyCmd(write func(string) error, text string) tea.Cmd {
	return func() tea.Msg {
		return CopiedMsg{Chars: len([]rune(text)), Err: write(text)}
	}
}

// copyToClipboard copies the given text to the system clipboard.
func copyToClipboard(text string) error {
	return clipboard.WriteAll(text)
}

// =============================================================================
// CONFIG
// =============================================================================

func (m *Model) applyConfig(msg ConfigReloadedMsg) {
	cfg := msg.Config
	if cfg == nil || m.engine == nil {
		return
	}
	m.engine.SetOptions(session.Options{
		Model:       cfg.Model.ResolvedName(),
		MaxTokens:   cfg.Model.MaxTokens,
		IdleTimeout: cfg.Model.IdleTimeout(),
	})
	m.live.SetMaxFPS(cfg.UI.MaxFPS)
	if cfg.Image.MaxBytes > 0 {
		m.imageMaxBytes = cfg.Image.MaxBytes
	}
	if cfg.UI.WordWrap > 0 && cfg.UI.WordWrap != m.wordWrap {
		m.wordWrap = cfg.UI.WordWrap
		m.rendered = make(map[string]string)
		m.refresh()
	}
	m.notice = "Configuration reloaded."
}

func helpText(k KeyMap) string {
	var b strings.Builder
	b.WriteString("Commands: /image <path>  /help  /quit  clear\n")
	for _, group := range k.FullHelp() {
		for i, binding := range group {
			if i > 0 {
				b.WriteString("  ")
			}
			h := binding.Help()
			b.WriteString(h.Key + " " + h.Desc)
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
