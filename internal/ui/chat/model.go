// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"go.uber.org/zap"

	"github.com/jeranaias/rigchat/internal/codec"
	"github.com/jeranaias/rigchat/internal/model"
	"github.com/jeranaias/rigchat/internal/session"
	"github.com/jeranaias/rigchat/internal/ui/styles"
)

// =============================================================================
// ENGINE
// =============================================================================

// Engine is the part of the session controller the UI drives.
// *session.Controller satisfies it.
type Engine interface {
	Submit(ctx context.Context, text string) error
	PasteImage(img model.Image) error
	Cancel()
	State() session.State
	Options() session.Options
	SetOptions(opts session.Options)
}

// =============================================================================
// CHAT MODEL
// =============================================================================

// Options configures a chat model.
type Options struct {
	Engine Engine
	Sink   *Sink
	Theme  *styles.Theme
	Logger *zap.Logger

	// Context bounds every turn. Nil means context.Background().
	Context context.Context

	Provider      string
	SessionID     string
	WordWrap      int
	MaxFPS        int
	ImageMaxBytes int

	// Clipboard replaces the system clipboard, for tests.
	Clipboard func(text string) error
}

// Model is the Bubble Tea model for the chat view.
type Model struct {
	engine Engine
	sink   *Sink
	live   *LiveBuffer
	theme  *styles.Theme
	logger *zap.Logger
	ctx    context.Context
	keys   KeyMap

	// Dimensions
	width  int
	height int
	ready  bool

	// UI components
	viewport viewport.Model
	input    textarea.Model
	spinner  spinner.Model

	// Markdown rendering of committed replies, keyed by message ID
	renderer    *glamour.TermRenderer
	renderWidth int
	rendered    map[string]string

	// Conversation as last reported by the session
	history  []model.Message
	liveText string

	// Turn state
	busy      bool
	turnStart time.Time
	lastErr   error
	notice    string

	// Status
	provider      string
	sessionID     string
	wordWrap      int
	imageMaxBytes int
	clipboard     func(string) error
}

// New creates a new chat model.
func New(opts Options) Model {
	theme := opts.Theme
	if theme == nil {
		theme = styles.NewTheme("dark")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx := opts.Context
	if ctx == nil {
		ctx = context.Background()
	}
	sink := opts.Sink
	if sink == nil {
		sink = NewSink()
	}
	live := sink.Live()
	if opts.MaxFPS > 0 {
		live.SetMaxFPS(opts.MaxFPS)
	}
	wrap := opts.WordWrap
	if wrap <= 0 {
		wrap = 80
	}
	maxImage := opts.ImageMaxBytes
	if maxImage <= 0 {
		maxImage = codec.DefaultMaxImageBytes
	}
	clip := opts.Clipboard
	if clip == nil {
		clip = copyToClipboard
	}

	keys := DefaultKeyMap()

	ta := textarea.New()
	ta.Placeholder = "Message, /image <path>, or 'clear'..."
	ta.Prompt = "> "
	ta.ShowLineNumbers = false
	ta.CharLimit = 0
	ta.SetHeight(3)
	ta.KeyMap.InsertNewline = keys.Newline
	ta.Focus()

	sp := spinner.New(
		spinner.WithSpinner(styles.ThinkingSpinner),
		spinner.WithStyle(theme.Spinner),
	)

	return Model{
		engine:        opts.Engine,
		sink:          sink,
		live:          live,
		theme:         theme,
		logger:        logger.Named("tui"),
		ctx:           ctx,
		keys:          keys,
		viewport:      viewport.New(80, 20),
		input:         ta,
		spinner:       sp,
		rendered:      make(map[string]string),
		provider:      opts.Provider,
		sessionID:     opts.SessionID,
		wordWrap:      wrap,
		imageMaxBytes: maxImage,
		clipboard:     clip,
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return textarea.Blink
}

// =============================================================================
// ACCESSORS
// =============================================================================

// History returns the last conversation snapshot shown.
func (m Model) History() []model.Message {
	return m.history
}

// Busy reports whether a submitted input is still being handled.
func (m Model) Busy() bool {
	return m.busy
}

// LastError returns the error currently displayed, if any.
func (m Model) LastError() error {
	return m.lastErr
}

// Notice returns the informational line currently displayed.
func (m Model) Notice() string {
	return m.notice
}

// lastReply returns the text of the most recent assistant message.
func (m Model) lastReply() (string, bool) {
	for i := len(m.history) - 1; i >= 0; i-- {
		if m.history[i].Role == model.RoleAssistant {
			return m.history[i].Text()
		}
	}
	return "", false
}

// contentWidth is the width replies wrap at: the configured word wrap,
// narrowed to fit the terminal.
func (m Model) contentWidth() int {
	w := m.wordWrap
	if m.width > 0 && m.width-4 < w {
		w = m.width - 4
	}
	if w < 20 {
		w = 20
	}
	return w
}
