// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// chat.go - Line-oriented chat for terminals and pipes.
//
// Interactive commands:
//   /image <path>       Attach an image to the next message
//   /history            Show the conversation so far
//   /help, /h           Show available commands
//   /quit, /q           Exit chat
//   clear               Start a new conversation
//   Ctrl+C              Cancel the reply in progress
//   Ctrl+D              Exit chat

package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/charmbracelet/glamour"
	"github.com/peterh/liner"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jeranaias/rigchat/internal/codec"
	"github.com/jeranaias/rigchat/internal/config"
	"github.com/jeranaias/rigchat/internal/logging"
	"github.com/jeranaias/rigchat/internal/model"
	"github.com/jeranaias/rigchat/internal/session"
	"github.com/jeranaias/rigchat/internal/util"
)

func newChatCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Chat line by line in the terminal",
		Long: `Chat line by line in the terminal.

Replies stream as they arrive. Type "clear" to start a new conversation,
/image <path> to attach an image, /help for commands.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runChat(cmd.Context(), flags, cmd.OutOrStdout())
		},
	}
}

// runChat runs the REPL until the user quits or input ends.
func runChat(ctx context.Context, flags *rootFlags, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := flags.loadConfig()
	if err != nil {
		return err
	}

	logger, closeLog, err := logging.NewFile(config.ExpandPath(cfg.Log.File), logging.Options{
		Level: cfg.Log.Level,
		Debug: flags.debug,
	}, flags.debug)
	if err != nil {
		return err
	}
	defer closeLog()

	interactive := IsTTY()

	gate, err := newGate(cfg, logger)
	if err != nil {
		return err
	}
	var piped *plainReader
	prompt := terminalPrompter
	if !interactive {
		piped = newPlainReader(os.Stdin)
		prompt = readerPrompter(piped, os.Stderr)
	}
	if err := unlock(gate, prompt, os.Stderr); err != nil {
		return err
	}

	sink := newReplSink(out, os.Stderr)
	if IsStdoutTTY() {
		sink.EnableMarkdown(GetTerminalWidth())
	}

	eng, err := newEngine(cfg, gate, sink, logger)
	if err != nil {
		return err
	}
	defer eng.Close()

	var lines lineReader
	if interactive {
		lc := newLinerReader()
		defer lc.Close()
		lines = lc
	} else {
		lines = piped
	}

	src := &replSource{
		lines:    lines,
		out:      out,
		prompt:   promptStyle.Render("rigchat> "),
		maxBytes: cfg.Image.MaxBytes,
		history:  eng.session.Conversation().Snapshot,
	}

	// First Ctrl+C cancels the reply in progress. At the prompt liner owns
	// the terminal and reports Ctrl+C itself.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case sig := <-sigChan:
				if sig == syscall.SIGTERM {
					cancel()
				}
				if eng.controller.State().Busy() {
					eng.controller.Cancel()
				}
			}
		}
	}()

	if interactive {
		printWelcome(out, cfg, eng.session.ID())
	}

	err = eng.controller.Run(ctx, src)
	if interactive {
		printExitSummary(out, eng.session.GetStatus())
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	if err != nil {
		logger.Warn("chat ended with error", zap.Error(err))
	}
	return err
}

// =============================================================================
// INPUT
// =============================================================================

// lineReader reads one line of user input.
type lineReader interface {
	ReadLine(prompt string) (string, error)
}

// linerReader provides history and line editing for interactive chat.
type linerReader struct {
	line        *liner.State
	historyFile string
}

func newLinerReader() *linerReader {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	configDir, err := config.ConfigDir()
	if err != nil {
		configDir = os.TempDir()
	}
	lr := &linerReader{line: line, historyFile: filepath.Join(configDir, "chat_history")}
	if f, err := os.Open(lr.historyFile); err == nil {
		_, _ = line.ReadHistory(f)
		f.Close()
	}
	return lr
}

// ReadLine reads a line, adding non-blank input to the history.
func (l *linerReader) ReadLine(prompt string) (string, error) {
	input, err := l.line.Prompt(prompt)
	if err != nil {
		if errors.Is(err, liner.ErrPromptAborted) {
			return "", io.EOF
		}
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		l.line.AppendHistory(input)
	}
	return input, nil
}

// Close saves history with owner-only permissions and restores the terminal.
func (l *linerReader) Close() {
	if err := os.MkdirAll(filepath.Dir(l.historyFile), 0700); err == nil {
		if f, err := os.OpenFile(l.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600); err == nil {
			_, _ = l.line.WriteHistory(f)
			f.Close()
		}
	}
	l.line.Close()
}

// plainReader reads lines from a pipe without prompting.
type plainReader struct {
	r *bufio.Reader
}

func newPlainReader(r io.Reader) *plainReader {
	return &plainReader{r: bufio.NewReader(r)}
}

func (p *plainReader) ReadLine(string) (string, error) {
	line, err := p.r.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// replSource turns typed lines into session inputs. Local commands are
// handled here and never reach the session.
type replSource struct {
	lines    lineReader
	out      io.Writer
	prompt   string
	maxBytes int
	history  func() []model.Message
}

// RequestInput implements session.InputSource.
func (s *replSource) RequestInput(ctx context.Context) (session.Input, error) {
	for {
		if err := ctx.Err(); err != nil {
			return session.Input{}, err
		}
		line, err := s.lines.ReadLine(s.prompt)
		if err != nil {
			return session.Input{}, err
		}

		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if !strings.HasPrefix(trimmed, "/") {
			return session.TextInput(line), nil
		}

		fields := strings.Fields(trimmed)
		switch strings.ToLower(fields[0]) {
		case "/quit", "/q", "/exit":
			return session.Input{}, io.EOF
		case "/help", "/h", "/?":
			printHelp(s.out)
		case "/history":
			printHistory(s.out, s.history())
		case "/image", "/img":
			path := strings.TrimSpace(strings.TrimPrefix(trimmed, fields[0]))
			if path == "" {
				fmt.Fprintln(s.out, warningStyle.Render("Usage: /image <path>"))
				continue
			}
			img, err := codec.LoadImageFile(path, s.maxBytes)
			if err != nil {
				fmt.Fprintf(s.out, "%s %v\n", errorStyle.Render("[Error]"), err)
				continue
			}
			fmt.Fprintln(s.out, commandStyle.Render("[Image attached: "+describeImage(img)+"]"))
			return session.ImageInput(img), nil
		default:
			// Absolute paths and other slash-led text are ordinary messages.
			if strings.Contains(fields[0][1:], "/") {
				return session.TextInput(line), nil
			}
			fmt.Fprintf(s.out, "%s unknown command %s (try /help)\n", errorStyle.Render("[Error]"), fields[0])
		}
	}
}

// =============================================================================
// OUTPUT
// =============================================================================

// replSink prints session output to a terminal or pipe. Live text is
// written as it grows: each call prints only the new suffix.
type replSink struct {
	mu      sync.Mutex
	out     io.Writer
	errOut  io.Writer
	printed string

	renderer *glamour.TermRenderer
	width    int
}

func newReplSink(out, errOut io.Writer) *replSink {
	return &replSink{out: out, errOut: errOut}
}

// EnableMarkdown re-renders each finished reply through glamour, replacing
// the raw streamed text.
func (s *replSink) EnableMarkdown(width int) {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width-2),
	)
	if err != nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.renderer = r
	s.width = width
}

// DisplayLive implements session.Sink.
func (s *replSink) DisplayLive(partial string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if strings.HasPrefix(partial, s.printed) {
		fmt.Fprint(s.out, partial[len(s.printed):])
	} else {
		fmt.Fprint(s.out, "\n"+partial)
	}
	s.printed = partial
}

// DisplayHistory implements session.Sink. A snapshot ending in an
// assistant reply closes the streamed output.
func (s *replSink) DisplayHistory(snapshot []model.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(snapshot) == 0 || snapshot[len(snapshot)-1].Role != model.RoleAssistant {
		return
	}
	text, _ := snapshot[len(snapshot)-1].Text()
	defer func() { s.printed = "" }()

	if s.renderer != nil && text != "" && s.printed == text {
		if rendered, err := s.renderer.Render(text); err == nil {
			fmt.Fprint(s.out, rewindSequence(s.printed, s.width))
			fmt.Fprint(s.out, rendered)
			return
		}
	}
	if s.printed != "" {
		fmt.Fprintln(s.out)
	}
}

// DisplayError implements session.Sink.
func (s *replSink) DisplayError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.printed != "" {
		fmt.Fprintln(s.out)
		s.printed = ""
	}
	if errors.Is(err, session.ErrTurnCancelled) {
		fmt.Fprintln(s.errOut, warningStyle.Render("[Cancelled]"))
		return
	}
	fmt.Fprintf(s.errOut, "%s %v\n", errorStyle.Render("[Error]"), err)
}

// NotifyReset implements session.Sink.
func (s *replSink) NotifyReset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.printed = ""
	fmt.Fprintln(s.out, commandStyle.Render("[Conversation cleared]"))
}

// =============================================================================
// DISPLAY HELPERS
// =============================================================================

func describeImage(img model.Image) string {
	size := util.FormatBytes(len(img.Data))
	if w, h, err := codec.ImageDimensions(img.Data); err == nil {
		return fmt.Sprintf("%s %dx%d %s", img.MediaType, w, h, size)
	}
	return img.MediaType + " " + size
}

func printWelcome(out io.Writer, cfg *config.Config, sessionID string) {
	fmt.Fprintln(out, welcomeStyle.Render("rigchat interactive chat"))
	fmt.Fprintln(out, infoStyle.Render(strings.Repeat("─", 30)))
	fmt.Fprintf(out, "%s %s\n", labelStyle.Render("Provider:"), commandStyle.Render(cfg.Model.Provider))
	fmt.Fprintf(out, "%s %s\n", labelStyle.Render("Model:"), commandStyle.Render(cfg.Model.ResolvedName()))
	fmt.Fprintf(out, "%s %s\n", labelStyle.Render("Session:"), infoStyle.Render(sessionID))
	fmt.Fprintln(out)
	fmt.Fprintln(out, infoStyle.Render("Type your message and press Enter. Commands: /help, /quit"))
	fmt.Fprintln(out)
}

func printHelp(out io.Writer) {
	fmt.Fprintln(out, infoStyle.Render("Commands:"))
	for _, c := range [][2]string{
		{"/image <path>", "Attach an image to the next message"},
		{"/history", "Show the conversation so far"},
		{"/help", "Show this help"},
		{"/quit", "Exit chat"},
		{"clear", "Start a new conversation"},
		{"Ctrl+C", "Cancel the reply in progress"},
	} {
		fmt.Fprintf(out, "  %s %s\n", commandStyle.Render(util.PadRight(c[0], 14)), c[1])
	}
}

func printHistory(out io.Writer, msgs []model.Message) {
	if len(msgs) == 0 {
		fmt.Fprintln(out, infoStyle.Render("(no messages yet)"))
		return
	}
	width := GetTerminalWidth() - 14
	for _, m := range msgs {
		var body string
		if img, ok := m.Image(); ok {
			body = "[image " + describeImage(img) + "]"
		} else {
			text, _ := m.Text()
			body = util.TruncateWidth(util.SingleLine(text), width)
		}
		fmt.Fprintf(out, "%s %s\n", labelStyle.Render(m.Role.DisplayName()+":"), body)
	}
}

func printExitSummary(out io.Writer, st session.Status) {
	fmt.Fprintln(out)
	fmt.Fprintln(out, infoStyle.Render(fmt.Sprintf("Session %s: %s, %s in %s",
		util.TruncateRunes(st.SessionID, 8),
		util.Plural(st.Turns, "turn"),
		util.Plural(st.Messages, "message"),
		session.FormatDuration(st.Duration))))
}
