// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jeranaias/rigchat/internal/config"
	"github.com/jeranaias/rigchat/internal/logging"
	"github.com/jeranaias/rigchat/internal/ui/chat"
	"github.com/jeranaias/rigchat/internal/ui/styles"
)

func newTUICmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "tui",
		Short: "Start the full-screen chat interface (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTUI(cmd.Context(), flags)
		},
	}
}

// runTUI assembles the session and runs the Bubble Tea program until the
// user quits. The terminal belongs to the program, so logs go to the file.
func runTUI(ctx context.Context, flags *rootFlags) error {
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
	}, false)
	if err != nil {
		return err
	}
	defer closeLog()

	gate, err := newGate(cfg, logger)
	if err != nil {
		return err
	}
	prompt := terminalPrompter
	if !IsTTY() {
		prompt = readerPrompter(newPlainReader(os.Stdin), os.Stderr)
	}
	if err := unlock(gate, prompt, os.Stderr); err != nil {
		return err
	}

	sink := chat.NewSink()
	eng, err := newEngine(cfg, gate, sink, logger)
	if err != nil {
		return err
	}
	defer eng.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	m := chat.New(chat.Options{
		Engine:        eng.controller,
		Sink:          sink,
		Theme:         styles.NewTheme(cfg.UI.Theme),
		Logger:        logger,
		Context:       ctx,
		Provider:      cfg.Model.Provider,
		SessionID:     eng.session.ID(),
		WordWrap:      cfg.UI.WordWrap,
		MaxFPS:        cfg.UI.MaxFPS,
		ImageMaxBytes: cfg.Image.MaxBytes,
	})

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	sink.Attach(p)

	if path := flags.watchPath(); path != "" {
		go watchConfig(ctx, path, flags, p, logger)
	}

	logger.Info("tui started",
		zap.String("provider", cfg.Model.Provider),
		zap.String("model", cfg.Model.ResolvedName()))

	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("tui: %w", err)
	}
	return nil
}

// watchConfig forwards config file edits to the running program. Flag
// overrides stay in force across reloads.
func watchConfig(ctx context.Context, path string, flags *rootFlags, p *tea.Program, logger *zap.Logger) {
	err := config.Watch(ctx, path, logger, func(cfg *config.Config, err error) {
		if err == nil {
			err = flags.apply(cfg)
		}
		if err != nil {
			p.Send(chat.ErrorMsg{Err: fmt.Errorf("config reload: %w", err)})
			return
		}
		p.Send(chat.ConfigReloadedMsg{Config: cfg})
	})
	if err != nil {
		logger.Warn("config watch stopped", zap.Error(err))
	}
}
