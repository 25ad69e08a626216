// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/peterh/liner"
	"go.uber.org/zap"

	"github.com/jeranaias/rigchat/internal/access"
	"github.com/jeranaias/rigchat/internal/cloud"
	"github.com/jeranaias/rigchat/internal/config"
	"github.com/jeranaias/rigchat/internal/session"
)

// =============================================================================
// ENGINE ASSEMBLY
// =============================================================================

// engine bundles a session with the controller that drives it.
type engine struct {
	session    *session.Session
	controller *session.Controller
}

// sessionOptions maps the model section of cfg onto controller options.
func sessionOptions(cfg *config.Config) session.Options {
	return session.Options{
		Model:       cfg.Model.ResolvedName(),
		MaxTokens:   cfg.Model.MaxTokens,
		IdleTimeout: cfg.Model.IdleTimeout(),
	}
}

// newEngine opens a session behind gate and wires it to the configured
// provider and the given sink. The gate must already be authorized.
func newEngine(cfg *config.Config, gate session.Authorizer, sink session.Sink, logger *zap.Logger) (*engine, error) {
	streamer, err := cloud.New(cloud.Options{
		Provider: cfg.Model.Provider,
		APIKey:   cfg.Model.APIKey,
		BaseURL:  cfg.Model.BaseURL,
		Logger:   logger,
	})
	if err != nil {
		if errors.Is(err, cloud.ErrNotConfigured) {
			return nil, fmt.Errorf("no API key for %s: set model.api_key or RIGCHAT_API_KEY", cfg.Model.Provider)
		}
		return nil, err
	}

	sess := session.New(session.Config{Gate: gate, Logger: logger})
	ctrl, err := session.NewController(sess, streamer, sink, sessionOptions(cfg))
	if err != nil {
		_ = sess.Close()
		return nil, err
	}
	return &engine{session: sess, controller: ctrl}, nil
}

// Close ends the session.
func (e *engine) Close() error {
	return e.session.Close()
}

// =============================================================================
// ACCESS GATE
// =============================================================================

// newGate builds the access gate described by cfg.Access.
func newGate(cfg *config.Config, logger *zap.Logger) (*access.Gate, error) {
	mode, err := access.ParseMode(cfg.Access.Mode)
	if err != nil {
		return nil, err
	}
	return access.NewGate(mode,
		access.WithKeyHash(cfg.Access.KeyHash),
		access.WithTOTPSecret(cfg.Access.TOTPSecret),
		access.WithMaxAttempts(cfg.Access.MaxAttempts),
		access.WithLockoutDuration(time.Duration(cfg.Access.LockoutMinutes)*time.Minute),
		access.WithLogger(logger),
	)
}

// secretPrompter asks the user for a secret.
type secretPrompter func(prompt string) (string, error)

// terminalPrompter reads a secret without echo through liner.
func terminalPrompter(prompt string) (string, error) {
	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)
	return line.PasswordPrompt(prompt)
}

// readerPrompter reads a secret as a plain line, echoing the prompt to w.
func readerPrompter(lines lineReader, w io.Writer) secretPrompter {
	return func(prompt string) (string, error) {
		fmt.Fprint(w, prompt)
		return lines.ReadLine(prompt)
	}
}

// unlock prompts until gate opens. Throttled attempts wait a second and
// retry; a lockout or a prompt failure ends the attempt.
func unlock(gate *access.Gate, prompt secretPrompter, out io.Writer) error {
	if !gate.Required() || gate.Authorized() {
		return nil
	}

	label := "Access key: "
	if gate.Mode() == access.ModeTOTP {
		label = "Authenticator code: "
	}

	for {
		secret, err := prompt(label)
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				return errors.New("access cancelled")
			}
			return fmt.Errorf("read secret: %w", err)
		}

		err = gate.Authorize(secret)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, access.ErrThrottled):
			fmt.Fprintln(out, warningStyle.Render("Too many attempts, slow down."))
			time.Sleep(time.Second)
		case errors.Is(err, access.ErrLockedOut):
			return err
		default:
			fmt.Fprintf(out, "%s %d attempt(s) left\n", errorStyle.Render("Invalid."), gate.AttemptsLeft())
		}
	}
}
