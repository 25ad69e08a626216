// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cloud

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/jeranaias/rigchat/internal/codec"
)

// =============================================================================
// STREAMING INTERFACES
// =============================================================================

// Provider names accepted by New.
const (
	ProviderAnthropic  = "anthropic"
	ProviderOpenRouter = "openrouter"
)

// Request is one streaming call: the full ordered history plus the model
// and generation cap.
type Request struct {
	Model     string
	MaxTokens int
	Messages  []codec.WireMessage
}

// Streamer opens streaming replies from a remote model.
type Streamer interface {
	// Open starts the call. Errors that happen before the first event may be
	// returned here or from the Stream's Err.
	Open(ctx context.Context, req Request) (Stream, error)
}

// Stream is the scoped handle of one streaming reply.
type Stream interface {
	// Next advances to the next text fragment. It returns false at the end
	// of the reply or on error.
	Next() bool

	// Fragment returns the text delivered by the last successful Next.
	Fragment() string

	// Err returns the first error encountered, or nil after a clean end.
	Err() error

	// Close releases the underlying connection. Safe to call more than once.
	Close() error
}

// =============================================================================
// FACTORY
// =============================================================================

// Options configures a Streamer.
type Options struct {
	Provider string
	APIKey   string
	BaseURL  string
	Logger   *zap.Logger
}

// New builds the Streamer for opts.Provider.
func New(opts Options) (Streamer, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	switch strings.ToLower(strings.TrimSpace(opts.Provider)) {
	case "", ProviderAnthropic:
		return NewAnthropicStreamer(opts.APIKey, opts.BaseURL, opts.Logger)
	case ProviderOpenRouter:
		return NewOpenRouterStreamer(opts.APIKey, opts.BaseURL, opts.Logger)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, opts.Provider)
	}
}

// Providers lists the supported provider names.
func Providers() []string {
	return []string{ProviderAnthropic, ProviderOpenRouter}
}

// MaskKey returns a display-safe form of an API key.
func MaskKey(key string) string {
	key = strings.TrimSpace(key)
	if key == "" {
		return "(not set)"
	}
	if len(key) <= 12 {
		return "****"
	}
	return key[:7] + "..." + key[len(key)-4:]
}
