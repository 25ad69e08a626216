// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cloud

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"

	"github.com/jeranaias/rigchat/internal/codec"
)

// DefaultAnthropicURL is the Messages API base URL.
const DefaultAnthropicURL = "https://api.anthropic.com"

// =============================================================================
// ANTHROPIC STREAMER
// =============================================================================

// AnthropicStreamer streams replies from the Anthropic Messages API.
type AnthropicStreamer struct {
	client *anthropic.Client
	logger *zap.Logger
}

// NewAnthropicStreamer creates a streamer authenticated with apiKey.
// An empty baseURL selects DefaultAnthropicURL. The SDK's automatic retries
// are disabled.
func NewAnthropicStreamer(apiKey, baseURL string, logger *zap.Logger) (*AnthropicStreamer, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, ErrNotConfigured
	}
	if baseURL == "" {
		baseURL = DefaultAnthropicURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	client := anthropic.NewClient(
		option.WithAPIKey(apiKey),
		option.WithBaseURL(baseURL),
		option.WithMaxRetries(0),
	)
	return &AnthropicStreamer{client: &client, logger: logger}, nil
}

// Open implements Streamer.
func (s *AnthropicStreamer) Open(ctx context.Context, req Request) (Stream, error) {
	params, err := buildAnthropicParams(req)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("opening anthropic stream",
		zap.String("model", req.Model),
		zap.Int("max_tokens", req.MaxTokens),
		zap.Int("messages", len(params.Messages)))

	return &anthropicStream{events: s.client.Messages.NewStreaming(ctx, params)}, nil
}

// buildAnthropicParams converts wire messages into SDK message params.
func buildAnthropicParams(req Request) (anthropic.MessageNewParams, error) {
	msgs := make([]anthropic.MessageParam, 0, len(req.Messages))
	for i, w := range req.Messages {
		blocks, err := anthropicBlocks(w)
		if err != nil {
			return anthropic.MessageNewParams{}, fmt.Errorf("message %d: %w", i, err)
		}
		// The API rejects empty text blocks; an empty committed reply carries
		// no context anyway.
		if len(blocks) == 0 {
			continue
		}
		switch w.Role {
		case "user":
			msgs = append(msgs, anthropic.NewUserMessage(blocks...))
		case "assistant":
			msgs = append(msgs, anthropic.NewAssistantMessage(blocks...))
		default:
			return anthropic.MessageNewParams{}, fmt.Errorf("message %d: unsupported role %q", i, w.Role)
		}
	}

	return anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: int64(req.MaxTokens),
		Messages:  msgs,
	}, nil
}

func anthropicBlocks(w codec.WireMessage) ([]anthropic.ContentBlockParamUnion, error) {
	if !w.Content.IsStructured() {
		if w.Content.Text == "" {
			return nil, nil
		}
		return []anthropic.ContentBlockParamUnion{anthropic.NewTextBlock(w.Content.Text)}, nil
	}

	blocks := make([]anthropic.ContentBlockParamUnion, 0, len(w.Content.Blocks))
	for _, b := range w.Content.Blocks {
		switch b.Type {
		case codec.BlockTypeText:
			if b.Text != "" {
				blocks = append(blocks, anthropic.NewTextBlock(b.Text))
			}
		case codec.BlockTypeImage:
			if b.Source == nil {
				return nil, errors.New("image block without source")
			}
			blocks = append(blocks, anthropic.NewImageBlockBase64(b.Source.MediaType, b.Source.Data))
		default:
			return nil, fmt.Errorf("unsupported block type %q", b.Type)
		}
	}
	return blocks, nil
}

// =============================================================================
// STREAM HANDLE
// =============================================================================

// eventStream is the subset of the SDK stream used here.
type eventStream interface {
	Next() bool
	Current() anthropic.MessageStreamEventUnion
	Err() error
	Close() error
}

type anthropicStream struct {
	events   eventStream
	fragment string
	err      error
	stopped  bool

	closeOnce sync.Once
	closeErr  error
}

// Next skips non-text events and stops at message_stop. A stream that
// ends before message_stop is malformed.
func (a *anthropicStream) Next() bool {
	if a.err != nil || a.stopped {
		return false
	}
	for a.events.Next() {
		switch ev := a.events.Current().AsAny().(type) {
		case anthropic.ContentBlockDeltaEvent:
			if delta, ok := ev.Delta.AsAny().(anthropic.TextDelta); ok {
				a.fragment = delta.Text
				return true
			}
		case anthropic.MessageStopEvent:
			a.stopped = true
			return false
		}
	}
	if err := a.events.Err(); err != nil {
		a.err = mapAnthropicError(err)
		return false
	}
	a.err = fmt.Errorf("%w: %w before message_stop", ErrMalformedStream, io.ErrUnexpectedEOF)
	return false
}

func (a *anthropicStream) Fragment() string { return a.fragment }

func (a *anthropicStream) Err() error {
	if a.err != nil {
		return a.err
	}
	if err := a.events.Err(); err != nil {
		a.err = mapAnthropicError(err)
	}
	return a.err
}

func (a *anthropicStream) Close() error {
	a.closeOnce.Do(func() {
		a.closeErr = a.events.Close()
	})
	return a.closeErr
}

// mapAnthropicError converts SDK errors into this package's error types.
// Context errors pass through unchanged.
func mapAnthropicError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return &APIError{
			Provider: ProviderAnthropic,
			Status:   apiErr.StatusCode,
			Message:  apiErr.Error(),
		}
	}
	msg := err.Error()
	if strings.Contains(msg, "overloaded_error") {
		return fmt.Errorf("%w: %s", ErrOverloaded, msg)
	}
	return fmt.Errorf("anthropic stream: %w", err)
}
