// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cloud

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jeranaias/rigchat/internal/codec"
)

// Configuration constants for the OpenRouter API.
const (
	// DefaultOpenRouterURL is the base URL for the OpenRouter API.
	DefaultOpenRouterURL = "https://openrouter.ai/api/v1"

	// maxErrorBody bounds how much of an error response is read.
	maxErrorBody = 64 * 1024
)

// sharedStreamingClient is used for streaming requests (no timeout,
// context-controlled).
var sharedStreamingClient = &http.Client{
	Transport: &http.Transport{
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	},
}

// =============================================================================
// WIRE TYPES
// =============================================================================

// chatMessage is an OpenAI-compatible message. Content is a string or a
// list of parts.
type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type chatPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	Stream    bool          `json:"stream"`
	MaxTokens int           `json:"max_tokens,omitempty"`
}

// streamChunk is one SSE data payload of a streaming completion.
type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Error *apiErrorBody `json:"error,omitempty"`
}

type apiErrorBody struct {
	Code    json.RawMessage `json:"code"`
	Message string          `json:"message"`
}

type apiErrorResponse struct {
	Error apiErrorBody `json:"error"`
}

// =============================================================================
// OPENROUTER STREAMER
// =============================================================================

// OpenRouterStreamer streams chat completions from OpenRouter.
type OpenRouterStreamer struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	siteURL    string
	siteName   string
	logger     *zap.Logger
}

// NewOpenRouterStreamer creates a streamer authenticated with apiKey.
func NewOpenRouterStreamer(apiKey, baseURL string, logger *zap.Logger) (*OpenRouterStreamer, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, ErrNotConfigured
	}
	if baseURL == "" {
		baseURL = DefaultOpenRouterURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OpenRouterStreamer{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: sharedStreamingClient,
		siteURL:    "https://github.com/jeranaias/rigchat",
		siteName:   "rigchat",
		logger:     logger,
	}, nil
}

// WithHTTPClient replaces the HTTP client. Intended for tests.
func (c *OpenRouterStreamer) WithHTTPClient(hc *http.Client) *OpenRouterStreamer {
	c.httpClient = hc
	return c
}

// Open implements Streamer.
func (c *OpenRouterStreamer) Open(ctx context.Context, req Request) (Stream, error) {
	msgs, err := openRouterMessages(req.Messages)
	if err != nil {
		return nil, err
	}

	bodyBytes, err := json.Marshal(chatRequest{
		Model:     req.Model,
		Messages:  msgs,
		Stream:    true,
		MaxTokens: req.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(httpReq)

	c.logger.Debug("opening openrouter stream",
		zap.String("model", req.Model),
		zap.Int("max_tokens", req.MaxTokens),
		zap.Int("messages", len(msgs)))

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, handleErrorResponse(resp.StatusCode, body)
	}

	return &sseStream{body: resp.Body, reader: NewSSEReader(resp.Body)}, nil
}

func (c *OpenRouterStreamer) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("HTTP-Referer", c.siteURL)
	req.Header.Set("X-Title", c.siteName)
}

// openRouterMessages maps wire messages to OpenAI-style messages. Images
// become data URIs.
func openRouterMessages(wire []codec.WireMessage) ([]chatMessage, error) {
	out := make([]chatMessage, 0, len(wire))
	for i, w := range wire {
		if !w.Content.IsStructured() {
			out = append(out, chatMessage{Role: w.Role, Content: w.Content.Text})
			continue
		}
		parts := make([]chatPart, 0, len(w.Content.Blocks))
		for _, b := range w.Content.Blocks {
			switch b.Type {
			case codec.BlockTypeText:
				parts = append(parts, chatPart{Type: "text", Text: b.Text})
			case codec.BlockTypeImage:
				if b.Source == nil {
					return nil, fmt.Errorf("message %d: image block without source", i)
				}
				uri := "data:" + b.Source.MediaType + ";base64," + b.Source.Data
				parts = append(parts, chatPart{Type: "image_url", ImageURL: &imageURL{URL: uri}})
			default:
				return nil, fmt.Errorf("message %d: unsupported block type %q", i, b.Type)
			}
		}
		out = append(out, chatMessage{Role: w.Role, Content: parts})
	}
	return out, nil
}

// handleErrorResponse converts HTTP error responses to errors.
func handleErrorResponse(statusCode int, body []byte) error {
	var apiErr apiErrorResponse
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error.Message != "" {
		return &APIError{
			Provider: ProviderOpenRouter,
			Code:     strings.Trim(string(apiErr.Error.Code), `"`),
			Message:  apiErr.Error.Message,
			Status:   statusCode,
		}
	}
	return &APIError{
		Provider: ProviderOpenRouter,
		Message:  strings.TrimSpace(string(body)),
		Status:   statusCode,
	}
}

// =============================================================================
// STREAM HANDLE
// =============================================================================

type sseStream struct {
	body     io.ReadCloser
	reader   *SSEReader
	fragment string
	err      error
	done     bool
	finished bool

	closeOnce sync.Once
	closeErr  error
}

func (s *sseStream) Next() bool {
	if s.done || s.err != nil {
		return false
	}
	for {
		_, data, err := s.reader.ReadEvent()
		if err != nil {
			s.done = true
			switch {
			case !errors.Is(err, io.EOF):
				s.err = fmt.Errorf("read stream: %w", err)
			case !s.finished:
				s.err = fmt.Errorf("%w: %w before [DONE]", ErrMalformedStream, io.ErrUnexpectedEOF)
			}
			return false
		}

		if bytes.Equal(data, []byte("[DONE]")) {
			s.done = true
			s.finished = true
			return false
		}

		var chunk streamChunk
		if err := json.Unmarshal(data, &chunk); err != nil {
			s.done = true
			s.err = fmt.Errorf("%w: %v", ErrMalformedStream, err)
			return false
		}
		if chunk.Error != nil {
			s.done = true
			s.err = &APIError{
				Provider: ProviderOpenRouter,
				Code:     strings.Trim(string(chunk.Error.Code), `"`),
				Message:  chunk.Error.Message,
			}
			return false
		}
		if len(chunk.Choices) == 0 {
			continue
		}

		choice := chunk.Choices[0]
		if choice.FinishReason != nil && *choice.FinishReason != "" {
			s.done = true
			s.finished = true
		}
		if choice.Delta.Content != "" {
			s.fragment = choice.Delta.Content
			return true
		}
		if s.done {
			return false
		}
	}
}

func (s *sseStream) Fragment() string { return s.fragment }

func (s *sseStream) Err() error { return s.err }

func (s *sseStream) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.body.Close()
	})
	return s.closeErr
}
