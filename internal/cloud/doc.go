// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cloud provides streaming access to remote conversational models.
//
// Every backend implements Streamer: one call opens a Stream that yields text
// fragments until the reply ends. The caller owns the Stream and must Close
// it on every path.
//
// # Key Types
//
//   - Streamer: Opens a streaming reply for an ordered list of wire messages
//   - Stream: Scoped handle over the fragment sequence
//   - AnthropicStreamer: Messages API via the official SDK
//   - OpenRouterStreamer: OpenAI-compatible chat completions over SSE
//
// # Usage
//
//	s, err := cloud.New(cloud.Options{Provider: "anthropic", APIKey: key})
//	stream, err := s.Open(ctx, cloud.Request{Model: id, MaxTokens: 1024, Messages: wire})
//	defer stream.Close()
//	for stream.Next() {
//	    fmt.Print(stream.Fragment())
//	}
//	if err := stream.Err(); err != nil { ... }
//
// No request is retried. Errors map onto the sentinels in errors.go.
package cloud
