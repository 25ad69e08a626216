// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session implements the conversation session engine.
//
// A Session owns one Conversation for its lifetime (New, Reset, Close). A
// Controller drives turns against it: each text input is appended, the full
// history is encoded and streamed to the remote model, fragments are shown
// live through a Sink, and the finished reply is committed.
//
// # Key Types
//
//   - Session: Lifecycle, activity tracking, and the access check
//   - Controller: Turn state machine with single in-flight turn
//   - Sink: Display callbacks implemented by the front-ends
//   - InputSource: Pull-style input for line-oriented front-ends
//
// # Usage
//
//	sess := session.New(session.Config{Gate: gate, Logger: logger})
//	defer sess.Close()
//
//	ctrl, err := session.NewController(sess, streamer, sink, session.Options{
//	    Model:     model.DefaultModel,
//	    MaxTokens: 1024,
//	})
//	err = ctrl.Submit(ctx, "2+2?")
//
// The literal input "clear" (any case, surrounding space ignored) resets the
// conversation without contacting the remote model.
package session
