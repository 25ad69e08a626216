// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat provides the Bubble Tea chat interface for rigchat.
//
// The model never blocks: submitted input runs on the session controller
// inside a tea.Cmd, and the controller reports back through a Sink that
// forwards display calls to the running program with Program.Send.
// Streaming text is held in a LiveBuffer and redrawn on a tick capped at
// ui.max_fps.
//
// # Key Bindings
//
//   - Enter: send the message (Alt+Enter for a new line)
//   - Esc: cancel the reply in progress
//   - Ctrl+L: clear the conversation
//   - Ctrl+Y: copy the last reply to the clipboard
//   - Ctrl+C: quit
//
// # Input Commands
//
//   - /image <path>: attach an image (a bare image path works too)
//   - /help: list commands
//   - /quit: exit
//   - clear: reset the conversation
//
// # Usage
//
//	sink := chat.NewSink()
//	ctrl, _ := session.NewController(sess, streamer, sink, opts)
//	m := chat.New(chat.Options{Engine: ctrl, Sink: sink, Theme: theme})
//	p := tea.NewProgram(m, tea.WithAltScreen())
//	sink.Attach(p)
//	_, err := p.Run()
package chat
