// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"strings"

	"github.com/jeranaias/rigchat/internal/codec"
)

// ActionKind classifies a line typed into the input box.
type ActionKind int

const (
	ActionNone ActionKind = iota
	ActionSend
	ActionImage
	ActionHelp
	ActionQuit
	ActionUnknownCommand
)

// Action is a parsed input line.
type Action struct {
	Kind ActionKind
	// Text is the message to send, or the path for ActionImage, or the
	// command name for ActionUnknownCommand.
	Text string
}

// ParseInput decides what a submitted line means. Slash commands are
// handled locally; a line that is just the path of an existing image file
// is treated as a paste; everything else, "clear" included, goes to the
// session unchanged.
func ParseInput(line string) Action {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return Action{Kind: ActionNone}
	}

	if strings.HasPrefix(trimmed, "/") && !strings.Contains(strings.Fields(trimmed)[0][1:], "/") {
		fields := strings.Fields(trimmed)
		switch strings.ToLower(fields[0]) {
		case "/image", "/img":
			path := strings.TrimSpace(strings.TrimPrefix(trimmed, fields[0]))
			return Action{Kind: ActionImage, Text: unquote(path)}
		case "/help", "/?":
			return Action{Kind: ActionHelp}
		case "/quit", "/exit", "/q":
			return Action{Kind: ActionQuit}
		default:
			return Action{Kind: ActionUnknownCommand, Text: fields[0]}
		}
	}

	if path := unquote(trimmed); codec.LooksLikeImagePath(path) {
		return Action{Kind: ActionImage, Text: path}
	}

	return Action{Kind: ActionSend, Text: line}
}

// unquote strips the quotes terminals add when a file is dragged in.
func unquote(s string) string {
	if len(s) >= 2 {
		if (s[0] == '\'' && s[len(s)-1] == '\'') || (s[0] == '"' && s[len(s)-1] == '"') {
			return s[1 : len(s)-1]
		}
	}
	return s
}
