// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"time"

	"github.com/jeranaias/rigchat/internal/config"
	"github.com/jeranaias/rigchat/internal/model"
)

// =============================================================================
// SINK MESSAGES
// =============================================================================

// HistoryMsg carries a committed conversation snapshot.
type HistoryMsg struct {
	Messages []model.Message
}

// ErrorMsg carries a failure for the current input.
type ErrorMsg struct {
	Err error
}

// ResetMsg signals that the conversation was cleared.
type ResetMsg struct{}

// =============================================================================
// TURN MESSAGES
// =============================================================================

// TurnDoneMsg is returned when a submitted input has been fully handled.
type TurnDoneMsg struct {
	Input string
	Err   error
}

// LiveTickMsg drives redraws of the streaming reply.
type LiveTickMsg struct {
	Time time.Time
}

// ImageLoadedMsg delivers an image read from disk, ready to attach.
type ImageLoadedMsg struct {
	Path  string
	Image model.Image
	Err   error
}

// ImageAttachedMsg reports the outcome of attaching an image.
type ImageAttachedMsg struct {
	Path string
	Err  error
}

// =============================================================================
// MISC MESSAGES
// =============================================================================

// CopiedMsg reports the outcome of a clipboard copy.
type CopiedMsg struct {
	Chars int
	Err   error
}

// ConfigReloadedMsg carries a configuration reloaded from disk.
type ConfigReloadedMsg struct {
	Config *config.Config
}
