// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"strings"

	"golang.org/x/text/cases"

	"github.com/jeranaias/rigchat/internal/model"
)

// ResetCommand is the reserved input that clears the conversation.
const ResetCommand = "clear"

// =============================================================================
// RENDER SINK
// =============================================================================

// Sink receives everything the engine wants displayed.
// Calls arrive from the goroutine running the turn.
type Sink interface {
	// DisplayHistory shows the committed conversation.
	DisplayHistory(snapshot []model.Message)

	// DisplayLive shows the accumulated reply text while streaming.
	DisplayLive(partial string)

	// DisplayError shows a failure for the current input.
	DisplayError(err error)

	// NotifyReset tells the display to clear and redraw from empty.
	NotifyReset()
}

// =============================================================================
// INPUT
// =============================================================================

// Input is one user action: text or a pasted image.
type Input struct {
	Text  string
	Image *model.Image
}

// TextInput wraps typed text.
func TextInput(text string) Input {
	return Input{Text: text}
}

// ImageInput wraps a pasted image.
func ImageInput(img model.Image) Input {
	return Input{Image: &img}
}

// IsImage reports whether the input is an image paste.
func (in Input) IsImage() bool {
	return in.Image != nil
}

// InputSource supplies user actions to Controller.Run. Returning io.EOF ends
// the loop cleanly.
type InputSource interface {
	RequestInput(ctx context.Context) (Input, error)
}

// IsResetCommand reports whether text is the reserved reset input.
func IsResetCommand(text string) bool {
	return cases.Fold().String(strings.TrimSpace(text)) == ResetCommand
}
