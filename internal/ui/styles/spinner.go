// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"time"

	"github.com/charmbracelet/bubbles/spinner"
)

// ThinkingSpinner is shown between dispatch and the first fragment.
var ThinkingSpinner = spinner.Spinner{
	Frames: []string{"|", "/", "-", "\\"},
	FPS:    time.Second / 10,
}

// DotsSpinner is shown while fragments are arriving.
var DotsSpinner = spinner.Spinner{
	Frames: []string{".  ", ".. ", "...", " ..", "  .", "   "},
	FPS:    time.Second / 6,
}
