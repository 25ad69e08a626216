// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import "github.com/charmbracelet/lipgloss"

// All colors are AdaptiveColor so they follow the light/dark background.

// =============================================================================
// ACCENT COLORS
// =============================================================================

// Purple - Assistant replies, selections
var Purple = lipgloss.AdaptiveColor{Light: "#7C3AED", Dark: "#A78BFA"}

// Cyan - Brand color, user highlights
var Cyan = lipgloss.AdaptiveColor{Light: "#0891B2", Dark: "#22D3EE"}

// Emerald - Success states, idle indicator
var Emerald = lipgloss.AdaptiveColor{Light: "#059669", Dark: "#34D399"}

// Rose - Errors
var Rose = lipgloss.AdaptiveColor{Light: "#E11D48", Dark: "#FB7185"}

// Amber - Warnings, streaming indicator
var Amber = lipgloss.AdaptiveColor{Light: "#D97706", Dark: "#FBBF24"}

// =============================================================================
// SURFACE AND TEXT COLORS
// =============================================================================

var (
	SurfaceDim    = lipgloss.AdaptiveColor{Light: "#F5F5F5", Dark: "#181825"}
	Overlay       = lipgloss.AdaptiveColor{Light: "#E5E5E5", Dark: "#313244"}
	TextPrimary   = lipgloss.AdaptiveColor{Light: "#1F2937", Dark: "#CDD6F4"}
	TextSecondary = lipgloss.AdaptiveColor{Light: "#6B7280", Dark: "#A6ADC8"}
	TextMuted     = lipgloss.AdaptiveColor{Light: "#9CA3AF", Dark: "#6C7086"}
	TextInverse   = lipgloss.AdaptiveColor{Light: "#FFFFFF", Dark: "#1E1E2E"}
)

// =============================================================================
// MESSAGE COLORS
// =============================================================================

// User messages - Blue tones
var UserAccent = lipgloss.AdaptiveColor{Light: "#1E40AF", Dark: "#93C5FD"}

// Assistant messages - Soft violet
var AssistantAccent = lipgloss.AdaptiveColor{Light: "#5B4B8A", Dark: "#C4B5FD"}

// Image attachments - Emerald
var ImageAccent = lipgloss.AdaptiveColor{Light: "#065F46", Dark: "#A7F3D0"}

// =============================================================================
// STATUS INDICATORS
// =============================================================================

// Indicators pair each status with a shape so it reads without color.
var Indicators = struct {
	Idle      string
	Streaming string
	Error     string
	Image     string
	Locked    string
}{
	Idle:      "o",
	Streaming: "*",
	Error:     "x",
	Image:     "#",
	Locked:    "!",
}
