// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package styles provides the visual styling system for the rigchat TUI.
package styles

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Theme holds all the styled components for the application.
// It detects the terminal's color capability and adjusts accordingly.
type Theme struct {
	// Terminal capabilities
	IsDark       bool
	ColorProfile termenv.Profile

	// Layout dimensions
	Width  int
	Height int

	Header      lipgloss.Style
	HeaderTitle lipgloss.Style
	HeaderModel lipgloss.Style

	UserLabel      lipgloss.Style
	UserText       lipgloss.Style
	AssistantLabel lipgloss.Style
	ImageBadge     lipgloss.Style
	Separator      lipgloss.Style

	InputBorder lipgloss.Style
	Placeholder lipgloss.Style

	StatusBar       lipgloss.Style
	StatusIdle      lipgloss.Style
	StatusStreaming lipgloss.Style
	StatusError     lipgloss.Style
	StatusMuted     lipgloss.Style

	ErrorText lipgloss.Style
	Notice    lipgloss.Style
	Spinner   lipgloss.Style
}

// NewTheme creates a theme for the given setting: "auto" asks the
// terminal for its background, "dark" and "light" force one.
func NewTheme(setting string) *Theme {
	profile := termenv.ColorProfile()
	isDark := true
	switch strings.ToLower(setting) {
	case "light":
		isDark = false
	case "dark":
	default:
		isDark = termenv.HasDarkBackground()
	}
	lipgloss.SetHasDarkBackground(isDark)

	t := &Theme{IsDark: isDark, ColorProfile: profile}
	t.initStyles()
	return t
}

// GlamourStyle returns the glamour standard style name matching the theme.
func (t *Theme) GlamourStyle() string {
	if t.ColorProfile == termenv.Ascii {
		return "notty"
	}
	if t.IsDark {
		return "dark"
	}
	return "light"
}

func (t *Theme) initStyles() {
	t.Header = lipgloss.NewStyle().
		Background(SurfaceDim).
		Padding(0, 1)

	t.HeaderTitle = lipgloss.NewStyle().
		Bold(true).
		Foreground(Cyan)

	t.HeaderModel = lipgloss.NewStyle().
		Foreground(TextSecondary).
		Italic(true)

	t.UserLabel = lipgloss.NewStyle().
		Bold(true).
		Foreground(UserAccent)

	t.UserText = lipgloss.NewStyle().
		Foreground(TextPrimary).
		PaddingLeft(2)

	t.AssistantLabel = lipgloss.NewStyle().
		Bold(true).
		Foreground(AssistantAccent)

	t.ImageBadge = lipgloss.NewStyle().
		Foreground(ImageAccent).
		PaddingLeft(2)

	t.Separator = lipgloss.NewStyle().
		Foreground(Overlay)

	t.InputBorder = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(Purple).
		Padding(0, 1)

	t.Placeholder = lipgloss.NewStyle().
		Foreground(TextMuted)

	t.StatusBar = lipgloss.NewStyle().
		Foreground(TextSecondary).
		Background(SurfaceDim).
		Padding(0, 1)

	t.StatusIdle = lipgloss.NewStyle().Foreground(Emerald).Bold(true)
	t.StatusStreaming = lipgloss.NewStyle().Foreground(Amber).Bold(true)
	t.StatusError = lipgloss.NewStyle().Foreground(Rose).Bold(true)
	t.StatusMuted = lipgloss.NewStyle().Foreground(TextMuted)

	t.ErrorText = lipgloss.NewStyle().
		Foreground(Rose).
		PaddingLeft(2)

	t.Notice = lipgloss.NewStyle().
		Foreground(TextMuted).
		Italic(true).
		PaddingLeft(2)

	t.Spinner = lipgloss.NewStyle().Foreground(Purple)
}

// SetSize updates the theme dimensions for responsive layouts.
func (t *Theme) SetSize(width, height int) {
	t.Width = width
	t.Height = height
}

// GetLayoutMode returns the current layout mode based on width.
func (t *Theme) GetLayoutMode() LayoutMode {
	if t.Width < 60 {
		return LayoutNarrow
	}
	if t.Width < 100 {
		return LayoutMedium
	}
	return LayoutWide
}

// LayoutMode represents the current responsive layout mode.
type LayoutMode int

const (
	LayoutNarrow LayoutMode = iota // < 60 columns
	LayoutMedium                   // 60-100 columns
	LayoutWide                     // > 100 columns
)
