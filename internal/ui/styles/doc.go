// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package styles provides the visual styling system for the rigchat TUI.
//
// Colors are lipgloss.AdaptiveColor values; the Theme resolves them against
// the terminal background, which can be forced through ui.theme. Status
// indicators carry a shape as well as a color.
//
// # Usage
//
//	theme := styles.NewTheme(cfg.UI.Theme)
//	label := theme.AssistantLabel.Render("Assistant")
package styles
