// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small helpers shared by the rigchat packages.
//
// # Key Functions
//
// String Utilities:
//   - TruncateRunes, TruncateWidth: UTF-8 and display-width safe truncation
//   - StringWidth, PadRight, SingleLine: terminal layout helpers
//
// Formatting:
//   - IntToString, FormatBytes, Plural
//
// File Operations:
//   - AtomicWriteFile: Crash-safe file writing with fsync
//
// # Usage
//
//	// Fit a message preview into a status bar cell
//	cell := util.TruncateWidth(preview, 40)
//
//	// Write the config without ever leaving a half-written file
//	err := util.AtomicWriteFileWithDir(path, data, 0600, 0700)
package util
