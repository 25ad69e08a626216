// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides unified configuration loading and management for rigchat.
//
// # Key Types
//
//   - Config: Main configuration structure with all settings
//   - ModelConfig: Remote model, credential and streaming limits
//   - AccessConfig: Session access gate (none, shared key, TOTP)
//   - UIConfig / LogConfig: Presentation and log output
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - Environment variables (RIGCHAT_*, ANTHROPIC_API_KEY, OPENROUTER_API_KEY)
//   - ~/.rigchat/config.toml
//   - ~/.rigchat/config.json
//   - Built-in defaults
//
// # Usage
//
// Load configuration:
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// Follow edits while the TUI runs:
//
//	go config.Watch(ctx, path, logger, func(cfg *config.Config, err error) {
//	    if err == nil {
//	        program.Send(configReloadedMsg{cfg})
//	    }
//	})
package config
