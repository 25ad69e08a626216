// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the rigchat command line.
//
// Commands:
//
//	rigchat                      Start the TUI (default)
//	rigchat tui                  Start the TUI
//	rigchat chat                 Line-oriented chat in the terminal
//	rigchat config show          Print the effective configuration
//	rigchat config path          Print the config file location
//	rigchat config get KEY       Print one value
//	rigchat config set KEY VAL   Change one value and save
//	rigchat config init          Write a default config file
//	rigchat config hash-key      Hash a shared access key
//	rigchat config totp-secret   Generate a TOTP secret
//	rigchat version              Print version information
//
// Global flags --config, --model, --provider and --debug apply to every
// command.
package cli
