// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"sort"
	"strings"
)

// =============================================================================
// MODEL INFO TYPE
// =============================================================================

// DefaultModel is the model used when none is configured.
const DefaultModel = "claude-3-5-sonnet-20241022"

// ModelInfo describes a known remote model.
type ModelInfo struct {
	// ID is the model identifier used in API calls
	ID string `json:"id"`

	// Name is the human-readable display name
	Name string `json:"name"`

	// Provider identifies the backend that serves the model
	Provider string `json:"provider"`

	// Vision reports whether the model accepts image content
	Vision bool `json:"vision"`

	// MaxOutput is the largest generation cap the model accepts
	MaxOutput int `json:"max_output"`
}

// =============================================================================
// MODEL REGISTRY
// =============================================================================

// Models is the registry of known models keyed by short alias.
var Models = map[string]ModelInfo{
	"haiku": {
		ID:        "claude-3-haiku-20240307",
		Name:      "Claude 3 Haiku",
		Provider:  "anthropic",
		Vision:    true,
		MaxOutput: 4096,
	},
	"sonnet": {
		ID:        DefaultModel,
		Name:      "Claude 3.5 Sonnet",
		Provider:  "anthropic",
		Vision:    true,
		MaxOutput: 8192,
	},
	"opus": {
		ID:        "claude-3-opus-20240229",
		Name:      "Claude 3 Opus",
		Provider:  "anthropic",
		Vision:    true,
		MaxOutput: 4096,
	},
	"or-sonnet": {
		ID:        "anthropic/claude-3.5-sonnet",
		Name:      "Claude 3.5 Sonnet (OpenRouter)",
		Provider:  "openrouter",
		Vision:    true,
		MaxOutput: 8192,
	},
	"or-auto": {
		ID:        "openrouter/auto",
		Name:      "OpenRouter Auto",
		Provider:  "openrouter",
		Vision:    false,
		MaxOutput: 4096,
	},
}

// ResolveModel maps an alias or full ID to a model ID.
// Unknown names pass through unchanged so new models need no registry entry.
func ResolveModel(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return DefaultModel
	}
	if info, ok := Models[strings.ToLower(name)]; ok {
		return info.ID
	}
	return name
}

// LookupModel returns registry info for an alias or full model ID.
func LookupModel(name string) (ModelInfo, bool) {
	id := ResolveModel(name)
	for _, info := range Models {
		if info.ID == id {
			return info, true
		}
	}
	return ModelInfo{}, false
}

// ModelAliases returns the registry aliases in sorted order.
func ModelAliases() []string {
	aliases := make([]string, 0, len(Models))
	for alias := range Models {
		aliases = append(aliases, alias)
	}
	sort.Strings(aliases)
	return aliases
}
