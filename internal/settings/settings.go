// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package settings manages user preferences with encryption at rest.
//
// Preferences live in a single JSON document. The API key is encrypted with
// AES-256-GCM before it touches disk; everything else is stored in the
// clear. Every save first snapshots the previous file into a capped backup
// set, and an optional file watcher picks up external edits.
package settings

import "github.com/jeranaias/multitool/internal/catalog"

// =============================================================================
// SETTINGS AGGREGATE
// =============================================================================

// Settings is the user preference document.
type Settings struct {
	// DarkMode selects the dark UI theme
	DarkMode bool `json:"dark_mode"`

	// APIKey authenticates against the inference service.
	// SECURITY: Encrypted with ENC: prefix on disk, plaintext in memory.
	APIKey string `json:"api_key"`

	// ModelID is the selected catalog profile
	ModelID string `json:"model_id"`

	// MaxTokens caps the completion length for requests
	MaxTokens int `json:"max_tokens"`

	// Temperature is the sampling temperature for requests
	Temperature float64 `json:"temperature"`

	// CustomPrompts maps prompt names to user-defined system prompts
	CustomPrompts map[string]string `json:"custom_prompts"`

	// UserPreferences holds free-form consumer values, opaque to this
	// package
	UserPreferences map[string]any `json:"user_preferences"`
}

// Default returns the settings used on first run.
func Default() Settings {
	return Settings{
		DarkMode:        true,
		APIKey:          "",
		ModelID:         catalog.DefaultModelID,
		MaxTokens:       1024,
		Temperature:     0.7,
		CustomPrompts:   make(map[string]string),
		UserPreferences: make(map[string]any),
	}
}

// Clone creates a deep copy so callers can mutate freely. Preference
// values are opaque and copied by reference.
func (s Settings) Clone() Settings {
	clone := s
	clone.CustomPrompts = make(map[string]string, len(s.CustomPrompts))
	for k, v := range s.CustomPrompts {
		clone.CustomPrompts[k] = v
	}
	clone.UserPreferences = make(map[string]any, len(s.UserPreferences))
	for k, v := range s.UserPreferences {
		clone.UserPreferences[k] = v
	}
	return clone
}
