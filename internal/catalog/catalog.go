// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package catalog holds the static registry of model profiles the
// orchestrator can route requests to. A profile carries everything the
// executor needs for one model: the inference endpoint, generation
// parameters, the per-minute request cap, and the advisory token price.
package catalog

import (
	"fmt"
	"sort"
	"strings"
)

// =============================================================================
// PROFILE TYPE
// =============================================================================

// Profile describes one model the orchestrator knows how to call.
type Profile struct {
	// ID is the short identifier used throughout the application
	ID string `json:"id"`

	// Name is the human-readable display name
	Name string `json:"name"`

	// Endpoint is the full inference URL for this model
	Endpoint string `json:"endpoint"`

	// MaxNewTokens caps the generated completion length
	MaxNewTokens int `json:"max_new_tokens"`

	// Temperature is the default sampling temperature
	Temperature float64 `json:"temperature"`

	// RequestsPerMinute is this model's admission cap inside a
	// 60-second sliding window
	RequestsPerMinute int `json:"requests_per_minute"`

	// CostPerToken is the advisory price per token in dollars
	CostPerToken float64 `json:"cost_per_token"`

	// SystemPrompt is the default instruction prepended to every
	// conversation with this model
	SystemPrompt string `json:"system_prompt"`

	// Description is a brief explanation of the model's strengths
	Description string `json:"description"`
}

// =============================================================================
// PROFILE REGISTRY
// =============================================================================

// DefaultModelID is the profile selected on first run.
const DefaultModelID = "mixtral"

// Profiles is the registry of known models with their metadata.
var Profiles = map[string]Profile{
	"mixtral": {
		ID:                "mixtral",
		Name:              "Mixtral 8x7B Instruct",
		Endpoint:          "https://api-inference.huggingface.co/models/mistralai/Mixtral-8x7B-Instruct-v0.1",
		MaxNewTokens:      1024,
		Temperature:       0.7,
		RequestsPerMinute: 10,
		CostPerToken:      0.0001,
		SystemPrompt:      "You are a helpful assistant. Answer clearly and concisely.",
		Description:       "MoE model for complex reasoning",
	},
	"llama": {
		ID:                "llama",
		Name:              "Llama 2 70B Chat",
		Endpoint:          "https://api-inference.huggingface.co/models/meta-llama/Llama-2-70b-chat-hf",
		MaxNewTokens:      2048,
		Temperature:       0.8,
		RequestsPerMinute: 8,
		CostPerToken:      0.0002,
		SystemPrompt:      "You are a knowledgeable assistant. Give thorough, well-structured answers.",
		Description:       "Large general-purpose chat model",
	},
	"codellama": {
		ID:                "codellama",
		Name:              "Code Llama 34B Instruct",
		Endpoint:          "https://api-inference.huggingface.co/models/codellama/CodeLlama-34b-Instruct-hf",
		MaxNewTokens:      2048,
		Temperature:       0.5,
		RequestsPerMinute: 12,
		CostPerToken:      0.00015,
		SystemPrompt:      "You are a programming assistant. Prefer working code examples with short explanations.",
		Description:       "Code-focused model for programming tasks",
	},
}

// =============================================================================
// LOOKUP HELPERS
// =============================================================================

// Get returns the profile for id, or an error naming the known models when
// the id is unrecognized.
func Get(id string) (Profile, error) {
	p, ok := Profiles[id]
	if !ok {
		return Profile{}, fmt.Errorf("unknown model %q (known models: %s)", id, strings.Join(IDs(), ", "))
	}
	return p, nil
}

// Exists reports whether id names a registered profile.
func Exists(id string) bool {
	_, ok := Profiles[id]
	return ok
}

// IDs returns all registered model identifiers in sorted order.
func IDs() []string {
	ids := make([]string, 0, len(Profiles))
	for id := range Profiles {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// All returns every registered profile in sorted ID order.
func All() []Profile {
	out := make([]Profile, 0, len(Profiles))
	for _, id := range IDs() {
		out = append(out, Profiles[id])
	}
	return out
}
