// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package catalog

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGetKnownModel(t *testing.T) {
	p, err := Get("mixtral")
	require.NoError(t, err)
	require.Equal(t, "mixtral", p.ID)
	require.Equal(t, 1024, p.MaxNewTokens)
	require.Equal(t, 10, p.RequestsPerMinute)
}

func TestGetUnknownModel(t *testing.T) {
	_, err := Get("gpt-9")
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown model")
	// The error should guide the user toward valid choices.
	require.Contains(t, err.Error(), "mixtral")
}

func TestDefaultModelIsRegistered(t *testing.T) {
	require.True(t, Exists(DefaultModelID))
}

func TestRegistryConsistency(t *testing.T) {
	for id, p := range Profiles {
		if p.ID != id {
			t.Errorf("profile %q has mismatched ID %q", id, p.ID)
		}
		if p.RequestsPerMinute <= 0 {
			t.Errorf("profile %q has non-positive rate cap", id)
		}
		if p.MaxNewTokens <= 0 {
			t.Errorf("profile %q has non-positive token cap", id)
		}
		if !strings.HasPrefix(p.Endpoint, "https://") {
			t.Errorf("profile %q endpoint is not HTTPS", id)
		}
		if p.CostPerToken < 0 {
			t.Errorf("profile %q has negative cost", id)
		}
	}
}

func TestIDsSorted(t *testing.T) {
	ids := IDs()
	require.Len(t, ids, len(Profiles))
	for i := 1; i < len(ids); i++ {
		require.Less(t, ids[i-1], ids[i])
	}
}
