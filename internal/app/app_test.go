// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package app

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jeranaias/multitool/internal/catalog"
	"github.com/jeranaias/multitool/internal/config"
	"github.com/jeranaias/multitool/internal/errorlog"
	"github.com/jeranaias/multitool/internal/settings"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	cfg.Retention.SettingsBackups = 2
	cfg.Retention.ErrorLogEntries = 10
	return cfg
}

func TestNewWiresComponents(t *testing.T) {
	cfg := testConfig(t)

	a, err := New(cfg)
	require.NoError(t, err)

	require.Same(t, cfg, a.Config)
	require.Equal(t, filepath.Join(cfg.DataDir, settings.SettingsFileName), a.Settings.Path())
	profile, err := a.Chat.Model()
	require.NoError(t, err)
	require.Equal(t, catalog.DefaultModelID, profile.ID)

	// No API key configured yet, so the executor is not ready.
	require.False(t, a.Client.IsConfigured())
}

func TestNewAppliesRetention(t *testing.T) {
	a, err := New(testConfig(t))
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		require.NoError(t, a.Settings.Update(func(s *settings.Settings) {
			s.MaxTokens = 100 + i
		}))
	}
	backups, err := a.Settings.Backups()
	require.NoError(t, err)
	require.Len(t, backups, 2)

	for i := 0; i < 15; i++ {
		a.Errors.Report(errorlog.CodeInternal, errorlog.SeverityWarning, "test", errors.New("boom"))
	}
	require.Equal(t, 10, a.Errors.Len())
}

func TestNewPropagatesKeyToClient(t *testing.T) {
	a, err := New(testConfig(t))
	require.NoError(t, err)

	require.NoError(t, a.Settings.Update(func(s *settings.Settings) {
		s.APIKey = "hf_config_test"
	}))
	require.True(t, a.Client.IsConfigured())
}
