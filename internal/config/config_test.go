// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
}

func TestLoadFromPathTOML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	content := `
version = "1.0.0"
data_dir = "` + dir + `"

[http]
timeout_secs = 30
outbound_rps = 2.5

[logging]
level = "debug"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	cfg, err := LoadFromPath(path)
	require.NoError(t, err)
	require.Equal(t, 30, cfg.HTTP.TimeoutSecs)
	require.Equal(t, 2.5, cfg.HTTP.OutboundRPS)
	require.Equal(t, "debug", cfg.Logging.Level)
	// Unset fields fall back to defaults.
	require.Equal(t, 5, cfg.Retention.SettingsBackups)
	require.Equal(t, int64(10<<20), cfg.HTTP.MaxResponseBytes)
}

func TestLoadFromPathJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	content := `{"http": {"timeout_secs": 45}, "logging": {"level": "warn"}}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	cfg, err := LoadFromPath(path)
	require.NoError(t, err)
	require.Equal(t, 45, cfg.HTTP.TimeoutSecs)
	require.Equal(t, "warn", cfg.Logging.Level)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := Default()
	cfg.HTTP.TimeoutSecs = 0
	cfg.Logging.Level = "loud"

	err := cfg.Validate()
	require.Error(t, err)

	verrs, ok := err.(ValidateErrors)
	require.True(t, ok)
	require.Len(t, verrs, 2)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("MULTITOOL_LOG_LEVEL", "error")
	t.Setenv("MULTITOOL_HTTP_TIMEOUT_SECS", "15")
	t.Setenv("MULTITOOL_OUTBOUND_RPS", "0.5")

	cfg := Default()
	cfg.ApplyEnvOverrides()

	require.Equal(t, "error", cfg.Logging.Level)
	require.Equal(t, 15, cfg.HTTP.TimeoutSecs)
	require.Equal(t, 0.5, cfg.HTTP.OutboundRPS)
}

func TestEnvOverridesIgnoreInvalidNumbers(t *testing.T) {
	t.Setenv("MULTITOOL_HTTP_TIMEOUT_SECS", "not-a-number")

	cfg := Default()
	cfg.ApplyEnvOverrides()

	require.Equal(t, Default().HTTP.TimeoutSecs, cfg.HTTP.TimeoutSecs)
}

func TestSaveJSONRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "config.json")

	cfg := Default()
	cfg.HTTP.TimeoutSecs = 90
	require.NoError(t, SaveJSON(cfg, path))

	loaded := Default()
	require.NoError(t, LoadJSON(loaded, path))
	require.Equal(t, 90, loaded.HTTP.TimeoutSecs)

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestResolveDataDirCreatesDirectory(t *testing.T) {
	dir := t.TempDir()
	cfg := Default()
	cfg.DataDir = filepath.Join(dir, "data")

	resolved, err := cfg.ResolveDataDir()
	require.NoError(t, err)
	require.Equal(t, cfg.DataDir, resolved)

	info, err := os.Stat(resolved)
	require.NoError(t, err)
	require.True(t, info.IsDir())
}
