// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides unified configuration loading and management for
// multitool.
//
// Supports both TOML and JSON configuration formats, with sensible defaults,
// environment variable overrides, and validation.
//
// Configuration file locations (in order of precedence):
//   - ~/.multitool/config.toml
//   - ~/.multitool/config.json
//   - Built-in defaults
package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/jeranaias/multitool/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete multitool configuration.
//
// This is deployment-level configuration (paths, timeouts, logging) as
// opposed to user preferences, which live in the encrypted settings store.
type Config struct {
	Version string `toml:"version" json:"version"`

	// DataDir is the directory holding settings, history, usage sessions,
	// and backups. Empty means ~/.multitool.
	DataDir string `toml:"data_dir" json:"data_dir"`

	// HTTP configuration for outbound inference calls
	HTTP HTTPConfig `toml:"http" json:"http"`

	// Retention configuration for persisted artifacts
	Retention RetentionConfig `toml:"retention" json:"retention"`

	// Logging configuration
	Logging LoggingConfig `toml:"logging" json:"logging"`
}

// HTTPConfig contains outbound HTTP client configuration.
type HTTPConfig struct {
	// TimeoutSecs is the per-request timeout in seconds
	TimeoutSecs int `toml:"timeout_secs" json:"timeout_secs"`
	// MaxResponseBytes caps how much of a response body is read
	MaxResponseBytes int64 `toml:"max_response_bytes" json:"max_response_bytes"`
	// OutboundRPS is the process-wide cap on outbound requests per second.
	// This sits below the per-model admission windows as a safety net.
	OutboundRPS float64 `toml:"outbound_rps" json:"outbound_rps"`
	// OutboundBurst is the burst size for the outbound limiter
	OutboundBurst int `toml:"outbound_burst" json:"outbound_burst"`
}

// RetentionConfig controls how many persisted artifacts are kept.
type RetentionConfig struct {
	// SettingsBackups is the number of timestamped settings backups retained
	SettingsBackups int `toml:"settings_backups" json:"settings_backups"`
	// ErrorLogEntries is the in-memory error log ring size
	ErrorLogEntries int `toml:"error_log_entries" json:"error_log_entries"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error"
	Level string `toml:"level" json:"level"`
	// File is an optional log file path (empty = stderr only)
	File string `toml:"file" json:"file"`
	// Console enables human-readable console output instead of JSON
	Console bool `toml:"console" json:"console"`
}

// =============================================================================
// DEFAULT CONFIGURATION
// =============================================================================

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Version: "1.0.0",
		DataDir: "",

		HTTP: HTTPConfig{
			TimeoutSecs:      60,
			MaxResponseBytes: 10 << 20, // 10 MiB
			OutboundRPS:      5,
			OutboundBurst:    5,
		},

		Retention: RetentionConfig{
			SettingsBackups: 5,
			ErrorLogEntries: 100,
		},

		Logging: LoggingConfig{
			Level:   "info",
			File:    "",
			Console: false,
		},
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the multitool configuration directory path.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".multitool"), nil
}

// ConfigPathTOML returns the path to the TOML config file.
func ConfigPathTOML() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// ConfigPathJSON returns the path to the JSON config file.
func ConfigPathJSON() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// ResolveDataDir returns the effective data directory, creating it if needed.
func (c *Config) ResolveDataDir() (string, error) {
	dir := c.DataDir
	if dir == "" {
		var err error
		dir, err = ConfigDir()
		if err != nil {
			return "", err
		}
	}
	// SECURITY: data dir holds the encryption key file, keep it private
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("failed to create data directory: %w", err)
	}
	return dir, nil
}

// ensureSecurePermissions checks and fixes permissions on config files.
// SECURITY: Config files should be 0600 (owner read/write only).
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}

	mode := info.Mode().Perm()
	if mode != 0600 {
		if err := os.Chmod(path, 0600); err != nil {
			return fmt.Errorf("failed to fix insecure permissions (was %o): %w", mode, err)
		}
	}

	return nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads configuration from the config file(s).
// Tries TOML first, then JSON, and falls back to defaults.
// Environment overrides are applied last.
func Load() (*Config, error) {
	cfg := Default()
	var loadErr error

	// Try TOML first
	tomlPath, err := ConfigPathTOML()
	if err == nil {
		if _, statErr := os.Stat(tomlPath); statErr == nil {
			if err := LoadTOML(cfg, tomlPath); err != nil {
				loadErr = fmt.Errorf("failed to load TOML config: %w", err)
			} else {
				return finalize(cfg)
			}
		}
	}

	// Try JSON as fallback
	jsonPath, err := ConfigPathJSON()
	if err == nil {
		if _, statErr := os.Stat(jsonPath); statErr == nil {
			if err := LoadJSON(cfg, jsonPath); err != nil {
				loadErr = fmt.Errorf("failed to load JSON config: %w", err)
			} else {
				return finalize(cfg)
			}
		}
	}

	cfg, err = finalize(cfg)
	if err != nil {
		return nil, err
	}

	// Return defaults (with any load error for informational purposes)
	return cfg, loadErr
}

// LoadFromPath loads configuration from a specific file path with full
// validation.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	if strings.HasSuffix(path, ".json") {
		if err := LoadJSON(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load JSON config from %s: %w", path, err)
		}
	} else {
		if err := LoadTOML(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load TOML config from %s: %w", path, err)
		}
	}

	return finalize(cfg)
}

func finalize(cfg *Config) (*Config, error) {
	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadTOML loads configuration from a TOML file.
// SECURITY: Checks and fixes file permissions on load.
func LoadTOML(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		// Permissions might not be fixable on all systems
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	return nil
}

// LoadJSON loads configuration from a JSON file.
// SECURITY: Checks and fixes file permissions on load.
func LoadJSON(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read JSON file: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to decode JSON file: %w", err)
	}
	return nil
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save saves the configuration to the default TOML file.
func Save(cfg *Config) error {
	path, err := ConfigPathTOML()
	if err != nil {
		return err
	}
	return SaveTOML(cfg, path)
}

// SaveTOML saves the configuration to a TOML file.
// SECURITY: Creates config files with 0600 permissions (owner read/write only).
func SaveTOML(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	// SECURITY: Ensure permissions are correct even if file already existed
	if err := os.Chmod(path, 0600); err != nil {
		return fmt.Errorf("failed to set config file permissions: %w", err)
	}

	fmt.Fprintln(file, "# multitool configuration file")
	fmt.Fprintln(file, "# Generated by multitool - edit with care")
	fmt.Fprintln(file, "")

	encoder := toml.NewEncoder(file)
	if err := encoder.Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	return nil
}

// SaveJSON saves the configuration to a JSON file.
// RELIABILITY: Atomic write with fsync prevents data loss on crash.
func SaveJSON(cfg *Config, path string) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	// SECURITY: 0600 = owner read/write only
	if err := util.AtomicWriteFileWithDir(path, data, 0600, 0700); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	var errs ValidateErrors

	if c.HTTP.TimeoutSecs < 1 || c.HTTP.TimeoutSecs > 600 {
		errs = append(errs, ValidationError{
			Field:   "http.timeout_secs",
			Message: fmt.Sprintf("must be 1-600 seconds, got %d", c.HTTP.TimeoutSecs),
		})
	}

	if c.HTTP.MaxResponseBytes < 1024 {
		errs = append(errs, ValidationError{
			Field:   "http.max_response_bytes",
			Message: fmt.Sprintf("must be at least 1024 bytes, got %d", c.HTTP.MaxResponseBytes),
		})
	}

	if c.HTTP.OutboundRPS <= 0 {
		errs = append(errs, ValidationError{
			Field:   "http.outbound_rps",
			Message: "must be positive",
		})
	}

	if c.HTTP.OutboundBurst < 1 {
		errs = append(errs, ValidationError{
			Field:   "http.outbound_burst",
			Message: "must be at least 1",
		})
	}

	if c.Retention.SettingsBackups < 1 || c.Retention.SettingsBackups > 50 {
		errs = append(errs, ValidationError{
			Field:   "retention.settings_backups",
			Message: fmt.Sprintf("must be 1-50, got %d", c.Retention.SettingsBackups),
		})
	}

	if c.Retention.ErrorLogEntries < 10 || c.Retention.ErrorLogEntries > 10000 {
		errs = append(errs, ValidationError{
			Field:   "retention.error_log_entries",
			Message: fmt.Sprintf("must be 10-10000, got %d", c.Retention.ErrorLogEntries),
		})
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("invalid level '%s', must be one of: debug, info, warn, error", c.Logging.Level),
		})
	}

	if c.DataDir != "" {
		if _, err := url.Parse(c.DataDir); err != nil || strings.ContainsRune(c.DataDir, 0) {
			errs = append(errs, ValidationError{
				Field:   "data_dir",
				Message: "invalid path",
			})
		}
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// SetDefaults sets default values for any missing or zero-value fields.
func (c *Config) SetDefaults() {
	defaults := Default()

	if c.Version == "" {
		c.Version = defaults.Version
	}
	if c.HTTP.TimeoutSecs == 0 {
		c.HTTP.TimeoutSecs = defaults.HTTP.TimeoutSecs
	}
	if c.HTTP.MaxResponseBytes == 0 {
		c.HTTP.MaxResponseBytes = defaults.HTTP.MaxResponseBytes
	}
	if c.HTTP.OutboundRPS == 0 {
		c.HTTP.OutboundRPS = defaults.HTTP.OutboundRPS
	}
	if c.HTTP.OutboundBurst == 0 {
		c.HTTP.OutboundBurst = defaults.HTTP.OutboundBurst
	}
	if c.Retention.SettingsBackups == 0 {
		c.Retention.SettingsBackups = defaults.Retention.SettingsBackups
	}
	if c.Retention.ErrorLogEntries == 0 {
		c.Retention.ErrorLogEntries = defaults.Retention.ErrorLogEntries
	}
	if c.Logging.Level == "" {
		c.Logging.Level = defaults.Logging.Level
	}
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides to the config.
//
// Supported environment variables:
//   - MULTITOOL_DATA_DIR: overrides data_dir
//   - MULTITOOL_LOG_LEVEL: overrides logging.level
//   - MULTITOOL_LOG_FILE: overrides logging.file
//   - MULTITOOL_HTTP_TIMEOUT_SECS: overrides http.timeout_secs
//   - MULTITOOL_OUTBOUND_RPS: overrides http.outbound_rps
func (c *Config) ApplyEnvOverrides() {
	if dir := os.Getenv("MULTITOOL_DATA_DIR"); dir != "" {
		c.DataDir = dir
	}

	if level := os.Getenv("MULTITOOL_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}

	if file := os.Getenv("MULTITOOL_LOG_FILE"); file != "" {
		c.Logging.File = file
	}

	if timeout := os.Getenv("MULTITOOL_HTTP_TIMEOUT_SECS"); timeout != "" {
		if secs, err := strconv.Atoi(timeout); err == nil && secs > 0 {
			c.HTTP.TimeoutSecs = secs
		}
	}

	if rps := os.Getenv("MULTITOOL_OUTBOUND_RPS"); rps != "" {
		if v, err := strconv.ParseFloat(rps, 64); err == nil && v > 0 {
			c.HTTP.OutboundRPS = v
		}
	}
}

// =============================================================================
// SINGLETON PATTERN (THREAD-SAFE)
// =============================================================================

var (
	globalConfig     *Config
	globalConfigOnce sync.Once
	globalConfigMu   sync.RWMutex
)

// Global returns the global configuration instance.
// Loads configuration on first access. Thread-safe.
func Global() *Config {
	globalConfigOnce.Do(func() {
		cfg, err := Load()
		if err != nil {
			// Log but don't fail - use defaults
			fmt.Fprintf(os.Stderr, "Warning: %v (using defaults)\n", err)
		}
		globalConfig = cfg
	})

	globalConfigMu.RLock()
	defer globalConfigMu.RUnlock()
	return globalConfig
}

// SetGlobal sets the global configuration instance. Thread-safe.
func SetGlobal(cfg *Config) {
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = cfg
}

// ResetGlobalForTesting resets the global config state for testing.
func ResetGlobalForTesting() {
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = nil
	globalConfigOnce = sync.Once{}
}
