// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package settings

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"

	"github.com/jeranaias/multitool/internal/logging"
	"github.com/jeranaias/multitool/internal/util"
)

// SettingsFileName is the name of the settings document inside the data dir.
const SettingsFileName = "settings.json"

// Subscriber receives the new settings after every committed change.
// Subscribers are invoked in registration order.
type Subscriber func(Settings)

// =============================================================================
// STORE
// =============================================================================

// Store owns the settings document: it loads and decrypts it at startup,
// serializes every change to disk, and fans changes out to subscribers.
type Store struct {
	mu          sync.RWMutex
	path        string
	cipher      *Cipher
	current     Settings
	subscribers []Subscriber
	backups     *BackupKeeper
	logger      zerolog.Logger
}

// StoreOption configures a Store.
type StoreOption func(*storeConfig)

type storeConfig struct {
	maxBackups int
	passphrase string
	salt       []byte
}

// WithMaxBackups overrides the backup retention cap.
func WithMaxBackups(n int) StoreOption {
	return func(c *storeConfig) { c.maxBackups = n }
}

// WithPassphrase derives the encryption key from a passphrase instead of
// the key file. The salt must be stable across runs.
func WithPassphrase(passphrase string, salt []byte) StoreOption {
	return func(c *storeConfig) {
		c.passphrase = passphrase
		c.salt = salt
	}
}

// NewStore opens (or initializes) the settings store under dir.
//
// On first run the encryption key is generated into dir/settings.key and
// the document starts from Default(). An existing document is loaded and
// its API key decrypted into memory.
func NewStore(dir string, opts ...StoreOption) (*Store, error) {
	cfg := storeConfig{maxBackups: DefaultMaxBackups}
	for _, opt := range opts {
		opt(&cfg)
	}

	var cipher *Cipher
	var err error
	if cfg.passphrase != "" {
		cipher, err = NewCipherWithPassphrase(cfg.passphrase, cfg.salt)
	} else {
		var key []byte
		key, err = NewFileKeyStore(filepath.Join(dir, KeyFileName)).LoadOrCreate()
		if err == nil {
			cipher, err = NewCipher(key)
			// SECURITY: Zero key material to prevent memory disclosure
			ZeroBytes(key)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to initialize settings encryption: %w", err)
	}

	backups, err := NewBackupKeeper(filepath.Join(dir, BackupDirName), cfg.maxBackups)
	if err != nil {
		return nil, err
	}

	s := &Store{
		path:    filepath.Join(dir, SettingsFileName),
		cipher:  cipher,
		backups: backups,
		logger:  logging.Component("settings"),
	}

	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

// load reads the document from disk, falling back to defaults when absent.
func (s *Store) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.mu.Lock()
			s.current = Default()
			s.mu.Unlock()
			s.logger.Info().Msg("no settings file, using defaults")
			return nil
		}
		return fmt.Errorf("failed to read settings: %w", err)
	}

	var loaded Settings
	if err := json.Unmarshal(data, &loaded); err != nil {
		return fmt.Errorf("failed to parse settings: %w", err)
	}
	if loaded.CustomPrompts == nil {
		loaded.CustomPrompts = make(map[string]string)
	}
	if loaded.UserPreferences == nil {
		loaded.UserPreferences = make(map[string]any)
	}

	// SECURITY: the API key is stored encrypted; decrypt into memory only
	plainKey, err := s.cipher.DecryptString(loaded.APIKey)
	if err != nil {
		return fmt.Errorf("failed to decrypt API key: %w", err)
	}
	loaded.APIKey = plainKey

	s.mu.Lock()
	s.current = loaded
	s.mu.Unlock()
	return nil
}

// Get returns a copy of the current settings with the API key decrypted.
func (s *Store) Get() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.Clone()
}

// Subscribe registers a subscriber for committed changes.
func (s *Store) Subscribe(fn Subscriber) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribers = append(s.subscribers, fn)
}

// Update applies mutate to a copy of the current settings, persists the
// result, and notifies subscribers. The document on disk is only replaced
// after the new content is fully written.
func (s *Store) Update(mutate func(*Settings)) error {
	s.mu.Lock()
	next := s.current.Clone()
	mutate(&next)

	if err := s.persistLocked(next); err != nil {
		s.mu.Unlock()
		return err
	}

	s.current = next
	snap := next.Clone()
	subs := make([]Subscriber, len(s.subscribers))
	copy(subs, s.subscribers)
	s.mu.Unlock()

	for _, fn := range subs {
		fn(snap)
	}
	return nil
}

// persistLocked encrypts and writes the document. Caller must hold s.mu.
func (s *Store) persistLocked(next Settings) error {
	// Snapshot the previous file before replacing it.
	if _, err := s.backups.Create(s.path); err != nil {
		s.logger.Warn().Err(err).Msg("settings backup failed")
	}

	onDisk := next.Clone()
	encKey, err := s.cipher.EncryptString(onDisk.APIKey)
	if err != nil {
		return fmt.Errorf("failed to encrypt API key: %w", err)
	}
	onDisk.APIKey = encKey

	data, err := json.MarshalIndent(onDisk, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}

	// RELIABILITY: Atomic write with fsync prevents data loss on crash
	// SECURITY: 0600 = owner read/write only
	if err := util.AtomicWriteFileWithDir(s.path, data, 0600, 0700); err != nil {
		return fmt.Errorf("failed to write settings: %w", err)
	}
	return nil
}

// Reload re-reads the document from disk and notifies subscribers. Used by
// the file watcher when the document changes externally.
func (s *Store) Reload() error {
	if err := s.load(); err != nil {
		return err
	}

	s.mu.RLock()
	snap := s.current.Clone()
	subs := make([]Subscriber, len(s.subscribers))
	copy(subs, s.subscribers)
	s.mu.RUnlock()

	for _, fn := range subs {
		fn(snap)
	}
	return nil
}

// Path returns the settings file path.
func (s *Store) Path() string {
	return s.path
}

// =============================================================================
// BACKUP AND RESTORE
// =============================================================================

// Backups lists available backup names, newest first.
func (s *Store) Backups() ([]string, error) {
	return s.backups.List()
}

// Restore replaces the current document with a named backup and reloads.
// The pre-restore state is itself backed up first, so a mistaken restore
// can be undone.
func (s *Store) Restore(name string) error {
	data, err := s.backups.Read(name)
	if err != nil {
		return err
	}

	// Validate before touching the live file.
	var check Settings
	if err := json.Unmarshal(data, &check); err != nil {
		return fmt.Errorf("backup %s is not a valid settings document: %w", name, err)
	}

	s.mu.Lock()
	if _, err := s.backups.Create(s.path); err != nil {
		s.logger.Warn().Err(err).Msg("pre-restore backup failed")
	}
	if err := util.AtomicWriteFile(s.path, data, 0600); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to restore settings: %w", err)
	}
	s.mu.Unlock()

	return s.Reload()
}

// =============================================================================
// EXPORT AND IMPORT
// =============================================================================

// exportDocument is the portable settings representation. Credentials are
// never exported.
type exportDocument struct {
	DarkMode        bool              `json:"dark_mode"`
	ModelID         string            `json:"model_id"`
	MaxTokens       int               `json:"max_tokens"`
	Temperature     float64           `json:"temperature"`
	CustomPrompts   map[string]string `json:"custom_prompts"`
	UserPreferences map[string]any    `json:"user_preferences"`
}

// Export writes the preferences to path as plaintext JSON.
// SECURITY: The API key is deliberately excluded from exports.
func (s *Store) Export(path string) error {
	cur := s.Get()

	doc := exportDocument{
		DarkMode:        cur.DarkMode,
		ModelID:         cur.ModelID,
		MaxTokens:       cur.MaxTokens,
		Temperature:     cur.Temperature,
		CustomPrompts:   cur.CustomPrompts,
		UserPreferences: cur.UserPreferences,
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode export: %w", err)
	}

	if err := util.AtomicWriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write export: %w", err)
	}
	return nil
}

// Import reads preferences from an export file and commits them. The
// stored API key is preserved; imports never carry credentials.
func (s *Store) Import(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read import file: %w", err)
	}

	var doc exportDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to parse import file: %w", err)
	}
	if doc.CustomPrompts == nil {
		doc.CustomPrompts = make(map[string]string)
	}
	if doc.UserPreferences == nil {
		doc.UserPreferences = make(map[string]any)
	}

	return s.Update(func(next *Settings) {
		next.DarkMode = doc.DarkMode
		next.ModelID = doc.ModelID
		next.MaxTokens = doc.MaxTokens
		next.Temperature = doc.Temperature
		next.CustomPrompts = doc.CustomPrompts
		next.UserPreferences = doc.UserPreferences
	})
}
