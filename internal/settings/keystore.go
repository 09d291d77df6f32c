// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package settings

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/jeranaias/multitool/internal/util"
)

// =============================================================================
// FILE-BASED KEYSTORE
// =============================================================================

// KeyFileName is the name of the encryption key file inside the data dir.
const KeyFileName = "settings.key"

// FileKeyStore stores the settings encryption key in a file with
// restricted permissions (0600).
type FileKeyStore struct {
	path string
}

// NewFileKeyStore creates a key store at the given path.
func NewFileKeyStore(path string) *FileKeyStore {
	return &FileKeyStore{path: path}
}

// Store saves the key with restricted permissions.
// RELIABILITY: Atomic write with fsync prevents data loss on crash.
func (f *FileKeyStore) Store(key []byte) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0700); err != nil {
		return fmt.Errorf("failed to create key directory: %w", err)
	}

	// SECURITY: owner read/write only
	if err := util.AtomicWriteFile(f.path, key, 0600); err != nil {
		return fmt.Errorf("failed to write key file: %w", err)
	}

	return nil
}

// Retrieve reads the key from the file.
func (f *FileKeyStore) Retrieve() ([]byte, error) {
	key, err := os.ReadFile(f.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}
	if len(key) != KeySize {
		return nil, fmt.Errorf("key file %s is corrupt: %w", f.path, ErrInvalidKeySize)
	}
	return key, nil
}

// Delete removes the key file.
func (f *FileKeyStore) Delete() error {
	if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete key file: %w", err)
	}
	return nil
}

// Exists checks if the key file exists.
func (f *FileKeyStore) Exists() bool {
	_, err := os.Stat(f.path)
	return err == nil
}

// LoadOrCreate retrieves the stored key, generating and persisting a fresh
// one on first run.
func (f *FileKeyStore) LoadOrCreate() ([]byte, error) {
	if f.Exists() {
		return f.Retrieve()
	}

	key, err := GenerateKey()
	if err != nil {
		return nil, err
	}
	if err := f.Store(key); err != nil {
		return nil, err
	}
	return key, nil
}
