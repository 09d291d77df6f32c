// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package settings

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/jeranaias/multitool/internal/util"
)

// =============================================================================
// CONSTANTS
// =============================================================================

const (
	// BackupDirName is the directory name for settings backups
	BackupDirName = "backups"

	// BackupFileExt is the file extension for backup files
	BackupFileExt = ".json"

	// backupPrefix names backup files: settings-20060102-150405-N.json
	backupPrefix = "settings-"

	// DefaultMaxBackups is the default number of backups to retain
	DefaultMaxBackups = 5
)

// backupCounter disambiguates backups created within the same second.
var backupCounter uint64

// =============================================================================
// BACKUP KEEPER
// =============================================================================

// BackupKeeper snapshots the settings file before each save and keeps only
// the most recent copies.
type BackupKeeper struct {
	dir        string
	maxBackups int
}

// NewBackupKeeper creates a keeper storing backups under dir, retaining at
// most maxBackups files. A non-positive maxBackups falls back to the
// default.
func NewBackupKeeper(dir string, maxBackups int) (*BackupKeeper, error) {
	if maxBackups <= 0 {
		maxBackups = DefaultMaxBackups
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create backup directory: %w", err)
	}
	return &BackupKeeper{dir: dir, maxBackups: maxBackups}, nil
}

// Create snapshots the file at srcPath. A missing source is not an error;
// there is simply nothing to back up yet. Older backups beyond the
// retention cap are pruned.
func (b *BackupKeeper) Create(srcPath string) (string, error) {
	data, err := os.ReadFile(srcPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read settings for backup: %w", err)
	}

	counter := atomic.AddUint64(&backupCounter, 1)
	// Zero-padded counter keeps lexical order equal to creation order.
	name := fmt.Sprintf("%s%s-%06d%s", backupPrefix, time.Now().Format("20060102-150405"), counter, BackupFileExt)
	dst := filepath.Join(b.dir, name)

	// RELIABILITY: Atomic write with fsync prevents data loss on crash
	if err := util.AtomicWriteFile(dst, data, 0600); err != nil {
		return "", fmt.Errorf("failed to write backup: %w", err)
	}

	if err := b.prune(); err != nil {
		return name, err
	}
	return name, nil
}

// List returns the backup file names, newest first.
func (b *BackupKeeper) List() ([]string, error) {
	entries, err := os.ReadDir(b.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read backup directory: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, backupPrefix) && strings.HasSuffix(name, BackupFileExt) {
			names = append(names, name)
		}
	}

	// Names embed timestamp plus a monotonic counter, so lexical order is
	// creation order within a run.
	sort.Sort(sort.Reverse(sort.StringSlice(names)))
	return names, nil
}

// Read returns the contents of a named backup.
func (b *BackupKeeper) Read(name string) ([]byte, error) {
	if filepath.Base(name) != name {
		return nil, fmt.Errorf("invalid backup name %q", name)
	}
	data, err := os.ReadFile(filepath.Join(b.dir, name))
	if err != nil {
		return nil, fmt.Errorf("failed to read backup %s: %w", name, err)
	}
	return data, nil
}

// prune deletes backups beyond the retention cap, oldest first.
func (b *BackupKeeper) prune() error {
	names, err := b.List()
	if err != nil {
		return err
	}
	for _, name := range names[min(len(names), b.maxBackups):] {
		if err := os.Remove(filepath.Join(b.dir, name)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to prune backup %s: %w", name, err)
		}
	}
	return nil
}
