// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package usage

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/jeranaias/multitool/internal/util"
)

// =============================================================================
// SESSION STORAGE
// =============================================================================

// Storage persists usage sessions to disk as one JSON file per session.
type Storage struct {
	dir string
}

// NewStorage creates a session storage manager rooted at dir. An empty dir
// defaults to ~/.multitool/usage/.
func NewStorage(dir string) (*Storage, error) {
	if dir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		dir = filepath.Join(homeDir, ".multitool", "usage")
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, err
	}

	return &Storage{dir: dir}, nil
}

// Save persists a session to disk.
// RELIABILITY: Atomic write so a crash never leaves a truncated session file.
func (s *Storage) Save(session *Statistics) error {
	if session == nil {
		return nil
	}

	data, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return err
	}

	filename := filepath.Join(s.dir, session.ID+".json")
	return util.AtomicWriteFile(filename, data, 0600)
}

// Load retrieves a session from disk.
func (s *Storage) Load(sessionID string) (*Statistics, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, sessionID+".json"))
	if err != nil {
		return nil, err
	}

	var session Statistics
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, err
	}

	return &session, nil
}

// List returns all session IDs whose embedded timestamp falls within the
// specified date range, sorted chronologically.
func (s *Storage) List(from, to time.Time) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}

	var sessionIDs []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()
		if !strings.HasSuffix(name, ".json") {
			continue
		}

		sessionID := strings.TrimSuffix(name, ".json")
		timestamp, ok := parseSessionTimestamp(sessionID)
		if !ok {
			continue
		}

		if timestamp.Before(from) || timestamp.After(to) {
			continue
		}

		sessionIDs = append(sessionIDs, sessionID)
	}

	sort.Strings(sessionIDs)
	return sessionIDs, nil
}

// Delete removes a session file from disk.
func (s *Storage) Delete(sessionID string) error {
	return os.Remove(filepath.Join(s.dir, sessionID+".json"))
}

// DeleteBefore removes all session files older than the specified date.
func (s *Storage) DeleteBefore(before time.Time) error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		sessionID := strings.TrimSuffix(entry.Name(), ".json")
		timestamp, ok := parseSessionTimestamp(sessionID)
		if !ok {
			continue
		}

		if timestamp.Before(before) {
			os.Remove(filepath.Join(s.dir, entry.Name())) // Ignore errors
		}
	}

	return nil
}

// parseSessionTimestamp extracts the timestamp from a session ID of the
// form 20060102-150405-counter.
func parseSessionTimestamp(sessionID string) (time.Time, bool) {
	timestampPart := sessionID
	if parts := strings.Split(sessionID, "-"); len(parts) >= 3 {
		timestampPart = parts[0] + "-" + parts[1]
	}

	timestamp, err := time.Parse("20060102-150405", timestampPart)
	if err != nil {
		return time.Time{}, false
	}
	return timestamp, true
}
