// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jeranaias/multitool/internal/util"
)

// DefaultMaxConversations limits how many conversations are retained on
// disk before the oldest are pruned.
const DefaultMaxConversations = 100

// =============================================================================
// HISTORY STORE
// =============================================================================

// History persists conversations as one JSON document per conversation.
type History struct {
	// BaseDir is the directory holding conversation documents.
	BaseDir string

	// MaxConversations limits stored conversations (0 = unlimited).
	MaxConversations int
}

// NewHistory creates a history store rooted at dir.
func NewHistory(dir string) (*History, error) {
	if dir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		dir = filepath.Join(homeDir, ".multitool", "conversations")
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}

	return &History{
		BaseDir:          dir,
		MaxConversations: DefaultMaxConversations,
	}, nil
}

// =============================================================================
// SAVE OPERATIONS
// =============================================================================

// Save persists a conversation and returns its ID.
func (h *History) Save(conv *Conversation) (string, error) {
	if conv.ID == "" {
		conv.ID = uuid.NewString()
	}
	if !validID(conv.ID) {
		return "", fmt.Errorf("invalid conversation id: %q", conv.ID)
	}
	if conv.Summary == "" {
		conv.Summary = summarize(conv)
	}

	conv.UpdatedAt = time.Now()
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = conv.UpdatedAt
	}

	data, err := json.MarshalIndent(conv, "", "  ")
	if err != nil {
		return "", err
	}

	// RELIABILITY: Atomic write with fsync prevents data loss on crash
	if err := util.AtomicWriteFile(h.filePath(conv.ID), data, 0600); err != nil {
		return "", err
	}

	if h.MaxConversations > 0 {
		h.enforceLimit()
	}

	return conv.ID, nil
}

// summarize derives a summary from the first user message.
func summarize(conv *Conversation) string {
	for _, msg := range conv.Messages {
		if msg.Role == RoleUser && msg.Content != "" {
			content := strings.ReplaceAll(msg.Content, "\n", " ")
			content = strings.ReplaceAll(content, "\r", "")
			return truncateString(content, 50)
		}
	}
	return "New conversation"
}

// enforceLimit removes oldest conversations when over the cap.
func (h *History) enforceLimit() {
	metas, err := h.List()
	if err != nil || len(metas) <= h.MaxConversations {
		return
	}

	// List is newest first; delete from the tail.
	for _, meta := range metas[h.MaxConversations:] {
		h.Delete(meta.ID)
	}
}

// =============================================================================
// LOAD OPERATIONS
// =============================================================================

// Load retrieves a conversation by ID.
func (h *History) Load(id string) (*Conversation, error) {
	if !validID(id) {
		return nil, ErrConversationNotFound
	}
	data, err := os.ReadFile(h.filePath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrConversationNotFound
		}
		return nil, err
	}

	var conv Conversation
	if err := json.Unmarshal(data, &conv); err != nil {
		return nil, err
	}
	return &conv, nil
}

// List returns metadata for all stored conversations, most recent first.
func (h *History) List() ([]ConversationMeta, error) {
	entries, err := os.ReadDir(h.BaseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []ConversationMeta{}, nil
		}
		return nil, err
	}

	var metas []ConversationMeta
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		id := strings.TrimSuffix(entry.Name(), ".json")
		conv, err := h.Load(id)
		if err != nil {
			continue // Skip corrupted files
		}

		metas = append(metas, ConversationMeta{
			ID:           conv.ID,
			Summary:      conv.Summary,
			Model:        conv.Model,
			CreatedAt:    conv.CreatedAt,
			UpdatedAt:    conv.UpdatedAt,
			MessageCount: len(conv.Messages),
			Preview:      conv.Preview(),
		})
	}

	sort.Slice(metas, func(i, j int) bool {
		return metas[i].UpdatedAt.After(metas[j].UpdatedAt)
	})

	return metas, nil
}

// Search finds conversations whose summary, preview, or message content
// contains the query (case-insensitive).
func (h *History) Search(query string) ([]ConversationMeta, error) {
	all, err := h.List()
	if err != nil {
		return nil, err
	}
	if query == "" {
		return all, nil
	}

	query = strings.ToLower(query)
	var results []ConversationMeta

	for _, meta := range all {
		if strings.Contains(strings.ToLower(meta.Summary), query) ||
			strings.Contains(strings.ToLower(meta.Preview), query) {
			results = append(results, meta)
			continue
		}

		conv, err := h.Load(meta.ID)
		if err != nil {
			continue
		}
		for _, msg := range conv.Messages {
			if strings.Contains(strings.ToLower(msg.Content), query) {
				results = append(results, meta)
				break
			}
		}
	}

	return results, nil
}

// =============================================================================
// DELETE OPERATIONS
// =============================================================================

// Delete removes a conversation by ID.
func (h *History) Delete(id string) error {
	if !validID(id) {
		return ErrConversationNotFound
	}
	if err := os.Remove(h.filePath(id)); err != nil {
		if os.IsNotExist(err) {
			return ErrConversationNotFound
		}
		return err
	}
	return nil
}

// Clear removes all stored conversations.
func (h *History) Clear() error {
	entries, err := os.ReadDir(h.BaseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".json") {
			os.Remove(filepath.Join(h.BaseDir, entry.Name()))
		}
	}
	return nil
}

func (h *History) filePath(id string) string {
	return filepath.Join(h.BaseDir, id+".json")
}

// validID rejects IDs that would escape the conversations directory.
// SECURITY: Conversation IDs become file names, so path elements are refused.
func validID(id string) bool {
	return id != "" && filepath.Base(id) == id && id != "." && id != ".."
}
