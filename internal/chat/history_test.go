// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testConversation(text string) *Conversation {
	return &Conversation{
		Model: "mixtral",
		Messages: []Message{
			{ID: "m1", Role: RoleUser, Content: text, Timestamp: time.Now()},
			{ID: "m2", Role: RoleAssistant, Content: "reply to " + text, Timestamp: time.Now()},
		},
	}
}

func TestHistorySaveLoadRoundTrip(t *testing.T) {
	h, err := NewHistory(t.TempDir())
	require.NoError(t, err)

	id, err := h.Save(testConversation("hello world"))
	require.NoError(t, err)
	require.NotEmpty(t, id)

	loaded, err := h.Load(id)
	require.NoError(t, err)
	require.Equal(t, id, loaded.ID)
	require.Len(t, loaded.Messages, 2)
	require.Equal(t, "hello world", loaded.Messages[0].Content)
	require.Equal(t, "hello world", loaded.Summary)
	require.False(t, loaded.CreatedAt.IsZero())
}

func TestHistoryLoadMissing(t *testing.T) {
	h, err := NewHistory(t.TempDir())
	require.NoError(t, err)

	_, err = h.Load("missing")
	require.ErrorIs(t, err, ErrConversationNotFound)
}

func TestHistoryRejectsPathTraversalIDs(t *testing.T) {
	h, err := NewHistory(t.TempDir())
	require.NoError(t, err)

	for _, id := range []string{"", ".", "..", "../other", "a/b", "../../etc/passwd"} {
		_, err := h.Load(id)
		require.ErrorIs(t, err, ErrConversationNotFound, "load %q", id)

		require.ErrorIs(t, h.Delete(id), ErrConversationNotFound, "delete %q", id)

		_, err = h.Save(&Conversation{ID: id + "x/../y"})
		require.Error(t, err, "save %q", id)
	}
}

func TestHistoryListNewestFirst(t *testing.T) {
	h, err := NewHistory(t.TempDir())
	require.NoError(t, err)

	_, err = h.Save(testConversation("older"))
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond) // distinct UpdatedAt ordering

	newerID, err := h.Save(testConversation("newer"))
	require.NoError(t, err)

	metas, err := h.List()
	require.NoError(t, err)
	require.Len(t, metas, 2)
	require.Equal(t, newerID, metas[0].ID)
	require.Equal(t, 2, metas[0].MessageCount)
}

func TestHistorySearchMatchesContent(t *testing.T) {
	h, err := NewHistory(t.TempDir())
	require.NoError(t, err)

	matchID, err := h.Save(testConversation("the quick brown fox"))
	require.NoError(t, err)
	_, err = h.Save(testConversation("nothing relevant"))
	require.NoError(t, err)

	results, err := h.Search("BROWN FOX")
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, matchID, results[0].ID)

	all, err := h.Search("")
	require.NoError(t, err)
	require.Len(t, all, 2)
}

func TestHistoryDelete(t *testing.T) {
	h, err := NewHistory(t.TempDir())
	require.NoError(t, err)

	id, err := h.Save(testConversation("gone soon"))
	require.NoError(t, err)

	require.NoError(t, h.Delete(id))
	_, err = h.Load(id)
	require.ErrorIs(t, err, ErrConversationNotFound)

	require.ErrorIs(t, h.Delete(id), ErrConversationNotFound)
}

func TestHistoryEnforcesRetentionLimit(t *testing.T) {
	h, err := NewHistory(t.TempDir())
	require.NoError(t, err)
	h.MaxConversations = 3

	for i := 0; i < 6; i++ {
		conv := testConversation("conversation")
		_, err := h.Save(conv)
		require.NoError(t, err)
		time.Sleep(5 * time.Millisecond) // distinct UpdatedAt ordering
	}

	metas, err := h.List()
	require.NoError(t, err)
	require.Len(t, metas, 3)
}

func TestConversationExportMarkdown(t *testing.T) {
	conv := testConversation("export me")
	conv.ID = "abc"

	md := conv.ExportMarkdown()
	require.Contains(t, md, "# Conversation abc")
	require.Contains(t, md, "**User**")
	require.Contains(t, md, "**Assistant**")
	require.Contains(t, md, "export me")
}
