// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuildPromptSingleTurn(t *testing.T) {
	got := BuildPrompt("Be helpful.", nil, "Hi there")
	require.Equal(t, "[INST] Be helpful.\n\nHi there [/INST]", got)
}

func TestBuildPromptWithoutSystemPrompt(t *testing.T) {
	got := BuildPrompt("", nil, "Hi there")
	require.Equal(t, "[INST] Hi there [/INST]", got)
}

func TestBuildPromptReplaysHistory(t *testing.T) {
	history := []Message{
		{Role: RoleUser, Content: "first question"},
		{Role: RoleAssistant, Content: "first answer"},
	}

	got := BuildPrompt("sys", history, "second question")

	require.Contains(t, got, "first question")
	require.Contains(t, got, "first answer</s>")
	require.Contains(t, got, "second question")

	// System prompt appears once, at the start.
	require.Equal(t, 1, strings.Count(got, "sys"))
	require.True(t, strings.HasPrefix(got, "[INST] sys"))
}

func TestBuildPromptSkipsErrorAndUnansweredTurns(t *testing.T) {
	history := []Message{
		{Role: RoleUser, Content: "failed question"},
		{Role: RoleError, Content: "something went wrong"},
		{Role: RoleSystem, Content: "internal note"},
	}

	got := BuildPrompt("", history, "retry")

	require.NotContains(t, got, "failed question")
	require.NotContains(t, got, "something went wrong")
	require.NotContains(t, got, "internal note")
	require.Contains(t, got, "retry")
}

func TestBuildPromptCapsHistoryDepth(t *testing.T) {
	var history []Message
	for i := 0; i < 20; i++ {
		history = append(history,
			Message{Role: RoleUser, Content: "question"},
			Message{Role: RoleAssistant, Content: "answer"},
		)
	}

	got := BuildPrompt("", history, "latest")
	// maxPromptTurns replayed pairs plus the outgoing message.
	require.Equal(t, maxPromptTurns+1, strings.Count(got, "[INST]"))
}
