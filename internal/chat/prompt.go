// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import "strings"

// maxPromptTurns limits how many prior exchanges are replayed into the
// prompt. Older turns are dropped before newer ones.
const maxPromptTurns = 6

// BuildPrompt assembles an instruction-format prompt from the system
// prompt, recent conversation turns, and the outgoing message.
//
// Format follows the instruct convention the hosted models are tuned on:
//
//	[INST] system
//
//	user [/INST] assistant</s>[INST] user [/INST]
func BuildPrompt(systemPrompt string, history []Message, userText string) string {
	var sb strings.Builder

	turns := recentTurns(history, maxPromptTurns)

	first := true
	writeUser := func(text string) {
		sb.WriteString("[INST] ")
		if first && systemPrompt != "" {
			sb.WriteString(systemPrompt)
			sb.WriteString("\n\n")
		}
		first = false
		sb.WriteString(text)
		sb.WriteString(" [/INST]")
	}

	for _, turn := range turns {
		writeUser(turn.user)
		if turn.assistant != "" {
			sb.WriteString(" ")
			sb.WriteString(turn.assistant)
			sb.WriteString("</s>")
		}
	}

	writeUser(userText)
	return sb.String()
}

type turn struct {
	user      string
	assistant string
}

// recentTurns pairs user messages with the assistant replies that follow
// them, skipping system and error entries, keeping the last n pairs.
func recentTurns(history []Message, n int) []turn {
	var turns []turn
	for _, msg := range history {
		switch msg.Role {
		case RoleUser:
			turns = append(turns, turn{user: msg.Content})
		case RoleAssistant:
			if len(turns) > 0 && turns[len(turns)-1].assistant == "" {
				turns[len(turns)-1].assistant = msg.Content
			}
		}
	}

	// Drop unanswered turns; they carry no completed exchange.
	complete := turns[:0]
	for _, t := range turns {
		if t.assistant != "" {
			complete = append(complete, t)
		}
	}

	if len(complete) > n {
		complete = complete[len(complete)-n:]
	}
	return complete
}
