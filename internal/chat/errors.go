// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import "errors"

var (
	// ErrTokenBudget indicates the prompt would exceed the model's token
	// allowance. The request is refused before spending rate limit quota.
	ErrTokenBudget = errors.New("chat: message exceeds model token budget")

	// ErrUnknownModel indicates a model ID with no registered profile.
	ErrUnknownModel = errors.New("chat: unknown model")

	// ErrEmptyMessage indicates a blank outgoing message.
	ErrEmptyMessage = errors.New("chat: empty message")

	// ErrConversationNotFound indicates a conversation ID with no stored
	// document.
	ErrConversationNotFound = errors.New("chat: conversation not found")
)
