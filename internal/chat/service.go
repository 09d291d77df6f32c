// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jeranaias/multitool/internal/catalog"
	"github.com/jeranaias/multitool/internal/errorlog"
	"github.com/jeranaias/multitool/internal/logging"
	"github.com/jeranaias/multitool/internal/provider"
	"github.com/jeranaias/multitool/internal/ratelimit"
	"github.com/jeranaias/multitool/internal/settings"
	"github.com/jeranaias/multitool/internal/usage"
)

// Executor sends a single generation request upstream. *provider.Client
// satisfies this; tests substitute a fake.
type Executor interface {
	Execute(ctx context.Context, req provider.Request) (string, error)
	IsConfigured() bool
}

// =============================================================================
// SERVICE
// =============================================================================

// Service is the orchestration facade: it owns the active conversation and
// runs every outgoing message through admission, execution, accounting,
// and persistence.
type Service struct {
	settings *settings.Store
	executor Executor
	limiter  *ratelimit.Limiter
	tracker  *usage.Tracker
	errlog   *errorlog.Log
	history  *History
	logger   zerolog.Logger

	mu      sync.Mutex
	current *Conversation
}

// Deps bundles the collaborators a Service needs.
type Deps struct {
	Settings *settings.Store
	Executor Executor
	Limiter  *ratelimit.Limiter
	Tracker  *usage.Tracker
	ErrorLog *errorlog.Log
	History  *History
}

// NewService creates the orchestrator with an empty active conversation.
// When the executor accepts credential updates, settings changes (including
// external edits picked up by the file watcher) propagate the API key to it.
func NewService(deps Deps) *Service {
	s := &Service{
		settings: deps.Settings,
		executor: deps.Executor,
		limiter:  deps.Limiter,
		tracker:  deps.Tracker,
		errlog:   deps.ErrorLog,
		history:  deps.History,
		logger:   logging.Component("chat"),
	}
	s.current = s.newConversation()

	if keyed, ok := deps.Executor.(interface{ SetAPIKey(string) }); ok {
		keyed.SetAPIKey(deps.Settings.Get().APIKey)
		deps.Settings.Subscribe(func(cfg settings.Settings) {
			keyed.SetAPIKey(cfg.APIKey)
		})
	}
	return s
}

func (s *Service) newConversation() *Conversation {
	return &Conversation{
		ID:        uuid.NewString(),
		Model:     s.settings.Get().ModelID,
		CreatedAt: time.Now(),
	}
}

// =============================================================================
// SEND
// =============================================================================

// Send submits a user message and returns the assistant reply.
//
// The pipeline: resolve the model profile, refuse over-budget prompts
// before spending quota, admit through the per-model rate limiter, execute
// with retries, account the outcome, and persist the conversation. On
// failure the conversation still records the user message plus an error
// entry with a presentable explanation, and Send returns both that entry
// and the underlying error.
func (s *Service) Send(ctx context.Context, text string) (Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Message{}, ErrEmptyMessage
	}

	cfg := s.settings.Get()
	profile, err := catalog.Get(cfg.ModelID)
	if err != nil {
		s.errlog.Report(errorlog.CodeConfiguration, errorlog.SeverityError, "chat", err)
		return Message{}, fmt.Errorf("%w: %s", ErrUnknownModel, cfg.ModelID)
	}

	prompt := BuildPrompt(s.systemPromptFor(cfg, profile), s.snapshotMessages(), text)

	// Refuse before admission: an over-budget prompt must not consume a
	// rate limit slot.
	budget := cfg.MaxTokens
	if budget <= 0 {
		budget = profile.MaxNewTokens
	}
	promptTokens := usage.EstimateTokens(prompt)
	if promptTokens > budget {
		err := fmt.Errorf("%w: %d estimated tokens, budget %d", ErrTokenBudget, promptTokens, budget)
		s.errlog.Report(errorlog.CodeTokenBudget, errorlog.SeverityWarning, "chat", err)
		return Message{}, err
	}

	if err := s.limiter.Admit(ctx, profile.ID); err != nil {
		if ctx.Err() != nil {
			return Message{}, ctx.Err()
		}
		s.errlog.Report(errorlog.CodeRateLimited, errorlog.SeverityWarning, "chat", err)
		return Message{}, err
	}

	s.tracker.RecordAttempt(profile.ID)
	s.appendMessage(Message{
		ID:        uuid.NewString(),
		Role:      RoleUser,
		Content:   text,
		Timestamp: time.Now(),
	})

	start := time.Now()
	reply, err := s.executor.Execute(ctx, provider.Request{
		Model:        profile,
		Prompt:       prompt,
		Temperature:  cfg.Temperature,
		MaxNewTokens: cfg.MaxTokens,
	})
	elapsed := time.Since(start)

	if err != nil {
		s.tracker.RecordFailure(profile.ID)
		code, severity := classifyError(err)
		s.errlog.Report(code, severity, "chat", err)

		errMsg := Message{
			ID:        uuid.NewString(),
			Role:      RoleError,
			Content:   errorlog.UserMessage(code, err),
			Timestamp: time.Now(),
			Model:     profile.ID,
		}
		s.appendMessage(errMsg)
		s.persistCurrent()
		return errMsg, err
	}

	s.tracker.RecordSuccess(profile.ID, prompt, reply)

	msg := Message{
		ID:         uuid.NewString(),
		Role:       RoleAssistant,
		Content:    reply,
		Timestamp:  time.Now(),
		Model:      profile.ID,
		TokenCount: usage.EstimateTokens(reply),
		DurationMs: elapsed.Milliseconds(),
	}
	s.appendMessage(msg)
	s.persistCurrent()

	s.logger.Debug().
		Str("model", profile.ID).
		Int("prompt_tokens", promptTokens).
		Int("reply_tokens", msg.TokenCount).
		Dur("duration", elapsed).
		Msg("message exchanged")

	return msg, nil
}

// SendTo sends a message into a specific conversation, resuming it first
// when it is not already active. An empty id targets the active
// conversation.
func (s *Service) SendTo(ctx context.Context, conversationID, text string) (Message, error) {
	if conversationID != "" {
		s.mu.Lock()
		activeID := s.current.ID
		s.mu.Unlock()
		if conversationID != activeID {
			if err := s.Resume(conversationID); err != nil {
				return Message{}, err
			}
		}
	}
	return s.Send(ctx, text)
}

// systemPromptFor resolves the system prompt: a custom prompt for the
// model wins over the profile default.
func (s *Service) systemPromptFor(cfg settings.Settings, profile catalog.Profile) string {
	if custom, ok := cfg.CustomPrompts[profile.ID]; ok && custom != "" {
		return custom
	}
	return profile.SystemPrompt
}

// classifyError maps an execution error to an error log code and severity.
func classifyError(err error) (string, errorlog.Severity) {
	switch {
	case errors.Is(err, provider.ErrAuthFailed):
		return errorlog.CodeAuth, errorlog.SeverityCritical
	case errors.Is(err, provider.ErrRateLimited):
		return errorlog.CodeRateLimited, errorlog.SeverityWarning
	case errors.Is(err, provider.ErrModelWarming):
		return errorlog.CodeModelWarmup, errorlog.SeverityWarning
	case errors.Is(err, provider.ErrBadResponse), errors.Is(err, provider.ErrModelNotFound):
		return errorlog.CodeBadResponse, errorlog.SeverityError
	case errors.Is(err, provider.ErrNotConfigured):
		return errorlog.CodeConfiguration, errorlog.SeverityError
	case errors.Is(err, provider.ErrServer), errors.Is(err, provider.ErrNetwork):
		return errorlog.CodeNetwork, errorlog.SeverityError
	default:
		return errorlog.CodeInternal, errorlog.SeverityError
	}
}

// =============================================================================
// CONVERSATION LIFECYCLE
// =============================================================================

// Current returns a copy of the active conversation.
func (s *Service) Current() Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := *s.current
	snap.Messages = append([]Message(nil), s.current.Messages...)
	return snap
}

// NewConversation saves the active conversation (when it has messages) and
// starts a fresh one. Returns the new conversation ID.
func (s *Service) NewConversation() (string, error) {
	s.mu.Lock()
	old := s.current
	s.current = s.newConversation()
	id := s.current.ID
	s.mu.Unlock()

	if len(old.Messages) > 0 {
		if _, err := s.history.Save(old); err != nil {
			return id, fmt.Errorf("failed to save conversation: %w", err)
		}
	}
	return id, nil
}

// Resume loads a stored conversation and makes it active. The previous
// active conversation is saved first when it has messages.
func (s *Service) Resume(id string) error {
	conv, err := s.history.Load(id)
	if err != nil {
		return err
	}

	s.mu.Lock()
	old := s.current
	s.current = conv
	s.mu.Unlock()

	if len(old.Messages) > 0 && old.ID != conv.ID {
		if _, err := s.history.Save(old); err != nil {
			s.logger.Warn().Err(err).Msg("failed to save previous conversation")
		}
	}
	return nil
}

// Conversations lists stored conversations, most recent first.
func (s *Service) Conversations() ([]ConversationMeta, error) {
	return s.history.List()
}

// SearchConversations finds stored conversations matching the query.
func (s *Service) SearchConversations(query string) ([]ConversationMeta, error) {
	return s.history.Search(query)
}

// DeleteConversation removes a stored conversation.
func (s *Service) DeleteConversation(id string) error {
	return s.history.Delete(id)
}

func (s *Service) appendMessage(msg Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current.Messages = append(s.current.Messages, msg)
	s.current.TokensUsed += usage.EstimateTokens(msg.Content)
}

func (s *Service) persistCurrent() {
	// Persist a snapshot so concurrent sends cannot mutate the conversation
	// while it is being marshalled.
	snap := s.Current()

	if _, err := s.history.Save(&snap); err != nil {
		s.logger.Warn().Err(err).Msg("failed to persist conversation")
		s.errlog.Report(errorlog.CodeInternal, errorlog.SeverityWarning, "chat", err)
	}
}

// =============================================================================
// MODEL AND PROMPT MANAGEMENT
// =============================================================================

// SetModel switches the active model. Unknown IDs are refused without
// touching settings.
func (s *Service) SetModel(id string) error {
	if !catalog.Exists(id) {
		return fmt.Errorf("%w: %s", ErrUnknownModel, id)
	}
	if err := s.settings.Update(func(cfg *settings.Settings) {
		cfg.ModelID = id
	}); err != nil {
		return err
	}

	s.mu.Lock()
	s.current.Model = id
	s.mu.Unlock()
	return nil
}

// Model returns the active model profile.
func (s *Service) Model() (catalog.Profile, error) {
	return catalog.Get(s.settings.Get().ModelID)
}

// SetCustomPrompt stores a per-model system prompt override.
func (s *Service) SetCustomPrompt(modelID, prompt string) error {
	if !catalog.Exists(modelID) {
		return fmt.Errorf("%w: %s", ErrUnknownModel, modelID)
	}
	return s.settings.Update(func(cfg *settings.Settings) {
		cfg.CustomPrompts[modelID] = prompt
	})
}

// DeleteCustomPrompt removes a per-model override, restoring the profile
// default.
func (s *Service) DeleteCustomPrompt(modelID string) error {
	return s.settings.Update(func(cfg *settings.Settings) {
		delete(cfg.CustomPrompts, modelID)
	})
}

// Statistics returns a snapshot of the current usage session.
func (s *Service) Statistics() usage.Statistics {
	return s.tracker.Snapshot()
}

// RecentErrors returns the latest n error records, oldest first.
func (s *Service) RecentErrors(n int) []errorlog.Record {
	return s.errlog.Recent(n)
}

// snapshotMessages returns a copy of the active conversation's messages.
func (s *Service) snapshotMessages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.current.Messages...)
}
