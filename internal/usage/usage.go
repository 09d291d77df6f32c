// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package usage provides request, token, and cost tracking for multitool.
//
// Counts are advisory: token figures come from a length heuristic, not a
// real tokenizer, and costs are derived from the catalog's per-token prices.
// They exist to give the user a sense of consumption, not to bill anyone.
package usage

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jeranaias/multitool/internal/catalog"
)

// sessionIDCounter ensures unique session IDs even when created rapidly
var sessionIDCounter uint64

// =============================================================================
// STATISTICS TYPES
// =============================================================================

// ModelStats accumulates usage for a single model.
type ModelStats struct {
	// Attempts counts requests handed to the executor
	Attempts int `json:"attempts"`
	// Successes counts requests that produced a reply
	Successes int `json:"successes"`
	// Failures counts requests that exhausted their retries
	Failures int `json:"failures"`
	// PromptTokens is the heuristic token count of sent prompts
	PromptTokens int `json:"prompt_tokens"`
	// CompletionTokens is the heuristic token count of received replies
	CompletionTokens int `json:"completion_tokens"`
	// EstimatedCost is the advisory cost in dollars
	EstimatedCost float64 `json:"estimated_cost"`
	// LastUsed is when the model last finished a request
	LastUsed time.Time `json:"last_used"`
}

// Statistics is one session's accumulated usage.
type Statistics struct {
	ID        string    `json:"id"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`

	// PerModel breaks usage down by model ID
	PerModel map[string]*ModelStats `json:"per_model"`

	// Session totals
	TotalAttempts  int     `json:"total_attempts"`
	TotalSuccesses int     `json:"total_successes"`
	TotalFailures  int     `json:"total_failures"`
	TotalTokens    int     `json:"total_tokens"`
	TotalCost      float64 `json:"total_cost"`
}

// Subscriber receives a snapshot after every recorded change. Subscribers
// are invoked in registration order.
type Subscriber func(Statistics)

// =============================================================================
// TOKEN HEURISTIC
// =============================================================================

// EstimateTokens approximates the token count of text. Roughly four
// characters per token holds well enough for English and code.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	return (len(text) + 3) / 4
}

// =============================================================================
// TRACKER
// =============================================================================

// Tracker accumulates usage for the current session and persists completed
// sessions to disk.
type Tracker struct {
	mu          sync.RWMutex
	current     *Statistics
	subscribers []Subscriber
	storage     *Storage
}

// NewTracker creates a tracker persisting sessions under dir. An empty dir
// uses the default location.
func NewTracker(dir string) (*Tracker, error) {
	storage, err := NewStorage(dir)
	if err != nil {
		return nil, err
	}

	t := &Tracker{storage: storage}
	t.current = newStatistics()
	return t, nil
}

func newStatistics() *Statistics {
	return &Statistics{
		ID:        generateSessionID(),
		StartTime: time.Now(),
		PerModel:  make(map[string]*ModelStats),
	}
}

// Subscribe registers a subscriber. It is immediately called with the
// current snapshot so new observers start consistent.
func (t *Tracker) Subscribe(fn Subscriber) {
	t.mu.Lock()
	t.subscribers = append(t.subscribers, fn)
	snap := t.snapshotLocked()
	t.mu.Unlock()
	fn(snap)
}

// RecordAttempt notes that a request for modelID has been handed to the
// executor.
func (t *Tracker) RecordAttempt(modelID string) {
	t.mu.Lock()
	stats := t.statsLocked(modelID)
	stats.Attempts++
	t.current.TotalAttempts++
	snap, subs := t.snapshotAndSubsLocked()
	t.mu.Unlock()

	notify(subs, snap)
}

// RecordSuccess records a completed request with its prompt and completion
// text. Token counts use the length heuristic; cost uses the catalog price
// for the model (zero for unknown models).
func (t *Tracker) RecordSuccess(modelID, prompt, completion string) {
	promptTokens := EstimateTokens(prompt)
	completionTokens := EstimateTokens(completion)

	var cost float64
	if p, err := catalog.Get(modelID); err == nil {
		cost = float64(promptTokens+completionTokens) * p.CostPerToken
	}

	t.mu.Lock()
	stats := t.statsLocked(modelID)
	stats.Successes++
	stats.PromptTokens += promptTokens
	stats.CompletionTokens += completionTokens
	stats.EstimatedCost += cost
	stats.LastUsed = time.Now()
	t.current.TotalSuccesses++
	t.current.TotalTokens += promptTokens + completionTokens
	t.current.TotalCost += cost
	snap, subs := t.snapshotAndSubsLocked()
	t.mu.Unlock()

	notify(subs, snap)
}

// RecordFailure records a request that exhausted its retries.
func (t *Tracker) RecordFailure(modelID string) {
	t.mu.Lock()
	stats := t.statsLocked(modelID)
	stats.Failures++
	stats.LastUsed = time.Now()
	t.current.TotalFailures++
	snap, subs := t.snapshotAndSubsLocked()
	t.mu.Unlock()

	notify(subs, snap)
}

// Snapshot returns a copy of the current session's statistics.
func (t *Tracker) Snapshot() Statistics {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.snapshotLocked()
}

// EndSession persists the current session and starts a fresh one.
func (t *Tracker) EndSession() error {
	t.mu.Lock()
	t.current.EndTime = time.Now()
	done := t.snapshotLocked()
	t.current = newStatistics()
	t.mu.Unlock()

	return t.storage.Save(&done)
}

// SaveCurrent persists the in-progress session without ending it.
func (t *Tracker) SaveCurrent() error {
	t.mu.RLock()
	snap := t.snapshotLocked()
	t.mu.RUnlock()
	return t.storage.Save(&snap)
}

// History returns persisted sessions whose start time falls in [from, to].
func (t *Tracker) History(from, to time.Time) ([]*Statistics, error) {
	ids, err := t.storage.List(from, to)
	if err != nil {
		return nil, err
	}

	sessions := make([]*Statistics, 0, len(ids))
	for _, id := range ids {
		s, err := t.storage.Load(id)
		if err != nil {
			continue
		}
		sessions = append(sessions, s)
	}
	return sessions, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func (t *Tracker) statsLocked(modelID string) *ModelStats {
	stats, ok := t.current.PerModel[modelID]
	if !ok {
		stats = &ModelStats{}
		t.current.PerModel[modelID] = stats
	}
	return stats
}

func (t *Tracker) snapshotLocked() Statistics {
	snap := *t.current
	snap.PerModel = make(map[string]*ModelStats, len(t.current.PerModel))
	for id, stats := range t.current.PerModel {
		cp := *stats
		snap.PerModel[id] = &cp
	}
	return snap
}

func (t *Tracker) snapshotAndSubsLocked() (Statistics, []Subscriber) {
	subs := make([]Subscriber, len(t.subscribers))
	copy(subs, t.subscribers)
	return t.snapshotLocked(), subs
}

func notify(subs []Subscriber, snap Statistics) {
	for _, fn := range subs {
		fn(snap)
	}
}

// generateSessionID generates a unique session ID.
func generateSessionID() string {
	// Date format plus atomic counter for guaranteed uniqueness
	now := time.Now()
	counter := atomic.AddUint64(&sessionIDCounter, 1)
	return now.Format("20060102-150405") + "-" + fmt.Sprintf("%d", counter)
}
