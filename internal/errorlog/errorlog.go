// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package errorlog collects application errors into a bounded in-memory log
// and translates them into user-presentable messages.
//
// Components publish errors with a stable code and severity; subscribers
// (typically the UI layer) are notified of each new record. The log keeps
// the most recent entries only, so a long session cannot grow memory
// without bound.
package errorlog

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/jeranaias/multitool/internal/logging"
)

// =============================================================================
// SEVERITY AND CODES
// =============================================================================

// Severity classifies how serious a recorded error is.
type Severity int

const (
	// SeverityInfo is advisory only
	SeverityInfo Severity = iota
	// SeverityWarning indicates a degraded but recoverable condition
	SeverityWarning
	// SeverityError indicates a failed operation
	SeverityError
	// SeverityCritical indicates the application cannot continue normally
	SeverityCritical
)

// String returns the severity name.
func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "INFO"
	case SeverityWarning:
		return "WARNING"
	case SeverityError:
		return "ERROR"
	case SeverityCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// Stable error codes. Codes are part of the persisted/displayed surface and
// must not be renumbered.
const (
	CodeNetwork       = "NET"
	CodeRateLimited   = "RATE"
	CodeAuth          = "AUTH"
	CodeModelWarmup   = "WARM"
	CodeBadResponse   = "RESP"
	CodeTokenBudget   = "TOKENS"
	CodeSettings      = "SETTINGS"
	CodeCrypto        = "CRYPTO"
	CodeInternal      = "INTERNAL"
	CodeConfiguration = "CONFIG"
)

// =============================================================================
// RECORD TYPE
// =============================================================================

// Record is one captured error.
type Record struct {
	// Timestamp is when the error was recorded
	Timestamp time.Time `json:"timestamp"`

	// Code is the stable error code
	Code string `json:"code"`

	// Severity classifies the error
	Severity Severity `json:"severity"`

	// Source names the component that reported the error
	Source string `json:"source"`

	// Message is the technical error text
	Message string `json:"message"`

	// UserMessage is the presentable text shown to the user
	UserMessage string `json:"user_message"`
}

// Subscriber receives each new record as it is logged.
type Subscriber func(Record)

// =============================================================================
// LOG TYPE
// =============================================================================

// DefaultCapacity is the default number of records retained.
const DefaultCapacity = 100

// Log is a bounded, thread-safe error log.
type Log struct {
	mu          sync.RWMutex
	records     []Record
	capacity    int
	subscribers []Subscriber
	logger      zerolog.Logger
}

// New creates a Log retaining at most capacity records. A non-positive
// capacity falls back to DefaultCapacity.
func New(capacity int) *Log {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Log{
		records:  make([]Record, 0, capacity),
		capacity: capacity,
		logger:   logging.Component("errorlog"),
	}
}

// Subscribe registers a subscriber for new records. Subscribers are invoked
// in registration order, synchronously, after the record is stored.
func (l *Log) Subscribe(fn Subscriber) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.subscribers = append(l.subscribers, fn)
}

// Report records err under the given code, source and severity, and returns
// the stored record. A nil err records the code's generic message.
func (l *Log) Report(code string, severity Severity, source string, err error) Record {
	msg := ""
	if err != nil {
		msg = err.Error()
	}

	rec := Record{
		Timestamp:   time.Now(),
		Code:        code,
		Severity:    severity,
		Source:      source,
		Message:     msg,
		UserMessage: UserMessage(code, err),
	}

	l.mu.Lock()
	l.records = append(l.records, rec)
	if len(l.records) > l.capacity {
		// Drop the oldest entries. Copy keeps the backing array from
		// pinning dropped records.
		overflow := len(l.records) - l.capacity
		l.records = append(l.records[:0:0], l.records[overflow:]...)
	}
	subs := make([]Subscriber, len(l.subscribers))
	copy(subs, l.subscribers)
	l.mu.Unlock()

	event := l.logger.Error()
	switch severity {
	case SeverityInfo:
		event = l.logger.Info()
	case SeverityWarning:
		event = l.logger.Warn()
	}
	event.Str("code", code).Str("source", source).Str("severity", severity.String()).Msg(msg)

	for _, fn := range subs {
		fn(rec)
	}
	return rec
}

// Recent returns up to n most recent records, newest last. n <= 0 returns
// all retained records.
func (l *Log) Recent(n int) []Record {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if n <= 0 || n > len(l.records) {
		n = len(l.records)
	}
	out := make([]Record, n)
	copy(out, l.records[len(l.records)-n:])
	return out
}

// Len returns the number of retained records.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.records)
}

// Clear discards all retained records.
func (l *Log) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = l.records[:0]
}

// =============================================================================
// USER-FACING MESSAGES
// =============================================================================

// UserMessage maps an error code to a presentable message. The technical
// error is summarized rather than shown raw.
func UserMessage(code string, err error) string {
	switch code {
	case CodeNetwork:
		return "Could not reach the model service. Check your network connection and try again."
	case CodeRateLimited:
		return "Too many requests for this model. The next request will wait for a free slot."
	case CodeAuth:
		return "The API key was rejected. Check the key in Settings."
	case CodeModelWarmup:
		return "The model is still loading. Your request will be retried shortly."
	case CodeBadResponse:
		return "The model service returned an unexpected response. Please try again."
	case CodeTokenBudget:
		return "Your message is too long for this model. Shorten it or switch to a model with a larger limit."
	case CodeSettings:
		return "Settings could not be saved or loaded. Recent changes may be lost."
	case CodeCrypto:
		return "Stored credentials could not be decrypted. You may need to re-enter your API key."
	case CodeConfiguration:
		return "The application configuration is invalid. Defaults are in effect."
	default:
		if err != nil {
			// Keep it short; full detail stays in the technical log.
			s := err.Error()
			if i := strings.IndexByte(s, ':'); i > 0 && i < 60 {
				s = s[:i]
			}
			return fmt.Sprintf("Something went wrong (%s).", s)
		}
		return "Something went wrong. See the error log for details."
	}
}

// =============================================================================
// GLOBAL INSTANCE
// =============================================================================

var (
	globalLog     *Log
	globalLogOnce sync.Once
	globalLogMu   sync.RWMutex
)

// Global returns the process-wide error log.
func Global() *Log {
	globalLogOnce.Do(func() {
		globalLogMu.Lock()
		globalLog = New(DefaultCapacity)
		globalLogMu.Unlock()
	})
	globalLogMu.RLock()
	defer globalLogMu.RUnlock()
	return globalLog
}

// ResetGlobalForTesting resets the global log state for testing.
func ResetGlobalForTesting() {
	globalLogMu.Lock()
	defer globalLogMu.Unlock()
	globalLog = nil
	globalLogOnce = sync.Once{}
}
