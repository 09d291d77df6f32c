// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ratelimit implements per-model sliding-window admission control.
//
// Each model gets an independent window: at most N requests may be admitted
// in any rolling period (60 seconds by default). When the window is full,
// Admit blocks until the oldest admission ages out or the context is
// canceled. Admission records only successful admissions; a canceled wait
// consumes no quota.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/jeranaias/multitool/internal/logging"
)

// DefaultWindow is the rolling admission period.
const DefaultWindow = 60 * time.Second

// CapFunc reports the admission cap for a model. A cap of 0 or less means
// the model is unknown and admission is refused.
type CapFunc func(modelID string) int

// =============================================================================
// LIMITER TYPE
// =============================================================================

// Limiter admits requests per model within a rolling window.
type Limiter struct {
	mu      sync.Mutex
	queues  map[string][]time.Time
	window  time.Duration
	capFor  CapFunc
	nowFunc func() time.Time
	logger  zerolog.Logger
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithWindow overrides the rolling window length.
func WithWindow(d time.Duration) Option {
	return func(l *Limiter) {
		if d > 0 {
			l.window = d
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		if now != nil {
			l.nowFunc = now
		}
	}
}

// New creates a Limiter using capFor to resolve per-model caps.
func New(capFor CapFunc, opts ...Option) *Limiter {
	l := &Limiter{
		queues:  make(map[string][]time.Time),
		window:  DefaultWindow,
		capFor:  capFor,
		nowFunc: time.Now,
		logger:  logging.Component("ratelimit"),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// =============================================================================
// ADMISSION
// =============================================================================

// Admit blocks until a request for modelID may proceed, then records the
// admission. Returns ErrUnknownModel when the model has no cap, or the
// context error when the wait is canceled. A canceled wait leaves the
// window unchanged.
func (l *Limiter) Admit(ctx context.Context, modelID string) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		wait, err := l.tryAdmit(modelID)
		if err != nil {
			return err
		}
		if wait == 0 {
			return nil
		}

		l.logger.Debug().
			Str("model", modelID).
			Dur("wait", wait).
			Msg("admission window full, waiting")

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
			// Re-check: another goroutine may have taken the freed slot.
		}
	}
}

// Delay reports how long a request for modelID would currently have to wait,
// without admitting anything. Zero means a request would be admitted now.
func (l *Limiter) Delay(modelID string) (time.Duration, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	limit := l.capFor(modelID)
	if limit <= 0 {
		return 0, ErrUnknownModel
	}

	now := l.nowFunc()
	q := l.evictLocked(modelID, now)
	if len(q) < limit {
		return 0, nil
	}
	return l.window - now.Sub(q[0]), nil
}

// InFlight returns how many admissions are currently inside the window for
// modelID.
func (l *Limiter) InFlight(modelID string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.evictLocked(modelID, l.nowFunc()))
}

// tryAdmit admits immediately if the window has room, otherwise returns the
// time until the oldest admission ages out.
func (l *Limiter) tryAdmit(modelID string) (time.Duration, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	limit := l.capFor(modelID)
	if limit <= 0 {
		return 0, ErrUnknownModel
	}

	now := l.nowFunc()
	q := l.evictLocked(modelID, now)

	if len(q) < limit {
		l.queues[modelID] = append(q, now)
		return 0, nil
	}

	wait := l.window - now.Sub(q[0])
	if wait <= 0 {
		// Oldest entry is exactly at the boundary; treat as free.
		l.queues[modelID] = append(q[1:], now)
		return 0, nil
	}
	return wait, nil
}

// evictLocked drops admissions older than the window and returns the queue.
// Caller must hold l.mu.
func (l *Limiter) evictLocked(modelID string, now time.Time) []time.Time {
	q := l.queues[modelID]
	cutoff := now.Add(-l.window)

	i := 0
	for i < len(q) && !q[i].After(cutoff) {
		i++
	}
	if i > 0 {
		q = append(q[:0:0], q[i:]...)
		l.queues[modelID] = q
	}
	return q
}
