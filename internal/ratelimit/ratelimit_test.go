// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func capOf(caps map[string]int) CapFunc {
	return func(modelID string) int { return caps[modelID] }
}

// fakeClock is a manually advanced time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestAdmitUpToCap(t *testing.T) {
	clock := newFakeClock()
	l := New(capOf(map[string]int{"m": 3}), WithClock(clock.Now))

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, l.Admit(ctx, "m"))
	}
	require.Equal(t, 3, l.InFlight("m"))

	// The window is now full.
	wait, err := l.Delay("m")
	require.NoError(t, err)
	require.Equal(t, DefaultWindow, wait)
}

func TestAdmitBlocksUntilOldestExpires(t *testing.T) {
	l := New(capOf(map[string]int{"m": 2}), WithWindow(50*time.Millisecond))

	ctx := context.Background()
	require.NoError(t, l.Admit(ctx, "m"))
	require.NoError(t, l.Admit(ctx, "m"))

	start := time.Now()
	require.NoError(t, l.Admit(ctx, "m"))
	elapsed := time.Since(start)

	require.GreaterOrEqual(t, elapsed, 40*time.Millisecond)
}

func TestModelsAreIndependent(t *testing.T) {
	clock := newFakeClock()
	l := New(capOf(map[string]int{"a": 1, "b": 1}), WithClock(clock.Now))

	ctx := context.Background()
	require.NoError(t, l.Admit(ctx, "a"))

	// Model a is full; model b still admits immediately.
	wait, err := l.Delay("a")
	require.NoError(t, err)
	require.Positive(t, wait)

	require.NoError(t, l.Admit(ctx, "b"))
}

func TestCanceledWaitConsumesNoQuota(t *testing.T) {
	l := New(capOf(map[string]int{"m": 1}), WithWindow(time.Hour))

	require.NoError(t, l.Admit(context.Background(), "m"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := l.Admit(ctx, "m")
	require.ErrorIs(t, err, context.DeadlineExceeded)

	// The failed wait recorded nothing.
	require.Equal(t, 1, l.InFlight("m"))
}

func TestUnknownModelRefused(t *testing.T) {
	l := New(capOf(map[string]int{}))
	err := l.Admit(context.Background(), "nope")
	require.ErrorIs(t, err, ErrUnknownModel)
}

func TestWindowSlides(t *testing.T) {
	clock := newFakeClock()
	l := New(capOf(map[string]int{"m": 2}), WithClock(clock.Now))

	ctx := context.Background()
	require.NoError(t, l.Admit(ctx, "m"))
	clock.Advance(30 * time.Second)
	require.NoError(t, l.Admit(ctx, "m"))

	// 31s later the first admission has aged out; one slot is free.
	clock.Advance(31 * time.Second)
	require.Equal(t, 1, l.InFlight("m"))
	require.NoError(t, l.Admit(ctx, "m"))
	require.Equal(t, 2, l.InFlight("m"))
}

func TestConcurrentAdmissionsNeverExceedCap(t *testing.T) {
	l := New(capOf(map[string]int{"m": 5}), WithWindow(time.Hour))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	var wg sync.WaitGroup
	var mu sync.Mutex
	admitted := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Admit(ctx, "m") == nil {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 5, admitted)
	require.Equal(t, 5, l.InFlight("m"))
}
