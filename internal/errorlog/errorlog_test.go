// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package errorlog

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReportStoresRecord(t *testing.T) {
	log := New(10)

	rec := log.Report(CodeNetwork, SeverityError, "provider", errors.New("connection refused"))

	require.Equal(t, CodeNetwork, rec.Code)
	require.Equal(t, SeverityError, rec.Severity)
	require.Equal(t, "provider", rec.Source)
	require.Equal(t, "connection refused", rec.Message)
	require.NotEmpty(t, rec.UserMessage)
	require.Equal(t, 1, log.Len())
}

func TestCapacityEvictsOldest(t *testing.T) {
	log := New(5)

	for i := 0; i < 8; i++ {
		log.Report(CodeInternal, SeverityError, "test", fmt.Errorf("error %d", i))
	}

	require.Equal(t, 5, log.Len())
	records := log.Recent(0)
	// The oldest three entries are gone.
	require.Equal(t, "error 3", records[0].Message)
	require.Equal(t, "error 7", records[4].Message)
}

func TestRecentLimits(t *testing.T) {
	log := New(10)
	for i := 0; i < 6; i++ {
		log.Report(CodeInternal, SeverityWarning, "test", fmt.Errorf("error %d", i))
	}

	recent := log.Recent(2)
	require.Len(t, recent, 2)
	require.Equal(t, "error 4", recent[0].Message)
	require.Equal(t, "error 5", recent[1].Message)
}

func TestSubscribersNotifiedInOrder(t *testing.T) {
	log := New(10)

	var order []string
	log.Subscribe(func(r Record) { order = append(order, "first") })
	log.Subscribe(func(r Record) { order = append(order, "second") })

	log.Report(CodeAuth, SeverityError, "settings", errors.New("bad key"))

	require.Equal(t, []string{"first", "second"}, order)
}

func TestUserMessagesAreStable(t *testing.T) {
	codes := []string{
		CodeNetwork, CodeRateLimited, CodeAuth, CodeModelWarmup,
		CodeBadResponse, CodeTokenBudget, CodeSettings, CodeCrypto,
		CodeConfiguration,
	}
	for _, code := range codes {
		msg := UserMessage(code, nil)
		require.NotEmpty(t, msg, "code %s", code)
		// User text never leaks raw codes.
		require.NotContains(t, msg, code)
	}
}

func TestUnknownCodeFallsBack(t *testing.T) {
	msg := UserMessage("MYSTERY", errors.New("boom"))
	require.Contains(t, msg, "Something went wrong")
}

func TestClear(t *testing.T) {
	log := New(10)
	log.Report(CodeInternal, SeverityError, "test", errors.New("x"))
	log.Clear()
	require.Equal(t, 0, log.Len())
}
