// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package logging provides the structured logging capability for the
// orchestration core.
//
// The core never logs credentials, prompt bodies, or response bodies; callers
// get a zerolog.Logger scoped to their component. Output goes to stderr by
// default and optionally to a log file under the data directory.
package logging

import (
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	rootLogger = zerolog.New(os.Stderr).Level(zerolog.InfoLevel).With().Timestamp().Logger()
	rootMu     sync.RWMutex
)

// Options controls logger construction.
type Options struct {
	// Level is the minimum level: "debug", "info", "warn", "error".
	Level string

	// FilePath, if non-empty, duplicates output to this file (0600).
	FilePath string

	// Console enables human-readable console output instead of JSON.
	Console bool
}

// Init builds the root logger. Safe to call once at startup; later calls
// replace the root logger.
func Init(opts Options) error {
	level, err := zerolog.ParseLevel(normalizeLevel(opts.Level))
	if err != nil {
		level = zerolog.InfoLevel
	}

	var writers []io.Writer
	if opts.Console {
		writers = append(writers, zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	} else {
		writers = append(writers, os.Stderr)
	}

	if opts.FilePath != "" {
		if err := os.MkdirAll(filepath.Dir(opts.FilePath), 0700); err != nil {
			return err
		}
		f, err := os.OpenFile(opts.FilePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
		if err != nil {
			return err
		}
		writers = append(writers, f)
	}

	logger := zerolog.New(io.MultiWriter(writers...)).Level(level).With().Timestamp().Logger()

	rootMu.Lock()
	rootLogger = logger
	rootMu.Unlock()
	return nil
}

// Component returns a logger tagged with a component name.
func Component(name string) zerolog.Logger {
	rootMu.RLock()
	defer rootMu.RUnlock()
	return rootLogger.With().Str("component", name).Logger()
}

// Root returns the root logger.
func Root() zerolog.Logger {
	rootMu.RLock()
	defer rootMu.RUnlock()
	return rootLogger
}

func normalizeLevel(level string) string {
	if level == "" {
		return "info"
	}
	return level
}
