// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package app assembles the orchestration core from deployment
// configuration.
//
// Hosts embedding the core call New once at startup; the returned App
// exposes the chat service plus the individual components for callers
// that need direct access (settings UI, usage dashboards).
package app

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/jeranaias/multitool/internal/catalog"
	"github.com/jeranaias/multitool/internal/chat"
	"github.com/jeranaias/multitool/internal/config"
	"github.com/jeranaias/multitool/internal/errorlog"
	"github.com/jeranaias/multitool/internal/logging"
	"github.com/jeranaias/multitool/internal/provider"
	"github.com/jeranaias/multitool/internal/ratelimit"
	"github.com/jeranaias/multitool/internal/settings"
	"github.com/jeranaias/multitool/internal/usage"
)

// App is the fully wired orchestration core.
type App struct {
	// Config is the deployment configuration the core was built from.
	Config *config.Config

	// Settings is the encrypted user settings store.
	Settings *settings.Store

	// Client is the inference executor. Its API key tracks the settings
	// store automatically.
	Client *provider.Client

	// Limiter admits requests against per-model windows.
	Limiter *ratelimit.Limiter

	// Tracker accumulates per-model usage and cost.
	Tracker *usage.Tracker

	// Errors is the bounded in-memory error log.
	Errors *errorlog.Log

	// History persists conversations.
	History *chat.History

	// Chat is the orchestration facade hosts talk to.
	Chat *chat.Service
}

// New builds the core from cfg. A nil cfg uses config.Global(), which
// loads ~/.multitool/config.toml (or config.json) with environment
// overrides applied.
func New(cfg *config.Config) (*App, error) {
	if cfg == nil {
		cfg = config.Global()
	}

	if err := logging.Init(logging.Options{
		Level:    cfg.Logging.Level,
		FilePath: cfg.Logging.File,
		Console:  cfg.Logging.Console,
	}); err != nil {
		return nil, fmt.Errorf("failed to initialize logging: %w", err)
	}

	dataDir, err := cfg.ResolveDataDir()
	if err != nil {
		return nil, err
	}

	store, err := settings.NewStore(dataDir,
		settings.WithMaxBackups(cfg.Retention.SettingsBackups))
	if err != nil {
		return nil, fmt.Errorf("failed to open settings store: %w", err)
	}

	client := provider.NewClient(store.Get().APIKey,
		provider.WithTimeout(time.Duration(cfg.HTTP.TimeoutSecs)*time.Second),
		provider.WithResponseLimit(cfg.HTTP.MaxResponseBytes),
		provider.WithOutboundLimit(cfg.HTTP.OutboundRPS, cfg.HTTP.OutboundBurst))

	tracker, err := usage.NewTracker(filepath.Join(dataDir, "usage"))
	if err != nil {
		return nil, fmt.Errorf("failed to open usage storage: %w", err)
	}

	history, err := chat.NewHistory(filepath.Join(dataDir, "conversations"))
	if err != nil {
		return nil, err
	}

	errs := errorlog.New(cfg.Retention.ErrorLogEntries)

	limiter := ratelimit.New(func(modelID string) int {
		p, err := catalog.Get(modelID)
		if err != nil {
			return 0
		}
		return p.RequestsPerMinute
	})

	svc := chat.NewService(chat.Deps{
		Settings: store,
		Executor: client,
		Limiter:  limiter,
		Tracker:  tracker,
		ErrorLog: errs,
		History:  history,
	})

	return &App{
		Config:   cfg,
		Settings: store,
		Client:   client,
		Limiter:  limiter,
		Tracker:  tracker,
		Errors:   errs,
		History:  history,
		Chat:     svc,
	}, nil
}
