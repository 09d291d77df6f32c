// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package provider

import "errors"

// Error variables for common inference API errors.
var (
	// ErrNotConfigured indicates the API key is not set.
	ErrNotConfigured = errors.New("inference API key not configured")

	// ErrAuthFailed indicates authentication failed (invalid or expired API key).
	ErrAuthFailed = errors.New("authentication failed")

	// ErrRateLimited indicates the service rejected the request for volume.
	ErrRateLimited = errors.New("rate limited by service")

	// ErrModelNotFound indicates the requested model does not exist.
	ErrModelNotFound = errors.New("model not found")

	// ErrServer indicates a 5xx response from the service.
	ErrServer = errors.New("server error")

	// ErrNetwork indicates the request never produced a usable response.
	ErrNetwork = errors.New("network error")

	// ErrBadResponse indicates the service answered with something the
	// client cannot interpret. Not retryable.
	ErrBadResponse = errors.New("malformed response")

	// ErrMaxRetries indicates the retry budget was exhausted.
	ErrMaxRetries = errors.New("max retries exceeded")

	// ErrModelWarming indicates the model never finished loading within
	// the warmup budget.
	ErrModelWarming = errors.New("model warming")

	// errModelWarming marks a single warming notice internally.
	errModelWarming = errors.New("model is loading")
)
