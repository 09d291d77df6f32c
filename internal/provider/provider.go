// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package provider implements the HTTP client and retrying executor for
// hosted inference endpoints.
//
// Requests are sent as JSON generation payloads; responses arrive as a JSON
// array whose first element carries the generated text. Endpoints spin
// models up on demand, so a request may be answered with a warming notice
// instead of a completion; the executor waits those out without consuming
// retry attempts. Genuine failures are retried with a linearly growing
// backoff up to a fixed attempt budget.
//
// PROVIDER: Secure logging, retry logic, and validation
package provider

import (
	"bytes"
	"context"
	"crypto/sha256"
	"crypto/tls"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/jeranaias/multitool/internal/catalog"
	"github.com/jeranaias/multitool/internal/logging"
)

// Configuration constants for the inference API.
const (
	// DefaultTimeout is the default timeout for API requests.
	DefaultTimeout = 60 * time.Second

	// MaxAttempts is the retry budget for a single Execute call. Warming
	// waits do not count against it.
	MaxAttempts = 3

	// retryBackoffStep is multiplied by the attempt number to produce the
	// delay before the next attempt: 2s, 4s.
	retryBackoffStep = 2 * time.Second

	// warmupDelay is how long the executor waits after a warming notice
	// before asking again.
	warmupDelay = 2 * time.Second

	// maxWarmupWaits bounds how many warming notices a single Execute call
	// tolerates before giving up.
	maxWarmupWaits = 30

	// MaxResponseSize is the maximum allowed response body size.
	// SECURITY: Response size limit prevents memory exhaustion attacks.
	MaxResponseSize = 10 * 1024 * 1024 // 10MB limit

	// DefaultOutboundRPS caps outbound requests per second across all
	// models. This is a process-wide safety net underneath the per-model
	// admission windows.
	DefaultOutboundRPS = 5
)

// PERFORMANCE: Connection pooling reduces TCP handshake overhead.
// Shared HTTP client with connection pooling for all inference requests.
// SECURITY: TLS verification required for production
var sharedHTTPClient = &http.Client{
	Transport: &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		TLSClientConfig: &tls.Config{
			MinVersion:         tls.VersionTLS12,
			InsecureSkipVerify: false, // SECURITY: TLS verification required for production
		},
	},
	Timeout: DefaultTimeout,
}

// =============================================================================
// WIRE TYPES
// =============================================================================

// generateRequest is the JSON payload sent to an inference endpoint.
type generateRequest struct {
	Inputs     string             `json:"inputs"`
	Parameters generateParameters `json:"parameters"`
}

// generateParameters carries the sampling settings for one generation.
type generateParameters struct {
	MaxNewTokens       int     `json:"max_new_tokens"`
	Temperature        float64 `json:"temperature"`
	TopP               float64 `json:"top_p"`
	ReturnFullText     bool    `json:"return_full_text"`
	DoSample           bool    `json:"do_sample"`
	NumReturnSequences int     `json:"num_return_sequences"`
}

// generateResult is one element of the response array.
type generateResult struct {
	GeneratedText string `json:"generated_text"`
}

// apiErrorResponse is the error body the service returns for failures and
// warming notices.
type apiErrorResponse struct {
	Error         string  `json:"error"`
	EstimatedTime float64 `json:"estimated_time"`
}

// =============================================================================
// CLIENT
// =============================================================================

// Request is one generation request handed to the executor.
type Request struct {
	// Model selects the catalog profile (endpoint and parameters)
	Model catalog.Profile

	// Prompt is the full text sent to the model
	Prompt string

	// Temperature overrides the profile default when non-negative
	Temperature float64

	// MaxNewTokens overrides the profile default when positive
	MaxNewTokens int
}

// Client executes generation requests against hosted inference endpoints.
type Client struct {
	keyMu       sync.RWMutex
	apiKey      string
	httpClient  *http.Client
	outbound    *rate.Limiter
	backoffStep time.Duration
	warmupDelay time.Duration
	maxResponse int64
	sleep       func(ctx context.Context, d time.Duration) error
	logger      zerolog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the shared pooled HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithOutboundLimit replaces the process-wide outbound limiter.
func WithOutboundLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps > 0 && burst > 0 {
			c.outbound = rate.NewLimiter(rate.Limit(rps), burst)
		}
	}
}

// WithTimeout replaces the per-request timeout while keeping the shared
// pooled transport.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			hc := *c.httpClient
			hc.Timeout = d
			c.httpClient = &hc
		}
	}
}

// WithResponseLimit caps how many response bytes are read per request.
func WithResponseLimit(n int64) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxResponse = n
		}
	}
}

// WithBackoff overrides the retry backoff step and warming delay.
func WithBackoff(step, warmup time.Duration) Option {
	return func(c *Client) {
		if step > 0 {
			c.backoffStep = step
		}
		if warmup > 0 {
			c.warmupDelay = warmup
		}
	}
}

// NewClient creates an executor using apiKey for authentication.
//
// An empty key produces a usable client whose Execute calls fail with
// ErrNotConfigured, so callers can construct eagerly and configure later.
func NewClient(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:      strings.TrimSpace(apiKey),
		httpClient:  sharedHTTPClient,
		outbound:    rate.NewLimiter(rate.Limit(DefaultOutboundRPS), DefaultOutboundRPS),
		backoffStep: retryBackoffStep,
		warmupDelay: warmupDelay,
		maxResponse: MaxResponseSize,
		sleep:       sleepCtx,
		logger:      logging.Component("provider"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetAPIKey replaces the API key. Safe to call while requests are in
// flight; settings subscribers invoke it from their own goroutine.
func (c *Client) SetAPIKey(key string) {
	c.keyMu.Lock()
	c.apiKey = strings.TrimSpace(key)
	c.keyMu.Unlock()
}

func (c *Client) currentKey() string {
	c.keyMu.RLock()
	defer c.keyMu.RUnlock()
	return c.apiKey
}

// IsConfigured returns true if the client has an API key configured.
func (c *Client) IsConfigured() bool {
	return c.currentKey() != ""
}

// KeyFingerprint returns a secure fingerprint of the API key for logging.
// SECURITY: Uses SHA-256 hash to create an identifier without exposing the key.
func (c *Client) KeyFingerprint() string {
	key := c.currentKey()
	if key == "" {
		return "none"
	}
	h := sha256.Sum256([]byte(key))
	return hex.EncodeToString(h[:4])
}

// =============================================================================
// EXECUTION
// =============================================================================

// Execute sends req and returns the cleaned generated text.
//
// Warming notices are waited out without consuming attempts. Transient
// failures are retried with a growing backoff; after MaxAttempts failed
// attempts the last error is returned wrapped in ErrMaxRetries.
func (c *Client) Execute(ctx context.Context, req Request) (string, error) {
	if !c.IsConfigured() {
		return "", ErrNotConfigured
	}

	warmupWaits := 0
	var lastErr error

	for attempt := 1; attempt <= MaxAttempts; {
		if err := c.outbound.Wait(ctx); err != nil {
			return "", err
		}

		text, err := c.doRequest(ctx, req)
		if err == nil {
			return text, nil
		}

		if errors.Is(err, errModelWarming) {
			warmupWaits++
			if warmupWaits > maxWarmupWaits {
				return "", fmt.Errorf("%w: model did not become ready", ErrModelWarming)
			}
			c.logger.Debug().
				Str("model", req.Model.ID).
				Int("warmup_waits", warmupWaits).
				Msg("model warming, waiting")
			if err := c.sleep(ctx, c.warmupDelay); err != nil {
				return "", err
			}
			// Warming does not consume an attempt.
			continue
		}

		if !isRetryable(err) {
			return "", err
		}

		lastErr = err
		c.logger.Warn().
			Str("model", req.Model.ID).
			Int("attempt", attempt).
			Err(err).
			Msg("request failed")

		if attempt == MaxAttempts {
			break
		}
		// Linear backoff: 2s after the first failure, 4s after the second.
		if err := c.sleep(ctx, c.backoffStep*time.Duration(attempt)); err != nil {
			return "", err
		}
		attempt++
	}

	return "", fmt.Errorf("%w: %w", ErrMaxRetries, lastErr)
}

// doRequest performs a single HTTP round trip.
//
// SECURITY: Clears Authorization header after the request to keep the key
// out of any later logging of the request value.
func (c *Client) doRequest(ctx context.Context, req Request) (string, error) {
	payload := generateRequest{
		Inputs: req.Prompt,
		Parameters: generateParameters{
			MaxNewTokens:       req.Model.MaxNewTokens,
			Temperature:        req.Model.Temperature,
			TopP:               0.95,
			ReturnFullText:     false,
			DoSample:           true,
			NumReturnSequences: 1,
		},
	}
	if req.MaxNewTokens > 0 {
		payload.Parameters.MaxNewTokens = req.MaxNewTokens
	}
	if req.Temperature > 0 {
		payload.Parameters.Temperature = req.Temperature
	}

	bodyBytes, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, req.Model.Endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.currentKey())
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("User-Agent", "multitool/1.0")

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	httpReq.Header.Del("Authorization")
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	body, err := c.readResponse(resp)
	if err != nil {
		return "", err
	}

	c.logger.Debug().
		Str("model", req.Model.ID).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Str("key", c.KeyFingerprint()).
		Msg("inference response")

	if resp.StatusCode != http.StatusOK {
		return "", handleErrorResponse(resp.StatusCode, body)
	}

	// Some deployments report the warming notice with a 200 status, so the
	// marker has to be checked before the body is parsed as a generation.
	if isWarmingNotice(body) {
		return "", fmt.Errorf("%w: %s", errModelWarming, strings.TrimSpace(string(body)))
	}

	var results []generateResult
	if err := json.Unmarshal(body, &results); err != nil {
		return "", fmt.Errorf("%w: %v", ErrBadResponse, err)
	}
	if len(results) == 0 || results[0].GeneratedText == "" {
		return "", fmt.Errorf("%w: empty generation", ErrBadResponse)
	}

	return CleanResponse(results[0].GeneratedText), nil
}

// readResponse reads the response body with a size limit.
// SECURITY: Response size limit prevents memory exhaustion attacks.
func (c *Client) readResponse(resp *http.Response) ([]byte, error) {
	limitedReader := io.LimitReader(resp.Body, c.maxResponse)
	body, err := io.ReadAll(limitedReader)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %v", ErrNetwork, err)
	}

	if int64(len(body)) == c.maxResponse {
		return nil, fmt.Errorf("%w: response exceeded maximum size of %d bytes", ErrBadResponse, c.maxResponse)
	}

	return body, nil
}

// isWarmingNotice reports whether a response body carries the hosted
// service's model-loading marker.
func isWarmingNotice(body []byte) bool {
	return strings.Contains(strings.ToLower(string(body)), "loading")
}

// handleErrorResponse converts HTTP error responses to appropriate Go errors.
func handleErrorResponse(statusCode int, body []byte) error {
	var apiErr apiErrorResponse
	message := string(body)
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error != "" {
		message = apiErr.Error
	}

	// The service answers with a loading notice while the model spins up.
	if isWarmingNotice(body) {
		return fmt.Errorf("%w: %s", errModelWarming, message)
	}

	switch statusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", ErrAuthFailed, message)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", ErrRateLimited, message)
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrModelNotFound, message)
	default:
		if statusCode >= 500 {
			return fmt.Errorf("%w: status %d: %s", ErrServer, statusCode, message)
		}
		return fmt.Errorf("%w: status %d: %s", ErrBadResponse, statusCode, message)
	}
}

// isRetryable determines if an error should trigger a retry.
func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrServer) ||
		errors.Is(err, ErrNetwork)
}

// CleanResponse strips instruction wrapper artifacts the models sometimes
// echo back, and trims surrounding whitespace.
func CleanResponse(text string) string {
	text = strings.ReplaceAll(text, "[INST]", "")
	text = strings.ReplaceAll(text, "[/INST]", "")
	return strings.TrimSpace(text)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
