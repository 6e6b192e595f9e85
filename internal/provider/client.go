// Package provider talks to the generative model backing the agents. The
// Client adds the retry, backoff and fallback policy on top of a Backend.
package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/mtzanidakis/studioflow/internal/apperr"
	"github.com/mtzanidakis/studioflow/internal/config"
)

const remedyAPIKey = "set GEMINI_API_KEY"

// Request is a single generation call against one model.
type Request struct {
	Model       string
	Prompt      string
	Temperature float32
	MaxTokens   int
	JSON        bool
}

// Backend performs one generation attempt.
type Backend interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// AttemptObserver is notified after every attempt with its outcome
// ("success" or the ErrorType name).
type AttemptObserver interface {
	ObserveAttempt(model, outcome string)
}

type Option func(*Client)

// WithSleep replaces the backoff wait, mostly for tests.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Client) { c.sleep = fn }
}

func WithObserver(o AttemptObserver) Option {
	return func(c *Client) { c.observer = o }
}

type Client struct {
	backend  Backend
	cfg      config.AIConfig
	observer AttemptObserver
	sleep    func(ctx context.Context, d time.Duration) error
}

// New creates a client. A nil backend yields a client whose every call
// fails with a provider-unavailable error.
func New(backend Backend, cfg config.AIConfig, opts ...Option) *Client {
	c := &Client{
		backend: backend,
		cfg:     cfg,
		sleep:   sleepCtx,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewFromConfig builds a Gemini-backed client, or an unconfigured one when
// no API key is set.
func NewFromConfig(cfg config.AIConfig, opts ...Option) *Client {
	var backend Backend
	if cfg.APIKey != "" {
		backend = NewGeminiBackend(cfg.APIKey)
	}
	return New(backend, cfg, opts...)
}

// Configured reports whether a backend is available.
func (c *Client) Configured() bool {
	return c.backend != nil
}

// Model returns the primary model name.
func (c *Client) Model() string {
	return c.cfg.Model
}

// Call sends prompt to the primary model (or modelHint when set), retrying
// transient failures, then tries the fallback model once.
func (c *Client) Call(ctx context.Context, prompt, modelHint string) (string, error) {
	if c.backend == nil {
		return "", apperr.New(apperr.KindProviderUnavailable, "AI provider is not configured").WithRemedy(remedyAPIKey)
	}

	primary := c.cfg.Model
	if modelHint != "" {
		primary = modelHint
	}

	text, err := c.withRetry(ctx, primary, prompt)
	if err == nil {
		return text, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return "", ctxErr
	}

	fallback := c.cfg.FallbackModel
	if fallback != "" && fallback != primary {
		slog.Warn("primary model failed, trying fallback", "model", primary, "fallback", fallback, "error", err)
		text, ferr := c.attempt(ctx, fallback, prompt)
		if ferr == nil {
			return text, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		err = ferr
	}

	return "", apperr.Wrap(apperr.KindProviderUnavailable, err, "AI provider unavailable").WithRemedy(remedyFor(err))
}

func (c *Client) withRetry(ctx context.Context, model, prompt string) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := c.backoff(attempt)
			slog.Debug("retrying model call", "model", model, "attempt", attempt, "delay", delay, "error", lastErr)
			if err := c.sleep(ctx, delay); err != nil {
				return "", err
			}
		}

		text, err := c.attempt(ctx, model, prompt)
		if err == nil {
			return text, nil
		}
		lastErr = err
		if ctx.Err() != nil || !IsRetryable(err) {
			return "", err
		}
	}
	return "", fmt.Errorf("retries exhausted after %d attempts: %w", c.cfg.MaxRetries+1, lastErr)
}

func (c *Client) attempt(ctx context.Context, model, prompt string) (string, error) {
	text, err := c.backend.Generate(ctx, Request{
		Model:       model,
		Prompt:      prompt,
		Temperature: c.cfg.Temperature,
		MaxTokens:   c.cfg.MaxTokens,
		JSON:        true,
	})
	if err == nil && text == "" {
		err = &Error{Type: ErrorTypeEmptyResponse, Model: model, Err: errors.New("empty response")}
	}
	if c.observer != nil {
		outcome := "success"
		if err != nil {
			outcome = Classify(err).String()
		}
		c.observer.ObserveAttempt(model, outcome)
	}
	return text, err
}

// backoff returns the delay before retry n (n >= 1), doubling from the
// initial backoff, capped at the max, with up to 20% jitter.
func (c *Client) backoff(n int) time.Duration {
	delay := c.cfg.InitialBackoff
	for i := 1; i < n && delay < c.cfg.MaxBackoff; i++ {
		delay *= 2
	}
	if c.cfg.MaxBackoff > 0 && delay > c.cfg.MaxBackoff {
		delay = c.cfg.MaxBackoff
	}
	if delay > 0 {
		delay += time.Duration(rand.Int64N(int64(delay)/5 + 1))
	}
	return delay
}

func remedyFor(err error) string {
	switch Classify(err) {
	case ErrorTypeAuth:
		return "check that GEMINI_API_KEY is valid"
	case ErrorTypeRateLimit:
		return "quota exceeded; wait and retry or raise the Gemini quota"
	case ErrorTypeBadRequest:
		return "the request was rejected; shorten or simplify the input"
	}
	return "check network connectivity and Gemini service status, then retry"
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
