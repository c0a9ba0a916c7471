package completion

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/haystackbot/haystack/core"
	"github.com/haystackbot/haystack/logging"
)

// Tier selects the underlying model variant without naming a concrete model;
// each backend maps tiers to provider model ids.
type Tier string

const (
	// TierFast is the cheap, low-latency variant used for classification and
	// query refinement.
	TierFast Tier = "fast"
	// TierDeep is the stronger variant used for user-facing summaries.
	TierDeep Tier = "deep"
)

// Prompt is the normalized completion input: an optional system instruction
// plus ordered conversational messages.
type Prompt struct {
	System   string
	Messages []core.Message
}

// Options are the per-call generation parameters. This is the only wire
// contract the core depends on: the options schema it sends and the error
// taxonomy it expects back.
type Options struct {
	Tier        Tier
	MaxTokens   int64
	Temperature float64
}

// Info contains metadata about a backend implementation.
type Info struct {
	Provider string // "openai", "anthropic", "mock", ...
}

// Backend performs a single completion attempt. Implementations must map
// provider failures onto the core taxonomy so the client can decide
// retryability without per-provider branching.
type Backend interface {
	Complete(ctx context.Context, prompt Prompt, opts Options) (string, error)
	Info() Info
}

// ClientOptions configure the retry policy.
type ClientOptions struct {
	// MaxAttempts is the total attempt ceiling including the first call.
	MaxAttempts int
	// BaseDelay seeds the exponential backoff (doubled per retry).
	BaseDelay time.Duration
	// MaxDelay caps any single backoff sleep.
	MaxDelay time.Duration
	// Logger receives retry and failure records.
	Logger logging.Logger
}

// Client wraps a Backend with bounded, jittered retry handling.
//
// Contract:
//   - RateLimited and Unavailable errors are retried up to MaxAttempts
//   - InvalidRequest fails immediately, never retried
//   - all delays are bounded and jittered to avoid thundering-herd against
//     the shared quota
//   - backoff suspends only the calling goroutine; the context cancels waits
type Client struct {
	backend     Backend
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
	logger      logging.Logger
}

// NewClient constructs a Client with optional overrides.
func NewClient(backend Backend, optFns ...func(o *ClientOptions)) *Client {
	opts := ClientOptions{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    8 * time.Second,
		Logger:      logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Client{
		backend:     backend,
		maxAttempts: opts.MaxAttempts,
		baseDelay:   opts.BaseDelay,
		maxDelay:    opts.MaxDelay,
		logger:      opts.Logger,
	}
}

// Complete runs the prompt against the backend, applying the retry policy.
// The returned error always wraps one of the core taxonomy sentinels.
func (c *Client) Complete(ctx context.Context, prompt Prompt, opts Options) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		text, err := c.backend.Complete(ctx, prompt, opts)
		if err == nil {
			return text, nil
		}
		err = classify(err)
		lastErr = err

		if errors.Is(err, core.ErrInvalidRequest) {
			c.logger.Error("completion request rejected", "provider", c.backend.Info().Provider, "error", err)
			return "", err
		}
		if attempt == c.maxAttempts {
			break
		}

		delay := c.backoff(attempt)
		c.logger.Warn("completion attempt failed, retrying",
			"provider", c.backend.Info().Provider,
			"attempt", attempt,
			"delay", delay,
			"error", err)
		select {
		case <-ctx.Done():
			return "", fmt.Errorf("%w: %v", core.ErrUnavailable, ctx.Err())
		case <-time.After(delay):
		}
	}
	c.logger.Error("completion attempts exhausted",
		"provider", c.backend.Info().Provider,
		"attempts", c.maxAttempts,
		"error", lastErr)
	return "", lastErr
}

// Info exposes the wrapped backend's metadata.
func (c *Client) Info() Info { return c.backend.Info() }

// backoff computes the jittered exponential delay for the given attempt
// (1-based). Jitter spreads concurrent retries across half the window.
func (c *Client) backoff(attempt int) time.Duration {
	delay := c.baseDelay << (attempt - 1)
	if delay > c.maxDelay {
		delay = c.maxDelay
	}
	jitter := time.Duration(rand.Int63n(int64(delay)/2 + 1))
	return delay/2 + jitter
}

// classify folds unknown backend errors into the taxonomy. Backends should
// map errors themselves; anything unmapped is treated as transient.
func classify(err error) error {
	switch {
	case errors.Is(err, core.ErrRateLimited),
		errors.Is(err, core.ErrUnavailable),
		errors.Is(err, core.ErrInvalidRequest):
		return err
	default:
		return fmt.Errorf("%w: %v", core.ErrUnavailable, err)
	}
}
