package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"anvil/chat"
	"anvil/config"
	"anvil/ollama"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	mcptypes "github.com/mark3labs/mcp-go/mcp"
	"github.com/ollama/ollama/api"
	openaisdk "github.com/openai/openai-go/v3"
)

// RetryPolicy controls backoff on transient provider failures. Only
// requests that failed before delivering any stream event are retried, so
// a retry never duplicates streamed output.
type RetryPolicy struct {
	MaxRetries      int
	InitialDelay    time.Duration
	MaxDelay        time.Duration
	Multiplier      float64
	RetryableStatus map[int]bool
}

// DefaultRetryPolicy returns the standard policy: three retries, delays
// growing 1s → 2s → 4s capped at 10s, no jitter, retrying HTTP 429, 503
// and 504.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:   3,
		InitialDelay: time.Second,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
		RetryableStatus: map[int]bool{
			429: true,
			503: true,
			504: true,
		},
	}
}

// PolicyFromConfig builds a RetryPolicy from user configuration, keeping
// the default retryable status set.
func PolicyFromConfig(rc config.RetryConfig) RetryPolicy {
	policy := DefaultRetryPolicy()
	if rc.MaxRetries > 0 {
		policy.MaxRetries = rc.MaxRetries
	}
	if rc.InitialDelayMS > 0 {
		policy.InitialDelay = time.Duration(rc.InitialDelayMS) * time.Millisecond
	}
	if rc.MaxDelayMS > 0 {
		policy.MaxDelay = time.Duration(rc.MaxDelayMS) * time.Millisecond
	}
	if rc.Multiplier > 1 {
		policy.Multiplier = rc.Multiplier
	}
	return policy
}

// DelayFor returns the backoff delay before retry number attempt
// (zero-based): InitialDelay * Multiplier^attempt, capped at MaxDelay.
func (p RetryPolicy) DelayFor(attempt int) time.Duration {
	delay := float64(p.InitialDelay)
	for i := 0; i < attempt; i++ {
		delay *= p.Multiplier
	}
	if ceiling := float64(p.MaxDelay); delay > ceiling {
		delay = ceiling
	}
	return time.Duration(delay)
}

// Retryable reports whether an error is a transient failure worth
// retrying. Context cancellation is never retryable.
func (p RetryPolicy) Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	if code, ok := StatusCodeOf(err); ok {
		return p.RetryableStatus[code]
	}

	// No typed status available: fall back to message hints
	msg := strings.ToLower(err.Error())
	hints := []string{
		"429", "rate limit", "too many requests",
		"503", "service unavailable", "overloaded",
		"504", "gateway timeout",
	}
	for _, hint := range hints {
		if strings.Contains(msg, hint) {
			return true
		}
	}
	return false
}

// ProviderError wraps a provider failure with the HTTP status it came
// from, for callers that sit above the SDK-specific error types.
type ProviderError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *ProviderError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("provider error (status %d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("provider error (status %d): %v", e.StatusCode, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// StatusCodeOf extracts an HTTP status code from the typed errors the
// provider SDKs return.
func StatusCodeOf(err error) (int, bool) {
	var provErr *ProviderError
	if errors.As(err, &provErr) {
		return provErr.StatusCode, true
	}

	var openaiErr *openaisdk.Error
	if errors.As(err, &openaiErr) {
		return openaiErr.StatusCode, true
	}

	var anthropicErr *anthropicsdk.Error
	if errors.As(err, &anthropicErr) {
		return anthropicErr.StatusCode, true
	}

	var ollamaErr api.StatusError
	if errors.As(err, &ollamaErr) {
		return ollamaErr.StatusCode, true
	}

	return 0, false
}

// Execute runs fn under the retry policy. It is the plain-function form of
// the retrying provider, for one-shot calls like Ping or ListModels.
func Execute(ctx context.Context, policy RetryPolicy, fn func() error) error {
	for attempt := 0; ; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		if attempt >= policy.MaxRetries || !policy.Retryable(err) {
			return err
		}

		delay := policy.DelayFor(attempt)
		if config.DebugLog != nil {
			config.DebugLog.Printf("[Retry] Transient error (attempt %d/%d, waiting %s): %v",
				attempt+1, policy.MaxRetries, delay, err)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// RetryingProvider wraps any chat.Provider with the retry policy. Non-chat
// methods pass through untouched.
type RetryingProvider struct {
	inner  chat.Provider
	policy RetryPolicy
}

// NewRetryingProvider wraps a provider with retry behavior.
func NewRetryingProvider(inner chat.Provider, policy RetryPolicy) *RetryingProvider {
	return &RetryingProvider{inner: inner, policy: policy}
}

// Chat implements chat.Provider.Chat with retries.
func (r *RetryingProvider) Chat(ctx context.Context, messages []chat.Message, cb chat.StreamCallback) error {
	return r.ChatWithTools(ctx, messages, nil, cb)
}

// ChatWithTools implements chat.Provider.ChatWithTools with retries.
// Once any event has reached the callback the request is committed: a
// failure after that point propagates instead of retrying.
func (r *RetryingProvider) ChatWithTools(ctx context.Context, messages []chat.Message, tools []mcptypes.Tool, cb chat.StreamCallback) error {
	for attempt := 0; ; attempt++ {
		delivered := false
		wrapped := cb
		if cb != nil {
			wrapped = func(ev chat.StreamEvent) error {
				delivered = true
				return cb(ev)
			}
		}

		err := r.inner.ChatWithTools(ctx, messages, tools, wrapped)
		if err == nil {
			return nil
		}
		if delivered || attempt >= r.policy.MaxRetries || !r.policy.Retryable(err) {
			return err
		}

		delay := r.policy.DelayFor(attempt)
		if config.DebugLog != nil {
			config.DebugLog.Printf("[Retry] Transient provider error (attempt %d/%d, waiting %s): %v",
				attempt+1, r.policy.MaxRetries, delay, err)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// ListModels implements chat.Provider.ListModels (passthrough).
func (r *RetryingProvider) ListModels(ctx context.Context) ([]ollama.ModelInfo, error) {
	return r.inner.ListModels(ctx)
}

// GetModel implements chat.Provider.GetModel (passthrough).
func (r *RetryingProvider) GetModel() string { return r.inner.GetModel() }

// GetDisplayName implements chat.Provider.GetDisplayName (passthrough).
func (r *RetryingProvider) GetDisplayName() string { return r.inner.GetDisplayName() }

// SetModel implements chat.Provider.SetModel (passthrough).
func (r *RetryingProvider) SetModel(model string) { r.inner.SetModel(model) }

// Ping implements chat.Provider.Ping (passthrough).
func (r *RetryingProvider) Ping(ctx context.Context) error { return r.inner.Ping(ctx) }
