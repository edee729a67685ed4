package provider

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"anvil/chat"
	"anvil/config"
	"anvil/provider/testutil"

	mcptypes "github.com/mark3labs/mcp-go/mcp"
	"github.com/ollama/ollama/api"
)

func TestRetryPolicyDelayFor(t *testing.T) {
	policy := DefaultRetryPolicy()

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 1 * time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{4, 10 * time.Second}, // capped
		{10, 10 * time.Second},
	}

	for _, tt := range tests {
		if got := policy.DelayFor(tt.attempt); got != tt.want {
			t.Errorf("DelayFor(%d) = %s, want %s", tt.attempt, got, tt.want)
		}
	}
}

func TestRetryPolicyRetryable(t *testing.T) {
	policy := DefaultRetryPolicy()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"context canceled", context.Canceled, false},
		{"deadline exceeded", context.DeadlineExceeded, false},
		{"wrapped cancellation", fmt.Errorf("chat failed: %w", context.Canceled), false},
		{"provider error 429", &ProviderError{StatusCode: 429, Message: "slow down"}, true},
		{"provider error 400 not retryable", &ProviderError{StatusCode: 400, Message: "bad request"}, false},
		{"wrapped provider error", fmt.Errorf("chat failed: %w", &ProviderError{StatusCode: 503}), true},
		{"typed 429", api.StatusError{StatusCode: 429}, true},
		{"typed 503", api.StatusError{StatusCode: 503}, true},
		{"typed 500 not retryable", api.StatusError{StatusCode: 500}, false},
		{"typed 400 not retryable", api.StatusError{StatusCode: 400}, false},
		{"rate limit hint", errors.New("upstream says: rate limit exceeded"), true},
		{"overloaded hint", errors.New("model is overloaded, try later"), true},
		{"gateway timeout hint", errors.New("504 gateway timeout"), true},
		{"plain failure", errors.New("connection refused"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := policy.Retryable(tt.err); got != tt.want {
				t.Errorf("Retryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestPolicyFromConfig(t *testing.T) {
	policy := PolicyFromConfig(config.RetryConfig{
		MaxRetries:     5,
		InitialDelayMS: 200,
		MaxDelayMS:     2000,
		Multiplier:     3.0,
	})

	if policy.MaxRetries != 5 {
		t.Errorf("MaxRetries = %d, want 5", policy.MaxRetries)
	}
	if policy.InitialDelay != 200*time.Millisecond {
		t.Errorf("InitialDelay = %s, want 200ms", policy.InitialDelay)
	}
	if policy.DelayFor(2) != 1800*time.Millisecond {
		t.Errorf("DelayFor(2) = %s, want 1.8s", policy.DelayFor(2))
	}
	if policy.DelayFor(3) != 2*time.Second {
		t.Errorf("DelayFor(3) = %s, want cap of 2s", policy.DelayFor(3))
	}

	// zero config keeps defaults
	policy = PolicyFromConfig(config.RetryConfig{})
	if policy.MaxRetries != 3 || policy.InitialDelay != time.Second {
		t.Errorf("zero config should keep defaults, got %+v", policy)
	}
}

// fastPolicy keeps retry tests quick.
func fastPolicy() RetryPolicy {
	policy := DefaultRetryPolicy()
	policy.InitialDelay = time.Millisecond
	policy.MaxDelay = 5 * time.Millisecond
	return policy
}

func TestExecute(t *testing.T) {
	t.Run("retries until success", func(t *testing.T) {
		attempts := 0
		err := Execute(context.Background(), fastPolicy(), func() error {
			attempts++
			if attempts < 3 {
				return &ProviderError{StatusCode: 429}
			}
			return nil
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if attempts != 3 {
			t.Errorf("attempts = %d, want 3", attempts)
		}
	})

	t.Run("stops on non-retryable", func(t *testing.T) {
		attempts := 0
		err := Execute(context.Background(), fastPolicy(), func() error {
			attempts++
			return errors.New("bad request")
		})
		if err == nil {
			t.Fatal("expected error")
		}
		if attempts != 1 {
			t.Errorf("attempts = %d, want 1", attempts)
		}
	})
}

func TestRetryingProviderRetriesThenSucceeds(t *testing.T) {
	attempts := 0
	inner := testutil.NewMockProvider("test-model")
	inner.ChatWithToolsFunc = func(ctx context.Context, messages []chat.Message, tools []mcptypes.Tool, cb chat.StreamCallback) error {
		attempts++
		if attempts < 3 {
			return api.StatusError{StatusCode: 429}
		}
		return cb(chat.StreamEvent{ContentDelta: "ok"})
	}

	p := NewRetryingProvider(inner, fastPolicy())

	var content string
	err := p.ChatWithTools(context.Background(), testutil.SingleUserMessage("hi"), nil, func(ev chat.StreamEvent) error {
		content += ev.ContentDelta
		return nil
	})

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
	if content != "ok" {
		t.Errorf("content = %q, want %q", content, "ok")
	}
}

func TestRetryingProviderGivesUpAfterMaxRetries(t *testing.T) {
	attempts := 0
	inner := testutil.NewMockProvider("test-model")
	inner.ChatWithToolsFunc = func(ctx context.Context, messages []chat.Message, tools []mcptypes.Tool, cb chat.StreamCallback) error {
		attempts++
		return api.StatusError{StatusCode: 503}
	}

	p := NewRetryingProvider(inner, fastPolicy())

	err := p.ChatWithTools(context.Background(), testutil.SingleUserMessage("hi"), nil, func(chat.StreamEvent) error {
		return nil
	})

	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	// initial attempt plus MaxRetries retries
	if attempts != 4 {
		t.Errorf("attempts = %d, want 4", attempts)
	}
}

func TestRetryingProviderNoRetryAfterDelivery(t *testing.T) {
	attempts := 0
	inner := testutil.NewMockProvider("test-model")
	inner.ChatWithToolsFunc = func(ctx context.Context, messages []chat.Message, tools []mcptypes.Tool, cb chat.StreamCallback) error {
		attempts++
		if err := cb(chat.StreamEvent{ContentDelta: "partial"}); err != nil {
			return err
		}
		return api.StatusError{StatusCode: 429}
	}

	p := NewRetryingProvider(inner, fastPolicy())

	err := p.ChatWithTools(context.Background(), testutil.SingleUserMessage("hi"), nil, func(chat.StreamEvent) error {
		return nil
	})

	if err == nil {
		t.Fatal("expected the failure to propagate")
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1: streamed output must not be duplicated", attempts)
	}
}

func TestRetryingProviderNoRetryOnNonTransientError(t *testing.T) {
	attempts := 0
	inner := testutil.NewMockProvider("test-model")
	inner.ChatWithToolsFunc = func(ctx context.Context, messages []chat.Message, tools []mcptypes.Tool, cb chat.StreamCallback) error {
		attempts++
		return errors.New("invalid request")
	}

	p := NewRetryingProvider(inner, fastPolicy())

	err := p.ChatWithTools(context.Background(), testutil.SingleUserMessage("hi"), nil, nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
}

func TestRetryingProviderHonorsCancellationDuringBackoff(t *testing.T) {
	inner := testutil.NewMockProvider("test-model")
	inner.ChatWithToolsFunc = func(ctx context.Context, messages []chat.Message, tools []mcptypes.Tool, cb chat.StreamCallback) error {
		return api.StatusError{StatusCode: 429}
	}

	policy := fastPolicy()
	policy.InitialDelay = time.Minute // force the wait onto the ctx branch

	p := NewRetryingProvider(inner, policy)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	err := p.ChatWithTools(ctx, testutil.SingleUserMessage("hi"), nil, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("cancellation took %s, backoff wait did not abort", elapsed)
	}
}
