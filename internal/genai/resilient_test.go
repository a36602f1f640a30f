package genai

import (
	"context"
	"errors"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/lumora-ai/lumora/internal/log"
)

// fastRetry keeps backoff negligible so tests stay quick.
func fastRetry() RetryConfig {
	return RetryConfig{
		MaxRetries:      2,
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
	}
}

func newResilient(gen Generator, retry RetryConfig) *Resilient {
	return NewResilient(gen, ResilientConfig{
		Retry:       retry,
		RateLimiter: rate.NewLimiter(rate.Inf, 1),
	}, log.NewNop())
}

func TestCompleteRetriesTransientErrors(t *testing.T) {
	t.Parallel()

	gen := NewFakeGenerator(
		FakeCompletion{Err: errors.New("503 Service Unavailable")},
		FakeCompletion{Err: errors.New("rate limit exceeded")},
		FakeCompletion{Text: "recovered"},
	)
	r := newResilient(gen, fastRetry())

	got, err := r.Complete(context.Background(), []Message{User("hi")}, Options{})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got != "recovered" {
		t.Errorf("Complete = %q, want %q", got, "recovered")
	}
	if gen.CallCount() != 3 {
		t.Errorf("CallCount = %d, want 3", gen.CallCount())
	}
}

func TestCompleteDoesNotRetryMalformedOutput(t *testing.T) {
	t.Parallel()

	gen := NewFakeGenerator(
		FakeCompletion{Err: ErrMalformedOutput},
		FakeCompletion{Text: "never reached"},
	)
	r := newResilient(gen, fastRetry())

	_, err := r.Complete(context.Background(), []Message{User("hi")}, Options{})
	if !errors.Is(err, ErrMalformedOutput) {
		t.Fatalf("error = %v, want ErrMalformedOutput", err)
	}
	if gen.CallCount() != 1 {
		t.Errorf("CallCount = %d, want 1 (no retries)", gen.CallCount())
	}
}

func TestCompleteExhaustsBudget(t *testing.T) {
	t.Parallel()

	gen := NewFakeGenerator(FakeCompletion{Err: errors.New("connection reset")})
	retry := fastRetry()
	r := newResilient(gen, retry)

	_, err := r.Complete(context.Background(), []Message{User("hi")}, Options{})
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("error = %v, want ErrUnavailable", err)
	}
	if want := retry.MaxRetries + 1; gen.CallCount() != want {
		t.Errorf("CallCount = %d, want %d", gen.CallCount(), want)
	}
}

func TestCircuitOpensAfterRepeatedFailures(t *testing.T) {
	t.Parallel()

	gen := NewFakeGenerator(FakeCompletion{Err: errors.New("503")})
	r := NewResilient(gen, ResilientConfig{
		Retry: RetryConfig{MaxRetries: 0, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond},
		CircuitBreaker: CircuitBreakerConfig{
			FailureThreshold: 2,
			SuccessThreshold: 1,
			Timeout:          time.Hour,
		},
		RateLimiter: rate.NewLimiter(rate.Inf, 1),
	}, log.NewNop())

	ctx := context.Background()
	msgs := []Message{User("hi")}
	_, _ = r.Complete(ctx, msgs, Options{})
	_, _ = r.Complete(ctx, msgs, Options{})

	if got := r.BreakerState(); got != CircuitOpen {
		t.Fatalf("breaker state = %v, want open", got)
	}

	_, err := r.Complete(ctx, msgs, Options{})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("error = %v, want ErrCircuitOpen", err)
	}
	if gen.CallCount() != 2 {
		t.Errorf("CallCount = %d, want 2 (third call rejected before backend)", gen.CallCount())
	}
}

func TestStreamNotRetriedAfterFirstChunk(t *testing.T) {
	t.Parallel()

	// The fake emits its chunk before the scripted error only if the text is
	// delivered; use a custom generator that emits then fails.
	gen := &chunkThenFail{}
	r := newResilient(gen, fastRetry())

	var chunks []string
	_, err := r.Stream(context.Background(), []Message{User("hi")}, Options{}, func(_ context.Context, c string) error {
		chunks = append(chunks, c)
		return nil
	})
	if err == nil {
		t.Fatal("expected error from interrupted stream")
	}
	if gen.calls != 1 {
		t.Errorf("calls = %d, want 1 (no retry after emitted chunk)", gen.calls)
	}
	if len(chunks) != 1 || chunks[0] != "partial" {
		t.Errorf("chunks = %v, want [partial]", chunks)
	}
}

type chunkThenFail struct{ calls int }

func (g *chunkThenFail) Complete(context.Context, []Message, Options) (string, error) {
	g.calls++
	return "", errors.New("503")
}

func (g *chunkThenFail) Stream(ctx context.Context, _ []Message, _ Options, fn StreamFunc) (string, error) {
	g.calls++
	if err := fn(ctx, "partial"); err != nil {
		return "", err
	}
	return "", errors.New("connection reset mid-stream")
}

func TestContextCancellationStopsRetries(t *testing.T) {
	t.Parallel()

	gen := NewFakeGenerator(FakeCompletion{Err: errors.New("503")})
	r := newResilient(gen, RetryConfig{
		MaxRetries:      5,
		InitialInterval: time.Hour, // would block without cancellation
		MaxInterval:     time.Hour,
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Complete(ctx, []Message{User("hi")}, Options{})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}
