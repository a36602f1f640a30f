package genai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/lumora-ai/lumora/internal/log"
)

// RetryConfig configures retry behavior for backend calls.
type RetryConfig struct {
	MaxRetries      int           // Maximum number of retry attempts
	InitialInterval time.Duration // Initial backoff interval
	MaxInterval     time.Duration // Maximum backoff interval
	CallTimeout     time.Duration // Per-attempt timeout (0 = no per-call timeout)
}

// DefaultRetryConfig returns sensible defaults for LLM API calls.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:      3,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     10 * time.Second,
		CallTimeout:     30 * time.Second,
	}
}

// Resilient wraps a Generator with the full backend-call policy: proactive
// rate limiting, circuit breaking, bounded retry with exponential backoff,
// and a per-attempt timeout. Retries happen at this layer only; the
// orchestration layer above sees either a result or a classified error.
type Resilient struct {
	inner   Generator
	retry   RetryConfig
	breaker *CircuitBreaker
	limiter *rate.Limiter
	logger  log.Logger
}

// ResilientConfig bundles the policy knobs. Zero values use defaults.
type ResilientConfig struct {
	Retry          RetryConfig
	CircuitBreaker CircuitBreakerConfig
	RateLimiter    *rate.Limiter // nil = 10 req/s sustained, burst 30
}

// NewResilient wraps gen with the resilience policy.
func NewResilient(gen Generator, cfg ResilientConfig, logger log.Logger) *Resilient {
	retry := cfg.Retry
	if retry.MaxRetries == 0 {
		retry = DefaultRetryConfig()
	}
	limiter := cfg.RateLimiter
	if limiter == nil {
		limiter = rate.NewLimiter(10, 30)
	}
	return &Resilient{
		inner:   gen,
		retry:   retry,
		breaker: NewCircuitBreaker(cfg.CircuitBreaker),
		limiter: limiter,
		logger:  logger,
	}
}

// Complete implements Generator with the retry policy applied.
func (r *Resilient) Complete(ctx context.Context, msgs []Message, opts Options) (string, error) {
	var out string
	err := r.execute(ctx, func(ctx context.Context) error {
		text, err := r.inner.Complete(ctx, msgs, opts)
		if err != nil {
			return err
		}
		out = text
		return nil
	})
	return out, err
}

// Stream implements Generator. A stream is retried only while no chunk has
// been emitted yet; once the caller has seen output, a mid-stream failure
// surfaces directly so fragments are never replayed out of order.
func (r *Resilient) Stream(ctx context.Context, msgs []Message, opts Options, fn StreamFunc) (string, error) {
	var out string
	emitted := false
	err := r.execute(ctx, func(ctx context.Context) error {
		text, err := r.inner.Stream(ctx, msgs, opts, func(ctx context.Context, chunk string) error {
			emitted = true
			return fn(ctx, chunk)
		})
		if err != nil {
			if emitted {
				return fmt.Errorf("%w: stream interrupted after output", errNoRetry{err})
			}
			return err
		}
		out = text
		return nil
	})
	return out, err
}

// errNoRetry marks an error as non-retryable regardless of classification.
type errNoRetry struct{ err error }

func (e errNoRetry) Error() string { return e.err.Error() }
func (e errNoRetry) Unwrap() error { return e.err }

// execute runs call with rate limiting, circuit breaking, and exponential
// backoff retry.
func (r *Resilient) execute(ctx context.Context, call func(context.Context) error) error {
	if err := r.breaker.Allow(); err != nil {
		r.logger.Warn("circuit breaker is open, rejecting request",
			"state", r.breaker.State().String())
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	var lastErr error
	delay := r.retry.InitialInterval
	start := time.Now()

	for attempt := 0; attempt <= r.retry.MaxRetries; attempt++ {
		// Rate limit each attempt, retries included.
		if err := r.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limit wait: %w", err)
		}

		err := r.callOnce(ctx, call)
		if err == nil {
			r.breaker.Success()
			r.logger.Debug("backend call succeeded",
				"attempts", attempt+1,
				"elapsed", time.Since(start))
			return nil
		}

		var noRetry errNoRetry
		if errors.As(err, &noRetry) {
			r.breaker.Failure()
			return Classify(noRetry.err)
		}

		classified := Classify(err)
		lastErr = classified

		if !Retryable(classified) {
			r.breaker.Failure()
			return classified
		}

		if attempt == r.retry.MaxRetries {
			break
		}

		r.logger.Debug("retrying backend call",
			"attempt", attempt+1,
			"delay", delay,
			"elapsed", time.Since(start),
			"error", err)

		select {
		case <-ctx.Done():
			return fmt.Errorf("context canceled during retry: %w", ctx.Err())
		case <-time.After(delay):
			delay = min(delay*2, r.retry.MaxInterval)
		}
	}

	r.breaker.Failure()
	return fmt.Errorf("backend call failed after %d retries (elapsed %v): %w",
		r.retry.MaxRetries, time.Since(start), lastErr)
}

// callOnce applies the per-attempt timeout.
func (r *Resilient) callOnce(ctx context.Context, call func(context.Context) error) error {
	if r.retry.CallTimeout <= 0 {
		return call(ctx)
	}
	callCtx, cancel := context.WithTimeout(ctx, r.retry.CallTimeout)
	defer cancel()
	return call(callCtx)
}

// BreakerState exposes the circuit state for health reporting.
func (r *Resilient) BreakerState() CircuitState {
	return r.breaker.State()
}
