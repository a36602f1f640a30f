package genai

import (
	"errors"
	"testing"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want error
	}{
		{"nil error", nil, nil},
		{"rate limit text", errors.New("rate limit exceeded"), ErrRateLimited},
		{"quota text", errors.New("quota exhausted for project"), ErrRateLimited},
		{"http 429", errors.New("HTTP 429: Too Many Requests"), ErrRateLimited},
		{"resource exhausted", errors.New("rpc error: code = ResourceExhausted desc = ..."), ErrRateLimited},
		{"http 503", errors.New("503 Service Unavailable"), ErrUnavailable},
		{"connection refused", errors.New("dial tcp: connection refused"), ErrUnavailable},
		{"deadline exceeded", errors.New("context deadline exceeded"), ErrUnavailable},
		{"unknown error treated as unavailable", errors.New("something odd"), ErrUnavailable},
		{"already classified passes through", ErrMalformedOutput, ErrMalformedOutput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := Classify(tt.err)
			if tt.want == nil {
				if got != nil {
					t.Errorf("Classify(nil) = %v", got)
				}
				return
			}
			if !errors.Is(got, tt.want) {
				t.Errorf("Classify(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestClassifyPreservesOriginal(t *testing.T) {
	t.Parallel()

	orig := errors.New("HTTP 429: slow down")
	got := Classify(orig)
	if !errors.Is(got, orig) {
		t.Error("classified error should wrap the original")
	}
}

func TestRetryable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"rate limited", ErrRateLimited, true},
		{"unavailable", ErrUnavailable, true},
		{"malformed output", ErrMalformedOutput, false},
		{"unclassified", errors.New("plain"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := Retryable(tt.err); got != tt.want {
				t.Errorf("Retryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
