package genai

import (
	"errors"
	"strings"
)

var (
	// ErrRateLimited indicates the backend rejected the call for quota
	// reasons. Retryable with backoff.
	ErrRateLimited = errors.New("backend rate limited")

	// ErrUnavailable indicates the backend could not be reached or returned
	// a transient server error. Retryable with backoff; surfaces as a fatal
	// pipeline failure once retries are exhausted.
	ErrUnavailable = errors.New("backend unavailable")

	// ErrMalformedOutput indicates the backend answered but the completion
	// is unusable (empty, or failed structured parsing). Not retryable at
	// this layer; callers apply their own fallback.
	ErrMalformedOutput = errors.New("malformed backend output")
)

// Classify maps a raw backend error onto the package taxonomy. Errors
// already carrying a taxonomy sentinel pass through unchanged; anything
// unrecognized is treated as unavailable, the conservative choice for an
// opaque SDK failure.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrRateLimited) || errors.Is(err, ErrUnavailable) || errors.Is(err, ErrMalformedOutput) {
		return err
	}

	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, "rate limit", "quota", "resource exhausted", "429"):
		return errors.Join(ErrRateLimited, err)
	case containsAny(msg, "500", "502", "503", "504", "unavailable", "connection reset", "connection refused", "timeout", "deadline exceeded", "temporary"):
		return errors.Join(ErrUnavailable, err)
	default:
		return errors.Join(ErrUnavailable, err)
	}
}

// Retryable reports whether the error is worth another attempt at this
// layer. Malformed output never is: the same prompt would fail the same way,
// and component-level fallbacks handle it instead.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrMalformedOutput) {
		return false
	}
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrUnavailable)
}

// containsAny checks if s contains any of the substrings.
// Caller is expected to pass a lowercased s.
func containsAny(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
