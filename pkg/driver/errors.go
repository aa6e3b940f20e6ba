package driver

import (
	"errors"
	"fmt"
	"time"
)

// TransientError covers network failures and 5xx-class responses.
// Callers retry with exponential backoff.
type TransientError struct {
	Provider string
	Err      error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: transient provider error: %v", e.Provider, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// RateLimitError signals throttling. RetryAfter carries the provider's
// hint when one was supplied, else zero.
type RateLimitError struct {
	Provider   string
	RetryAfter time.Duration
	Err        error
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s: rate limited: %v", e.Provider, e.Err)
}

func (e *RateLimitError) Unwrap() error { return e.Err }

// AuthError is fatal: credentials are wrong or missing. Never retried.
type AuthError struct {
	Provider string
	Err      error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s: authentication failed: %v", e.Provider, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// MalformedCompletionError means the provider answered but the
// completion could not be parsed (typically unparseable tool-call
// arguments). Not retried against the provider; the loop injects a
// corrective message and retries the turn once.
type MalformedCompletionError struct {
	Provider string
	Reason   string
}

func (e *MalformedCompletionError) Error() string {
	return fmt.Sprintf("%s: malformed completion: %s", e.Provider, e.Reason)
}

// Retryable reports whether the loop should retry the call with backoff.
func Retryable(err error) bool {
	var transient *TransientError
	var rateLimit *RateLimitError
	return errors.As(err, &transient) || errors.As(err, &rateLimit)
}

// RetryAfterHint extracts a provider-supplied backoff hint, or zero.
func RetryAfterHint(err error) time.Duration {
	var rateLimit *RateLimitError
	if errors.As(err, &rateLimit) {
		return rateLimit.RetryAfter
	}
	return 0
}

// IsAuth reports whether the error is a fatal credential failure.
func IsAuth(err error) bool {
	var auth *AuthError
	return errors.As(err, &auth)
}

// IsMalformed reports whether the completion could not be parsed.
func IsMalformed(err error) bool {
	var malformed *MalformedCompletionError
	return errors.As(err, &malformed)
}
