package driver

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"
)

// classify maps a raw SDK/transport error onto the package taxonomy.
// Both provider SDKs surface HTTP failures as formatted strings, so
// classification inspects status-code markers the same way it inspects
// network error text. Unrecognized errors stay unclassified and are
// treated as fatal by callers.
func classify(provider string, err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return &TransientError{Provider: provider, Err: err}
	}

	text := strings.ToLower(err.Error())

	switch {
	case containsAny(text, "401", "403", "invalid x-api-key", "invalid api key", "authentication", "permission denied"):
		return &AuthError{Provider: provider, Err: err}

	case containsAny(text, "429", "rate limit", "rate_limit", "quota"):
		return &RateLimitError{Provider: provider, RetryAfter: retryAfterFromText(text), Err: err}

	case containsAny(text, "500", "502", "503", "504", "overloaded", "timeout", "connection reset", "connection refused", "eof"):
		return &TransientError{Provider: provider, Err: err}
	}

	return err
}

func containsAny(text string, needles ...string) bool {
	for _, needle := range needles {
		if strings.Contains(text, needle) {
			return true
		}
	}
	return false
}

// retryAfterFromText pulls a "retry after Ns" style hint out of an
// error string. Providers that send Retry-After headers echo them into
// the SDK error text.
func retryAfterFromText(text string) time.Duration {
	marker := "retry after "
	idx := strings.Index(text, marker)
	if idx == -1 {
		return 0
	}
	rest := text[idx+len(marker):]
	end := 0
	for end < len(rest) && rest[end] >= '0' && rest[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0
	}
	seconds := 0
	for _, c := range rest[:end] {
		seconds = seconds*10 + int(c-'0')
	}
	return time.Duration(seconds) * time.Second
}
