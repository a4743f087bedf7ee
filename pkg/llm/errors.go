package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorKind tells the structured client how to react to a failed call.
type ErrorKind int

const (
	// KindRetryable covers every failure that may succeed on another attempt.
	KindRetryable ErrorKind = iota
	// KindRateLimited means the provider throttled us; back off before retrying.
	KindRateLimited
	// KindQuota means the account is out of quota or billing; retrying is pointless.
	KindQuota
)

func (k ErrorKind) String() string {
	switch k {
	case KindRateLimited:
		return "rate_limited"
	case KindQuota:
		return "quota"
	default:
		return "retryable"
	}
}

// Error is a classified provider failure.
type Error struct {
	Kind       ErrorKind
	Provider   string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s (HTTP %d): %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError wraps err and classifies it from the status code and message.
func NewError(provider string, statusCode int, err error) *Error {
	return &Error{
		Kind:       classify(statusCode, err.Error()),
		Provider:   provider,
		StatusCode: statusCode,
		Err:        err,
	}
}

// Classify returns the kind of a failure. Errors that were not produced by a
// provider client are classified from their message.
func Classify(err error) ErrorKind {
	if err == nil {
		return KindRetryable
	}
	var le *Error
	if errors.As(err, &le) {
		return le.Kind
	}
	return classify(0, err.Error())
}

// IsRateLimited reports whether err is a throttling failure.
func IsRateLimited(err error) bool { return err != nil && Classify(err) == KindRateLimited }

// IsQuota reports whether err is a quota or billing failure.
func IsQuota(err error) bool { return err != nil && Classify(err) == KindQuota }

func classify(statusCode int, msg string) ErrorKind {
	lower := strings.ToLower(msg)

	if strings.Contains(lower, "billing") || strings.Contains(lower, "insufficient_quota") {
		return KindQuota
	}

	if statusCode == http.StatusTooManyRequests ||
		strings.Contains(lower, "429") ||
		strings.Contains(lower, "resource exhausted") ||
		strings.Contains(lower, "resource_exhausted") ||
		strings.Contains(lower, "rate limit") ||
		strings.Contains(lower, "rate_limit") ||
		strings.Contains(lower, "too many requests") {
		return KindRateLimited
	}

	if strings.Contains(lower, "quota") {
		return KindQuota
	}
	return KindRetryable
}

// IsTransient reports whether a failure is a temporary server or network
// problem worth retrying against the same provider.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var le *Error
	if errors.As(err, &le) {
		switch le.StatusCode {
		case http.StatusInternalServerError, http.StatusBadGateway,
			http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return true
		}
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range []string{
		"503", "502", "500 internal", "overloaded", "unavailable",
		"connection refused", "connection reset", "timeout", "internal error",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
