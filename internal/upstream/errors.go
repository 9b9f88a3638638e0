// Package upstream defines the error taxonomy shared by every remote
// adapter. Callers branch on Kind, never on provider-specific error types.
package upstream

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"
)

// Kind is the category of an upstream failure.
type Kind string

const (
	KindNotFound            Kind = "not_found"
	KindAccessDenied        Kind = "access_denied"
	KindRateLimited         Kind = "rate_limited"
	KindTimeout             Kind = "timeout"
	KindValidationFailed    Kind = "validation_failed"
	KindUpstreamUnavailable Kind = "upstream_unavailable"
	KindUnexpected          Kind = "unexpected"
)

// Default retry-after hints for kinds that carry one.
const (
	DefaultRateLimitRetryAfter   = 60 * time.Second
	DefaultTimeoutRetryAfter     = 30 * time.Second
	DefaultUnavailableRetryAfter = 60 * time.Second
)

// Error is a classified upstream failure.
type Error struct {
	Kind       Kind
	Service    string // "github", "gemini", ...
	Op         string
	Status     int // upstream HTTP status when known
	Message    string
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Service != "" {
		b.WriteString(e.Service)
		if e.Op != "" {
			b.WriteString(" ")
			b.WriteString(e.Op)
		}
		b.WriteString(": ")
	}
	b.WriteString(string(e.Kind))
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil && e.Message == "" {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a classified error, filling in the default retry-after for
// kinds that have one.
func New(kind Kind, service, op, message string, cause error) *Error {
	e := &Error{Kind: kind, Service: service, Op: op, Message: message, Err: cause}
	e.RetryAfter = defaultRetryAfter(kind)
	return e
}

// Errorf is New with a formatted message and no cause.
func Errorf(kind Kind, service, op, format string, args ...any) *Error {
	return New(kind, service, op, fmt.Sprintf(format, args...), nil)
}

// WithRetryAfter overrides the retry hint when d is positive.
func (e *Error) WithRetryAfter(d time.Duration) *Error {
	if d > 0 {
		e.RetryAfter = d
	}
	return e
}

// WithStatus records the upstream HTTP status.
func (e *Error) WithStatus(status int) *Error {
	e.Status = status
	return e
}

func defaultRetryAfter(kind Kind) time.Duration {
	switch kind {
	case KindRateLimited:
		return DefaultRateLimitRetryAfter
	case KindTimeout:
		return DefaultTimeoutRetryAfter
	case KindUpstreamUnavailable:
		return DefaultUnavailableRetryAfter
	}
	return 0
}

// KindOf classifies any error. Unclassified errors are KindUnexpected,
// except deadline and network timeouts which are KindTimeout.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var ue *Error
	if errors.As(err, &ue) {
		return ue.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return KindTimeout
	}
	return KindUnexpected
}

// RetryAfterOf returns the retry hint carried by err, if any.
func RetryAfterOf(err error) time.Duration {
	var ue *Error
	if errors.As(err, &ue) {
		return ue.RetryAfter
	}
	if KindOf(err) == KindTimeout {
		return DefaultTimeoutRetryAfter
	}
	return 0
}

// Is reports whether err is classified as kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// Retryable reports whether a failure of this kind may succeed on retry
// without caller intervention.
func Retryable(kind Kind) bool {
	return kind == KindTimeout || kind == KindUpstreamUnavailable
}

// KindFromStatus maps an upstream HTTP status onto the taxonomy.
func KindFromStatus(status int) Kind {
	switch {
	case status == http.StatusNotFound:
		return KindNotFound
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return KindAccessDenied
	case status == http.StatusTooManyRequests:
		return KindRateLimited
	case status == http.StatusRequestTimeout, status == http.StatusGatewayTimeout:
		return KindTimeout
	case status == http.StatusBadRequest, status == http.StatusUnprocessableEntity:
		return KindValidationFailed
	case status >= 500:
		return KindUpstreamUnavailable
	}
	return KindUnexpected
}

// HTTPStatus is the status reported to our own callers for a kind.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindAccessDenied:
		return http.StatusForbidden
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindTimeout:
		return http.StatusGatewayTimeout
	case KindValidationFailed:
		return http.StatusUnprocessableEntity
	case KindUpstreamUnavailable:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// KindFromMessage guesses a kind from free-form provider error text. It
// returns KindUnexpected when nothing matches.
func KindFromMessage(msg string) Kind {
	m := strings.ToLower(msg)
	switch {
	case containsAny(m, "rate limit", "quota", "too many requests", "resource exhausted"):
		return KindRateLimited
	case containsAny(m, "timeout", "timed out", "deadline"):
		return KindTimeout
	case containsAny(m, "permission", "unauthorized", "api key", "forbidden"):
		return KindAccessDenied
	case containsAny(m, "not found"):
		return KindNotFound
	case containsAny(m, "blocked", "safety", "recitation", "invalid"):
		return KindValidationFailed
	case containsAny(m, "unavailable", "connection refused", "connection reset", "overloaded"):
		return KindUpstreamUnavailable
	}
	return KindUnexpected
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
