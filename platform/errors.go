package platform

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// Sentinel errors for platform calls.
var (
	ErrNotConfigured    = errors.New("platform credentials not configured")
	ErrCategoryNotFound = errors.New("category not found")
)

// APIError is a non-2xx response from a platform endpoint.
type APIError struct {
	Service    string
	Endpoint   string
	StatusCode int
	Message    string
	RetryAfter time.Duration
	Err        error
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("%s %s: HTTP %d", e.Service, e.Endpoint, e.StatusCode)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *APIError) Unwrap() error { return e.Err }

// NewAPIError builds an APIError from a response, reading Retry-After when set.
func NewAPIError(service, endpoint string, resp *http.Response, body string) *APIError {
	e := &APIError{Service: service, Endpoint: endpoint, StatusCode: resp.StatusCode, Message: strings.TrimSpace(body)}
	if len(e.Message) > 300 {
		e.Message = e.Message[:300]
	}
	e.RetryAfter = ParseRetryAfter(resp.Header.Get("Retry-After"))
	return e
}

// ParseRetryAfter reads a Retry-After header given in whole seconds. Dates and
// garbage yield zero.
func ParseRetryAfter(v string) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	sec, err := strconv.Atoi(v)
	if err != nil || sec <= 0 {
		return 0
	}
	return time.Duration(sec) * time.Second
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// RetryAfter returns the Retry-After hint carried by err, or 0.
func RetryAfter(err error) time.Duration {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.RetryAfter
	}
	return 0
}

// ErrorClass represents whether a failed platform call should schedule a
// backoff window.
type ErrorClass int

const (
	// ErrorClassRetryable marks transient failures (rate limits, 5xx, network).
	ErrorClassRetryable ErrorClass = iota
	// ErrorClassFatal marks failures that retrying soon will not fix.
	ErrorClassFatal
	// ErrorClassUnknown is returned for a nil error.
	ErrorClassUnknown
)

// String returns a human-readable name for the error class.
func (ec ErrorClass) String() string {
	switch ec {
	case ErrorClassRetryable:
		return "retryable"
	case ErrorClassFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Classify decides whether err is a transient platform failure.
//
// Retryable:
//   - HTTP 429 and any HTTP status >= 500
//   - timeouts (net.Error, context deadline)
//   - connection reset / aborted, ETIMEDOUT, temporary DNS failures
//
// Everything else, including 4xx responses, missing credentials and an
// unmatched category lookup, is fatal for backoff purposes: it is recorded but
// retried only on the next regular tick.
func Classify(err error) ErrorClass {
	if err == nil {
		return ErrorClassUnknown
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= 500 {
			return ErrorClassRetryable
		}
		return ErrorClassFatal
	}

	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNABORTED) ||
		errors.Is(err, syscall.ETIMEDOUT) {
		return ErrorClassRetryable
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) && (dnsErr.IsTemporary || dnsErr.IsTimeout) {
		return ErrorClassRetryable
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrorClassRetryable
	}

	// Wrapped transport errors sometimes only survive as text.
	lower := strings.ToLower(err.Error())
	networkPatterns := []string{
		"connection reset",
		"connection aborted",
		"i/o timeout",
		"timeout awaiting",
		"temporary failure in name resolution",
		"socket hang up",
	}
	for _, pattern := range networkPatterns {
		if strings.Contains(lower, pattern) {
			return ErrorClassRetryable
		}
	}

	return ErrorClassFatal
}

// IsRetryable reports whether err should put the platform into backoff.
func IsRetryable(err error) bool {
	return Classify(err) == ErrorClassRetryable
}
