package platform

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"syscall"
	"testing"
	"time"
)

func TestErrorClassString(t *testing.T) {
	tests := []struct {
		class ErrorClass
		want  string
	}{
		{ErrorClassRetryable, "retryable"},
		{ErrorClassFatal, "fatal"},
		{ErrorClassUnknown, "unknown"},
		{ErrorClass(999), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.class.String(); got != tt.want {
				t.Errorf("ErrorClass.String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestClassify_Retryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"429", &APIError{Service: "kick", StatusCode: http.StatusTooManyRequests}},
		{"500", &APIError{Service: "kick", StatusCode: 500}},
		{"503 wrapped", fmt.Errorf("fetch: %w", &APIError{Service: "twitch", StatusCode: 503})},
		{"deadline", fmt.Errorf("get: %w", context.DeadlineExceeded)},
		{"econnreset", &net.OpError{Op: "read", Err: syscall.ECONNRESET}},
		{"econnaborted", fmt.Errorf("dial: %w", syscall.ECONNABORTED)},
		{"etimedout", fmt.Errorf("dial: %w", syscall.ETIMEDOUT)},
		{"dns temporary", &net.DNSError{Err: "server misbehaving", Name: "api.kick.com", IsTemporary: true}},
		{"text reset", errors.New("read tcp 1.2.3.4: connection reset by peer")},
		{"text i/o timeout", errors.New("dial tcp: i/o timeout")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != ErrorClassRetryable {
				t.Errorf("Classify(%v) = %v, want retryable", tt.err, got)
			}
			if !IsRetryable(tt.err) {
				t.Errorf("IsRetryable(%v) = false", tt.err)
			}
		})
	}
}

func TestClassify_Fatal(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"400", &APIError{StatusCode: 400}},
		{"401", &APIError{StatusCode: 401}},
		{"404", &APIError{StatusCode: 404}},
		{"not configured", fmt.Errorf("kick app token: %w", ErrNotConfigured)},
		{"category not found", ErrCategoryNotFound},
		{"decode", errors.New("decode: unexpected EOF in JSON")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != ErrorClassFatal {
				t.Errorf("Classify(%v) = %v, want fatal", tt.err, got)
			}
		})
	}
}

func TestClassify_Nil(t *testing.T) {
	if got := Classify(nil); got != ErrorClassUnknown {
		t.Errorf("Classify(nil) = %v, want unknown", got)
	}
	if IsRetryable(nil) {
		t.Error("IsRetryable(nil) = true")
	}
}

func TestParseRetryAfter(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"120", 120 * time.Second},
		{" 5 ", 5 * time.Second},
		{"", 0},
		{"0", 0},
		{"-3", 0},
		{"Wed, 21 Oct 2015 07:28:00 GMT", 0},
	}
	for _, tt := range tests {
		if got := ParseRetryAfter(tt.in); got != tt.want {
			t.Errorf("ParseRetryAfter(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestAPIErrorAccessors(t *testing.T) {
	resp := &http.Response{StatusCode: 429, Header: http.Header{"Retry-After": []string{"120"}}}
	err := fmt.Errorf("wrapped: %w", NewAPIError("kick", "/channels", resp, "slow down"))

	if got := StatusCode(err); got != 429 {
		t.Errorf("StatusCode = %d, want 429", got)
	}
	if got := RetryAfter(err); got != 120*time.Second {
		t.Errorf("RetryAfter = %v, want 2m", got)
	}
	if StatusCode(errors.New("plain")) != 0 || RetryAfter(errors.New("plain")) != 0 {
		t.Error("accessors on non-API error should be zero")
	}
}

func TestIDUnmarshal(t *testing.T) {
	tests := []struct {
		in   string
		want ID
	}{
		{`15`, "15"},
		{`"15"`, "15"},
		{`null`, ""},
		{`" 7 "`, "7"},
	}
	for _, tt := range tests {
		var id ID
		if err := id.UnmarshalJSON([]byte(tt.in)); err != nil {
			t.Fatalf("UnmarshalJSON(%s): %v", tt.in, err)
		}
		if id != tt.want {
			t.Errorf("UnmarshalJSON(%s) = %q, want %q", tt.in, id, tt.want)
		}
	}
}

func TestNormalizeHandle(t *testing.T) {
	if got := NormalizeHandle("  FooBar "); got != "foobar" {
		t.Errorf("NormalizeHandle = %q", got)
	}
}
