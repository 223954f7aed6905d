// Package health tracks per-platform failures and gates polling while a
// platform is backing off.
//
// A platform is healthy when ConsecutiveFailures is 0 and NextAllowedAt is 0,
// and backing off while NextAllowedAt lies in the future. Only retryable
// failures (see platform.Classify) move a platform into backoff; other
// failures are recorded and retried on the next regular tick.
package health

import (
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/noxrp/stream-notifier/platform"
	"github.com/noxrp/stream-notifier/store"
	"github.com/noxrp/stream-notifier/telemetry"
)

const (
	BaseDelay          = 30 * time.Second
	RateLimitBaseDelay = 60 * time.Second
	MaxDelay           = 10 * time.Minute
	MaxDoublings       = 6
	MaxJitter          = 5 * time.Second
	LogEvery           = 5 * time.Minute
)

// Backoff returns the delay before the next attempt after n consecutive
// failures ending with err, without jitter:
//
//	base = 30s, or 60s for HTTP 429, raised to Retry-After when larger
//	delay = min(10m, base * 2^min(6, max(0, n-1)))
func Backoff(err error, n int) time.Duration {
	base := BaseDelay
	if platform.StatusCode(err) == 429 {
		base = RateLimitBaseDelay
	}
	if ra := platform.RetryAfter(err); ra > base {
		base = ra
	}
	exp := n - 1
	if exp < 0 {
		exp = 0
	}
	if exp > MaxDoublings {
		exp = MaxDoublings
	}
	d := base * time.Duration(1<<exp)
	if d > MaxDelay {
		d = MaxDelay
	}
	return d
}

// Tracker applies health transitions to the PlatformHealth records of a
// State. It holds no state of its own; callers serialize access to the
// records they pass in.
type Tracker struct {
	now    func() time.Time
	jitter func() time.Duration
	logger *slog.Logger
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock injects the time source.
func WithClock(now func() time.Time) Option { return func(t *Tracker) { t.now = now } }

// WithJitter injects the jitter source.
func WithJitter(j func() time.Duration) Option { return func(t *Tracker) { t.jitter = j } }

// WithLogger sets the logger for failure reports.
func WithLogger(l *slog.Logger) Option { return func(t *Tracker) { t.logger = l } }

// NewTracker returns a tracker using the wall clock and 0-5s random jitter.
func NewTracker(opts ...Option) *Tracker {
	t := &Tracker{
		now:    time.Now,
		jitter: func() time.Duration { return time.Duration(rand.Int64N(int64(MaxJitter))) },
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Now returns the tracker clock.
func (t *Tracker) Now() time.Time { return t.now() }

// InBackoff reports whether polling p is currently suppressed.
func (t *Tracker) InBackoff(h *store.PlatformHealth) bool {
	return h.NextAllowedAt > 0 && t.now().UnixMilli() < h.NextAllowedAt
}

// RecordSuccess resets the failure count and clears any backoff.
func (t *Tracker) RecordSuccess(p platform.Name, h *store.PlatformHealth) {
	h.ConsecutiveFailures = 0
	h.NextAllowedAt = 0
	h.LastSuccessAt = t.now().UnixMilli()
	telemetry.SetBackoff(string(p), false)
}

// RecordFailure counts a failure of operation op and, for retryable errors,
// schedules the next allowed attempt. It reports whether err was retryable.
func (t *Tracker) RecordFailure(p platform.Name, h *store.PlatformHealth, op string, err error) bool {
	now := t.now()
	h.ConsecutiveFailures++

	retryable := platform.IsRetryable(err)
	if retryable {
		delay := Backoff(err, h.ConsecutiveFailures) + t.jitter()
		next := now.Add(delay).UnixMilli()
		// a later failure never pulls the deadline earlier
		if next > h.NextAllowedAt {
			h.NextAllowedAt = next
		}
		telemetry.SetBackoff(string(p), true)
	}
	telemetry.ObservePlatformFailure(string(p), retryable)

	label := op
	if label == "" {
		label = string(p)
	}
	if code := platform.StatusCode(err); code != 0 {
		h.LastError = fmt.Sprintf("%s: HTTP %d %v", label, code, err)
	} else {
		h.LastError = fmt.Sprintf("%s: %v", label, err)
	}
	h.LastErrorAt = now.UnixMilli()

	if now.UnixMilli()-h.LastLoggedAt > LogEvery.Milliseconds() {
		h.LastLoggedAt = now.UnixMilli()
		until := "none"
		if h.NextAllowedAt > 0 {
			until = time.UnixMilli(h.NextAllowedAt).UTC().Format(time.RFC3339)
		}
		t.logger.Error("platform api error",
			slog.String("platform", string(p)),
			slog.Int("failures", h.ConsecutiveFailures),
			slog.String("backoff_until", until),
			slog.Bool("retryable", retryable),
			slog.String("err", h.LastError))
	}
	return retryable
}
