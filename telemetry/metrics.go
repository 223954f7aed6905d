// Package telemetry provides Prometheus metrics, OpenTelemetry tracing and
// correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	TicksTotal          prometheus.Counter
	TicksSkipped        prometheus.Counter
	PlatformRequests    *prometheus.CounterVec
	PlatformFailures    *prometheus.CounterVec
	NotificationsSent   *prometheus.CounterVec
	NotificationsDelete *prometheus.CounterVec
	NotificationsFailed *prometheus.CounterVec

	// Histograms (seconds)
	TickDuration prometheus.Observer

	// Gauges
	BackoffGauge   *prometheus.GaugeVec // 1=backing off,0=healthy
	ActiveMessages *prometheus.GaugeVec
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		TicksTotal = promauto.NewCounter(prometheus.CounterOpts{Name: "notifier_ticks_total", Help: "Number of completed poll ticks"})
		TicksSkipped = promauto.NewCounter(prometheus.CounterOpts{Name: "notifier_ticks_skipped_total", Help: "Number of ticks skipped because one was already running"})
		PlatformRequests = promauto.NewCounterVec(prometheus.CounterOpts{Name: "notifier_platform_requests_total", Help: "Platform API requests by status"}, []string{"platform", "endpoint", "status"})
		PlatformFailures = promauto.NewCounterVec(prometheus.CounterOpts{Name: "notifier_platform_failures_total", Help: "Recorded platform failures"}, []string{"platform", "retryable"})
		NotificationsSent = promauto.NewCounterVec(prometheus.CounterOpts{Name: "notifier_notifications_sent_total", Help: "Live notifications sent"}, []string{"platform"})
		NotificationsDelete = promauto.NewCounterVec(prometheus.CounterOpts{Name: "notifier_notifications_deleted_total", Help: "Live notifications deleted (or found already gone)"}, []string{"platform"})
		NotificationsFailed = promauto.NewCounterVec(prometheus.CounterOpts{Name: "notifier_notifications_failed_total", Help: "Failed notification operations"}, []string{"platform", "op"})
		TickDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "notifier_tick_duration_seconds", Help: "Tick duration seconds", Buckets: prometheus.DefBuckets})
		BackoffGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{Name: "notifier_platform_backoff", Help: "Platform backoff active=1 healthy=0"}, []string{"platform"})
		ActiveMessages = promauto.NewGaugeVec(prometheus.GaugeOpts{Name: "notifier_active_messages", Help: "Tracked live notification messages"}, []string{"platform"})
	})
}

// ObservePlatformRequest counts one platform HTTP request.
func ObservePlatformRequest(platform, endpoint, status string) {
	if PlatformRequests != nil {
		PlatformRequests.WithLabelValues(platform, endpoint, status).Inc()
	}
}

// ObservePlatformFailure counts one recorded platform failure.
func ObservePlatformFailure(platform string, retryable bool) {
	if PlatformFailures == nil {
		return
	}
	r := "false"
	if retryable {
		r = "true"
	}
	PlatformFailures.WithLabelValues(platform, r).Inc()
}

// SetBackoff sets the platform backoff gauge.
func SetBackoff(platform string, active bool) {
	if BackoffGauge == nil {
		return
	}
	if active {
		BackoffGauge.WithLabelValues(platform).Set(1)
	} else {
		BackoffGauge.WithLabelValues(platform).Set(0)
	}
}

// SetActiveMessages records the number of tracked notifications for a platform.
func SetActiveMessages(platform string, n int) {
	if ActiveMessages != nil {
		ActiveMessages.WithLabelValues(platform).Set(float64(n))
	}
}

// CountNotification bumps the sent/deleted counters.
func CountNotification(platform, op string) {
	switch op {
	case "sent":
		if NotificationsSent != nil {
			NotificationsSent.WithLabelValues(platform).Inc()
		}
	case "deleted":
		if NotificationsDelete != nil {
			NotificationsDelete.WithLabelValues(platform).Inc()
		}
	}
}

// CountNotificationFailure bumps the failure counter for op (send, delete, probe, role).
func CountNotificationFailure(platform, op string) {
	if NotificationsFailed != nil {
		NotificationsFailed.WithLabelValues(platform, op).Inc()
	}
}

// CountTick records a finished or skipped tick.
func CountTick(skipped bool) {
	if skipped {
		if TicksSkipped != nil {
			TicksSkipped.Inc()
		}
		return
	}
	if TicksTotal != nil {
		TicksTotal.Inc()
	}
}

// TimeFunc measures the duration of fn and records in observer if non-nil.
func TimeFunc(obs prometheus.Observer, fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)
	if obs != nil {
		obs.Observe(d.Seconds())
	}
	return d
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding the correlation id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	v := ctx.Value(corrKey)
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
