package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/noxrp/stream-notifier/poller"
)

// readyFactor is how many intervals may pass without a tick before the
// process reports not ready.
const readyFactor = 3

type handlers struct {
	src StatusSource
	now func() time.Time
}

// healthz only reports that the process is serving.
func (h *handlers) healthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// readyz checks that state is loaded and ticks are still running.
func (h *handlers) readyz(w http.ResponseWriter, _ *http.Request) {
	snap := h.src.Snapshot()
	checks := []struct {
		name string
		fn   func() error
	}{
		{"state", func() error {
			if snap.Interval <= 0 {
				return fmt.Errorf("state not loaded")
			}
			return nil
		}},
		{"tick", func() error {
			if snap.LastTickAt.IsZero() {
				return fmt.Errorf("no tick completed yet")
			}
			if age := h.now().Sub(snap.LastTickAt); age > readyFactor*snap.Interval {
				return fmt.Errorf("last tick %s ago exceeds %s", age.Truncate(time.Second), readyFactor*snap.Interval)
			}
			return nil
		}},
	}

	for _, check := range checks {
		if err := check.fn(); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status":       "not_ready",
				"failed_check": check.name,
				"error":        err.Error(),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type statusResponse struct {
	LastTickAt         *time.Time     `json:"lastTickAt"`
	LastTickDurationMs int64          `json:"lastTickDurationMs"`
	IntervalSeconds    int            `json:"checkIntervalSeconds"`
	DiscoveryMode      bool           `json:"discoveryMode"`
	NotifyChannelSet   bool           `json:"notifyChannelSet"`
	Kick               platformStatus `json:"kick"`
	Twitch             platformStatus `json:"twitch"`
}

type platformStatus struct {
	Enabled             bool   `json:"enabled"`
	Tracked             int    `json:"tracked"`
	ActiveMessages      int    `json:"activeMessages"`
	InBackoff           bool   `json:"inBackoff"`
	ConsecutiveFailures int    `json:"consecutiveFailures"`
	NextAllowedAt       int64  `json:"nextAllowedAt,omitempty"`
	LastError           string `json:"lastError,omitempty"`
	LastErrorAt         int64  `json:"lastErrorAt,omitempty"`
	LastSuccessAt       int64  `json:"lastSuccessAt,omitempty"`
}

// status reports tick metadata and per-platform health. Secrets and the
// keyword are left out.
func (h *handlers) status(w http.ResponseWriter, _ *http.Request) {
	snap := h.src.Snapshot()
	now := h.now()
	resp := statusResponse{
		LastTickDurationMs: snap.LastTickMs,
		IntervalSeconds:    snap.IntervalSeconds,
		DiscoveryMode:      snap.Settings.DiscoveryMode,
		NotifyChannelSet:   snap.Settings.NotifyChannelID != "",
	}
	if !snap.LastTickAt.IsZero() {
		t := snap.LastTickAt.UTC()
		resp.LastTickAt = &t
	}
	resp.Kick = newPlatformStatus(snap.Kick, now)
	resp.Twitch = newPlatformStatus(snap.Twitch, now)
	writeJSON(w, http.StatusOK, resp)
}

func newPlatformStatus(p poller.PlatformSnapshot, now time.Time) platformStatus {
	return platformStatus{
		Enabled:             p.Enabled,
		Tracked:             p.Tracked,
		ActiveMessages:      p.Active,
		InBackoff:           p.InBackoff(now),
		ConsecutiveFailures: p.Health.ConsecutiveFailures,
		NextAllowedAt:       p.Health.NextAllowedAt,
		LastError:           p.Health.LastError,
		LastErrorAt:         p.Health.LastErrorAt,
		LastSuccessAt:       p.Health.LastSuccessAt,
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
