// Package server exposes the operational HTTP surface: liveness, readiness,
// a JSON status view of the notifier and Prometheus metrics. Every request
// carries a correlation ID in its context for consistent logging.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noxrp/stream-notifier/poller"
)

// StatusSource provides the latest notifier snapshot. *poller.Poller
// implements it.
type StatusSource interface {
	Snapshot() poller.Snapshot
}

var _ StatusSource = (*poller.Poller)(nil)

// NewMux returns the HTTP handler with all routes.
func NewMux(src StatusSource) http.Handler {
	return newMux(src, time.Now)
}

func newMux(src StatusSource, now func() time.Time) http.Handler {
	h := &handlers{src: src, now: now}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(correlation)
	r.Use(tracing)

	r.Get("/healthz", h.healthz)
	r.Get("/readyz", h.readyz)
	r.Get("/status", h.status)
	r.Handle("/metrics", promhttp.Handler())
	return r
}

// Start runs the HTTP server and shuts down gracefully on context cancellation.
func Start(ctx context.Context, src StatusSource, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           NewMux(src),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("http server shutdown error", slog.Any("err", err))
		}
	}()

	slog.Info("http server listening", slog.String("addr", addr), slog.String("component", "http"))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("http server error", slog.Any("err", err))
		return err
	}
	return nil
}
