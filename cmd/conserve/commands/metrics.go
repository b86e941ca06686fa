package commands

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/marmos91/conserve/internal/logger"
	"github.com/marmos91/conserve/pkg/metrics"
)

// maybeServeMetrics starts a minimal chi-routed Prometheus endpoint for
// the lifetime of a long-running command, the way the teacher's own
// pkg/api router is built, reduced to the one /metrics route this CLI
// needs. It returns a shutdown func to defer; a no-op if --metrics-addr
// was not set.
func maybeServeMetrics(addr string) func() {
	if addr == "" {
		return func() {}
	}

	reg := metrics.InitRegistry()

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	srv := &http.Server{Addr: addr, Handler: r}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Warn("metrics server stopped", "error", err)
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
