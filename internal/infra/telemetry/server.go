package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"tooldeck/internal/infra/catalog"
	"tooldeck/internal/infra/health"
)

// HTTPServerOptions configures the diagnostics endpoint. Everything is
// read-only: the server surfaces catalog and health state, it never mutates
// engine state.
type HTTPServerOptions struct {
	Addr          string
	EnableMetrics bool
	Health        *health.Tracker
	Catalog       *catalog.Store
	Registry      prometheus.Gatherer
}

// HealthReport is the /healthz payload.
type HealthReport struct {
	Status    string               `json:"status"`
	Unhealthy []health.NamedRecord `json:"unhealthy,omitempty"`
}

// StartHTTPServer serves /metrics, /healthz and /tools until ctx is done.
func StartHTTPServer(ctx context.Context, opts HTTPServerOptions, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}

	addr := opts.Addr
	if addr == "" {
		addr = "127.0.0.1:9090"
	}

	registry := opts.Registry
	if registry == nil {
		registry = prometheus.DefaultGatherer
	}

	mux := http.NewServeMux()
	if opts.EnableMetrics {
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	}
	mux.Handle("/healthz", healthHandler(opts.Health))
	if opts.Catalog != nil {
		mux.Handle("/tools", toolsHandler(opts.Catalog))
	}

	server := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	errChan := make(chan error, 1)
	go func() {
		logger.Info("observability server listening",
			zap.String("addr", server.Addr),
			zap.Bool("metrics", opts.EnableMetrics),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return fmt.Errorf("observability server failed to start: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("observability server shutdown error", zap.Error(err))
			return err
		}
		logger.Info("observability server stopped")
		return nil
	}
}

func healthHandler(tracker *health.Tracker) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		report := HealthReport{Status: "ok"}
		if tracker != nil {
			report.Unhealthy = tracker.AllUnhealthy()
			if len(report.Unhealthy) > 0 {
				report.Status = "degraded"
			}
		}

		// Degraded tools never make the process unhealthy: isolation is the
		// whole point, so /healthz stays 200 while naming the broken tools.
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(report)
	})
}

func toolsHandler(store *catalog.Store) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		filter := catalog.Filter{
			Type:        r.URL.Query().Get("type"),
			Category:    r.URL.Query().Get("category"),
			NamePattern: r.URL.Query().Get("name"),
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(store.List(filter))
	})
}
