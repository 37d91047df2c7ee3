package api

import (
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pixelwall/pixelwall/internal/broadcast"
	"github.com/pixelwall/pixelwall/internal/metrics"
	"github.com/pixelwall/pixelwall/internal/processor"
	"github.com/pixelwall/pixelwall/internal/storage"
)

// NewServer assembles the full HTTP surface: the huma JSON API, probes,
// Prometheus metrics, and the WebSocket endpoint. hub may be nil when the
// realtime endpoint is not wanted (tests).
func NewServer(logger *slog.Logger, store storage.Store, proc *processor.Processor, hub *broadcast.Hub, backends map[string]Pinger) http.Handler {
	mux := chi.NewRouter()

	mux.Use(RequestID)
	mux.Use(Logging(logger))
	mux.Use(Recovery(logger))
	mux.Use(metrics.Metrics)

	humaAPI := humachi.New(mux, huma.DefaultConfig("pixelwall", "1.0.0"))
	registerPaymentRoutes(humaAPI, NewPaymentHandler(proc, logger))
	registerGridRoutes(humaAPI, NewGridHandler(store, logger))

	health := NewHealthHandler(backends, logger)
	mux.Get("/livez", health.Livez)
	mux.Get("/readyz", health.Readyz)
	mux.Handle("/metrics", promhttp.Handler())

	if hub != nil {
		mux.Handle("/v1/live", hub)
	}

	return mux
}
