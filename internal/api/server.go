// Package api implements the HTTP handlers of the driver status service.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"driverstatus/internal/auth"
	"driverstatus/internal/metrics"
	"driverstatus/internal/service"
)

// Pinger is a dependency checked by /readyz.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Server struct {
	Service *service.Service
	Auth    *auth.Verifier
	Broker  EventBroker
	Limiter *RateLimiter // nil disables rate limiting
	Log     *zap.Logger
	// Deps are pinged by the readiness probe (Postgres, Redis).
	Deps map[string]Pinger
	// Settings is a redacted view of the configuration for /debug/info.
	Settings map[string]any
}

// Routes registers every endpoint on a new mux.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	// Office
	mux.HandleFunc("/v1/snapshots", s.SnapshotsHandler)
	mux.HandleFunc("/api/upload", s.SnapshotsHandler) // legacy upload clients
	mux.HandleFunc("/v1/manual-messages/", s.ManualMessageHandler)

	// Driver
	mux.Handle("/v1/status", s.limit(http.HandlerFunc(s.StatusHandler)))
	mux.Handle("/v1/route", s.limit(http.HandlerFunc(s.RouteHandler)))
	mux.Handle("/v1/subscriptions", s.limit(http.HandlerFunc(s.SubscriptionsHandler)))
	mux.Handle("/v1/status/ws", s.limit(http.HandlerFunc(s.StatusWSHandler)))

	// Health
	mux.HandleFunc("/healthz", s.HealthHandler)
	mux.HandleFunc("/readyz", s.ReadyHandler)

	// Ops
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/debug/info", s.DebugJSON)
	mux.HandleFunc("/openapi.yaml", s.OpenAPIHandler)
	mux.HandleFunc("/openapi.json", s.OpenAPIJSONHandler)
	mux.HandleFunc("/docs", s.DocsHandler)
	return mux
}

// Handler is Routes wrapped in the access log and metrics middleware.
func (s *Server) Handler() http.Handler {
	return instrument(s.log(), s.Routes())
}

func (s *Server) limit(next http.Handler) http.Handler {
	if s.Limiter == nil {
		return next
	}
	return s.Limiter.Middleware(next)
}

func (s *Server) log() *zap.Logger {
	if s.Log == nil {
		return zap.NewNop()
	}
	return s.Log
}

func (s *Server) now() time.Time {
	if s.Service != nil && s.Service.Now != nil {
		return s.Service.Now()
	}
	return time.Now()
}

// pingWithTimeout bounds a readiness check to two seconds.
func pingWithTimeout(r *http.Request, dep Pinger) error {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	return dep.Ping(ctx)
}
