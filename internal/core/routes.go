package core

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"hazardwatch/internal/types"
)

// defaultRequestTimeout applies when Server.RequestTimeout is unset.
const defaultRequestTimeout = 5 * time.Minute

// MountRoutes registers the middleware chain and every route.
//
// Middleware order:
//  1. Recoverer        outermost, catches panics from everything below
//  2. ContextTimeout
//  3. RequestID
//  4. SecurityHeaders
//  5. RequestLogger
//  6. Metrics
func (s *Server) MountRoutes() {
	s.router.Use(s.Recoverer)
	s.router.Use(ContextTimeoutMiddleware(s.requestTimeout()))
	s.router.Use(RequestIDMiddleware)
	s.router.Use(SecurityHeadersMiddleware)
	s.router.Use(RequestLogger(s.Logger))
	s.router.Use(s.MetricsMiddleware)

	s.router.Get("/health", s.HandleHealth)
	s.router.Handle("/metrics", promhttp.HandlerFor(s.Gatherer, promhttp.HandlerOpts{}))

	s.router.Route("/v1", func(r chi.Router) {
		r.Post("/jobs/run-now", s.handleRunNow)
		r.Post("/jobs/run", s.handleRunJob)
		r.Post("/jobs/{job}/run", s.handleRunNamedJob)
		r.Get("/stats", s.handleStats)

		r.Get("/alerts", s.handleListAlerts)
		r.Get("/alerts/{id}", s.handleGetAlert)
		r.Post("/alerts/{id}/cancel", s.handleCancelAlert)
	})
}

func (s *Server) requestTimeout() time.Duration {
	if s.Config != nil && s.Config.Server.RequestTimeout > 0 {
		return s.Config.Server.RequestTimeout
	}
	return defaultRequestTimeout
}

// ContextTimeoutMiddleware sets a deadline on the request context.
func ContextTimeoutMiddleware(duration time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), duration)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequestIDMiddleware reuses an incoming X-Request-Id or generates a UUID,
// stores it in the context and echoes it on the response.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-Id")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", requestID)
		next.ServeHTTP(w, r.WithContext(types.WithRequestID(r.Context(), requestID)))
	})
}
