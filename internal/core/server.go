// Package core is the HazardWatch admin HTTP surface: health, Prometheus
// metrics, run-now, job triggers, stats and alert inspection. It is served by
// the scheduler process on a chi router. There is no authentication; the
// listener is expected to sit on a private network.
package core

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"

	"hazardwatch/internal/config"
	"hazardwatch/internal/observability"
	"hazardwatch/internal/scheduler"
	"hazardwatch/internal/types"
)

// JobRunner is the subset of scheduler.Scheduler the API drives.
type JobRunner interface {
	RunNow(ctx context.Context) (scheduler.RunReport, error)
	RunJob(ctx context.Context, name string) (scheduler.RunReport, error)
	Stats() observability.StatsSnapshot
	Running() bool
}

// AlertQuery is the subset of db.AlertRepository the API reads and updates.
type AlertQuery interface {
	ListActive(ctx context.Context, region string, since time.Time) ([]types.Alert, error)
	GetByID(ctx context.Context, id string) (*types.Alert, error)
	Cancel(ctx context.Context, id string) error
}

// Server holds the admin API dependencies.
type Server struct {
	Config       *config.Config
	Jobs         JobRunner
	Alerts       AlertQuery
	Logger       *slog.Logger
	Validator    *Validator
	Metrics      *observability.Metrics // optional
	Gatherer     prometheus.Gatherer    // source for /metrics; defaults to the global registry
	HealthProbes []HealthProbe
	Clock        clockwork.Clock

	router *chi.Mux
}

// NewServer validates the required dependencies. Callers add probes and
// metrics, then call MountRoutes.
func NewServer(cfg *config.Config, jobs JobRunner, alerts AlertQuery, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if jobs == nil {
		return nil, fmt.Errorf("job runner must not be nil")
	}
	if alerts == nil {
		return nil, fmt.Errorf("alert query must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}

	return &Server{
		Config:    cfg,
		Jobs:      jobs,
		Alerts:    alerts,
		Logger:    logger,
		Validator: NewValidator(),
		Gatherer:  prometheus.DefaultGatherer,
		Clock:     clockwork.NewRealClock(),
		router:    chi.NewRouter(),
	}, nil
}

// Handler returns the router for http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router exposes the chi.Mux for tests that register extra routes.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// ListenAndServe serves on the configured port until ctx is cancelled, then
// drains in-flight requests for up to ShutdownTimeout.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              ":" + s.Config.Server.Port,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.Logger.Info("admin server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err == nil {
			return nil
		}
		return fmt.Errorf("admin server: %w", err)
	case <-ctx.Done():
	}

	s.Logger.Info("admin server shutdown initiated")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.Config.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("admin server shutdown: %w", err)
	}
	s.Logger.Info("admin server shutdown complete")
	return nil
}
