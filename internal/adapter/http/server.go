package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/brewery-data-etl/internal/pipeline"
)

// RunReporter is the pipeline view the server needs: readiness plus the
// outcome of the latest scheduled run.
type RunReporter interface {
	sharedobs.ReadinessChecker
	LastRun() (pipeline.RunStatus, bool)
}

// Server exposes health, readiness, last-run, and metrics endpoints while
// the scheduler is running.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates the schedule-mode HTTP server. /readyz turns 200 after
// the first successful run; /runs/last reports the latest run's outcome and
// the stage it failed at.
func NewServer(addr string, runs RunReporter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       10 * time.Second,
			WriteTimeout:      10 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		logger: logger,
	}

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(runs))
	mux.HandleFunc("GET /runs/last", lastRunHandler(runs))
	mux.Handle("GET /metrics", promhttp.Handler())

	return s
}

func lastRunHandler(runs RunReporter) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		status, ok := runs.LastRun()
		if !ok {
			sharedobs.WriteJSON(w, http.StatusNotFound, map[string]string{"error": "no pipeline run has finished yet"})
			return
		}
		sharedobs.WriteJSON(w, http.StatusOK, status)
	}
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}
