// Package status exposes the local HTTP interface for the miner: a
// status snapshot, Prometheus metrics, and a health probe.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/histocoin/artifact-miner/internal/metrics"
)

// Reporter supplies the driver's current state for the status endpoint.
type Reporter interface {
	State() (status string, currentSource string)
}

// Server wires HTTP handlers to the pipeline state.
type Server struct {
	router   chi.Router
	reporter Reporter
	logger   *zap.Logger
	httpSrv  *http.Server
}

// NewServer constructs a Server with routes bound to the reporter.
func NewServer(port int, reporter Reporter, logger *zap.Logger) *Server {
	s := &Server{
		reporter: reporter,
		logger:   logger,
	}
	r := chi.NewRouter()
	r.Get("/status", s.status)
	r.Get("/healthz", s.healthz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	s.router = r
	s.httpSrv = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until the context is canceled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	s.logger.Info("status server listening", zap.String("addr", s.httpSrv.Addr))

	select {
	case err := <-errCh:
		return fmt.Errorf("status server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpSrv.Shutdown(shutdownCtx)
	}
}

func (s *Server) status(w http.ResponseWriter, _ *http.Request) {
	state, current := s.reporter.State()
	writeJSON(w, http.StatusOK, map[string]string{
		"status":         state,
		"current_source": current,
	})
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		zap.L().Error("status response write failed", zap.Error(err))
	}
}
