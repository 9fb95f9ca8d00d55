// Package health serves the process liveness endpoint. It reports on the
// process itself, never on individual workers: a dead worker does not make
// the platform unhealthy.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"
)

// Status is the /healthz payload.
type Status struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Workers int    `json:"workers"`
	Uptime  string `json:"uptime"`
}

// Server is a minimal liveness HTTP responder.
type Server struct {
	srv     *http.Server
	addr    string
	logger  *slog.Logger
	version string
	workers func() int
	started time.Time
}

// New builds a Server. workers reports the live worker count and may be
// nil.
func New(host string, port int, version string, workers func() int, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		addr:    net.JoinHostPort(host, fmt.Sprintf("%d", port)),
		logger:  logger,
		version: version,
		workers: workers,
		started: time.Now(),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	s.srv = &http.Server{
		Addr:         s.addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	count := 0
	if s.workers != nil {
		count = s.workers()
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(Status{
		Status:  "ok",
		Version: s.version,
		Workers: count,
		Uptime:  time.Since(s.started).Truncate(time.Second).String(),
	})
}

// Addr returns the configured listen address.
func (s *Server) Addr() string { return s.addr }

// Run serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	errc := make(chan error, 1)
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errc <- err
		}
	}()
	s.logger.Info("health endpoint listening", "addr", s.addr)

	select {
	case err := <-errc:
		return fmt.Errorf("health server: %w", err)
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.srv.Shutdown(shutCtx)
	}
}
