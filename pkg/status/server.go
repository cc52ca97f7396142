package status

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mzau/mlxk-launcher/pkg/logging"
)

// Server serves the session status on a localhost address.
// Routes: GET /healthz (JSON session view), GET /metrics (Prometheus).
type Server struct {
	exporter   *Exporter
	logger     *logging.Logger
	httpServer *http.Server
	listener   net.Listener
}

// NewServer creates a status server bound to addr (e.g. 127.0.0.1:11438)
func NewServer(addr string, exporter *Exporter, logger *logging.Logger) *Server {
	s := &Server{
		exporter: exporter,
		logger:   logger,
	}

	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.handleHealthz).Methods("GET")
	r.Handle("/metrics", promhttp.HandlerFor(exporter.Registry(), promhttp.HandlerOpts{})).Methods("GET")

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}
	return s
}

// Start begins listening and serving in the background
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("status server listen on %s: %w", s.httpServer.Addr, err)
	}
	s.listener = ln
	s.logger.Info(fmt.Sprintf("Status endpoint listening on http://%s", ln.Addr()))

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error(fmt.Sprintf("Status server error: %v", err))
		}
	}()
	return nil
}

// Addr returns the bound address once Start has succeeded
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.httpServer.Addr
	}
	return s.listener.Addr().String()
}

// Shutdown stops the server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	snapshot := s.exporter.Snapshot()

	w.Header().Set("Content-Type", "application/json")
	if snapshot.State == StateExited {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	if err := json.NewEncoder(w).Encode(snapshot); err != nil {
		s.logger.Error(fmt.Sprintf("Failed to encode health response: %v", err))
	}
}
