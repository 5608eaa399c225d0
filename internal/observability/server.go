// Package observability serves the metrics registry and health probes over
// HTTP.
package observability

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/samber/oops"
)

// ReadinessChecker reports whether the application can serve requests.
type ReadinessChecker func(ctx context.Context) bool

// Server exposes /metrics, /healthz/liveness and /healthz/readiness.
type Server struct {
	addr     string
	gatherer prometheus.Gatherer
	isReady  ReadinessChecker
	log      *slog.Logger

	listener   net.Listener
	httpServer *http.Server
	running    atomic.Bool
}

// NewServer creates a server for addr ("host:port"; port 0 picks a free one).
func NewServer(addr string, gatherer prometheus.Gatherer, isReady ReadinessChecker, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		addr:     addr,
		gatherer: gatherer,
		isReady:  isReady,
		log:      log.With("component", "observability"),
	}
}

// Handler returns the route mux. It is exported for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))
	mux.HandleFunc("/healthz/liveness", func(w http.ResponseWriter, _ *http.Request) {
		writeStatus(w, http.StatusOK, "ok\n")
	})
	mux.HandleFunc("/healthz/readiness", s.handleReadiness)
	return mux
}

// Start listens and serves in the background. The returned channel receives
// a serve failure and is closed when the server stops.
func (s *Server) Start() (<-chan error, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, oops.Errorf("observability server already running")
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.running.Store(false)
		return nil, oops.With("addr", s.addr).Wrap(err)
	}
	s.listener = listener

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.httpServer = srv

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("observability server error", slog.String("error", err.Error()))
			errCh <- err
		}
	}()

	s.log.Info("observability server started", slog.String("addr", listener.Addr().String()))
	return errCh, nil
}

// Stop shuts the server down gracefully. Stopping a stopped server is a no-op.
func (s *Server) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.running.Store(true)
		return oops.With("operation", "shutdown observability server").Wrap(err)
	}
	s.log.Info("observability server stopped")
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	if s.isReady == nil || s.isReady(r.Context()) {
		writeStatus(w, http.StatusOK, "ok\n")
		return
	}
	writeStatus(w, http.StatusServiceUnavailable, "not ready\n")
}

func writeStatus(w http.ResponseWriter, code int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(code)
	_, _ = w.Write([]byte(body))
}
