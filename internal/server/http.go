package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/albedosehen/certvault/internal/config"
	"github.com/albedosehen/certvault/internal/observability"
)

type httpServer struct {
	server   *http.Server
	listener net.Listener
	handler  http.Handler
	cfg      config.ServerConfig
	logger   observability.Logger
	metrics  observability.MetricsCollector

	running   int32
	startTime time.Time
}

// NewHTTPServer builds the API listener around a routed handler.
func NewHTTPServer(
	cfg config.ServerConfig,
	handler http.Handler,
	logger observability.Logger,
	metrics observability.MetricsCollector,
) HTTPServer {
	s := &httpServer{
		cfg:     cfg,
		handler: handler,
		logger:  logger.WithFields(observability.Component("server")),
		metrics: metrics,
	}

	s.server = &http.Server{
		Addr:         cfg.GetServerAddress(),
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
		ConnState:    s.onConnStateChange,
	}
	return s
}

func (s *httpServer) onConnStateChange(_ net.Conn, state http.ConnState) {
	switch state {
	case http.StateNew:
		s.metrics.IncActiveConnections()
	case http.StateClosed, http.StateHijacked:
		s.metrics.DecActiveConnections()
	}
}

func (s *httpServer) Start(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&s.running, 0, 1) {
		return fmt.Errorf("server is already running")
	}
	s.startTime = time.Now()

	listener, err := net.Listen("tcp", s.cfg.GetServerAddress())
	if err != nil {
		atomic.StoreInt32(&s.running, 0)
		return fmt.Errorf("failed to create listener: %w", err)
	}
	s.listener = listener

	s.logger.Info(ctx, "http server starting",
		observability.String("address", listener.Addr().String()))

	if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
		atomic.StoreInt32(&s.running, 0)
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

func (s *httpServer) Stop(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&s.running, 1, 0) {
		return nil
	}

	timeout := s.cfg.GracefulTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	s.logger.Info(ctx, "http server stopped",
		observability.Duration("uptime", time.Since(s.startTime)))
	return nil
}

func (s *httpServer) ListenAddr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.cfg.GetServerAddress()
}

func (s *httpServer) Handler() http.Handler {
	return s.handler
}
