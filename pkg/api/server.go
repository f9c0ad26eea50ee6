package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/goran-ethernal/GiftIndexer/internal/logger"
	"github.com/goran-ethernal/GiftIndexer/pkg/config"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const shutdownCtxTimeout = 10 * time.Second

// Server represents the API HTTP server.
type Server struct {
	config  *config.APIConfig
	handler *Handler
	server  *http.Server
	log     *logger.Logger
}

// NewServer creates a new API server over deps.
func NewServer(deps Deps, log *logger.Logger) (*Server, error) {
	cfg := &deps.Config.API
	handler := NewHandler(deps, log)

	guard, err := NewGuard(cfg.Security, log)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", handler.Health)
	mux.Handle("GET /status", guard.Protect(http.HandlerFunc(handler.Status)))

	// Engine endpoints
	mux.HandleFunc("GET /backfill", handler.Backfill)
	mux.HandleFunc("GET /stream", handler.Stream)
	mux.HandleFunc("GET /reconcile", handler.Reconcile)

	mux.HandleFunc("GET /database", handler.Database)
	mux.HandleFunc("GET /mapping/{tokenId}", handler.Mapping)
	mux.HandleFunc("GET /config", handler.Config)
	mux.HandleFunc("GET /alerts", handler.Alerts)
	mux.HandleFunc("GET /debug", handler.Debug)

	mux.Handle("GET /metrics", guard.Protect(promhttp.Handler()))

	// Apply middleware, outermost last
	var h http.Handler = mux
	if cfg.CORS.Enabled {
		h = CORSMiddleware(cfg.CORS.AllowedOrigins)(h)
	}
	if cfg.RateLimit.Enabled {
		limiter := NewRateLimiter(cfg.RateLimit.Requests, cfg.RateLimit.Window.Duration, cfg.RateLimit.Burst)
		h = RateLimitMiddleware(limiter, log)(h)
	}
	h = LoggingMiddleware(log)(h)
	h = RecoveryMiddleware(log)(h)

	// Use configured timeouts (defaults already applied in config.ApplyDefaults)
	httpServer := &http.Server{
		Addr:         cfg.ListenAddress,
		Handler:      h,
		ReadTimeout:  cfg.ReadTimeout.Duration,
		WriteTimeout: cfg.WriteTimeout.Duration,
		IdleTimeout:  cfg.IdleTimeout.Duration,
	}

	return &Server{
		config:  cfg,
		handler: handler,
		server:  httpServer,
		log:     log,
	}, nil
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start serves the API until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	if !s.config.Enabled {
		s.log.Info("API server is disabled")
		return nil
	}

	listener, err := net.Listen("tcp", s.config.ListenAddress)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.ListenAddress, err)
	}

	s.log.Infof("Starting API server on %s", listener.Addr())

	serveErr := make(chan error, 1)
	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("API server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownCtxTimeout)
	defer cancel()

	s.log.Info("Shutting down API server...")
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("API server shutdown error: %w", err)
	}

	s.log.Info("API server stopped")
	return nil
}
