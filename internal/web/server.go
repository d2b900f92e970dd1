package web

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// DefaultAddr is used when Config.Addr is empty.
const DefaultAddr = "127.0.0.1:9464"

// Server exposes metrics, tracked containers and the live event stream
// of a running batch.
type Server struct {
	addr   string
	hub    *Hub
	logger *zap.Logger

	httpServer   *http.Server
	httpListener net.Listener
	served       chan error
}

// New creates a monitor server. Does not start listening - call Start()
// for that.
func New(cfg Config, logger *zap.Logger) *Server {
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	hub := NewHub()

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics)
	}
	r.Route("/api", func(r chi.Router) {
		r.Get("/containers", ContainersHandler(cfg.Containers))
		r.Get("/containers/{name}", ContainerHandler(cfg.Containers))
		r.Get("/batches", BatchesHandler(cfg.Containers))
		r.Get("/events", EventsHandler(hub))
	})

	return &Server{
		addr:   cfg.Addr,
		hub:    hub,
		logger: logger,
		httpServer: &http.Server{
			Addr:              cfg.Addr,
			Handler:           r,
			ReadHeaderTimeout: 5 * time.Second,
		},
		served: make(chan error, 1),
	}
}

// Hub returns the event fan-out; subscribe its Handler to the bus.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Handler returns the router, for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start begins listening. Non-blocking - the server runs in a goroutine.
func (s *Server) Start() error {
	go s.hub.Run()

	listener, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		s.hub.Stop()
		return fmt.Errorf("HTTP listen: %w", err)
	}
	s.httpListener = listener

	// Update addr with actual address (important for ephemeral ports)
	s.addr = listener.Addr().String()
	s.logger.Info("monitor listening", zap.String("addr", s.addr))

	go func() {
		err := s.httpServer.Serve(listener)
		if err == http.ErrServerClosed {
			err = nil
		}
		if err != nil {
			s.logger.Error("monitor server failed", zap.Error(err))
		}
		s.served <- err
	}()

	return nil
}

// Done yields the serve error (nil after a clean Stop) once the server
// has exited.
func (s *Server) Done() <-chan error {
	return s.served
}

// Stop performs graceful shutdown.
// - Stops the SSE hub, closing open event streams
// - Shuts down HTTP server with context timeout
func (s *Server) Stop(ctx context.Context) error {
	s.hub.Stop()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("HTTP shutdown: %w", err)
	}

	return nil
}

// Addr returns the HTTP listen address.
func (s *Server) Addr() string {
	return s.addr
}
