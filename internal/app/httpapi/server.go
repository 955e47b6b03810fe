package httpapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/R3E-Network/feed_layer/internal/app/system"
	"github.com/R3E-Network/feed_layer/pkg/logger"
)

var _ system.Service = (*Server)(nil)

// Server runs an HTTP handler as a lifecycle-managed service.
type Server struct {
	addr    string
	handler http.Handler
	log     *logger.Logger

	mu       sync.Mutex
	srv      *http.Server
	listener net.Listener
	done     chan struct{}
}

// NewServer creates a server for handler listening on addr.
func NewServer(addr string, handler http.Handler, log *logger.Logger) *Server {
	if log == nil {
		log = logger.NewDefault("http")
	}
	return &Server{addr: addr, handler: handler, log: log}
}

func (s *Server) Name() string { return "http-server" }

// Addr returns the bound address once started, or the configured one.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// Start binds the listen address and serves in the background.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.srv != nil {
		return nil
	}
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.addr)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.WithError(err).Error("http server stopped")
		}
	}()
	s.srv, s.listener, s.done = srv, ln, done
	s.log.WithField("addr", ln.Addr().String()).Info("http server listening")
	return nil
}

// Stop shuts the server down gracefully, bounded by ctx.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv, done := s.srv, s.done
	s.srv, s.listener, s.done = nil, nil, nil
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	if err := srv.Shutdown(ctx); err != nil {
		return err
	}
	<-done
	return nil
}
