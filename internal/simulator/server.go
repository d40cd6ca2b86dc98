package simulator

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/batchpair/internal/logging"
)

// ShutdownTimeout bounds how long in-flight requests may take on shutdown
const ShutdownTimeout = 5 * time.Second

// Server runs a Service on a TCP listener
type Server struct {
	service *Service
	addr    string
}

// NewServer creates a server for service listening on host:port
func NewServer(service *Service, host string, port int) *Server {
	return &Server{
		service: service,
		addr:    net.JoinHostPort(host, fmt.Sprintf("%d", port)),
	}
}

// Run serves until ctx is canceled, then shuts down gracefully.
// ready, if non-nil, receives the bound address once listening.
func (s *Server) Run(ctx context.Context, ready func(addr string)) error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}

	srv := &http.Server{
		Handler:           s.service.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	logging.Info("Pairing simulator listening", zap.String("addr", listener.Addr().String()))
	if ready != nil {
		ready(listener.Addr().String())
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(listener)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("simulator stopped: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()

	logging.Info("Shutting down pairing simulator")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down simulator: %w", err)
	}
	return nil
}
