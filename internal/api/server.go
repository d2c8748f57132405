package api

import (
	"context"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"diagnosys-poller/internal/errors"
	"diagnosys-poller/internal/logger"
)

const shutdownTimeout = 5 * time.Second

// Server serves the status API until its context is cancelled.
type Server struct {
	http   *http.Server
	logger *zap.SugaredLogger
}

// NewServer creates a server for handler on addr.
func NewServer(addr string, handler http.Handler, l *zap.SugaredLogger) *Server {
	return &Server{
		http: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      10 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		logger: logger.OrNop(l),
	}
}

// Serve listens on the configured address. It returns nil after a graceful
// shutdown triggered by ctx.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return errors.Wrapf(err, "status api: listen on %s", s.http.Addr)
	}
	return s.ServeListener(ctx, ln)
}

// ServeListener is Serve on an existing listener.
func (s *Server) ServeListener(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Infow("Status API listening", "addr", ln.Addr().String())
		errCh <- s.http.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(err, "status api")
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.http.Shutdown(shutdownCtx); err != nil {
			return errors.Wrap(err, "status api shutdown")
		}
		return nil
	}
}
