package httpx

import (
	"context"
	"errors"
	"net/http"
	"time"

	"pizzeria-system/internal/common/logger"
)

const shutdownGrace = 10 * time.Second

type Server struct {
	*http.Server
	log *logger.Logger
}

func New(addr string, h http.Handler, log *logger.Logger) *Server {
	return &Server{
		Server: &http.Server{
			Addr:              addr,
			Handler:           h,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		log: log,
	}
}

// Run serves until ctx ends, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() { errCh <- s.ListenAndServe() }()
	s.log.Info("http_listening", map[string]any{"addr": s.Addr})

	select {
	case <-ctx.Done():
		s.log.Info("http_shutdown", map[string]any{"addr": s.Addr})
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
