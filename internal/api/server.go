package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// Server serves the HTTP surface
type Server struct {
	server *http.Server
	logger zerolog.Logger
}

// NewServer creates a new API server listening on addr
func NewServer(addr string, handler http.Handler, logger zerolog.Logger) *Server {
	return &Server{
		server: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		logger: logger.With().Str("component", "http").Logger(),
	}
}

// Start blocks serving requests until Stop is called
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("Starting HTTP server")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop drains in-flight requests
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
