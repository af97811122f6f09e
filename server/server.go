package server

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"
)

// Server is a thin lifecycle wrapper around net/http used for both the
// public WebSocket listener and the internal API listener.
type Server struct {
	httpServer *http.Server
}

// NewServer creates a server for addr serving handler. Pass a zero
// writeTimeout for listeners carrying long-lived WebSocket connections;
// push writes carry their own per-frame deadlines.
func NewServer(addr string, handler http.Handler, readTimeout, writeTimeout int) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      handler,
			ReadTimeout:  time.Duration(readTimeout) * time.Second,
			WriteTimeout: time.Duration(writeTimeout) * time.Second,
		},
	}
}

// Start begins serving. It blocks until the server stops.
func (s *Server) Start() {
	log.Printf("Listening on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("Server on %s failed: %v", s.httpServer.Addr, err)
	}
}

// Shutdown stops accepting new connections and waits for in-flight
// requests up to the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
