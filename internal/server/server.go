// Package server exposes a service.Loop over websockets.
//
// Each text message from a client is one call frame; the reply to it and
// any later watch notification are sent back as frames carrying the same
// id. Subscriptions opened on a connection are cancelled when it closes.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/roach88/lunadb/internal/ids"
	"github.com/roach88/lunadb/internal/service"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxFrameSize   = 1 << 20
	sendBuffer     = 64
	shutdownWait   = 5 * time.Second
	readHeaderWait = 10 * time.Second
)

// Server accepts websocket connections and forwards their frames to a
// service loop.
type Server struct {
	loop        *service.Loop
	upgrader    websocket.Upgrader
	tokens      ids.Generator
	serviceName string
	logger      *slog.Logger

	mu    sync.Mutex
	conns map[*conn]struct{}
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// WithTokenGenerator sets how subscription tokens are generated.
// The default is ids.UUIDv7.
func WithTokenGenerator(g ids.Generator) Option {
	return func(s *Server) {
		s.tokens = g
	}
}

// WithServiceName sets the service name luna:// addresses must carry.
func WithServiceName(name string) Option {
	return func(s *Server) {
		s.serviceName = name
	}
}

// New creates a server over loop.
func New(loop *service.Loop, opts ...Option) *Server {
	s := &Server{
		loop:        loop,
		tokens:      ids.UUIDv7{},
		serviceName: DefaultServiceName,
		logger:      slog.Default(),
		conns:       make(map[*conn]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the HTTP routes: GET /ws and GET /healthz.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", s.serveWS)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		fmt.Fprint(w, "ok")
	})
	return mux
}

// Serve listens on addr until ctx is cancelled, then shuts down and
// closes every open connection.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderWait,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen %s: %w", addr, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownWait)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	s.closeAll()
	if err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	s.logger.Info("server stopped")
	return nil
}

// Connections returns the number of open connections.
func (s *Server) Connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

func (s *Server) track(c *conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conns[c] = struct{}{}
}

func (s *Server) untrack(c *conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, c)
}

func (s *Server) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.conns {
		c.close()
	}
}

// connectionToken is the default call token of a connection, from the
// token query parameter or a bearer Authorization header.
func connectionToken(r *http.Request) string {
	if tok := r.URL.Query().Get("token"); tok != "" {
		return tok
	}
	if tok, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return strings.TrimSpace(tok)
	}
	return ""
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	c := newConn(s, ws, connectionToken(r))
	s.track(c)
	defer s.untrack(c)
	s.logger.Debug("connection opened", "remote", r.RemoteAddr)

	go c.writeLoop()
	c.readLoop()
	s.logger.Debug("connection closed", "remote", r.RemoteAddr)
}
