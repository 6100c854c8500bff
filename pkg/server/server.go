package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/beamui/beam/pkg/protocol"
)

// Server accepts framed streams and serves one Conn per stream. It is
// transport-agnostic above the FrameConn boundary: ListenAndServe speaks
// raw TCP (optionally under TLS), and ServeFrameConn lets other transports,
// such as the WebSocket handler, feed it streams they established
// themselves.
type Server struct {
	cfg        *Config
	dispatcher *dispatcher
	logger     *slog.Logger
	metrics    *Metrics

	mu       sync.Mutex
	listener net.Listener
	conns    map[string]*Conn
	closed   bool
	wg       sync.WaitGroup
}

// Option customizes a Server beyond what Config carries.
type Option func(*Server)

// WithLogger sets the server's base logger. Connections derive their own
// loggers from it.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// New builds a server for app. A nil cfg means DefaultConfig.
func New(app App, cfg *Config, opts ...Option) (*Server, error) {
	if app == nil {
		return nil, errors.New("server: nil app")
	}
	if cfg == nil {
		cfg = DefaultConfig()
	} else {
		cfg = cfg.Clone()
	}
	cfg.normalize()

	s := &Server{
		cfg:    cfg,
		logger: slog.Default(),
		conns:  make(map[string]*Conn),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "beam.server")
	s.metrics = NewMetrics(cfg.Registerer)

	d, err := newDispatcher(app, s.logger, s.metrics)
	if err != nil {
		return nil, fmt.Errorf("server: building route table: %w", err)
	}
	s.dispatcher = d
	return s, nil
}

// ListenAndServe listens on the configured address and serves until ctx is
// cancelled or Shutdown is called. With a TLS config present, every
// accepted connection is wrapped before any frame is exchanged.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("server: listen %s: %w", s.cfg.ListenAddr, err)
	}
	if s.cfg.TLSConfig != nil {
		ln = tls.NewListener(ln, s.cfg.TLSConfig)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections from ln until ctx is cancelled or the listener
// is closed. The listener is owned by the server from this point on.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		ln.Close()
		return ErrConnClosed
	}
	s.listener = ln
	s.mu.Unlock()

	s.logger.Info("listening", "addr", ln.Addr().String())

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	var acceptDelay time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			if isTransient(err) {
				// Back off on transient accept failures instead of spinning.
				if acceptDelay == 0 {
					acceptDelay = 5 * time.Millisecond
				} else if acceptDelay *= 2; acceptDelay > time.Second {
					acceptDelay = time.Second
				}
				s.logger.Warn("accept failed, backing off", "error", err, "delay", acceptDelay)
				time.Sleep(acceptDelay)
				continue
			}
			return fmt.Errorf("server: accept: %w", err)
		}
		acceptDelay = 0

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.serveStream(ctx, conn)
		}()
	}
}

// Addr returns the listener address, or nil before Serve.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// serveStream frames a raw stream and serves it to completion.
func (s *Server) serveStream(ctx context.Context, conn net.Conn) {
	fc := protocol.NewStreamConn(conn, protocol.ClampMaxFrameBytes(s.cfg.MaxFrameBytes))
	if err := s.ServeFrameConn(ctx, fc); err != nil {
		s.logger.Warn("connection ended with error",
			"remote", conn.RemoteAddr().String(), "error", err)
	}
}

// ServeFrameConn serves one already-framed stream to completion. It blocks
// until the connection reaches a terminal state and reports how it ended:
// nil for a clean close, the fatal error otherwise.
func (s *Server) ServeFrameConn(ctx context.Context, fc protocol.FrameConn) error {
	c := newConn(fc, s.cfg, s.dispatcher, s.logger, s.metrics)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		fc.Close()
		return ErrConnClosed
	}
	s.conns[c.ID()] = c
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.conns, c.ID())
		s.mu.Unlock()
	}()

	return c.Serve(ctx)
}

// Shutdown stops accepting, closes every live connection, and waits for
// their goroutines to drain or ctx to expire.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	ln := s.listener
	live := make([]*Conn, 0, len(s.conns))
	for _, c := range s.conns {
		live = append(live, c)
	}
	s.mu.Unlock()

	if ln != nil {
		ln.Close()
	}
	for _, c := range live {
		c.Close()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
