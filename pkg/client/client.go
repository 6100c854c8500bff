package client

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

// Client errors.
var (
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("client: closed")

	// ErrNotConnected is returned when sending between connection attempts.
	ErrNotConnected = errors.New("client: not connected")

	// ErrUpgradeRequired is returned by Run when the server refuses
	// negotiation permanently; retrying cannot help.
	ErrUpgradeRequired = errors.New("client: server requires an upgrade")
)

// Config holds client configuration.
type Config struct {
	// Addr is the server's host:port.
	Addr string

	// Origin names the server identity for persistent storage. Defaults to
	// Addr.
	Origin string

	// TLSConfig, when non-nil, dials TLS instead of plain TCP.
	TLSConfig *tls.Config

	// DialTimeout bounds one connection attempt. Default: 5 seconds.
	DialTimeout time.Duration

	// ReconnectBaseDelay is the first backoff delay after a dropped
	// connection; each failed attempt doubles it up to ReconnectMaxDelay.
	// Defaults: 200 milliseconds and 30 seconds.
	ReconnectBaseDelay time.Duration
	ReconnectMaxDelay  time.Duration

	// MaxFrameBytes is the frame payload limit. Default: 1 MiB.
	MaxFrameBytes int64

	// StorageDir is where the persistent scope lives. Empty disables
	// persistence.
	StorageDir string

	// Capabilities is the set requested in every hello. Default:
	// protocol.SupportedCapabilities().
	Capabilities protocol.CapabilitySet
}

// DefaultConfig returns a Config with sensible defaults for addr.
func DefaultConfig(addr string) *Config {
	return &Config{
		Addr:               addr,
		Origin:             addr,
		DialTimeout:        5 * time.Second,
		ReconnectBaseDelay: 200 * time.Millisecond,
		ReconnectMaxDelay:  30 * time.Second,
		MaxFrameBytes:      protocol.DefaultMaxFrameBytes,
		Capabilities:       protocol.SupportedCapabilities(),
	}
}

func (c *Config) normalize() {
	def := DefaultConfig(c.Addr)
	if c.Origin == "" {
		c.Origin = def.Origin
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = def.DialTimeout
	}
	if c.ReconnectBaseDelay <= 0 {
		c.ReconnectBaseDelay = def.ReconnectBaseDelay
	}
	if c.ReconnectMaxDelay <= 0 {
		c.ReconnectMaxDelay = def.ReconnectMaxDelay
	}
	if c.MaxFrameBytes <= 0 {
		c.MaxFrameBytes = def.MaxFrameBytes
	}
	if c.Capabilities == nil {
		c.Capabilities = def.Capabilities
	}
}

// Handlers receives the client's events. Nil fields are skipped. Handlers
// run on the read goroutine; blocking ones delay message processing.
type Handlers struct {
	// OnRender delivers each complete document.
	OnRender func(doc protocol.Document)

	// OnError delivers request-scoped server errors. The connection
	// survives them.
	OnError func(kind protocol.ErrorKind, detail string)

	// OnConnect fires after each successful negotiation with the granted
	// set, including renegotiations and reconnects.
	OnConnect func(granted protocol.CapabilitySet)

	// OnDisconnect fires when an established connection drops, before the
	// reconnect backoff starts.
	OnDisconnect func(err error)
}

// Client maintains one logical session with a server across any number of
// physical connections.
type Client struct {
	cfg      *Config
	handlers Handlers
	logger   *slog.Logger
	store    *Store

	mu       sync.Mutex
	fc       protocol.FrameConn
	location string
	granted  protocol.CapabilitySet
	closed   bool
}

// New builds a client. handlers may be the zero value.
func New(cfg *Config, handlers Handlers, logger *slog.Logger) (*Client, error) {
	if cfg == nil || cfg.Addr == "" {
		return nil, errors.New("client: missing server address")
	}
	cfg = cfg.clone()
	cfg.normalize()
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "beam.client", "addr", cfg.Addr)

	return &Client{
		cfg:      cfg,
		handlers: handlers,
		logger:   logger,
		store:    NewStore(cfg.Origin, cfg.StorageDir, logger),
		location: "/",
	}, nil
}

func (c *Config) clone() *Config {
	clone := *c
	clone.Capabilities = c.Capabilities.Clone()
	return &clone
}

// Store exposes the client's scoped store.
func (c *Client) Store() *Store { return c.store }

// Location returns the current location.
func (c *Client) Location() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.location
}

// Capabilities returns the most recent grant, or nil before the first
// handshake.
func (c *Client) Capabilities() protocol.CapabilitySet {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.granted.Clone()
}

// Run connects and serves the session until ctx is cancelled, Close is
// called, or the server permanently refuses negotiation. Transient
// connection loss is handled internally with capped exponential backoff.
func (c *Client) Run(ctx context.Context) error {
	delay := c.cfg.ReconnectBaseDelay
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if c.isClosed() {
			return ErrClosed
		}

		err := c.runOnce(ctx)
		switch {
		case errors.Is(err, ErrUpgradeRequired):
			return err
		case ctx.Err() != nil:
			return ctx.Err()
		case c.isClosed():
			return ErrClosed
		}

		c.logger.Warn("connection lost, reconnecting", "error", err, "delay", delay)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if delay *= 2; delay > c.cfg.ReconnectMaxDelay {
			delay = c.cfg.ReconnectMaxDelay
		}
	}
}

// runOnce performs one full connection cycle: dial, negotiate, reload the
// remembered location, then process messages until the stream ends.
func (c *Client) runOnce(ctx context.Context) error {
	fc, err := c.dial(ctx)
	if err != nil {
		return err
	}
	defer fc.Close()

	granted, err := c.negotiate(fc)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.fc = fc
	c.granted = granted
	location := c.location
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.fc = nil
		c.mu.Unlock()
	}()

	c.logger.Info("connected", "capabilities", granted.List())
	if c.handlers.OnConnect != nil {
		c.handlers.OnConnect(granted)
	}

	// The new connection shares nothing with the old one; re-request the
	// remembered location explicitly.
	if err := c.send(&protocol.Load{Location: location}); err != nil {
		return err
	}

	err = c.readLoop(ctx, fc)
	if c.handlers.OnDisconnect != nil && !c.isClosed() && ctx.Err() == nil {
		c.handlers.OnDisconnect(err)
	}
	return err
}

func (c *Client) dial(ctx context.Context) (protocol.FrameConn, error) {
	dialer := &net.Dialer{Timeout: c.cfg.DialTimeout}
	var (
		conn net.Conn
		err  error
	)
	if c.cfg.TLSConfig != nil {
		conn, err = (&tls.Dialer{NetDialer: dialer, Config: c.cfg.TLSConfig}).
			DialContext(ctx, "tcp", c.cfg.Addr)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", c.cfg.Addr)
	}
	if err != nil {
		return nil, fmt.Errorf("client: dial %s: %w", c.cfg.Addr, err)
	}
	return protocol.NewStreamConn(conn, protocol.ClampMaxFrameBytes(c.cfg.MaxFrameBytes)), nil
}

// negotiate sends the hello and waits for the grant.
func (c *Client) negotiate(fc protocol.FrameConn) (protocol.CapabilitySet, error) {
	fc.SetWriteDeadline(time.Now().Add(c.cfg.DialTimeout))
	hello := &protocol.ClientHello{Capabilities: c.cfg.Capabilities}
	if err := fc.WriteFrame(protocol.EncodeMessage(hello)); err != nil {
		return nil, fmt.Errorf("client: sending hello: %w", err)
	}

	fc.SetReadDeadline(time.Now().Add(c.cfg.DialTimeout))
	payload, err := fc.ReadFrame()
	if err != nil {
		return nil, fmt.Errorf("client: reading hello reply: %w", err)
	}
	fc.SetReadDeadline(time.Time{})

	msg, err := protocol.DecodeMessage(payload)
	if err != nil {
		return nil, fmt.Errorf("client: decoding hello reply: %w", err)
	}
	switch m := msg.(type) {
	case *protocol.ServerHello:
		return m.Capabilities, nil
	case *protocol.ErrorMessage:
		if m.Kind == protocol.KindUpgradeRequired {
			return nil, fmt.Errorf("%w: %s", ErrUpgradeRequired, m.Detail)
		}
		return nil, fmt.Errorf("client: negotiation failed: %s", m.Detail)
	default:
		return nil, fmt.Errorf("client: expected ServerHello, got %s", protocol.Tag(msg))
	}
}

// readLoop applies server messages to the session until the stream ends.
func (c *Client) readLoop(ctx context.Context, fc protocol.FrameConn) error {
	for {
		payload, err := fc.ReadFrame()
		if err != nil {
			return err
		}
		msg, err := protocol.DecodeMessage(payload)
		if err != nil {
			return fmt.Errorf("client: decoding server message: %w", err)
		}

		switch m := msg.(type) {
		case *protocol.Render:
			if c.handlers.OnRender != nil {
				c.handlers.OnRender(m.Document)
			}

		case *protocol.RedirectTo:
			c.logger.Debug("redirected", "location", m.Location)
			if err := c.Navigate(m.Location); err != nil {
				return err
			}

		case *protocol.Store:
			c.store.Set(m.Scope, m.Key, m.Value)

		case *protocol.ServerHello:
			// Renegotiation pushed by the server.
			c.mu.Lock()
			c.granted = m.Capabilities
			c.mu.Unlock()
			if c.handlers.OnConnect != nil {
				c.handlers.OnConnect(m.Capabilities)
			}

		case *protocol.ErrorMessage:
			c.logger.Warn("server error", "kind", m.Kind.String(), "detail", m.Detail)
			if c.handlers.OnError != nil {
				c.handlers.OnError(m.Kind, m.Detail)
			}

		default:
			return fmt.Errorf("client: unexpected inbound %s", protocol.Tag(msg))
		}
	}
}

// Navigate requests a new location. The local scope is cleared first; local
// entries never outlive the page that created them.
func (c *Client) Navigate(location string) error {
	c.store.ClearLocal()
	c.mu.Lock()
	c.location = location
	c.mu.Unlock()
	return c.send(&protocol.Load{Location: location})
}

// Submit sends an action from the current document. The storage subset is
// exactly the entries named by the descriptor's keys; nothing else leaves
// the client.
func (c *Client) Submit(ref protocol.ActionRef) error {
	msg := &protocol.Action{
		Location: c.Location(),
		Name:     ref.Name,
		Args:     ref.Args,
		Storage:  c.store.Subset(ref.Keys),
	}
	return c.send(msg)
}

// SetLocal records a local-scope value, typically live form state the next
// Submit may pick up.
func (c *Client) SetLocal(key string, value protocol.StateValue) {
	c.store.Set(protocol.ScopeLocal, key, value)
}

// send writes one message on the current connection.
func (c *Client) send(m protocol.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.fc == nil {
		return ErrNotConnected
	}
	c.fc.SetWriteDeadline(time.Now().Add(c.cfg.DialTimeout))
	return c.fc.WriteFrame(protocol.EncodeMessage(m))
}

func (c *Client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Close ends the session permanently. Run returns ErrClosed.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if c.fc != nil {
		c.fc.Close()
	}
	return nil
}
