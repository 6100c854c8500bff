package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/beamui/beam/pkg/protocol"
)

// State is the lifecycle state of one logical connection.
type State int32

const (
	// StateConnecting: the underlying stream is established, no frame has
	// been exchanged yet.
	StateConnecting State = iota

	// StateNegotiating: the first ClientHello has arrived and the
	// capability grant is being computed.
	StateNegotiating

	// StateReady: negotiation is complete; Load and Action messages are
	// accepted. Renegotiation recurs inside Ready without leaving it.
	StateReady

	// StateClosing: an orderly shutdown is in progress.
	StateClosing

	// StateClosed: terminal. No identity crosses to any later connection.
	StateClosed

	// StateFaulted: terminal, reached on unrecoverable errors. Outwardly
	// identical to Closed; distinguished for diagnostics only.
	StateFaulted
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateConnecting:
		return "Connecting"
	case StateNegotiating:
		return "Negotiating"
	case StateReady:
		return "Ready"
	case StateClosing:
		return "Closing"
	case StateClosed:
		return "Closed"
	case StateFaulted:
		return "Faulted"
	default:
		return "Unknown"
	}
}

// terminal reports whether no further transition is possible.
func (s State) terminal() bool {
	return s == StateClosed || s == StateFaulted
}

// canTransitionTo encodes the legal lifecycle edges. Faulted is reachable
// from every non-terminal state.
func (s State) canTransitionTo(to State) bool {
	if s.terminal() {
		return false
	}
	if to == StateFaulted {
		return true
	}
	switch s {
	case StateConnecting:
		return to == StateNegotiating || to == StateClosing
	case StateNegotiating:
		return to == StateReady || to == StateClosing
	case StateReady:
		return to == StateClosing
	case StateClosing:
		return to == StateClosed
	default:
		return false
	}
}

// Conn is one logical connection. Its capability set starts empty and is
// rebuilt by a fresh handshake; nothing about it survives a reconnect.
type Conn struct {
	id         string
	fc         protocol.FrameConn
	cfg        *Config
	dispatcher *dispatcher
	logger     *slog.Logger
	metrics    *Metrics

	caps *Registry

	mu    sync.Mutex // guards state transitions
	state State

	out      chan []byte
	stopping chan struct{} // closed to request teardown; writeLoop flushes first
	done     chan struct{} // closed when the transport is released
	stopOnce sync.Once
	termOnce sync.Once
}

// newConn wraps a framed transport in a connection.
func newConn(fc protocol.FrameConn, cfg *Config, d *dispatcher, logger *slog.Logger, metrics *Metrics) *Conn {
	id := uuid.NewString()
	return &Conn{
		id:         id,
		fc:         fc,
		cfg:        cfg,
		dispatcher: d,
		logger:     logger.With("conn", id),
		metrics:    metrics,
		caps:       NewRegistry(),
		state:      StateConnecting,
		out:        make(chan []byte, cfg.OutboundQueue),
		stopping:   make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// ID returns the connection's diagnostic identifier.
func (c *Conn) ID() string { return c.id }

// State returns the current lifecycle state.
func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// transitionTo performs a legal state change and reports whether it
// happened. Illegal transitions (including anything out of a terminal
// state) are refused, not panicked on.
func (c *Conn) transitionTo(to State) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.state.canTransitionTo(to) {
		return false
	}
	c.state = to
	return true
}

// Serve runs the connection to completion: handshake, then the sequential
// read/dispatch loop. It returns nil on a clean close and the terminating
// error otherwise. The write path runs concurrently on its own goroutine;
// inbound processing is strictly one frame at a time.
func (c *Conn) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.metrics.connOpened()
	defer c.metrics.connClosed()
	defer c.Close()

	go c.writeLoop()
	go func() {
		select {
		case <-ctx.Done():
			c.Close()
		case <-c.done:
		}
	}()

	if err := c.handshake(ctx); err != nil {
		c.fault(err)
		return &FatalConnectionError{Err: err}
	}

	return c.readLoop(ctx)
}

// handshake waits for the first ClientHello under the handshake timeout
// and answers with the grant. Any failure here is fatal: the stream cannot
// be trusted until both sides agree on what they speak.
func (c *Conn) handshake(ctx context.Context) error {
	c.fc.SetReadDeadline(time.Now().Add(c.cfg.HandshakeTimeout))

	payload, err := c.fc.ReadFrame()
	if err != nil {
		if isTransient(err) {
			return fmt.Errorf("%w: %v", ErrHandshakeTimeout, err)
		}
		return fmt.Errorf("server: reading handshake: %w", err)
	}
	c.metrics.frameRead()

	if !c.transitionTo(StateNegotiating) {
		return ErrConnClosed
	}

	msg, err := protocol.DecodeMessage(payload)
	if err != nil {
		return fmt.Errorf("server: decoding handshake: %w", err)
	}
	hello, ok := msg.(*protocol.ClientHello)
	if !ok {
		return fmt.Errorf("%w: expected ClientHello, got %s", ErrProtocolViolation, protocol.Tag(msg))
	}

	if err := c.negotiate(ctx, hello); err != nil {
		return err
	}

	if !c.transitionTo(StateReady) {
		return ErrConnClosed
	}
	c.logger.Debug("connection ready", "capabilities", c.caps.Snapshot().List())
	return nil
}

// negotiate computes and installs the grant for a hello, initial or
// renegotiated. The registry is replaced atomically, never merged.
func (c *Conn) negotiate(ctx context.Context, hello *protocol.ClientHello) error {
	granted := protocol.Negotiate(hello.Capabilities, c.cfg.Capabilities)
	if !granted.Contains(protocol.CapCore) {
		// Without the core capability no further message exchange is
		// meaningful. Tell the client why, then fail the connection.
		c.trySend(&protocol.ErrorMessage{
			Kind:   protocol.KindUpgradeRequired,
			Detail: "no compatible core capability",
		})
		return fmt.Errorf("%w: no compatible core capability", ErrProtocolViolation)
	}

	c.caps.Replace(granted)
	return c.send(ctx, &protocol.ServerHello{Capabilities: granted})
}

// readLoop processes inbound frames sequentially until the stream ends.
// Frame N+1 is not read until frame N is fully dispatched and its replies
// are queued.
func (c *Conn) readLoop(ctx context.Context) error {
	for {
		if c.cfg.ReadTimeout > 0 {
			c.fc.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
		} else {
			c.fc.SetReadDeadline(time.Time{})
		}

		payload, err := c.fc.ReadFrame()
		if err != nil {
			return c.handleReadError(err)
		}
		c.metrics.frameRead()

		msg, err := protocol.DecodeMessage(payload)
		if err != nil {
			// The frame is lost. The framing itself is still aligned, so
			// report the failure and close in an orderly way rather than
			// faulting.
			c.logger.Warn("dropping undecodable frame", "error", err)
			c.metrics.errorByKind(decodeErrorKind(err))
			c.trySend(&protocol.ErrorMessage{
				Kind:   protocol.KindBadRequest,
				Detail: "malformed message",
			})
			c.Close()
			return err
		}

		switch m := msg.(type) {
		case *protocol.ClientHello:
			// Renegotiation inside Ready: the connection does not leave
			// Ready from the client's point of view.
			if err := c.negotiate(ctx, m); err != nil {
				c.fault(err)
				return err
			}

		case *protocol.Load:
			c.dispatcher.dispatchLoad(ctx, c, m)

		case *protocol.Action:
			c.dispatcher.dispatchAction(ctx, c, m)

		default:
			err := fmt.Errorf("%w: unexpected inbound %s", ErrProtocolViolation, protocol.Tag(msg))
			c.logger.Warn("closing connection", "error", err)
			c.metrics.errorByKind("protocol_violation")
			c.trySend(&protocol.ErrorMessage{
				Kind:   protocol.KindBadRequest,
				Detail: "unexpected message variant",
			})
			c.Close()
			return err
		}
	}
}

// handleReadError classifies the end of the inbound stream.
func (c *Conn) handleReadError(err error) error {
	switch {
	case errors.Is(err, io.EOF):
		// Clean close on a frame boundary.
		c.Close()
		return nil

	case errors.Is(err, net.ErrClosed):
		// We closed the transport ourselves.
		return nil

	default:
		// Oversized prefixes, truncation, and transport failures all mean
		// the stream can no longer be trusted to be frame-aligned.
		c.metrics.errorByKind(framingErrorKind(err))
		c.fault(err)
		return &FatalConnectionError{Err: err}
	}
}

// send queues one message for the write path, suspending while the bounded
// queue is full. This is the producer-side backpressure point.
func (c *Conn) send(ctx context.Context, m protocol.Message) error {
	payload := protocol.EncodeMessage(m)
	select {
	case c.out <- payload:
		return nil
	case <-c.done:
		return ErrConnClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// trySend queues a message without blocking; used for best-effort errors on
// paths that are already tearing the connection down.
func (c *Conn) trySend(m protocol.Message) {
	payload := protocol.EncodeMessage(m)
	select {
	case c.out <- payload:
	default:
	}
}

// writeLoop drains the outbound queue onto the transport, preserving the
// order replies were produced in. It owns the transport's release: on any
// exit, including fault, the queued frames already accepted are flushed
// before the stream closes, so a best-effort Error reaches the peer.
func (c *Conn) writeLoop() {
	defer c.terminate()
	for {
		select {
		case payload := <-c.out:
			if err := c.writeFrame(payload); err != nil {
				if !errors.Is(err, ErrConnClosed) {
					c.fault(fmt.Errorf("server: writing frame: %w", err))
				}
				return
			}
			c.metrics.frameWritten()

		case <-c.stopping:
			for {
				select {
				case payload := <-c.out:
					if c.writeFrame(payload) != nil {
						return
					}
					c.metrics.frameWritten()
				default:
					return
				}
			}

		case <-c.done:
			return
		}
	}
}

// writeFrame writes one frame, retrying transient failures with bounded
// exponential backoff before giving up.
func (c *Conn) writeFrame(payload []byte) error {
	delay := c.cfg.RetryBaseDelay
	for attempt := 0; ; attempt++ {
		c.fc.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
		err := c.fc.WriteFrame(payload)
		if err == nil {
			return nil
		}
		if !isTransient(err) || attempt >= c.cfg.WriteRetries {
			return err
		}

		c.logger.Warn("transient write failure", "attempt", attempt+1, "error", err)
		c.metrics.errorByKind("transient_io")
		select {
		case <-time.After(delay):
		case <-c.done:
			return ErrConnClosed
		}
		delay *= 2
	}
}

// Close shuts the connection down in an orderly way. It is safe to call
// from any goroutine and more than once. The transport stays open just long
// enough for the write loop to flush already-queued frames.
func (c *Conn) Close() error {
	c.transitionTo(StateClosing)
	c.stop()
	c.transitionTo(StateClosed)
	return nil
}

// fault moves the connection to the absorbing Faulted state.
func (c *Conn) fault(err error) {
	if c.transitionTo(StateFaulted) {
		c.logger.Error("connection faulted", "error", err)
		c.metrics.errorByKind("fatal")
	}
	c.stop()
}

// stop requests teardown; the write loop finishes the job.
func (c *Conn) stop() {
	c.stopOnce.Do(func() { close(c.stopping) })
}

// terminate releases the transport and fails all pending sends exactly
// once. Called by the write loop on its way out.
func (c *Conn) terminate() {
	c.termOnce.Do(func() {
		close(c.done)
		c.fc.Close()
	})
}

// decodeErrorKind maps a decode failure to a metrics label.
func decodeErrorKind(err error) string {
	if errors.Is(err, protocol.ErrUnknownVariant) {
		return "unknown_variant"
	}
	return "malformed_message"
}

// framingErrorKind maps a framing failure to a metrics label.
func framingErrorKind(err error) string {
	switch {
	case errors.Is(err, protocol.ErrFrameTooLarge):
		return "frame_too_large"
	case errors.Is(err, protocol.ErrEmptyFrame):
		return "empty_frame"
	case errors.Is(err, io.ErrUnexpectedEOF):
		return "unexpected_eof"
	default:
		return "read_error"
	}
}
