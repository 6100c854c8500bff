package server

import (
	"errors"
	"net"
)

// Connection errors.
var (
	// ErrConnClosed is returned when sending on a connection that has
	// reached a terminal state.
	ErrConnClosed = errors.New("server: connection closed")

	// ErrHandshakeTimeout is returned when the peer does not complete
	// negotiation within Config.HandshakeTimeout.
	ErrHandshakeTimeout = errors.New("server: handshake timed out")

	// ErrProtocolViolation is returned when the peer sends a message that
	// is structurally valid but illegal in the connection's current state,
	// for example a server-to-client variant arriving inbound.
	ErrProtocolViolation = errors.New("server: protocol violation")
)

// CapabilityError reports a handler asserting a capability the connection
// has not negotiated. It is a handled error path, not a connection fault:
// the dispatcher converts it into an Error message.
type CapabilityError struct {
	Capability string
}

func (e *CapabilityError) Error() string {
	return "server: missing required capability: " + e.Capability
}

// FatalConnectionError wraps an unrecoverable failure that moved the
// connection to Faulted: a framing-integrity error, a handshake failure, or
// a transient failure repeated past the retry cap.
type FatalConnectionError struct {
	Err error
}

func (e *FatalConnectionError) Error() string {
	return "server: fatal connection error: " + e.Err.Error()
}

func (e *FatalConnectionError) Unwrap() error { return e.Err }

// isTransient reports whether a write failure is worth retrying with
// backoff. Only timeouts qualify; anything else means the stream can no
// longer be trusted.
func isTransient(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
