// Package server hosts beam applications: it owns the per-connection
// lifecycle, capability negotiation, and the dispatch of Load and Action
// messages to route handlers.
//
// The server holds no client-specific state between messages. All durable
// state (current location, last rendered document, the scoped store) lives
// on the client, so any server process in a pool can service any reconnect
// without sticky routing. Every accepted socket is a fresh connection whose
// capability set starts empty and is rebuilt by a fresh handshake.
//
// # Connection lifecycle
//
//	Connecting → Negotiating → Ready → Closing → Closed
//	                 │            │
//	                 └── Faulted ─┘   (absorbing, reachable from any
//	                                   non-terminal state)
//
// Within one connection, inbound processing is strictly sequential: frame
// N+1 is not decoded until frame N has been dispatched and its replies
// handed to the write path. Outbound messages flow through a bounded queue;
// a full queue suspends the producing handler, which is the server's
// admission control against slow clients.
//
// # Transports
//
// Connections are served over raw TCP (optionally TLS-wrapped, see
// Config.TLSConfig) with length-prefix framing, or over WebSocket where the
// message boundary replaces the length prefix. Both feed the same
// connection loop through protocol.FrameConn.
package server
