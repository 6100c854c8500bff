// Package protocol implements the beam wire protocol.
//
// The protocol carries a small closed set of messages over any reliable,
// ordered byte stream (TLS-wrapped TCP, WebSocket, or an in-memory pipe in
// tests). It replaces request/response document fetching with a persistent,
// bidirectional, reconnect-tolerant exchange: the client asks for locations
// and submits actions, the server answers with whole rendered documents,
// redirects, storage writes, and errors.
//
// # Wire Format
//
// Each frame is a 4-byte big-endian unsigned length followed by exactly that
// many payload bytes:
//
//	┌────────────────────────┬──────────────────────────────┐
//	│ Length (4 bytes, BE)   │ Payload (Length bytes)       │
//	└────────────────────────┴──────────────────────────────┘
//
// A frame's payload is one CBOR-encoded message object in an
// externally-tagged envelope:
//
//	{"t": "Load", "b": {"location": "/todos"}}
//
// CBOR keeps the encoding compact and binary-safe while staying
// JSON-compatible for debugging and tooling.
//
// # Messages
//
// Client to server: ClientHello, Load, Action.
// Server to client: ServerHello, Render, RedirectTo, Store, Error.
//
// Exactly one message per frame. Unknown variants are a decode failure,
// never silently ignored.
//
// # Handshake
//
//	Client                          Server
//	  │                                │
//	  │──── ClientHello ─────────────>│
//	  │     (requested capabilities)   │
//	  │                                │
//	  │<──── ServerHello ─────────────│
//	  │     (granted capabilities)     │
//	  │                                │
//
// The granted set is the intersection of the requested and supported sets,
// taking the minimum version per capability. Either side may renegotiate at
// any later point; the new set replaces the old one atomically.
//
// # Safety
//
// Decoding enforces a configurable maximum frame length before allocating
// anything: a length prefix above the limit terminates the connection after
// reading only the four prefix bytes. This is the primary defence against a
// hostile peer claiming an enormous length to exhaust memory.
//
// # File Structure
//
//   - frame.go: length-delimited framing over byte streams
//   - codec.go: CBOR encode/decode modes and the tagged envelope
//   - message.go: message variants and their codec
//   - capability.go: capability sets and negotiation
//   - document.go: the renderable node tree
//   - storage.go: scoped client-held state values
//   - action.go: action descriptors embedded in documents
//   - limits.go: frame size limits
package protocol
