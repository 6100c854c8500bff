// Package client implements the connecting side of the protocol.
//
// A Client owns the continuity a connection deliberately does not have: the
// current location, the last rendered document, and the scoped store. Run
// dials, negotiates capabilities, re-issues a Load for the remembered
// location, and processes server messages until the stream drops; then it
// reconnects with capped exponential backoff and starts the cycle again.
//
// The store keeps three scopes. Persistent entries survive restarts in a
// per-origin file, session entries live for the process, and local entries
// are cleared on every navigation.
package client
