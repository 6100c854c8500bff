package server

import (
	"context"

	"github.com/beamui/beam/pkg/protocol"
	"github.com/beamui/beam/pkg/router"
)

// Context carries one dispatch's inputs and gives the handler its only way
// to emit messages. Emissions enter the connection's bounded outbound
// queue; when the queue is full the emitting call suspends, which is the
// backpressure point against slow clients.
type Context struct {
	ctx  context.Context
	conn *Conn

	// Location is the requested location as sent by the client.
	Location string

	// Params holds the pattern parameters bound during route matching.
	Params router.Params

	// Storage is the client-supplied storage subset. It is populated for
	// actions only; the server never has implicit access to the full
	// client store. Navigation-time storage is an open protocol extension
	// point, so renders always see an empty map.
	Storage protocol.StateMap
}

// Context returns the dispatch's context.Context. It is cancelled when the
// connection closes.
func (c *Context) Context() context.Context { return c.ctx }

// ConnID returns the connection's diagnostic identifier. It never survives
// a reconnect and must not be treated as a session identity.
func (c *Context) ConnID() string { return c.conn.ID() }

// Capabilities returns a snapshot of the connection's granted set.
func (c *Context) Capabilities() protocol.CapabilitySet {
	return c.conn.caps.Snapshot()
}

// AssertCapability returns nil if the connection negotiated name, or a
// typed *CapabilityError the dispatcher converts into an Error message.
func (c *Context) AssertCapability(name string) error {
	return c.conn.caps.Assert(name)
}

// Render sends a complete document to the client, replacing whatever it
// currently shows.
func (c *Context) Render(doc protocol.Document) error {
	return c.conn.send(c.ctx, &protocol.Render{Document: doc})
}

// RedirectTo sends the client to another location.
func (c *Context) RedirectTo(location string) error {
	return c.conn.send(c.ctx, &protocol.RedirectTo{Location: location})
}

// Store writes one entry into the client's scoped store.
func (c *Context) Store(scope protocol.Scope, key string, value protocol.StateValue) error {
	if err := c.AssertCapability(protocol.CapStorage); err != nil {
		return err
	}
	return c.conn.send(c.ctx, &protocol.Store{Scope: scope, Key: key, Value: value})
}

// Error reports a request-scoped failure to the client. The connection
// survives.
func (c *Context) Error(kind protocol.ErrorKind, detail string) error {
	return c.conn.send(c.ctx, &protocol.ErrorMessage{Kind: kind, Detail: detail})
}
