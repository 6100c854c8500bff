package server

import (
	"github.com/beamui/beam/pkg/protocol"
	"github.com/beamui/beam/pkg/router"
)

// Route is one location handler. Render answers Load messages; HandleAction
// answers Action messages. Both emit their replies through the Context.
//
// Handlers run on the connection's dispatch goroutine, one message at a
// time; they may block on the outbound queue but must not retain the
// Context beyond the call.
type Route interface {
	router.Route

	// Render produces the document for the matched location. Implementations
	// emit exactly one Render or RedirectTo; emitting nothing leaves the
	// client on its previous document.
	Render(ctx *Context) error

	// HandleAction processes a user action submitted to the matched
	// location. The action's storage subset is available on the Context.
	HandleAction(ctx *Context, action *protocol.Action) error
}

// App supplies the route table. Routes are registered in the returned order,
// which is part of the matching contract.
type App interface {
	Routes() []Route
}

// buildTable compiles an App's routes into an immutable router table.
func buildTable(app App) (*router.Table, error) {
	routes := app.Routes()
	generic := make([]router.Route, len(routes))
	for i, r := range routes {
		generic[i] = r
	}
	return router.NewTable(generic...)
}

// RouteFunc adapts plain functions into a Route for small applications and
// tests. A nil OnAction reports an unknown action back to the client.
type RouteFunc struct {
	Path     string
	Caps     protocol.CapabilitySet
	OnRender func(ctx *Context) error
	OnAction func(ctx *Context, action *protocol.Action) error
}

func (r *RouteFunc) Pattern() string { return r.Path }

func (r *RouteFunc) RequiredCapabilities() protocol.CapabilitySet { return r.Caps }

func (r *RouteFunc) Render(ctx *Context) error {
	if r.OnRender == nil {
		return ctx.Render(protocol.EmptyDocument())
	}
	return r.OnRender(ctx)
}

func (r *RouteFunc) HandleAction(ctx *Context, action *protocol.Action) error {
	if r.OnAction == nil {
		return ctx.Error(protocol.KindBadRequest, "unknown action "+action.Name)
	}
	return r.OnAction(ctx, action)
}

// AppFunc adapts a route slice into an App.
type AppFunc []Route

func (a AppFunc) Routes() []Route { return a }
