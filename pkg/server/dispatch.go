package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/beamui/beam/pkg/protocol"
	"github.com/beamui/beam/pkg/router"
)

// dispatcher routes inbound Load and Action messages to the application's
// handlers. It owns the failure policy: routing misses and handler errors
// become Error messages on the same connection, never connection faults.
type dispatcher struct {
	table   *router.Table
	logger  *slog.Logger
	metrics *Metrics
	tracer  trace.Tracer
}

func newDispatcher(app App, logger *slog.Logger, metrics *Metrics) (*dispatcher, error) {
	table, err := buildTable(app)
	if err != nil {
		return nil, err
	}
	return &dispatcher{
		table:   table,
		logger:  logger,
		metrics: metrics,
		tracer:  otel.Tracer("github.com/beamui/beam/pkg/server"),
	}, nil
}

// dispatchLoad answers a navigation request with the matched route's
// rendered document.
func (d *dispatcher) dispatchLoad(ctx context.Context, conn *Conn, msg *protocol.Load) {
	ctx, span := d.tracer.Start(ctx, "beam.load",
		trace.WithAttributes(attribute.String("beam.location", msg.Location)))
	defer span.End()

	route, params, ok := d.match(ctx, conn, span, msg.Location)
	if !ok {
		return
	}

	c := &Context{
		ctx:      ctx,
		conn:     conn,
		Location: msg.Location,
		Params:   params,
		Storage:  protocol.StateMap{},
	}
	d.invoke(c, span, "load", func() error { return route.Render(c) })
}

// dispatchAction delivers a submitted action to the matched route. The
// handler sees exactly the storage subset the client attached, no more.
func (d *dispatcher) dispatchAction(ctx context.Context, conn *Conn, msg *protocol.Action) {
	ctx, span := d.tracer.Start(ctx, "beam.action",
		trace.WithAttributes(
			attribute.String("beam.location", msg.Location),
			attribute.String("beam.action", msg.Name)))
	defer span.End()

	route, params, ok := d.match(ctx, conn, span, msg.Location)
	if !ok {
		return
	}

	storage := msg.Storage
	if storage == nil {
		storage = protocol.StateMap{}
	}
	c := &Context{
		ctx:      ctx,
		conn:     conn,
		Location: msg.Location,
		Params:   params,
		Storage:  storage,
	}
	d.invoke(c, span, "action", func() error { return route.HandleAction(c, msg) })
}

// match resolves a location against the table using the connection's
// current capability snapshot. On a miss it replies NotFound itself and
// returns ok=false. A capability-gated miss is reported to the client
// identically to a plain miss; the distinction shows up only in logs and
// metrics.
func (d *dispatcher) match(ctx context.Context, conn *Conn, span trace.Span, location string) (Route, router.Params, bool) {
	matched, params, err := d.table.Match(location, conn.caps.Snapshot())
	if err != nil {
		kind := "no_match"
		if errors.Is(err, router.ErrCapabilityGated) {
			kind = "capability_gated"
			d.logger.Debug("route gated by capability", "conn", conn.ID(), "location", location)
		}
		d.metrics.errorByKind(kind)
		span.SetStatus(codes.Error, kind)

		c := &Context{ctx: ctx, conn: conn, Location: location}
		c.Error(protocol.KindNotFound, "no route for "+location)
		return nil, nil, false
	}

	route, ok := matched.(Route)
	if !ok {
		// Cannot happen for tables built through buildTable.
		d.logger.Error("route table holds a non-handler route", "location", location)
		c := &Context{ctx: ctx, conn: conn, Location: location}
		c.Error(protocol.KindInternalServerError, "internal server error")
		return nil, nil, false
	}
	span.SetAttributes(attribute.String("beam.route", route.Pattern()))
	return route, params, true
}

// invoke runs one handler with panic isolation and error translation. A
// panicking or failing handler costs the client one Error message, not the
// connection.
func (d *dispatcher) invoke(c *Context, span trace.Span, kind string, fn func() error) {
	start := time.Now()
	defer func() {
		d.metrics.observeDispatch(kind, time.Since(start).Seconds())
		if r := recover(); r != nil {
			d.logger.Error("handler panic",
				"conn", c.conn.ID(), "location", c.Location, "panic", fmt.Sprint(r))
			d.metrics.errorByKind("handler_panic")
			span.SetStatus(codes.Error, "handler panic")
			c.Error(protocol.KindInternalServerError, "internal server error")
		}
	}()

	if err := fn(); err != nil {
		d.handlerError(c, span, err)
	}
}

// handlerError turns a handler's returned error into the right wire reply.
func (d *dispatcher) handlerError(c *Context, span trace.Span, err error) {
	span.SetStatus(codes.Error, err.Error())

	var capErr *CapabilityError
	switch {
	case errors.As(err, &capErr):
		d.metrics.errorByKind("capability_missing")
		c.Error(protocol.KindUpgradeRequired, "capability not negotiated: "+capErr.Capability)

	case errors.Is(err, ErrConnClosed), errors.Is(err, context.Canceled):
		// The connection went away under the handler; nothing to report.
		d.logger.Debug("handler aborted by closing connection", "conn", c.conn.ID())

	default:
		d.logger.Error("handler failed",
			"conn", c.conn.ID(), "location", c.Location, "error", err)
		d.metrics.errorByKind("handler_error")
		c.Error(protocol.KindInternalServerError, "internal server error")
	}
}
