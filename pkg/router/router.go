// Package router matches requested locations against registered route
// patterns and extracts named parameters.
//
// Matching is deliberately simple: candidate routes are walked in
// registration order and the first route whose segment count and literal
// segments match the location wins. There is no longest-match or specificity
// scoring, so registration order is part of the observable contract.
package router

import (
	"errors"
	"fmt"
	"strings"

	"github.com/beamui/beam/pkg/protocol"
)

// Match errors.
var (
	// ErrNoMatch is returned when no registered route matches a location.
	ErrNoMatch = errors.New("router: no matching route")

	// ErrCapabilityGated is returned when a route matched but the
	// connection's capability set does not cover the route's requirements.
	// Callers surface it to the client exactly like ErrNoMatch but log it
	// distinctly.
	ErrCapabilityGated = errors.New("router: route gated by missing capability")
)

// Params maps parameter names to the path segments they bound. A fresh map
// is built per match attempt.
type Params map[string]string

// Get returns the bound value for name, or the empty string.
func (p Params) Get(name string) string { return p[name] }

// Route is anything the table can dispatch to. Concrete route types live
// with the server's handler layer; the router needs only the pattern and the
// capability requirements.
type Route interface {
	// Pattern returns the location template, for example "/todos/:id".
	Pattern() string

	// RequiredCapabilities returns the capabilities a connection must have
	// negotiated before this route is reachable. May be nil or empty.
	RequiredCapabilities() protocol.CapabilitySet
}

// segment is one element of a compiled pattern.
type segment struct {
	literal string
	param   string // parameter name when non-empty
}

// pattern is a compiled route pattern.
type pattern struct {
	raw      string
	segments []segment
}

// compilePattern splits a pattern into literal and parameter segments.
func compilePattern(raw string) (*pattern, error) {
	if raw == "" || !strings.HasPrefix(raw, "/") {
		return nil, fmt.Errorf("router: pattern %q must start with /", raw)
	}

	p := &pattern{raw: raw}
	for _, seg := range splitLocation(raw) {
		if name, ok := strings.CutPrefix(seg, ":"); ok {
			if name == "" {
				return nil, fmt.Errorf("router: pattern %q has an unnamed parameter", raw)
			}
			p.segments = append(p.segments, segment{param: name})
			continue
		}
		p.segments = append(p.segments, segment{literal: seg})
	}
	return p, nil
}

// match attempts to bind location segments against the pattern. Arity is
// exact: pattern and location must have the same segment count. Parameter
// segments bind any non-empty segment unconditionally.
func (p *pattern) match(segments []string) (Params, bool) {
	if len(segments) != len(p.segments) {
		return nil, false
	}

	params := make(Params)
	for i, seg := range p.segments {
		if seg.param != "" {
			params[seg.param] = segments[i]
			continue
		}
		if seg.literal != segments[i] {
			return nil, false
		}
	}
	return params, true
}

// splitLocation breaks a location into non-empty path segments. A trailing
// slash does not change the segment count.
func splitLocation(location string) []string {
	trimmed := strings.Trim(location, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

// entry pairs a compiled pattern with its route.
type entry struct {
	pattern *pattern
	route   Route
}

// Table is an immutable, ordered route table. It is built once at startup
// and safe for unlimited concurrent reads; it is never mutated afterwards.
type Table struct {
	entries []entry
}

// NewTable compiles the given routes, preserving registration order.
func NewTable(routes ...Route) (*Table, error) {
	t := &Table{entries: make([]entry, 0, len(routes))}
	for _, r := range routes {
		p, err := compilePattern(r.Pattern())
		if err != nil {
			return nil, err
		}
		t.entries = append(t.entries, entry{pattern: p, route: r})
	}
	return t, nil
}

// Len returns the number of registered routes.
func (t *Table) Len() int { return len(t.entries) }

// Match finds the first route matching location, in registration order, and
// checks the route's capability requirements against caps. It returns
// ErrNoMatch when nothing matches, and ErrCapabilityGated when the only
// outcome was a route the connection lacks capabilities for.
func (t *Table) Match(location string, caps protocol.CapabilitySet) (Route, Params, error) {
	segments := splitLocation(location)

	gated := false
	for _, e := range t.entries {
		params, ok := e.pattern.match(segments)
		if !ok {
			continue
		}
		if !e.route.RequiredCapabilities().Subset(caps) {
			// Keep scanning: a later route may match without the gate.
			gated = true
			continue
		}
		return e.route, params, nil
	}

	if gated {
		return nil, nil, ErrCapabilityGated
	}
	return nil, nil, ErrNoMatch
}
