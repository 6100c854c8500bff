package router

import (
	"errors"
	"testing"

	"github.com/beamui/beam/pkg/protocol"
)

// testRoute is a minimal Route for table tests.
type testRoute struct {
	pattern string
	caps    protocol.CapabilitySet
}

func (r *testRoute) Pattern() string                              { return r.pattern }
func (r *testRoute) RequiredCapabilities() protocol.CapabilitySet { return r.caps }

func mustTable(t *testing.T, routes ...Route) *Table {
	t.Helper()
	table, err := NewTable(routes...)
	if err != nil {
		t.Fatalf("NewTable() error = %v", err)
	}
	return table
}

func TestMatchLiteral(t *testing.T) {
	table := mustTable(t, &testRoute{pattern: "/todos"})

	route, params, err := table.Match("/todos", nil)
	if err != nil {
		t.Fatalf("Match() error = %v", err)
	}
	if route.Pattern() != "/todos" {
		t.Errorf("matched %q, want /todos", route.Pattern())
	}
	if len(params) != 0 {
		t.Errorf("params = %v, want empty", params)
	}
}

func TestMatchParams(t *testing.T) {
	table := mustTable(t,
		&testRoute{pattern: "/todos/:id"},
		&testRoute{pattern: "/resources/:id/comments/:comment_id"},
	)

	tests := []struct {
		name     string
		location string
		pattern  string
		params   Params
	}{
		{
			name:     "single_param",
			location: "/todos/42",
			pattern:  "/todos/:id",
			params:   Params{"id": "42"},
		},
		{
			name:     "param_is_any_string",
			location: "/todos/abc",
			pattern:  "/todos/:id",
			params:   Params{"id": "abc"},
		},
		{
			name:     "multiple_params",
			location: "/resources/123/comments/456",
			pattern:  "/resources/:id/comments/:comment_id",
			params:   Params{"id": "123", "comment_id": "456"},
		},
		{
			name:     "trailing_slash",
			location: "/todos/42/",
			pattern:  "/todos/:id",
			params:   Params{"id": "42"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			route, params, err := table.Match(tc.location, nil)
			if err != nil {
				t.Fatalf("Match(%q) error = %v", tc.location, err)
			}
			if route.Pattern() != tc.pattern {
				t.Errorf("matched %q, want %q", route.Pattern(), tc.pattern)
			}
			for name, want := range tc.params {
				if got := params.Get(name); got != want {
					t.Errorf("params[%q] = %q, want %q", name, got, want)
				}
			}
			if len(params) != len(tc.params) {
				t.Errorf("params = %v, want %v", params, tc.params)
			}
		})
	}
}

func TestMatchArityExact(t *testing.T) {
	table := mustTable(t, &testRoute{pattern: "/a/:x"})

	for _, location := range []string{"/a", "/a/b/c", "/"} {
		if _, _, err := table.Match(location, nil); !errors.Is(err, ErrNoMatch) {
			t.Errorf("Match(%q) error = %v, want ErrNoMatch", location, err)
		}
	}
}

func TestMatchRegistrationOrder(t *testing.T) {
	// A parameter route registered first shadows a literal route of the
	// same shape: first match wins, no specificity scoring.
	table := mustTable(t,
		&testRoute{pattern: "/a/:x"},
		&testRoute{pattern: "/a/b"},
	)

	route, params, err := table.Match("/a/b", nil)
	if err != nil {
		t.Fatalf("Match() error = %v", err)
	}
	if route.Pattern() != "/a/:x" {
		t.Errorf("matched %q, want the earlier-registered /a/:x", route.Pattern())
	}
	if params.Get("x") != "b" {
		t.Errorf("params[x] = %q, want b", params.Get("x"))
	}

	// Reversed registration flips the outcome.
	table = mustTable(t,
		&testRoute{pattern: "/a/b"},
		&testRoute{pattern: "/a/:x"},
	)
	route, _, err = table.Match("/a/b", nil)
	if err != nil {
		t.Fatalf("Match() error = %v", err)
	}
	if route.Pattern() != "/a/b" {
		t.Errorf("matched %q, want the earlier-registered /a/b", route.Pattern())
	}
}

func TestMatchRoot(t *testing.T) {
	table := mustTable(t, &testRoute{pattern: "/"})

	if _, _, err := table.Match("/", nil); err != nil {
		t.Errorf("Match(/) error = %v", err)
	}
	if _, _, err := table.Match("/todos", nil); !errors.Is(err, ErrNoMatch) {
		t.Errorf("Match(/todos) error = %v, want ErrNoMatch", err)
	}
}

func TestMatchCapabilityGated(t *testing.T) {
	gatedRoute := &testRoute{
		pattern: "/uploads",
		caps:    protocol.NewCapabilitySet(protocol.Capability{Name: "uploads", Version: 1}),
	}
	table := mustTable(t, gatedRoute)

	// Connection without the capability: gated, not a plain miss.
	_, _, err := table.Match("/uploads", protocol.NewCapabilitySet(protocol.Capability{Name: "core", Version: 1}))
	if !errors.Is(err, ErrCapabilityGated) {
		t.Errorf("Match() error = %v, want ErrCapabilityGated", err)
	}

	// Connection with the capability: matches.
	caps := protocol.NewCapabilitySet(
		protocol.Capability{Name: "core", Version: 1},
		protocol.Capability{Name: "uploads", Version: 1},
	)
	if _, _, err := table.Match("/uploads", caps); err != nil {
		t.Errorf("Match() error = %v", err)
	}
}

func TestMatchGatedRouteFallsThrough(t *testing.T) {
	// A later route without the gate still wins over an earlier gated one.
	table := mustTable(t,
		&testRoute{
			pattern: "/files/:name",
			caps:    protocol.NewCapabilitySet(protocol.Capability{Name: "uploads", Version: 1}),
		},
		&testRoute{pattern: "/files/:name"},
	)

	route, _, err := table.Match("/files/report.txt", nil)
	if err != nil {
		t.Fatalf("Match() error = %v", err)
	}
	if route.RequiredCapabilities() != nil {
		t.Error("expected the ungated route to match")
	}
}

func TestNewTableRejectsBadPatterns(t *testing.T) {
	tests := []string{"", "todos", "/todos/:"}

	for _, pattern := range tests {
		if _, err := NewTable(&testRoute{pattern: pattern}); err == nil {
			t.Errorf("NewTable(%q) accepted an invalid pattern", pattern)
		}
	}
}
