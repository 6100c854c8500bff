package protocol

import (
	"fmt"
)

// Scope classifies the persistence lifetime of a client-held storage entry.
type Scope uint8

const (
	// ScopePersistent entries survive client restarts.
	ScopePersistent Scope = iota

	// ScopeSession entries are cleared when the client process exits.
	ScopeSession

	// ScopeLocal entries are cleared on navigation.
	ScopeLocal
)

// String returns the wire name of the scope.
func (s Scope) String() string {
	switch s {
	case ScopePersistent:
		return "persistent"
	case ScopeSession:
		return "session"
	case ScopeLocal:
		return "local"
	default:
		return "unknown"
	}
}

// ParseScope converts a wire name back to a Scope.
func ParseScope(name string) (Scope, error) {
	switch name {
	case "persistent":
		return ScopePersistent, nil
	case "session":
		return ScopeSession, nil
	case "local":
		return ScopeLocal, nil
	default:
		return 0, fmt.Errorf("protocol: unknown storage scope %q", name)
	}
}

// MarshalCBOR encodes the scope as its wire name.
func (s Scope) MarshalCBOR() ([]byte, error) {
	return encMode.Marshal(s.String())
}

// UnmarshalCBOR decodes a scope from its wire name.
func (s *Scope) UnmarshalCBOR(data []byte) error {
	var name string
	if err := decMode.Unmarshal(data, &name); err != nil {
		return err
	}
	parsed, err := ParseScope(name)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ValueKind discriminates StateValue variants.
type ValueKind uint8

const (
	ValueString ValueKind = iota
	ValueBool
)

// StateValue is a client-held storage value: a string or a boolean. The zero
// value is the empty string.
type StateValue struct {
	kind ValueKind
	str  string
	b    bool
}

// StringValue builds a string StateValue.
func StringValue(s string) StateValue {
	return StateValue{kind: ValueString, str: s}
}

// BoolValue builds a boolean StateValue.
func BoolValue(b bool) StateValue {
	return StateValue{kind: ValueBool, b: b}
}

// Kind returns the variant of the value.
func (v StateValue) Kind() ValueKind { return v.kind }

// String returns the string form of the value. Booleans render as "true"
// and "false".
func (v StateValue) String() string {
	if v.kind == ValueBool {
		if v.b {
			return "true"
		}
		return "false"
	}
	return v.str
}

// Bool returns the boolean form of the value. Strings are false.
func (v StateValue) Bool() bool {
	return v.kind == ValueBool && v.b
}

// IsZero reports whether the value is the empty string.
func (v StateValue) IsZero() bool {
	return v.kind == ValueString && v.str == ""
}

// MarshalCBOR encodes the value as a bare CBOR string or boolean.
func (v StateValue) MarshalCBOR() ([]byte, error) {
	if v.kind == ValueBool {
		return encMode.Marshal(v.b)
	}
	return encMode.Marshal(v.str)
}

// UnmarshalCBOR decodes a bare CBOR string or boolean.
func (v *StateValue) UnmarshalCBOR(data []byte) error {
	var s string
	if err := decMode.Unmarshal(data, &s); err == nil {
		*v = StringValue(s)
		return nil
	}
	var b bool
	if err := decMode.Unmarshal(data, &b); err == nil {
		*v = BoolValue(b)
		return nil
	}
	return fmt.Errorf("protocol: storage value must be a string or boolean")
}

// StateMap is a set of storage entries keyed by name. An Action message
// carries the subset of the client's store named by the action's keys; the
// server never sees the rest.
type StateMap map[string]StateValue

// Clone returns an independent copy of the map.
func (m StateMap) Clone() StateMap {
	if m == nil {
		return nil
	}
	c := make(StateMap, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}
