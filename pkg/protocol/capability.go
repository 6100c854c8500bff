package protocol

import (
	"fmt"
	"sort"
)

// Well-known capability names.
const (
	// CapCore is the base protocol: handshake, Load/Render, RedirectTo,
	// Error. A connection granting nothing else can still navigate.
	CapCore = "core"

	// CapForms covers input, checkbox, and button nodes together with the
	// Action message.
	CapForms = "forms"

	// CapStorage covers the Store message and scoped client-side state.
	CapStorage = "storage"
)

// Current capability versions spoken by this implementation.
const (
	CoreVersion    = 1
	FormsVersion   = 1
	StorageVersion = 1
)

// Capability is a named, versioned optional protocol feature. Both sides
// must agree on a capability before messages depending on it are exchanged.
type Capability struct {
	Name    string
	Version int
}

func (c Capability) String() string {
	return fmt.Sprintf("%s/v%d", c.Name, c.Version)
}

// CapabilitySet maps capability names to the highest version supported or
// granted. The zero value is an empty set; use NewCapabilitySet or Add.
type CapabilitySet map[string]int

// NewCapabilitySet builds a set from the given capabilities. A repeated name
// keeps the last version given.
func NewCapabilitySet(caps ...Capability) CapabilitySet {
	s := make(CapabilitySet, len(caps))
	for _, c := range caps {
		s[c.Name] = c.Version
	}
	return s
}

// Add inserts or replaces a capability.
func (s CapabilitySet) Add(name string, version int) {
	s[name] = version
}

// Contains reports whether the set includes name at any version.
func (s CapabilitySet) Contains(name string) bool {
	_, ok := s[name]
	return ok
}

// Version returns the version for name and whether it is present.
func (s CapabilitySet) Version(name string) (int, bool) {
	v, ok := s[name]
	return v, ok
}

// Clone returns an independent copy of the set.
func (s CapabilitySet) Clone() CapabilitySet {
	if s == nil {
		return nil
	}
	c := make(CapabilitySet, len(s))
	for name, version := range s {
		c[name] = version
	}
	return c
}

// Subset reports whether every capability in s is present in other. Versions
// are not compared: a granted capability is usable at its granted version.
func (s CapabilitySet) Subset(other CapabilitySet) bool {
	for name := range s {
		if !other.Contains(name) {
			return false
		}
	}
	return true
}

// List returns the capabilities sorted by name.
func (s CapabilitySet) List() []Capability {
	caps := make([]Capability, 0, len(s))
	for name, version := range s {
		caps = append(caps, Capability{Name: name, Version: version})
	}
	sort.Slice(caps, func(i, j int) bool { return caps[i].Name < caps[j].Name })
	return caps
}

// Negotiate computes the granted set for a handshake: the intersection of
// the requested and supported names, taking the minimum of the two versions
// so neither side is asked to speak above its level.
func Negotiate(requested, supported CapabilitySet) CapabilitySet {
	granted := make(CapabilitySet)
	for name, reqVersion := range requested {
		supVersion, ok := supported[name]
		if !ok {
			continue
		}
		if supVersion < reqVersion {
			granted[name] = supVersion
		} else {
			granted[name] = reqVersion
		}
	}
	return granted
}

// SupportedCapabilities returns the full set this implementation speaks.
func SupportedCapabilities() CapabilitySet {
	return NewCapabilitySet(
		Capability{Name: CapCore, Version: CoreVersion},
		Capability{Name: CapForms, Version: FormsVersion},
		Capability{Name: CapStorage, Version: StorageVersion},
	)
}
