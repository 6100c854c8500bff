package server

import (
	"sync"

	"github.com/beamui/beam/pkg/protocol"
)

// Registry holds one connection's negotiated capability set. It starts
// empty and is replaced wholesale by each handshake: renegotiation swaps
// the set atomically rather than merging, so dropped capabilities disappear
// immediately and any in-flight handler relying on one fails its next
// assertion.
type Registry struct {
	mu   sync.RWMutex
	caps protocol.CapabilitySet
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{caps: protocol.CapabilitySet{}}
}

// Replace installs a freshly negotiated set.
func (r *Registry) Replace(caps protocol.CapabilitySet) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.caps = caps.Clone()
}

// Snapshot returns a copy of the current set.
func (r *Registry) Snapshot() protocol.CapabilitySet {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.caps.Clone()
}

// Contains reports whether name is currently granted.
func (r *Registry) Contains(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.caps.Contains(name)
}

// Assert returns nil if name is granted, or a typed *CapabilityError.
// Asserting an absent capability is a checked failure, never a panic.
func (r *Registry) Assert(name string) error {
	if !r.Contains(name) {
		return &CapabilityError{Capability: name}
	}
	return nil
}
