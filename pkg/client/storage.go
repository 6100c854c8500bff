package client

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fxamacker/cbor/v2"

	"github.com/beamui/beam/pkg/protocol"
)

// Store holds the client's three storage scopes.
//
// Lookup precedence is local, then session, then persistent, so a form can
// shadow a saved value without destroying it. Only the persistent scope
// touches disk; it is flushed on every write because entries are small and
// rare.
type Store struct {
	logger *slog.Logger
	path   string // empty disables persistence

	mu     sync.Mutex
	scopes map[protocol.Scope]protocol.StateMap
}

// NewStore builds a store for origin. With a non-empty dir the persistent
// scope is backed by a file in it; a missing, corrupt, or unreadable file
// starts the scope empty rather than failing.
func NewStore(origin, dir string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		logger: logger.With("component", "beam.store"),
		scopes: map[protocol.Scope]protocol.StateMap{
			protocol.ScopePersistent: {},
			protocol.ScopeSession:    {},
			protocol.ScopeLocal:      {},
		},
	}
	if dir != "" {
		s.path = filepath.Join(dir, persistentFileName(origin))
		s.loadPersistent()
	}
	return s
}

// persistentFileName derives a stable file name for an origin. The
// sanitized prefix keeps the name readable; the hash suffix keeps two
// origins that sanitize identically from sharing a file.
func persistentFileName(origin string) string {
	sanitized := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.', r == '-':
			return r
		default:
			return '_'
		}
	}, origin)
	sum := sha256.Sum256([]byte(origin))
	return fmt.Sprintf("%s-%x.cbor", sanitized, sum[:8])
}

func (s *Store) loadPersistent() {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("persistent store unreadable, starting empty",
				"path", s.path, "error", err)
		}
		return
	}

	var m protocol.StateMap
	if err := cbor.Unmarshal(data, &m); err != nil {
		s.logger.Warn("persistent store corrupt, starting empty",
			"path", s.path, "error", err)
		return
	}
	s.scopes[protocol.ScopePersistent] = m
}

// flushPersistent writes the persistent scope to disk. Called with the lock
// held.
func (s *Store) flushPersistent() {
	if s.path == "" {
		return
	}
	data, err := cbor.Marshal(s.scopes[protocol.ScopePersistent])
	if err != nil {
		s.logger.Error("encoding persistent store", "error", err)
		return
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		s.logger.Warn("creating store directory", "error", err)
		return
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		s.logger.Warn("writing persistent store", "path", s.path, "error", err)
	}
}

// Set writes one entry into a scope.
func (s *Store) Set(scope protocol.Scope, key string, value protocol.StateValue) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scopes[scope][key] = value
	if scope == protocol.ScopePersistent {
		s.flushPersistent()
	}
}

// Delete removes one entry from a scope.
func (s *Store) Delete(scope protocol.Scope, key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.scopes[scope], key)
	if scope == protocol.ScopePersistent {
		s.flushPersistent()
	}
}

// Lookup finds key across scopes, local first, then session, then
// persistent.
func (s *Store) Lookup(key string) (protocol.StateValue, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, scope := range []protocol.Scope{
		protocol.ScopeLocal, protocol.ScopeSession, protocol.ScopePersistent,
	} {
		if v, ok := s.scopes[scope][key]; ok {
			return v, true
		}
	}
	return protocol.StateValue{}, false
}

// Subset collects the named entries for attachment to an action. Keys with
// no value anywhere are simply absent from the result; the server sees
// exactly what the client has.
func (s *Store) Subset(keys []string) protocol.StateMap {
	out := protocol.StateMap{}
	for _, k := range keys {
		if v, ok := s.Lookup(k); ok {
			out[k] = v
		}
	}
	return out
}

// Snapshot returns a copy of one scope.
func (s *Store) Snapshot(scope protocol.Scope) protocol.StateMap {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scopes[scope].Clone()
}

// ClearLocal drops the local scope. Called on every navigation.
func (s *Store) ClearLocal() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scopes[protocol.ScopeLocal] = protocol.StateMap{}
}
