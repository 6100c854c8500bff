package client

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/beamui/beam/pkg/protocol"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestStoreLookupPrecedence(t *testing.T) {
	s := NewStore("example", "", testLogger())
	s.Set(protocol.ScopePersistent, "k", protocol.StringValue("persistent"))
	s.Set(protocol.ScopeSession, "k", protocol.StringValue("session"))
	s.Set(protocol.ScopeLocal, "k", protocol.StringValue("local"))

	v, ok := s.Lookup("k")
	if !ok || v.String() != "local" {
		t.Fatalf("Lookup = %v, %v; want local", v, ok)
	}

	s.Delete(protocol.ScopeLocal, "k")
	if v, _ := s.Lookup("k"); v.String() != "session" {
		t.Errorf("after local delete, Lookup = %v, want session", v)
	}

	s.Delete(protocol.ScopeSession, "k")
	if v, _ := s.Lookup("k"); v.String() != "persistent" {
		t.Errorf("after session delete, Lookup = %v, want persistent", v)
	}
}

func TestStoreSubsetExact(t *testing.T) {
	s := NewStore("example", "", testLogger())
	s.Set(protocol.ScopeSession, "email", protocol.StringValue("a@b.example"))
	s.Set(protocol.ScopeSession, "secret", protocol.StringValue("hidden"))

	subset := s.Subset([]string{"email", "absent"})
	if len(subset) != 1 {
		t.Fatalf("subset has %d entries, want 1", len(subset))
	}
	if subset["email"].String() != "a@b.example" {
		t.Errorf("subset[email] = %v", subset["email"])
	}
	if _, ok := subset["secret"]; ok {
		t.Error("subset leaked an unnamed key")
	}
}

func TestStoreClearLocalOnly(t *testing.T) {
	s := NewStore("example", "", testLogger())
	s.Set(protocol.ScopeLocal, "draft", protocol.StringValue("half-typed"))
	s.Set(protocol.ScopeSession, "token", protocol.StringValue("abc"))
	s.Set(protocol.ScopePersistent, "email", protocol.StringValue("a@b.example"))

	s.ClearLocal()

	if _, ok := s.Lookup("draft"); ok {
		t.Error("local entry survived ClearLocal")
	}
	if _, ok := s.Lookup("token"); !ok {
		t.Error("session entry lost by ClearLocal")
	}
	if _, ok := s.Lookup("email"); !ok {
		t.Error("persistent entry lost by ClearLocal")
	}
}

func TestStorePersistenceAcrossInstances(t *testing.T) {
	dir := t.TempDir()

	first := NewStore("srv.example:9310", dir, testLogger())
	first.Set(protocol.ScopePersistent, "email", protocol.StringValue("a@b.example"))
	first.Set(protocol.ScopeSession, "token", protocol.StringValue("ephemeral"))

	second := NewStore("srv.example:9310", dir, testLogger())
	if v, ok := second.Lookup("email"); !ok || v.String() != "a@b.example" {
		t.Errorf("persistent entry not reloaded: %v, %v", v, ok)
	}
	if _, ok := second.Lookup("token"); ok {
		t.Error("session entry leaked into persistence")
	}

	// A different origin gets a different file.
	other := NewStore("other.example:9310", dir, testLogger())
	if _, ok := other.Lookup("email"); ok {
		t.Error("persistent entries crossed origins")
	}
}

func TestStoreCorruptFileStartsEmpty(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, persistentFileName("bad.example"))
	if err := os.WriteFile(path, []byte("not cbor at all"), 0o600); err != nil {
		t.Fatal(err)
	}

	s := NewStore("bad.example", dir, testLogger())
	if m := s.Snapshot(protocol.ScopePersistent); len(m) != 0 {
		t.Errorf("corrupt file yielded %d entries, want 0", len(m))
	}

	// Writing repairs the file.
	s.Set(protocol.ScopePersistent, "k", protocol.BoolValue(true))
	again := NewStore("bad.example", dir, testLogger())
	if v, ok := again.Lookup("k"); !ok || !v.Bool() {
		t.Errorf("repaired store not reloaded: %v, %v", v, ok)
	}
}

func TestPersistentFileNameCollisions(t *testing.T) {
	// Both origins sanitize to "a_b"; the hash suffix must keep them apart.
	a := persistentFileName("a/b")
	b := persistentFileName("a_b")
	if a == b {
		t.Fatalf("colliding file names for distinct origins: %q", a)
	}
}
