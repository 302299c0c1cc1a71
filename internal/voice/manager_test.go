package voice

import (
	"errors"
	"testing"
)

// activate reserves and activates an entry with a fresh connection and
// resampler pair, returning the connection for later inspection.
func activate(t *testing.T, r *Registry, guildID string) *fakeConn {
	t.Helper()
	conn := &fakeConn{}
	capture, playback := newResamplerPair(t)
	if _, err := r.Begin(guildID); err != nil {
		t.Fatalf("Begin(%s): %v", guildID, err)
	}
	if err := r.Activate(guildID, conn, capture, playback); err != nil {
		t.Fatalf("Activate(%s): %v", guildID, err)
	}
	return conn
}

func TestCleanupConnection_RemovesEntryAndDisconnects(t *testing.T) {
	r := NewRegistry()
	m := NewManager(r, nil)
	conn := activate(t, r, "guild-1")

	m.CleanupConnection("guild-1", nil)

	if conn.disconnects != 1 {
		t.Errorf("disconnects = %d, want 1", conn.disconnects)
	}
	if _, ok := r.Get("guild-1"); ok {
		t.Error("entry still present after cleanup")
	}
}

func TestCleanupConnection_Idempotent(t *testing.T) {
	r := NewRegistry()
	m := NewManager(r, nil)
	conn := activate(t, r, "guild-1")

	m.CleanupConnection("guild-1", nil)
	m.CleanupConnection("guild-1", nil)
	m.CleanupConnection("guild-1", nil)

	if conn.disconnects != 1 {
		t.Errorf("disconnects = %d, want 1", conn.disconnects)
	}
	if r.Len() != 0 {
		t.Errorf("registry Len = %d, want 0", r.Len())
	}
}

func TestCleanupConnection_NilSafe(t *testing.T) {
	r := NewRegistry()
	m := NewManager(r, nil)

	// Absent guild, nil conn: no-op, no panic.
	m.CleanupConnection("no-such-guild", nil)

	if r.Len() != 0 {
		t.Errorf("registry Len = %d, want 0", r.Len())
	}
}

func TestCleanupConnection_TransportErrorStillRemovesEntry(t *testing.T) {
	r := NewRegistry()
	m := NewManager(r, nil)
	conn := &fakeConn{err: errors.New("socket already closed")}
	capture, playback := newResamplerPair(t)

	if _, err := r.Begin("guild-1"); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := r.Activate("guild-1", conn, capture, playback); err != nil {
		t.Fatalf("Activate: %v", err)
	}

	m.CleanupConnection("guild-1", nil)

	if conn.disconnects != 1 {
		t.Errorf("disconnects = %d, want 1", conn.disconnects)
	}
	if _, ok := r.Get("guild-1"); ok {
		t.Error("entry must be removed even when Disconnect fails")
	}
}

func TestCleanupConnection_UnregisteredHandle(t *testing.T) {
	r := NewRegistry()
	m := NewManager(r, nil)
	conn := &fakeConn{}

	// A handle the registry never knew about still gets disconnected.
	m.CleanupConnection("guild-1", conn)

	if conn.disconnects != 1 {
		t.Errorf("disconnects = %d, want 1", conn.disconnects)
	}
}

func TestCleanupConnection_ClosesStreams(t *testing.T) {
	r := NewRegistry()
	m := NewManager(r, nil)
	activate(t, r, "guild-1")
	e, _ := r.Get("guild-1")
	capture, playback := e.Capture, e.Playback

	m.CleanupConnection("guild-1", nil)

	if _, err := capture.Write([]byte{0, 0}); err == nil {
		t.Error("capture stream should reject writes after cleanup")
	}
	if _, err := playback.Write([]byte{0, 0}); err == nil {
		t.Error("playback stream should reject writes after cleanup")
	}
}

func TestCleanupExisting_EmptiesRegistryAndTransport(t *testing.T) {
	r := NewRegistry()

	// Two connections the transport knows about, one of them registered.
	registered := activate(t, r, "guild-1")
	stale := &fakeConn{}
	transport := &fakeTransport{conns: map[string]Connection{
		"guild-1": registered,
		"guild-2": stale,
	}}

	// One orphan entry the transport has already forgotten.
	orphan := activate(t, r, "guild-3")

	m := NewManager(r, transport)
	m.CleanupExisting()

	if registered.disconnects != 1 {
		t.Errorf("registered conn disconnects = %d, want 1", registered.disconnects)
	}
	if stale.disconnects != 1 {
		t.Errorf("stale conn disconnects = %d, want 1", stale.disconnects)
	}
	if orphan.disconnects != 1 {
		t.Errorf("orphan conn disconnects = %d, want 1", orphan.disconnects)
	}
	if r.Len() != 0 {
		t.Errorf("registry Len = %d, want 0", r.Len())
	}
}

func TestCleanupExisting_NoTransport(t *testing.T) {
	r := NewRegistry()
	orphan := activate(t, r, "guild-1")

	m := NewManager(r, nil)
	m.CleanupExisting()

	if orphan.disconnects != 1 {
		t.Errorf("disconnects = %d, want 1", orphan.disconnects)
	}
	if r.Len() != 0 {
		t.Errorf("registry Len = %d, want 0", r.Len())
	}
}

func TestCleanupExisting_PrefersRegisteredHandle(t *testing.T) {
	r := NewRegistry()
	registered := activate(t, r, "guild-1")

	// The transport reports a different handle for the same guild. The
	// registry's own handle wins so the streams tied to it are torn down
	// with the connection that owns them.
	transportHandle := &fakeConn{}
	transport := &fakeTransport{conns: map[string]Connection{
		"guild-1": transportHandle,
	}}

	m := NewManager(r, transport)
	m.CleanupExisting()

	if registered.disconnects != 1 {
		t.Errorf("registered handle disconnects = %d, want 1", registered.disconnects)
	}
	if transportHandle.disconnects != 0 {
		t.Errorf("transport handle disconnects = %d, want 0", transportHandle.disconnects)
	}
}
