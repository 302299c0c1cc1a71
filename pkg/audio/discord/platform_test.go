package discord

import (
	"testing"
	"time"

	"github.com/hveldt/voxbridge/pkg/audio"
	"github.com/bwmarrin/discordgo"
)

// newTestConnection creates a Connection suitable for unit testing without a
// real Discord voice connection. It wires up fake OpusSend/OpusRecv channels
// and a no-op transport disconnect.
func newTestConnection(t *testing.T) *Connection {
	t.Helper()
	vc := &discordgo.VoiceConnection{
		OpusSend: make(chan []byte, 16),
		OpusRecv: make(chan *discordgo.Packet, 16),
	}
	c := &Connection{
		vc:           vc,
		guildID:      "guild-test",
		input:        make(chan audio.Frame, inputChannelBuffer),
		output:       make(chan audio.Frame, outputChannelBuffer),
		done:         make(chan struct{}),
		disconnectVC: func() error { return nil },
	}
	go c.recvLoop()
	go c.sendLoop()
	t.Cleanup(func() { _ = c.Disconnect() })
	return c
}

func TestNewPlatform(t *testing.T) {
	t.Parallel()

	s := &discordgo.Session{}
	p := New(s)
	if p == nil {
		t.Fatal("New returned nil")
	}
	if p.session != s {
		t.Error("session not stored correctly")
	}
}

func TestPlatform_ConnectionsSnapshotsSession(t *testing.T) {
	t.Parallel()

	s := &discordgo.Session{
		VoiceConnections: map[string]*discordgo.VoiceConnection{
			"guild-a": {},
			"guild-b": {},
		},
	}
	p := New(s)

	conns := p.Connections()
	if len(conns) != 2 {
		t.Fatalf("Connections: want 2 entries, got %d", len(conns))
	}

	// Mutating the snapshot must not touch the session's map.
	delete(conns, "guild-a")
	if len(s.VoiceConnections) != 2 {
		t.Error("snapshot mutation leaked into session state")
	}
}

func TestConnection_DisconnectIdempotent(t *testing.T) {
	t.Parallel()

	c := newTestConnection(t)
	for i := range 3 {
		if err := c.Disconnect(); err != nil {
			t.Fatalf("Disconnect[%d]: unexpected error: %v", i, err)
		}
	}
}

func TestConnection_DisconnectClosesInput(t *testing.T) {
	t.Parallel()

	c := newTestConnection(t)
	if err := c.Disconnect(); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}

	select {
	case _, ok := <-c.Input():
		if ok {
			t.Fatal("expected closed capture channel, got a frame")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("capture channel not closed after Disconnect")
	}
}

func TestConnection_DisconnectReportsTransportError(t *testing.T) {
	t.Parallel()

	c := newTestConnection(t)
	wantErr := errSentinel{}
	c.disconnectVC = func() error { return wantErr }

	if err := c.Disconnect(); err != wantErr {
		t.Fatalf("Disconnect: got %v, want sentinel", err)
	}
	// Second call observes the connection already torn down.
	if err := c.Disconnect(); err != nil {
		t.Fatalf("second Disconnect: got %v, want nil", err)
	}
}

func TestConnection_Accessors(t *testing.T) {
	t.Parallel()

	c := newTestConnection(t)
	if c.GuildID() != "guild-test" {
		t.Errorf("GuildID: got %q, want %q", c.GuildID(), "guild-test")
	}
	if c.Input() == nil {
		t.Error("Input returned nil channel")
	}
	if c.Output() == nil {
		t.Error("Output returned nil channel")
	}
}

// errSentinel is a distinguishable error value for teardown tests.
type errSentinel struct{}

func (errSentinel) Error() string { return "transport teardown failed" }
