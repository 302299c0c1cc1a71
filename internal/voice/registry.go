// Package voice tracks live guild voice connections and owns their
// deterministic teardown.
//
// The [Registry] maps guild IDs to connection entries and enforces the
// single-slot invariant: at most one live connection per guild at any time.
// The [Manager] drives each entry through its lifecycle
// (Absent → Connecting → Active → Closing → Absent) and recovers connections
// a previous process instance left registered in the transport layer.
package voice

import (
	"fmt"
	"sync"

	"github.com/hveldt/voxbridge/pkg/audio"
)

// Connection is the transport-level handle the manager tears down. Both the
// Discord adapter's wrapped connection and discordgo's raw voice connection
// satisfy it.
type Connection interface {
	Disconnect() error
}

// Transport enumerates the voice connections the underlying transport
// believes are live for the current client session, keyed by guild ID.
// Consumed by startup cleanup to find connections with no owning entry.
type Transport interface {
	Connections() map[string]Connection
}

// State is the lifecycle state of a guild's connection slot.
type State int

const (
	// StateAbsent means no connection exists for the guild.
	StateAbsent State = iota

	// StateConnecting means a join is in progress and the slot is reserved.
	StateConnecting

	// StateActive means the connection is established and streaming.
	StateActive

	// StateClosing means teardown has begun; the slot is still occupied
	// until the transport handle reaches a terminal disconnected state.
	StateClosing
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateAbsent:
		return "absent"
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	default:
		return "unknown"
	}
}

// Entry is one guild's connection slot: the transport handle plus the
// resampler streams whose lifetimes are tied to it.
type Entry struct {
	GuildID  string
	Conn     Connection
	Capture  *audio.StreamResampler
	Playback *audio.StreamResampler
	state    State
}

// State returns the entry's lifecycle state at the time it was observed.
// Only meaningful while the registry lock is not required for the caller's
// decision (snapshots for logging and tests).
func (e *Entry) State() State { return e.state }

// Registry maps guild IDs to connection entries. All methods take the
// internal mutex so that lookup and mutation happen as one critical section;
// an entry can never be read by one operation while another removes it.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*Entry
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*Entry)}
}

// Begin reserves the slot for guildID, transitioning it Absent → Connecting.
// It fails if the slot is occupied in any state: callers must clean up the
// existing connection before establishing a new one.
func (r *Registry) Begin(guildID string) (*Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.entries[guildID]; ok {
		return nil, fmt.Errorf("voice: guild %s already has a connection (state %s)", guildID, e.state)
	}
	e := &Entry{GuildID: guildID, state: StateConnecting}
	r.entries[guildID] = e
	return e, nil
}

// Activate attaches the established connection and its resamplers to the
// reserved slot, transitioning Connecting → Active. It fails if the slot was
// removed (e.g. cleaned up mid-join) or never reserved.
func (r *Registry) Activate(guildID string, conn Connection, capture, playback *audio.StreamResampler) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[guildID]
	if !ok {
		return fmt.Errorf("voice: guild %s has no reserved slot to activate", guildID)
	}
	if e.state != StateConnecting {
		return fmt.Errorf("voice: guild %s slot is %s, not connecting", guildID, e.state)
	}
	e.Conn = conn
	e.Capture = capture
	e.Playback = playback
	e.state = StateActive
	return nil
}

// Get returns the entry for guildID, if present.
func (r *Registry) Get(guildID string) (*Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[guildID]
	return e, ok
}

// Guilds returns the IDs of all occupied slots.
func (r *Registry) Guilds() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	return ids
}

// Len returns the number of occupied slots.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// beginClose atomically transitions the guild's slot to Closing and returns
// the entry, or nil if the slot is absent or already closing. The slot stays
// occupied until remove, so a concurrent join for the same guild cannot race
// a half-torn-down connection.
func (r *Registry) beginClose(guildID string) *Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[guildID]
	if !ok || e.state == StateClosing {
		return nil
	}
	e.state = StateClosing
	return e
}

// remove frees the guild's slot, transitioning Closing → Absent.
func (r *Registry) remove(guildID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, guildID)
}
