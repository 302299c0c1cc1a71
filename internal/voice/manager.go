package voice

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/hveldt/voxbridge/internal/observe"
)

// Manager drives guild voice connections through their lifecycle and
// guarantees that teardown is total: whatever fails along the way, the
// guild's registry slot is always freed, because a permanently occupied slot
// would deadlock every future join for that guild.
//
// Manager is safe for concurrent use.
type Manager struct {
	reg       *Registry
	transport Transport
	metrics   *observe.Metrics
}

// NewManager creates a Manager operating on reg. transport is consulted by
// [Manager.CleanupExisting] to discover connections this process never
// registered; it may be nil in tests that only exercise per-entry cleanup.
func NewManager(reg *Registry, transport Transport) *Manager {
	return &Manager{
		reg:       reg,
		transport: transport,
		metrics:   observe.DefaultMetrics(),
	}
}

// Registry returns the registry the manager operates on.
func (m *Manager) Registry() *Registry { return m.reg }

// CleanupConnection tears down one guild's voice connection: it closes the
// entry's resampler streams, disconnects the transport handle, and removes
// the registry entry, in that order, so the slot is only freed after the
// handle has reported (or been forced into) a terminal disconnected state.
//
// It is idempotent and nil-safe: calling it for an absent guild, with a nil
// conn, or a second time for the same connection is a no-op. Transport
// errors during teardown are logged and swallowed; cleanup always completes.
func (m *Manager) CleanupConnection(guildID string, conn Connection) {
	entry := m.reg.beginClose(guildID)
	if entry == nil && conn == nil {
		return
	}

	forced := entry == nil || entry.Conn == nil
	if entry != nil {
		m.closeStreams(entry)
		if entry.Conn != nil {
			conn = entry.Conn
		}
	}

	status := "ok"
	if conn != nil {
		if err := conn.Disconnect(); err != nil {
			// Swallowed: the handle may already be gone or the network
			// already dropped. Failing to clean up is worse than a log line.
			slog.Warn("voice: transport teardown error", "guild_id", guildID, "err", err)
			status = "error"
		}
	}

	ctx := context.Background()
	if entry != nil {
		m.reg.remove(guildID)
		m.metrics.ActiveConnections.Add(ctx, -1)
	}
	m.metrics.ConnectionTeardowns.Add(ctx, 1,
		metric.WithAttributes(
			attribute.Bool("forced", forced),
			attribute.String("status", status),
		))

	slog.Info("voice: connection cleaned up", "guild_id", guildID, "forced", forced, "status", status)
}

// CleanupExisting recovers connections left dangling by a previous process
// instance: it enumerates every connection the transport layer has
// registered for the current client session and forces each through
// Closing → Absent, whether or not this manager created it. Any registry
// entries without a transport handle are cleaned up too. Afterwards the
// registry is empty and the transport has no live connections.
//
// Call it at process startup or after a gateway reconnect, before accepting
// new joins.
func (m *Manager) CleanupExisting() {
	seen := make(map[string]bool)

	if m.transport != nil {
		for guildID, conn := range m.transport.Connections() {
			seen[guildID] = true
			m.CleanupConnection(guildID, conn)
		}
	}

	// Entries the transport no longer knows about still occupy slots.
	for _, guildID := range m.reg.Guilds() {
		if !seen[guildID] {
			m.CleanupConnection(guildID, nil)
		}
	}
}

// closeStreams ends the entry's resampler streams, discarding any buffered
// partial state rather than flushing it.
func (m *Manager) closeStreams(e *Entry) {
	if e.Capture != nil {
		_ = e.Capture.Close()
	}
	if e.Playback != nil {
		_ = e.Playback.Close()
	}
}
