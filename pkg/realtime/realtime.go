// Package realtime defines the provider abstraction for realtime
// speech-to-speech APIs: services that accept a continuous PCM stream and
// emit a continuous synthesized PCM stream at a fixed sample rate.
//
// The bridge treats a [Session] as an opaque stream endpoint: it never
// inspects the audio, only resamples between the transport's rate and
// [Session] rates. Implementations live in subpackages (e.g. realtime/openai).
//
// This package lives under pkg/ because external code is expected to
// implement [Provider] for additional speech services.
package realtime

import "context"

// SessionConfig carries the per-session parameters a provider needs.
type SessionConfig struct {
	// Voice selects the synthesized voice, using provider-specific IDs.
	Voice string

	// Instructions is the system prompt applied to the session, if the
	// provider supports one.
	Instructions string
}

// Session is an active bidirectional audio stream with a speech API.
//
// Implementations must be safe for concurrent use.
type Session interface {
	// SendAudio delivers one PCM chunk at the provider's fixed input rate.
	// Chunks must be sent in order; the provider treats them as a
	// continuous stream.
	SendAudio(chunk []byte) error

	// Audio returns the channel on which synthesized PCM arrives, at the
	// provider's fixed output rate. The channel is closed when the session
	// ends.
	Audio() <-chan []byte

	// Err returns the first error that terminated the session, or nil
	// while the session is healthy.
	Err() error

	// Close terminates the session and releases its resources. Idempotent.
	Close() error
}

// Provider dials sessions against one speech service.
//
// Implementations must be safe for concurrent use.
type Provider interface {
	// Connect establishes a new session. The ctx governs the connection
	// phase only; a returned Session lives until Close is called.
	Connect(ctx context.Context, cfg SessionConfig) (Session, error)

	// SampleRate returns the fixed PCM sample rate, in Hz, of both the
	// session input and output streams.
	SampleRate() int
}
