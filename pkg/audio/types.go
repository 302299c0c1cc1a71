package audio

import "time"

// Frame is a single buffer of PCM audio flowing through the pipeline, tagged
// with the format context the raw bytes do not carry themselves.
type Frame struct {
	// Data is little-endian int16 PCM. Always an even number of bytes for
	// well-formed frames.
	Data []byte

	// SampleRate in Hz (e.g. 48000 for Discord voice, 24000 for the
	// realtime speech API).
	SampleRate int

	// Channels: 2 for Discord voice frames, 1 everywhere else.
	Channels int

	// Timestamp marks when this frame was captured, relative to stream start.
	Timestamp time.Duration
}
