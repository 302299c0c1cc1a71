// Package bridge pumps audio between a voice transport connection and a
// realtime speech session, converting sample rates in both directions.
//
// A [Bridge] runs two loops: the capture loop takes 48 kHz stereo frames from
// the transport, downmixes them to mono, resamples to the session's rate, and
// sends them to the speech API; the playback loop takes synthesized mono
// chunks from the session, resamples them back to the transport rate, and
// upmixes to stereo frames. Both loops stop on the first malformed chunk;
// skipping one would silently corrupt the stream timeline.
package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hveldt/voxbridge/internal/observe"
	"github.com/hveldt/voxbridge/pkg/audio"
	"github.com/hveldt/voxbridge/pkg/realtime"
)

// VoiceIO is the PCM face of a voice transport connection: a capture channel
// of inbound frames and a playback channel for outbound frames. Satisfied by
// the Discord adapter's connection.
type VoiceIO interface {
	Input() <-chan audio.Frame
	Output() chan<- audio.Frame
}

// Bridge connects one voice transport connection to one realtime speech
// session. Create it with [New] and drive it with [Bridge.Run].
type Bridge struct {
	conn     VoiceIO
	session  realtime.Session
	capture  *audio.StreamResampler
	playback *audio.StreamResampler
	metrics  *observe.Metrics

	transportRate int
}

// New creates a Bridge. The capture resampler must convert from the transport
// rate to the session rate and the playback resampler the other way around;
// mismatched directions are rejected.
func New(conn VoiceIO, session realtime.Session, capture, playback *audio.StreamResampler) (*Bridge, error) {
	if capture.FromRate() != playback.ToRate() || capture.ToRate() != playback.FromRate() {
		return nil, fmt.Errorf("bridge: resampler directions do not mirror each other: capture %d->%d, playback %d->%d",
			capture.FromRate(), capture.ToRate(), playback.FromRate(), playback.ToRate())
	}
	return &Bridge{
		conn:          conn,
		session:       session,
		capture:       capture,
		playback:      playback,
		metrics:       observe.DefaultMetrics(),
		transportRate: capture.FromRate(),
	}, nil
}

// Run pumps audio in both directions until the context is canceled, the
// transport's capture channel closes, the session ends, or a pipeline fault
// occurs. Cancellation and orderly stream ends return nil; only faults
// (malformed audio, send failures, a session error) are reported.
//
// Run does not disconnect the transport; the caller owns that lifecycle. It
// does close the session when the capture side ends, so the playback loop
// drains and exits.
func (b *Bridge) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		// Ending capture ends the session, which in turn ends playback.
		defer b.session.Close()
		return b.captureLoop(ctx)
	})
	g.Go(func() error {
		defer cancel()
		return b.playbackLoop(ctx)
	})
	return g.Wait()
}

// captureLoop forwards transport audio to the session.
func (b *Bridge) captureLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case frame, ok := <-b.conn.Input():
			if !ok {
				slog.Debug("bridge: capture channel closed")
				return nil
			}

			pcm := frame.Data
			if frame.Channels == 2 {
				pcm = audio.StereoToMono(pcm)
			}

			start := time.Now()
			out, err := b.capture.Write(pcm)
			if err != nil {
				b.metrics.RecordInvalidInput(ctx, "capture")
				return fmt.Errorf("bridge: capture resample: %w", err)
			}
			b.metrics.RecordResample(ctx, "capture", len(pcm), time.Since(start))

			if len(out) == 0 {
				continue
			}
			if err := b.session.SendAudio(out); err != nil {
				return fmt.Errorf("bridge: send audio: %w", err)
			}
			b.metrics.RecordRealtimeChunk(ctx, "send")
		}
	}
}

// playbackLoop forwards session audio to the transport.
func (b *Bridge) playbackLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case chunk, ok := <-b.session.Audio():
			if !ok {
				if err := b.session.Err(); err != nil {
					return fmt.Errorf("bridge: realtime session: %w", err)
				}
				slog.Debug("bridge: session audio channel closed")
				return nil
			}
			b.metrics.RecordRealtimeChunk(ctx, "receive")

			start := time.Now()
			out, err := b.playback.Write(chunk)
			if err != nil {
				b.metrics.RecordInvalidInput(ctx, "playback")
				return fmt.Errorf("bridge: playback resample: %w", err)
			}
			b.metrics.RecordResample(ctx, "playback", len(chunk), time.Since(start))

			if len(out) == 0 {
				continue
			}
			frame := audio.Frame{
				Data:       audio.MonoToStereo(out),
				SampleRate: b.transportRate,
				Channels:   2,
			}
			select {
			case b.conn.Output() <- frame:
			case <-ctx.Done():
				return nil
			}
		}
	}
}
