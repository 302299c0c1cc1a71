package audio

import "fmt"

// StreamResampler applies [Resample]'s conversion across a sequence of
// variably sized PCM chunks without discontinuities at chunk boundaries.
// Concatenating the outputs of successive [StreamResampler.Write] calls
// yields the same bytes as a single Resample call over the concatenated
// input, minus at most one trailing interpolation interval that cannot be
// completed until more input arrives (and is discarded on [StreamResampler.Close]).
//
// The conversion direction is fixed at construction; use
// [NewCaptureResampler] or [NewPlaybackResampler]. Chunks must be written
// strictly in arrival order. A StreamResampler is owned by exactly one
// stream and must not be shared across goroutines.
type StreamResampler struct {
	fromRate int
	toRate   int

	// rem is the position of the next output sample on the input timeline,
	// relative to the start of the virtual buffer (tail + next chunk),
	// expressed as the exact rational rem/toRate. Integer bookkeeping keeps
	// long streams free of floating-point drift.
	rem int64

	// tail holds the last input sample of the previous chunk when the next
	// output still needs it as its left interpolation neighbour. Either
	// empty or exactly one sample (two bytes).
	tail []byte

	err    error
	closed bool
}

// NewCaptureResampler returns a stream resampler for the capture direction:
// audio arriving at the voice transport's native rate, converted to the rate
// the realtime speech API expects.
func NewCaptureResampler(transportRate, apiRate int) (*StreamResampler, error) {
	return newStreamResampler(transportRate, apiRate)
}

// NewPlaybackResampler returns a stream resampler for the playback direction:
// synthesized audio at the realtime speech API's rate, converted back to the
// voice transport's native rate.
func NewPlaybackResampler(apiRate, transportRate int) (*StreamResampler, error) {
	return newStreamResampler(apiRate, transportRate)
}

func newStreamResampler(fromRate, toRate int) (*StreamResampler, error) {
	if fromRate <= 0 || toRate <= 0 {
		return nil, fmt.Errorf("%w: rates %d -> %d", ErrInvalidAudioInput, fromRate, toRate)
	}
	return &StreamResampler{fromRate: fromRate, toRate: toRate}, nil
}

// FromRate returns the input sample rate bound at construction.
func (s *StreamResampler) FromRate() int { return s.fromRate }

// ToRate returns the output sample rate bound at construction.
func (s *StreamResampler) ToRate() int { return s.toRate }

// Write consumes the next PCM chunk and returns the resampled continuation
// of the stream. The returned slice may be empty when the chunk did not
// advance the output position far enough (heavy downsampling of tiny chunks).
//
// A chunk with an odd byte count fails with [ErrInvalidAudioInput] and halts
// the stream: every subsequent Write returns the same error, because a
// malformed chunk would corrupt the stream timeline if skipped. Write also
// fails once [StreamResampler.Close] has been called.
func (s *StreamResampler) Write(chunk []byte) ([]byte, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.closed {
		return nil, fmt.Errorf("audio: write on closed resampler stream")
	}
	if len(chunk)%2 != 0 {
		s.err = fmt.Errorf("%w: chunk of %d bytes", ErrInvalidAudioInput, len(chunk))
		return nil, s.err
	}
	if err := s.checkState(); err != nil {
		return nil, err
	}
	if len(chunk) == 0 {
		return nil, nil
	}

	// Identity direction: no carry-over is ever needed.
	if s.fromRate == s.toRate {
		out := make([]byte, len(chunk))
		copy(out, chunk)
		return out, nil
	}

	// Virtual buffer = carried trailing sample + new chunk.
	virtual := chunk
	if len(s.tail) > 0 {
		virtual = make([]byte, 0, len(s.tail)+len(chunk))
		virtual = append(virtual, s.tail...)
		virtual = append(virtual, chunk...)
	}
	total := len(virtual) / 2

	var out []byte
	i0 := int(s.rem / int64(s.toRate))
	for i0+1 < total {
		frac := float64(s.rem%int64(s.toRate)) / float64(s.toRate)
		v := interpolate(virtual, i0, total, frac)
		out = append(out, byte(v), byte(v>>8))

		s.rem += int64(s.fromRate)
		i0 = int(s.rem / int64(s.toRate))
	}

	// Rebase the position against the samples we are done with, carrying the
	// one trailing sample the next output may still interpolate from.
	if i0 <= total-1 {
		s.tail = []byte{virtual[(total-1)*2], virtual[(total-1)*2+1]}
		s.rem -= int64(total-1) * int64(s.toRate)
	} else {
		s.tail = nil
		s.rem -= int64(total) * int64(s.toRate)
	}

	return out, nil
}

// Close ends the stream and discards the buffered trailing partial sample, if
// any. The truncation is benign: it spans at most one interpolation interval
// and cannot be completed without further input. Close is idempotent.
func (s *StreamResampler) Close() error {
	s.closed = true
	s.tail = nil
	s.rem = 0
	return nil
}

// checkState validates the carry-over invariants before processing a chunk.
// A violation halts the stream with [ErrStreamStateCorrupt]; it never takes
// down other streams.
func (s *StreamResampler) checkState() error {
	switch {
	case s.rem < 0:
		s.err = fmt.Errorf("%w: negative position remainder %d", ErrStreamStateCorrupt, s.rem)
	case len(s.tail) > 0 && s.rem >= int64(s.toRate):
		s.err = fmt.Errorf("%w: remainder %d past carried sample", ErrStreamStateCorrupt, s.rem)
	case len(s.tail) != 0 && len(s.tail) != 2:
		s.err = fmt.Errorf("%w: carried tail of %d bytes", ErrStreamStateCorrupt, len(s.tail))
	default:
		return nil
	}
	return s.err
}
