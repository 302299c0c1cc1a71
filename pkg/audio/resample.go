// Package audio provides the PCM primitives for the voxbridge pipeline:
// a pure linear-interpolation resampler, stateful streaming wrappers that
// keep chunked audio free of boundary discontinuities, and mono/stereo
// channel conversion.
//
// All PCM buffers are 16-bit signed little-endian samples. The resampling
// entry points operate on mono audio; channel conversion is a separate,
// explicit step (see [MonoToStereo] and [StereoToMono]).
//
// This package lives under pkg/ because transport adapters outside this
// module are expected to consume these primitives.
package audio

import "errors"

// ErrInvalidAudioInput reports a malformed PCM buffer (odd byte count) or a
// non-positive sample rate. Callers must not encode or play the result of a
// call that returned this error.
var ErrInvalidAudioInput = errors.New("audio: invalid audio input")

// ErrStreamStateCorrupt reports carry-over state that violates the stream
// resampler's invariants. It is a programming-error signal: the affected
// stream is halted, but other streams are unaffected.
var ErrStreamStateCorrupt = errors.New("audio: resampler stream state corrupt")

// Resample converts mono 16-bit little-endian PCM from fromRate to toRate
// using linear interpolation. The returned buffer is always newly allocated;
// when fromRate == toRate it is a byte-identical copy of pcm.
//
// The output holds round(n·toRate/fromRate) samples for n input samples.
// Output sample i is interpolated between the two input samples straddling
// position i·fromRate/toRate, rounded to nearest and clamped to int16 range.
// When the position falls on or after the last input sample, that sample is
// held rather than extrapolated.
//
// Returns [ErrInvalidAudioInput] if pcm has an odd byte count or either rate
// is not positive. Resample is deterministic and has no side effects.
func Resample(pcm []byte, fromRate, toRate int) ([]byte, error) {
	if fromRate <= 0 || toRate <= 0 {
		return nil, ErrInvalidAudioInput
	}
	if len(pcm)%2 != 0 {
		return nil, ErrInvalidAudioInput
	}

	if fromRate == toRate {
		out := make([]byte, len(pcm))
		copy(out, pcm)
		return out, nil
	}

	srcSamples := len(pcm) / 2
	dstSamples := int((int64(srcSamples)*int64(toRate) + int64(fromRate)/2) / int64(fromRate))
	if dstSamples == 0 {
		return nil, nil
	}

	out := make([]byte, dstSamples*2)
	for i := range dstSamples {
		// Position of output sample i on the input timeline, kept as an
		// exact rational num/toRate so repeated conversion never drifts.
		num := int64(i) * int64(fromRate)
		i0 := int(num / int64(toRate))
		frac := float64(num%int64(toRate)) / float64(toRate)

		if i0 >= srcSamples {
			i0 = srcSamples - 1
			frac = 0
		}

		s := interpolate(pcm, i0, srcSamples, frac)
		out[i*2] = byte(s)
		out[i*2+1] = byte(s >> 8)
	}
	return out, nil
}

// interpolate computes the linearly interpolated sample at input index
// i0 + frac, holding the final sample when i0+1 is out of bounds. The result
// is rounded to nearest and clamped to the int16 range.
func interpolate(pcm []byte, i0, srcSamples int, frac float64) int16 {
	s0 := int16(pcm[i0*2]) | int16(pcm[i0*2+1])<<8
	s1 := s0
	if i0+1 < srcSamples {
		s1 = int16(pcm[(i0+1)*2]) | int16(pcm[(i0+1)*2+1])<<8
	}

	v := float64(s0)*(1-frac) + float64(s1)*frac
	return clampRound(v)
}

// clampRound rounds v to the nearest integer (half away from zero) and clamps
// to the signed 16-bit range.
func clampRound(v float64) int16 {
	if v >= 0 {
		v += 0.5
	} else {
		v -= 0.5
	}
	n := int32(v)
	if n > 32767 {
		n = 32767
	} else if n < -32768 {
		n = -32768
	}
	return int16(n)
}
