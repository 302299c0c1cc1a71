package discord

import (
	"fmt"

	"layeh.com/gopus"
)

// Discord voice uses 48 kHz stereo Opus at 20 ms frame size.
const (
	// SampleRate is the sample rate of Discord voice audio in Hz.
	SampleRate = 48000

	// Channels is the channel count of Discord voice audio.
	Channels = 2

	frameSizeMs = 20
	// samplesPerFrame is the number of samples per channel per 20 ms frame.
	samplesPerFrame = SampleRate * frameSizeMs / 1000 // 960

	// frameBytes is the exact PCM input size of one Opus frame:
	// 960 samples/channel x 2 channels x 2 bytes/sample.
	frameBytes = samplesPerFrame * Channels * 2
)

// decoder holds gopus decoder state for a single SSRC. Each speaking
// participant needs its own decoder; Opus decode state is per stream.
type decoder struct {
	d *gopus.Decoder
}

func newDecoder() (*decoder, error) {
	d, err := gopus.NewDecoder(SampleRate, Channels)
	if err != nil {
		return nil, fmt.Errorf("discord: create opus decoder: %w", err)
	}
	return &decoder{d: d}, nil
}

// decode turns one Opus packet into interleaved little-endian int16 PCM.
func (d *decoder) decode(pkt []byte) ([]byte, error) {
	pcm, err := d.d.Decode(pkt, samplesPerFrame, false)
	if err != nil {
		return nil, fmt.Errorf("discord: opus decode: %w", err)
	}
	out := make([]byte, len(pcm)*2)
	for i, s := range pcm {
		out[i*2] = byte(s)
		out[i*2+1] = byte(s >> 8)
	}
	return out, nil
}

// encoder holds gopus encoder state for the outbound stream.
type encoder struct {
	e *gopus.Encoder
}

func newEncoder() (*encoder, error) {
	e, err := gopus.NewEncoder(SampleRate, Channels, gopus.Audio)
	if err != nil {
		return nil, fmt.Errorf("discord: create opus encoder: %w", err)
	}
	return &encoder{e: e}, nil
}

// encode turns exactly one Opus frame worth of interleaved little-endian
// int16 PCM into an Opus packet.
func (e *encoder) encode(pcm []byte) ([]byte, error) {
	samples := make([]int16, len(pcm)/2)
	for i := range samples {
		samples[i] = int16(pcm[i*2]) | int16(pcm[i*2+1])<<8
	}
	pkt, err := e.e.Encode(samples, samplesPerFrame, len(pcm))
	if err != nil {
		return nil, fmt.Errorf("discord: opus encode: %w", err)
	}
	return pkt, nil
}
