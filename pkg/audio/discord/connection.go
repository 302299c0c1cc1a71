package discord

import (
	"log/slog"
	"sync"
	"time"

	"github.com/hveldt/voxbridge/pkg/audio"
	"github.com/bwmarrin/discordgo"
)

const (
	inputChannelBuffer  = 64
	outputChannelBuffer = 64
)

// Connection wraps a discordgo.VoiceConnection as a pair of PCM streams.
// Inbound Opus packets are decoded (per-SSRC decoder state) and funneled
// into a single capture channel in arrival order; outbound PCM frames are
// chunked to exact Opus frame boundaries, encoded, and transmitted.
//
// Connection is safe for concurrent use.
type Connection struct {
	vc      *discordgo.VoiceConnection
	guildID string

	input  chan audio.Frame
	output chan audio.Frame

	done      chan struct{}
	closeOnce sync.Once

	// disconnectVC tears down the transport-level handle during Disconnect.
	// Defaults to vc.Disconnect; overridden in tests.
	disconnectVC func() error
}

// newConnection initialises a Connection for an already-joined voice channel
// and starts the receive and send loops.
func newConnection(vc *discordgo.VoiceConnection, guildID string) *Connection {
	c := &Connection{
		vc:           vc,
		guildID:      guildID,
		input:        make(chan audio.Frame, inputChannelBuffer),
		output:       make(chan audio.Frame, outputChannelBuffer),
		done:         make(chan struct{}),
		disconnectVC: vc.Disconnect,
	}

	go c.recvLoop()
	go c.sendLoop()

	return c
}

// GuildID returns the guild this connection belongs to.
func (c *Connection) GuildID() string { return c.guildID }

// Input returns the capture channel. It delivers decoded 48 kHz stereo PCM
// frames in arrival order and is closed when the connection disconnects.
func (c *Connection) Input() <-chan audio.Frame { return c.input }

// Output returns the playback channel. Frames written here must be 48 kHz
// stereo PCM; they are encoded to Opus and sent to Discord. The caller owns
// the channel and must stop writing once Disconnect has been called; late
// writes are dropped, not a panic.
func (c *Connection) Output() chan<- audio.Frame { return c.output }

// Disconnect stops the audio subscriptions (the receive and send loops) and
// tears down the transport-level voice handle. The capture channel closes as
// the receive loop exits. It is safe to call Disconnect more than once;
// subsequent calls return nil.
func (c *Connection) Disconnect() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)

		if c.disconnectVC != nil {
			err = c.disconnectVC()
		}
	})
	return err
}

// recvLoop reads Opus packets from the voice connection, decodes them with a
// per-SSRC decoder, and delivers PCM frames to the capture channel. It owns
// the capture channel and closes it on exit so consumers see EOF.
func (c *Connection) recvLoop() {
	defer close(c.input)

	decoders := make(map[uint32]*decoder)

	for {
		select {
		case <-c.done:
			return
		case pkt, ok := <-c.vc.OpusRecv:
			if !ok {
				return
			}
			if pkt == nil {
				continue
			}

			dec, exists := decoders[pkt.SSRC]
			if !exists {
				var err error
				dec, err = newDecoder()
				if err != nil {
					slog.Error("discord: failed to create opus decoder", "ssrc", pkt.SSRC, "error", err)
					continue
				}
				decoders[pkt.SSRC] = dec
			}

			pcm, err := dec.decode(pkt.Opus)
			if err != nil {
				slog.Warn("discord: opus decode error", "ssrc", pkt.SSRC, "error", err)
				continue
			}

			frame := audio.Frame{
				Data:       pcm,
				SampleRate: SampleRate,
				Channels:   Channels,
				Timestamp:  time.Duration(pkt.Timestamp) * time.Second / time.Duration(SampleRate),
			}

			select {
			case c.input <- frame:
			default:
				// Channel full: drop the frame rather than stall the
				// transport read path.
			}
		}
	}
}

// sendLoop reads PCM frames from the playback channel, slices them into
// exact Opus frame-sized chunks, encodes, and transmits. It signals speaking
// state around transmission.
func (c *Connection) sendLoop() {
	enc, err := newEncoder()
	if err != nil {
		slog.Error("discord: failed to create opus encoder", "error", err)
		return
	}

	speaking := false
	var buf []byte

	for {
		select {
		case <-c.done:
			if speaking {
				c.setSpeaking(false)
			}
			return
		case frame, ok := <-c.output:
			if !ok {
				return
			}

			if !speaking {
				c.setSpeaking(true)
				speaking = true
			}

			buf = append(buf, frame.Data...)

			for len(buf) >= frameBytes {
				pkt, eErr := enc.encode(buf[:frameBytes])
				buf = buf[frameBytes:]
				if eErr != nil {
					slog.Warn("discord: opus encode error", "error", eErr)
					continue
				}

				select {
				case c.vc.OpusSend <- pkt:
				case <-c.done:
					return
				}
			}
		}
	}
}

// setSpeaking sends a speaking notification to Discord, logging any errors.
func (c *Connection) setSpeaking(b bool) {
	if err := c.vc.Speaking(b); err != nil {
		slog.Warn("discord: speaking notification error", "speaking", b, "error", err)
	}
}
