// Package discord adapts Discord voice channels (via bwmarrin/discordgo) to
// the voxbridge PCM pipeline. It decodes inbound Opus packets into 48 kHz
// stereo [audio.Frame] values and encodes outbound PCM back to Opus.
//
// The platform requires an active *discordgo.Session owned by the caller.
// [Platform.Connect] joins a guild voice channel and returns a [Connection];
// [Platform.Connections] enumerates every voice connection the gateway
// session currently has registered, which the lifecycle manager uses to
// recover connections left dangling by a previous process instance.
package discord

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
)

// Platform joins Discord voice channels for one gateway session.
//
// Platform is safe for concurrent use.
type Platform struct {
	session *discordgo.Session
}

// New creates a Platform backed by the given session. The session must
// already be opened by the caller.
func New(session *discordgo.Session) *Platform {
	return &Platform{session: session}
}

// Connect joins the voice channel identified by guildID and channelID and
// returns an active [Connection]. The ctx governs the join phase only; the
// returned Connection lives until [Connection.Disconnect] is called.
func (p *Platform) Connect(ctx context.Context, guildID, channelID string) (*Connection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// mute=false (we send audio), deaf=false (we receive audio).
	vc, err := p.session.ChannelVoiceJoin(guildID, channelID, false, false)
	if err != nil {
		return nil, fmt.Errorf("discord: join voice channel %q in guild %q: %w", channelID, guildID, err)
	}

	return newConnection(vc, guildID), nil
}

// Connections returns the voice connections the gateway session currently
// has registered, keyed by guild ID. The result includes connections this
// process never wrapped in a [Connection], for example ones left behind by
// a crashed predecessor and restored during gateway resume.
func (p *Platform) Connections() map[string]*discordgo.VoiceConnection {
	p.session.RLock()
	defer p.session.RUnlock()

	snap := make(map[string]*discordgo.VoiceConnection, len(p.session.VoiceConnections))
	for guildID, vc := range p.session.VoiceConnections {
		snap[guildID] = vc
	}
	return snap
}
