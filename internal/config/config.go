// Package config provides the configuration schema and loader for the
// voxbridge server.
package config

// LogLevel controls log verbosity for the voxbridge server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure for voxbridge.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Discord  DiscordConfig  `yaml:"discord"`
	Realtime RealtimeConfig `yaml:"realtime"`
	Audio    AudioConfig    `yaml:"audio"`
}

// ServerConfig holds network and logging settings for the voxbridge server.
type ServerConfig struct {
	// ListenAddr is the TCP address the health and metrics endpoints listen
	// on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// DiscordConfig holds the Discord bot credentials and the voice channel the
// bridge joins at startup.
type DiscordConfig struct {
	// Token is the Discord bot token. Falls back to the DISCORD_TOKEN
	// environment variable when empty.
	Token string `yaml:"token"`

	// GuildID is the guild whose voice channel the bridge joins.
	GuildID string `yaml:"guild_id"`

	// ChannelID is the voice channel to join within the guild.
	ChannelID string `yaml:"channel_id"`
}

// RealtimeConfig holds settings for the realtime speech API session.
type RealtimeConfig struct {
	// APIKey authenticates against the realtime API. Falls back to the
	// OPENAI_API_KEY environment variable when empty.
	APIKey string `yaml:"api_key"`

	// Model selects the realtime model. Leave empty for the provider default.
	Model string `yaml:"model"`

	// BaseURL overrides the provider's default WebSocket endpoint.
	// Leave empty to use the provider's built-in default.
	BaseURL string `yaml:"base_url"`

	// Voice selects the synthesis voice (e.g., "alloy").
	Voice string `yaml:"voice"`

	// Instructions is the system prompt injected into the session.
	Instructions string `yaml:"instructions"`
}

// AudioConfig holds the sample rates at the two ends of the pipeline.
type AudioConfig struct {
	// TransportRate is the voice transport's PCM rate in Hz. Defaults to
	// 48000, Discord's native rate.
	TransportRate int `yaml:"transport_rate"`

	// APIRate is the realtime speech API's PCM rate in Hz. Defaults to
	// 24000, the rate of the pcm16 session format.
	APIRate int `yaml:"api_rate"`
}
