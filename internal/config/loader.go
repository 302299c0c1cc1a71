package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

const (
	defaultListenAddr    = ":8080"
	defaultTransportRate = 48000
	defaultAPIRate       = 24000
)

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults and
// environment fallbacks, and validates the result. Useful in tests where
// configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults fills zero-valued fields with their defaults and resolves
// secrets from the environment when the file leaves them empty.
func applyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = defaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Discord.Token == "" {
		cfg.Discord.Token = os.Getenv("DISCORD_TOKEN")
	}
	if cfg.Realtime.APIKey == "" {
		cfg.Realtime.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.Audio.TransportRate == 0 {
		cfg.Audio.TransportRate = defaultTransportRate
	}
	if cfg.Audio.APIRate == 0 {
		cfg.Audio.APIRate = defaultAPIRate
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	if cfg.Discord.Token == "" {
		errs = append(errs, errors.New("discord.token is required (or set DISCORD_TOKEN)"))
	}
	if cfg.Discord.GuildID == "" {
		errs = append(errs, errors.New("discord.guild_id is required"))
	}
	if cfg.Discord.ChannelID == "" {
		errs = append(errs, errors.New("discord.channel_id is required"))
	}

	if cfg.Realtime.APIKey == "" {
		errs = append(errs, errors.New("realtime.api_key is required (or set OPENAI_API_KEY)"))
	}

	if cfg.Audio.TransportRate <= 0 {
		errs = append(errs, fmt.Errorf("audio.transport_rate %d must be positive", cfg.Audio.TransportRate))
	}
	if cfg.Audio.APIRate <= 0 {
		errs = append(errs, fmt.Errorf("audio.api_rate %d must be positive", cfg.Audio.APIRate))
	}

	return errors.Join(errs...)
}
