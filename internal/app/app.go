// Package app wires all voxbridge subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run joins the configured voice channel, opens the realtime
// speech session, and pumps audio until the context is cancelled, and
// Shutdown tears everything down in order.
//
// For testing, inject fake implementations via functional options
// (WithTransport, WithProvider). When an option is not provided, New creates
// real implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/hveldt/voxbridge/internal/bridge"
	"github.com/hveldt/voxbridge/internal/config"
	"github.com/hveldt/voxbridge/internal/health"
	"github.com/hveldt/voxbridge/internal/observe"
	"github.com/hveldt/voxbridge/internal/voice"
	"github.com/hveldt/voxbridge/pkg/audio"
	"github.com/hveldt/voxbridge/pkg/audio/discord"
	"github.com/hveldt/voxbridge/pkg/realtime"
	"github.com/hveldt/voxbridge/pkg/realtime/openai"
)

// httpShutdownTimeout bounds the graceful drain of in-flight HTTP requests.
const httpShutdownTimeout = 5 * time.Second

// VoiceConn is the voice connection handle the app drives: the PCM stream
// pair plus teardown. Satisfied by the Discord adapter's connection.
type VoiceConn interface {
	bridge.VoiceIO
	Disconnect() error
}

// Transport joins voice channels and enumerates the connections the
// underlying client session believes are live. Satisfied by the Discord
// adapter via [newGatewayTransport]; tests inject fakes.
type Transport interface {
	Connect(ctx context.Context, guildID, channelID string) (VoiceConn, error)
	Connections() map[string]voice.Connection
}

// App owns all subsystem lifetimes and orchestrates the voice bridge.
type App struct {
	cfg *config.Config

	transport Transport
	provider  realtime.Provider

	registry *voice.Registry
	manager  *voice.Manager
	metrics  *observe.Metrics

	voiceGate    *health.Gate
	realtimeGate *health.Gate

	// closers are called in reverse order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithTransport injects a voice transport instead of opening a Discord
// gateway session from config.
func WithTransport(t Transport) Option {
	return func(a *App) { a.transport = t }
}

// WithProvider injects a realtime speech provider instead of creating the
// OpenAI provider from config.
func WithProvider(p realtime.Provider) Option {
	return func(a *App) { a.provider = p }
}

// New creates an App by wiring all subsystems together. Unless injected via
// options, it opens the Discord gateway session and constructs the OpenAI
// realtime provider from cfg. Call Shutdown to release everything New opened.
func New(cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{
		cfg:          cfg,
		registry:     voice.NewRegistry(),
		metrics:      observe.DefaultMetrics(),
		voiceGate:    health.NewGate("voice channel not joined"),
		realtimeGate: health.NewGate("realtime session not open"),
	}
	for _, o := range opts {
		o(a)
	}

	if a.transport == nil {
		t, closeFn, err := openGatewayTransport(cfg.Discord.Token)
		if err != nil {
			return nil, fmt.Errorf("app: open discord gateway: %w", err)
		}
		a.transport = t
		a.closers = append(a.closers, closeFn)
	}

	if a.provider == nil {
		var popts []openai.Option
		if cfg.Realtime.Model != "" {
			popts = append(popts, openai.WithModel(cfg.Realtime.Model))
		}
		if cfg.Realtime.BaseURL != "" {
			popts = append(popts, openai.WithBaseURL(cfg.Realtime.BaseURL))
		}
		a.provider = openai.New(cfg.Realtime.APIKey, popts...)
	}

	a.manager = voice.NewManager(a.registry, a.transport)

	return a, nil
}

// Run executes the application until ctx is cancelled or a subsystem fails.
// It recovers connections a previous process instance left behind, serves
// the health and metrics endpoints, and drives the voice bridge.
func (a *App) Run(ctx context.Context) error {
	// Connections a previous instance left registered would block the join.
	a.manager.CleanupExisting()

	g, ctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Addr:    a.cfg.Server.ListenAddr,
		Handler: a.buildHandler(),
	}
	g.Go(func() error {
		slog.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("app: http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shCtx, cancel := context.WithTimeout(context.Background(), httpShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shCtx)
	})

	g.Go(func() error {
		return a.runBridge(ctx)
	})

	return g.Wait()
}

// runBridge joins the configured voice channel, opens the realtime session,
// and pumps audio until the context ends. Teardown always releases the
// guild's registry slot, whatever failed along the way.
func (a *App) runBridge(ctx context.Context) error {
	guildID := a.cfg.Discord.GuildID

	if _, err := a.registry.Begin(guildID); err != nil {
		return fmt.Errorf("app: reserve voice slot: %w", err)
	}

	conn, err := a.transport.Connect(ctx, guildID, a.cfg.Discord.ChannelID)
	if err != nil {
		a.manager.CleanupConnection(guildID, nil)
		return fmt.Errorf("app: join voice channel: %w", err)
	}

	capture, err := audio.NewCaptureResampler(a.cfg.Audio.TransportRate, a.cfg.Audio.APIRate)
	if err != nil {
		a.manager.CleanupConnection(guildID, conn)
		return fmt.Errorf("app: capture resampler: %w", err)
	}
	playback, err := audio.NewPlaybackResampler(a.cfg.Audio.APIRate, a.cfg.Audio.TransportRate)
	if err != nil {
		a.manager.CleanupConnection(guildID, conn)
		return fmt.Errorf("app: playback resampler: %w", err)
	}

	if err := a.registry.Activate(guildID, conn, capture, playback); err != nil {
		a.manager.CleanupConnection(guildID, conn)
		return fmt.Errorf("app: activate voice slot: %w", err)
	}
	a.metrics.ActiveConnections.Add(ctx, 1)
	a.voiceGate.SetReady()
	defer func() {
		a.voiceGate.SetNotReady("voice connection closed")
		a.manager.CleanupConnection(guildID, conn)
	}()

	sess, err := a.provider.Connect(ctx, realtime.SessionConfig{
		Voice:        a.cfg.Realtime.Voice,
		Instructions: a.cfg.Realtime.Instructions,
	})
	if err != nil {
		return fmt.Errorf("app: realtime connect: %w", err)
	}
	a.realtimeGate.SetReady()
	defer func() {
		a.realtimeGate.SetNotReady("realtime session closed")
		_ = sess.Close()
	}()

	b, err := bridge.New(conn, sess, capture, playback)
	if err != nil {
		return fmt.Errorf("app: build bridge: %w", err)
	}

	slog.Info("voice bridge running",
		"guild_id", guildID,
		"channel_id", a.cfg.Discord.ChannelID,
		"transport_rate", a.cfg.Audio.TransportRate,
		"api_rate", a.cfg.Audio.APIRate,
	)
	return b.Run(ctx)
}

// buildHandler assembles the HTTP surface: health probes, Prometheus
// metrics, and the observability middleware around all of it.
func (a *App) buildHandler() http.Handler {
	mux := http.NewServeMux()

	h := health.New(
		a.voiceGate.Checker("voice"),
		a.realtimeGate.Checker("realtime"),
	)
	h.Register(mux)

	mux.Handle("GET /metrics", promhttp.Handler())

	return observe.Middleware(a.metrics)(mux)
}

// Shutdown tears down all subsystems in reverse-init order: any voice
// connections still registered, then everything New opened (the gateway
// session last). It respects the context deadline; remaining closers are
// skipped when ctx expires.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		a.manager.CleanupExisting()

		for i := len(a.closers) - 1; i >= 0; i-- {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", i+1)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := a.closers[i](); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// openGatewayTransport opens a Discord gateway session and wraps it as a
// [Transport]. The returned close function ends the gateway session.
func openGatewayTransport(token string) (Transport, func() error, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, nil, fmt.Errorf("create session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildVoiceStates

	if err := session.Open(); err != nil {
		return nil, nil, fmt.Errorf("open gateway: %w", err)
	}

	return &gatewayTransport{platform: discord.New(session)}, session.Close, nil
}

// gatewayTransport adapts the Discord platform to the app's [Transport]
// interface, narrowing concrete connection types to the small interfaces the
// lifecycle layer needs.
type gatewayTransport struct {
	platform *discord.Platform
}

func (t *gatewayTransport) Connect(ctx context.Context, guildID, channelID string) (VoiceConn, error) {
	return t.platform.Connect(ctx, guildID, channelID)
}

func (t *gatewayTransport) Connections() map[string]voice.Connection {
	raw := t.platform.Connections()
	out := make(map[string]voice.Connection, len(raw))
	for guildID, vc := range raw {
		out[guildID] = vc
	}
	return out
}
