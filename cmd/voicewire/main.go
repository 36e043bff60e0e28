// Command voicewire is a terminal voice client: it captures microphone audio,
// streams it to a conversational agent over a websocket, and plays the
// agent's replies back through the speakers.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/convogrid/voicewire/internal/config"
	"github.com/convogrid/voicewire/internal/health"
	"github.com/convogrid/voicewire/internal/observe"
	"github.com/convogrid/voicewire/internal/resilience"
	"github.com/convogrid/voicewire/internal/session"
	"github.com/convogrid/voicewire/internal/turn"
	"github.com/convogrid/voicewire/pkg/capture"
	captureportaudio "github.com/convogrid/voicewire/pkg/capture/portaudio"
	playbackportaudio "github.com/convogrid/voicewire/pkg/playback/portaudio"
	"github.com/convogrid/voicewire/pkg/synth"
	"github.com/convogrid/voicewire/pkg/synth/httpsynth"
	"github.com/convogrid/voicewire/pkg/transport"
	"github.com/convogrid/voicewire/pkg/transport/ws"
	"github.com/convogrid/voicewire/pkg/wire"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Logger ─────────────────────────────────────────────────────────────────
	// The level is held in a LevelVar so a config rewrite can change it live.
	level := new(slog.LevelVar)
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	// ── Configuration (watched for rewrites) ──────────────────────────────────
	watcher, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
		d := config.Diff(old, new)
		if d.LogLevelChanged {
			level.Set(slogLevel(d.NewLogLevel))
			slog.Info("log level changed", "level", d.NewLogLevel)
		}
		if d.SynthChanged {
			slog.Info("synth config changed; applies to the next session",
				"changes", len(d.SynthChanges))
		}
	})
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "voicewire: config file %q not found\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "voicewire: %v\n", err)
		}
		return 1
	}
	defer watcher.Stop()

	cfg := watcher.Current()
	level.Set(slogLevel(cfg.Server.LogLevel))

	slog.Info("voicewire starting",
		"config", *configPath,
		"endpoint", cfg.Transport.Endpoint,
		"sample_rate", cfg.Session.SampleRate,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ─────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ──────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "voicewire"})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Synthesis backends ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinSynths(reg)

	synthesizer, err := buildSynth(cfg, reg)
	if err != nil {
		slog.Error("failed to build synth backends", "err", err)
		return 1
	}

	// ── Device adapters and transport ──────────────────────────────────────────
	channel := ws.New(ws.WithSendQueueSize(cfg.Transport.SendQueueFrames))
	source := captureportaudio.New(capture.Config{
		SampleRate:    cfg.Session.SampleRate,
		ChunkInterval: cfg.Session.ChunkInterval(),
		Device:        cfg.Capture.Device,
	})
	sink := playbackportaudio.New()

	// ── Operational endpoints ──────────────────────────────────────────────────
	g, opsCtx := errgroup.WithContext(ctx)
	if cfg.Server.MetricsAddr != "" {
		startOpsServer(opsCtx, g, cfg.Server.MetricsAddr, channel)
	}

	// ── Session ────────────────────────────────────────────────────────────────
	manager := session.NewManager(cfg)
	ended := make(chan session.EndReason, 1)

	deps := session.Deps{
		Credentials: session.StaticCredentials(session.Credentials{
			Endpoint:  cfg.Transport.Endpoint,
			AuthToken: cfg.Transport.AuthToken,
		}),
		Transport: channel,
		Capture:   source,
		Sink:      sink,
		Codec:     &wire.JSONCodec{Base64Audio: cfg.Transport.Base64Audio},
		Synth:     synthesizer,
	}
	cbs := session.Callbacks{
		OnTranscript: func(t session.Transcript) {
			if t.IsFinal {
				fmt.Printf("%s> %s\n", t.Speaker, t.Text)
			}
		},
		OnTurnChanged: func(state turn.State) {
			slog.Debug("turn", "state", state)
		},
		OnEnded: func(reason session.EndReason) {
			ended <- reason
		},
	}

	s, err := manager.Start(ctx, deps, cbs)
	if err != nil {
		slog.Error("failed to start session", "err", err)
		stop()
		_ = g.Wait()
		return 1
	}
	slog.Info("conversation live — press Ctrl+C to hang up", "session_id", s.ID())

	// ── Wait for hangup or session end ─────────────────────────────────────────
	exit := 0
	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received, stopping…")
		manager.Stop()
		<-ended
	case reason := <-ended:
		if reason != session.EndStopped {
			slog.Error("session ended", "reason", reason)
			exit = 1
		}
	}

	stop()
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Warn("ops server error", "err", err)
	}
	slog.Info("goodbye")
	return exit
}

// ── Synth wiring ──────────────────────────────────────────────────────────────

// registerBuiltinSynths wires the synthesis backend factories that ship with
// voicewire into reg.
func registerBuiltinSynths(reg *config.Registry) {
	reg.RegisterSynth("http", func(entry config.SynthEntry) (synth.Provider, error) {
		var opts []httpsynth.Option
		if entry.Voice != "" {
			opts = append(opts, httpsynth.WithVoice(entry.Voice))
		}
		if entry.TimeoutMs > 0 {
			opts = append(opts, httpsynth.WithTimeout(entry.Timeout()))
		}
		return httpsynth.New(entry.BaseURL, opts...), nil
	})
}

// buildSynth instantiates the configured synthesis backends as a failover
// chain. Returns nil when no backends are configured; the session then relies
// on the agent sending audio directly.
func buildSynth(cfg *config.Config, reg *config.Registry) (synth.Provider, error) {
	if len(cfg.Synth) == 0 {
		return nil, nil
	}

	var chain *resilience.SynthChain
	for i, entry := range cfg.Synth {
		p, err := reg.CreateSynth(entry)
		if err != nil {
			return nil, fmt.Errorf("create synth backend %q: %w", entry.Name, err)
		}
		if i == 0 {
			chain = resilience.NewSynthChain(entry.Name, p, resilience.BreakerConfig{Name: entry.Name})
		} else {
			chain.Add(entry.Name, p)
		}
		slog.Info("synth backend registered", "name", entry.Name, "backend", entry.Backend)
	}
	return chain, nil
}

// ── Operational endpoints ─────────────────────────────────────────────────────

// startOpsServer serves /metrics, /healthz, and /readyz on addr until ctx is
// cancelled.
func startOpsServer(ctx context.Context, g *errgroup.Group, addr string, channel transport.Channel) {
	checker := health.New(health.Checker{
		Name: "transport",
		Check: func(context.Context) error {
			if st := channel.State(); st != transport.StateOpen {
				return fmt.Errorf("connection %s", st)
			}
			return nil
		},
	})

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())
	checker.Register(mux)

	srv := &http.Server{
		Addr:              addr,
		Handler:           observe.Middleware(observe.DefaultMetrics())(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g.Go(func() error {
		slog.Info("ops server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shCtx)
	})
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
