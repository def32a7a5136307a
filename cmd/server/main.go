package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	router "chorus/internal/adapters/http"
	"chorus/internal/adapters/rtc"
	"chorus/internal/app/graph"
	"chorus/internal/app/hook"
	"chorus/internal/app/orch"
	"chorus/internal/app/pool"
	"chorus/internal/config"
	"chorus/internal/core"
	"chorus/internal/domain"
	"chorus/internal/event"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	pflag.Int("port", 8080, "listen port")
	pflag.String("log-level", "info", "log level")
	pflag.Int("workers", 0, "forwarding worker count")
	pflag.String("ai-endpoint", "", "AI hook endpoint override")
	pflag.Parse()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load(pflag.CommandLine)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(level)
	}

	events := event.NewHub()

	workers := pool.New(rtc.NewWorker, events, pool.Options{
		Count: cfg.Worker.Count,
		Settings: core.WorkerSettings{
			LogLevel:   cfg.Worker.LogLevel,
			LogTags:    cfg.Worker.LogTags,
			RTCMinPort: cfg.Worker.RTCMinPort,
			RTCMaxPort: cfg.Worker.RTCMaxPort,
		},
		Policy:    pool.SupervisionPolicy(cfg.Supervision.Policy),
		ExitGrace: cfg.Supervision.ExitGrace,
	})
	if err := workers.Spawn(); err != nil {
		log.Fatal().Err(err).Msg("failed to spawn forwarding workers")
	}

	sessions := graph.New(workers, events, graph.Options{
		Codecs:             buildCodecs(cfg.Router.Codecs),
		ListenIP:           cfg.Transport.ListenIP,
		AnnouncedIP:        cfg.Transport.AnnouncedIP,
		MaxIncomingBitrate: cfg.Transport.MaxIncomingBitrate,
		MaxOutgoingBitrate: cfg.Transport.MaxOutgoingBitrate,
	})

	notifier := hook.NewNotifier(events)
	notifier.Configure(hook.Config{
		Enabled:   cfg.AIHook.Enabled,
		Endpoint:  cfg.AIHook.Endpoint,
		AuthToken: cfg.AIHook.AuthToken,
	})

	o := &orch.Orchestrator{
		Graph:  sessions,
		Pool:   workers,
		Hook:   notifier,
		Events: events,
	}

	r := router.SetupRouter(ctx, cfg, o)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("Chorus server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	o.Close()
	log.Info().Msg("Server exited gracefully")
}

func buildCodecs(configured []config.CodecConfig) []core.MediaCodec {
	out := make([]core.MediaCodec, 0, len(configured))
	for _, c := range configured {
		kind, err := domain.ParseMediaKind(c.Kind)
		if err != nil {
			log.Warn().Str("kind", c.Kind).Str("mime", c.MimeType).Msg("skipping codec with unknown kind")
			continue
		}
		out = append(out, core.MediaCodec{
			Kind: kind,
			Capability: webrtc.RTPCodecCapability{
				MimeType:  c.MimeType,
				ClockRate: c.ClockRate,
				Channels:  c.Channels,
			},
		})
	}
	return out
}
