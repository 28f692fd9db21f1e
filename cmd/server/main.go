package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/oklog/run"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	router "github.com/Naveenravi07/mediasoup-video-stream/internal/adapters/http"
	signaladapter "github.com/Naveenravi07/mediasoup-video-stream/internal/adapters/signal"
	"github.com/Naveenravi07/mediasoup-video-stream/internal/admission"
	"github.com/Naveenravi07/mediasoup-video-stream/internal/app"
	"github.com/Naveenravi07/mediasoup-video-stream/internal/bus"
	"github.com/Naveenravi07/mediasoup-video-stream/internal/config"
	"github.com/Naveenravi07/mediasoup-video-stream/internal/core"
	"github.com/Naveenravi07/mediasoup-video-stream/internal/engine/localengine"
	"github.com/Naveenravi07/mediasoup-video-stream/internal/meet"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	// Human-friendly output for terminal; in production you may want JSON only.
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if cfg.Mode == "debug" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	instance := uuid.NewString()
	log.Info().Str("instance", instance).Msg("starting gateway")

	// Shared state: redis when configured, in-process otherwise.
	var (
		store    admission.Store
		eventBus bus.Bus
	)
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			pingCancel()
			log.Fatal().Err(err).Str("addr", cfg.Redis.Addr).Msg("redis unreachable")
		}
		pingCancel()
		store = admission.NewRedisStore(rdb, cfg.Admission.EntryTTL)
		eventBus = bus.NewRedisBus(rdb)
		log.Info().Str("addr", cfg.Redis.Addr).Msg("using redis admission store and bus")
	} else {
		store = admission.NewMemoryStore(cfg.Admission.EntryTTL)
		eventBus = bus.NewMemoryBus()
		log.Info().Msg("no redis configured, running single-process")
	}

	var meets meet.Store
	if cfg.SQLitePath != "" {
		s, err := meet.NewSQLiteStore(cfg.SQLitePath)
		if err != nil {
			log.Fatal().Err(err).Str("path", cfg.SQLitePath).Msg("open meet store")
		}
		defer s.Close()
		meets = s
	} else {
		meets = meet.NewMemoryStore()
	}

	registry := core.NewRegistry(localengine.New(), core.WithKeepEmpty(cfg.Room.KeepEmpty))
	queue := admission.NewQueue(store, eventBus, instance)
	waiters := admission.NewWaiters()

	orch := &app.Orchestrator{
		Meets:             meets,
		Rooms:             registry,
		Admission:         queue,
		Waiters:           waiters,
		Bus:               eventBus,
		Instance:          instance,
		WaitTimeout:       cfg.Admission.WaitTimeout,
		PurgeOnDisconnect: cfg.Admission.PurgeOnDisconnect,
	}

	ctl := signaladapter.NewController(orch, cfg.ReadLimit, cfg.PingPeriod)
	r := router.SetupRouter(ctx, cfg, orch, ctl)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{Addr: addr, Handler: r}

	var g run.Group

	g.Add(func() error {
		<-ctx.Done()
		return ctx.Err()
	}, func(error) {
		cancel()
	})

	g.Add(func() error {
		log.Info().Str("addr", addr).Msg("signaling server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	}, func(error) {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("server forced to shutdown")
		}
	})

	g.Add(func() error {
		return eventBus.Subscribe(ctx, ctl.HandleEvent)
	}, func(error) {
		cancel()
		// closes the shared redis client when the bus runs on one
		if err := eventBus.Close(); err != nil {
			log.Error().Err(err).Msg("close event bus")
		}
	})

	if err := g.Run(); err != nil && err != context.Canceled {
		log.Error().Err(err).Msg("exit")
	}
	log.Info().Msg("server exited gracefully")
}
