package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	router "github.com/dkeye/Stage/internal/adapters/http"
	"github.com/dkeye/Stage/internal/adapters/rtc"
	sig "github.com/dkeye/Stage/internal/adapters/signal"
	"github.com/dkeye/Stage/internal/app"
	"github.com/dkeye/Stage/internal/app/orch"
	"github.com/dkeye/Stage/internal/config"
	"github.com/dkeye/Stage/internal/domain"
	"github.com/dkeye/Stage/internal/metrics"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil && lvl != zerolog.NoLevel {
		zerolog.SetGlobalLevel(lvl)
	}

	engine, err := rtc.NewEngine(rtc.Config{
		ListenIP:    cfg.RTC.ListenIP,
		AnnouncedIP: cfg.RTC.AnnouncedIP,
		UDPPort:     cfg.RTC.UDPPort,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to start media engine")
	}

	signals := sig.NewServer(sig.Options{
		ReadLimit:      cfg.ReadLimit,
		PingPeriod:     cfg.PingPeriod,
		SendBuffer:     cfg.SendBuffer,
		QueueSize:      cfg.QueueSize,
		MessageRate:    cfg.MessageRate,
		MessageBurst:   cfg.MessageBurst,
		RequestTimeout: cfg.RequestTimeout,
	})
	o := &orch.Orchestrator{
		Topology: app.NewTopology(),
		Rooms:    app.NewRoomManager(engine, domain.MediaCodecs),
		Policy:   app.SimplePolicy{},
		Notifier: signals,
	}
	signals.Orch = o

	if err := metrics.RegisterTopology(prometheus.DefaultRegisterer, o.Stats); err != nil {
		log.Fatal().Err(err).Msg("failed to register metrics")
	}

	r := router.SetupRouter(ctx, cfg, o, signals, prometheus.DefaultGatherer)
	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", addr).Msg("Stage server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		select {
		case <-gctx.Done():
			return nil
		case err := <-engine.Died():
			// No room can make progress without the engine.
			log.Error().Err(err).Dur("grace", cfg.RTC.WorkerDeathGrace).Msg("media engine died, exiting")
			time.Sleep(cfg.RTC.WorkerDeathGrace)
			os.Exit(1)
			return nil
		}
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Server forced to shutdown")
		}
		signals.CloseAll()
		o.Rooms.CloseAll()
		return engine.Close()
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("server error")
		os.Exit(1)
	}
	log.Info().Msg("Server exited gracefully")
}
