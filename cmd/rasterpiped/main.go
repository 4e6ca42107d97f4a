package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	rasterpipe "github.com/Skryldev/rasterpipe"
	"github.com/Skryldev/rasterpipe/config"
	"github.com/Skryldev/rasterpipe/hooks"
	"github.com/Skryldev/rasterpipe/internal/transport"
)

const (
	shutdownTimeout = 5 * time.Second
	maxRequestBody  = 256 << 20
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	open := flag.String("open", "", "image to open at startup")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logger, err := hooks.NewLogger(cfg.LogLevel, cfg.LogFormat, os.Stdout)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build logger")
	}
	log.Logger = logger.Zerolog()
	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	metrics := hooks.NewInMemoryMetrics()
	coord, err := rasterpipe.New(cfg,
		rasterpipe.WithLogger(logger),
		rasterpipe.WithMetrics(metrics),
		rasterpipe.WithHook(hooks.NewLoggingHook(logger)),
		rasterpipe.WithHook(hooks.NewMetricsHook(metrics)),
	)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create coordinator")
	}
	coord.Start()
	defer coord.Stop()

	if *open != "" {
		src, err := rasterpipe.FromFile(*open)
		if err != nil {
			log.Error().Err(err).Str("path", *open).Msg("Failed to open startup image")
		} else if _, err := coord.Navigate(src); err != nil {
			log.Error().Err(err).Str("path", *open).Msg("Failed to navigate to startup image")
		}
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           transport.NewHandler(coord, logger, maxRequestBody),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	snap := metrics.Snapshot()
	log.Info().
		Int64("throughput_bytes", snap.TotalThroughputB).
		Int64("resident_bytes", snap.ResidentB).
		Interface("step_calls", snap.StepCalls).
		Msg("Server exited")
}
