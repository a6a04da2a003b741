package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pulsehub/pulse/internal/config"
	"github.com/pulsehub/pulse/internal/engine"
	"github.com/rs/zerolog/log"
)

func main() {
	configFile := flag.String("config", "", "Path to configuration file")
	dataDir := flag.String("data-dir", "", "Data directory (overrides config)")
	addr := flag.String("addr", "", "API listen address (overrides config)")
	logLevel := flag.String("log-level", "", "Log level (overrides config)")
	flag.Parse()

	cfg, err := config.LoadConfig(*configFile, *dataDir, *addr, *logLevel)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	eng, err := engine.CreateEngine(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create engine")
	}

	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Info().Str("signal", sig.String()).Msg("Caught signal, shutting down")
		cancel()
	}()

	if err := eng.Start(ctx); err != nil {
		log.Error().Err(err).Msg("Engine error")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := eng.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Shutdown error")
		os.Exit(1)
	}
}
