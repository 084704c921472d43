package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/adtimokhin/handover/internal/api"
	"github.com/adtimokhin/handover/internal/config"
	"github.com/adtimokhin/handover/internal/daemon"
	"github.com/adtimokhin/handover/internal/log"
	"github.com/adtimokhin/handover/internal/pairing"
	"github.com/adtimokhin/handover/internal/relay"
)

var (
	version   = "v1.0.0"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	// Safe defaults until the real config is loaded.
	log.Configure(log.Config{
		Level:   "info",
		Service: "handover",
		Version: version,
	})
	logger := log.WithComponent("main")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loader := config.NewLoader(*configPath, version)
	cfg, err := loader.Load()
	if err != nil {
		logger.Fatal().
			Err(err).
			Str(log.FieldEvent, "config.load_failed").
			Str("config_path", *configPath).
			Msg("failed to load configuration")
	}

	log.Configure(log.Config{
		Level:   cfg.LogLevel,
		Service: cfg.LogService,
		Version: cfg.Version,
	})

	if *configPath != "" {
		logger.Info().
			Str(log.FieldEvent, "config.loaded").
			Str("source", "file").
			Str("path", *configPath).
			Msg("loaded configuration from file")
	} else {
		logger.Info().
			Str(log.FieldEvent, "config.loaded").
			Str("source", "env+defaults").
			Msg("loaded configuration from environment and defaults")
	}

	logger.Info().
		Str(log.FieldEvent, "startup").
		Str("version", version).
		Str("commit", commit).
		Str("build_date", buildDate).
		Str("addr", cfg.ListenAddr).
		Str("trigger_token", cfg.TriggerToken).
		Dur("poll_interval", cfg.PollInterval).
		Dur("search_timeout", cfg.SearchTimeout).
		Msg("starting handover")

	coord := pairing.NewCoordinator()
	protocol := relay.NewProtocol(coord, nil, cfg.TriggerToken, pairing.SearchConfig{
		PollInterval: cfg.PollInterval,
		Timeout:      cfg.SearchTimeout,
	})
	server := api.NewServer(ctx, cfg, coord, protocol)

	mgr, err := daemon.NewManager(daemon.Deps{
		Config:         cfg,
		APIHandler:     server.Routes(),
		MetricsHandler: promhttp.Handler(),
	})
	if err != nil {
		logger.Fatal().
			Err(err).
			Str(log.FieldEvent, "manager.creation_failed").
			Msg("failed to create daemon manager")
	}

	if err := mgr.Start(ctx); err != nil {
		logger.Fatal().
			Err(err).
			Str(log.FieldEvent, "manager.failed").
			Msg("daemon manager failed")
	}

	logger.Info().Msg("server exiting")
}
