package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"arkmanager/internal/api"
	"arkmanager/internal/app"
	"arkmanager/internal/config"
	"arkmanager/internal/logger"

	"github.com/rs/zerolog/log"
)

func main() {
	configDir := flag.String("config", "", "configuration directory (default is the per-user config dir)")
	flag.Parse()

	dir := *configDir
	if dir == "" {
		var err error
		if dir, err = config.DefaultDir(); err != nil {
			fmt.Fprintf(os.Stderr, "Error getting user config directory: %v\n", err)
			os.Exit(1)
		}
	}

	cfg, err := config.Load(dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Log)

	log.Info().
		Str("config", dir).
		Str("database", cfg.DatabasePath).
		Str("cache", cfg.CachePath).
		Str("backups", cfg.BackupsPath).
		Str("steamcmd", cfg.SteamCmd.Path).
		Msg("Starting arkmanager daemon")

	container, err := app.New(cfg, app.ModeDaemon)
	if err != nil {
		log.Fatal().Err(err).Msg("Could not initialise")
	}
	defer container.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	container.Start()

	apiServer := api.NewAPIServer(ctx, container)
	listenAddr := fmt.Sprintf(":%d", cfg.Port)
	log.Info().Str("addr", listenAddr).Msg("API server listening")

	if err := apiServer.Start(ctx, listenAddr); err != nil {
		log.Error().Err(err).Msg("API server stopped")
	}
}
