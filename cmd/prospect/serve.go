package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/ternarybob/prospect/internal/app"
)

// runServe runs the pipeline until interrupted
func runServe() {
	ctx := context.Background()

	application, err := app.New(ctx, config, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize application")
	}

	if err := application.Start(); err != nil {
		application.Close()
		logger.Fatal().Err(err).Msg("Failed to start application")
	}

	logger.Info().Msg("Pipeline running - Press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info().Msg("Interrupt received, shutting down")

	if err := application.Close(); err != nil {
		logger.Error().Err(err).Msg("Shutdown failed")
		os.Exit(1)
	}
}
