package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/lumora-ai/lumora/internal/app"
	"github.com/lumora-ai/lumora/internal/config"
	"github.com/lumora-ai/lumora/internal/log"
)

// runServe initializes the application and starts the HTTP API server.
func runServe(logger log.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	addr, err := parseServeAddr()
	if err != nil {
		return fmt.Errorf("parsing address: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("starting lumora", "version", Version, "model", cfg.ModelName)

	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			logger.Warn("shutdown error", "error", closeErr)
		}
	}()

	return a.Serve(ctx, addr)
}
