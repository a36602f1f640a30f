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

// runWorker runs the background learning jobs without the HTTP server. Useful
// when the scheduler should live in its own process.
func runWorker(logger log.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("starting lumora worker", "version", Version)

	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			logger.Warn("shutdown error", "error", closeErr)
		}
	}()

	if err := a.Scheduler.Start(ctx); err != nil {
		return fmt.Errorf("starting scheduler: %w", err)
	}
	<-ctx.Done()
	return nil
}
