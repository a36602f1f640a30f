package cmd

import (
	"fmt"

	"github.com/lumora-ai/lumora/db"
	"github.com/lumora-ai/lumora/internal/config"
	"github.com/lumora-ai/lumora/internal/log"
)

// runMigrate applies pending database migrations and exits.
func runMigrate(logger log.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger.Info("applying migrations",
		"host", cfg.PostgresHost, "database", cfg.PostgresDBName)
	if err := db.Migrate(cfg.DSN()); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	logger.Info("migrations applied")
	return nil
}
