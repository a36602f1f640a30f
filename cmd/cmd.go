// Package cmd provides the CLI commands for Lumora.
//
// Commands:
//   - serve: HTTP API server with the full response pipeline
//   - worker: background learning jobs without the HTTP server
//   - migrate: apply pending database migrations and exit
//
// The serve command handles SIGINT/SIGTERM with graceful shutdown via
// context cancellation.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/lumora-ai/lumora/internal/log"
)

// Execute is the main entry point for the Lumora CLI.
func Execute() error {
	level := slog.LevelInfo
	if os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	logger := log.New(log.Config{Level: level, JSON: os.Getenv("LUMORA_LOG_JSON") != ""})

	if len(os.Args) < 2 {
		runHelp()
		return nil
	}

	switch os.Args[1] {
	case "serve":
		return runServe(logger)
	case "worker":
		return runWorker(logger)
	case "migrate":
		return runMigrate(logger)
	case "version", "--version", "-v":
		runVersion()
		return nil
	case "help", "--help", "-h":
		runHelp()
		return nil
	default:
		return fmt.Errorf("unknown command: %s", os.Args[1])
	}
}

// runHelp displays the help message.
func runHelp() {
	fmt.Println("Lumora - multi-tenant retrieval-augmented chatbot platform")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  lumora serve [addr] Start the HTTP API server (default: 127.0.0.1:8080)")
	fmt.Println("  lumora worker       Run the background learning jobs only")
	fmt.Println("  lumora migrate      Apply pending database migrations and exit")
	fmt.Println("  lumora --version    Show version information")
	fmt.Println("  lumora --help       Show this help")
	fmt.Println()
	fmt.Println("Environment Variables:")
	fmt.Println("  GEMINI_API_KEY            Required: Gemini API key")
	fmt.Println("  LUMORA_POSTGRES_HOST      PostgreSQL host (default: localhost)")
	fmt.Println("  LUMORA_POSTGRES_PASSWORD  PostgreSQL password")
	fmt.Println("  LUMORA_LOG_JSON           Optional: JSON log output")
	fmt.Println("  DEBUG                     Optional: debug logging")
}
