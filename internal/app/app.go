// Package app assembles the application: configuration, AI backend, storage,
// the response pipeline, the learning loop, and the HTTP server.
//
// Setup builds everything; Close releases it in reverse order. Components
// receive their dependencies through constructors, never through globals.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/firebase/genkit/go/genkit"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lumora-ai/lumora/internal/api"
	"github.com/lumora-ai/lumora/internal/config"
	"github.com/lumora-ai/lumora/internal/feedback"
	"github.com/lumora-ai/lumora/internal/knowledge"
	"github.com/lumora-ai/lumora/internal/log"
	"github.com/lumora-ai/lumora/internal/orchestrator"
	"github.com/lumora-ai/lumora/internal/scheduler"
	"github.com/lumora-ai/lumora/internal/session"
)

// App is the application container.
type App struct {
	Config *config.Config
	Logger log.Logger

	Genkit *genkit.Genkit
	Pool   *pgxpool.Pool

	Knowledge  *knowledge.Store
	Sessions   *session.Store
	Thresholds *config.Store

	Pipeline  *orchestrator.Orchestrator
	Feedback  *feedback.Service
	Scheduler *scheduler.Runner
	Server    *api.Server
}

// Close releases all resources. Safe to call on a partially built App.
func (a *App) Close() error {
	if a.Logger != nil {
		a.Logger.Info("shutting down")
	}

	if a.Scheduler != nil {
		a.Scheduler.Stop()
	}
	if a.Pool != nil {
		a.Pool.Close()
	}
	return nil
}

// Serve starts the background scheduler and the HTTP server, blocking until
// ctx is canceled, then shuts the server down gracefully.
func (a *App) Serve(ctx context.Context, addr string) error {
	if err := a.Scheduler.Start(ctx); err != nil {
		return fmt.Errorf("starting scheduler: %w", err)
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           a.Server,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info("http server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down http server: %w", err)
	}
	return nil
}
