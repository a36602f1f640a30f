package app

import (
	"context"
	"fmt"
	"time"

	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lumora-ai/lumora/db"
	"github.com/lumora-ai/lumora/internal/api"
	"github.com/lumora-ai/lumora/internal/config"
	"github.com/lumora-ai/lumora/internal/feedback"
	"github.com/lumora-ai/lumora/internal/genai"
	"github.com/lumora-ai/lumora/internal/intent"
	"github.com/lumora-ai/lumora/internal/knowledge"
	"github.com/lumora-ai/lumora/internal/log"
	"github.com/lumora-ai/lumora/internal/orchestrator"
	"github.com/lumora-ai/lumora/internal/plan"
	"github.com/lumora-ai/lumora/internal/respond"
	"github.com/lumora-ai/lumora/internal/scheduler"
	"github.com/lumora-ai/lumora/internal/session"
	"github.com/lumora-ai/lumora/internal/validate"
)

// Background job names. LearningJobName in api triggers the first one.
const (
	learningBatchJob       = "learning.batch"
	thresholdAdjustmentJob = "learning.thresholds"
)

// Setup creates and initializes the application. On failure everything
// already initialized is released before returning.
func Setup(ctx context.Context, cfg *config.Config, logger log.Logger) (_ *App, retErr error) {
	if cfg == nil {
		return nil, config.ErrConfigNil
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	a := &App{Config: cfg, Logger: logger}
	defer func() {
		if retErr != nil {
			_ = a.Close()
		}
	}()

	pool, err := providePool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.Pool = pool

	g, embedder, gen, err := provideGenAI(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.Genkit = g

	knowledgeQuerier, err := knowledge.NewPGQuerier(pool)
	if err != nil {
		return nil, err
	}
	a.Knowledge, err = knowledge.New(knowledgeQuerier, embedder, logger.With("component", "knowledge"))
	if err != nil {
		return nil, err
	}

	sessionQuerier, err := session.NewPGQuerier(pool)
	if err != nil {
		return nil, err
	}
	a.Sessions, err = session.New(sessionQuerier, logger.With("component", "session"))
	if err != nil {
		return nil, err
	}

	feedbackQuerier, err := feedback.NewPGQuerier(pool)
	if err != nil {
		return nil, err
	}

	// Live thresholds: start from config, overlay the persisted adjustments.
	a.Thresholds = config.NewStore(cfg.Thresholds, feedbackQuerier)
	if err := a.Thresholds.LoadPersisted(ctx); err != nil {
		logger.Warn("loading persisted thresholds failed, using configured values", "error", err)
	}

	classifier, err := provideClassifier(ctx, cfg, embedder, gen, logger)
	if err != nil {
		return nil, err
	}

	planner, err := plan.NewPlanner(gen, logger.With("component", "plan"))
	if err != nil {
		return nil, err
	}
	executor, err := plan.NewExecutor(logger.With("component", "plan"))
	if err != nil {
		return nil, err
	}
	registerActionHandlers(executor, a.Knowledge, gen, cfg.Pipeline.RetrievalTopK)

	generator, err := respond.New(gen, cfg.Persona, genai.Options{
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
	}, logger.With("component", "respond"))
	if err != nil {
		return nil, err
	}

	validator, err := validate.New(gen, logger.With("component", "validate"))
	if err != nil {
		return nil, err
	}

	a.Pipeline, err = orchestrator.New(orchestrator.Config{
		Classifier: classifier,
		Retriever:  a.Knowledge,
		Planner:    planner,
		Executor:   executor,
		Generator:  generator,
		Validator:  validator,
		Sessions:   a.Sessions,
		Thresholds: a.Thresholds,
		Pipeline:   cfg.Pipeline,
		Logger:     logger.With("component", "orchestrator"),
	})
	if err != nil {
		return nil, err
	}

	a.Feedback, err = feedback.NewService(feedbackQuerier, a.Knowledge, gen,
		a.Thresholds, cfg.Learning, logger.With("component", "feedback"))
	if err != nil {
		return nil, err
	}

	a.Scheduler, err = provideScheduler(a.Feedback, cfg.Learning, logger)
	if err != nil {
		return nil, err
	}

	a.Server, err = api.NewServer(api.ServerConfig{
		Pipeline: a.Pipeline,
		Feedback: a.Feedback,
		Trigger:  a.Scheduler,
		Pinger:   pool,
		Logger:   logger.With("component", "api"),
	})
	if err != nil {
		return nil, err
	}

	return a, nil
}

// providePool runs migrations and opens the connection pool.
func providePool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	if err := db.Migrate(cfg.DSN()); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parsing connection config: %w", err)
	}
	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = time.Hour

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return pool, nil
}

// provideGenAI initializes Genkit with the Google AI plugin and wraps the
// model behind the resilience layer.
func provideGenAI(ctx context.Context, cfg *config.Config, logger log.Logger) (*genkit.Genkit, genai.Embedder, genai.Generator, error) {
	g := genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
	if g == nil {
		return nil, nil, nil, fmt.Errorf("initializing genkit with googleai provider")
	}

	raw := googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel)
	if raw == nil {
		return nil, nil, nil, fmt.Errorf("embedder %q not found", cfg.EmbedderModel)
	}
	embedder, err := genai.NewGenkitEmbedder(raw)
	if err != nil {
		return nil, nil, nil, err
	}

	client, err := genai.NewClient(g, cfg.FullModelName())
	if err != nil {
		return nil, nil, nil, err
	}
	gen := genai.NewResilient(client, genai.ResilientConfig{}, logger.With("component", "genai"))

	return g, embedder, gen, nil
}

// provideClassifier builds the example index and the three-tier classifier.
func provideClassifier(ctx context.Context, cfg *config.Config, embedder genai.Embedder, gen genai.Generator, logger log.Logger) (*intent.Classifier, error) {
	index, err := intent.NewExampleIndex(embedder)
	if err != nil {
		return nil, err
	}
	// An unreachable embedding backend at boot only degrades the semantic
	// tier; pattern and LLM tiers still work.
	if err := index.Reload(ctx); err != nil {
		logger.Warn("building intent example index failed, semantic tier disabled until reload", "error", err)
	}

	return intent.NewClassifier(intent.ClassifierConfig{
		Index:       index,
		Embedder:    embedder,
		Generator:   gen,
		LLMFallback: cfg.LLMFallbackEnabled,
		Logger:      logger.With("component", "intent"),
	})
}

// provideScheduler registers the learning-loop jobs.
func provideScheduler(svc *feedback.Service, learning config.LearningConfig, logger log.Logger) (*scheduler.Runner, error) {
	runner, err := scheduler.New(logger.With("component", "scheduler"))
	if err != nil {
		return nil, err
	}

	// Trigger-only: fired by the feedback endpoint after every Nth negative.
	if err := runner.Add(scheduler.Job{
		Name: api.LearningJobName,
		Run:  svc.AnalyzeAll,
	}); err != nil {
		return nil, err
	}

	if err := runner.Add(scheduler.Job{
		Name:     learningBatchJob,
		Interval: learning.BatchInterval,
		Run:      svc.AnalyzeAll,
	}); err != nil {
		return nil, err
	}

	if err := runner.Add(scheduler.Job{
		Name:     thresholdAdjustmentJob,
		Interval: learning.BatchInterval,
		Run:      svc.ApplyThresholdAdjustments,
	}); err != nil {
		return nil, err
	}

	return runner, nil
}
