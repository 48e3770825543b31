// Package control wires the classification service together: storage,
// migrations, cache, clients, engine, orchestrator and the ops server.
package control

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pressly/goose/v3"

	"github.com/vietddude/starsort/internal/classify/decision"
	"github.com/vietddude/starsort/internal/classify/engine"
	"github.com/vietddude/starsort/internal/classify/health"
	"github.com/vietddude/starsort/internal/classify/job"
	"github.com/vietddude/starsort/internal/core/config"
	"github.com/vietddude/starsort/internal/core/domain"
	"github.com/vietddude/starsort/internal/core/rules"
	"github.com/vietddude/starsort/internal/core/taxonomy"
	"github.com/vietddude/starsort/internal/infra/ai"
	"github.com/vietddude/starsort/internal/infra/github"
	redisclient "github.com/vietddude/starsort/internal/infra/redis"
	"github.com/vietddude/starsort/internal/infra/storage"
	"github.com/vietddude/starsort/internal/infra/storage/memory"
	"github.com/vietddude/starsort/internal/infra/storage/postgres"
)

// App is the assembled classification service.
type App struct {
	cfg          config.AppConfig
	db           *postgres.DB
	redisClient  *redisclient.Client
	repos        storage.RepoStore
	tasks        storage.TaskStore
	orchestrator *job.Orchestrator
	server       *health.Server
	log          *slog.Logger
}

// New creates the application with all dependencies initialized. Without a
// database URL it falls back to in-memory storage, which is only useful for
// local experiments.
func New(ctx context.Context, cfg config.AppConfig) (*App, error) {
	log := slog.Default().With("component", "app")

	var repos storage.RepoStore
	var tasks storage.TaskStore
	var db *postgres.DB

	if cfg.Database.URL != "" {
		var err error
		db, err = postgres.NewDB(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to init db: %w", err)
		}

		// Run migrations
		if err := goose.SetDialect("postgres"); err != nil {
			return nil, err
		}
		if err := goose.Up(db.DB.DB, "migrations"); err != nil {
			return nil, fmt.Errorf("failed to migrate db: %w", err)
		}

		repos = postgres.NewRepoRepo(db, cfg.Classify.FailCountCeiling)
		tasks = postgres.NewTaskRepo(db)
		log.Info("using PostgreSQL storage")
	} else {
		store := memory.NewStorage(cfg.Classify.FailCountCeiling)
		repos = memory.NewRepoRepo(store)
		tasks = memory.NewTaskRepo(store)
		log.Warn("no database configured, using in-memory storage")
	}

	// Orphaned task records from a crashed process are failed at startup.
	if n, err := tasks.ResetStaleTasks(ctx, cfg.Classify.TaskStaleAfter); err != nil {
		log.Warn("failed to reset stale tasks", "error", err)
	} else if n > 0 {
		log.Info("reset stale tasks", "count", n)
	}

	var redisClient *redisclient.Client
	if cfg.Redis.URL != "" {
		var err error
		redisClient, err = redisclient.NewClient(cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("failed to init redis: %w", err)
		}
		log.Info("redis cache connected")
	}

	tax, err := taxonomy.Load(cfg.Classify.TaxonomyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load taxonomy: %w", err)
	}

	ruleSet := rules.Load(cfg.Classify.RulesJSON, cfg.Classify.RulesPath)
	log.Info("rule set loaded", "rules", len(ruleSet))

	var aiClient engine.AIClassifier
	if cfg.AI.Enabled() {
		if err := cfg.AI.Validate(); err != nil {
			return nil, fmt.Errorf("invalid ai configuration: %w", err)
		}
		aiClient = ai.NewClient(cfg.AI)
		log.Info("AI provider configured", "provider", cfg.AI.Provider, "model", cfg.AI.Model)
	} else {
		log.Info("AI provider not configured, rules and manual routes only")
	}

	mode, err := resolveMode(cfg.Classify.Mode, aiClient != nil, len(ruleSet) > 0, log)
	if err != nil {
		return nil, err
	}

	policy := decision.Policy{
		DirectRuleThreshold: cfg.Classify.DirectRuleThreshold,
		AIRequiredThreshold: cfg.Classify.AIRequiredThreshold,
	}
	eng := engine.New(tax, ruleSet, mode, policy, cfg.Classify.AIRetries)

	var readme job.ReadmeFetcher
	if cfg.GitHub.Token != "" {
		readme = github.NewClient(cfg.GitHub)
	}

	var cache job.Cache
	if redisClient != nil {
		cache = redisClient
	}

	orchestrator := job.New(repos, tasks, eng, aiClient, readme, cache, cfg.Classify)

	var dbChecker, cacheChecker health.Checker
	if db != nil {
		dbChecker = db
	} else {
		dbChecker = alwaysHealthy{}
	}
	if redisClient != nil {
		cacheChecker = redisClient
	}
	server := health.NewServer(orchestrator, dbChecker, cacheChecker, cfg.Server.Port)

	return &App{
		cfg:          cfg,
		db:           db,
		redisClient:  redisClient,
		repos:        repos,
		tasks:        tasks,
		orchestrator: orchestrator,
		server:       server,
		log:          log,
	}, nil
}

// Orchestrator exposes the run controller for the CLI.
func (a *App) Orchestrator() *job.Orchestrator {
	return a.orchestrator
}

// Repos exposes the repo store for the CLI.
func (a *App) Repos() storage.RepoStore {
	return a.repos
}

// Tasks exposes the task store for the CLI.
func (a *App) Tasks() storage.TaskStore {
	return a.tasks
}

// Start runs the ops HTTP server until the context is cancelled.
func (a *App) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		a.log.Info("ops server listening", "port", a.cfg.Server.Port)
		errCh <- a.server.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return a.Stop()
	}
}

// Stop shuts the application down, waiting for a live run to notice the
// cancellation.
func (a *App) Stop() error {
	a.log.Info("shutting down")

	a.orchestrator.Stop()
	a.orchestrator.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.server.Stop(shutdownCtx); err != nil {
		a.log.Warn("ops server shutdown failed", "error", err)
	}

	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.log.Warn("redis close failed", "error", err)
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.Warn("database close failed", "error", err)
		}
	}
	return nil
}

// resolveMode checks a forced mode against what is actually wired. A mode
// whose only source is missing degrades to the other source when that one is
// available, otherwise configuration is unusable and startup fails.
func resolveMode(mode domain.ClassifyMode, haveAI, haveRules bool, log *slog.Logger) (domain.ClassifyMode, error) {
	switch mode {
	case domain.ModeAIOnly:
		if haveAI {
			return mode, nil
		}
		if haveRules {
			log.Warn("ai_only mode without an AI provider, degrading to rules_only")
			return domain.ModeRulesOnly, nil
		}
		return "", fmt.Errorf("ai_only mode requires an AI provider")
	case domain.ModeRulesOnly:
		if haveRules {
			return mode, nil
		}
		if haveAI {
			log.Warn("rules_only mode without rules, degrading to ai_only")
			return domain.ModeAIOnly, nil
		}
		return "", fmt.Errorf("rules_only mode requires a rule set")
	}
	return mode, nil
}

type alwaysHealthy struct{}

func (alwaysHealthy) Health(context.Context) error { return nil }
