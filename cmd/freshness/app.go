package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/phrazzld/freshness/internal/classifier"
	"github.com/phrazzld/freshness/internal/config"
	"github.com/phrazzld/freshness/internal/domain"
	"github.com/phrazzld/freshness/internal/domain/freshness"
	"github.com/phrazzld/freshness/internal/platform/gemini"
	"github.com/phrazzld/freshness/internal/platform/logger"
	"github.com/phrazzld/freshness/internal/platform/metrics"
	"github.com/phrazzld/freshness/internal/platform/postgres"
	"github.com/phrazzld/freshness/internal/scheduler"
	"github.com/phrazzld/freshness/internal/store"
	"github.com/phrazzld/freshness/internal/verification"
)

// application holds the dependencies shared by every subcommand.
type application struct {
	config  *config.Config
	logger  *slog.Logger
	db      *sql.DB
	metrics *metrics.Metrics
	policy  freshness.Service

	locations *postgres.PostgresLocationStore
	tasks     *postgres.PostgresTaskStore
	audit     *postgres.PostgresAuditLog
	runs      *postgres.PostgresRunTracker
}

// newApplication loads configuration, sets up logging and opens the database.
func newApplication(ctx context.Context, configPath string) (*application, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	l, err := logger.Setup(cfg.Server)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}

	params := freshnessParams(cfg.Freshness)
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("freshness params: %w", err)
	}

	db, err := postgres.Open(ctx, cfg.Database, l)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}

	return &application{
		config:    cfg,
		logger:    l,
		db:        db,
		metrics:   metrics.New(),
		policy:    freshness.NewServiceWithParams(params),
		locations: postgres.NewPostgresLocationStore(db, l),
		tasks:     postgres.NewPostgresTaskStore(db, l),
		audit:     postgres.NewPostgresAuditLog(db, l),
		runs:      postgres.NewPostgresRunTracker(db, l),
	}, nil
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

func (app *application) close() {
	if err := app.db.Close(); err != nil {
		app.logger.Error("failed to close database", slog.String("error", err.Error()))
	}
}

func (app *application) newScheduler() (*scheduler.Scheduler, error) {
	states, err := parseStates(app.config.Scheduler.EnqueueStates)
	if err != nil {
		return nil, err
	}
	return scheduler.New(scheduler.Deps{
		Locations: app.locations,
		Tasks:     app.tasks,
		Tx:        store.NewTxRunner(app.db),
		Policy:    app.policy,
		Runs:      app.runs,
		Metrics:   app.metrics,
		Logger:    app.logger,
	}, states)
}

func (app *application) newConsumer(ctx context.Context) (*verification.Consumer, error) {
	c := app.config.Classifier
	categories, err := domain.NewCategoryTable(c.CategoryAliases)
	if err != nil {
		return nil, err
	}
	prompt, err := gemini.LoadPrompt(app.config.Classifier.PromptTemplate, app.config.LLM.PromptTemplatePath)
	if err != nil {
		return nil, err
	}
	llm, err := gemini.New(ctx, app.logger, app.config.LLM, prompt)
	if err != nil {
		return nil, err
	}
	limited := classifier.NewRateLimited(llm, c.RatePerSecond, c.Burst, c.Timeout)

	v := app.config.Verification
	return verification.New(verification.Deps{
		Tasks:      app.tasks,
		Locations:  app.locations,
		Tx:         store.NewTxRunner(app.db),
		Policy:     app.policy,
		Classifier: limited,
		Audit:      app.audit,
		Runs:       app.runs,
		Metrics:    app.metrics,
		Logger:     app.logger,
	}, verification.Config{
		PromotionThreshold: v.PromotionThreshold,
		Concurrency:        v.Concurrency,
		ProgressEvery:      v.ProgressEvery,
		StaleAfter:         v.StaleAfter,
		Categories:         categories,
	})
}

func (app *application) schedulerOptions(limit int, dryRun bool) scheduler.Options {
	s := app.config.Scheduler
	opts := scheduler.Options{BootstrapLimit: s.BootstrapLimit, EnqueueLimit: s.EnqueueLimit, DryRun: dryRun}
	if limit > 0 {
		opts.BootstrapLimit, opts.EnqueueLimit = limit, limit
	}
	return opts
}

func (app *application) verifyOptions(limit int, dryRun bool) verification.Options {
	v := app.config.Verification
	opts := verification.Options{Limit: v.Limit, MaxAttempts: v.MaxAttempts, DryRun: dryRun}
	if limit > 0 {
		opts.Limit = limit
	}
	return opts
}

// freshnessParams maps the config group onto policy parameters. Zero values
// keep the policy defaults.
func freshnessParams(f config.FreshnessConfig) *freshness.Params {
	return freshness.NewParams(freshness.ParamsConfig{
		TemporarilyClosedDays:     f.TemporarilyClosedDays,
		NotOpenYetDays:            f.NotOpenYetDays,
		VerifiedFewReviewsDays:    f.VerifiedFewReviewsDays,
		VerifiedMediumReviewsDays: f.VerifiedMediumReviewsDays,
		VerifiedManyReviewsDays:   f.VerifiedManyReviewsDays,
		FewReviewsBelow:           f.FewReviewsBelow,
		ManyReviewsFrom:           f.ManyReviewsFrom,
		LowConfidenceDays:         f.LowConfidenceDays,
		MediumConfidenceDays:      f.MediumConfidenceDays,
		HighConfidenceDays:        f.HighConfidenceDays,
		MediumConfidenceFrom:      f.MediumConfidenceFrom,
		HighConfidenceFrom:        f.HighConfidenceFrom,
		AbsMaxDays:                f.AbsMaxDays,
		ClosedMarkers:             f.ClosedMarkers,
	})
}

func parseStates(names []string) ([]domain.LocationState, error) {
	states := make([]domain.LocationState, 0, len(names))
	for _, n := range names {
		st, err := domain.ParseLocationState(n)
		if err != nil {
			return nil, err
		}
		states = append(states, st)
	}
	return states, nil
}
