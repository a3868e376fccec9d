package verification

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/freshness/internal/classifier"
	"github.com/phrazzld/freshness/internal/domain"
	"github.com/phrazzld/freshness/internal/domain/freshness"
	"github.com/phrazzld/freshness/internal/ops"
	"github.com/phrazzld/freshness/internal/platform/logger"
	"github.com/phrazzld/freshness/internal/platform/metrics"
	"github.com/phrazzld/freshness/internal/store"
	"github.com/phrazzld/freshness/internal/task"
	"golang.org/x/sync/errgroup"
)

// Defaults for zero Config fields
const (
	DefaultConcurrency   = 1
	DefaultProgressEvery = 10
	DefaultStaleAfter    = 15 * time.Minute
	DefaultAuditTimeout  = 2 * time.Second
)

// finishTimeout bounds the task transition written after a per-task failure.
// It runs detached from the caller so shutdown does not strand PROCESSING
// tasks.
const finishTimeout = 10 * time.Second

// locationNotFound is the message recorded for tasks whose location is gone.
const locationNotFound = "location not found"

// Task outcome labels for metrics
const (
	resultCompleted = "completed"
	resultRequeued  = "requeued"
	resultFailed    = "failed"
)

// Options bounds one Run.
type Options struct {
	Limit       int
	MaxAttempts int
	DryRun      bool
}

// Counters tallies one Run.
type Counters struct {
	Claimed   int `json:"claimed"`
	Completed int `json:"completed"`
	Requeued  int `json:"requeued"`
	Failed    int `json:"failed"`
	Promoted  int `json:"promoted"`
	Retired   int `json:"retired"`
	Recovered int `json:"recovered"`
	DryRun    int `json:"dry_run"`
}

// Map converts c into run-tracker counters.
func (c Counters) Map() ops.Counters {
	return ops.Counters{
		"claimed":   c.Claimed,
		"completed": c.Completed,
		"requeued":  c.Requeued,
		"failed":    c.Failed,
		"promoted":  c.Promoted,
		"retired":   c.Retired,
		"recovered": c.Recovered,
		"dry_run":   c.DryRun,
	}
}

// Config tunes a Consumer. PromotionThreshold is used as given; other zero
// fields take the package defaults.
type Config struct {
	PromotionThreshold float64
	Concurrency        int
	ProgressEvery      int
	StaleAfter         time.Duration
	AuditTimeout       time.Duration
	// Categories normalizes classifier categories; nil uses the built-in table.
	Categories *domain.CategoryTable
}

// Deps are the collaborators of a Consumer. Audit, Runs, Metrics, Logger and
// Now are optional.
type Deps struct {
	Tasks      task.TaskStore
	Locations  store.LocationStore
	Tx         store.TxRunner
	Policy     freshness.Service
	Classifier classifier.Classifier
	Audit      ops.AuditLog
	Runs       ops.RunTracker
	Metrics    *metrics.Metrics
	Logger     *slog.Logger
	Now        func() time.Time
}

// Consumer processes verification tasks.
type Consumer struct {
	tasks      task.TaskStore
	locations  store.LocationStore
	tx         store.TxRunner
	policy     freshness.Service
	classifier classifier.Classifier
	audit      ops.AuditLog
	runs       ops.RunTracker
	metrics    *metrics.Metrics
	logger     *slog.Logger
	now        func() time.Time
	cfg        Config
}

// New creates a Consumer.
func New(deps Deps, cfg Config) (*Consumer, error) {
	if deps.Tasks == nil {
		return nil, domain.NewValidationError("tasks", "cannot be nil", domain.ErrValidation)
	}
	if deps.Locations == nil {
		return nil, domain.NewValidationError("locations", "cannot be nil", domain.ErrValidation)
	}
	if deps.Tx == nil {
		return nil, domain.NewValidationError("tx", "cannot be nil", domain.ErrValidation)
	}
	if deps.Policy == nil {
		return nil, domain.NewValidationError("policy", "cannot be nil", domain.ErrValidation)
	}
	if deps.Classifier == nil {
		return nil, domain.NewValidationError("classifier", "cannot be nil", domain.ErrValidation)
	}
	if !domain.ValidConfidence(cfg.PromotionThreshold) {
		return nil, domain.NewValidationError("promotion_threshold", "out of range", domain.ErrInvalidConfidence)
	}

	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.ProgressEvery <= 0 {
		cfg.ProgressEvery = DefaultProgressEvery
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = DefaultStaleAfter
	}
	if cfg.AuditTimeout <= 0 {
		cfg.AuditTimeout = DefaultAuditTimeout
	}

	c := &Consumer{
		tasks:      deps.Tasks,
		locations:  deps.Locations,
		tx:         deps.Tx,
		policy:     deps.Policy,
		classifier: deps.Classifier,
		audit:      deps.Audit,
		runs:       deps.Runs,
		metrics:    deps.Metrics,
		logger:     deps.Logger,
		now:        deps.Now,
		cfg:        cfg,
	}
	if c.audit == nil {
		c.audit = ops.NoopAuditLog{}
	}
	if c.runs == nil {
		c.runs = ops.NoopRunTracker{}
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	c.logger = c.logger.With(slog.String("component", "verification_consumer"))
	if c.now == nil {
		c.now = func() time.Time { return time.Now().UTC() }
	}
	return c, nil
}

// Run performs one consumer invocation: recover stale tasks, claim up to
// opts.Limit tasks and process them on a bounded pool. Only a failed claim
// is returned as an error; per-task failures end up in the counters.
func (c *Consumer) Run(ctx context.Context, opts Options) (Counters, error) {
	if opts.MaxAttempts <= 0 {
		return Counters{}, NewError("run", "max attempts must be positive", domain.ErrValidation)
	}
	if opts.DryRun {
		return c.dryRun(ctx, opts)
	}

	runID, err := c.runs.StartRun(ctx, ops.RunKindVerify)
	if err != nil {
		c.logger.WarnContext(ctx, "failed to start run", slog.String("error", err.Error()))
		runID = uuid.Nil
	}
	log := c.logger.With(slog.String("run_id", runID.String()))
	ctx = logger.WithLogger(ctx, log)
	c.track(ctx, runID, "mark running", func() error { return c.runs.MarkRunning(ctx, runID) })

	var counters Counters
	counters.Recovered = c.recoverStale(ctx, opts.MaxAttempts)

	claimed, err := c.tasks.Claim(ctx, opts.Limit, opts.MaxAttempts)
	if err != nil {
		c.track(ctx, runID, "finish run", func() error {
			return c.runs.FinishRun(context.WithoutCancel(ctx), runID, ops.RunStatusFailed,
				counters.Map(), task.SanitizeMessage(err.Error()))
		})
		return counters, NewError("claim", "failed to claim tasks", err)
	}
	counters.Claimed = len(claimed)

	var (
		mu        sync.Mutex
		processed int
		g         errgroup.Group
	)
	g.SetLimit(c.cfg.Concurrency)
	for _, t := range claimed {
		g.Go(func() error {
			res := c.process(ctx, t, opts.MaxAttempts)

			mu.Lock()
			defer mu.Unlock()
			counters.add(res)
			processed++
			if processed%c.cfg.ProgressEvery == 0 || processed == len(claimed) {
				snapshot := counters.Map()
				c.track(ctx, runID, "update progress", func() error {
					return c.runs.UpdateProgress(ctx, runID, ops.Percent(processed, len(claimed)), snapshot)
				})
			}
			return nil
		})
	}
	_ = g.Wait()

	c.track(ctx, runID, "finish run", func() error {
		return c.runs.FinishRun(context.WithoutCancel(ctx), runID, ops.RunStatusSucceeded, counters.Map(), "")
	})
	log.InfoContext(ctx, "verification run finished",
		slog.Int("claimed", counters.Claimed),
		slog.Int("completed", counters.Completed),
		slog.Int("requeued", counters.Requeued),
		slog.Int("failed", counters.Failed),
		slog.Int("promoted", counters.Promoted),
		slog.Int("retired", counters.Retired),
		slog.Int("recovered", counters.Recovered))
	return counters, nil
}

// track calls fn unless the run was never created; failures are logged.
func (c *Consumer) track(ctx context.Context, runID uuid.UUID, what string, fn func() error) {
	if runID == uuid.Nil {
		return
	}
	if err := fn(); err != nil {
		logger.FromContextOrDefault(ctx, c.logger).WarnContext(ctx, "run tracking failed",
			slog.String("op", what),
			slog.String("error", err.Error()))
	}
}

// result is the outcome of one task.
type result struct {
	status  task.TaskStatus
	outcome Outcome
}

func (c *Counters) add(r result) {
	switch r.status {
	case task.TaskStatusCompleted:
		c.Completed++
	case task.TaskStatusPending:
		c.Requeued++
	case task.TaskStatusFailed:
		c.Failed++
	}
	switch r.outcome {
	case OutcomePromoted:
		c.Promoted++
	case OutcomeRetired:
		c.Retired++
	}
}

// process runs one claimed task to a terminal or requeued state.
func (c *Consumer) process(ctx context.Context, t *task.Task, maxAttempts int) result {
	log := logger.FromContextOrDefault(ctx, c.logger).With(
		slog.String("task_id", t.ID.String()),
		slog.String("location_id", t.LocationID.String()),
		slog.Int("attempt", t.Attempts))
	ctx = logger.WithLogger(ctx, log)

	if err := ctx.Err(); err != nil {
		return c.retryOrFail(ctx, t, maxAttempts, err)
	}

	loc, err := c.locations.Get(ctx, t.LocationID)
	if errors.Is(err, store.ErrLocationNotFound) {
		return c.failPermanently(ctx, t, locationNotFound)
	}
	if err != nil {
		return c.retryOrFail(ctx, t, maxAttempts, err)
	}

	if loc.IsTerminal() {
		return c.completeTerminal(ctx, t, loc)
	}

	decision, err := c.decide(ctx, loc)
	if err != nil {
		return c.retryOrFail(ctx, t, maxAttempts, err)
	}

	var (
		before, after *domain.Location
		outcome       Outcome
	)
	now := c.now()
	err = c.tx.RunInTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		locations := c.locations.WithTx(tx)
		cur, err := locations.GetForUpdate(ctx, t.LocationID)
		if err != nil {
			return err
		}
		next, o, err := Apply(c.policy, cur, decision, now, c.cfg.PromotionThreshold)
		if err != nil {
			return err
		}
		if o != OutcomeTerminal {
			if err := locations.UpdateVerification(ctx, next); err != nil {
				return err
			}
		}
		before, after, outcome = cur, next, o
		return c.tasks.WithTx(tx).Complete(ctx, t.ID)
	})
	if errors.Is(err, store.ErrLocationNotFound) {
		return c.failPermanently(ctx, t, locationNotFound)
	}
	if err != nil {
		return c.retryOrFail(ctx, t, maxAttempts, err)
	}

	c.metrics.TaskProcessed(resultCompleted)
	c.auditSuccess(ctx, t, before, after, outcome, decision)
	log.InfoContext(ctx, "location verified",
		slog.String("outcome", string(outcome)),
		slog.String("action", string(decision.Action)),
		slog.Float64("confidence", decision.Confidence))
	return result{status: task.TaskStatusCompleted, outcome: outcome}
}

// decide calls the classifier and validates its answer.
func (c *Consumer) decide(ctx context.Context, loc *domain.Location) (classifier.Decision, error) {
	start := time.Now()
	resp, err := c.classifier.Classify(ctx, classifier.Input{
		Name:         loc.Name,
		Address:      loc.Address,
		CategoryHint: loc.Category,
	})
	c.metrics.ObserveClassifier(time.Since(start), err)
	if err != nil {
		return classifier.Decision{}, err
	}
	return classifier.Validate(resp, loc.Category, c.cfg.Categories)
}

// completeTerminal finishes a task whose location no longer needs checking.
func (c *Consumer) completeTerminal(ctx context.Context, t *task.Task, loc *domain.Location) result {
	if err := c.tasks.Complete(ctx, t.ID); err != nil {
		logger.FromContextOrDefault(ctx, c.logger).WarnContext(ctx, "failed to complete task",
			slog.String("error", err.Error()))
		return result{status: task.TaskStatusProcessing}
	}
	c.metrics.TaskProcessed(resultCompleted)
	logger.FromContextOrDefault(ctx, c.logger).InfoContext(ctx, "location is terminal, nothing to verify",
		slog.String("state", string(loc.State)))
	return result{status: task.TaskStatusCompleted, outcome: OutcomeTerminal}
}

// retryOrFail requeues t, or fails it once its attempts are used up.
func (c *Consumer) retryOrFail(ctx context.Context, t *task.Task, maxAttempts int, cause error) result {
	if t.Attempts >= maxAttempts {
		return c.failPermanently(ctx, t, cause.Error())
	}

	log := logger.FromContextOrDefault(ctx, c.logger)
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finishTimeout)
	defer cancel()
	if err := c.tasks.Requeue(fctx, t.ID); err != nil {
		log.ErrorContext(ctx, "failed to requeue task",
			slog.String("cause", cause.Error()),
			slog.String("error", err.Error()))
		return result{status: task.TaskStatusProcessing}
	}

	c.metrics.TaskProcessed(resultRequeued)
	log.WarnContext(ctx, "task requeued", slog.String("error", task.SanitizeMessage(cause.Error())))
	return result{status: task.TaskStatusPending}
}

func (c *Consumer) failPermanently(ctx context.Context, t *task.Task, message string) result {
	log := logger.FromContextOrDefault(ctx, c.logger)
	message = task.SanitizeMessage(message)

	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finishTimeout)
	defer cancel()
	if err := c.tasks.Fail(fctx, t.ID, message); err != nil {
		log.ErrorContext(ctx, "failed to mark task failed",
			slog.String("cause", message),
			slog.String("error", err.Error()))
		return result{status: task.TaskStatusProcessing}
	}

	c.metrics.TaskProcessed(resultFailed)
	c.auditFailure(ctx, t, message)
	log.ErrorContext(ctx, "task failed", slog.String("error", message))
	return result{status: task.TaskStatusFailed}
}

// recoverStale returns abandoned PROCESSING tasks to the queue and audits
// the ones it had to fail. It returns the number of tasks touched.
func (c *Consumer) recoverStale(ctx context.Context, maxAttempts int) int {
	log := logger.FromContextOrDefault(ctx, c.logger)

	recovery, err := c.tasks.RecoverStale(ctx, c.cfg.StaleAfter, maxAttempts)
	if err != nil {
		log.WarnContext(ctx, "failed to recover stale tasks", slog.String("error", err.Error()))
		return 0
	}
	for _, t := range recovery.Failed {
		c.metrics.TaskProcessed(resultFailed)
		c.auditFailure(ctx, t, task.AbandonedMessage)
		log.ErrorContext(ctx, "stale task failed",
			slog.String("task_id", t.ID.String()),
			slog.String("location_id", t.LocationID.String()),
			slog.Int("attempts", t.Attempts))
	}
	return recovery.Total()
}

func (c *Consumer) auditFailure(ctx context.Context, t *task.Task, message string) {
	ops.LogBestEffort(ctx, c.audit, ops.Entry{
		Action:     ops.ActionVerificationFailed,
		Actor:      ops.ActorVerificationConsumer,
		LocationID: t.LocationID,
		Success:    false,
		Meta: map[string]any{
			"task_id":  t.ID.String(),
			"attempts": t.Attempts,
			"error":    message,
		},
		CreatedAt: c.now(),
	}, c.cfg.AuditTimeout)
}

func (c *Consumer) auditSuccess(
	ctx context.Context,
	t *task.Task,
	before, after *domain.Location,
	outcome Outcome,
	d classifier.Decision,
) {
	action := ops.ActionVerificationCompleted
	switch outcome {
	case OutcomePromoted:
		action = ops.ActionLocationPromoted
	case OutcomeRetired:
		action = ops.ActionLocationRetired
	}

	meta := map[string]any{
		"task_id":    t.ID.String(),
		"attempts":   t.Attempts,
		"outcome":    string(outcome),
		"action":     string(d.Action),
		"confidence": d.Confidence,
	}
	if d.Reason != "" {
		meta["reason"] = task.SanitizeMessage(d.Reason)
	}
	ops.LogBestEffort(ctx, c.audit, ops.Entry{
		Action:     action,
		Actor:      ops.ActorVerificationConsumer,
		LocationID: t.LocationID,
		Before:     snapshotOf(before),
		After:      snapshotOf(after),
		Success:    true,
		Meta:       meta,
		CreatedAt:  c.now(),
	}, c.cfg.AuditTimeout)
}

// dryRun inspects claimable tasks and logs what processing would do.
func (c *Consumer) dryRun(ctx context.Context, opts Options) (Counters, error) {
	var counters Counters
	log := logger.FromContextOrDefault(ctx, c.logger).With(slog.Bool("dry_run", true))

	peeked, err := c.tasks.Peek(ctx, opts.Limit, opts.MaxAttempts)
	if err != nil {
		return counters, NewError("peek", "failed to list claimable tasks", err)
	}

	now := c.now()
	for _, t := range peeked {
		if err := ctx.Err(); err != nil {
			return counters, NewError("dry run", "interrupted", err)
		}
		counters.DryRun++
		tlog := log.With(
			slog.String("task_id", t.ID.String()),
			slog.String("location_id", t.LocationID.String()))

		loc, err := c.locations.Get(ctx, t.LocationID)
		if err != nil {
			tlog.InfoContext(ctx, "would fail or retry task", slog.String("error", err.Error()))
			continue
		}
		if loc.IsTerminal() {
			tlog.InfoContext(ctx, "would complete task for terminal location")
			continue
		}

		decision, err := c.decide(ctx, loc)
		if err != nil {
			tlog.InfoContext(ctx, "would retry task",
				slog.String("error", task.SanitizeMessage(err.Error())))
			continue
		}
		next, outcome, err := Apply(c.policy, loc, decision, now, c.cfg.PromotionThreshold)
		if err != nil {
			tlog.InfoContext(ctx, "would retry task", slog.String("error", err.Error()))
			continue
		}

		attrs := []any{
			slog.String("outcome", string(outcome)),
			slog.String("state", string(next.State)),
			slog.Float64("confidence", decision.Confidence),
		}
		if next.NextCheckAt != nil {
			attrs = append(attrs, slog.Time("next_check_at", *next.NextCheckAt))
		}
		tlog.InfoContext(ctx, "would apply verdict", attrs...)
	}

	log.InfoContext(ctx, "verification dry run finished", slog.Int("inspected", counters.DryRun))
	return counters, nil
}
