package scheduler

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/freshness/internal/domain"
	"github.com/phrazzld/freshness/internal/domain/freshness"
	"github.com/phrazzld/freshness/internal/ops"
	"github.com/phrazzld/freshness/internal/platform/logger"
	"github.com/phrazzld/freshness/internal/platform/metrics"
	"github.com/phrazzld/freshness/internal/store"
	"github.com/phrazzld/freshness/internal/task"
)

// Metric phases
const (
	phaseBootstrap = "bootstrap"
	phaseEnqueue   = "enqueue"
)

// Counters tallies one scheduler call. In dry-run mode Updated and Enqueued
// count the writes that would have been made.
type Counters struct {
	Selected      int  `json:"selected"`
	Updated       int  `json:"updated"`
	Enqueued      int  `json:"enqueued"`
	AlreadyQueued int  `json:"already_queued"`
	Skipped       int  `json:"skipped"`
	Errors        int  `json:"errors"`
	DryRun        bool `json:"dry_run"`
}

// Add returns the field-wise sum of c and o.
func (c Counters) Add(o Counters) Counters {
	return Counters{
		Selected:      c.Selected + o.Selected,
		Updated:       c.Updated + o.Updated,
		Enqueued:      c.Enqueued + o.Enqueued,
		AlreadyQueued: c.AlreadyQueued + o.AlreadyQueued,
		Skipped:       c.Skipped + o.Skipped,
		Errors:        c.Errors + o.Errors,
		DryRun:        c.DryRun || o.DryRun,
	}
}

// Map converts c into run-tracker counters.
func (c Counters) Map() ops.Counters {
	m := ops.Counters{
		"selected":       c.Selected,
		"updated":        c.Updated,
		"enqueued":       c.Enqueued,
		"already_queued": c.AlreadyQueued,
		"skipped":        c.Skipped,
		"errors":         c.Errors,
	}
	if c.DryRun {
		m["dry_run"] = 1
	}
	return m
}

// Options bounds one Run.
type Options struct {
	BootstrapLimit int
	EnqueueLimit   int
	DryRun         bool
}

// Deps are the collaborators of a Scheduler. Runs, Metrics, Logger and Now
// are optional.
type Deps struct {
	Locations store.LocationStore
	Tasks     task.TaskStore
	Tx        store.TxRunner
	Policy    freshness.Service
	Runs      ops.RunTracker
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
	Now       func() time.Time
}

// Scheduler runs the bootstrap and enqueue-due batches.
type Scheduler struct {
	locations     store.LocationStore
	tasks         task.TaskStore
	tx            store.TxRunner
	policy        freshness.Service
	runs          ops.RunTracker
	metrics       *metrics.Metrics
	logger        *slog.Logger
	now           func() time.Time
	enqueueStates []domain.LocationState
}

// New creates a Scheduler. enqueueStates selects which location states
// EnqueueDue considers; empty means VERIFIED only.
func New(deps Deps, enqueueStates []domain.LocationState) (*Scheduler, error) {
	if deps.Locations == nil {
		return nil, domain.NewValidationError("locations", "cannot be nil", domain.ErrValidation)
	}
	if deps.Tasks == nil {
		return nil, domain.NewValidationError("tasks", "cannot be nil", domain.ErrValidation)
	}
	if deps.Tx == nil {
		return nil, domain.NewValidationError("tx", "cannot be nil", domain.ErrValidation)
	}
	if deps.Policy == nil {
		return nil, domain.NewValidationError("policy", "cannot be nil", domain.ErrValidation)
	}
	for _, st := range enqueueStates {
		if !st.IsValid() || st.IsTerminal() {
			return nil, domain.NewValidationError("enqueue_states", string(st), domain.ErrInvalidLocationState)
		}
	}
	if len(enqueueStates) == 0 {
		enqueueStates = []domain.LocationState{domain.LocationStateVerified}
	}

	l := deps.Logger
	if l == nil {
		l = slog.Default()
	}
	runs := deps.Runs
	if runs == nil {
		runs = ops.NoopRunTracker{}
	}
	now := deps.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}

	return &Scheduler{
		locations:     deps.Locations,
		tasks:         deps.Tasks,
		tx:            deps.Tx,
		policy:        deps.Policy,
		runs:          runs,
		metrics:       deps.Metrics,
		logger:        l.With(slog.String("component", "scheduler")),
		now:           now,
		enqueueStates: append([]domain.LocationState(nil), enqueueStates...),
	}, nil
}

// Run records a scheduler run in the run tracker, then runs Bootstrap and
// EnqueueDue. Dry runs are not recorded.
func (s *Scheduler) Run(ctx context.Context, opts Options) (Counters, error) {
	if opts.DryRun {
		boot, err := s.Bootstrap(ctx, opts.BootstrapLimit, true)
		if err != nil {
			return boot, err
		}
		due, err := s.EnqueueDue(ctx, opts.EnqueueLimit, true)
		return boot.Add(due), err
	}

	runID, err := s.runs.StartRun(ctx, ops.RunKindSchedule)
	if err != nil {
		s.logger.WarnContext(ctx, "failed to start run", slog.String("error", err.Error()))
		runID = uuid.Nil
	}
	log := s.logger.With(slog.String("run_id", runID.String()))
	ctx = logger.WithLogger(ctx, log)
	s.track(ctx, "mark running", func() error { return s.runs.MarkRunning(ctx, runID) }, runID)

	total, err := s.Bootstrap(ctx, opts.BootstrapLimit, false)
	if err == nil {
		s.track(ctx, "update progress", func() error {
			return s.runs.UpdateProgress(ctx, runID, 50, total.Map())
		}, runID)

		var due Counters
		due, err = s.EnqueueDue(ctx, opts.EnqueueLimit, false)
		total = total.Add(due)
	}

	status, errMsg := ops.RunStatusSucceeded, ""
	if err != nil {
		status, errMsg = ops.RunStatusFailed, task.SanitizeMessage(err.Error())
	}
	s.track(ctx, "finish run", func() error {
		return s.runs.FinishRun(context.WithoutCancel(ctx), runID, status, total.Map(), errMsg)
	}, runID)

	log.InfoContext(ctx, "scheduler run finished",
		slog.String("status", string(status)),
		slog.Int("selected", total.Selected),
		slog.Int("updated", total.Updated),
		slog.Int("enqueued", total.Enqueued),
		slog.Int("already_queued", total.AlreadyQueued),
		slog.Int("skipped", total.Skipped),
		slog.Int("errors", total.Errors))
	return total, err
}

// track calls fn unless the run was never created; failures are logged.
func (s *Scheduler) track(ctx context.Context, what string, fn func() error, runID uuid.UUID) {
	if runID == uuid.Nil {
		return
	}
	if err := fn(); err != nil {
		logger.FromContextOrDefault(ctx, s.logger).WarnContext(ctx, "run tracking failed",
			slog.String("op", what),
			slog.String("error", err.Error()))
	}
}

// Bootstrap schedules up to limit locations that have no next_check_at.
// Locations that gained a schedule since selection are skipped, so
// re-running never moves an existing schedule.
func (s *Scheduler) Bootstrap(ctx context.Context, limit int, dryRun bool) (Counters, error) {
	log := logger.FromContextOrDefault(ctx, s.logger).With(slog.String("phase", phaseBootstrap))
	c := Counters{DryRun: dryRun}
	now := s.now()

	locs, err := s.locations.ListUnscheduled(ctx, limit)
	if err != nil {
		return c, newError(phaseBootstrap, "failed to select unscheduled locations", err)
	}
	c.Selected = len(locs)

	for _, loc := range locs {
		if err := ctx.Err(); err != nil {
			return c, newError(phaseBootstrap, "interrupted", err)
		}

		if dryRun {
			next, err := s.policy.NextCheck(loc, now)
			if err != nil {
				c.Errors++
				continue
			}
			log.DebugContext(ctx, "would schedule location",
				slog.String("location_id", loc.ID.String()),
				slog.Time("next_check_at", next))
			c.Updated++
			continue
		}

		skipped := false
		err := s.tx.RunInTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
			locations := s.locations.WithTx(tx)
			cur, err := locations.GetForUpdate(ctx, loc.ID)
			if err != nil {
				return err
			}
			if cur.NextCheckAt != nil || cur.IsTerminal() {
				skipped = true
				return nil
			}
			next, err := s.policy.NextCheck(cur, now)
			if err != nil {
				return err
			}
			return locations.SetNextCheck(ctx, cur.ID, &next)
		})

		switch {
		case err != nil:
			c.Errors++
			log.WarnContext(ctx, "failed to schedule location",
				slog.String("location_id", loc.ID.String()),
				slog.String("error", err.Error()))
		case skipped:
			c.Skipped++
		default:
			c.Updated++
		}
	}

	s.metrics.SchedulerRows(phaseBootstrap, "updated", c.Updated)
	s.metrics.SchedulerRows(phaseBootstrap, "skipped", c.Skipped)
	s.metrics.SchedulerRows(phaseBootstrap, "error", c.Errors)
	log.InfoContext(ctx, "bootstrap finished",
		slog.Bool("dry_run", dryRun),
		slog.Int("selected", c.Selected),
		slog.Int("updated", c.Updated),
		slog.Int("skipped", c.Skipped),
		slog.Int("errors", c.Errors))
	return c, nil
}

// EnqueueDue creates a verification task for up to limit due locations and
// moves each one's next_check_at forward.
func (s *Scheduler) EnqueueDue(ctx context.Context, limit int, dryRun bool) (Counters, error) {
	log := logger.FromContextOrDefault(ctx, s.logger).With(slog.String("phase", phaseEnqueue))
	c := Counters{DryRun: dryRun}
	now := s.now()

	locs, err := s.locations.ListDue(ctx, s.enqueueStates, now, limit)
	if err != nil {
		return c, newError(phaseEnqueue, "failed to select due locations", err)
	}
	c.Selected = len(locs)

	for _, loc := range locs {
		if err := ctx.Err(); err != nil {
			return c, newError(phaseEnqueue, "interrupted", err)
		}

		if dryRun {
			next, err := s.reschedule(loc, now)
			if err != nil {
				c.Errors++
				continue
			}
			log.DebugContext(ctx, "would enqueue location",
				slog.String("location_id", loc.ID.String()),
				slog.Time("next_check_at", next))
			c.Enqueued++
			continue
		}

		var skipped, created bool
		err := s.tx.RunInTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
			locations := s.locations.WithTx(tx)
			cur, err := locations.GetForUpdate(ctx, loc.ID)
			if err != nil {
				return err
			}
			if !s.isDue(cur, now) {
				skipped = true
				return nil
			}

			created, err = s.tasks.WithTx(tx).Enqueue(ctx, cur.ID)
			if err != nil {
				return err
			}

			next, err := s.reschedule(cur, now)
			if err != nil {
				return err
			}
			return locations.SetNextCheck(ctx, cur.ID, &next)
		})

		switch {
		case err != nil:
			c.Errors++
			log.WarnContext(ctx, "failed to enqueue location",
				slog.String("location_id", loc.ID.String()),
				slog.String("error", err.Error()))
		case skipped:
			c.Skipped++
		case created:
			c.Enqueued++
			c.Updated++
		default:
			c.AlreadyQueued++
			c.Updated++
		}
	}

	s.metrics.SchedulerRows(phaseEnqueue, "enqueued", c.Enqueued)
	s.metrics.SchedulerRows(phaseEnqueue, "already_queued", c.AlreadyQueued)
	s.metrics.SchedulerRows(phaseEnqueue, "skipped", c.Skipped)
	s.metrics.SchedulerRows(phaseEnqueue, "error", c.Errors)
	log.InfoContext(ctx, "enqueue due finished",
		slog.Bool("dry_run", dryRun),
		slog.Int("selected", c.Selected),
		slog.Int("enqueued", c.Enqueued),
		slog.Int("already_queued", c.AlreadyQueued),
		slog.Int("skipped", c.Skipped),
		slog.Int("errors", c.Errors))
	return c, nil
}

func (s *Scheduler) isDue(loc *domain.Location, now time.Time) bool {
	if loc.NextCheckAt == nil || loc.NextCheckAt.After(now) {
		return false
	}
	for _, st := range s.enqueueStates {
		if loc.State == st {
			return true
		}
	}
	return false
}

// reschedule computes the next window for a location that was just
// enqueued. A stale baseline can yield an instant that is already due, in
// which case the policy is applied again from now.
func (s *Scheduler) reschedule(loc *domain.Location, now time.Time) (time.Time, error) {
	next, err := s.policy.NextCheck(loc, now)
	if err != nil {
		return time.Time{}, err
	}
	if next.After(now) {
		return next, nil
	}

	fromNow := loc.Clone()
	fromNow.LastVerifiedAt = nil
	return s.policy.NextCheck(fromNow, now)
}
