package task

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/phrazzld/freshness/internal/platform/logger"
)

// Job is a periodic unit of work driven by a Runner.
type Job struct {
	// Name identifies the job in logs
	Name string

	// Interval between the end of one invocation and the start of the next tick
	Interval time.Duration

	// Run performs one invocation. Errors are logged and do not stop the job.
	Run func(ctx context.Context) error
}

// Runner drives a set of Jobs on their own tickers until its context ends.
// Each job runs once at start, then on every tick; an invocation still in
// progress when a tick fires causes that tick to be dropped, so a job never
// overlaps itself.
type Runner struct {
	jobs   []Job
	logger *slog.Logger
	wg     sync.WaitGroup
}

// NewRunner creates a Runner. A nil logger falls back to slog.Default().
func NewRunner(l *slog.Logger, jobs ...Job) *Runner {
	if l == nil {
		l = slog.Default()
	}
	return &Runner{
		jobs:   jobs,
		logger: l.With(slog.String("component", "runner")),
	}
}

// Run starts every job and blocks until ctx is cancelled and all in-flight
// invocations have returned.
func (r *Runner) Run(ctx context.Context) error {
	for _, job := range r.jobs {
		if job.Interval <= 0 || job.Run == nil {
			r.logger.Warn("skipping job with no interval or body", slog.String("job", job.Name))
			continue
		}
		r.wg.Add(1)
		go r.loop(ctx, job)
	}

	<-ctx.Done()
	r.wg.Wait()
	r.logger.Info("runner stopped")
	return nil
}

func (r *Runner) loop(ctx context.Context, job Job) {
	defer r.wg.Done()

	log := r.logger.With(slog.String("job", job.Name))
	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	r.invoke(ctx, job, log)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.invoke(ctx, job, log)
		}
	}
}

func (r *Runner) invoke(ctx context.Context, job Job, log *slog.Logger) {
	if ctx.Err() != nil {
		return
	}

	defer func() {
		if p := recover(); p != nil {
			log.Error("job panicked", slog.Any("panic", p))
		}
	}()

	start := time.Now()
	err := job.Run(logger.WithLogger(ctx, log))
	if err != nil && ctx.Err() == nil {
		log.Error("job failed",
			slog.String("error", err.Error()),
			slog.Duration("duration", time.Since(start)))
		return
	}
	log.Debug("job finished", slog.Duration("duration", time.Since(start)))
}
