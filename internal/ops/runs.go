package ops

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/phrazzld/freshness/internal/store"
)

// RunStatus is the lifecycle state of a tracked run.
type RunStatus string

// Possible run status values
const (
	RunStatusQueued    RunStatus = "QUEUED"
	RunStatusRunning   RunStatus = "RUNNING"
	RunStatusSucceeded RunStatus = "SUCCEEDED"
	RunStatusFailed    RunStatus = "FAILED"
)

// Run kinds
const (
	RunKindSchedule = "schedule"
	RunKindVerify   = "verify"
)

// Counters are the named tallies a run reports.
type Counters map[string]int

// RunTracker records the lifecycle of scheduler and consumer invocations.
type RunTracker interface {
	// StartRun creates a QUEUED run of the given kind.
	StartRun(ctx context.Context, kind string) (uuid.UUID, error)

	// MarkRunning moves a run to RUNNING.
	MarkRunning(ctx context.Context, id uuid.UUID) error

	// UpdateProgress records percent complete, clamped to [0, 100], and the
	// counters so far.
	UpdateProgress(ctx context.Context, id uuid.UUID, percent int, counters Counters) error

	// FinishRun records the final status, counters and error text.
	FinishRun(ctx context.Context, id uuid.UUID, status RunStatus, counters Counters, errMsg string) error
}

// ClampPercent bounds p to [0, 100].
func ClampPercent(p int) int {
	return max(0, min(p, 100))
}

// Percent returns done/total as a whole percentage. Zero total counts as done.
func Percent(done, total int) int {
	if total <= 0 {
		return 100
	}
	return ClampPercent(done * 100 / total)
}

// NoopRunTracker accepts every call and records nothing.
type NoopRunTracker struct{}

// StartRun implements RunTracker.
func (NoopRunTracker) StartRun(context.Context, string) (uuid.UUID, error) { return uuid.New(), nil }

// MarkRunning implements RunTracker.
func (NoopRunTracker) MarkRunning(context.Context, uuid.UUID) error { return nil }

// UpdateProgress implements RunTracker.
func (NoopRunTracker) UpdateProgress(context.Context, uuid.UUID, int, Counters) error { return nil }

// FinishRun implements RunTracker.
func (NoopRunTracker) FinishRun(context.Context, uuid.UUID, RunStatus, Counters, string) error {
	return nil
}

// Run is the state a MemoryRunTracker keeps per run.
type Run struct {
	ID             uuid.UUID
	Kind           string
	Status         RunStatus
	Progress       int
	ProgressEvents int
	Counters       Counters
	Error          string
}

// MemoryRunTracker records runs in memory.
type MemoryRunTracker struct {
	mu   sync.Mutex
	runs map[uuid.UUID]*Run
}

// NewMemoryRunTracker creates an empty MemoryRunTracker.
func NewMemoryRunTracker() *MemoryRunTracker {
	return &MemoryRunTracker{runs: make(map[uuid.UUID]*Run)}
}

// StartRun implements RunTracker.
func (m *MemoryRunTracker) StartRun(_ context.Context, kind string) (uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.New()
	m.runs[id] = &Run{ID: id, Kind: kind, Status: RunStatusQueued}
	return id, nil
}

// MarkRunning implements RunTracker.
func (m *MemoryRunTracker) MarkRunning(_ context.Context, id uuid.UUID) error {
	return m.update(id, func(r *Run) { r.Status = RunStatusRunning })
}

// UpdateProgress implements RunTracker.
func (m *MemoryRunTracker) UpdateProgress(_ context.Context, id uuid.UUID, percent int, counters Counters) error {
	return m.update(id, func(r *Run) {
		r.Progress = ClampPercent(percent)
		r.ProgressEvents++
		r.Counters = copyCounters(counters)
	})
}

// FinishRun implements RunTracker.
func (m *MemoryRunTracker) FinishRun(
	_ context.Context,
	id uuid.UUID,
	status RunStatus,
	counters Counters,
	errMsg string,
) error {
	return m.update(id, func(r *Run) {
		r.Status = status
		r.Counters = copyCounters(counters)
		r.Error = errMsg
		if status == RunStatusSucceeded {
			r.Progress = 100
		}
	})
}

func (m *MemoryRunTracker) update(id uuid.UUID, fn func(r *Run)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[id]
	if !ok {
		return store.ErrRunNotFound
	}
	fn(r)
	return nil
}

// Runs returns a copy of every run.
func (m *MemoryRunTracker) Runs() []Run {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Run, 0, len(m.runs))
	for _, r := range m.runs {
		c := *r
		c.Counters = copyCounters(r.Counters)
		out = append(out, c)
	}
	return out
}

func copyCounters(c Counters) Counters {
	if c == nil {
		return nil
	}
	out := make(Counters, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}
