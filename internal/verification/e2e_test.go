package verification_test

import (
	"context"
	"testing"
	"time"

	"github.com/phrazzld/freshness/internal/domain"
	"github.com/phrazzld/freshness/internal/domain/freshness"
	"github.com/phrazzld/freshness/internal/scheduler"
	"github.com/phrazzld/freshness/internal/store"
	"github.com/phrazzld/freshness/internal/task"
	"github.com/phrazzld/freshness/internal/verification"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// A new candidate is scheduled, becomes due, is enqueued once, verified,
// promoted and rescheduled by review volume.
func TestScheduleThenVerify(t *testing.T) {
	ctx := context.Background()
	l1 := newCandidate("L1 Bakery")
	f := newFixture(l1)
	f.clock.Advance(l1.CreatedAt.Sub(f.clock.Now()))

	sched, err := scheduler.New(scheduler.Deps{
		Locations: f.locations,
		Tasks:     f.tasks,
		Tx:        store.NoopTxRunner{},
		Policy:    freshness.NewDefaultService(),
		Now:       f.clock.Now,
	}, []domain.LocationState{
		domain.LocationStateCandidate,
		domain.LocationStatePendingVerification,
		domain.LocationStateVerified,
	})
	require.NoError(t, err)

	boot, err := sched.Bootstrap(ctx, 10, false)
	require.NoError(t, err)
	assert.Equal(t, 1, boot.Updated)

	got, err := f.locations.Get(ctx, l1.ID)
	require.NoError(t, err)
	require.NotNil(t, got.NextCheckAt)
	firstCheck := l1.CreatedAt.Add(3 * day)
	assert.True(t, firstCheck.Equal(*got.NextCheckAt))

	// Not due yet.
	early, err := sched.EnqueueDue(ctx, 10, false)
	require.NoError(t, err)
	assert.Zero(t, early.Selected)

	f.clock.Advance(3*day + time.Minute)
	due, err := sched.EnqueueDue(ctx, 10, false)
	require.NoError(t, err)
	assert.Equal(t, 1, due.Enqueued)

	tasks := f.tasks.All()
	require.Len(t, tasks, 1)
	assert.Equal(t, task.TaskStatusPending, tasks[0].Status)
	got, err = f.locations.Get(ctx, l1.ID)
	require.NoError(t, err)
	assert.True(t, got.NextCheckAt.After(firstCheck), "enqueue advances next_check_at")

	again, err := sched.EnqueueDue(ctx, 10, false)
	require.NoError(t, err)
	assert.Zero(t, again.Enqueued)
	assert.Len(t, f.tasks.All(), 1)

	consumer := f.consumer(t, fixed(keep("bakery", 0.92), nil), verification.Config{})
	counters := run(t, consumer)
	assert.Equal(t, 1, counters.Claimed)
	assert.Equal(t, 1, counters.Completed)
	assert.Equal(t, 1, counters.Promoted)

	tasks = f.tasks.All()
	require.Len(t, tasks, 1)
	assert.Equal(t, task.TaskStatusCompleted, tasks[0].Status)

	got, err = f.locations.Get(ctx, l1.ID)
	require.NoError(t, err)
	verifiedAt := f.clock.Now()
	assert.Equal(t, domain.LocationStateVerified, got.State)
	assert.Equal(t, "bakery", got.Category)
	require.NotNil(t, got.LastVerifiedAt)
	assert.True(t, verifiedAt.Equal(*got.LastVerifiedAt))
	require.NotNil(t, got.NextCheckAt)
	// No reviews recorded: the few-reviews band applies.
	assert.True(t, verifiedAt.Add(30*day).Equal(*got.NextCheckAt))
}
