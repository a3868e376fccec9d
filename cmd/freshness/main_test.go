package main

import (
	"testing"

	"github.com/phrazzld/freshness/internal/config"
	"github.com/phrazzld/freshness/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	root := newRootCmd()

	names := make([]string, 0, len(root.Commands()))
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.ElementsMatch(t, []string{"migrate", "schedule", "verify", "serve"}, names)
	assert.NotNil(t, root.PersistentFlags().Lookup("config"))

	for _, name := range []string{"schedule", "verify"} {
		cmd, _, err := root.Find([]string{name})
		require.NoError(t, err)
		assert.NotNil(t, cmd.Flags().Lookup("dry-run"), name)
		assert.NotNil(t, cmd.Flags().Lookup("limit"), name)
	}
}

func TestMigrateRejectsUnknownCommand(t *testing.T) {
	root := newRootCmd()
	cmd, _, err := root.Find([]string{"migrate"})
	require.NoError(t, err)
	assert.Error(t, cmd.Args(cmd, []string{"drop-everything"}))
	assert.NoError(t, cmd.Args(cmd, []string{"status"}))
}

func TestParseStates(t *testing.T) {
	states, err := parseStates([]string{"verified", "PENDING_VERIFICATION"})
	require.NoError(t, err)
	assert.Equal(t, []domain.LocationState{
		domain.LocationStateVerified,
		domain.LocationStatePendingVerification,
	}, states)

	_, err = parseStates([]string{"ARCHIVED"})
	assert.ErrorIs(t, err, domain.ErrInvalidLocationState)
}

func TestFreshnessParams(t *testing.T) {
	p := freshnessParams(config.FreshnessConfig{VerifiedManyReviewsDays: 100, AbsMaxDays: 90})
	assert.Equal(t, 100, p.VerifiedManyReviewsDays)
	assert.Equal(t, 90, p.AbsMaxDays)
	assert.Equal(t, 3, p.LowConfidenceDays, "zero values keep the defaults")
	require.NoError(t, p.Validate())
}

func TestRunOptions(t *testing.T) {
	app := &application{config: &config.Config{
		Scheduler:    config.SchedulerConfig{BootstrapLimit: 500, EnqueueLimit: 200},
		Verification: config.VerificationConfig{Limit: 50, MaxAttempts: 3},
	}}

	s := app.schedulerOptions(0, false)
	assert.Equal(t, 500, s.BootstrapLimit)
	assert.Equal(t, 200, s.EnqueueLimit)

	s = app.schedulerOptions(10, true)
	assert.Equal(t, 10, s.BootstrapLimit)
	assert.Equal(t, 10, s.EnqueueLimit)
	assert.True(t, s.DryRun)

	v := app.verifyOptions(5, true)
	assert.Equal(t, 5, v.Limit)
	assert.Equal(t, 3, v.MaxAttempts)
	assert.True(t, v.DryRun)
}
