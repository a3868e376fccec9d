package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/phrazzld/freshness/internal/api"
	"github.com/phrazzld/freshness/internal/platform/postgres"
	"github.com/phrazzld/freshness/internal/task"
	"github.com/spf13/cobra"
)

// shutdownTimeout bounds the ops server drain in serve.
const shutdownTimeout = 15 * time.Second

// runFlags are shared by schedule and verify.
type runFlags struct {
	dryRun bool
	limit  int
}

func (f *runFlags) register(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&f.dryRun, "dry-run", false, "compute and log outcomes without writing")
	cmd.Flags().IntVar(&f.limit, "limit", 0, "maximum rows or tasks to process (0 uses the configured limit)")
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "freshness",
		Short:         "Location freshness scheduling and verification",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file")

	root.AddCommand(
		migrateCmd(&configPath),
		scheduleCmd(&configPath),
		verifyCmd(&configPath),
		serveCmd(&configPath),
	)
	return root
}

// signalContext cancels on SIGINT or SIGTERM.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
}

// ── migrate ───────────────────────────────────────────────────────────────────

func migrateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:       "migrate [up|down|status|version]",
		Short:     "Run database migrations",
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"up", "down", "status", "version"},
		RunE: func(cmd *cobra.Command, args []string) error {
			command := "up"
			if len(args) == 1 {
				command = args[0]
			}

			ctx, stop := signalContext(cmd)
			defer stop()

			app, err := newApplication(ctx, *configPath)
			if err != nil {
				return err
			}
			defer app.close()

			if err := postgres.Migrate(ctx, app.db, command); err != nil {
				return fmt.Errorf("migrate %s: %w", command, err)
			}
			app.logger.Info("migration finished", slog.String("command", command))
			return nil
		},
	}
}

// ── schedule ──────────────────────────────────────────────────────────────────

func scheduleCmd(configPath *string) *cobra.Command {
	var flags runFlags
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Bootstrap unscheduled locations, then enqueue due ones",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signalContext(cmd)
			defer stop()

			app, err := newApplication(ctx, *configPath)
			if err != nil {
				return err
			}
			defer app.close()

			sched, err := app.newScheduler()
			if err != nil {
				return fmt.Errorf("scheduler: %w", err)
			}
			counters, err := sched.Run(ctx, app.schedulerOptions(flags.limit, flags.dryRun))
			if err != nil {
				return err
			}
			return printJSON(cmd, counters)
		},
	}
	flags.register(cmd)
	return cmd
}

// ── verify ────────────────────────────────────────────────────────────────────

func verifyCmd(configPath *string) *cobra.Command {
	var flags runFlags
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Claim and verify queued locations once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signalContext(cmd)
			defer stop()

			app, err := newApplication(ctx, *configPath)
			if err != nil {
				return err
			}
			defer app.close()

			consumer, err := app.newConsumer(ctx)
			if err != nil {
				return fmt.Errorf("consumer: %w", err)
			}
			counters, err := consumer.Run(ctx, app.verifyOptions(flags.limit, flags.dryRun))
			if err != nil {
				return err
			}
			return printJSON(cmd, counters)
		},
	}
	flags.register(cmd)
	return cmd
}

// ── serve ─────────────────────────────────────────────────────────────────────

func serveCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler and consumer on timers with the ops endpoints",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signalContext(cmd)
			defer stop()

			app, err := newApplication(ctx, *configPath)
			if err != nil {
				return err
			}
			defer app.close()

			sched, err := app.newScheduler()
			if err != nil {
				return fmt.Errorf("scheduler: %w", err)
			}
			consumer, err := app.newConsumer(ctx)
			if err != nil {
				return fmt.Errorf("consumer: %w", err)
			}

			runner := task.NewRunner(app.logger,
				task.Job{
					Name:     "schedule",
					Interval: app.config.Scheduler.Interval,
					Run: func(ctx context.Context) error {
						_, err := sched.Run(ctx, app.schedulerOptions(0, false))
						return err
					},
				},
				task.Job{
					Name:     "verify",
					Interval: app.config.Verification.Interval,
					Run: func(ctx context.Context) error {
						_, err := consumer.Run(ctx, app.verifyOptions(0, false))
						return err
					},
				},
			)

			handler := api.NewRouter(api.NewOpsHandler(app.db, app.tasks, app.metrics, app.logger), app.metrics, app.logger)
			srv := &http.Server{
				Addr:              ":" + strconv.Itoa(app.config.Server.Port),
				Handler:           handler,
				ReadHeaderTimeout: 5 * time.Second,
				ReadTimeout:       15 * time.Second,
				WriteTimeout:      30 * time.Second,
				IdleTimeout:       120 * time.Second,
			}

			serverErr := make(chan error, 1)
			go func() {
				app.logger.Info("ops server started", slog.String("addr", srv.Addr))
				if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
					serverErr <- err
				}
				close(serverErr)
			}()

			runnerDone := make(chan struct{})
			go func() {
				defer close(runnerDone)
				_ = runner.Run(ctx)
			}()

			var runErr error
			select {
			case err, ok := <-serverErr:
				if ok {
					runErr = fmt.Errorf("server error: %w", err)
				}
				stop()
			case <-ctx.Done():
			}

			app.logger.Info("shutting down", slog.Duration("timeout", shutdownTimeout))
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil && runErr == nil {
				runErr = fmt.Errorf("graceful shutdown: %w", err)
			}
			<-runnerDone
			app.logger.Info("server stopped")
			return runErr
		},
	}
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
