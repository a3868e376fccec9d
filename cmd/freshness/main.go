// Command freshness schedules and verifies location freshness checks.
//
// Subcommands:
//
//	migrate   apply, roll back or report database migrations
//	schedule  bootstrap unscheduled locations and enqueue due ones
//	verify    drain the verification task queue once
//	serve     run schedule and verify on timers behind the ops endpoints
package main

import (
	"log/slog"
	"os"

	// Sets GOMEMLIMIT from the cgroup memory limit in containers.
	_ "github.com/KimMachineGun/automemlimit"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}
