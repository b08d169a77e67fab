package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/AmosPulse/proof-stamp/internal/config"
	"github.com/AmosPulse/proof-stamp/internal/log"
	"github.com/AmosPulse/proof-stamp/internal/orchestrator"
)

// dispatchFlags holds flag values for the dispatch command. Zero values
// mean "not set"; only flags the user actually changed override factory.yaml.
var dispatchFlags struct {
	backlog        string
	stateDir       string
	project        string
	budget         float64
	workers        int
	maxAttempts    int
	rateInterval   time.Duration
	stuckThreshold time.Duration
	deadline       time.Duration
	dryRun         bool
}

var dispatchCmd = &cobra.Command{
	Use:   "dispatch",
	Short: "Reconcile the backlog against the issue tracker",
	Long: "Reconcile the backlog document against the issue tracker: create missing\n" +
		"issues in dependency order, verify the ones already tracked, enforce the\n" +
		"cost ceiling, and flag work that has been sitting too long.",
	RunE: runDispatch,
}

func init() {
	f := dispatchCmd.Flags()
	f.StringVar(&dispatchFlags.backlog, "backlog", "", "Backlog document path (overrides backlog_path)")
	f.StringVar(&dispatchFlags.stateDir, "state-dir", "", "Durable state directory (overrides state_dir)")
	f.StringVar(&dispatchFlags.project, "project", "", "Project board node ID (overrides project_id)")
	f.Float64Var(&dispatchFlags.budget, "budget", 0, "Cost ceiling in estimated hours (overrides budget_ceiling)")
	f.IntVar(&dispatchFlags.workers, "workers", 0, "Concurrent dispatch workers (overrides workers)")
	f.IntVar(&dispatchFlags.maxAttempts, "max-attempts", 0, "Attempts per tracker call before giving up (overrides max_attempts)")
	f.DurationVar(&dispatchFlags.rateInterval, "rate-interval", 0, "Minimum spacing between tracker calls (overrides rate_interval)")
	f.DurationVar(&dispatchFlags.stuckThreshold, "stuck-threshold", 0, "Age before open work is flagged stuck (overrides stuck_task_threshold)")
	f.DurationVar(&dispatchFlags.deadline, "deadline", 0, "Abort the run after this long (0 means no deadline)")
	f.BoolVar(&dispatchFlags.dryRun, "dry-run", false, "Plan the run without touching the tracker or writing state")
}

// runDispatch assembles the effective configuration and hands off to the
// orchestrator. Precedence, lowest to highest: factory.yaml defaults, the
// environment (REPO_OWNER, REPO_NAME, PROJECT_ID, REPO_TOKEN), explicit flags.
func runDispatch(cmd *cobra.Command, args []string) error {
	root, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}

	cfg, err := config.LoadConfig(filepath.Join(root, config.FileName))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	config.ApplyEnv(cfg)

	if cmd.Flags().Changed("backlog") {
		cfg.BacklogPath = dispatchFlags.backlog
	}
	if cmd.Flags().Changed("state-dir") {
		cfg.StateDir = dispatchFlags.stateDir
	}
	if cmd.Flags().Changed("project") {
		cfg.ProjectID = dispatchFlags.project
	}
	if cmd.Flags().Changed("budget") {
		cfg.BudgetCeiling = dispatchFlags.budget
	}
	if cmd.Flags().Changed("workers") {
		cfg.Workers = dispatchFlags.workers
	}
	if cmd.Flags().Changed("max-attempts") {
		cfg.MaxAttempts = dispatchFlags.maxAttempts
	}
	if cmd.Flags().Changed("rate-interval") {
		cfg.RateInterval = dispatchFlags.rateInterval
	}
	if cmd.Flags().Changed("stuck-threshold") {
		cfg.StuckTaskThreshold = dispatchFlags.stuckThreshold
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.Workers > config.MaxWorkers {
		cfg.Workers = config.MaxWorkers
	}

	// Interrupts cancel in-flight tracker calls; the worker pool drains and
	// every remaining item still gets a report line.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if dispatchFlags.deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, dispatchFlags.deadline)
		defer cancel()
	}

	res := orchestrator.Run(ctx, cfg, dispatchFlags.dryRun)
	if code := res.ExitCode(); code != 0 {
		log.OsExit(code)
	}
	return nil
}
