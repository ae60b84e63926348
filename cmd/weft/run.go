package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/weftworks/weft/internal/config"
	"github.com/weftworks/weft/internal/exec"
	"github.com/weftworks/weft/internal/isolation"
	"github.com/weftworks/weft/internal/orchestrator"
	"github.com/weftworks/weft/pkg/models"
)

var (
	runMaxConcurrent int
	runStrategy      string
	runThreshold     float64
	runNoRollback    bool
	runTimeout       time.Duration
	runItemTimeout   time.Duration
	runIsolate       bool
	runTrunk         string
	runScale         float64
	runFailures      []string
)

var runCmd = &cobra.Command{
	Use:   "run <plan.yaml>",
	Short: "Execute a workstream plan",
	Long: `Execute the work items described in a plan file.

Items run concurrently up to the configured bound, in dependency order.
Resource conflicts are resolved before execution; losing contenders are
blocked and reported as skipped. If the failed fraction of items crosses
the rollback threshold, the remaining work is aborted and the run fails.

With --isolate, each item runs in its own git worktree on a dedicated
branch. Successful branches are merged back into the trunk with a merge
commit; a merge conflict fails the item and leaves the branch intact for
manual resolution.

Execution is simulated: each item sleeps for its estimated duration
multiplied by --scale, and items named by --fail report failure. Plug in
a real executor through the orchestrator package to do actual work.

Examples:
  weft run plan.yaml
  weft run plan.yaml --max-concurrent 3 --strategy fifo
  weft run plan.yaml --isolate --trunk main
  weft run plan.yaml --fail migrate-db --fail 'load-fixtures=disk full'`,
	Args: cobra.ExactArgs(1),
	RunE: runPlanFile,
}

func init() {
	runCmd.Flags().IntVar(&runMaxConcurrent, "max-concurrent", 0, "Maximum items running at once (overrides config)")
	runCmd.Flags().StringVar(&runStrategy, "strategy", "", "Conflict strategy: priority_based, fifo, lifo, or round_robin")
	runCmd.Flags().Float64Var(&runThreshold, "rollback-threshold", 0, "Failed/total fraction that triggers rollback")
	runCmd.Flags().BoolVar(&runNoRollback, "no-rollback", false, "Disable threshold-based rollback")
	runCmd.Flags().DurationVar(&runTimeout, "timeout", 0, "Global run timeout (overrides config)")
	runCmd.Flags().DurationVar(&runItemTimeout, "item-timeout", 0, "Per-item timeout (overrides config)")
	runCmd.Flags().BoolVar(&runIsolate, "isolate", false, "Run each item in an isolated git worktree")
	runCmd.Flags().StringVar(&runTrunk, "trunk", "", "Trunk branch for isolation (overrides config)")
	runCmd.Flags().Float64Var(&runScale, "scale", 0, "Simulation time scale for estimated durations")
	runCmd.Flags().StringArrayVar(&runFailures, "fail", nil, "Script an item to fail: <id> or <id>=<message> (repeatable)")
}

func runPlanFile(cmd *cobra.Command, args []string) error {
	items, err := loadPlan(args[0])
	if err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	engineCfg := cfg.Engine()
	if cmd.Flags().Changed("max-concurrent") {
		engineCfg.MaxConcurrent = runMaxConcurrent
	}
	if cmd.Flags().Changed("strategy") {
		engineCfg.ConflictStrategy = models.Strategy(runStrategy)
	}
	if cmd.Flags().Changed("rollback-threshold") {
		engineCfg.RollbackThreshold = runThreshold
	}
	if runNoRollback {
		engineCfg.AutoRollback = false
	}
	if cmd.Flags().Changed("timeout") {
		engineCfg.GlobalTimeout = runTimeout
	}
	if cmd.Flags().Changed("item-timeout") {
		engineCfg.ItemTimeout = runItemTimeout
	}

	logger, err := orchestrator.NewDebugLogger(cfg.Debug.LogPath)
	if err != nil {
		return fmt.Errorf("open debug log: %w", err)
	}
	defer logger.Close()

	emitter := orchestrator.NewEventEmitter(256)
	opts := []orchestrator.Option{
		orchestrator.WithDefaults(engineCfg),
		orchestrator.WithLogger(logger),
		orchestrator.WithEmitter(emitter),
	}

	if runIsolate {
		manager, store, err := openWorkspaceManager(cfg)
		if err != nil {
			return err
		}
		defer store.Close()
		opts = append(opts, orchestrator.WithWorkspaces(manager))
	}

	executor := exec.NewSimExecutor(runScale)
	for _, spec := range runFailures {
		id, msg, found := strings.Cut(spec, "=")
		if !found {
			msg = "scripted failure"
		}
		executor.FailItem(id, msg)
	}

	svc := orchestrator.NewService(orchestrator.RequiredConfig{Executor: executor}, opts...)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	eventsDone := make(chan struct{})
	go consumeEvents(emitter.Events(), eventsDone)

	fmt.Printf("Running %d items (max concurrent %d, strategy %s)\n\n",
		len(items), engineCfg.MaxConcurrent, engineCfg.ConflictStrategy)

	id, err := svc.Start(ctx, models.Request{Items: items})
	if err != nil {
		emitter.Close()
		<-eventsDone
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		fmt.Println("\nReceived interrupt, stopping run...")
		_ = svc.Stop(id)
	}()

	result, err := svc.Wait(ctx, id)
	emitter.Close()
	<-eventsDone
	if err != nil {
		return err
	}

	printSummary(result)
	if result.Status != models.StatusCompleted {
		return fmt.Errorf("run finished with status %s", result.Status)
	}
	return nil
}

// openWorkspaceManager builds the git worktree manager from the isolation
// settings. The caller owns closing the returned store.
func openWorkspaceManager(cfg *config.Config) (*isolation.Manager, *isolation.Store, error) {
	repoPath, err := filepath.Abs(cfg.Isolation.RepoPath)
	if err != nil {
		return nil, nil, fmt.Errorf("resolve repo path: %w", err)
	}

	statePath := cfg.Isolation.StatePath
	if !filepath.IsAbs(statePath) {
		statePath = filepath.Join(repoPath, statePath)
	}
	store, err := isolation.OpenStore(statePath)
	if err != nil {
		return nil, nil, fmt.Errorf("open workspace state: %w", err)
	}

	trunk := cfg.Isolation.TrunkBranch
	if runTrunk != "" {
		trunk = runTrunk
	}
	workspacesDir := cfg.Isolation.WorkspacesDir
	if workspacesDir != "" && !filepath.IsAbs(workspacesDir) {
		workspacesDir = filepath.Join(repoPath, workspacesDir)
	}

	manager, err := isolation.NewManager(repoPath, trunk, workspacesDir, store)
	if err != nil {
		store.Close()
		return nil, nil, fmt.Errorf("create workspace manager: %w", err)
	}
	return manager, store, nil
}

// consumeEvents prints run progress until the emitter channel closes.
func consumeEvents(events <-chan orchestrator.OrchestrationEvent, done chan<- struct{}) {
	defer close(done)

	green := color.New(color.FgGreen)
	red := color.New(color.FgRed)
	yellow := color.New(color.FgYellow)
	cyan := color.New(color.FgCyan)
	faint := color.New(color.Faint)

	for ev := range events {
		switch ev.Type {
		case orchestrator.EventItemStarted:
			cyan.Printf("▶ %s started\n", ev.ItemID)
		case orchestrator.EventItemCompleted:
			green.Printf("✓ %s completed (%s)\n", ev.ItemID, ev.Duration.Round(time.Millisecond))
		case orchestrator.EventItemFailed:
			red.Printf("✗ %s failed: %v\n", ev.ItemID, ev.Error)
		case orchestrator.EventItemBlocked:
			yellow.Printf("⊘ %s blocked: %s\n", ev.ItemID, ev.Message)
		case orchestrator.EventWorkspaceCreated, orchestrator.EventWorkspaceIntegrated:
			faint.Printf("  %s: %s\n", ev.ItemID, ev.Message)
		case orchestrator.EventRollbackTriggered:
			red.Printf("⟲ rollback: %s\n", ev.Message)
		}
	}
}

func printSummary(result models.Result) {
	fmt.Println()
	fmt.Printf("Run %s: %s\n", result.OrchestrationID, statusColored(result.Status))
	fmt.Printf("  Completed: %d\n", len(result.SuccessfulIDs))
	fmt.Printf("  Failed:    %d\n", len(result.FailedIDs))
	fmt.Printf("  Skipped:   %d\n", len(result.SkippedIDs))
	fmt.Printf("  Duration:  %s\n", result.TotalDuration.Round(time.Millisecond))
	if result.Metrics.RollbackCount > 0 {
		fmt.Printf("  Rollbacks: %d\n", result.Metrics.RollbackCount)
	}
	if len(result.FailedIDs) > 0 {
		fmt.Printf("  Failed items: %s\n", strings.Join(result.FailedIDs, ", "))
	}
}

func statusColored(s models.Status) string {
	switch s {
	case models.StatusCompleted:
		return color.GreenString(string(s))
	case models.StatusFailed, models.StatusRollingBack:
		return color.RedString(string(s))
	default:
		return string(s)
	}
}
