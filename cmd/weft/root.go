package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "weft",
	Short: "Workstream orchestration engine",
	Long: `Weft executes a plan of interdependent workstream items with
bounded concurrency.

It builds a dependency graph from the plan, detects resource conflicts
before anything runs, and admits items onto a worker pool as their
dependencies complete. Each item can run in an isolated git worktree
whose branch is merged back on success.

Core capabilities:
- Topological scheduling with priority ordering
- Exclusive and capacity-bounded shared resource allocation
- Conflict resolution (priority, fifo, lifo, round-robin)
- Automatic rollback when the failure threshold is crossed
- Git worktree isolation with merge-back integration`,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(cleanupCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}
