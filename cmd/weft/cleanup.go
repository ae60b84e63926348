package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/weftworks/weft/internal/config"
)

var (
	cleanupAll    bool
	cleanupDryRun bool
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove leftover isolation workspaces",
	Long: `Remove workspaces left behind by crashed or interrupted runs.

By default only orphaned workspaces are removed: entries whose worktree
directory no longer exists. With --all, every recorded workspace is
removed, including worktrees and branches still on disk.

Examples:
  weft cleanup            # Remove orphaned entries only
  weft cleanup --all      # Remove every recorded workspace
  weft cleanup --dry-run  # Show what would be removed`,
	RunE: runWorkspaceCleanup,
}

func init() {
	cleanupCmd.Flags().BoolVar(&cleanupAll, "all", false, "Remove every recorded workspace, not just orphans")
	cleanupCmd.Flags().BoolVar(&cleanupDryRun, "dry-run", false, "Show what would be removed without removing")
}

func runWorkspaceCleanup(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	manager, store, err := openWorkspaceManager(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	if cleanupAll {
		workspaces, err := manager.ListWorkspaces()
		if err != nil {
			return fmt.Errorf("list workspaces: %w", err)
		}
		if len(workspaces) == 0 {
			fmt.Println("Nothing to clean up.")
			return nil
		}
		if cleanupDryRun {
			for _, ws := range workspaces {
				fmt.Printf("would remove %s (branch %s)\n", ws.Path, ws.Branch)
			}
			return nil
		}
		if err := manager.CleanupAll(context.Background()); err != nil {
			return fmt.Errorf("cleanup workspaces: %w", err)
		}
		fmt.Printf("Removed %d workspaces.\n", len(workspaces))
		return nil
	}

	orphans, err := manager.ListOrphans()
	if err != nil {
		return fmt.Errorf("list orphans: %w", err)
	}
	if len(orphans) == 0 {
		fmt.Println("No orphaned workspaces.")
		return nil
	}

	removed := 0
	for _, ws := range orphans {
		if cleanupDryRun {
			fmt.Printf("would remove %s (branch %s)\n", ws.ItemID, ws.Branch)
			continue
		}
		if err := manager.Cleanup(ws.ItemID); err != nil {
			fmt.Fprintf(os.Stderr, "cleanup %s: %v\n", ws.ItemID, err)
			continue
		}
		removed++
	}
	if !cleanupDryRun {
		fmt.Printf("Removed %d orphaned workspaces.\n", removed)
	}
	return nil
}
