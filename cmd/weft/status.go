package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/weftworks/weft/internal/config"
	"github.com/weftworks/weft/internal/isolation"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show recorded isolation workspaces",
	Long: `Display the workspaces recorded in the isolation state database.

Workspaces normally live only for the duration of a run; anything listed
here was left behind by a crashed or interrupted run. Orphaned entries
point at directories that no longer exist. Use 'weft cleanup' to remove
leftovers.`,
	RunE: runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	repoPath, err := filepath.Abs(cfg.Isolation.RepoPath)
	if err != nil {
		return fmt.Errorf("resolve repo path: %w", err)
	}
	statePath := cfg.Isolation.StatePath
	if !filepath.IsAbs(statePath) {
		statePath = filepath.Join(repoPath, statePath)
	}

	if _, err := os.Stat(statePath); os.IsNotExist(err) {
		fmt.Println("No workspace state. Run 'weft run --isolate <plan>' to create isolated workspaces.")
		return nil
	}

	store, err := isolation.OpenStore(statePath)
	if err != nil {
		return fmt.Errorf("open workspace state: %w", err)
	}
	defer store.Close()

	workspaces, err := store.ListWorkspaces()
	if err != nil {
		return fmt.Errorf("list workspaces: %w", err)
	}

	if len(workspaces) == 0 {
		fmt.Println("No recorded workspaces.")
		return nil
	}

	fmt.Printf("Recorded workspaces (%d):\n", len(workspaces))
	orphans := 0
	for _, ws := range workspaces {
		marker := ""
		if _, err := os.Stat(ws.Path); err != nil {
			marker = color.YellowString(" (orphaned)")
			orphans++
		}
		fmt.Printf("  %s: branch %s at %s, created %s ago%s\n",
			ws.ItemID, ws.Branch, ws.Path, formatDuration(time.Since(ws.CreatedAt)), marker)
	}
	if orphans > 0 {
		fmt.Printf("\n%d orphaned. Run 'weft cleanup' to remove them.\n", orphans)
	}
	return nil
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
	if d < 24*time.Hour {
		h := int(d.Hours())
		m := int(d.Minutes()) % 60
		if m > 0 {
			return fmt.Sprintf("%dh%dm", h, m)
		}
		return fmt.Sprintf("%dh", h)
	}
	days := int(d.Hours()) / 24
	return fmt.Sprintf("%dd", days)
}
