package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/weftworks/weft/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show effective configuration",
	Long: `Display the effective weft configuration.

Values are merged from built-in defaults, the user config
(~/.config/weft/config.yaml), the project config (.weft.yaml in the
current directory or a parent), and WEFT_* environment variables, in
increasing precedence.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}
		displayConfig(cfg)
	},
}

func displayConfig(cfg *config.Config) {
	if path := config.GetProjectConfigPath(); path != "" {
		fmt.Printf("# project config: %s\n", path)
	}
	fmt.Printf("# user config: %s\n", config.GetUserConfigPath())
	fmt.Println()

	fmt.Printf("orchestration.max_concurrent: %d\n", cfg.Orchestration.MaxConcurrent)
	fmt.Printf("orchestration.max_retries: %d\n", cfg.Orchestration.MaxRetries)
	fmt.Printf("orchestration.conflict_strategy: %s\n", cfg.Orchestration.ConflictStrategy)
	fmt.Printf("orchestration.auto_rollback: %t\n", cfg.Orchestration.AutoRollback)
	fmt.Printf("orchestration.rollback_threshold: %g\n", cfg.Orchestration.RollbackThreshold)
	fmt.Printf("orchestration.monitor_interval: %s\n", cfg.Orchestration.MonitorInterval)
	fmt.Printf("orchestration.item_timeout: %s\n", cfg.Orchestration.ItemTimeout)
	fmt.Printf("orchestration.global_timeout: %s\n", cfg.Orchestration.GlobalTimeout)
	fmt.Printf("resources.file: %d\n", cfg.Resources.File)
	fmt.Printf("resources.database: %d\n", cfg.Resources.Database)
	fmt.Printf("resources.api_endpoint: %d\n", cfg.Resources.APIEndpoint)
	fmt.Printf("resources.external_service: %d\n", cfg.Resources.ExternalService)
	fmt.Printf("resources.computational: %d\n", cfg.Resources.Computational)
	fmt.Printf("isolation.repo_path: %s\n", cfg.Isolation.RepoPath)
	fmt.Printf("isolation.trunk_branch: %s\n", cfg.Isolation.TrunkBranch)
	fmt.Printf("isolation.workspaces_dir: %s\n", cfg.Isolation.WorkspacesDir)
	fmt.Printf("isolation.state_path: %s\n", cfg.Isolation.StatePath)
	fmt.Printf("debug.log_path: %s\n", cfg.Debug.LogPath)
}
