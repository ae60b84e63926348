package main

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/weftworks/weft/internal/orchestrator"
)

var planCmd = &cobra.Command{
	Use:   "plan <plan.yaml>",
	Short: "Analyze a plan without executing it",
	Long: `Build the execution plan for a plan file and print it.

Shows the dependency-ordered schedule, detected resource conflicts,
pairs of items that can run in parallel, and the critical-path
duration estimate. Fails on dependency cycles without running anything.`,
	Args: cobra.ExactArgs(1),
	RunE: runPlanAnalysis,
}

func runPlanAnalysis(cmd *cobra.Command, args []string) error {
	items, err := loadPlan(args[0])
	if err != nil {
		return err
	}

	plan, err := orchestrator.BuildPlan(items)
	if err != nil {
		return err
	}

	byID := make(map[string]string, len(items))
	for _, item := range items {
		byID[item.ID] = item.Name
	}

	fmt.Printf("Execution order (%d items):\n", len(plan.Order))
	for i, id := range plan.Order {
		fmt.Printf("  %2d. %s", i+1, id)
		if name := byID[id]; name != id {
			fmt.Printf("  (%s)", name)
		}
		fmt.Println()
	}

	if len(plan.Conflicts) > 0 {
		fmt.Println()
		color.Yellow("Resource conflicts (%d):", len(plan.Conflicts))
		for _, c := range plan.Conflicts {
			fmt.Printf("  %s [%s, %s]: %v\n", c.ResourceID, c.ConflictType, c.Severity, c.ConflictingItems)
		}
	}

	if len(plan.ParallelPairs) > 0 {
		fmt.Printf("\nParallelizable pairs: %d\n", len(plan.ParallelPairs))
	}
	if plan.EstimatedDuration > 0 {
		fmt.Printf("Estimated critical path: %s\n", plan.EstimatedDuration.Round(time.Second))
	}
	return nil
}
