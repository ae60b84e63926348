// Package orchestrator coordinates work item execution.
//
// The orchestrator package provides functionality for:
//   - Planning: topological ordering of work items with priority tie-breaks,
//     resource conflict detection, and critical-path estimation
//   - Resource arbitration: exclusive and capacity-bounded shared allocation
//     with strategy-based conflict resolution
//   - Execution: a driver loop that admits dependency-satisfied items onto a
//     bounded pool, with pause/resume, stop, threshold rollback, and
//     git-worktree workspace isolation
//
// A Service owns all active runs. Each run is an Orchestration driven by a
// single goroutine; executors report back over a completion channel.
//
// Example usage:
//
//	svc := orchestrator.NewService(orchestrator.RequiredConfig{Executor: executor},
//		orchestrator.WithWorkspaces(manager))
//	id, err := svc.Start(ctx, models.Request{Items: items})
//	result, err := svc.Wait(ctx, id)
package orchestrator
