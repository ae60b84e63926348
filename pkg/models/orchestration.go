package models

import (
	"fmt"
	"time"
)

// Status represents the state of an orchestration run.
type Status string

const (
	// StatusInitializing indicates the run is being set up.
	StatusInitializing Status = "initializing"
	// StatusScheduling indicates the execution plan is being applied.
	StatusScheduling Status = "scheduling"
	// StatusExecuting indicates items are being dispatched.
	StatusExecuting Status = "executing"
	// StatusPaused indicates admission of new items is suspended.
	StatusPaused Status = "paused"
	// StatusCompleted indicates the run finished, possibly with partial failures.
	StatusCompleted Status = "completed"
	// StatusFailed indicates the run failed or was stopped.
	StatusFailed Status = "failed"
	// StatusRollingBack indicates the failure threshold was crossed and
	// remaining work is being aborted.
	StatusRollingBack Status = "rolling_back"
)

// Valid returns true if the status is a known value.
func (s Status) Valid() bool {
	switch s {
	case StatusInitializing, StatusScheduling, StatusExecuting, StatusPaused,
		StatusCompleted, StatusFailed, StatusRollingBack:
		return true
	default:
		return false
	}
}

// Terminal returns true if the status is a final state.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Phase represents the per-item execution lifecycle, distinct from the
// orchestration-level Status.
type Phase string

const (
	// PhaseScheduled indicates the item is waiting for admission.
	PhaseScheduled Phase = "scheduled"
	// PhaseResourceAllocated indicates all required resources are held.
	PhaseResourceAllocated Phase = "resource_allocated"
	// PhaseStarting indicates the workspace is being prepared.
	PhaseStarting Phase = "starting"
	// PhaseRunning indicates the executor is working on the item.
	PhaseRunning Phase = "running"
	// PhaseCompleting indicates results are being integrated.
	PhaseCompleting Phase = "completing"
	// PhaseCompleted indicates the item finished successfully.
	PhaseCompleted Phase = "completed"
	// PhaseFailed indicates the item failed.
	PhaseFailed Phase = "failed"
	// PhaseRolledBack indicates the item was aborted by a rollback.
	PhaseRolledBack Phase = "rolled_back"
)

// Terminal returns true if the phase is a final state.
func (p Phase) Terminal() bool {
	return p == PhaseCompleted || p == PhaseFailed || p == PhaseRolledBack
}

// AllocationStatus represents the state of a resource allocation.
type AllocationStatus string

const (
	// AllocationActive indicates the resource is currently held.
	AllocationActive AllocationStatus = "allocated"
	// AllocationReleased indicates the resource has been returned.
	AllocationReleased AllocationStatus = "released"
	// AllocationConflicted indicates the allocation is contested.
	AllocationConflicted AllocationStatus = "conflicted"
)

// Strategy selects how resource conflicts between items are resolved.
type Strategy string

const (
	// StrategyPriority picks the contender with the lowest priority number.
	StrategyPriority Strategy = "priority_based"
	// StrategyFIFO picks the first-listed contender.
	StrategyFIFO Strategy = "fifo"
	// StrategyLIFO picks the last-listed contender.
	StrategyLIFO Strategy = "lifo"
	// StrategyRoundRobin picks the first-listed contender. It carries no
	// rotation state; the name is kept for request compatibility.
	StrategyRoundRobin Strategy = "round_robin"
)

// Valid returns true if the strategy is a known value.
func (s Strategy) Valid() bool {
	switch s {
	case StrategyPriority, StrategyFIFO, StrategyLIFO, StrategyRoundRobin:
		return true
	default:
		return false
	}
}

// ResourceAllocation records a resource held by a work item.
type ResourceAllocation struct {
	// ResourceID identifies the resource.
	ResourceID string `json:"resource_id"`
	// Type is the resource classification.
	Type ResourceType `json:"type"`
	// Name is the human-readable resource name.
	Name string `json:"name"`
	// ItemID is the work item holding the resource.
	ItemID string `json:"item_id"`
	// AllocatedAt is when the resource was granted.
	AllocatedAt time.Time `json:"allocated_at"`
	// ReleasedAt is when the resource was returned, if it has been.
	ReleasedAt *time.Time `json:"released_at,omitempty"`
	// Status is the allocation state.
	Status AllocationStatus `json:"status"`
	// Exclusive indicates sole access was granted.
	Exclusive bool `json:"exclusive"`
}

// WorkspaceRef points at the isolation workspace assigned to an item.
type WorkspaceRef struct {
	// Branch is the branch backing the workspace.
	Branch string `json:"branch"`
	// Path is the working directory bound to the branch.
	Path string `json:"path"`
	// ExecutorID is the executor the workspace was created for.
	ExecutorID string `json:"executor_id"`
}

// ExecutionContext tracks the engine's view of one work item's execution.
type ExecutionContext struct {
	// ItemID is the work item this context belongs to.
	ItemID string `json:"item_id"`
	// Phase is the current execution phase.
	Phase Phase `json:"phase"`
	// StartedAt is when execution began.
	StartedAt *time.Time `json:"started_at,omitempty"`
	// CompletedAt is when the item reached a terminal phase.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	// ErrorMessage describes the failure, if the item failed.
	ErrorMessage string `json:"error_message,omitempty"`
	// RetryCount is how many times the item has been retried.
	// No retry loop drives this yet; it is carried for future policy.
	RetryCount int `json:"retry_count"`
	// MaxRetries bounds RetryCount.
	MaxRetries int `json:"max_retries"`
	// HeldResources lists resources currently allocated to the item.
	HeldResources []ResourceAllocation `json:"held_resources,omitempty"`
	// Log accumulates human-readable execution events.
	Log []string `json:"log,omitempty"`
	// Workspace is the isolation workspace handle, if one was created.
	Workspace *WorkspaceRef `json:"workspace,omitempty"`
}

// AppendLog records a timestamped entry in the execution log.
func (c *ExecutionContext) AppendLog(format string, args ...interface{}) {
	entry := fmt.Sprintf("[%s] %s", time.Now().Format(time.RFC3339), fmt.Sprintf(format, args...))
	c.Log = append(c.Log, entry)
}

// Config holds the tunables for one orchestration run.
type Config struct {
	// MaxConcurrent bounds how many items run simultaneously.
	MaxConcurrent int `json:"max_concurrent"`
	// MaxRetries bounds per-item retries. Carried but not yet driven by
	// a retry loop.
	MaxRetries int `json:"max_retries"`
	// ConflictStrategy selects the resource conflict resolution strategy.
	ConflictStrategy Strategy `json:"conflict_strategy"`
	// AutoRollback enables aborting the run when failures cross RollbackThreshold.
	AutoRollback bool `json:"auto_rollback"`
	// RollbackThreshold is the failed/total fraction that triggers rollback.
	RollbackThreshold float64 `json:"rollback_threshold"`
	// MonitorInterval is how often the driver re-checks for ready work
	// when nothing is in flight.
	MonitorInterval time.Duration `json:"monitor_interval"`
	// ItemTimeout bounds each item's execution. Zero means no per-item timeout.
	ItemTimeout time.Duration `json:"item_timeout,omitempty"`
	// GlobalTimeout bounds the whole run's wall-clock time.
	GlobalTimeout time.Duration `json:"global_timeout"`
	// Capacity limits concurrent non-exclusive holders per resource type.
	Capacity map[ResourceType]int `json:"capacity,omitempty"`
}

// DefaultConfig returns the standard orchestration configuration.
func DefaultConfig() Config {
	return Config{
		MaxConcurrent:     5,
		MaxRetries:        3,
		ConflictStrategy:  StrategyPriority,
		AutoRollback:      true,
		RollbackThreshold: 0.3,
		MonitorInterval:   100 * time.Millisecond,
		GlobalTimeout:     5 * time.Minute,
		Capacity: map[ResourceType]int{
			ResourceFile:            10,
			ResourceDatabase:        5,
			ResourceAPIEndpoint:     20,
			ResourceExternalService: 3,
			ResourceComputational:   8,
		},
	}
}

// Validate checks the configuration bounds.
func (c Config) Validate() error {
	if c.MaxConcurrent < 1 {
		return fmt.Errorf("max_concurrent must be at least 1, got %d", c.MaxConcurrent)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries must not be negative, got %d", c.MaxRetries)
	}
	if !c.ConflictStrategy.Valid() {
		return fmt.Errorf("unknown conflict strategy %q", c.ConflictStrategy)
	}
	if c.RollbackThreshold < 0 || c.RollbackThreshold > 1 {
		return fmt.Errorf("rollback_threshold must be in [0,1], got %v", c.RollbackThreshold)
	}
	if c.MonitorInterval <= 0 {
		return fmt.Errorf("monitor_interval must be positive, got %v", c.MonitorInterval)
	}
	if c.GlobalTimeout <= 0 {
		return fmt.Errorf("global_timeout must be positive, got %v", c.GlobalTimeout)
	}
	return nil
}

// Metrics summarizes an orchestration run.
type Metrics struct {
	// TotalItems is the number of items in the run.
	TotalItems int `json:"total_items"`
	// CompletedItems is the number of successfully completed items.
	CompletedItems int `json:"completed_items"`
	// FailedItems is the number of failed items.
	FailedItems int `json:"failed_items"`
	// InProgressItems is the number of currently running items.
	InProgressItems int `json:"in_progress_items"`
	// BlockedItems is the number of blocked items.
	BlockedItems int `json:"blocked_items"`
	// TotalExecutionTime is the elapsed wall-clock time of the run.
	TotalExecutionTime time.Duration `json:"total_execution_time,omitempty"`
	// ThroughputPerMinute is completed items per minute.
	ThroughputPerMinute float64 `json:"throughput_per_minute,omitempty"`
	// ConflictsResolved counts resource conflicts resolved before execution.
	ConflictsResolved int `json:"conflicts_resolved"`
	// RollbackCount counts rollbacks triggered during the run.
	RollbackCount int `json:"rollback_count"`
}

// OrchestrationState is the engine's full view of one run. It is created by
// Start and mutated only by the engine until the run reaches a terminal
// status, after which it is read-only.
type OrchestrationState struct {
	// ID is the unique orchestration identifier.
	ID string `json:"id"`
	// Status is the orchestration-level state.
	Status Status `json:"status"`
	// Items are the work items in this run.
	Items []*WorkItem `json:"items"`
	// Contexts tracks per-item execution state, keyed by item ID.
	Contexts map[string]*ExecutionContext `json:"contexts"`
	// Allocations tracks active resource allocations, keyed by resource ID.
	Allocations map[string][]*ResourceAllocation `json:"allocations"`
	// Config holds the run's tunables.
	Config Config `json:"config"`
	// Metrics summarizes progress.
	Metrics Metrics `json:"metrics"`
	// StartedAt is when the run began.
	StartedAt *time.Time `json:"started_at,omitempty"`
	// CompletedAt is when the run reached a terminal status.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	// Errors lists run-level errors.
	Errors []string `json:"errors,omitempty"`
	// Warnings lists run-level warnings.
	Warnings []string `json:"warnings,omitempty"`
}

// Item returns the work item with the given ID, or nil.
func (s *OrchestrationState) Item(id string) *WorkItem {
	for _, item := range s.Items {
		if item.ID == id {
			return item
		}
	}
	return nil
}

// Request starts an orchestration run.
type Request struct {
	// Items are the work items to orchestrate.
	Items []*WorkItem `json:"items"`
	// Config overrides the service defaults, if set.
	Config *Config `json:"config,omitempty"`
	// PriorityOverrides replaces item priorities, keyed by item ID.
	PriorityOverrides map[string]int `json:"priority_overrides,omitempty"`
	// ResourceConstraints overrides per-type capacity limits.
	ResourceConstraints map[ResourceType]int `json:"resource_constraints,omitempty"`
}

// Result is the outcome of an orchestration run. It is available mid-run
// with the counts observed so far.
type Result struct {
	// OrchestrationID identifies the run.
	OrchestrationID string `json:"orchestration_id"`
	// Status is the orchestration-level state.
	Status Status `json:"status"`
	// SuccessfulIDs lists completed item IDs.
	SuccessfulIDs []string `json:"successful_ids"`
	// FailedIDs lists failed item IDs.
	FailedIDs []string `json:"failed_ids"`
	// SkippedIDs lists items that were blocked and never ran.
	SkippedIDs []string `json:"skipped_ids"`
	// Metrics summarizes the run.
	Metrics Metrics `json:"metrics"`
	// TotalDuration is the run's elapsed time.
	TotalDuration time.Duration `json:"total_duration,omitempty"`
	// StartedAt is when the run began.
	StartedAt *time.Time `json:"started_at,omitempty"`
	// CompletedAt is when the run finished, if it has.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// ResourceConflict records contention for one resource between items.
type ResourceConflict struct {
	// ResourceID identifies the contested resource.
	ResourceID string `json:"resource_id"`
	// Type is the resource classification.
	Type ResourceType `json:"type"`
	// ConflictingItems lists every contender's item ID.
	ConflictingItems []string `json:"conflicting_items"`
	// ConflictType is "exclusive_access" or "exclusive_vs_shared".
	ConflictType string `json:"conflict_type"`
	// Severity is "low", "medium", "high", or "critical".
	Severity string `json:"severity"`
	// Strategy is the resolution strategy applied to this conflict.
	Strategy Strategy `json:"strategy"`
	// Resolved indicates the conflict has been arbitrated.
	Resolved bool `json:"resolved"`
	// ResolvedAt is when arbitration happened.
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}
