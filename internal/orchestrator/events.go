package orchestrator

import (
	"time"
)

// EventType represents the type of orchestration event.
type EventType string

const (
	// EventItemStarted indicates a work item has started execution.
	EventItemStarted EventType = "item_started"
	// EventItemCompleted indicates a work item completed successfully.
	EventItemCompleted EventType = "item_completed"
	// EventItemFailed indicates a work item failed.
	EventItemFailed EventType = "item_failed"
	// EventItemBlocked indicates a work item is blocked and will not run.
	EventItemBlocked EventType = "item_blocked"
	// EventWorkspaceCreated indicates an isolation workspace was created.
	EventWorkspaceCreated EventType = "workspace_created"
	// EventWorkspaceIntegrated indicates a workspace branch was merged back.
	EventWorkspaceIntegrated EventType = "workspace_integrated"
	// EventRollbackTriggered indicates the failure threshold was crossed.
	EventRollbackTriggered EventType = "rollback_triggered"
	// EventRunDone indicates the orchestration reached a terminal status.
	EventRunDone EventType = "run_done"
)

// OrchestrationEvent represents an event emitted during a run.
// Events supplement the callback contract; consumers that need guaranteed
// delivery should register a callback instead.
type OrchestrationEvent struct {
	// Type is the kind of event.
	Type EventType
	// OrchestrationID is the run this event belongs to.
	OrchestrationID string
	// ItemID is the ID of the related work item, if applicable.
	ItemID string
	// ItemName is the name of the related work item, if applicable.
	ItemName string
	// Message provides additional context about the event.
	Message string
	// Error contains error details for failure events.
	Error error
	// Timestamp is when the event occurred.
	Timestamp time.Time
	// Duration is the elapsed time, for completion events.
	Duration time.Duration
}
