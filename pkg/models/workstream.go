package models

import "time"

// ItemStatus represents the current state of a work item.
type ItemStatus string

const (
	// ItemStatusPending indicates the item has not started.
	ItemStatusPending ItemStatus = "pending"
	// ItemStatusInProgress indicates the item is being executed.
	ItemStatusInProgress ItemStatus = "in_progress"
	// ItemStatusBlocked indicates the item cannot proceed.
	ItemStatusBlocked ItemStatus = "blocked"
	// ItemStatusCompleted indicates the item completed successfully.
	ItemStatusCompleted ItemStatus = "completed"
	// ItemStatusFailed indicates the item failed.
	ItemStatusFailed ItemStatus = "failed"
)

// Valid returns true if the status is a known value.
func (s ItemStatus) Valid() bool {
	switch s {
	case ItemStatusPending, ItemStatusInProgress, ItemStatusBlocked, ItemStatusCompleted, ItemStatusFailed:
		return true
	default:
		return false
	}
}

// Terminal returns true if the status is a final state.
func (s ItemStatus) Terminal() bool {
	return s == ItemStatusCompleted || s == ItemStatusFailed
}

// DependencyKind classifies the relationship between two work items.
type DependencyKind string

const (
	// DependencyRequires means the source item requires the target to complete first.
	DependencyRequires DependencyKind = "requires"
	// DependencySharesResource means both items need the same resource.
	DependencySharesResource DependencyKind = "shares_resource"
	// DependencyOptional means the source benefits from the target but may start before it.
	DependencyOptional DependencyKind = "optional"
)

// ResourceType classifies a resource a work item may need.
type ResourceType string

const (
	// ResourceFile is a file or directory on disk.
	ResourceFile ResourceType = "file"
	// ResourceDatabase is a database or database connection.
	ResourceDatabase ResourceType = "database"
	// ResourceAPIEndpoint is a remote API endpoint.
	ResourceAPIEndpoint ResourceType = "api_endpoint"
	// ResourceExternalService is an external service dependency.
	ResourceExternalService ResourceType = "external_service"
	// ResourceComputational is CPU/memory-bound capacity.
	ResourceComputational ResourceType = "computational"
)

// DependencyEdge is a dependency relationship between two work items.
// The source item depends on the target item.
type DependencyEdge struct {
	// SourceID is the dependent item.
	SourceID string `json:"source_id"`
	// TargetID is the item being depended on.
	TargetID string `json:"target_id"`
	// Kind is the dependency classification.
	Kind DependencyKind `json:"kind"`
	// Critical indicates whether this dependency gates execution.
	// Only critical "requires" edges block admission.
	Critical bool `json:"critical"`
	// Description optionally explains the relationship.
	Description string `json:"description,omitempty"`
}

// ResourceRequirement describes a resource a work item needs while running.
type ResourceRequirement struct {
	// ResourceID uniquely identifies the resource.
	ResourceID string `json:"resource_id"`
	// Type is the resource classification.
	Type ResourceType `json:"type"`
	// Name is the human-readable resource name.
	Name string `json:"name"`
	// Exclusive indicates the item needs sole access to the resource.
	Exclusive bool `json:"exclusive"`
	// EstimatedDuration is how long the item expects to hold the resource.
	EstimatedDuration time.Duration `json:"estimated_duration,omitempty"`
}

// WorkItem is an independently-schedulable unit of work with dependencies
// and resource requirements.
type WorkItem struct {
	// ID is the unique identifier for this item.
	ID string `json:"id"`
	// Name is the short description of the item.
	Name string `json:"name"`
	// Description provides detailed information about the item.
	Description string `json:"description,omitempty"`
	// OriginTaskID is the ID of the originating complex task, if any.
	OriginTaskID string `json:"origin_task_id,omitempty"`
	// Status is the current state of the item.
	Status ItemStatus `json:"status"`
	// Priority orders admission among simultaneously-ready items.
	// 1 is highest, 10 is lowest.
	Priority int `json:"priority"`
	// Dependencies lists relationships to other items.
	Dependencies []DependencyEdge `json:"dependencies,omitempty"`
	// Requires lists resources this item needs while running.
	Requires []ResourceRequirement `json:"requires,omitempty"`
	// EstimatedDuration is the expected execution time.
	EstimatedDuration time.Duration `json:"estimated_duration,omitempty"`
	// ActualDuration is the measured execution time once completed.
	ActualDuration time.Duration `json:"actual_duration,omitempty"`
	// ExecutorID is the ID of the executor assigned to this item.
	ExecutorID string `json:"executor_id,omitempty"`
	// StartedAt is when execution began, if it has.
	StartedAt *time.Time `json:"started_at,omitempty"`
	// CompletedAt is when the item reached a terminal status, if it has.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	// Tags carry free-form labels.
	Tags []string `json:"tags,omitempty"`
}

// CriticalDependencies returns the IDs of items that must complete before
// this item may start. Only critical "requires" edges gate admission.
func (w *WorkItem) CriticalDependencies() []string {
	var ids []string
	for _, dep := range w.Dependencies {
		if dep.Kind == DependencyRequires && dep.Critical {
			ids = append(ids, dep.TargetID)
		}
	}
	return ids
}
