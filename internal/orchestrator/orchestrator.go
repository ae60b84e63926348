package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/weftworks/weft/internal/exec"
	"github.com/weftworks/weft/internal/isolation"
	"github.com/weftworks/weft/pkg/models"
)

// Orchestration is one run of the engine over a set of work items.
// A driver goroutine owns the run loop; all mutable state is guarded by mu
// and written only by the driver and the lifecycle methods.
type Orchestration struct {
	mu    sync.Mutex
	state *models.OrchestrationState
	plan  *ExecutionPlan

	resources  *ResourceManager
	resolver   *ConflictResolver
	pauseCtrl  *PauseController
	executor   exec.WorkExecutor
	workspaces isolation.Provider // nil disables isolation
	logger     *DebugLogger
	emitter    *EventEmitter
	// notify delivers one completion batch to registered callbacks.
	notify func(completed, failed []string)

	cancel      context.CancelFunc
	done        chan struct{}
	rollingBack bool
	stopping    bool
}

// newOrchestration validates the request, builds the execution plan, and
// resolves resource conflicts. Cycle and config errors are returned
// synchronously; nothing has started when they are.
func newOrchestration(req models.Request, defaults models.Config, executor exec.WorkExecutor, workspaces isolation.Provider, logger *DebugLogger, emitter *EventEmitter, notify func(completed, failed []string)) (*Orchestration, error) {
	cfg := defaults
	if req.Config != nil {
		cfg = *req.Config
	}
	for rt, limit := range req.ResourceConstraints {
		if cfg.Capacity == nil {
			cfg.Capacity = make(map[models.ResourceType]int)
		}
		cfg.Capacity[rt] = limit
	}
	if err := cfg.Validate(); err != nil {
		return nil, &ConfigError{Reason: err.Error()}
	}
	if len(req.Items) == 0 {
		return nil, &ConfigError{Reason: "no work items"}
	}

	for _, item := range req.Items {
		if override, ok := req.PriorityOverrides[item.ID]; ok {
			item.Priority = override
		}
		if item.Status == "" {
			item.Status = models.ItemStatusPending
		}
	}

	plan, err := BuildPlan(req.Items)
	if err != nil {
		return nil, err
	}

	state := &models.OrchestrationState{
		ID:          uuid.New().String(),
		Status:      models.StatusInitializing,
		Items:       req.Items,
		Contexts:    make(map[string]*models.ExecutionContext, len(req.Items)),
		Allocations: make(map[string][]*models.ResourceAllocation),
		Config:      cfg,
		Metrics:     models.Metrics{TotalItems: len(req.Items)},
	}
	for _, item := range req.Items {
		state.Contexts[item.ID] = &models.ExecutionContext{
			ItemID:     item.ID,
			Phase:      models.PhaseScheduled,
			MaxRetries: cfg.MaxRetries,
		}
	}

	o := &Orchestration{
		state:      state,
		plan:       plan,
		resources:  NewResourceManager(cfg.Capacity),
		resolver:   NewConflictResolver(cfg.ConflictStrategy),
		pauseCtrl:  NewPauseController(),
		executor:   executor,
		workspaces: workspaces,
		logger:     logger,
		emitter:    emitter,
		notify:     notify,
		done:       make(chan struct{}),
	}

	o.state.Status = models.StatusScheduling
	o.resolveConflicts()
	return o, nil
}

// ID returns the orchestration identifier.
func (o *Orchestration) ID() string {
	return o.state.ID
}

// Done returns a channel closed when the run reaches a terminal status.
func (o *Orchestration) Done() <-chan struct{} {
	return o.done
}

// terminal reports whether the run has reached a terminal status.
func (o *Orchestration) terminal() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state.Status.Terminal()
}

// start launches the driver goroutine. The run is bounded by the
// configured global timeout.
func (o *Orchestration) start(parent context.Context) {
	ctx, cancel := context.WithTimeout(parent, o.state.Config.GlobalTimeout)
	o.mu.Lock()
	o.cancel = cancel
	now := time.Now()
	o.state.StartedAt = &now
	o.state.Status = models.StatusExecuting
	o.mu.Unlock()

	go func() {
		defer cancel()
		o.runLoop(ctx)
	}()
}

// Pause suspends admission of new items. In-flight items keep running.
func (o *Orchestration) Pause() {
	o.pauseCtrl.Pause()
	o.mu.Lock()
	if o.state.Status == models.StatusExecuting {
		o.state.Status = models.StatusPaused
	}
	o.mu.Unlock()
}

// Resume re-enables admission after a pause.
func (o *Orchestration) Resume() {
	o.mu.Lock()
	if o.state.Status == models.StatusPaused {
		o.state.Status = models.StatusExecuting
	}
	o.mu.Unlock()
	o.pauseCtrl.Resume()
}

// Stop halts the run best-effort: admission stops, in-flight executor
// contexts are cancelled, resources are released, and workspaces are
// cleaned up. Executors that ignore cancellation are not preempted.
func (o *Orchestration) Stop() {
	o.mu.Lock()
	o.stopping = true
	cancel := o.cancel
	o.mu.Unlock()

	o.pauseCtrl.Stop()
	if cancel != nil {
		cancel()
	}
}

// resolveConflicts arbitrates every planned conflict once. Losing
// contenders are blocked with a warning and never re-evaluated.
func (o *Orchestration) resolveConflicts() {
	o.mu.Lock()
	defer o.mu.Unlock()

	byID := make(map[string]*models.WorkItem, len(o.state.Items))
	for _, item := range o.state.Items {
		byID[item.ID] = item
	}

	for _, conflict := range o.plan.Conflicts {
		res := o.resolver.Resolve(conflict, byID)
		o.state.Metrics.ConflictsResolved++

		for _, id := range conflict.ConflictingItems {
			if id == res.SelectedID {
				continue
			}
			item := byID[id]
			if item == nil || item.Status.Terminal() {
				continue
			}
			item.Status = models.ItemStatusBlocked
			warning := fmt.Sprintf("item %s blocked: lost %s conflict for %s to %s (%s)",
				id, conflict.ConflictType, conflict.ResourceID, res.SelectedID, res.Reasoning)
			o.state.Warnings = append(o.state.Warnings, warning)
			o.logger.Log("[orchestration %s] %s", o.state.ID, warning)
			o.emit(OrchestrationEvent{
				Type:            EventItemBlocked,
				OrchestrationID: o.state.ID,
				ItemID:          id,
				ItemName:        item.Name,
				Message:         warning,
				Timestamp:       time.Now(),
			})
		}
	}
}

// blockDependentsLocked marks everything downstream of a failed item as
// blocked so it is reported as skipped rather than silently left pending.
func (o *Orchestration) blockDependentsLocked(itemID string) {
	for _, depID := range o.plan.Graph.GetDependents(itemID) {
		item := o.plan.Graph.GetItem(depID)
		if item == nil || item.Status.Terminal() || item.Status == models.ItemStatusBlocked {
			continue
		}
		item.Status = models.ItemStatusBlocked
		warning := fmt.Sprintf("item %s blocked: dependency %s failed", depID, itemID)
		o.state.Warnings = append(o.state.Warnings, warning)
		o.emit(OrchestrationEvent{
			Type:            EventItemBlocked,
			OrchestrationID: o.state.ID,
			ItemID:          depID,
			ItemName:        item.Name,
			Message:         warning,
			Timestamp:       time.Now(),
		})
		o.blockDependentsLocked(depID)
	}
}

// updateMetricsLocked recomputes the counters from item statuses.
func (o *Orchestration) updateMetricsLocked() {
	m := &o.state.Metrics
	m.CompletedItems = 0
	m.FailedItems = 0
	m.InProgressItems = 0
	m.BlockedItems = 0
	for _, item := range o.state.Items {
		switch item.Status {
		case models.ItemStatusCompleted:
			m.CompletedItems++
		case models.ItemStatusFailed:
			m.FailedItems++
		case models.ItemStatusInProgress:
			m.InProgressItems++
		case models.ItemStatusBlocked:
			m.BlockedItems++
		}
	}
}

// snapshotState returns a deep copy of the run state with allocations
// refreshed from the resource manager. The driver keeps mutating items and
// contexts after this returns, so nothing mutable may be shared with the
// caller.
func (o *Orchestration) snapshotState() models.OrchestrationState {
	o.mu.Lock()
	defer o.mu.Unlock()

	snapshot := *o.state

	snapshot.Items = make([]*models.WorkItem, len(o.state.Items))
	for i, item := range o.state.Items {
		cp := *item
		cp.Dependencies = append([]models.DependencyEdge(nil), item.Dependencies...)
		cp.Requires = append([]models.ResourceRequirement(nil), item.Requires...)
		cp.Tags = append([]string(nil), item.Tags...)
		snapshot.Items[i] = &cp
	}

	snapshot.Contexts = make(map[string]*models.ExecutionContext, len(o.state.Contexts))
	for id, ectx := range o.state.Contexts {
		cp := *ectx
		cp.HeldResources = append([]models.ResourceAllocation(nil), ectx.HeldResources...)
		cp.Log = append([]string(nil), ectx.Log...)
		if ectx.Workspace != nil {
			ws := *ectx.Workspace
			cp.Workspace = &ws
		}
		snapshot.Contexts[id] = &cp
	}

	snapshot.Allocations = o.resources.ActiveAllocations()
	snapshot.Errors = append([]string(nil), o.state.Errors...)
	snapshot.Warnings = append([]string(nil), o.state.Warnings...)
	return snapshot
}

// snapshotResult builds a result from the current state. Safe to call
// mid-run; counts reflect progress so far.
func (o *Orchestration) snapshotResult() models.Result {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.buildResultLocked()
}

func (o *Orchestration) buildResultLocked() models.Result {
	result := models.Result{
		OrchestrationID: o.state.ID,
		Status:          o.state.Status,
		Metrics:         o.state.Metrics,
		StartedAt:       o.state.StartedAt,
		CompletedAt:     o.state.CompletedAt,
	}
	for _, item := range o.state.Items {
		switch item.Status {
		case models.ItemStatusCompleted:
			result.SuccessfulIDs = append(result.SuccessfulIDs, item.ID)
		case models.ItemStatusFailed:
			result.FailedIDs = append(result.FailedIDs, item.ID)
		default:
			result.SkippedIDs = append(result.SkippedIDs, item.ID)
		}
	}
	if o.state.StartedAt != nil {
		end := time.Now()
		if o.state.CompletedAt != nil {
			end = *o.state.CompletedAt
		}
		result.TotalDuration = end.Sub(*o.state.StartedAt)
	}
	return result
}

// finalize moves the run to its terminal status and emits the run_done
// event. Idempotent.
func (o *Orchestration) finalize() {
	o.mu.Lock()

	if o.state.Status.Terminal() {
		o.mu.Unlock()
		return
	}

	o.updateMetricsLocked()
	m := &o.state.Metrics

	switch {
	case o.rollingBack, o.stopping:
		o.state.Status = models.StatusFailed
	case m.CompletedItems == 0 && m.FailedItems > 0:
		o.state.Status = models.StatusFailed
	default:
		o.state.Status = models.StatusCompleted
	}

	now := time.Now()
	o.state.CompletedAt = &now
	if o.state.StartedAt != nil {
		m.TotalExecutionTime = now.Sub(*o.state.StartedAt)
		if minutes := m.TotalExecutionTime.Minutes(); minutes > 0 {
			m.ThroughputPerMinute = float64(m.CompletedItems) / minutes
		}
	}
	o.state.Allocations = o.resources.ActiveAllocations()

	status := o.state.Status
	id := o.state.ID
	completedCount, failedCount := m.CompletedItems, m.FailedItems
	o.mu.Unlock()

	o.logger.Log("[orchestration %s] finished: status=%s completed=%d failed=%d",
		id, status, completedCount, failedCount)
	o.emit(OrchestrationEvent{
		Type:            EventRunDone,
		OrchestrationID: id,
		Message:         fmt.Sprintf("orchestration finished with status %s", status),
		Timestamp:       time.Now(),
	})
}

// emit forwards an event to the emitter when one is attached.
func (o *Orchestration) emit(event OrchestrationEvent) {
	if o.emitter != nil {
		o.emitter.Emit(event)
	}
}

// newExecutorID mints an executor identity for one admission.
func newExecutorID() string {
	return "exec-" + strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
}
