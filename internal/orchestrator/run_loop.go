package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/weftworks/weft/internal/exec"
	"github.com/weftworks/weft/pkg/models"
)

// completionMsg is sent by executor goroutines back to the driver.
type completionMsg struct {
	itemID string
	report exec.Report
}

// runLoop is the driver: it admits ready items onto the pool, consumes
// completions, and decides when the run is over. It is the only writer of
// run state while executing.
func (o *Orchestration) runLoop(ctx context.Context) {
	defer close(o.done)

	inflight := make(map[string]context.CancelFunc)
	// Sized to the pool so executor goroutines never block on send even
	// after the driver has exited.
	completionCh := make(chan completionMsg, o.state.Config.MaxConcurrent)

	for {
		select {
		case <-ctx.Done():
			o.shutdown(inflight)
			o.finalize()
			return

		case msg := <-completionCh:
			if done := o.consumeCompletions(msg, inflight, completionCh); done {
				o.finalize()
				return
			}

		default:
			ready := o.readyItems(inflight)

			if len(ready) == 0 && len(inflight) == 0 {
				o.logger.Log("[runLoop] exiting: no ready items and none in flight")
				o.finalize()
				return
			}

			if len(ready) == 0 {
				// Nothing to admit, wait for a completion or re-check
				// after the monitor interval.
				select {
				case <-ctx.Done():
					o.shutdown(inflight)
					o.finalize()
					return
				case msg := <-completionCh:
					if done := o.consumeCompletions(msg, inflight, completionCh); done {
						o.finalize()
						return
					}
				case <-time.After(o.state.Config.MonitorInterval):
				}
				continue
			}

			// Honor pause before admitting new work.
			if err := o.pauseCtrl.WaitIfPaused(ctx); err != nil {
				o.shutdown(inflight)
				o.finalize()
				return
			}

			admitted := o.admit(ctx, ready, inflight, completionCh)

			if admitted == 0 {
				// Nothing was admitted: every ready item was denied
				// resources or the pool is full. Wait for a completion
				// to change that instead of spinning through denials.
				select {
				case <-ctx.Done():
					o.shutdown(inflight)
					o.finalize()
					return
				case msg := <-completionCh:
					if done := o.consumeCompletions(msg, inflight, completionCh); done {
						o.finalize()
						return
					}
				case <-time.After(o.state.Config.MonitorInterval):
				}
			}
		}
	}
}

// readyItems returns dependency-satisfied pending items that are not
// already in flight, ordered by priority then plan order.
func (o *Orchestration) readyItems(inflight map[string]context.CancelFunc) []*models.WorkItem {
	o.mu.Lock()
	defer o.mu.Unlock()

	orderIndex := make(map[string]int, len(o.plan.Order))
	for i, id := range o.plan.Order {
		orderIndex[id] = i
	}

	var ready []*models.WorkItem
	for _, id := range o.plan.Graph.GetReady() {
		if _, running := inflight[id]; running {
			continue
		}
		item := o.plan.Graph.GetItem(id)
		if item == nil || item.Status != models.ItemStatusPending {
			continue
		}
		ready = append(ready, item)
	}

	sort.Slice(ready, func(i, j int) bool {
		if ready[i].Priority != ready[j].Priority {
			return ready[i].Priority < ready[j].Priority
		}
		return orderIndex[ready[i].ID] < orderIndex[ready[j].ID]
	})
	return ready
}

// admit moves ready items through resource allocation and workspace setup
// into execution, up to the concurrency bound. Returns the number of items
// admitted so the driver can back off when a pass admits nothing.
func (o *Orchestration) admit(ctx context.Context, ready []*models.WorkItem, inflight map[string]context.CancelFunc, completionCh chan completionMsg) int {
	admitted := 0
	for _, item := range ready {
		if len(inflight) >= o.state.Config.MaxConcurrent {
			return admitted
		}

		allocs, ok := o.resources.AllocateAll(item)
		if !ok {
			// Transient: the item stays scheduled and is retried on the
			// next admission pass.
			o.logger.Log("[runLoop] item %s waiting for resources", item.ID)
			continue
		}

		executorID := newExecutorID()

		o.mu.Lock()
		ectx := o.state.Contexts[item.ID]
		ectx.Phase = models.PhaseResourceAllocated
		ectx.HeldResources = nil
		for _, a := range allocs {
			ectx.HeldResources = append(ectx.HeldResources, *a)
		}
		ectx.AppendLog("resources allocated: %d", len(allocs))
		item.ExecutorID = executorID
		if o.workspaces != nil {
			ectx.Phase = models.PhaseStarting
		}
		o.mu.Unlock()

		// Workspace setup runs outside the engine lock; git calls can take
		// seconds and must not block Status or Result. Isolation failures
		// are logged and the item runs without a workspace.
		var workspacePath string
		var wsRef *models.WorkspaceRef
		if o.workspaces != nil {
			if ws := o.workspaces.CreateWorkspace(item.ID, executorID); ws != nil {
				wsRef = &models.WorkspaceRef{
					Branch:     ws.Branch,
					Path:       ws.Path,
					ExecutorID: executorID,
				}
				workspacePath = ws.Path
				o.emit(OrchestrationEvent{
					Type:            EventWorkspaceCreated,
					OrchestrationID: o.state.ID,
					ItemID:          item.ID,
					ItemName:        item.Name,
					Message:         fmt.Sprintf("workspace %s at %s", ws.Branch, ws.Path),
					Timestamp:       time.Now(),
				})
			}
		}

		now := time.Now()
		o.mu.Lock()
		if wsRef != nil {
			ectx.Workspace = wsRef
			ectx.AppendLog("workspace created: %s", wsRef.Branch)
		} else if o.workspaces != nil {
			ectx.AppendLog("workspace unavailable, running without isolation")
		}
		item.Status = models.ItemStatusInProgress
		item.StartedAt = &now
		ectx.Phase = models.PhaseRunning
		ectx.StartedAt = &now
		o.updateMetricsLocked()
		o.mu.Unlock()

		o.logger.Log("[runLoop] item %s running on %s", item.ID, executorID)
		o.emit(OrchestrationEvent{
			Type:            EventItemStarted,
			OrchestrationID: o.state.ID,
			ItemID:          item.ID,
			ItemName:        item.Name,
			Message:         fmt.Sprintf("started on %s", executorID),
			Timestamp:       now,
		})

		var itemCtx context.Context
		var cancel context.CancelFunc
		if timeout := o.state.Config.ItemTimeout; timeout > 0 {
			itemCtx, cancel = context.WithTimeout(ctx, timeout)
		} else {
			itemCtx, cancel = context.WithCancel(ctx)
		}
		inflight[item.ID] = cancel
		admitted++

		go func(item *models.WorkItem, path string) {
			report := o.executor.Execute(itemCtx, item, path)
			completionCh <- completionMsg{itemID: item.ID, report: report}
		}(item, workspacePath)
	}
	return admitted
}

// consumeCompletions handles one completion plus everything else already
// queued, then notifies callbacks with the batch. Returns true when the
// run is over (rollback).
func (o *Orchestration) consumeCompletions(first completionMsg, inflight map[string]context.CancelFunc, completionCh chan completionMsg) bool {
	batch := []completionMsg{first}
drain:
	for {
		select {
		case msg := <-completionCh:
			batch = append(batch, msg)
		default:
			break drain
		}
	}

	var completed, failed []string
	for _, msg := range batch {
		if cancel, ok := inflight[msg.itemID]; ok {
			cancel()
			delete(inflight, msg.itemID)
		}

		switch o.handleCompletion(msg) {
		case models.ItemStatusCompleted:
			completed = append(completed, msg.itemID)
		case models.ItemStatusFailed:
			failed = append(failed, msg.itemID)
		}
	}

	if o.notify != nil && (len(completed) > 0 || len(failed) > 0) {
		o.notify(completed, failed)
	}

	if o.shouldRollback() {
		o.rollback(inflight)
		return true
	}
	return false
}

// handleCompletion integrates or fails one finished item and releases its
// resources. Returns the item's resulting status, or "" when the
// completion arrived after the item was already terminal (rollback race).
func (o *Orchestration) handleCompletion(msg completionMsg) models.ItemStatus {
	o.mu.Lock()
	item := o.plan.Graph.GetItem(msg.itemID)
	ectx := o.state.Contexts[msg.itemID]
	if item == nil || ectx == nil || ectx.Phase.Terminal() {
		o.mu.Unlock()
		o.resources.ReleaseAll(msg.itemID)
		return ""
	}

	execErr := msg.report.Err
	itemName := item.Name
	var branch string
	if ectx.Workspace != nil {
		branch = ectx.Workspace.Branch
	}
	if msg.report.Status == exec.ReportCompleted {
		ectx.Phase = models.PhaseCompleting
	}
	o.mu.Unlock()

	// Workspace integration and cleanup run outside the engine lock for
	// the same reason creation does. Only the driver reaches this point,
	// so merges into trunk stay serialized. A merge conflict fails the
	// item.
	integrated := false
	if branch != "" {
		if msg.report.Status == exec.ReportCompleted {
			if err := o.integrateWorkspace(msg.itemID, itemName); err != nil {
				execErr = err
			} else {
				integrated = true
			}
		}
		if err := o.workspaces.Cleanup(msg.itemID); err != nil {
			o.logger.Log("[runLoop] workspace cleanup for %s: %v", msg.itemID, err)
		}
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if ectx.Phase.Terminal() {
		// Rolled back or shut down while integrating.
		o.resources.ReleaseAll(msg.itemID)
		return ""
	}

	if integrated {
		ectx.AppendLog("workspace %s integrated", branch)
		o.emit(OrchestrationEvent{
			Type:            EventWorkspaceIntegrated,
			OrchestrationID: o.state.ID,
			ItemID:          msg.itemID,
			ItemName:        itemName,
			Message:         fmt.Sprintf("branch %s merged", branch),
			Timestamp:       time.Now(),
		})
	}

	now := time.Now()
	item.CompletedAt = &now
	item.ActualDuration = msg.report.Duration
	ectx.CompletedAt = &now
	o.resources.ReleaseAll(msg.itemID)
	ectx.HeldResources = nil

	var status models.ItemStatus
	if msg.report.Status == exec.ReportCompleted && execErr == nil {
		status = models.ItemStatusCompleted
		item.Status = status
		ectx.Phase = models.PhaseCompleted
		ectx.AppendLog("completed in %v", msg.report.Duration)
		o.plan.Graph.MarkComplete(msg.itemID)
		o.emit(OrchestrationEvent{
			Type:            EventItemCompleted,
			OrchestrationID: o.state.ID,
			ItemID:          msg.itemID,
			ItemName:        item.Name,
			Duration:        msg.report.Duration,
			Timestamp:       now,
		})
	} else {
		status = models.ItemStatusFailed
		item.Status = status
		ectx.Phase = models.PhaseFailed
		if execErr != nil {
			ectx.ErrorMessage = execErr.Error()
		} else {
			ectx.ErrorMessage = "execution failed"
		}
		ectx.AppendLog("failed: %s", ectx.ErrorMessage)
		o.state.Errors = append(o.state.Errors, fmt.Sprintf("item %s: %s", msg.itemID, ectx.ErrorMessage))
		o.emit(OrchestrationEvent{
			Type:            EventItemFailed,
			OrchestrationID: o.state.ID,
			ItemID:          msg.itemID,
			ItemName:        item.Name,
			Error:           execErr,
			Timestamp:       now,
		})
		o.blockDependentsLocked(msg.itemID)
	}

	o.updateMetricsLocked()
	o.logger.Log("[runLoop] item %s finished: %s", msg.itemID, status)
	return status
}

// integrateWorkspace commits and merges the item's workspace branch.
// Called without the engine lock held.
func (o *Orchestration) integrateWorkspace(itemID, itemName string) error {
	message := fmt.Sprintf("Workstream %s: %s", itemID, itemName)
	if err := o.workspaces.CommitChanges(itemID, message); err != nil {
		return &ItemError{ItemID: itemID, Op: "commit workspace", Err: err}
	}
	if err := o.workspaces.Integrate(itemID); err != nil {
		return &ItemError{ItemID: itemID, Op: "integrate workspace", Err: err}
	}
	return nil
}

// shouldRollback reports whether the failure fraction crossed the
// configured threshold.
func (o *Orchestration) shouldRollback() bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.state.Config.AutoRollback || o.rollingBack {
		return false
	}
	total := o.state.Metrics.TotalItems
	if total == 0 {
		return false
	}
	fraction := float64(o.state.Metrics.FailedItems) / float64(total)
	return fraction >= o.state.Config.RollbackThreshold
}

// rollback aborts the run: in-flight executors are cancelled, running
// items are rolled back, and all resources are returned. Completed items
// are not compensated.
func (o *Orchestration) rollback(inflight map[string]context.CancelFunc) {
	o.mu.Lock()
	o.rollingBack = true
	o.state.Status = models.StatusRollingBack
	o.state.Metrics.RollbackCount++
	id := o.state.ID
	failedCount := o.state.Metrics.FailedItems
	total := o.state.Metrics.TotalItems
	o.mu.Unlock()

	o.logger.Log("[orchestration %s] rollback triggered: %d/%d items failed",
		id, failedCount, total)
	o.emit(OrchestrationEvent{
		Type:            EventRollbackTriggered,
		OrchestrationID: id,
		Message:         "failure threshold crossed, aborting remaining work",
		Timestamp:       time.Now(),
	})

	for _, cancel := range inflight {
		cancel()
	}

	o.mu.Lock()
	now := time.Now()
	var cleanups []string
	for _, item := range o.state.Items {
		if item.Status != models.ItemStatusInProgress {
			continue
		}
		ectx := o.state.Contexts[item.ID]
		item.Status = models.ItemStatusFailed
		item.CompletedAt = &now
		ectx.Phase = models.PhaseRolledBack
		ectx.ErrorMessage = "rolled back"
		ectx.CompletedAt = &now
		ectx.HeldResources = nil
		o.resources.ReleaseAll(item.ID)
		if ectx.Workspace != nil {
			cleanups = append(cleanups, item.ID)
		}
	}
	o.updateMetricsLocked()
	o.mu.Unlock()

	for _, itemID := range cleanups {
		if err := o.workspaces.Cleanup(itemID); err != nil {
			o.logger.Log("[rollback] workspace cleanup for %s: %v", itemID, err)
		}
	}
}

// shutdown handles stop and global timeout: every non-terminal item is
// failed with an explicit reason and its resources and workspace are
// released.
func (o *Orchestration) shutdown(inflight map[string]context.CancelFunc) {
	for _, cancel := range inflight {
		cancel()
	}

	o.mu.Lock()

	reason := "global timeout exceeded"
	if o.stopping {
		reason = "orchestration stopped"
	}

	now := time.Now()
	var cleanups []string
	for _, item := range o.state.Items {
		if item.Status.Terminal() || item.Status == models.ItemStatusBlocked {
			continue
		}
		ectx := o.state.Contexts[item.ID]
		wasRunning := item.Status == models.ItemStatusInProgress
		item.Status = models.ItemStatusFailed
		item.CompletedAt = &now
		ectx.Phase = models.PhaseFailed
		ectx.ErrorMessage = reason
		ectx.CompletedAt = &now
		ectx.HeldResources = nil
		o.resources.ReleaseAll(item.ID)
		if wasRunning && ectx.Workspace != nil {
			cleanups = append(cleanups, item.ID)
		}
		o.state.Errors = append(o.state.Errors, fmt.Sprintf("item %s: %s", item.ID, reason))
	}
	o.updateMetricsLocked()
	o.logger.Log("[orchestration %s] shutdown: %s", o.state.ID, reason)
	o.mu.Unlock()

	for _, itemID := range cleanups {
		if err := o.workspaces.Cleanup(itemID); err != nil {
			o.logger.Log("[shutdown] workspace cleanup for %s: %v", itemID, err)
		}
	}
}
