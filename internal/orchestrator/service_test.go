package orchestrator

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/weftworks/weft/internal/exec"
	"github.com/weftworks/weft/pkg/models"
)

func TestStopFailsRunAndReleasesResources(t *testing.T) {
	executor := &blockExecutor{}
	cfg := testConfig()
	cfg.ItemTimeout = 0

	svc := NewService(RequiredConfig{Executor: executor}, WithDefaults(cfg))
	id, err := svc.Start(context.Background(), models.Request{
		Items: []*models.WorkItem{
			needs(planItem("A", 1), "db", models.ResourceDatabase, false),
			needs(planItem("B", 2), "api", models.ResourceAPIEndpoint, false),
		},
	})
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}

	waitFor(t, time.Second, func() bool {
		return atomic.LoadInt32(&executor.started) == 2
	})

	if err := svc.Stop(id); err != nil {
		t.Fatalf("stop failed: %v", err)
	}

	result, err := svc.Result(id)
	if err != nil {
		t.Fatalf("result failed: %v", err)
	}
	if result.Status != models.StatusFailed {
		t.Errorf("stopped run must be failed, got %s", result.Status)
	}

	state, err := svc.Status(id)
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}
	if len(state.Allocations) != 0 {
		t.Errorf("stop must release every allocation, got %v", state.Allocations)
	}
	if state.Metrics.InProgressItems != 0 {
		t.Errorf("no items may remain in progress after stop, got %d", state.Metrics.InProgressItems)
	}
}

func TestPauseResume(t *testing.T) {
	executor := &trackExecutor{delay: 50 * time.Millisecond}
	cfg := testConfig()
	cfg.MaxConcurrent = 1

	svc := NewService(RequiredConfig{Executor: executor}, WithDefaults(cfg))
	id, err := svc.Start(context.Background(), models.Request{
		Items: []*models.WorkItem{planItem("A", 5), planItem("B", 5), planItem("C", 5)},
	})
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}

	time.Sleep(10 * time.Millisecond)
	if err := svc.Pause(id); err != nil {
		t.Fatalf("pause failed: %v", err)
	}

	state, err := svc.Status(id)
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}
	if state.Status != models.StatusPaused {
		t.Errorf("expected paused, got %s", state.Status)
	}

	// At most the already-admitted item may finish while paused.
	time.Sleep(120 * time.Millisecond)
	if got := len(executor.completionOrder()); got > 1 {
		t.Errorf("pause must stop admission, but %d items ran", got)
	}

	if err := svc.Resume(id); err != nil {
		t.Fatalf("resume failed: %v", err)
	}
	result, err := svc.Wait(context.Background(), id)
	if err != nil {
		t.Fatalf("wait failed: %v", err)
	}
	if result.Status != models.StatusCompleted || len(result.SuccessfulIDs) != 3 {
		t.Errorf("resumed run should finish all items, got %s %v", result.Status, result.SuccessfulIDs)
	}
}

func TestCallbacksReceiveBatches(t *testing.T) {
	sim := exec.NewSimExecutor(0)
	sim.FailItem("bad", "scripted failure")

	cfg := testConfig()
	cfg.AutoRollback = false

	svc := NewService(RequiredConfig{Executor: sim}, WithDefaults(cfg))

	var mu sync.Mutex
	completed := make(map[string]bool)
	failed := make(map[string]bool)
	var runID string
	svc.RegisterCallback(func(update CallbackUpdate) {
		mu.Lock()
		defer mu.Unlock()
		runID = update.OrchestrationID
		for _, id := range update.Completed {
			completed[id] = true
		}
		for _, id := range update.Failed {
			failed[id] = true
		}
	})

	id, err := svc.Start(context.Background(), models.Request{
		Items: []*models.WorkItem{
			planItem("one", 5), planItem("two", 5), planItem("three", 5), planItem("bad", 5),
		},
	})
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if _, err := svc.Wait(context.Background(), id); err != nil {
		t.Fatalf("wait failed: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if runID != id {
		t.Errorf("callback run ID %q, want %q", runID, id)
	}
	for _, want := range []string{"one", "two", "three"} {
		if !completed[want] {
			t.Errorf("callback never reported %s as completed", want)
		}
	}
	if !failed["bad"] || len(failed) != 1 {
		t.Errorf("callback failures %v, want only bad", failed)
	}
}

func TestServiceUnknownID(t *testing.T) {
	svc := NewService(RequiredConfig{Executor: exec.NewSimExecutor(0)}, WithDefaults(testConfig()))

	if _, err := svc.Status("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("status: expected ErrNotFound, got %v", err)
	}
	if _, err := svc.Result("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("result: expected ErrNotFound, got %v", err)
	}
	if err := svc.Pause("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("pause: expected ErrNotFound, got %v", err)
	}
	if err := svc.Stop("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("stop: expected ErrNotFound, got %v", err)
	}
}

func TestPauseResumeAfterFinish(t *testing.T) {
	svc := NewService(RequiredConfig{Executor: exec.NewSimExecutor(0)}, WithDefaults(testConfig()))

	id, err := svc.Start(context.Background(), models.Request{
		Items: []*models.WorkItem{planItem("A", 5)},
	})
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if _, err := svc.Wait(context.Background(), id); err != nil {
		t.Fatalf("wait failed: %v", err)
	}

	if err := svc.Pause(id); !errors.Is(err, ErrAlreadyTerminal) {
		t.Errorf("pause on a finished run: expected ErrAlreadyTerminal, got %v", err)
	}
	if err := svc.Resume(id); !errors.Is(err, ErrAlreadyTerminal) {
		t.Errorf("resume on a finished run: expected ErrAlreadyTerminal, got %v", err)
	}
}

func TestServiceList(t *testing.T) {
	svc := NewService(RequiredConfig{Executor: exec.NewSimExecutor(0)}, WithDefaults(testConfig()))

	id, err := svc.Start(context.Background(), models.Request{
		Items: []*models.WorkItem{planItem("A", 5)},
	})
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if _, err := svc.Wait(context.Background(), id); err != nil {
		t.Fatalf("wait failed: %v", err)
	}

	found := false
	for _, got := range svc.List() {
		if got == id {
			found = true
		}
	}
	if !found {
		t.Errorf("list %v should contain %s", svc.List(), id)
	}
}
