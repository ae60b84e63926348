package orchestrator

import (
	"container/heap"
	"fmt"
	"time"

	"github.com/weftworks/weft/internal/graph"
	"github.com/weftworks/weft/pkg/models"
)

// ExecutionPlan is the scheduling analysis for one set of work items.
type ExecutionPlan struct {
	// Order is a topological execution order, priority-broken.
	Order []string
	// Conflicts lists detected resource conflicts.
	Conflicts []*models.ResourceConflict
	// Graph is the dependency graph the plan was built from.
	Graph *graph.DependencyGraph
	// EstimatedDuration is the critical-path duration assuming
	// unbounded concurrency.
	EstimatedDuration time.Duration
	// ParallelPairs lists item pairs that can safely run simultaneously.
	ParallelPairs [][2]string
}

// BuildPlan analyzes the items and produces an execution plan.
// Returns a graph.CycleError if the dependency graph is cyclic.
func BuildPlan(items []*models.WorkItem) (*ExecutionPlan, error) {
	g := graph.New()
	g.SetDebugLog(debugLog)
	if err := g.Build(items); err != nil {
		return nil, err
	}

	order, err := topologicalOrder(g, items)
	if err != nil {
		return nil, err
	}

	plan := &ExecutionPlan{
		Order:             order,
		Conflicts:         detectConflicts(items),
		Graph:             g,
		EstimatedDuration: estimateDuration(g, items),
		ParallelPairs:     parallelPairs(g, items),
	}

	debugLog("[planner.BuildPlan] order=%v conflicts=%d estimate=%v pairs=%d",
		plan.Order, len(plan.Conflicts), plan.EstimatedDuration, len(plan.ParallelPairs))
	return plan, nil
}

// queueEntry is a ready item in the admission heap.
type queueEntry struct {
	id       string
	priority int
	seq      int // insertion sequence, breaks priority ties deterministically
}

// priorityQueue orders entries by priority (lower number first), then by
// insertion sequence.
type priorityQueue []queueEntry

func (q priorityQueue) Len() int { return len(q) }
func (q priorityQueue) Less(i, j int) bool {
	if q[i].priority != q[j].priority {
		return q[i].priority < q[j].priority
	}
	return q[i].seq < q[j].seq
}
func (q priorityQueue) Swap(i, j int)      { q[i], q[j] = q[j], q[i] }
func (q *priorityQueue) Push(x interface{}) { *q = append(*q, x.(queueEntry)) }
func (q *priorityQueue) Pop() interface{} {
	old := *q
	n := len(old)
	entry := old[n-1]
	*q = old[:n-1]
	return entry
}

// topologicalOrder produces a Kahn ordering with a priority heap so that,
// among simultaneously-ready items, higher-priority (lower number) items
// come first.
func topologicalOrder(g *graph.DependencyGraph, items []*models.WorkItem) ([]string, error) {
	indegree := make(map[string]int, len(items))
	byID := make(map[string]*models.WorkItem, len(items))
	for _, item := range items {
		indegree[item.ID] = len(g.GetDependencies(item.ID))
		byID[item.ID] = item
	}

	q := &priorityQueue{}
	heap.Init(q)
	seq := 0
	for _, item := range items {
		if indegree[item.ID] == 0 {
			heap.Push(q, queueEntry{id: item.ID, priority: item.Priority, seq: seq})
			seq++
		}
	}

	order := make([]string, 0, len(items))
	for q.Len() > 0 {
		entry := heap.Pop(q).(queueEntry)
		order = append(order, entry.id)

		for _, depID := range g.GetDependents(entry.id) {
			indegree[depID]--
			if indegree[depID] == 0 {
				heap.Push(q, queueEntry{id: depID, priority: byID[depID].Priority, seq: seq})
				seq++
			}
		}
	}

	if len(order) != len(items) {
		// Build already rejects cycles; this guards manual graph edits.
		return nil, fmt.Errorf("topological order incomplete: placed %d of %d items", len(order), len(items))
	}
	return order, nil
}

// detectConflicts scans resource requirements for contention.
// One conflict entry is produced per contested resource, listing every
// contender.
func detectConflicts(items []*models.WorkItem) []*models.ResourceConflict {
	type requester struct {
		itemID    string
		exclusive bool
	}
	byResource := make(map[string][]requester)
	resourceType := make(map[string]models.ResourceType)

	for _, item := range items {
		for _, req := range item.Requires {
			byResource[req.ResourceID] = append(byResource[req.ResourceID], requester{item.ID, req.Exclusive})
			resourceType[req.ResourceID] = req.Type
		}
	}

	var conflicts []*models.ResourceConflict
	for resourceID, requesters := range byResource {
		var exclusive, shared []string
		for _, r := range requesters {
			if r.exclusive {
				exclusive = append(exclusive, r.itemID)
			} else {
				shared = append(shared, r.itemID)
			}
		}

		switch {
		case len(exclusive) >= 2:
			conflicts = append(conflicts, &models.ResourceConflict{
				ResourceID:       resourceID,
				Type:             resourceType[resourceID],
				ConflictingItems: append(append([]string{}, exclusive...), shared...),
				ConflictType:     "exclusive_access",
				Severity:         "high",
			})
		case len(exclusive) == 1 && len(shared) >= 1:
			conflicts = append(conflicts, &models.ResourceConflict{
				ResourceID:       resourceID,
				Type:             resourceType[resourceID],
				ConflictingItems: append(append([]string{}, exclusive...), shared...),
				ConflictType:     "exclusive_vs_shared",
				Severity:         "medium",
			})
		}
	}
	return conflicts
}

// estimateDuration computes the critical-path duration via an
// earliest-start recurrence. Assumes unbounded concurrency, so the real
// run can only take longer.
func estimateDuration(g *graph.DependencyGraph, items []*models.WorkItem) time.Duration {
	finish := make(map[string]time.Duration, len(items))

	var compute func(item *models.WorkItem) time.Duration
	compute = func(item *models.WorkItem) time.Duration {
		if f, ok := finish[item.ID]; ok {
			return f
		}
		var start time.Duration
		for _, depID := range g.GetDependencies(item.ID) {
			if dep := g.GetItem(depID); dep != nil {
				if f := compute(dep); f > start {
					start = f
				}
			}
		}
		f := start + item.EstimatedDuration
		finish[item.ID] = f
		return f
	}

	var total time.Duration
	for _, item := range items {
		if f := compute(item); f > total {
			total = f
		}
	}
	return total
}

// parallelPairs lists item pairs with no transitive dependency in either
// direction and no mutually exclusive resource requirement.
func parallelPairs(g *graph.DependencyGraph, items []*models.WorkItem) [][2]string {
	var pairs [][2]string
	for i := 0; i < len(items); i++ {
		for j := i + 1; j < len(items); j++ {
			a, b := items[i], items[j]
			if g.TransitivelyDependsOn(a.ID, b.ID) || g.TransitivelyDependsOn(b.ID, a.ID) {
				continue
			}
			if sharesExclusiveResource(a, b) {
				continue
			}
			pairs = append(pairs, [2]string{a.ID, b.ID})
		}
	}
	return pairs
}

// sharesExclusiveResource returns true if the items contend for a resource
// at least one of them needs exclusively.
func sharesExclusiveResource(a, b *models.WorkItem) bool {
	exclusiveA := make(map[string]bool)
	sharedA := make(map[string]bool)
	for _, req := range a.Requires {
		if req.Exclusive {
			exclusiveA[req.ResourceID] = true
		} else {
			sharedA[req.ResourceID] = true
		}
	}
	for _, req := range b.Requires {
		if req.Exclusive && (exclusiveA[req.ResourceID] || sharedA[req.ResourceID]) {
			return true
		}
		if !req.Exclusive && exclusiveA[req.ResourceID] {
			return true
		}
	}
	return false
}
