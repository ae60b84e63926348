// Package graph provides a dependency graph for work item scheduling.
package graph

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/weftworks/weft/pkg/models"
)

// CycleError indicates a circular dependency in the work item graph.
// Members holds the IDs of every item on the detected cycle.
type CycleError struct {
	Members []string
}

// Error implements the error interface.
func (e *CycleError) Error() string {
	return fmt.Sprintf("circular dependency detected: %s", strings.Join(e.Members, " -> "))
}

// DependencyGraph represents a directed acyclic graph of work item
// dependencies. Items are nodes, and edges represent "blocked by"
// relationships. Only critical "requires" edges participate.
type DependencyGraph struct {
	mu sync.RWMutex
	// nodes maps item ID to the item itself.
	nodes map[string]*models.WorkItem
	// edges maps item ID to IDs of items it depends on (is blocked by).
	edges map[string][]string
	// completed tracks which items have been marked complete.
	completed map[string]bool
	// debugLog is an optional logging function.
	debugLog func(format string, args ...interface{})
}

// New creates a new empty dependency graph.
func New() *DependencyGraph {
	return &DependencyGraph{
		nodes:     make(map[string]*models.WorkItem),
		edges:     make(map[string][]string),
		completed: make(map[string]bool),
		debugLog:  func(format string, args ...interface{}) {}, // no-op by default
	}
}

// SetDebugLog sets the debug logging function.
func (g *DependencyGraph) SetDebugLog(fn func(format string, args ...interface{})) {
	if fn != nil {
		g.debugLog = fn
	}
}

// Build constructs the dependency graph from a slice of work items.
// Returns an error if a cycle is detected or dependencies reference
// unknown items.
func (g *DependencyGraph) Build(items []*models.WorkItem) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.debugLog("[graph.Build] building graph from %d items", len(items))

	// First pass: register all items as nodes.
	for _, item := range items {
		g.nodes[item.ID] = item
		g.edges[item.ID] = nil
	}

	// Second pass: build edges from critical requires dependencies.
	for _, item := range items {
		for _, depID := range item.CriticalDependencies() {
			if _, exists := g.nodes[depID]; !exists {
				return fmt.Errorf("item %s depends on unknown item %s", item.ID, depID)
			}
			g.edges[item.ID] = append(g.edges[item.ID], depID)
		}
	}

	g.debugLog("[graph.Build] final edges map: %v", g.edges)

	// Check for cycles (use internal method since we hold the lock).
	if cycle := g.findCycleLocked(); cycle != nil {
		return &CycleError{Members: cycle}
	}

	g.debugLog("[graph.Build] graph built successfully with %d nodes", len(g.nodes))
	return nil
}

// FindCycle returns the IDs of one dependency cycle, or nil if the graph
// is acyclic.
func (g *DependencyGraph) FindCycle() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.findCycleLocked()
}

// findCycleLocked is the internal implementation that assumes the lock is held.
// Uses depth-first search with coloring; the recursion stack reconstructs
// the full cycle when a back edge is found.
func (g *DependencyGraph) findCycleLocked() []string {
	// Color states: 0 = white (unvisited), 1 = gray (in progress), 2 = black (done).
	colors := make(map[string]int, len(g.nodes))
	var stack []string
	var cycle []string

	var visit func(id string) bool
	visit = func(id string) bool {
		colors[id] = 1
		stack = append(stack, id)

		for _, depID := range g.edges[id] {
			switch colors[depID] {
			case 1:
				// Back edge. Everything from depID's stack position
				// onward is on the cycle.
				for i, sid := range stack {
					if sid == depID {
						cycle = append(cycle, stack[i:]...)
						break
					}
				}
				return true
			case 0:
				if visit(depID) {
					return true
				}
			}
		}

		colors[id] = 2
		stack = stack[:len(stack)-1]
		return false
	}

	// Iterate in sorted order so repeated calls report the same cycle.
	ids := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		if colors[id] == 0 {
			stack = stack[:0]
			if visit(id) {
				return cycle
			}
		}
	}
	return nil
}

// GetReady returns item IDs whose critical dependencies are all completed
// and that are not yet completed themselves. These items can run in parallel.
func (g *DependencyGraph) GetReady() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var ready []string
	for id, item := range g.nodes {
		if g.completed[id] {
			continue
		}
		if item.Status.Terminal() || item.Status == models.ItemStatusBlocked {
			continue
		}

		allDepsComplete := true
		for _, depID := range g.edges[id] {
			if g.completed[depID] {
				continue
			}
			// Fall back to the item status when the completed map
			// has not been updated yet.
			if dep, exists := g.nodes[depID]; !exists || dep.Status != models.ItemStatusCompleted {
				allDepsComplete = false
				break
			}
		}

		if allDepsComplete {
			ready = append(ready, id)
		}
	}

	g.debugLog("[graph.GetReady] returning %d ready items: %v", len(ready), ready)
	return ready
}

// MarkComplete marks an item as completed in the graph.
// This affects subsequent calls to GetReady.
func (g *DependencyGraph) MarkComplete(itemID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.completed[itemID] = true
}

// GetItem returns the item for a given ID, or nil if not found.
func (g *DependencyGraph) GetItem(itemID string) *models.WorkItem {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.nodes[itemID]
}

// Size returns the number of items in the graph.
func (g *DependencyGraph) Size() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// GetDependencies returns the IDs of items that the given item depends on.
func (g *DependencyGraph) GetDependencies(itemID string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.edges[itemID]
}

// GetDependents returns the IDs of items that depend on the given item.
func (g *DependencyGraph) GetDependents(itemID string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var dependents []string
	for id, deps := range g.edges {
		for _, depID := range deps {
			if depID == itemID {
				dependents = append(dependents, id)
				break
			}
		}
	}
	return dependents
}

// TransitivelyDependsOn returns true if item a depends on item b through
// any chain of critical dependencies.
func (g *DependencyGraph) TransitivelyDependsOn(a, b string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()

	seen := make(map[string]bool)
	var walk func(id string) bool
	walk = func(id string) bool {
		if seen[id] {
			return false
		}
		seen[id] = true
		for _, depID := range g.edges[id] {
			if depID == b || walk(depID) {
				return true
			}
		}
		return false
	}
	return walk(a)
}

// GetCompletedIDs returns the IDs of all items marked as completed.
func (g *DependencyGraph) GetCompletedIDs() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var ids []string
	for id, done := range g.completed {
		if done {
			ids = append(ids, id)
		}
	}
	return ids
}
