package graph

import (
	"sort"
	"testing"

	"github.com/weftworks/weft/pkg/models"
)

// item builds a pending work item with critical requires edges to deps.
func item(id string, deps ...string) *models.WorkItem {
	w := &models.WorkItem{ID: id, Name: "Item " + id, Status: models.ItemStatusPending, Priority: 5}
	for _, dep := range deps {
		w.Dependencies = append(w.Dependencies, models.DependencyEdge{
			SourceID: id,
			TargetID: dep,
			Kind:     models.DependencyRequires,
			Critical: true,
		})
	}
	return w
}

func TestNewGraph(t *testing.T) {
	g := New()
	if g == nil {
		t.Fatal("expected non-nil graph")
	}
	if g.Size() != 0 {
		t.Errorf("expected empty graph, got size %d", g.Size())
	}
}

func TestGraphBuildSimple(t *testing.T) {
	g := New()
	items := []*models.WorkItem{item("ws-1"), item("ws-2"), item("ws-3")}

	if err := g.Build(items); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if g.Size() != 3 {
		t.Errorf("expected size 3, got %d", g.Size())
	}
}

func TestGraphBuildWithDependencies(t *testing.T) {
	g := New()
	items := []*models.WorkItem{
		item("ws-1"),
		item("ws-2", "ws-1"),
		item("ws-3", "ws-1", "ws-2"),
	}

	if err := g.Build(items); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	deps := g.GetDependencies("ws-3")
	if len(deps) != 2 {
		t.Errorf("expected 2 dependencies for ws-3, got %d", len(deps))
	}

	dependents := g.GetDependents("ws-1")
	if len(dependents) != 2 {
		t.Errorf("expected 2 dependents of ws-1, got %d", len(dependents))
	}
}

func TestGraphBuildUnknownDependency(t *testing.T) {
	g := New()
	items := []*models.WorkItem{item("ws-1", "missing")}

	if err := g.Build(items); err == nil {
		t.Fatal("expected error for unknown dependency")
	}
}

func TestGraphNonCriticalEdgesIgnored(t *testing.T) {
	g := New()
	a := item("A")
	b := item("B")
	b.Dependencies = []models.DependencyEdge{
		{SourceID: "B", TargetID: "A", Kind: models.DependencyRequires, Critical: false},
		{SourceID: "B", TargetID: "A", Kind: models.DependencySharesResource, Critical: true},
	}

	if err := g.Build([]*models.WorkItem{a, b}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if deps := g.GetDependencies("B"); len(deps) != 0 {
		t.Errorf("expected non-critical edges to be ignored, got %v", deps)
	}

	// Both items should be ready immediately.
	ready := g.GetReady()
	if len(ready) != 2 {
		t.Errorf("expected both items ready, got %v", ready)
	}
}

func TestGraphCycleDetectionSimple(t *testing.T) {
	// A -> B -> A (direct cycle)
	g := New()
	items := []*models.WorkItem{item("A", "B"), item("B", "A")}

	err := g.Build(items)
	cycleErr, ok := err.(*CycleError)
	if !ok {
		t.Fatalf("expected CycleError, got %v", err)
	}
	sort.Strings(cycleErr.Members)
	if len(cycleErr.Members) != 2 || cycleErr.Members[0] != "A" || cycleErr.Members[1] != "B" {
		t.Errorf("expected cycle members [A B], got %v", cycleErr.Members)
	}
}

func TestGraphCycleDetectionThreeNodes(t *testing.T) {
	// A -> B -> C -> A (three node cycle)
	g := New()
	items := []*models.WorkItem{item("A", "B"), item("B", "C"), item("C", "A")}

	err := g.Build(items)
	cycleErr, ok := err.(*CycleError)
	if !ok {
		t.Fatalf("expected CycleError for A->B->C->A cycle, got %v", err)
	}
	members := append([]string(nil), cycleErr.Members...)
	sort.Strings(members)
	if len(members) != 3 || members[0] != "A" || members[1] != "B" || members[2] != "C" {
		t.Errorf("expected cycle members [A B C], got %v", cycleErr.Members)
	}
}

func TestGraphCycleDetectionSelfLoop(t *testing.T) {
	g := New()
	items := []*models.WorkItem{item("A", "A")}

	err := g.Build(items)
	cycleErr, ok := err.(*CycleError)
	if !ok {
		t.Fatalf("expected CycleError for self-loop, got %v", err)
	}
	if len(cycleErr.Members) != 1 || cycleErr.Members[0] != "A" {
		t.Errorf("expected cycle members [A], got %v", cycleErr.Members)
	}
}

func TestGraphCycleDoesNotIncludeOutsiders(t *testing.T) {
	// D hangs off the B->C->B cycle but is not a member.
	g := New()
	items := []*models.WorkItem{
		item("A"),
		item("B", "C"),
		item("C", "B"),
		item("D", "B"),
	}

	err := g.Build(items)
	cycleErr, ok := err.(*CycleError)
	if !ok {
		t.Fatalf("expected CycleError, got %v", err)
	}
	for _, id := range cycleErr.Members {
		if id == "A" || id == "D" {
			t.Errorf("cycle members should not include %s: %v", id, cycleErr.Members)
		}
	}
}

func TestGraphNoCycle(t *testing.T) {
	g := New()
	items := []*models.WorkItem{item("A"), item("B", "A"), item("C", "B")}

	if err := g.Build(items); err != nil {
		t.Fatalf("unexpected error for acyclic graph: %v", err)
	}

	if cycle := g.FindCycle(); cycle != nil {
		t.Errorf("expected no cycle in linear graph, got %v", cycle)
	}
}

func TestGraphGetReady(t *testing.T) {
	// A -> B -> C
	g := New()
	items := []*models.WorkItem{item("A"), item("B", "A"), item("C", "B")}

	if err := g.Build(items); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ready := g.GetReady()
	if len(ready) != 1 || ready[0] != "A" {
		t.Errorf("expected only A to be ready, got %v", ready)
	}
}

func TestGraphGetReadyAfterMarkComplete(t *testing.T) {
	g := New()
	items := []*models.WorkItem{item("A"), item("B", "A"), item("C", "B")}

	if err := g.Build(items); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	g.MarkComplete("A")

	ready := g.GetReady()
	if len(ready) != 1 || ready[0] != "B" {
		t.Errorf("expected only B to be ready after A complete, got %v", ready)
	}
}

func TestGraphGetReadyMultiple(t *testing.T) {
	g := New()
	items := []*models.WorkItem{item("A"), item("B"), item("C", "A", "B")}

	if err := g.Build(items); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ready := g.GetReady()
	if len(ready) != 2 {
		t.Fatalf("expected 2 ready items, got %d", len(ready))
	}

	sort.Strings(ready)
	if ready[0] != "A" || ready[1] != "B" {
		t.Errorf("expected A and B to be ready, got %v", ready)
	}
}

func TestGraphGetReadySkipsTerminalItems(t *testing.T) {
	g := New()
	a := item("A")
	a.Status = models.ItemStatusCompleted
	b := item("B")
	c := item("C")
	c.Status = models.ItemStatusFailed

	if err := g.Build([]*models.WorkItem{a, b, c}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ready := g.GetReady()
	if len(ready) != 1 || ready[0] != "B" {
		t.Errorf("expected only B to be ready, got %v", ready)
	}
}

func TestGraphGetReadySkipsBlockedItems(t *testing.T) {
	g := New()
	a := item("A")
	a.Status = models.ItemStatusBlocked
	b := item("B")

	if err := g.Build([]*models.WorkItem{a, b}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ready := g.GetReady()
	if len(ready) != 1 || ready[0] != "B" {
		t.Errorf("expected only B to be ready, got %v", ready)
	}
}

func TestGraphGetReadyDepCompletedByStatus(t *testing.T) {
	// Dependency satisfied via item status rather than MarkComplete.
	g := New()
	a := item("A")
	a.Status = models.ItemStatusCompleted
	b := item("B", "A")

	if err := g.Build([]*models.WorkItem{a, b}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ready := g.GetReady()
	if len(ready) != 1 || ready[0] != "B" {
		t.Errorf("expected B to be ready, got %v", ready)
	}
}

func TestGraphGetItem(t *testing.T) {
	g := New()
	if err := g.Build([]*models.WorkItem{item("ws-1")}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := g.GetItem("ws-1")
	if got == nil {
		t.Fatal("expected item, got nil")
	}
	if got.ID != "ws-1" {
		t.Errorf("expected ws-1, got %s", got.ID)
	}

	if got := g.GetItem("non-existent"); got != nil {
		t.Errorf("expected nil for non-existent item, got %v", got)
	}
}

func TestGraphTransitivelyDependsOn(t *testing.T) {
	// A <- B <- C, D independent
	g := New()
	items := []*models.WorkItem{item("A"), item("B", "A"), item("C", "B"), item("D")}

	if err := g.Build(items); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !g.TransitivelyDependsOn("C", "A") {
		t.Error("C should transitively depend on A")
	}
	if g.TransitivelyDependsOn("A", "C") {
		t.Error("A should not depend on C")
	}
	if g.TransitivelyDependsOn("D", "A") || g.TransitivelyDependsOn("A", "D") {
		t.Error("D should be independent of A")
	}
}

func TestGraphEmptyGraph(t *testing.T) {
	g := New()

	if err := g.Build(nil); err != nil {
		t.Fatalf("unexpected error building empty graph: %v", err)
	}

	if cycle := g.FindCycle(); cycle != nil {
		t.Errorf("empty graph should not have cycle, got %v", cycle)
	}

	if ready := g.GetReady(); len(ready) != 0 {
		t.Errorf("expected no ready items, got %v", ready)
	}
}
