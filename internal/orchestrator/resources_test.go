package orchestrator

import (
	"testing"

	"github.com/weftworks/weft/pkg/models"
)

func TestAllocateExclusiveSingleHolder(t *testing.T) {
	rm := NewResourceManager(nil)
	a := needs(planItem("A", 1), "db", models.ResourceDatabase, true)
	b := needs(planItem("B", 2), "db", models.ResourceDatabase, true)
	c := needs(planItem("C", 3), "db", models.ResourceDatabase, false)

	if _, ok := rm.Allocate(a, a.Requires[0]); !ok {
		t.Fatal("first exclusive allocation should succeed")
	}
	if _, ok := rm.Allocate(b, b.Requires[0]); ok {
		t.Error("second exclusive allocation must be denied")
	}
	if _, ok := rm.Allocate(c, c.Requires[0]); ok {
		t.Error("shared allocation against an exclusive holder must be denied")
	}
	if rm.ActiveCount() != 1 {
		t.Errorf("expected 1 active allocation, got %d", rm.ActiveCount())
	}
}

func TestAllocateSharedCapacity(t *testing.T) {
	rm := NewResourceManager(map[models.ResourceType]int{models.ResourceDatabase: 2})

	items := []*models.WorkItem{
		needs(planItem("A", 1), "db", models.ResourceDatabase, false),
		needs(planItem("B", 2), "db", models.ResourceDatabase, false),
		needs(planItem("C", 3), "db", models.ResourceDatabase, false),
	}

	for i, item := range items[:2] {
		if _, ok := rm.Allocate(item, item.Requires[0]); !ok {
			t.Fatalf("shared allocation %d should succeed under capacity", i)
		}
	}
	if _, ok := rm.Allocate(items[2], items[2].Requires[0]); ok {
		t.Error("allocation beyond capacity must be denied")
	}

	// Releasing one holder frees a slot for the next admission pass.
	if !rm.Release("A", "db") {
		t.Fatal("release of a held resource should report true")
	}
	if _, ok := rm.Allocate(items[2], items[2].Requires[0]); !ok {
		t.Error("allocation should succeed after a slot is freed")
	}
}

func TestExclusiveDeniedWhileShared(t *testing.T) {
	rm := NewResourceManager(nil)
	shared := needs(planItem("A", 1), "cfg", models.ResourceFile, false)
	excl := needs(planItem("B", 2), "cfg", models.ResourceFile, true)

	if _, ok := rm.Allocate(shared, shared.Requires[0]); !ok {
		t.Fatal("shared allocation should succeed")
	}
	if _, ok := rm.Allocate(excl, excl.Requires[0]); ok {
		t.Error("exclusive allocation against a shared holder must be denied")
	}
}

func TestReleaseUnheld(t *testing.T) {
	rm := NewResourceManager(nil)
	if rm.Release("A", "db") {
		t.Error("release of an unheld resource must report false")
	}

	a := needs(planItem("A", 1), "db", models.ResourceDatabase, true)
	rm.Allocate(a, a.Requires[0])
	if rm.Release("B", "db") {
		t.Error("release by a non-holder must report false")
	}
	if !rm.Holds("A", "db") {
		t.Error("holder must survive a non-holder release")
	}
}

func TestAllocateAllAtomic(t *testing.T) {
	rm := NewResourceManager(nil)

	holder := needs(planItem("H", 1), "db", models.ResourceDatabase, true)
	rm.Allocate(holder, holder.Requires[0])

	// Wants a free resource plus the held one. Nothing may stick.
	item := needs(planItem("A", 2), "api", models.ResourceAPIEndpoint, false)
	item = needs(item, "db", models.ResourceDatabase, true)

	if _, ok := rm.AllocateAll(item); ok {
		t.Fatal("partial availability must fail the whole request")
	}
	if rm.Holds("A", "api") {
		t.Error("granted-then-rolled-back resource must not remain held")
	}
	if rm.ActiveCount() != 1 {
		t.Errorf("expected only the original holder, got %d active", rm.ActiveCount())
	}
}

func TestDeniedAllocationQueuesOnce(t *testing.T) {
	rm := NewResourceManager(nil)
	holder := needs(planItem("H", 1), "db", models.ResourceDatabase, true)
	rm.Allocate(holder, holder.Requires[0])

	// The driver retries denied items on every admission pass; each
	// retry must reuse the existing waiter instead of queueing another.
	waiting := needs(planItem("A", 2), "db", models.ResourceDatabase, true)
	for i := 0; i < 1000; i++ {
		if _, ok := rm.AllocateAll(waiting); ok {
			t.Fatal("allocation against an exclusive holder must be denied")
		}
	}

	rm.mu.Lock()
	queued := len(rm.waitQueue["db"])
	rm.mu.Unlock()
	if queued != 1 {
		t.Fatalf("expected 1 queued waiter after repeated denials, got %d", queued)
	}

	// Once granted, the waiter entry is gone.
	rm.ReleaseAll("H")
	if _, ok := rm.AllocateAll(waiting); !ok {
		t.Fatal("allocation should succeed after the holder released")
	}
	rm.mu.Lock()
	queued = len(rm.waitQueue["db"])
	rm.mu.Unlock()
	if queued != 0 {
		t.Fatalf("expected empty wait queue after grant, got %d waiters", queued)
	}
}

func TestActiveAllocationsDetached(t *testing.T) {
	rm := NewResourceManager(nil)
	item := needs(planItem("A", 1), "db", models.ResourceDatabase, true)
	if _, ok := rm.AllocateAll(item); !ok {
		t.Fatal("allocation should succeed")
	}

	snapshot := rm.ActiveAllocations()
	if len(snapshot["db"]) != 1 {
		t.Fatalf("expected 1 allocation in snapshot, got %d", len(snapshot["db"]))
	}

	// Releasing mutates the live record; the snapshot must not change.
	rm.ReleaseAll("A")
	if got := snapshot["db"][0].Status; got != models.AllocationActive {
		t.Errorf("snapshot allocation status changed to %s after release", got)
	}
	if snapshot["db"][0].ReleasedAt != nil {
		t.Error("snapshot allocation picked up a release timestamp")
	}
}

func TestReleaseAll(t *testing.T) {
	rm := NewResourceManager(nil)
	item := needs(planItem("A", 1), "db", models.ResourceDatabase, true)
	item = needs(item, "api", models.ResourceAPIEndpoint, false)

	if _, ok := rm.AllocateAll(item); !ok {
		t.Fatal("allocation should succeed")
	}
	if got := rm.ReleaseAll("A"); got != 2 {
		t.Errorf("expected 2 releases, got %d", got)
	}
	if rm.ActiveCount() != 0 {
		t.Errorf("expected empty allocation table, got %d active", rm.ActiveCount())
	}
	if got := rm.ReleaseAll("A"); got != 0 {
		t.Errorf("repeat release should count 0, got %d", got)
	}
}
