package orchestrator

import (
	"sort"
	"sync"
	"time"

	"github.com/weftworks/weft/pkg/models"
)

// defaultTypeCapacity bounds shared holders for resource types without an
// explicit capacity entry.
const defaultTypeCapacity = 10

// waiter is a queued allocation request for a contested resource.
type waiter struct {
	itemID    string
	priority  int
	exclusive bool
	queuedAt  time.Time
}

// ResourceManager tracks resource allocations and enforces exclusivity and
// per-type capacity limits.
type ResourceManager struct {
	mu sync.Mutex
	// allocations maps resource ID to its active allocations.
	allocations map[string][]*models.ResourceAllocation
	// capacity limits concurrent shared holders per resource type.
	capacity map[models.ResourceType]int
	// waitQueue holds requests that could not be granted, per resource.
	waitQueue map[string][]waiter
}

// NewResourceManager creates a resource manager with the given per-type
// capacity limits.
func NewResourceManager(capacity map[models.ResourceType]int) *ResourceManager {
	return &ResourceManager{
		allocations: make(map[string][]*models.ResourceAllocation),
		capacity:    capacity,
		waitQueue:   make(map[string][]waiter),
	}
}

// Allocate attempts to grant one resource to an item. Returns the
// allocation and true on success; on contention the request is queued and
// false is returned.
func (r *ResourceManager) Allocate(item *models.WorkItem, req models.ResourceRequirement) (*models.ResourceAllocation, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.allocateLocked(item, req)
}

func (r *ResourceManager) allocateLocked(item *models.WorkItem, req models.ResourceRequirement) (*models.ResourceAllocation, bool) {
	active := r.allocations[req.ResourceID]

	grantable := true
	for _, a := range active {
		if a.Exclusive || req.Exclusive {
			grantable = false
			break
		}
	}
	if grantable && !req.Exclusive {
		limit := r.typeCapacity(req.Type)
		if len(active) >= limit {
			grantable = false
		}
	}

	if !grantable {
		// One waiter per item per resource; the driver re-attempts every
		// admission pass, so repeated denials must not grow the queue.
		queued := false
		for _, w := range r.waitQueue[req.ResourceID] {
			if w.itemID == item.ID {
				queued = true
				break
			}
		}
		if !queued {
			r.waitQueue[req.ResourceID] = append(r.waitQueue[req.ResourceID], waiter{
				itemID:    item.ID,
				priority:  item.Priority,
				exclusive: req.Exclusive,
				queuedAt:  time.Now(),
			})
		}
		debugLog("[resources.Allocate] %s denied %s (exclusive=%v, %d active)", item.ID, req.ResourceID, req.Exclusive, len(active))
		return nil, false
	}

	alloc := &models.ResourceAllocation{
		ResourceID:  req.ResourceID,
		Type:        req.Type,
		Name:        req.Name,
		ItemID:      item.ID,
		AllocatedAt: time.Now(),
		Status:      models.AllocationActive,
		Exclusive:   req.Exclusive,
	}
	r.allocations[req.ResourceID] = append(active, alloc)
	r.dropWaiterLocked(req.ResourceID, item.ID)
	debugLog("[resources.Allocate] %s granted %s (exclusive=%v)", item.ID, req.ResourceID, req.Exclusive)
	return alloc, true
}

// AllocateAll grants every resource the item requires, or none of them.
// On partial failure the already-granted resources are released.
func (r *ResourceManager) AllocateAll(item *models.WorkItem) ([]*models.ResourceAllocation, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var granted []*models.ResourceAllocation
	for _, req := range item.Requires {
		alloc, ok := r.allocateLocked(item, req)
		if !ok {
			for _, a := range granted {
				r.releaseLocked(item.ID, a.ResourceID)
			}
			return nil, false
		}
		granted = append(granted, alloc)
	}
	return granted, true
}

// Release returns one resource held by an item. Returns false if the item
// does not hold the resource.
func (r *ResourceManager) Release(itemID, resourceID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.releaseLocked(itemID, resourceID)
}

func (r *ResourceManager) releaseLocked(itemID, resourceID string) bool {
	active := r.allocations[resourceID]
	for i, a := range active {
		if a.ItemID != itemID {
			continue
		}
		now := time.Now()
		a.Status = models.AllocationReleased
		a.ReleasedAt = &now

		remaining := append(active[:i:i], active[i+1:]...)
		if len(remaining) == 0 {
			delete(r.allocations, resourceID)
		} else {
			r.allocations[resourceID] = remaining
		}

		r.rescanWaitQueueLocked(resourceID)
		return true
	}
	return false
}

// ReleaseAll returns every resource held by an item. Returns the number of
// resources released.
func (r *ResourceManager) ReleaseAll(itemID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	var resourceIDs []string
	for resourceID, active := range r.allocations {
		for _, a := range active {
			if a.ItemID == itemID {
				resourceIDs = append(resourceIDs, resourceID)
				break
			}
		}
	}

	released := 0
	for _, resourceID := range resourceIDs {
		if r.releaseLocked(itemID, resourceID) {
			released++
		}
	}
	return released
}

// rescanWaitQueueLocked inspects the wait queue for a freed resource in
// priority order. It only reports the next candidate; actual re-allocation
// happens on the driver's next admission pass, which calls AllocateAll
// again for every ready item.
func (r *ResourceManager) rescanWaitQueueLocked(resourceID string) {
	queue := r.waitQueue[resourceID]
	if len(queue) == 0 {
		return
	}

	sort.SliceStable(queue, func(i, j int) bool {
		return queue[i].priority < queue[j].priority
	})
	debugLog("[resources.rescan] %s freed, next candidate %s (priority %d, %d waiting)",
		resourceID, queue[0].itemID, queue[0].priority, len(queue))
	delete(r.waitQueue, resourceID)
}

// dropWaiterLocked removes the item's queued request for a resource, if
// any. Called when a previously denied request is finally granted.
func (r *ResourceManager) dropWaiterLocked(resourceID, itemID string) {
	queue := r.waitQueue[resourceID]
	for i, w := range queue {
		if w.itemID != itemID {
			continue
		}
		remaining := append(queue[:i:i], queue[i+1:]...)
		if len(remaining) == 0 {
			delete(r.waitQueue, resourceID)
		} else {
			r.waitQueue[resourceID] = remaining
		}
		return
	}
}

// Holds returns true if the item currently holds the resource.
func (r *ResourceManager) Holds(itemID, resourceID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.allocations[resourceID] {
		if a.ItemID == itemID {
			return true
		}
	}
	return false
}

// ActiveAllocations returns a snapshot of all active allocations keyed by
// resource ID. Allocations are copied by value; release marks the live
// records in place, so callers must not see them through shared pointers.
func (r *ResourceManager) ActiveAllocations() map[string][]*models.ResourceAllocation {
	r.mu.Lock()
	defer r.mu.Unlock()

	snapshot := make(map[string][]*models.ResourceAllocation, len(r.allocations))
	for resourceID, active := range r.allocations {
		copies := make([]*models.ResourceAllocation, len(active))
		for i, a := range active {
			cp := *a
			copies[i] = &cp
		}
		snapshot[resourceID] = copies
	}
	return snapshot
}

// ActiveCount returns the total number of active allocations.
func (r *ResourceManager) ActiveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := 0
	for _, active := range r.allocations {
		count += len(active)
	}
	return count
}

func (r *ResourceManager) typeCapacity(t models.ResourceType) int {
	if limit, ok := r.capacity[t]; ok && limit > 0 {
		return limit
	}
	return defaultTypeCapacity
}
