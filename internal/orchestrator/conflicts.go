package orchestrator

import (
	"fmt"
	"time"

	"github.com/weftworks/weft/pkg/models"
)

// Resolution is the outcome of arbitrating one resource conflict.
type Resolution struct {
	// SelectedID is the contender that gets to run.
	SelectedID string
	// Reasoning explains the selection for logs and warnings.
	Reasoning string
	// Strategy is the strategy that was applied.
	Strategy models.Strategy
}

// ConflictResolver arbitrates resource conflicts between work items.
// Resolution happens once, before execution; losers are blocked and never
// re-evaluated.
type ConflictResolver struct {
	strategy models.Strategy
}

// NewConflictResolver creates a resolver using the given strategy.
func NewConflictResolver(strategy models.Strategy) *ConflictResolver {
	return &ConflictResolver{strategy: strategy}
}

// Resolve selects the winning contender for a conflict.
// The conflict is marked resolved.
func (c *ConflictResolver) Resolve(conflict *models.ResourceConflict, items map[string]*models.WorkItem) Resolution {
	contenders := conflict.ConflictingItems

	var res Resolution
	switch c.strategy {
	case models.StrategyPriority:
		selected := contenders[0]
		best := priorityOf(items, selected)
		for _, id := range contenders[1:] {
			if p := priorityOf(items, id); p < best {
				selected, best = id, p
			}
		}
		res = Resolution{
			SelectedID: selected,
			Reasoning:  fmt.Sprintf("highest priority (%d) among %d contenders for %s", best, len(contenders), conflict.ResourceID),
			Strategy:   c.strategy,
		}

	case models.StrategyLIFO:
		res = Resolution{
			SelectedID: contenders[len(contenders)-1],
			Reasoning:  fmt.Sprintf("last of %d contenders for %s", len(contenders), conflict.ResourceID),
			Strategy:   c.strategy,
		}

	case models.StrategyFIFO, models.StrategyRoundRobin:
		// round_robin carries no rotation state and behaves like fifo.
		res = Resolution{
			SelectedID: contenders[0],
			Reasoning:  fmt.Sprintf("first of %d contenders for %s", len(contenders), conflict.ResourceID),
			Strategy:   c.strategy,
		}

	default:
		res = Resolution{
			SelectedID: contenders[0],
			Reasoning:  fmt.Sprintf("unknown strategy %q, defaulting to first contender", c.strategy),
			Strategy:   c.strategy,
		}
	}

	now := time.Now()
	conflict.Strategy = c.strategy
	conflict.Resolved = true
	conflict.ResolvedAt = &now

	debugLog("[conflicts.Resolve] %s: selected %s (%s)", conflict.ResourceID, res.SelectedID, res.Reasoning)
	return res
}

func priorityOf(items map[string]*models.WorkItem, id string) int {
	if item, ok := items[id]; ok {
		return item.Priority
	}
	return int(^uint(0) >> 1) // unknown items lose
}
