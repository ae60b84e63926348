package orchestrator

import (
	"testing"

	"github.com/weftworks/weft/pkg/models"
)

func TestResolveStrategies(t *testing.T) {
	items := map[string]*models.WorkItem{
		"A": {ID: "A", Priority: 5},
		"B": {ID: "B", Priority: 1},
		"C": {ID: "C", Priority: 3},
	}

	tests := []struct {
		strategy models.Strategy
		want     string
	}{
		{models.StrategyPriority, "B"},
		{models.StrategyFIFO, "A"},
		{models.StrategyLIFO, "C"},
		// round_robin keeps no rotation state and picks the first contender.
		{models.StrategyRoundRobin, "A"},
	}

	for _, tt := range tests {
		t.Run(string(tt.strategy), func(t *testing.T) {
			conflict := &models.ResourceConflict{
				ResourceID:       "db",
				ConflictingItems: []string{"A", "B", "C"},
				ConflictType:     "exclusive_access",
			}
			res := NewConflictResolver(tt.strategy).Resolve(conflict, items)
			if res.SelectedID != tt.want {
				t.Errorf("strategy %s: selected %s, want %s", tt.strategy, res.SelectedID, tt.want)
			}
			if res.Reasoning == "" {
				t.Error("resolution must carry reasoning")
			}
			if !conflict.Resolved || conflict.ResolvedAt == nil {
				t.Error("conflict must be marked resolved")
			}
			if conflict.Strategy != tt.strategy {
				t.Errorf("conflict strategy %s, want %s", conflict.Strategy, tt.strategy)
			}
		})
	}
}

func TestResolveUnknownStrategyFallsBack(t *testing.T) {
	items := map[string]*models.WorkItem{"A": {ID: "A"}, "B": {ID: "B"}}
	conflict := &models.ResourceConflict{
		ResourceID:       "db",
		ConflictingItems: []string{"A", "B"},
	}
	res := NewConflictResolver("bogus").Resolve(conflict, items)
	if res.SelectedID != "A" {
		t.Errorf("unknown strategy should pick the first contender, got %s", res.SelectedID)
	}
}
