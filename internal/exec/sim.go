package exec

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/weftworks/weft/pkg/models"
)

// SimExecutor is a local simulation executor. It sleeps for a scaled
// fraction of the item's estimated duration and reports success, unless the
// item is scripted to fail. Used by the CLI demo mode and tests.
type SimExecutor struct {
	mu sync.Mutex
	// Scale multiplies estimated durations. 0 means no sleep at all.
	Scale float64
	// failures maps item IDs to scripted failure messages.
	failures map[string]string
}

// NewSimExecutor creates a simulation executor with the given time scale.
func NewSimExecutor(scale float64) *SimExecutor {
	return &SimExecutor{
		Scale:    scale,
		failures: make(map[string]string),
	}
}

// FailItem scripts the given item to fail with the message.
func (s *SimExecutor) FailItem(itemID, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[itemID] = message
}

// Execute simulates the work item.
func (s *SimExecutor) Execute(ctx context.Context, item *models.WorkItem, workspacePath string) Report {
	start := time.Now()

	sleep := time.Duration(float64(item.EstimatedDuration) * s.Scale)
	if sleep > 0 {
		select {
		case <-time.After(sleep):
		case <-ctx.Done():
			return Report{
				Status:   ReportFailed,
				Duration: time.Since(start),
				Err:      fmt.Errorf("execution canceled: %w", ctx.Err()),
			}
		}
	} else if err := ctx.Err(); err != nil {
		return Report{
			Status:   ReportFailed,
			Duration: time.Since(start),
			Err:      fmt.Errorf("execution canceled: %w", err),
		}
	}

	s.mu.Lock()
	msg, scripted := s.failures[item.ID]
	s.mu.Unlock()

	if scripted {
		return Report{
			Status:   ReportFailed,
			Duration: time.Since(start),
			Err:      fmt.Errorf("%s", msg),
		}
	}

	return Report{Status: ReportCompleted, Duration: time.Since(start)}
}

// Verify SimExecutor implements WorkExecutor at compile time.
var _ WorkExecutor = (*SimExecutor)(nil)
