// Package exec defines the boundary between the orchestration engine and
// whatever actually performs the work.
package exec

import (
	"context"
	"time"

	"github.com/weftworks/weft/pkg/models"
)

// ReportStatus is the outcome classification of one execution.
type ReportStatus string

const (
	// ReportCompleted indicates the work finished successfully.
	ReportCompleted ReportStatus = "completed"
	// ReportFailed indicates the work failed.
	ReportFailed ReportStatus = "failed"
)

// Report is the result of executing one work item.
type Report struct {
	// Status is the outcome classification.
	Status ReportStatus
	// Duration is how long execution took.
	Duration time.Duration
	// Err carries the failure cause when Status is ReportFailed.
	Err error
}

// WorkExecutor performs the actual work for an item. The engine treats the
// executor as a black box: it passes the item and the workspace path (empty
// when no workspace was created) and consumes the report.
// Implementations must honor ctx cancellation.
type WorkExecutor interface {
	// Execute performs the work item and returns a report.
	Execute(ctx context.Context, item *models.WorkItem, workspacePath string) Report
}
