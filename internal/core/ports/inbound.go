package ports

import (
	"context"

	"github.com/bidassist/docingest/internal/core/domain"
)

// Ingestor is the inbound contract for the upload pipeline. Implementations
// own the task collection; callers only ever see snapshot copies.
type Ingestor interface {
	AddFiles(ctx context.Context, files []FileCandidate) (accepted []domain.UploadTask, rejected []RejectedFile)
	Retry(ctx context.Context, taskID string) error
	Remove(taskID string)
	Cancel(taskID string)
	Snapshot() []domain.UploadTask
	Wait(ctx context.Context) error
}

// RejectedFile reports a candidate that failed validation and never became
// a task.
type RejectedFile struct {
	Name string
	Err  error
}
