package ports

import (
	"context"
	"io"

	"github.com/bidassist/docingest/internal/core/domain"
)

// FileSource opens the binary payload of a candidate file. It must be
// reopenable: retry resubmits the whole file from the start.
type FileSource interface {
	Open(ctx context.Context) (io.ReadCloser, error)
}

// FileCandidate is a file offered to the pipeline before a task exists.
type FileCandidate struct {
	Name      string
	SizeBytes int64
	MimeType  string
	Source    FileSource
}

// TransferChannel streams one file to the backend upload endpoint.
// onProgress receives monotonically non-decreasing byte-transfer percentages
// in [0,100]; the channel's 100 means "bytes fully sent", not "processed".
// The returned documentID keys all subsequent status polling.
type TransferChannel interface {
	Transfer(ctx context.Context, file FileCandidate, onProgress func(percent int)) (documentID string, err error)
}

// StatusSource queries backend processing status for a document. A purged
// status record surfaces as domain.ErrStatusPurged.
type StatusSource interface {
	FetchStatus(ctx context.Context, documentID string) (domain.ProcessingStatus, error)
}

// FileInspector extracts cheap client-side metadata before upload.
type FileInspector interface {
	PageCount(ctx context.Context, file FileCandidate) (int, error)
}

// TaskJournal is an optional audit trail of task lifecycles.
type TaskJournal interface {
	RecordCreated(ctx context.Context, task domain.UploadTask) error
	RecordTransition(ctx context.Context, task domain.UploadTask) error
}

// EventSink publishes task lifecycle events for sibling services.
type EventSink interface {
	PublishTaskEvent(ctx context.Context, event domain.TaskEvent) error
}
