package domain

import "time"

type TaskStatus string

const (
	StatusPending    TaskStatus = "pending"
	StatusUploading  TaskStatus = "uploading"
	StatusProcessing TaskStatus = "processing"
	StatusCompleted  TaskStatus = "completed"
	StatusError      TaskStatus = "error"
)

// Terminal reports whether the status ends the current ingestion attempt.
// An error task can still be retried, which mints a fresh attempt.
func (s TaskStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

type ProgressPhase string

const (
	PhaseTransfer   ProgressPhase = "transfer"
	PhaseProcessing ProgressPhase = "processing"
)

// TransferShare is the slice of the overall 0-100 scale reserved for the
// byte-transfer phase. Transfer is fast relative to server-side processing,
// so it maps onto the first few percent only.
const TransferShare = 5

// Progress keeps the two ingestion phases apart: byte transfer reports
// push-style percentages, server processing reports pull-style ones, and the
// two scales are unrelated. The flattened number exists only for display.
type Progress struct {
	Phase   ProgressPhase `json:"phase"`
	Percent int           `json:"percent"`
}

// Overall projects phase progress onto a single 0-100 scale.
func (p Progress) Overall() int {
	switch p.Phase {
	case PhaseTransfer:
		return p.Percent * TransferShare / 100
	case PhaseProcessing:
		return TransferShare + p.Percent*(100-TransferShare)/100
	default:
		return 0
	}
}

// UploadTask is one file's end-to-end ingestion attempt. The binary payload
// is never carried here; the coordinator keeps it separately so tasks can be
// journaled and snapshotted without holding file contents.
type UploadTask struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	SizeBytes    int64      `json:"size_bytes"`
	MimeType     string     `json:"mime_type"`
	PageCount    int        `json:"page_count,omitempty"`
	DocumentID   string     `json:"document_id,omitempty"`
	Status       TaskStatus `json:"status"`
	Progress     Progress   `json:"progress"`
	Message      string     `json:"message,omitempty"`
	CurrentPage  int        `json:"current_page,omitempty"`
	TotalPages   int        `json:"total_pages,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	CompletedAt  time.Time  `json:"completed_at,omitzero"`
}

type TaskEventKind string

const (
	EventTaskCreated    TaskEventKind = "created"
	EventTaskUploading  TaskEventKind = "uploading"
	EventTaskProcessing TaskEventKind = "processing"
	EventTaskCompleted  TaskEventKind = "completed"
	EventTaskFailed     TaskEventKind = "failed"
	EventTaskRemoved    TaskEventKind = "removed"
)

// TaskEvent is a lifecycle notification published for sibling services that
// want to react to document state changes without polling the backend.
type TaskEvent struct {
	Kind       TaskEventKind `json:"kind"`
	TaskID     string        `json:"task_id"`
	DocumentID string        `json:"document_id,omitempty"`
	Name       string        `json:"name"`
	Error      string        `json:"error,omitempty"`
	At         time.Time     `json:"at"`
}
