package usecase

import (
	"fmt"
	"time"

	"github.com/bidassist/docingest/internal/core/domain"
)

// allowedTransitions is the per-task lifecycle. Terminal states accept no
// transition except error -> pending, which models an explicit retry.
var allowedTransitions = map[domain.TaskStatus][]domain.TaskStatus{
	domain.StatusPending:    {domain.StatusUploading},
	domain.StatusUploading:  {domain.StatusProcessing, domain.StatusError},
	domain.StatusProcessing: {domain.StatusCompleted, domain.StatusError},
	domain.StatusError:      {domain.StatusPending},
	domain.StatusCompleted:  {},
}

func canTransition(from, to domain.TaskStatus) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func transition(t *domain.UploadTask, to domain.TaskStatus) error {
	if !canTransition(t.Status, to) {
		return domain.WrapError(domain.ErrInvalidState, "transition task",
			fmt.Errorf("%s -> %s", t.Status, to))
	}
	t.Status = to
	return nil
}

// beginTransfer moves a validated pending task into uploading.
func beginTransfer(t *domain.UploadTask) error {
	if err := transition(t, domain.StatusUploading); err != nil {
		return err
	}
	t.Progress = domain.Progress{Phase: domain.PhaseTransfer, Percent: 0}
	return nil
}

// applyTransferProgress records a byte-transfer callback. Progress never
// decreases while the task is uploading; anything else is ignored.
func applyTransferProgress(t *domain.UploadTask, percent int) {
	if t.Status != domain.StatusUploading {
		return
	}
	percent = clampPercent(percent)
	if t.Progress.Phase == domain.PhaseTransfer && percent < t.Progress.Percent {
		return
	}
	t.Progress = domain.Progress{Phase: domain.PhaseTransfer, Percent: percent}
}

// beginProcessing crosses the uploading -> processing boundary. This is the
// only place the backend document id is ever set.
func beginProcessing(t *domain.UploadTask, documentID string) error {
	if err := transition(t, domain.StatusProcessing); err != nil {
		return err
	}
	t.DocumentID = documentID
	t.Progress = domain.Progress{Phase: domain.PhaseProcessing, Percent: 0}
	return nil
}

// applyProcessingUpdate records a non-terminal poll response.
func applyProcessingUpdate(t *domain.UploadTask, status domain.ProcessingStatus) {
	if t.Status != domain.StatusProcessing {
		return
	}
	percent := clampPercent(status.Progress)
	if percent < t.Progress.Percent {
		percent = t.Progress.Percent
	}
	t.Progress = domain.Progress{Phase: domain.PhaseProcessing, Percent: percent}
	if status.Message != "" {
		t.Message = status.Message
	}
	if status.CurrentPage > 0 {
		t.CurrentPage = status.CurrentPage
	}
	if status.TotalPages > 0 {
		t.TotalPages = status.TotalPages
	}
}

func complete(t *domain.UploadTask, now time.Time) error {
	if err := transition(t, domain.StatusCompleted); err != nil {
		return err
	}
	t.Progress = domain.Progress{Phase: domain.PhaseProcessing, Percent: 100}
	t.CompletedAt = now
	return nil
}

func fail(t *domain.UploadTask, message string, now time.Time) error {
	if err := transition(t, domain.StatusError); err != nil {
		return err
	}
	t.ErrorMessage = message
	t.CompletedAt = now
	return nil
}

// resetForRetry returns an errored task to pending. The previous attempt's
// document id is discarded, so retry always resubmits the whole file.
func resetForRetry(t *domain.UploadTask) error {
	if t.Status != domain.StatusError {
		return domain.WrapError(domain.ErrInvalidState, "retry task",
			fmt.Errorf("status is %s, want %s", t.Status, domain.StatusError))
	}
	t.Status = domain.StatusPending
	t.Progress = domain.Progress{Phase: domain.PhaseTransfer, Percent: 0}
	t.DocumentID = ""
	t.ErrorMessage = ""
	t.Message = ""
	t.CurrentPage = 0
	t.TotalPages = 0
	t.CompletedAt = time.Time{}
	return nil
}

func clampPercent(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
