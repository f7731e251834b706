package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bidassist/docingest/internal/core/domain"
	"github.com/bidassist/docingest/internal/core/ports"
	"github.com/bidassist/docingest/internal/observability/metrics"
)

type CoordinatorConfig struct {
	Service string
	Limits  FileLimits
	// MaxFiles bounds the active (non-removed) task collection.
	MaxFiles int
	// MaxConcurrentUploads bounds tasks simultaneously uploading or
	// processing; the rest wait in pending, admitted FIFO.
	MaxConcurrentUploads int
	// CompletionGrace keeps a completed task visible before it is removed.
	CompletionGrace time.Duration
}

func (c CoordinatorConfig) normalize() CoordinatorConfig {
	if c.Service == "" {
		c.Service = "docingest"
	}
	if c.MaxFiles <= 0 {
		c.MaxFiles = 10
	}
	if c.MaxConcurrentUploads <= 0 {
		c.MaxConcurrentUploads = 3
	}
	if c.CompletionGrace <= 0 {
		c.CompletionGrace = 3 * time.Second
	}
	return c
}

type CoordinatorOptions struct {
	Inspector ports.FileInspector
	Journal   ports.TaskJournal
	Events    ports.EventSink
	Logger    *slog.Logger
	Metrics   *metrics.IngestMetrics
	// OnChange receives a snapshot of the whole collection after every
	// mutation. Snapshots are copies; observers never see live state.
	OnChange func([]domain.UploadTask)
}

// trackedTask pairs the published task state with coordinator-private
// bookkeeping. The binary payload lives here, never on the domain task, and
// is retained until the task completes so an errored task can resubmit.
type trackedTask struct {
	task       domain.UploadTask
	source     ports.FileSource
	cancel     context.CancelFunc
	poll       *PollHandle
	grace      *time.Timer
	enqueuedAt time.Time
}

// UploadCoordinator owns the task collection and orchestrates validation,
// transfer, polling and cleanup across a bounded set of concurrent tasks.
// All mutations are serialized through one mutex; per-task work runs on the
// task's own goroutine, so one task's failure never touches another.
type UploadCoordinator struct {
	cfg       CoordinatorConfig
	channel   ports.TransferChannel
	poller    *ProgressPoller
	inspector ports.FileInspector
	journal   ports.TaskJournal
	events    ports.EventSink
	log       *slog.Logger
	metrics   *metrics.IngestMetrics
	onChange  func([]domain.UploadTask)

	mu     sync.Mutex
	cond   *sync.Cond
	tasks  map[string]*trackedTask
	order  []string
	active int
}

func NewUploadCoordinator(cfg CoordinatorConfig, channel ports.TransferChannel, poller *ProgressPoller, opts CoordinatorOptions) *UploadCoordinator {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	c := &UploadCoordinator{
		cfg:       cfg.normalize(),
		channel:   channel,
		poller:    poller,
		inspector: opts.Inspector,
		journal:   opts.Journal,
		events:    opts.Events,
		log:       log,
		metrics:   opts.Metrics,
		onChange:  opts.OnChange,
		tasks:     make(map[string]*trackedTask),
	}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// AddFiles validates each candidate, creates pending tasks for the valid
// ones and starts transfers as concurrency slots allow. Invalid candidates
// and candidates beyond MaxFiles are reported back without a task.
func (c *UploadCoordinator) AddFiles(ctx context.Context, files []ports.FileCandidate) ([]domain.UploadTask, []ports.RejectedFile) {
	now := time.Now().UTC()

	var rejected []ports.RejectedFile
	type entry struct {
		file  ports.FileCandidate
		pages int
	}
	valid := make([]entry, 0, len(files))
	for _, f := range files {
		if err := ValidateFile(f.Name, f.SizeBytes, f.MimeType, c.cfg.Limits); err != nil {
			c.metrics.FileRejected(c.cfg.Service, "invalid")
			rejected = append(rejected, ports.RejectedFile{Name: f.Name, Err: err})
			continue
		}
		e := entry{file: f}
		if c.inspector != nil {
			pages, err := c.inspector.PageCount(ctx, f)
			if err != nil {
				c.log.Debug("file inspection failed", "file", f.Name, "error", err)
			} else {
				e.pages = pages
			}
		}
		valid = append(valid, e)
	}

	var accepted []domain.UploadTask
	c.mu.Lock()
	for _, e := range valid {
		if len(c.tasks) >= c.cfg.MaxFiles {
			c.metrics.FileRejected(c.cfg.Service, "too_many_files")
			rejected = append(rejected, ports.RejectedFile{
				Name: e.file.Name,
				Err: domain.WrapError(domain.ErrValidation, "add file",
					fmt.Errorf("%w: limit is %d", domain.ErrTooManyFiles, c.cfg.MaxFiles)),
			})
			continue
		}
		task := domain.UploadTask{
			ID:        uuid.NewString(),
			Name:      e.file.Name,
			SizeBytes: e.file.SizeBytes,
			MimeType:  e.file.MimeType,
			PageCount: e.pages,
			Status:    domain.StatusPending,
			Progress:  domain.Progress{Phase: domain.PhaseTransfer, Percent: 0},
			CreatedAt: now,
		}
		c.tasks[task.ID] = &trackedTask{task: task, source: e.file.Source, enqueuedAt: now}
		c.order = append(c.order, task.ID)
		accepted = append(accepted, task)
	}
	c.admitLocked()
	snapshot := c.snapshotLocked()
	c.cond.Broadcast()
	c.mu.Unlock()

	for _, task := range accepted {
		c.journalCreated(task)
		c.publishTask(task, domain.EventTaskCreated)
	}
	c.emit(snapshot)
	return accepted, rejected
}

// Retry returns an errored task to pending and re-enters it at the back of
// the admission queue. Retry is full resubmission: the previous document id
// is gone, so the backend sees a brand new upload.
func (c *UploadCoordinator) Retry(ctx context.Context, taskID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	tt, ok := c.tasks[taskID]
	if !ok {
		c.mu.Unlock()
		return domain.WrapError(domain.ErrTaskNotFound, "retry task", fmt.Errorf("id=%s", taskID))
	}
	if err := resetForRetry(&tt.task); err != nil {
		c.mu.Unlock()
		return err
	}
	tt.enqueuedAt = time.Now().UTC()
	if i := slices.Index(c.order, taskID); i >= 0 {
		c.order = append(slices.Delete(c.order, i, i+1), taskID)
	}
	c.admitLocked()
	snapshot := c.snapshotLocked()
	c.cond.Broadcast()
	c.mu.Unlock()

	c.emit(snapshot)
	return nil
}

// Remove deletes a task in any state, aborting an in-flight transfer and
// stopping its poller first. Removing an unknown task is a no-op.
func (c *UploadCoordinator) Remove(taskID string) {
	c.mu.Lock()
	tt, ok := c.tasks[taskID]
	if !ok {
		c.mu.Unlock()
		return
	}
	delete(c.tasks, taskID)
	if i := slices.Index(c.order, taskID); i >= 0 {
		c.order = slices.Delete(c.order, i, i+1)
	}
	if tt.task.Status == domain.StatusUploading || tt.task.Status == domain.StatusProcessing {
		c.active--
		c.metrics.TaskFinished(c.cfg.Service, "removed")
	}
	c.admitLocked()
	task := tt.task
	snapshot := c.snapshotLocked()
	c.cond.Broadcast()
	c.mu.Unlock()

	if tt.grace != nil {
		tt.grace.Stop()
	}
	if tt.cancel != nil {
		tt.cancel()
	}
	if tt.poll != nil {
		tt.poll.Stop()
	}
	c.publishTask(task, domain.EventTaskRemoved)
	c.emit(snapshot)
}

// Cancel is a user-initiated mid-flight abort; it is modeled as removal.
func (c *UploadCoordinator) Cancel(taskID string) {
	c.Remove(taskID)
}

// Snapshot returns copies of all active tasks in insertion order.
func (c *UploadCoordinator) Snapshot() []domain.UploadTask {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Wait blocks until no task is pending, uploading or processing, or ctx
// ends. Terminal tasks awaiting grace-period removal do not count as busy.
func (c *UploadCoordinator) Wait(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		c.mu.Lock()
		c.cond.Broadcast()
		c.mu.Unlock()
	})
	defer stop()

	c.mu.Lock()
	defer c.mu.Unlock()
	for c.busyLocked() {
		if err := ctx.Err(); err != nil {
			return err
		}
		c.cond.Wait()
	}
	return ctx.Err()
}

// Close aborts all remaining tasks and releases their timers.
func (c *UploadCoordinator) Close() {
	c.mu.Lock()
	ids := slices.Clone(c.order)
	c.mu.Unlock()
	for _, id := range ids {
		c.Remove(id)
	}
}

func (c *UploadCoordinator) busyLocked() bool {
	for _, tt := range c.tasks {
		if !tt.task.Status.Terminal() {
			return true
		}
	}
	return false
}

func (c *UploadCoordinator) snapshotLocked() []domain.UploadTask {
	out := make([]domain.UploadTask, 0, len(c.order))
	for _, id := range c.order {
		if tt, ok := c.tasks[id]; ok {
			out = append(out, tt.task)
		}
	}
	return out
}

// admitLocked promotes pending tasks FIFO while concurrency slots are free.
// Called after every event that can free a slot or add a task.
func (c *UploadCoordinator) admitLocked() {
	for c.active < c.cfg.MaxConcurrentUploads {
		tt := c.nextPendingLocked()
		if tt == nil {
			return
		}
		c.startLocked(tt)
	}
}

func (c *UploadCoordinator) nextPendingLocked() *trackedTask {
	for _, id := range c.order {
		if tt, ok := c.tasks[id]; ok && tt.task.Status == domain.StatusPending {
			return tt
		}
	}
	return nil
}

func (c *UploadCoordinator) startLocked(tt *trackedTask) {
	if err := beginTransfer(&tt.task); err != nil {
		c.log.Error("cannot start transfer", "task_id", tt.task.ID, "error", err)
		return
	}
	c.active++
	c.metrics.TaskAdmitted(c.cfg.Service, time.Since(tt.enqueuedAt))

	taskCtx, cancel := context.WithCancel(context.Background())
	tt.cancel = cancel
	file := ports.FileCandidate{
		Name:      tt.task.Name,
		SizeBytes: tt.task.SizeBytes,
		MimeType:  tt.task.MimeType,
		Source:    tt.source,
	}
	go c.runTask(taskCtx, tt.task.ID, file)
}

// runTask drives one ingestion attempt: transfer, then the polling loop.
func (c *UploadCoordinator) runTask(ctx context.Context, taskID string, file ports.FileCandidate) {
	c.publishByID(taskID, domain.EventTaskUploading)

	start := time.Now()
	documentID, err := c.channel.Transfer(ctx, file, func(percent int) {
		c.onTransferProgress(taskID, percent)
	})
	c.metrics.ObserveTransfer(c.cfg.Service, time.Since(start), err)
	if err != nil {
		if ctx.Err() != nil {
			// Removed mid-flight; the task is already gone.
			return
		}
		c.log.Warn("transfer failed", "task_id", taskID, "file", file.Name, "error", err)
		c.failTask(taskID, err.Error())
		return
	}

	if !c.markProcessing(taskID, documentID) {
		return
	}
	handle := c.poller.Start(ctx, documentID, func(status domain.ProcessingStatus) {
		c.onPollUpdate(taskID, status)
	})
	c.attachPoll(taskID, handle)
}

func (c *UploadCoordinator) onTransferProgress(taskID string, percent int) {
	c.mu.Lock()
	tt, ok := c.tasks[taskID]
	if !ok {
		c.mu.Unlock()
		return
	}
	applyTransferProgress(&tt.task, percent)
	snapshot := c.snapshotLocked()
	c.mu.Unlock()
	c.emit(snapshot)
}

func (c *UploadCoordinator) markProcessing(taskID, documentID string) bool {
	c.mu.Lock()
	tt, ok := c.tasks[taskID]
	if !ok {
		c.mu.Unlock()
		return false
	}
	if err := beginProcessing(&tt.task, documentID); err != nil {
		c.mu.Unlock()
		return false
	}
	task := tt.task
	snapshot := c.snapshotLocked()
	c.mu.Unlock()

	c.journalTransition(task)
	c.publishTask(task, domain.EventTaskProcessing)
	c.emit(snapshot)
	return true
}

func (c *UploadCoordinator) attachPoll(taskID string, handle *PollHandle) {
	c.mu.Lock()
	tt, ok := c.tasks[taskID]
	if ok {
		tt.poll = handle
	}
	c.mu.Unlock()
	// A concurrent Remove already cancelled the task context, which stops
	// the loop; nothing to do for the orphaned handle.
}

func (c *UploadCoordinator) onPollUpdate(taskID string, status domain.ProcessingStatus) {
	switch status.Stage {
	case domain.StageCompleted:
		c.completeTask(taskID, status)
	case domain.StageError:
		message := status.Message
		if message == "" {
			message = "processing failed"
		}
		c.failTask(taskID, message)
	default:
		c.progressTask(taskID, status)
	}
}

func (c *UploadCoordinator) progressTask(taskID string, status domain.ProcessingStatus) {
	c.mu.Lock()
	tt, ok := c.tasks[taskID]
	if !ok {
		c.mu.Unlock()
		return
	}
	applyProcessingUpdate(&tt.task, status)
	snapshot := c.snapshotLocked()
	c.mu.Unlock()
	c.emit(snapshot)
}

func (c *UploadCoordinator) completeTask(taskID string, status domain.ProcessingStatus) {
	now := time.Now().UTC()

	c.mu.Lock()
	tt, ok := c.tasks[taskID]
	if !ok {
		c.mu.Unlock()
		return
	}
	if err := complete(&tt.task, now); err != nil {
		c.mu.Unlock()
		return
	}
	if status.Message != "" {
		tt.task.Message = status.Message
	}
	// The attempt is over for good; the payload is no longer needed.
	tt.source = nil
	c.active--
	c.metrics.TaskFinished(c.cfg.Service, "completed")
	// Leave the success confirmation visible before the entry disappears.
	tt.grace = time.AfterFunc(c.cfg.CompletionGrace, func() {
		c.Remove(taskID)
	})
	c.admitLocked()
	task := tt.task
	snapshot := c.snapshotLocked()
	c.cond.Broadcast()
	c.mu.Unlock()

	c.journalTransition(task)
	c.publishTask(task, domain.EventTaskCompleted)
	c.emit(snapshot)
}

func (c *UploadCoordinator) failTask(taskID, message string) {
	now := time.Now().UTC()

	c.mu.Lock()
	tt, ok := c.tasks[taskID]
	if !ok {
		c.mu.Unlock()
		return
	}
	if err := fail(&tt.task, message, now); err != nil {
		c.mu.Unlock()
		return
	}
	c.active--
	c.metrics.TaskFinished(c.cfg.Service, "error")
	c.admitLocked()
	task := tt.task
	snapshot := c.snapshotLocked()
	c.cond.Broadcast()
	c.mu.Unlock()

	c.journalTransition(task)
	c.publishTask(task, domain.EventTaskFailed)
	c.emit(snapshot)
}

func (c *UploadCoordinator) emit(snapshot []domain.UploadTask) {
	if c.onChange != nil {
		c.onChange(snapshot)
	}
}

func (c *UploadCoordinator) publishByID(taskID string, kind domain.TaskEventKind) {
	if c.events == nil {
		return
	}
	c.mu.Lock()
	tt, ok := c.tasks[taskID]
	var task domain.UploadTask
	if ok {
		task = tt.task
	}
	c.mu.Unlock()
	if ok {
		c.publishTask(task, kind)
	}
}

func (c *UploadCoordinator) publishTask(task domain.UploadTask, kind domain.TaskEventKind) {
	if c.events == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	event := domain.TaskEvent{
		Kind:       kind,
		TaskID:     task.ID,
		DocumentID: task.DocumentID,
		Name:       task.Name,
		Error:      task.ErrorMessage,
		At:         time.Now().UTC(),
	}
	if err := c.events.PublishTaskEvent(ctx, event); err != nil {
		c.log.Warn("publish task event failed", "kind", kind, "task_id", task.ID, "error", err)
	}
}

func (c *UploadCoordinator) journalCreated(task domain.UploadTask) {
	if c.journal == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.journal.RecordCreated(ctx, task); err != nil {
		c.log.Warn("journal task creation failed", "task_id", task.ID, "error", err)
	}
}

func (c *UploadCoordinator) journalTransition(task domain.UploadTask) {
	if c.journal == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.journal.RecordTransition(ctx, task); err != nil {
		c.log.Warn("journal task transition failed", "task_id", task.ID, "status", task.Status, "error", err)
	}
}
