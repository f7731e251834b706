package usecase

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/bidassist/docingest/internal/core/domain"
	"github.com/bidassist/docingest/internal/core/ports"
	"github.com/bidassist/docingest/internal/observability/metrics"
)

type PollerConfig struct {
	// Interval between status queries.
	Interval time.Duration
	// RequestTimeout bounds a single query so a slow backend cannot make
	// polls pile up. Kept below Interval.
	RequestTimeout time.Duration
}

func (c PollerConfig) normalize() PollerConfig {
	if c.Interval <= 0 {
		c.Interval = time.Second
	}
	if c.RequestTimeout <= 0 || c.RequestTimeout >= c.Interval {
		c.RequestTimeout = c.Interval * 4 / 5
	}
	return c
}

type PollerOptions struct {
	// Limiter caps aggregate query pressure across all pollers.
	Limiter *rate.Limiter
	Logger  *slog.Logger
	Metrics *metrics.IngestMetrics
	Service string
}

// ProgressPoller drives pull-style processing progress for documents whose
// bytes are already on the backend.
type ProgressPoller struct {
	source  ports.StatusSource
	cfg     PollerConfig
	limiter *rate.Limiter
	log     *slog.Logger
	metrics *metrics.IngestMetrics
	service string
}

func NewProgressPoller(source ports.StatusSource, cfg PollerConfig, opts PollerOptions) *ProgressPoller {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	service := opts.Service
	if service == "" {
		service = "docingest"
	}
	return &ProgressPoller{
		source:  source,
		cfg:     cfg.normalize(),
		limiter: opts.Limiter,
		log:     log,
		metrics: opts.Metrics,
		service: service,
	}
}

// PollHandle owns one polling loop. Stop is idempotent and returns only
// after the loop has exited, so no onUpdate call can be observed afterwards.
// It must not be called from inside the onUpdate callback.
type PollHandle struct {
	cancel context.CancelFunc
	once   sync.Once
	done   chan struct{}
}

func (h *PollHandle) Stop() {
	h.once.Do(h.cancel)
	<-h.done
}

// Start polls documentID until a terminal stage is observed or the handle is
// stopped. Terminal updates are delivered exactly once, after the loop's
// timer has already been stopped.
func (p *ProgressPoller) Start(ctx context.Context, documentID string, onUpdate func(domain.ProcessingStatus)) *PollHandle {
	pollCtx, cancel := context.WithCancel(ctx)
	handle := &PollHandle{cancel: cancel, done: make(chan struct{})}
	go p.loop(pollCtx, documentID, onUpdate, handle.done)
	return handle
}

func (p *ProgressPoller) loop(ctx context.Context, documentID string, onUpdate func(domain.ProcessingStatus), done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if p.limiter != nil {
			if err := p.limiter.Wait(ctx); err != nil {
				return
			}
		}

		status, err := p.fetch(ctx, documentID)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			// Transient query failure: the task is unaffected, the next
			// tick tries again.
			p.log.Warn("status query failed", "document_id", documentID, "error", err)
			continue
		}
		if ctx.Err() != nil {
			return
		}

		if status.Stage.Terminal() {
			ticker.Stop()
			p.notify(onUpdate, status)
			return
		}
		p.notify(onUpdate, status)
	}
}

func (p *ProgressPoller) fetch(ctx context.Context, documentID string) (domain.ProcessingStatus, error) {
	queryCtx, cancel := context.WithTimeout(ctx, p.cfg.RequestTimeout)
	defer cancel()

	status, err := p.source.FetchStatus(queryCtx, documentID)
	switch {
	case err == nil:
		p.metrics.PollRequest(p.service, "ok")
		return status, nil
	case domain.IsKind(err, domain.ErrStatusPurged):
		// The backend purges the transient status record once processing
		// finishes, so a missing record reads as success.
		p.metrics.PollRequest(p.service, "purged")
		return domain.ProcessingStatus{
			Stage:    domain.StageCompleted,
			Progress: 100,
			Message:  "processing finished",
		}, nil
	default:
		p.metrics.PollRequest(p.service, "transient")
		return domain.ProcessingStatus{}, domain.WrapError(domain.ErrQuery, "fetch processing status", err)
	}
}

// notify shields the loop from a panicking callback so one task's observer
// cannot take down another task's poller.
func (p *ProgressPoller) notify(onUpdate func(domain.ProcessingStatus), status domain.ProcessingStatus) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("status update callback panicked", "panic", r)
		}
	}()
	onUpdate(status)
}
