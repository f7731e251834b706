package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/time/rate"

	"github.com/bidassist/docingest/internal/config"
	"github.com/bidassist/docingest/internal/core/domain"
	"github.com/bidassist/docingest/internal/core/ports"
	"github.com/bidassist/docingest/internal/core/usecase"
	"github.com/bidassist/docingest/internal/infrastructure/backend"
	"github.com/bidassist/docingest/internal/infrastructure/inspect/pdfinfo"
	"github.com/bidassist/docingest/internal/infrastructure/queue/nats"
	"github.com/bidassist/docingest/internal/infrastructure/repository/postgres"
	"github.com/bidassist/docingest/internal/infrastructure/resilience"
	"github.com/bidassist/docingest/internal/observability/logging"
	"github.com/bidassist/docingest/internal/observability/metrics"
)

const serviceName = "docingest"

type App struct {
	Config config.Config
	Log    *slog.Logger

	Metrics     *metrics.IngestMetrics
	Coordinator *usecase.UploadCoordinator

	closeFn func()
}

type Options struct {
	// OnChange receives collection snapshots from the coordinator.
	OnChange func([]domain.UploadTask)
}

func New(ctx context.Context, cfg config.Config, opts Options) (*App, error) {
	log := logging.New(serviceName, cfg.LogLevel)
	ingestMetrics := metrics.NewIngestMetrics(serviceName)

	executor := resilience.NewExecutor(resilience.Policy{
		MaxAttempts: cfg.TransferMaxAttempts,
	}, log)

	client := backend.New(cfg.ServerURL, backend.Options{
		Executor: executor,
		Logger:   log,
	})
	channel := backend.NewTransferChannel(client, cfg.ScenarioID)
	statusClient := backend.NewStatusClient(client)

	var limiter *rate.Limiter
	if cfg.PollRatePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.PollRatePerSecond), 1)
	}
	poller := usecase.NewProgressPoller(statusClient, usecase.PollerConfig{
		Interval:       cfg.PollInterval,
		RequestTimeout: cfg.PollRequestTimeout,
	}, usecase.PollerOptions{
		Limiter: limiter,
		Logger:  log,
		Metrics: ingestMetrics,
		Service: serviceName,
	})

	closers := make([]func(), 0, 2)

	var journal ports.TaskJournal
	if cfg.PostgresDSN != "" {
		db, err := postgres.OpenDB(cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		j := postgres.NewTaskJournal(db)
		if err := j.EnsureSchema(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
		journal = j
		closers = append(closers, func() { _ = db.Close() })
	}

	var events ports.EventSink
	if cfg.NATSURL != "" {
		publisher, err := nats.New(cfg.NATSURL, cfg.NATSSubjectPrefix)
		if err != nil {
			for _, closeFn := range closers {
				closeFn()
			}
			return nil, fmt.Errorf("init event publisher: %w", err)
		}
		events = publisher
		closers = append(closers, publisher.Close)
	}

	coordinator := usecase.NewUploadCoordinator(usecase.CoordinatorConfig{
		Service: serviceName,
		Limits: usecase.FileLimits{
			MaxFileSize:  cfg.MaxFileSize,
			AllowedTypes: cfg.AllowedTypes,
		},
		MaxFiles:             cfg.MaxFiles,
		MaxConcurrentUploads: cfg.MaxConcurrentUploads,
		CompletionGrace:      cfg.CompletionGrace,
	}, channel, poller, usecase.CoordinatorOptions{
		Inspector: pdfinfo.New(cfg.MaxFileSize),
		Journal:   journal,
		Events:    events,
		Logger:    log,
		Metrics:   ingestMetrics,
		OnChange:  opts.OnChange,
	})

	return &App{
		Config:      cfg,
		Log:         log,
		Metrics:     ingestMetrics,
		Coordinator: coordinator,

		closeFn: func() {
			coordinator.Close()
			for _, closeFn := range closers {
				closeFn()
			}
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
