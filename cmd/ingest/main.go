package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/bidassist/docingest/internal/bootstrap"
	"github.com/bidassist/docingest/internal/config"
	"github.com/bidassist/docingest/internal/core/domain"
	"github.com/bidassist/docingest/internal/core/ports"
	"github.com/bidassist/docingest/internal/infrastructure/storage/localfile"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "usage: %s <file> [file...]\n", os.Args[0])
		os.Exit(2)
	}
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Outcomes observed through collection snapshots. A terminal state is
	// latched per task so grace-period removal cannot erase it.
	var (
		mu       sync.Mutex
		outcomes = map[string]domain.UploadTask{}
	)
	app, err := bootstrap.New(ctx, cfg, bootstrap.Options{
		OnChange: func(tasks []domain.UploadTask) {
			mu.Lock()
			for _, t := range tasks {
				if t.Status.Terminal() {
					outcomes[t.ID] = t
				}
			}
			mu.Unlock()
		},
	})
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	if cfg.MetricsPort != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", app.Metrics.Handler())
			if err := http.ListenAndServe(":"+cfg.MetricsPort, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
				app.Log.Error("metrics server stopped", "error", err)
			}
		}()
	}

	var candidates []ports.FileCandidate
	failed := false
	for _, path := range os.Args[1:] {
		candidate, err := localfile.Candidate(path)
		if err != nil {
			app.Log.Error("cannot read file", "path", path, "error", err)
			failed = true
			continue
		}
		candidates = append(candidates, candidate)
	}

	accepted, rejected := app.Coordinator.AddFiles(ctx, candidates)
	for _, r := range rejected {
		app.Log.Error("file rejected", "file", r.Name, "error", r.Err)
		failed = true
	}
	app.Log.Info("ingestion started", "accepted", len(accepted), "rejected", len(rejected))

	if err := app.Coordinator.Wait(ctx); err != nil {
		app.Log.Warn("ingestion interrupted", "error", err)
		failed = true
	}

	mu.Lock()
	for _, t := range outcomes {
		if t.Status == domain.StatusError {
			app.Log.Error("ingestion failed", "file", t.Name, "error", t.ErrorMessage)
			failed = true
		} else {
			app.Log.Info("ingestion completed", "file", t.Name, "document_id", t.DocumentID)
		}
	}
	mu.Unlock()

	if failed {
		return 1
	}
	return 0
}
