package backend

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/bidassist/docingest/internal/core/domain"
	"github.com/bidassist/docingest/internal/core/ports"
	"github.com/bidassist/docingest/internal/infrastructure/resilience"
)

// Client talks to the tender-assistance backend. Role types below wrap it
// for the two contracts the pipeline consumes: byte transfer and progress
// queries.
type Client struct {
	baseURL    string
	httpClient *http.Client
	executor   *resilience.Executor
	log        *slog.Logger
}

type Options struct {
	HTTPClient *http.Client
	Executor   *resilience.Executor
	Logger     *slog.Logger
}

func New(baseURL string, opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Minute}
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		executor:   opts.Executor,
		log:        log,
	}
}

// TransferChannel streams files to the upload endpoint. A failed attempt is
// retried under the client's resilience policy; every attempt reopens the
// payload and restarts the byte count, so progress callbacks may repeat
// lower values, which the caller's monotonic clamp absorbs.
type TransferChannel struct {
	client     *Client
	scenarioID string
}

func NewTransferChannel(client *Client, scenarioID string) *TransferChannel {
	return &TransferChannel{client: client, scenarioID: scenarioID}
}

func (t *TransferChannel) Transfer(ctx context.Context, file ports.FileCandidate, onProgress func(percent int)) (string, error) {
	var documentID string
	call := func(ctx context.Context) error {
		id, err := t.client.uploadDocument(ctx, t.scenarioID, file, onProgress)
		if err != nil {
			return err
		}
		documentID = id
		return nil
	}

	var err error
	if t.client.executor != nil {
		err = t.client.executor.Do(ctx, "backend.upload", ClassifyError, call)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return "", err
	}
	return documentID, nil
}

// StatusClient serves the poll loop. No retry wrapper here: the loop itself
// is the retry, a failed query just waits for the next tick.
type StatusClient struct {
	client *Client
}

func NewStatusClient(client *Client) *StatusClient {
	return &StatusClient{client: client}
}

func (s *StatusClient) FetchStatus(ctx context.Context, documentID string) (domain.ProcessingStatus, error) {
	return s.client.fetchProgress(ctx, documentID)
}
