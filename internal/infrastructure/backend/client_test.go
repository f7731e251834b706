package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/bidassist/docingest/internal/core/domain"
	"github.com/bidassist/docingest/internal/core/ports"
)

type bytesSource struct {
	mu    sync.Mutex
	data  []byte
	opens int
}

func (b *bytesSource) Open(ctx context.Context) (io.ReadCloser, error) {
	b.mu.Lock()
	b.opens++
	b.mu.Unlock()
	return io.NopCloser(bytes.NewReader(b.data)), nil
}

func (b *bytesSource) openCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.opens
}

func pdfCandidate(data []byte) (ports.FileCandidate, *bytesSource) {
	src := &bytesSource{data: data}
	return ports.FileCandidate{
		Name:      "tender.pdf",
		SizeBytes: int64(len(data)),
		MimeType:  "application/pdf",
		Source:    src,
	}, src
}

func TestTransferUploadsMultipartForm(t *testing.T) {
	payload := bytes.Repeat([]byte("x"), 4096)

	var (
		gotScenario string
		gotFilename string
		gotBody     []byte
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/documents" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse form: %v", err)
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		gotScenario = r.FormValue("scenario_id")
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Errorf("form file: %v", err)
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer file.Close()
		gotFilename = header.Filename
		gotBody, _ = io.ReadAll(file)

		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "doc-123"})
	}))
	defer server.Close()

	client := New(server.URL, Options{})
	channel := NewTransferChannel(client, "scenario-7")

	file, _ := pdfCandidate(payload)
	var percents []int
	documentID, err := channel.Transfer(context.Background(), file, func(p int) {
		percents = append(percents, p)
	})
	if err != nil {
		t.Fatalf("Transfer: %v", err)
	}
	if documentID != "doc-123" {
		t.Errorf("documentID = %q", documentID)
	}
	if gotScenario != "scenario-7" {
		t.Errorf("scenario_id = %q", gotScenario)
	}
	if gotFilename != "tender.pdf" {
		t.Errorf("filename = %q", gotFilename)
	}
	if !bytes.Equal(gotBody, payload) {
		t.Errorf("payload mismatch: got %d bytes", len(gotBody))
	}
	if len(percents) == 0 || percents[len(percents)-1] != 100 {
		t.Errorf("progress callbacks = %v, want final 100", percents)
	}
	for i := 1; i < len(percents); i++ {
		if percents[i] <= percents[i-1] {
			t.Errorf("progress not increasing: %v", percents)
		}
	}
}

func TestTransferReportsServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "scenario unknown", http.StatusUnprocessableEntity)
	}))
	defer server.Close()

	client := New(server.URL, Options{})
	channel := NewTransferChannel(client, "nope")

	file, _ := pdfCandidate([]byte("data"))
	_, err := channel.Transfer(context.Background(), file, nil)

	var statusErr *HTTPStatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("err = %v, want HTTPStatusError", err)
	}
	if statusErr.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("StatusCode = %d", statusErr.StatusCode)
	}
}

func TestTransferRejectsResponseWithoutID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		_ = json.NewEncoder(w).Encode(map[string]string{})
	}))
	defer server.Close()

	client := New(server.URL, Options{})
	channel := NewTransferChannel(client, "")

	file, _ := pdfCandidate([]byte("data"))
	if _, err := channel.Transfer(context.Background(), file, nil); err == nil {
		t.Fatal("expected error for response without document id")
	}
}

func TestFetchStatusDecodesProgress(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/documents/doc-9/progress" {
			t.Errorf("path = %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(domain.ProcessingStatus{
			Stage:       domain.StageParsing,
			Progress:    40,
			Message:     "parsing page 4 of 10",
			CurrentPage: 4,
			TotalPages:  10,
		})
	}))
	defer server.Close()

	status := NewStatusClient(New(server.URL, Options{}))
	got, err := status.FetchStatus(context.Background(), "doc-9")
	if err != nil {
		t.Fatalf("FetchStatus: %v", err)
	}
	if got.Stage != domain.StageParsing || got.Progress != 40 || got.CurrentPage != 4 {
		t.Errorf("status = %+v", got)
	}
}

func TestFetchStatusMapsNotFoundToPurged(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	status := NewStatusClient(New(server.URL, Options{}))
	_, err := status.FetchStatus(context.Background(), "doc-gone")
	if !errors.Is(err, domain.ErrStatusPurged) {
		t.Fatalf("err = %v, want ErrStatusPurged", err)
	}
}

func TestFetchStatusServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "db down", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	status := NewStatusClient(New(server.URL, Options{}))
	_, err := status.FetchStatus(context.Background(), "doc-1")

	var statusErr *HTTPStatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("err = %v, want HTTPStatusError", err)
	}
	if statusErr.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("StatusCode = %d", statusErr.StatusCode)
	}
}

func TestClassifyError(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		retryable bool
	}{
		{"canceled context", context.Canceled, false},
		{"timeout status", &HTTPStatusError{StatusCode: http.StatusRequestTimeout}, true},
		{"rate limited", &HTTPStatusError{StatusCode: http.StatusTooManyRequests}, true},
		{"bad gateway", &HTTPStatusError{StatusCode: http.StatusBadGateway}, true},
		{"unprocessable", &HTTPStatusError{StatusCode: http.StatusUnprocessableEntity}, false},
		{"plain network error", errors.New("connection reset"), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClassifyError(tc.err); got.Retryable != tc.retryable {
				t.Errorf("ClassifyError(%v).Retryable = %v, want %v", tc.err, got.Retryable, tc.retryable)
			}
		})
	}
}
