package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bidassist/docingest/internal/core/domain"
)

// scriptedStatusSource replays a fixed sequence of responses, repeating the
// last one once the script is exhausted.
type scriptedStatusSource struct {
	mu       sync.Mutex
	script   []statusReply
	next     int
	requests int
}

type statusReply struct {
	status domain.ProcessingStatus
	err    error
}

func (s *scriptedStatusSource) FetchStatus(ctx context.Context, documentID string) (domain.ProcessingStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests++
	if len(s.script) == 0 {
		return domain.ProcessingStatus{}, errors.New("empty script")
	}
	reply := s.script[s.next]
	if s.next < len(s.script)-1 {
		s.next++
	}
	return reply.status, reply.err
}

func (s *scriptedStatusSource) requestCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests
}

func collectUpdates(t *testing.T, poller *ProgressPoller, want int) []domain.ProcessingStatus {
	t.Helper()

	updates := make(chan domain.ProcessingStatus, 16)
	handle := poller.Start(context.Background(), "doc-1", func(status domain.ProcessingStatus) {
		updates <- status
	})
	defer handle.Stop()

	var got []domain.ProcessingStatus
	deadline := time.After(5 * time.Second)
	for len(got) < want {
		select {
		case status := <-updates:
			got = append(got, status)
		case <-deadline:
			t.Fatalf("got %d updates, want %d", len(got), want)
		}
	}
	return got
}

func TestPollerDeliversProgressUntilTerminal(t *testing.T) {
	source := &scriptedStatusSource{script: []statusReply{
		{status: domain.ProcessingStatus{Stage: domain.StageParsing, Progress: 40, CurrentPage: 4, TotalPages: 10}},
		{status: domain.ProcessingStatus{Stage: domain.StageVectorizing, Progress: 85}},
		{status: domain.ProcessingStatus{Stage: domain.StageCompleted, Progress: 100}},
	}}
	poller := NewProgressPoller(source, PollerConfig{Interval: 5 * time.Millisecond}, PollerOptions{})

	got := collectUpdates(t, poller, 3)
	if got[0].Stage != domain.StageParsing || got[0].Progress != 40 {
		t.Errorf("first update = %+v", got[0])
	}
	if got[1].Stage != domain.StageVectorizing || got[1].Progress != 85 {
		t.Errorf("second update = %+v", got[1])
	}
	if got[2].Stage != domain.StageCompleted {
		t.Errorf("third update = %+v", got[2])
	}
}

func TestPollerTreatsPurgedStatusAsCompleted(t *testing.T) {
	source := &scriptedStatusSource{script: []statusReply{
		{err: fmt.Errorf("progress for doc-1: %w", domain.ErrStatusPurged)},
	}}
	poller := NewProgressPoller(source, PollerConfig{Interval: 5 * time.Millisecond}, PollerOptions{})

	got := collectUpdates(t, poller, 1)
	if got[0].Stage != domain.StageCompleted || got[0].Progress != 100 {
		t.Fatalf("update = %+v, want synthesized completion", got[0])
	}
}

func TestPollerContinuesPastTransientError(t *testing.T) {
	source := &scriptedStatusSource{script: []statusReply{
		{err: errors.New("upstream returned 502")},
		{status: domain.ProcessingStatus{Stage: domain.StageParsing, Progress: 10}},
		{status: domain.ProcessingStatus{Stage: domain.StageError, Message: "parse failed"}},
	}}
	poller := NewProgressPoller(source, PollerConfig{Interval: 5 * time.Millisecond}, PollerOptions{})

	got := collectUpdates(t, poller, 2)
	if got[0].Stage != domain.StageParsing {
		t.Errorf("first delivered update = %+v, want the one after the failure", got[0])
	}
	if got[1].Stage != domain.StageError || got[1].Message != "parse failed" {
		t.Errorf("terminal update = %+v", got[1])
	}
}

func TestPollerStopPreventsFurtherUpdates(t *testing.T) {
	source := &scriptedStatusSource{script: []statusReply{
		{status: domain.ProcessingStatus{Stage: domain.StageParsing, Progress: 10}},
	}}
	poller := NewProgressPoller(source, PollerConfig{Interval: 5 * time.Millisecond}, PollerOptions{})

	var mu sync.Mutex
	count := 0
	handle := poller.Start(context.Background(), "doc-1", func(domain.ProcessingStatus) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	deadline := time.After(5 * time.Second)
	for {
		mu.Lock()
		n := count
		mu.Unlock()
		if n > 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("no update observed before stop")
		case <-time.After(time.Millisecond):
		}
	}

	handle.Stop()
	mu.Lock()
	stopped := count
	mu.Unlock()

	time.Sleep(30 * time.Millisecond)
	mu.Lock()
	after := count
	mu.Unlock()
	if after != stopped {
		t.Fatalf("updates after Stop: %d -> %d", stopped, after)
	}

	// Stop is idempotent.
	handle.Stop()
}

func TestPollerTerminalUpdateDeliveredOnce(t *testing.T) {
	source := &scriptedStatusSource{script: []statusReply{
		{status: domain.ProcessingStatus{Stage: domain.StageCompleted, Progress: 100}},
	}}
	poller := NewProgressPoller(source, PollerConfig{Interval: 5 * time.Millisecond}, PollerOptions{})

	updates := make(chan domain.ProcessingStatus, 16)
	handle := poller.Start(context.Background(), "doc-1", func(status domain.ProcessingStatus) {
		updates <- status
	})
	defer handle.Stop()

	select {
	case <-updates:
	case <-time.After(5 * time.Second):
		t.Fatal("terminal update never arrived")
	}
	select {
	case status := <-updates:
		t.Fatalf("second update after terminal: %+v", status)
	case <-time.After(30 * time.Millisecond):
	}
	if n := source.requestCount(); n != 1 {
		t.Fatalf("requests after terminal = %d, want 1", n)
	}
}

func TestPollerSurvivesPanickingCallback(t *testing.T) {
	source := &scriptedStatusSource{script: []statusReply{
		{status: domain.ProcessingStatus{Stage: domain.StageParsing, Progress: 10}},
		{status: domain.ProcessingStatus{Stage: domain.StageCompleted, Progress: 100}},
	}}
	poller := NewProgressPoller(source, PollerConfig{Interval: 5 * time.Millisecond}, PollerOptions{})

	done := make(chan struct{})
	first := true
	handle := poller.Start(context.Background(), "doc-1", func(status domain.ProcessingStatus) {
		if first {
			first = false
			panic("observer bug")
		}
		close(done)
	})
	defer handle.Stop()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("poller died with the panicking callback")
	}
}
