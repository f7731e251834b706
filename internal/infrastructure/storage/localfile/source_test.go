package localfile

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestCandidateCapturesMetadata(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tender.pdf")
	if err := os.WriteFile(path, []byte("%PDF-1.7 payload"), 0o600); err != nil {
		t.Fatal(err)
	}

	candidate, err := Candidate(path)
	if err != nil {
		t.Fatalf("Candidate: %v", err)
	}
	if candidate.Name != "tender.pdf" {
		t.Errorf("Name = %q", candidate.Name)
	}
	if candidate.SizeBytes != 16 {
		t.Errorf("SizeBytes = %d", candidate.SizeBytes)
	}
	if !strings.HasPrefix(candidate.MimeType, "application/pdf") {
		t.Errorf("MimeType = %q", candidate.MimeType)
	}

	// The source is reopenable: each Open rereads from the start.
	for i := 0; i < 2; i++ {
		rc, err := candidate.Source.Open(context.Background())
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			t.Fatal(err)
		}
		if string(data) != "%PDF-1.7 payload" {
			t.Errorf("payload = %q", data)
		}
	}
}

func TestCandidateRejectsDirectory(t *testing.T) {
	if _, err := Candidate(t.TempDir()); err == nil {
		t.Fatal("expected error for directory")
	}
}

func TestOpenHonorsCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := New("irrelevant").Open(ctx); err == nil {
		t.Fatal("expected context error")
	}
}
