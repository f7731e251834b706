package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ServerURL != "http://localhost:8080" {
		t.Errorf("ServerURL = %q", cfg.ServerURL)
	}
	if cfg.MaxConcurrentUploads != 3 {
		t.Errorf("MaxConcurrentUploads = %d, want 3", cfg.MaxConcurrentUploads)
	}
	if cfg.PollInterval != time.Second {
		t.Errorf("PollInterval = %v, want 1s", cfg.PollInterval)
	}
	if len(cfg.AllowedTypes) == 0 {
		t.Error("AllowedTypes is empty")
	}
}

func TestLoadYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ingest.yaml")
	body := []byte("server_url: https://ingest.example.com\nmax_files: 25\npoll_interval: 250ms\n")
	if err := os.WriteFile(path, body, 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("INGEST_CONFIG", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ServerURL != "https://ingest.example.com" {
		t.Errorf("ServerURL = %q", cfg.ServerURL)
	}
	if cfg.MaxFiles != 25 {
		t.Errorf("MaxFiles = %d, want 25", cfg.MaxFiles)
	}
	if cfg.PollInterval != 250*time.Millisecond {
		t.Errorf("PollInterval = %v, want 250ms", cfg.PollInterval)
	}
	// Fields absent from the file keep their defaults.
	if cfg.ScenarioID != "default" {
		t.Errorf("ScenarioID = %q", cfg.ScenarioID)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ingest.yaml")
	if err := os.WriteFile(path, []byte("max_concurrent_uploads: 5\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("INGEST_CONFIG", path)
	t.Setenv("INGEST_MAX_CONCURRENT_UPLOADS", "7")
	t.Setenv("INGEST_ALLOWED_TYPES", ".pdf, .txt")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MaxConcurrentUploads != 7 {
		t.Errorf("MaxConcurrentUploads = %d, want 7", cfg.MaxConcurrentUploads)
	}
	if len(cfg.AllowedTypes) != 2 || cfg.AllowedTypes[1] != ".txt" {
		t.Errorf("AllowedTypes = %v", cfg.AllowedTypes)
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Setenv("INGEST_CONFIG", filepath.Join(t.TempDir(), "absent.yaml"))
	if _, err := Load(); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestLoadInvalidEnvFallsBack(t *testing.T) {
	t.Setenv("INGEST_MAX_FILES", "not-a-number")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MaxFiles != 10 {
		t.Errorf("MaxFiles = %d, want default 10", cfg.MaxFiles)
	}
}
