package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	ServerURL  string `yaml:"server_url"`
	ScenarioID string `yaml:"scenario_id"`
	LogLevel   string `yaml:"log_level"`

	MaxFileSize  int64    `yaml:"max_file_size"`
	AllowedTypes []string `yaml:"allowed_types"`

	MaxFiles             int `yaml:"max_files"`
	MaxConcurrentUploads int `yaml:"max_concurrent_uploads"`

	PollInterval       time.Duration `yaml:"poll_interval"`
	PollRequestTimeout time.Duration `yaml:"poll_request_timeout"`
	PollRatePerSecond  float64       `yaml:"poll_rate_per_second"`
	CompletionGrace    time.Duration `yaml:"completion_grace"`

	TransferMaxAttempts int `yaml:"transfer_max_attempts"`

	MetricsPort string `yaml:"metrics_port"`

	PostgresDSN       string `yaml:"postgres_dsn"`
	NATSURL           string `yaml:"nats_url"`
	NATSSubjectPrefix string `yaml:"nats_subject_prefix"`
}

func defaults() Config {
	return Config{
		ServerURL:  "http://localhost:8080",
		ScenarioID: "default",
		LogLevel:   "info",

		MaxFileSize: 50 << 20,
		AllowedTypes: []string{
			".pdf", ".doc", ".docx", ".txt",
			"application/pdf", "text/plain",
		},

		MaxFiles:             10,
		MaxConcurrentUploads: 3,

		PollInterval:       time.Second,
		PollRequestTimeout: 800 * time.Millisecond,
		PollRatePerSecond:  10,
		CompletionGrace:    3 * time.Second,

		TransferMaxAttempts: 3,

		NATSSubjectPrefix: "documents.ingest",
	}
}

// Load builds the configuration from defaults, an optional YAML file named
// by INGEST_CONFIG, and environment overrides, in that order.
func Load() (Config, error) {
	cfg := defaults()

	if path := os.Getenv("INGEST_CONFIG"); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file: %w", err)
		}
	}

	cfg.ServerURL = mustEnv("INGEST_SERVER_URL", cfg.ServerURL)
	cfg.ScenarioID = mustEnv("INGEST_SCENARIO_ID", cfg.ScenarioID)
	cfg.LogLevel = mustEnv("INGEST_LOG_LEVEL", cfg.LogLevel)

	cfg.MaxFileSize = mustEnvInt64("INGEST_MAX_FILE_SIZE", cfg.MaxFileSize)
	cfg.AllowedTypes = mustEnvList("INGEST_ALLOWED_TYPES", cfg.AllowedTypes)

	cfg.MaxFiles = mustEnvInt("INGEST_MAX_FILES", cfg.MaxFiles)
	cfg.MaxConcurrentUploads = mustEnvInt("INGEST_MAX_CONCURRENT_UPLOADS", cfg.MaxConcurrentUploads)

	cfg.PollInterval = mustEnvDuration("INGEST_POLL_INTERVAL", cfg.PollInterval)
	cfg.PollRequestTimeout = mustEnvDuration("INGEST_POLL_REQUEST_TIMEOUT", cfg.PollRequestTimeout)
	cfg.PollRatePerSecond = mustEnvFloat("INGEST_POLL_RATE_PER_SECOND", cfg.PollRatePerSecond)
	cfg.CompletionGrace = mustEnvDuration("INGEST_COMPLETION_GRACE", cfg.CompletionGrace)

	cfg.TransferMaxAttempts = mustEnvInt("INGEST_TRANSFER_MAX_ATTEMPTS", cfg.TransferMaxAttempts)

	cfg.MetricsPort = mustEnv("INGEST_METRICS_PORT", cfg.MetricsPort)

	cfg.PostgresDSN = mustEnv("INGEST_POSTGRES_DSN", cfg.PostgresDSN)
	cfg.NATSURL = mustEnv("INGEST_NATS_URL", cfg.NATSURL)
	cfg.NATSSubjectPrefix = mustEnv("INGEST_NATS_SUBJECT_PREFIX", cfg.NATSSubjectPrefix)

	return cfg, nil
}

func mustEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func mustEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func mustEnvInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return n
}

func mustEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func mustEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func mustEnvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
