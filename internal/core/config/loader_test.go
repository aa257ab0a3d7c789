package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 0\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("expected default port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Engine.ArchiveBatchSize != 1000 {
		t.Errorf("expected default batch size 1000, got %d", cfg.Engine.ArchiveBatchSize)
	}
	if cfg.Engine.RetryDelay != 30*time.Second {
		t.Errorf("expected default retry delay 30s, got %v", cfg.Engine.RetryDelay)
	}
	if cfg.Engine.StallThreshold != 4 {
		t.Errorf("expected default stall threshold 4, got %d", cfg.Engine.StallThreshold)
	}
	if cfg.Kafka.CommandsTopic != "recoverer.commands" {
		t.Errorf("unexpected commands topic %q", cfg.Kafka.CommandsTopic)
	}
}

func TestLoad_ExpandsEnv(t *testing.T) {
	t.Setenv("TEST_DB_URL", "postgres://localhost/recoverer")
	path := writeConfig(t, "database:\n  url: ${TEST_DB_URL}\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Database.URL != "postgres://localhost/recoverer" {
		t.Errorf("env not expanded, got %q", cfg.Database.URL)
	}
}

func TestLoad_Overrides(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
engine:
  archive_batch_size: 50
  retry_delay: 5s
  stall_threshold: 2
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.Server.Port)
	}
	if cfg.Engine.ArchiveBatchSize != 50 {
		t.Errorf("expected batch size 50, got %d", cfg.Engine.ArchiveBatchSize)
	}
	if cfg.Engine.RetryDelay != 5*time.Second {
		t.Errorf("expected retry delay 5s, got %v", cfg.Engine.RetryDelay)
	}
	if cfg.Engine.StallThreshold != 2 {
		t.Errorf("expected stall threshold 2, got %d", cfg.Engine.StallThreshold)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Error("expected error for missing file")
	}
}
