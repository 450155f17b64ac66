package config

import (
	"os"
	"path/filepath"
	"testing"
)

const sampleYAML = `
server:
  port: "9090"
database:
  mysql:
    dsn: "root:pw@tcp(localhost:3306)/mindscribe"
analysis:
  base_url: "http://analyzer:5000"
kafka:
  brokers: "localhost:9092"
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesFileAndDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleYAML))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Port != "9090" {
		t.Errorf("expected port 9090, got %q", cfg.Server.Port)
	}
	if cfg.Analysis.BaseURL != "http://analyzer:5000" {
		t.Errorf("unexpected analysis url %q", cfg.Analysis.BaseURL)
	}
	if cfg.Kafka.Topic != "journal-analysis" {
		t.Errorf("expected default topic, got %q", cfg.Kafka.Topic)
	}
	if cfg.Kafka.MaxAttempts != 3 {
		t.Errorf("expected default max attempts 3, got %d", cfg.Kafka.MaxAttempts)
	}
	if cfg.Insights.Timezone != "Local" {
		t.Errorf("expected Local timezone default, got %q", cfg.Insights.Timezone)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("MINDSCRIBE_ANALYSIS_BASE_URL", "http://override:7000")
	cfg, err := Load(writeConfig(t, sampleYAML))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Analysis.BaseURL != "http://override:7000" {
		t.Errorf("expected env override, got %q", cfg.Analysis.BaseURL)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}
