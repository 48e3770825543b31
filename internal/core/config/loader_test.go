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
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 0
classify:
  taxonomy_path: taxonomy.yaml
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("port = %d, want 8080", cfg.Server.Port)
	}
	c := cfg.Classify
	if c.BatchSize != 50 || c.BatchSizeMax != 200 {
		t.Errorf("batch = %d/%d", c.BatchSize, c.BatchSizeMax)
	}
	if c.Concurrency != 3 || c.ConcurrencyMax != 10 {
		t.Errorf("concurrency = %d/%d", c.Concurrency, c.ConcurrencyMax)
	}
	if c.DirectRuleThreshold != 0.88 || c.AIRequiredThreshold != 0.45 {
		t.Errorf("thresholds = %v/%v", c.DirectRuleThreshold, c.AIRequiredThreshold)
	}
	if c.AIRetries != 2 || c.FailCountCeiling != 5 {
		t.Errorf("retries/ceiling = %d/%d", c.AIRetries, c.FailCountCeiling)
	}
	if c.ReadmeCooldown != time.Minute || c.TaskStaleAfter != 10*time.Minute {
		t.Errorf("cooldown/stale = %v/%v", c.ReadmeCooldown, c.TaskStaleAfter)
	}
	if cfg.AI.MaxConcurrent != 5 || cfg.AI.Timeout != 60*time.Second {
		t.Errorf("ai defaults = %d/%v", cfg.AI.MaxConcurrent, cfg.AI.Timeout)
	}
	if cfg.GitHub.ReadmeMaxChars != 1500 {
		t.Errorf("readme max chars = %d", cfg.GitHub.ReadmeMaxChars)
	}
}

func TestLoadClampsToMaximums(t *testing.T) {
	path := writeConfig(t, `
classify:
  batch_size: 900
  concurrency: 40
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Classify.BatchSize != 200 {
		t.Errorf("batch size = %d, want clamp to 200", cfg.Classify.BatchSize)
	}
	if cfg.Classify.Concurrency != 10 {
		t.Errorf("concurrency = %d, want clamp to 10", cfg.Classify.Concurrency)
	}
}

func TestLoadExpandsEnvironment(t *testing.T) {
	t.Setenv("TEST_DB_URL", "postgres://example/starsort")
	path := writeConfig(t, `
database:
  url: ${TEST_DB_URL}
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Database.URL != "postgres://example/starsort" {
		t.Errorf("url = %s", cfg.Database.URL)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
