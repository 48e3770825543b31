package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ApplyDefaults()
	return &cfg, nil
}

// ApplyDefaults fills zero values with the service defaults and clamps
// requested batch/concurrency values to their configured maximums.
func (cfg *AppConfig) ApplyDefaults() {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}

	c := &cfg.Classify
	if c.BatchSize == 0 {
		c.BatchSize = 50
	}
	if c.BatchSizeMax == 0 {
		c.BatchSizeMax = 200
	}
	if c.Concurrency == 0 {
		c.Concurrency = 3
	}
	if c.ConcurrencyMax == 0 {
		c.ConcurrencyMax = 10
	}
	if c.AIBatchSize == 0 {
		c.AIBatchSize = 5
	}
	if c.RemainingRefreshEvery == 0 {
		c.RemainingRefreshEvery = 5
	}
	if c.DirectRuleThreshold == 0 {
		c.DirectRuleThreshold = 0.88
	}
	if c.AIRequiredThreshold == 0 {
		c.AIRequiredThreshold = 0.45
	}
	if c.AIRetries == 0 {
		c.AIRetries = 2
	}
	if c.FailCountCeiling == 0 {
		c.FailCountCeiling = 5
	}
	if c.ReadmeCooldown == 0 {
		c.ReadmeCooldown = time.Minute
	}
	if c.ReadmeFailureCap == 0 {
		c.ReadmeFailureCap = 3
	}
	if c.TaskStaleAfter == 0 {
		c.TaskStaleAfter = 10 * time.Minute
	}
	if c.BatchSize > c.BatchSizeMax {
		c.BatchSize = c.BatchSizeMax
	}
	if c.Concurrency > c.ConcurrencyMax {
		c.Concurrency = c.ConcurrencyMax
	}

	if cfg.AI.MaxConcurrent == 0 {
		cfg.AI.MaxConcurrent = 5
	}
	if cfg.AI.Timeout == 0 {
		cfg.AI.Timeout = 60 * time.Second
	}
	if cfg.AI.MaxTokens == 0 {
		cfg.AI.MaxTokens = 1024
	}
	if cfg.GitHub.MaxConcurrent == 0 {
		cfg.GitHub.MaxConcurrent = 5
	}
	if cfg.GitHub.Timeout == 0 {
		cfg.GitHub.Timeout = 30 * time.Second
	}
	if cfg.GitHub.ReadmeMaxChars == 0 {
		cfg.GitHub.ReadmeMaxChars = 1500
	}
}
