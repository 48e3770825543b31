package config

import (
	"time"

	"github.com/vietddude/starsort/internal/core/domain"
	"github.com/vietddude/starsort/internal/infra/ai"
	"github.com/vietddude/starsort/internal/infra/github"
	redisclient "github.com/vietddude/starsort/internal/infra/redis"
	"github.com/vietddude/starsort/internal/infra/storage/postgres"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server   ServerConfig       `yaml:"server"`
	Logging  LoggingConfig      `yaml:"logging"`
	Database postgres.Config    `yaml:"database"`
	Redis    redisclient.Config `yaml:"redis"`
	GitHub   github.Config      `yaml:"github"`
	AI       ai.Config          `yaml:"ai"`
	Classify ClassifyConfig     `yaml:"classify"`
}

// ServerConfig holds HTTP server settings for the ops endpoints.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// ClassifyConfig holds the classification pipeline knobs.
type ClassifyConfig struct {
	Mode           domain.ClassifyMode `yaml:"mode"` // "", "ai_only", "rules_only"
	TaxonomyPath   string              `yaml:"taxonomy_path"`
	RulesPath      string              `yaml:"rules_path"`
	RulesJSON      string              `yaml:"rules_json"` // inline rules, takes precedence over rules_path
	BatchSize      int                 `yaml:"batch_size"`
	BatchSizeMax   int                 `yaml:"batch_size_max"`
	Concurrency    int                 `yaml:"concurrency"`
	ConcurrencyMax int                 `yaml:"concurrency_max"`
	AIBatchSize    int                 `yaml:"ai_batch_size"`
	BatchDelay     time.Duration       `yaml:"batch_delay"`
	// RemainingRefreshEvery controls how often the remaining count is
	// recomputed from the database during incremental runs. Batches with
	// failures always force a refresh.
	RemainingRefreshEvery int           `yaml:"remaining_refresh_every"`
	DirectRuleThreshold   float64       `yaml:"direct_rule_threshold"`
	AIRequiredThreshold   float64       `yaml:"ai_required_threshold"`
	AIRetries             int           `yaml:"ai_retries"`
	FailCountCeiling      int           `yaml:"fail_count_ceiling"`
	ReadmeCooldown        time.Duration `yaml:"readme_cooldown"`
	ReadmeFailureCap      int           `yaml:"readme_failure_cap"`
	IncludeReadme         bool          `yaml:"include_readme"`
	TaskStaleAfter        time.Duration `yaml:"task_stale_after"`
}
