package domain

import "time"

// Repo is the projection of a bookmarked repository used during one
// classification attempt. It is constructed once at the persistence boundary
// and treated as immutable by the classification pipeline.
type Repo struct {
	FullName    string     `json:"full_name" db:"full_name"`
	Name        string     `json:"name" db:"name"`
	Owner       string     `json:"owner" db:"owner"`
	HTMLURL     string     `json:"html_url" db:"html_url"`
	Description string     `json:"description" db:"description"`
	Language    string     `json:"language" db:"language"`
	Stars       int        `json:"stargazers_count" db:"stargazers_count"`
	Forks       int        `json:"forks_count" db:"forks_count"`
	Topics      []string   `json:"topics" db:"-"`
	PushedAt    *time.Time `json:"pushed_at" db:"pushed_at"`
	UpdatedAt   *time.Time `json:"updated_at" db:"updated_at"`
	StarredAt   *time.Time `json:"starred_at" db:"starred_at"`

	Category      string     `json:"category" db:"category"`
	Subcategory   string     `json:"subcategory" db:"subcategory"`
	AIConfidence  float64    `json:"ai_confidence" db:"ai_confidence"`
	AIUpdatedAt   *time.Time `json:"ai_updated_at" db:"ai_updated_at"`
	ClassifyFails int        `json:"classify_fail_count" db:"classify_fail_count"`

	ReadmeSummary       string     `json:"readme_summary" db:"readme_summary"`
	ReadmeEmpty         bool       `json:"readme_empty" db:"readme_empty"`
	ReadmeFailures      int        `json:"readme_failures" db:"readme_failures"`
	ReadmeLastAttemptAt *time.Time `json:"readme_last_attempt_at" db:"readme_last_attempt_at"`
}

// ReadmeFetch records the outcome of one README fetch attempt.
type ReadmeFetch struct {
	FullName string
	Summary  string
	Success  bool
}
