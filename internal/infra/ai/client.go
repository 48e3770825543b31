// Package ai wraps the language-model provider used for classification
// arbitration. It speaks both the OpenAI chat-completions shape and the
// Anthropic messages shape, masks secrets before anything is logged, and
// tolerates model output that wraps JSON in fences or prose.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/vietddude/starsort/internal/classify/metrics"
	"github.com/vietddude/starsort/internal/core/domain"
	"github.com/vietddude/starsort/internal/core/taxonomy"
)

// Config holds the AI provider settings.
type Config struct {
	Provider    string        `yaml:"provider"` // openai, anthropic, custom, none
	Model       string        `yaml:"model"`
	BaseURL     string        `yaml:"base_url"`
	APIKey      string        `yaml:"api_key"`
	HeadersJSON string        `yaml:"headers_json"` // extra headers as a JSON object
	MaxTokens   int           `yaml:"max_tokens"`
	Temperature float64       `yaml:"temperature"`
	Timeout     time.Duration `yaml:"timeout"`
	// MaxConcurrent bounds simultaneous outbound calls to the provider.
	MaxConcurrent int `yaml:"max_concurrent"`
}

// Enabled reports whether a provider is configured at all.
func (c Config) Enabled() bool {
	p := strings.ToLower(strings.TrimSpace(c.Provider))
	return p != "" && p != "none"
}

// Validate checks that the configuration is usable for classification.
// Configuration errors fail fast and are never retried.
func (c Config) Validate() error {
	provider := strings.ToLower(strings.TrimSpace(c.Provider))
	if provider == "" || provider == "none" {
		return fmt.Errorf("ai provider is not configured")
	}
	if strings.TrimSpace(c.Model) == "" {
		return fmt.Errorf("ai model is required for classification")
	}
	if provider == "openai" || provider == "anthropic" {
		if strings.TrimSpace(c.APIKey) == "" {
			return fmt.Errorf("ai api key is required for provider %s", provider)
		}
	} else if strings.TrimSpace(c.BaseURL) == "" {
		return fmt.Errorf("ai base url is required for provider %s", provider)
	}
	return nil
}

func (c Config) baseURL() string {
	if c.BaseURL != "" {
		return strings.TrimRight(c.BaseURL, "/")
	}
	switch strings.ToLower(c.Provider) {
	case "openai":
		return "https://api.openai.com/v1"
	case "anthropic":
		return "https://api.anthropic.com/v1"
	}
	return ""
}

// anthropicShaped reports whether the provider speaks the messages API.
// Every other provider is treated as OpenAI-compatible.
func (c Config) anthropicShaped() bool {
	return strings.ToLower(strings.TrimSpace(c.Provider)) == "anthropic"
}

// Client is an AI provider client with bounded concurrency.
type Client struct {
	cfg  Config
	http *http.Client
	sem  chan struct{}
	log  *slog.Logger
}

// NewClient creates a provider client from config.
func NewClient(cfg Config) *Client {
	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: timeout},
		sem:  make(chan struct{}, maxConcurrent),
		log:  slog.Default().With("component", "ai"),
	}
}

// repoContext is the repository payload sent to the model.
type repoContext struct {
	Name          string            `json:"name"`
	FullName      string            `json:"full_name"`
	Description   string            `json:"description"`
	Topics        []string          `json:"topics"`
	ReadmeSummary string            `json:"readme_summary,omitempty"`
	Candidates    []candidateHint   `json:"rule_candidates,omitempty"`
	Index         *int              `json:"index,omitempty"`
}

// candidateHint is the compact rule-candidate shape attached as context.
type candidateHint struct {
	RuleID      string   `json:"rule_id"`
	Category    string   `json:"category"`
	Subcategory string   `json:"subcategory"`
	Score       float64  `json:"score"`
	Evidence    []string `json:"evidence"`
	TagIDs      []string `json:"tag_ids"`
}

func buildRepoContext(repo *domain.Repo, hints []domain.RuleCandidate) repoContext {
	rc := repoContext{
		Name:          repo.Name,
		FullName:      repo.FullName,
		Description:   repo.Description,
		Topics:        repo.Topics,
		ReadmeSummary: repo.ReadmeSummary,
	}
	if rc.Topics == nil {
		rc.Topics = []string{}
	}
	for _, c := range hints {
		rc.Candidates = append(rc.Candidates, candidateHint{
			RuleID:      c.RuleID,
			Category:    c.Category,
			Subcategory: c.Subcategory,
			Score:       c.Score,
			Evidence:    c.Evidence,
			TagIDs:      c.TagIDs,
		})
	}
	return rc
}

func systemPrompt(tax *taxonomy.Taxonomy, batch bool) string {
	tagsLine := "free-form"
	if tags := tax.AllowedTags(); len(tags) > 0 {
		tagsLine = strings.Join(tags, ", ")
	}
	schema := `{"category":"...","subcategory":"...","tags":["..."],"confidence":0.0}`
	lead := "Return ONLY valid JSON with this schema:\n" + schema
	if batch {
		lead = "Return ONLY valid JSON array with one object per input, same order:\n" +
			`[{"index":0,"category":"...","subcategory":"...","tags":["..."],"confidence":0.0}]`
	}
	return "You classify GitHub repositories into a fixed taxonomy.\n" +
		lead + "\n" +
		"Rules:\n" +
		"- category and subcategory must be from the taxonomy list.\n" +
		"- Ignore programming language; classify by product functionality or use case.\n" +
		"- If unsure, use category 'uncategorized' and subcategory 'other'.\n" +
		"- tags must be chosen from the allowed tags list if provided; otherwise return [] or reasonable tags.\n" +
		"- confidence is between 0 and 1.\n\n" +
		"Taxonomy:\n" + tax.FormatForPrompt() + "\n\n" +
		"Allowed tags: " + tagsLine + "\n"
}

func (c *Client) headers() http.Header {
	h := http.Header{}
	h.Set("Content-Type", "application/json")
	if c.cfg.anthropicShaped() {
		if c.cfg.APIKey != "" {
			h.Set("x-api-key", c.cfg.APIKey)
		}
		h.Set("anthropic-version", "2023-06-01")
	} else if c.cfg.APIKey != "" {
		h.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
	if c.cfg.HeadersJSON != "" {
		var extra map[string]string
		if err := json.Unmarshal([]byte(c.cfg.HeadersJSON), &extra); err == nil {
			for k, v := range extra {
				h.Set(k, v)
			}
		}
	}
	return h
}

// complete performs one provider round trip and returns the model text.
func (c *Client) complete(ctx context.Context, system, user string) (string, error) {
	if err := c.cfg.Validate(); err != nil {
		return "", err
	}
	base := c.cfg.baseURL()
	if base == "" {
		return "", fmt.Errorf("ai base url is required for provider %s", c.cfg.Provider)
	}

	var url string
	var payload any
	if c.cfg.anthropicShaped() {
		url = base + "/messages"
		payload = map[string]any{
			"model":       c.cfg.Model,
			"system":      system,
			"messages":    []map[string]string{{"role": "user", "content": user}},
			"max_tokens":  c.cfg.MaxTokens,
			"temperature": c.cfg.Temperature,
		}
	} else {
		url = base + "/chat/completions"
		payload = map[string]any{
			"model": c.cfg.Model,
			"messages": []map[string]string{
				{"role": "system", "content": system},
				{"role": "user", "content": user},
			},
			"max_tokens":  c.cfg.MaxTokens,
			"temperature": c.cfg.Temperature,
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to encode request: %w", err)
	}

	select {
	case c.sem <- struct{}{}:
		defer func() { <-c.sem }()
	case <-ctx.Done():
		return "", ctx.Err()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	req.Header = c.headers()

	provider := strings.ToLower(c.cfg.Provider)
	resp, err := c.http.Do(req)
	if err != nil {
		metrics.AICallsTotal.WithLabelValues(provider, "error").Inc()
		return "", fmt.Errorf("ai request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.AICallsTotal.WithLabelValues(provider, "error").Inc()
		return "", fmt.Errorf("failed to read ai response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		metrics.AICallsTotal.WithLabelValues(provider, "error").Inc()
		detail := truncateDetail(sanitizeResponseBody(string(raw)))
		if detail != "" {
			return "", fmt.Errorf("ai provider returned status %d | url=%s | body=%s", resp.StatusCode, url, detail)
		}
		return "", fmt.Errorf("ai provider returned status %d | url=%s", resp.StatusCode, url)
	}
	metrics.AICallsTotal.WithLabelValues(provider, "ok").Inc()

	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		detail := truncateDetail(sanitizeResponseBody(string(raw)))
		return "", fmt.Errorf("ai response JSON decode failed (status %d) | url=%s | body=%s", resp.StatusCode, url, detail)
	}

	if c.cfg.anthropicShaped() {
		var text strings.Builder
		if content, ok := data["content"].([]any); ok {
			for _, block := range content {
				b, ok := block.(map[string]any)
				if !ok || b["type"] != "text" {
					continue
				}
				if s, ok := b["text"].(string); ok {
					text.WriteString(s)
				}
			}
		}
		return text.String(), nil
	}

	choices, _ := data["choices"].([]any)
	if len(choices) == 0 {
		return "", nil
	}
	choice, _ := choices[0].(map[string]any)
	message, _ := choice["message"].(map[string]any)
	text, _ := message["content"].(string)
	return text, nil
}

// ClassifyRepo classifies a single repository, attaching any rule-candidate
// hints as context for arbitration.
func (c *Client) ClassifyRepo(
	ctx context.Context,
	repo *domain.Repo,
	hints []domain.RuleCandidate,
	tax *taxonomy.Taxonomy,
) (domain.Classification, error) {
	user, err := json.Marshal(buildRepoContext(repo, hints))
	if err != nil {
		return domain.Classification{}, fmt.Errorf("failed to encode repo context: %w", err)
	}

	text, err := c.complete(ctx, systemPrompt(tax, false), string(user))
	if err != nil {
		return domain.Classification{}, err
	}

	extracted := ExtractJSONObject(text)
	validated := tax.Validate(extracted)
	validated.Provider = strings.ToLower(c.cfg.Provider)
	validated.Model = c.cfg.Model
	return validated, nil
}

// ClassifyRepos classifies a small batch in one provider call. The returned
// slice is input-ordered; entries the model silently dropped are nil.
func (c *Client) ClassifyRepos(
	ctx context.Context,
	repos []*domain.Repo,
	tax *taxonomy.Taxonomy,
) ([]*domain.Classification, error) {
	items := make([]repoContext, len(repos))
	for i, repo := range repos {
		rc := buildRepoContext(repo, nil)
		idx := i
		rc.Index = &idx
		items[i] = rc
	}
	user, err := json.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("failed to encode batch context: %w", err)
	}

	text, err := c.complete(ctx, systemPrompt(tax, true), string(user))
	if err != nil {
		return nil, err
	}

	extracted := ExtractJSONArray(text)
	if extracted == nil {
		return nil, fmt.Errorf("ai response is not a JSON array")
	}

	results := make([]*domain.Classification, len(repos))
	for pos, item := range extracted {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		// Prefer the explicit index field, fall back to position.
		target := pos
		if raw, ok := obj["index"].(float64); ok {
			target = int(raw)
		}
		if target < 0 || target >= len(results) {
			continue
		}
		validated := tax.Validate(obj)
		validated.Provider = strings.ToLower(c.cfg.Provider)
		validated.Model = c.cfg.Model
		results[target] = &validated
	}
	return results, nil
}

// ClassifyRepoWithRetry retries ClassifyRepo with exponential backoff
// (2^attempt seconds). The last error is returned unchanged.
func (c *Client) ClassifyRepoWithRetry(
	ctx context.Context,
	repo *domain.Repo,
	hints []domain.RuleCandidate,
	tax *taxonomy.Taxonomy,
	retries int,
) (domain.Classification, error) {
	var result domain.Classification
	err := c.withBackoff(ctx, "classify", retries, func() error {
		var callErr error
		result, callErr = c.ClassifyRepo(ctx, repo, hints, tax)
		return callErr
	})
	return result, err
}

// ClassifyReposWithRetry retries ClassifyRepos with the same backoff policy.
func (c *Client) ClassifyReposWithRetry(
	ctx context.Context,
	repos []*domain.Repo,
	tax *taxonomy.Taxonomy,
	retries int,
) ([]*domain.Classification, error) {
	var results []*domain.Classification
	err := c.withBackoff(ctx, "batch classify", retries, func() error {
		var callErr error
		results, callErr = c.ClassifyRepos(ctx, repos, tax)
		return callErr
	})
	return results, err
}

func (c *Client) withBackoff(ctx context.Context, op string, retries int, call func() error) error {
	for attempt := 0; ; attempt++ {
		err := call()
		if err == nil {
			return nil
		}
		if attempt >= retries {
			c.log.Warn("AI "+op+" failed after retries",
				"attempts", attempt+1, "error", MaskSecrets(err.Error()))
			return err
		}
		wait := time.Duration(1<<uint(attempt)) * time.Second
		c.log.Warn("AI "+op+" failed, retrying",
			"attempt", attempt+1, "total", retries+1,
			"wait", wait, "error", MaskSecrets(err.Error()))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}
