// Package github fetches repository README content used to enrich
// classification context.
package github

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Config holds GitHub API client settings.
type Config struct {
	Token   string        `yaml:"token"`
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
	// MaxConcurrent bounds simultaneous README fetches.
	MaxConcurrent  int `yaml:"max_concurrent"`
	ReadmeMaxChars int `yaml:"readme_max_chars"`
}

// Client fetches README summaries with bounded concurrency.
type Client struct {
	cfg  Config
	http *http.Client
	sem  chan struct{}
}

// NewClient creates a GitHub client from config.
func NewClient(cfg Config) *Client {
	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: timeout},
		sem:  make(chan struct{}, maxConcurrent),
	}
}

func (c *Client) baseURL() string {
	if c.cfg.BaseURL != "" {
		return strings.TrimRight(c.cfg.BaseURL, "/")
	}
	return "https://api.github.com"
}

// FetchReadmeSummary returns the leading portion of a repository README as
// plain text, capped at ReadmeMaxChars. A missing README returns an empty
// string without error; auth failures are surfaced so callers can stop
// hammering the API.
func (c *Client) FetchReadmeSummary(ctx context.Context, fullName string) (string, error) {
	select {
	case c.sem <- struct{}{}:
		defer func() { <-c.sem }()
	case <-ctx.Done():
		return "", ctx.Err()
	}

	url := fmt.Sprintf("%s/repos/%s/readme", c.baseURL(), fullName)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build readme request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github.raw")
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("readme request failed for %s: %w", fullName, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return "", nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return "", fmt.Errorf("github auth failed for %s: status %d", fullName, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return "", fmt.Errorf("readme fetch for %s returned status %d", fullName, resp.StatusCode)
	}

	maxChars := c.cfg.ReadmeMaxChars
	if maxChars <= 0 {
		maxChars = 1500
	}
	// Read a bit past the cap so rune truncation has room.
	raw, err := io.ReadAll(io.LimitReader(resp.Body, int64(maxChars*4)))
	if err != nil {
		return "", fmt.Errorf("failed to read readme for %s: %w", fullName, err)
	}

	text := strings.TrimSpace(string(raw))
	runes := []rune(text)
	if len(runes) > maxChars {
		text = string(runes[:maxChars])
	}
	return text, nil
}
