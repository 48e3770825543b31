package job

import (
	"context"
	"sync"
	"time"

	"github.com/vietddude/starsort/internal/classify/metrics"
	"github.com/vietddude/starsort/internal/core/domain"
	"github.com/vietddude/starsort/internal/core/taxonomy"
)

// maxReasonChars bounds the persisted reason string.
const maxReasonChars = 500

type pageStats struct {
	processed  int
	classified int
	failed     int
}

// processPage runs one batch end to end: README prefetch, classification
// with a bounded worker pool, then bulk persistence with per-item fallback.
func (o *Orchestrator) processPage(ctx context.Context, page []*domain.Repo, p Params) pageStats {
	if p.IncludeReadme && o.readme != nil {
		o.prefetchReadmes(ctx, page)
	}

	type slot struct {
		attempted bool
		update    *domain.ClassificationUpdate
	}
	results := make([]slot, len(page))

	concurrency := p.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}

	chunkSize := o.cfg.AIBatchSize
	if chunkSize < 1 {
		chunkSize = 1
	}

	var wg sync.WaitGroup
	queue := make(chan []int)

	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for chunk := range queue {
				for _, i := range chunk {
					results[i] = slot{attempted: true, update: o.classifyOne(ctx, page[i])}
				}
			}
		}()
	}

	// Work is handed out in AI-sized chunks so a worker holds one provider
	// batch at a time. Feeding stops once the run is cancelled;
	// undispatched repos count as unattempted and stay selectable.
feed:
	for start := 0; start < len(page); start += chunkSize {
		end := start + chunkSize
		if end > len(page) {
			end = len(page)
		}
		chunk := make([]int, 0, end-start)
		for i := start; i < end; i++ {
			chunk = append(chunk, i)
		}
		select {
		case <-ctx.Done():
			break feed
		case queue <- chunk:
		}
	}
	close(queue)
	wg.Wait()

	var updates []*domain.ClassificationUpdate
	for _, s := range results {
		if s.update != nil {
			updates = append(updates, s.update)
		}
	}

	landed := o.persist(ctx, updates)

	var stats pageStats
	var failedNames []string
	for i, s := range results {
		if !s.attempted {
			continue
		}
		stats.processed++
		if s.update != nil && landed[s.update.FullName] {
			stats.classified++
		} else {
			stats.failed++
			failedNames = append(failedNames, page[i].FullName)
		}
	}

	if len(failedNames) > 0 {
		if err := o.repos.IncrementClassifyFailCount(ctx, failedNames); err != nil {
			o.log.Warn("failed to increment classify fail counters",
				"count", len(failedNames), "error", err)
		}
	}
	return stats
}

// classifyOne classifies a single repository and builds its persistence
// payload. Returns nil when classification failed; the caller counts it.
func (o *Orchestrator) classifyOne(ctx context.Context, repo *domain.Repo) *domain.ClassificationUpdate {
	start := time.Now()
	outcome, err := o.engine.Classify(ctx, repo, o.ai)
	latency := time.Since(start)

	if err != nil {
		metrics.ClassificationFailures.Inc()
		o.log.Warn("classification failed",
			"event", "classification",
			"repo", repo.FullName,
			"latency_ms", latency.Milliseconds(),
			"error", err)
		return nil
	}

	o.observeOutcome(repo, outcome, latency)

	reason := outcome.Reason
	if len(reason) > maxReasonChars {
		reason = reason[:maxReasonChars]
	}

	// Non-AI outcomes carry no provider; the stored pair names the source.
	provider, model := outcome.Result.Provider, outcome.Result.Model
	switch outcome.Source {
	case domain.SourceManual:
		provider, model = "manual", "manual"
	case domain.SourceRules, domain.SourceRuleFallback:
		provider, model = "rules", "rules"
	}

	return &domain.ClassificationUpdate{
		FullName:       repo.FullName,
		Category:       outcome.Result.Category,
		Subcategory:    outcome.Result.Subcategory,
		Confidence:     outcome.Result.Confidence,
		Tags:           outcome.Result.Tags,
		TagIDs:         outcome.Result.TagIDs,
		Provider:       provider,
		Model:          model,
		Summary:        outcome.Result.Summary,
		Keywords:       outcome.Result.Keywords,
		Reason:         reason,
		DecisionSource: outcome.Source,
		RuleCandidates: outcome.Candidates,
	}
}

func (o *Orchestrator) observeOutcome(repo *domain.Repo, outcome domain.Outcome, latency time.Duration) {
	source := string(outcome.Source)
	metrics.ClassificationsTotal.WithLabelValues(source).Inc()
	metrics.ClassifyLatency.WithLabelValues(source).Observe(latency.Seconds())

	if outcome.Source == domain.SourceRules && len(outcome.Candidates) > 0 {
		metrics.RuleHitsTotal.WithLabelValues(outcome.Candidates[0].RuleID).Inc()
	}
	if outcome.Source == domain.SourceRuleFallback {
		metrics.AIFallbacksTotal.Inc()
	}
	if len(outcome.Result.TagIDs) == 0 {
		metrics.EmptyTagsTotal.Inc()
	}
	if outcome.Result.Category == taxonomy.FallbackCategory {
		metrics.UncategorizedTotal.Inc()
	}

	o.log.Info("repository classified",
		"event", "classification",
		"repo", repo.FullName,
		"category", outcome.Result.Category,
		"subcategory", outcome.Result.Subcategory,
		"source", source,
		"confidence", outcome.Result.Confidence,
		"latency_ms", latency.Milliseconds())
}

// persist writes updates in bulk, falling back to per-item writes when the
// bulk transaction fails. Returns the set of repositories whose update landed.
func (o *Orchestrator) persist(ctx context.Context, updates []*domain.ClassificationUpdate) map[string]bool {
	landed := make(map[string]bool, len(updates))
	if len(updates) == 0 {
		return landed
	}

	_, err := o.repos.UpdateClassificationsBulk(ctx, updates)
	if err == nil {
		for _, update := range updates {
			landed[update.FullName] = true
		}
		return landed
	}
	o.log.Warn("bulk classification update failed, retrying per item",
		"count", len(updates), "error", err)

	for _, update := range updates {
		if err := o.repos.UpdateClassification(ctx, update); err != nil {
			o.log.Warn("classification update failed",
				"repo", update.FullName, "error", err)
			continue
		}
		landed[update.FullName] = true
	}
	return landed
}

// readmeEligible decides whether a README fetch would add signal: sparse
// description, no summary yet, not known-empty, under the failure cap and
// past the attempt cooldown.
func (o *Orchestrator) readmeEligible(repo *domain.Repo) bool {
	if len(repo.Description) >= 20 || repo.ReadmeSummary != "" || repo.ReadmeEmpty {
		return false
	}
	failureCap := o.cfg.ReadmeFailureCap
	if failureCap <= 0 {
		failureCap = 3
	}
	if repo.ReadmeFailures >= failureCap {
		return false
	}
	cooldown := o.cfg.ReadmeCooldown
	if cooldown <= 0 {
		cooldown = time.Minute
	}
	if repo.ReadmeLastAttemptAt != nil && time.Since(*repo.ReadmeLastAttemptAt) < cooldown {
		return false
	}
	return true
}

// prefetchReadmes fetches README excerpts for eligible repositories in the
// page, mutates the in-memory copies so classification sees the text, and
// persists the outcomes in one batch with per-item fallback.
func (o *Orchestrator) prefetchReadmes(ctx context.Context, page []*domain.Repo) {
	var targets []*domain.Repo
	for _, repo := range page {
		if o.readmeEligible(repo) {
			targets = append(targets, repo)
		}
	}
	if len(targets) == 0 {
		return
	}

	fetches := make([]domain.ReadmeFetch, len(targets))
	var wg sync.WaitGroup
	for i, repo := range targets {
		wg.Add(1)
		go func(i int, repo *domain.Repo) {
			defer wg.Done()
			summary, err := o.readme.FetchReadmeSummary(ctx, repo.FullName)
			if err != nil {
				metrics.ReadmeFetchesTotal.WithLabelValues("error").Inc()
				o.log.Warn("readme fetch failed", "repo", repo.FullName, "error", err)
				fetches[i] = domain.ReadmeFetch{FullName: repo.FullName, Success: false}
				return
			}
			if summary == "" {
				metrics.ReadmeFetchesTotal.WithLabelValues("empty").Inc()
			} else {
				metrics.ReadmeFetchesTotal.WithLabelValues("ok").Inc()
			}
			repo.ReadmeSummary = summary
			fetches[i] = domain.ReadmeFetch{FullName: repo.FullName, Summary: summary, Success: true}
		}(i, repo)
	}
	wg.Wait()

	if err := o.repos.RecordReadmeFetches(ctx, fetches); err != nil {
		o.log.Warn("bulk readme persistence failed, retrying per item", "error", err)
		for _, fetch := range fetches {
			if err := o.repos.RecordReadmeFetch(ctx, fetch); err != nil {
				o.log.Warn("readme persistence failed", "repo", fetch.FullName, "error", err)
			}
		}
	}
}
