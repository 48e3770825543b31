// Package engine combines the rule ranker, the decision policy and the AI
// collaborator into the classification of a single repository.
package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/vietddude/starsort/internal/classify/decision"
	"github.com/vietddude/starsort/internal/classify/ranker"
	"github.com/vietddude/starsort/internal/core/domain"
	"github.com/vietddude/starsort/internal/core/taxonomy"
)

// maxStoredCandidates bounds the candidate list kept on the outcome.
const maxStoredCandidates = 5

// maxAIHints bounds the candidates passed to the AI as context.
const maxAIHints = 3

// AIClassifier is the collaborator contract for AI arbitration.
type AIClassifier interface {
	ClassifyRepoWithRetry(
		ctx context.Context,
		repo *domain.Repo,
		hints []domain.RuleCandidate,
		tax *taxonomy.Taxonomy,
		retries int,
	) (domain.Classification, error)
}

// Engine classifies one repository at a time.
type Engine struct {
	tax       *taxonomy.Taxonomy
	rules     []domain.Rule
	mode      domain.ClassifyMode
	policy    decision.Policy
	aiRetries int
	log       *slog.Logger
}

// New creates an engine over a fixed taxonomy and rule set.
func New(tax *taxonomy.Taxonomy, rules []domain.Rule, mode domain.ClassifyMode, policy decision.Policy, aiRetries int) *Engine {
	return &Engine{
		tax:       tax,
		rules:     rules,
		mode:      mode,
		policy:    policy,
		aiRetries: aiRetries,
		log:       slog.Default().With("component", "engine"),
	}
}

// candidateOutcome converts a winning candidate into a validated outcome.
func (e *Engine) candidateOutcome(c *domain.RuleCandidate, source domain.Source, reason string, all []domain.RuleCandidate) domain.Outcome {
	category, subcategory := e.tax.ClampPair(c.Category, c.Subcategory)

	tagIDs, _ := e.tax.NormalizeTagIDs(c.TagIDs)
	tags := make([]string, 0, len(tagIDs))
	for _, id := range tagIDs {
		tags = append(tags, e.tax.TagName(id))
	}

	return domain.Outcome{
		Result: domain.Classification{
			Category:    category,
			Subcategory: subcategory,
			Tags:        tags,
			TagIDs:      tagIDs,
			Confidence:  c.Score,
			Reason:      reason,
		},
		Source:     source,
		Reason:     reason,
		Candidates: clip(all),
	}
}

func clip(candidates []domain.RuleCandidate) []domain.RuleCandidate {
	if len(candidates) > maxStoredCandidates {
		return candidates[:maxStoredCandidates]
	}
	return candidates
}

// Classify runs the full pipeline for one repository. ai may be nil when no
// provider is configured.
func (e *Engine) Classify(ctx context.Context, repo *domain.Repo, ai AIClassifier) (domain.Outcome, error) {
	candidates := ranker.Rank(repo, e.rules, e.tax)
	var top *domain.RuleCandidate
	if len(candidates) > 0 {
		top = &candidates[0]
	}

	dec := decision.Decide(e.mode, ai != nil, top, e.policy)

	switch dec.Route {
	case domain.RouteDirectRule, domain.RouteRuleFallback:
		if dec.Candidate == nil {
			// The policy never selects a rule route without a candidate.
			return domain.Outcome{}, fmt.Errorf("rule route %s selected without a candidate for %s", dec.Route, repo.FullName)
		}
		source := domain.SourceRules
		if dec.Route == domain.RouteRuleFallback {
			source = domain.SourceRuleFallback
		}
		reason := "rule:" + dec.Candidate.RuleID
		return e.candidateOutcome(dec.Candidate, source, reason, candidates), nil

	case domain.RouteManual:
		return domain.Outcome{
			Result: domain.Classification{
				Category:    taxonomy.FallbackCategory,
				Subcategory: taxonomy.FallbackSubcategory,
				Tags:        []string{},
				TagIDs:      []string{},
				Confidence:  0,
			},
			Source:     domain.SourceManual,
			Reason:     dec.Reason,
			Candidates: clip(candidates),
		}, nil

	case domain.RouteSkip:
		return domain.Outcome{}, fmt.Errorf("no classification source available for %s: %s", repo.FullName, dec.Reason)
	}

	// AI route with graceful degradation to the top rule candidate.
	hints := candidates
	if len(hints) > maxAIHints {
		hints = hints[:maxAIHints]
	}

	result, err := ai.ClassifyRepoWithRetry(ctx, repo, hints, e.tax, e.aiRetries)
	if err != nil {
		if top != nil {
			e.log.Warn("AI classification failed, falling back to top rule candidate",
				"repo", repo.FullName, "rule", top.RuleID, "error", err)
			return e.candidateOutcome(top, domain.SourceRuleFallback,
				"AI failed; fallback to top rule candidate", candidates), nil
		}
		return domain.Outcome{}, err
	}

	return domain.Outcome{
		Result:     result,
		Source:     domain.SourceAI,
		Reason:     dec.Reason,
		Candidates: clip(candidates),
	}, nil
}
