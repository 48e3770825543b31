// Package decision routes a ranked top candidate to a classification source.
package decision

import (
	"fmt"

	"github.com/vietddude/starsort/internal/core/domain"
)

// Policy holds the routing thresholds.
type Policy struct {
	// DirectRuleThreshold accepts the top candidate without AI arbitration.
	DirectRuleThreshold float64
	// AIRequiredThreshold separates the two AI routing reasons below it.
	AIRequiredThreshold float64
}

// DefaultPolicy returns the production thresholds.
func DefaultPolicy() Policy {
	return Policy{DirectRuleThreshold: 0.88, AIRequiredThreshold: 0.45}
}

// Decide maps the run mode, AI availability and top candidate to a route.
// Pure and total: every input combination lands on one of the five routes.
func Decide(mode domain.ClassifyMode, aiAvailable bool, top *domain.RuleCandidate, policy Policy) domain.Decision {
	switch mode {
	case domain.ModeAIOnly:
		if aiAvailable {
			return domain.Decision{Route: domain.RouteAI, Reason: "AI-only mode"}
		}
		return domain.Decision{Route: domain.RouteSkip, Reason: "AI disabled"}

	case domain.ModeRulesOnly:
		if top != nil {
			return domain.Decision{
				Route:     domain.RouteDirectRule,
				Reason:    fmt.Sprintf("rules-only mode; top rule %s", top.RuleID),
				Candidate: top,
			}
		}
		return domain.Decision{Route: domain.RouteSkip, Reason: "No matched rule"}
	}

	if top == nil {
		if aiAvailable {
			return domain.Decision{Route: domain.RouteAI, Reason: "no rule candidate; ask AI"}
		}
		return domain.Decision{Route: domain.RouteManual, Reason: "no rule candidate and AI unavailable"}
	}

	if top.Score >= policy.DirectRuleThreshold {
		return domain.Decision{
			Route:     domain.RouteDirectRule,
			Reason:    fmt.Sprintf("score %.2f >= direct threshold %.2f", top.Score, policy.DirectRuleThreshold),
			Candidate: top,
		}
	}

	if aiAvailable {
		// Both branches route to AI. The threshold only changes the stated
		// reason; keep the split so run logs distinguish arbitration from
		// plain low-confidence escalation.
		if top.Score >= policy.AIRequiredThreshold {
			return domain.Decision{
				Route:     domain.RouteAI,
				Reason:    fmt.Sprintf("score %.2f in AI arbitration band", top.Score),
				Candidate: top,
			}
		}
		return domain.Decision{
			Route:     domain.RouteAI,
			Reason:    fmt.Sprintf("score %.2f below threshold; still try AI", top.Score),
			Candidate: top,
		}
	}

	return domain.Decision{
		Route:     domain.RouteRuleFallback,
		Reason:    fmt.Sprintf("AI unavailable; fallback to rule %s", top.RuleID),
		Candidate: top,
	}
}
