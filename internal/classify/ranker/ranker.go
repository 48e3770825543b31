// Package ranker scores keyword rules against a repository's text features
// and produces a deterministically ordered candidate list.
package ranker

import (
	"regexp"
	"sort"
	"strings"

	"github.com/vietddude/starsort/internal/core/domain"
	"github.com/vietddude/starsort/internal/core/taxonomy"
)

const (
	mustWeight     = 0.55
	shouldWeight   = 0.35
	shouldFlat     = 0.20
	priorityWeight = 0.02
	priorityCap    = 0.10
)

// wordLike tokens get a word-boundary match; anything else (CJK, unicode
// punctuation) falls back to plain substring matching.
var wordLike = regexp.MustCompile(`^[a-z0-9_\- ./+]+$`)

// Haystack is the lower-cased searchable text of one repository.
type Haystack struct {
	text string
}

// BuildHaystack joins a repository's text fields into one lower-cased
// search target.
func BuildHaystack(repo *domain.Repo) Haystack {
	parts := []string{
		repo.Name,
		repo.FullName,
		repo.Description,
		repo.Language,
		strings.Join(repo.Topics, " "),
		repo.ReadmeSummary,
	}
	return Haystack{text: strings.ToLower(strings.Join(parts, " "))}
}

func isWordChar(r byte) bool {
	return (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
}

// Contains reports whether the keyword matches the haystack. Word-like
// keywords must not be embedded inside a longer alphanumeric run, so "go"
// never matches "django".
func (h Haystack) Contains(keyword string) bool {
	kw := strings.ToLower(strings.TrimSpace(keyword))
	if kw == "" {
		return false
	}
	if !wordLike.MatchString(kw) {
		return strings.Contains(h.text, kw)
	}

	for from := 0; ; {
		i := strings.Index(h.text[from:], kw)
		if i < 0 {
			return false
		}
		start := from + i
		end := start + len(kw)
		beforeOK := start == 0 || !isWordChar(h.text[start-1])
		afterOK := end == len(h.text) || !isWordChar(h.text[end])
		if beforeOK && afterOK {
			return true
		}
		from = start + 1
	}
}

func matchAll(h Haystack, keywords []string) ([]string, bool) {
	hits := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		if !h.Contains(kw) {
			return nil, false
		}
		hits = append(hits, kw)
	}
	return hits, true
}

func matchAny(h Haystack, keywords []string) []string {
	var hits []string
	for _, kw := range keywords {
		if h.Contains(kw) {
			hits = append(hits, kw)
		}
	}
	return hits
}

func score(rule domain.Rule, shouldHits int) float64 {
	s := 0.0
	if len(rule.MustKeywords) > 0 {
		s += mustWeight
	}
	if len(rule.ShouldKeywords) > 0 {
		fraction := float64(shouldHits) / float64(len(rule.ShouldKeywords))
		s += min(shouldWeight, shouldWeight*fraction)
	} else {
		s += shouldFlat
	}
	s += min(priorityCap, float64(max(0, rule.Priority))*priorityWeight)
	return min(1.0, max(0.0, s))
}

func evidence(label string, hits []string) string {
	shown := hits
	if len(shown) > 4 {
		shown = shown[:4]
	}
	return label + "=" + strings.Join(shown, ",")
}

// Rank evaluates every rule against the repository and returns eligible
// candidates sorted descending by (score, priority, required hits, optional
// hits) with rule id as the final deterministic tie break.
func Rank(repo *domain.Repo, rules []domain.Rule, tax *taxonomy.Taxonomy) []domain.RuleCandidate {
	haystack := BuildHaystack(repo)

	var candidates []domain.RuleCandidate
	for _, rule := range rules {
		if len(matchAny(haystack, rule.ExcludeKeywords)) > 0 {
			continue
		}

		mustHits, ok := matchAll(haystack, rule.MustKeywords)
		if !ok {
			continue
		}
		shouldHits := matchAny(haystack, rule.ShouldKeywords)
		if len(rule.MustKeywords) == 0 && len(shouldHits) == 0 {
			continue
		}

		// Rules may declare tags by display name; both pools resolve to
		// canonical ids.
		rawTags := make([]string, 0, len(rule.TagIDs)+len(rule.Tags))
		rawTags = append(rawTags, rule.TagIDs...)
		rawTags = append(rawTags, rule.Tags...)
		tagIDs, _ := tax.NormalizeTagIDs(rawTags)

		var ev []string
		if len(mustHits) > 0 {
			ev = append(ev, evidence("must", mustHits))
		}
		if len(shouldHits) > 0 {
			ev = append(ev, evidence("should", shouldHits))
		}

		candidates = append(candidates, domain.RuleCandidate{
			RuleID:      rule.RuleID,
			Category:    rule.Category,
			Subcategory: rule.Subcategory,
			Score:       score(rule, len(shouldHits)),
			Priority:    rule.Priority,
			TagIDs:      tagIDs,
			Tags:        rule.Tags,
			MustHits:    mustHits,
			ShouldHits:  shouldHits,
			Evidence:    ev,
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		if len(a.MustHits) != len(b.MustHits) {
			return len(a.MustHits) > len(b.MustHits)
		}
		if len(a.ShouldHits) != len(b.ShouldHits) {
			return len(a.ShouldHits) > len(b.ShouldHits)
		}
		return a.RuleID > b.RuleID
	})
	return candidates
}
