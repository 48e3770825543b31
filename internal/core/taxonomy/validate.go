package taxonomy

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/vietddude/starsort/internal/core/domain"
)

const (
	maxSummaryChars = 200
	maxKeywords     = 5
)

// Validate clamps an untrusted classification result (model output or rule
// candidate) to the taxonomy: unknown categories fall back to
// uncategorized/other, tags are filtered to the allowed pool, tag ids are
// normalized and deduplicated, and confidence is clamped to [0,1].
func (t *Taxonomy) Validate(result map[string]any) domain.Classification {
	category, _ := result["category"].(string)
	subcategory, _ := result["subcategory"].(string)

	category, subcategory = t.ClampPair(category, subcategory)

	tags := stringList(result["tags"])
	if len(t.tagSet) > 0 {
		filtered := tags[:0]
		for _, tag := range tags {
			if _, ok := t.tagSet[tag]; ok {
				filtered = append(filtered, tag)
			}
		}
		tags = filtered
	}

	tagIDs := stringList(result["tag_ids"])
	if len(tagIDs) == 0 {
		tagIDs = tags
	}
	normalizedIDs, _ := t.NormalizeTagIDs(tagIDs)

	confidence := toFloat(result["confidence"])
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}

	validated := domain.Classification{
		Category:    category,
		Subcategory: subcategory,
		Tags:        tags,
		TagIDs:      normalizedIDs,
		Confidence:  confidence,
	}
	if reason, _ := result["reason"].(string); reason != "" {
		validated.Reason = reason
	}
	if summary, _ := result["summary"].(string); summary != "" {
		summary = strings.TrimSpace(summary)
		if len(summary) > maxSummaryChars {
			summary = summary[:maxSummaryChars]
		}
		validated.Summary = summary
	}
	if keywords := stringList(result["keywords"]); len(keywords) > 0 {
		if len(keywords) > maxKeywords {
			keywords = keywords[:maxKeywords]
		}
		validated.Keywords = keywords
	}
	return validated
}

func contains(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}

func stringList(value any) []string {
	var out []string
	switch v := value.(type) {
	case []string:
		for _, item := range v {
			if item = strings.TrimSpace(item); item != "" {
				out = append(out, item)
			}
		}
	case []any:
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				continue
			}
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

func toFloat(value any) float64 {
	switch v := value.(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0
		}
		return f
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}
