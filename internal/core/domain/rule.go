package domain

// Rule is a configured keyword classifier. Rules are loaded once per run and
// never mutated while a run is in flight.
type Rule struct {
	RuleID          string   `json:"rule_id"`
	MustKeywords    []string `json:"must_keywords"`
	ShouldKeywords  []string `json:"should_keywords"`
	ExcludeKeywords []string `json:"exclude_keywords"`
	Category        string   `json:"candidate_category"`
	Subcategory     string   `json:"candidate_subcategory"`
	TagIDs          []string `json:"tag_ids"`
	Tags            []string `json:"tags"`
	Priority        int      `json:"priority"`
}

// RuleCandidate is one scored (repo, rule) pairing. Candidates exist only for
// the duration of a classification attempt; the top five survive into the
// persisted outcome for explainability.
type RuleCandidate struct {
	RuleID      string   `json:"rule_id"`
	Category    string   `json:"category"`
	Subcategory string   `json:"subcategory"`
	Score       float64  `json:"score"`
	Priority    int      `json:"priority"`
	TagIDs      []string `json:"tag_ids"`
	Tags        []string `json:"tags,omitempty"`
	MustHits    []string `json:"must_hits,omitempty"`
	ShouldHits  []string `json:"should_hits,omitempty"`
	Evidence    []string `json:"evidence"`
}
