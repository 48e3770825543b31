package domain

// ClassifyMode selects which classification sources a run may use.
type ClassifyMode string

const (
	ModeDefault   ClassifyMode = ""
	ModeAIOnly    ClassifyMode = "ai_only"
	ModeRulesOnly ClassifyMode = "rules_only"
)

// Route is the decision outcome selecting which source classifies a repository.
type Route string

const (
	RouteDirectRule   Route = "direct_rule"
	RouteAI           Route = "ai"
	RouteRuleFallback Route = "rule_fallback"
	RouteManual       Route = "manual"
	RouteSkip         Route = "skip"
)

// Source identifies what produced a persisted classification.
type Source string

const (
	SourceRules        Source = "rules"
	SourceAI           Source = "ai"
	SourceRuleFallback Source = "rules_fallback"
	SourceManual       Source = "manual_review"
)

// Decision is the ephemeral result of the routing policy for one repository.
type Decision struct {
	Route     Route
	Reason    string
	Candidate *RuleCandidate
}

// Classification is a validated classification result. Category, subcategory
// and tags have already been clamped to the taxonomy's allowed set.
type Classification struct {
	Category    string   `json:"category"`
	Subcategory string   `json:"subcategory"`
	Tags        []string `json:"tags"`
	TagIDs      []string `json:"tag_ids"`
	Confidence  float64  `json:"confidence"`
	Summary     string   `json:"summary,omitempty"`
	Keywords    []string `json:"keywords,omitempty"`
	Reason      string   `json:"reason,omitempty"`
	Provider    string   `json:"provider,omitempty"`
	Model       string   `json:"model,omitempty"`
}

// Outcome is the final product of classifying one repository, with provenance
// and the ranked candidate list retained for audit.
type Outcome struct {
	Result     Classification
	Source     Source
	Reason     string
	Candidates []RuleCandidate
}

// ClassificationUpdate is the persistence payload for one classified repository.
type ClassificationUpdate struct {
	FullName       string
	Category       string
	Subcategory    string
	Confidence     float64
	Tags           []string
	TagIDs         []string
	Provider       string
	Model          string
	Summary        string
	Keywords       []string
	Reason         string
	DecisionSource Source
	RuleCandidates []RuleCandidate
}
