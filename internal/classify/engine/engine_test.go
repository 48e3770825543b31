package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/vietddude/starsort/internal/classify/decision"
	"github.com/vietddude/starsort/internal/core/domain"
	"github.com/vietddude/starsort/internal/core/taxonomy"
)

type fakeAI struct {
	result domain.Classification
	err    error
	hints  []domain.RuleCandidate
	calls  int
}

func (f *fakeAI) ClassifyRepoWithRetry(
	ctx context.Context,
	repo *domain.Repo,
	hints []domain.RuleCandidate,
	tax *taxonomy.Taxonomy,
	retries int,
) (domain.Classification, error) {
	f.calls++
	f.hints = hints
	return f.result, f.err
}

func testTaxonomy() *taxonomy.Taxonomy {
	return taxonomy.New(
		[]taxonomy.Category{
			{Name: "devops-infra", Subcategories: []string{"containers", "other"}},
			{Name: "uncategorized", Subcategories: []string{"other"}},
		},
		nil,
		[]taxonomy.TagDef{{ID: "kubernetes", Name: "Kubernetes"}},
	)
}

func strongRule(id string, priority int) domain.Rule {
	return domain.Rule{
		RuleID:         id,
		MustKeywords:   []string{"kubernetes"},
		ShouldKeywords: []string{"operator"},
		Category:       "devops-infra",
		Subcategory:    "containers",
		TagIDs:         []string{"kubernetes"},
		Priority:       priority,
	}
}

func k8sRepo() *domain.Repo {
	return &domain.Repo{
		FullName:    "acme/k8s-op",
		Name:        "k8s-op",
		Description: "a kubernetes operator",
	}
}

func newEngine(rules []domain.Rule, mode domain.ClassifyMode) *Engine {
	return New(testTaxonomy(), rules, mode, decision.DefaultPolicy(), 2)
}

func TestClassifyDirectRule(t *testing.T) {
	// 0.55 + 0.35 + 0.10 = 1.0, above the direct threshold.
	eng := newEngine([]domain.Rule{strongRule("k8s", 5)}, domain.ModeDefault)
	ai := &fakeAI{}

	outcome, err := eng.Classify(context.Background(), k8sRepo(), ai)
	if err != nil {
		t.Fatalf("Classify failed: %v", err)
	}
	if outcome.Source != domain.SourceRules {
		t.Errorf("source = %s, want rules", outcome.Source)
	}
	if outcome.Reason != "rule:k8s" {
		t.Errorf("reason = %q, want rule:k8s", outcome.Reason)
	}
	if outcome.Result.Category != "devops-infra" {
		t.Errorf("category = %s", outcome.Result.Category)
	}
	if ai.calls != 0 {
		t.Error("direct rule route must not call AI")
	}
}

func TestClassifyAIRouteWithHints(t *testing.T) {
	// One optional hit of four keeps the score at 0.6375, under the
	// direct threshold, so the engine escalates to AI.
	rule := domain.Rule{
		RuleID:         "weak",
		MustKeywords:   []string{"kubernetes"},
		ShouldKeywords: []string{"operator", "helm", "crd", "controller"},
		Category:       "devops-infra",
		Subcategory:    "containers",
	}
	eng := newEngine([]domain.Rule{rule}, domain.ModeDefault)
	ai := &fakeAI{result: domain.Classification{
		Category: "devops-infra", Subcategory: "containers", Confidence: 0.8,
	}}

	outcome, err := eng.Classify(context.Background(), k8sRepo(), ai)
	if err != nil {
		t.Fatalf("Classify failed: %v", err)
	}
	if outcome.Source != domain.SourceAI {
		t.Errorf("source = %s, want ai", outcome.Source)
	}
	if ai.calls != 1 {
		t.Errorf("expected one AI call, got %d", ai.calls)
	}
	if len(ai.hints) != 1 || ai.hints[0].RuleID != "weak" {
		t.Errorf("expected rule candidate hints, got %+v", ai.hints)
	}
}

func TestClassifyAIFailureFallsBackToTopCandidate(t *testing.T) {
	rule := domain.Rule{
		RuleID:         "weak",
		MustKeywords:   []string{"kubernetes"},
		ShouldKeywords: []string{"operator", "helm", "crd", "controller"},
		Category:       "devops-infra",
		Subcategory:    "containers",
	}
	eng := newEngine([]domain.Rule{rule}, domain.ModeDefault)
	ai := &fakeAI{err: errors.New("provider timeout")}

	outcome, err := eng.Classify(context.Background(), k8sRepo(), ai)
	if err != nil {
		t.Fatalf("AI failure with a candidate must not surface an error, got %v", err)
	}
	if outcome.Source != domain.SourceRuleFallback {
		t.Errorf("source = %s, want rules_fallback", outcome.Source)
	}
	if outcome.Reason != "AI failed; fallback to top rule candidate" {
		t.Errorf("reason = %q", outcome.Reason)
	}
	if outcome.Result.Category != "devops-infra" {
		t.Errorf("category = %s", outcome.Result.Category)
	}
}

func TestClassifyAIFailureWithoutCandidatePropagates(t *testing.T) {
	eng := newEngine(nil, domain.ModeDefault)
	wantErr := errors.New("provider timeout")
	ai := &fakeAI{err: wantErr}

	_, err := eng.Classify(context.Background(), k8sRepo(), ai)
	if !errors.Is(err, wantErr) {
		t.Errorf("expected the AI error to propagate unchanged, got %v", err)
	}
}

func TestClassifyManualRoute(t *testing.T) {
	eng := newEngine(nil, domain.ModeDefault)

	outcome, err := eng.Classify(context.Background(), k8sRepo(), nil)
	if err != nil {
		t.Fatalf("Classify failed: %v", err)
	}
	if outcome.Source != domain.SourceManual {
		t.Errorf("source = %s, want manual_review", outcome.Source)
	}
	if outcome.Result.Category != taxonomy.FallbackCategory ||
		outcome.Result.Subcategory != taxonomy.FallbackSubcategory {
		t.Errorf("manual outcome = %s/%s", outcome.Result.Category, outcome.Result.Subcategory)
	}
	if outcome.Result.Confidence != 0 {
		t.Errorf("manual confidence = %v, want 0", outcome.Result.Confidence)
	}
}

func TestClassifySkipSurfacesError(t *testing.T) {
	eng := newEngine(nil, domain.ModeAIOnly)

	_, err := eng.Classify(context.Background(), k8sRepo(), nil)
	if err == nil {
		t.Fatal("skip route must surface as an error")
	}
}

func TestClassifyRulesOnlyIgnoresAI(t *testing.T) {
	eng := newEngine([]domain.Rule{strongRule("k8s", 0)}, domain.ModeRulesOnly)
	ai := &fakeAI{}

	outcome, err := eng.Classify(context.Background(), k8sRepo(), ai)
	if err != nil {
		t.Fatalf("Classify failed: %v", err)
	}
	if outcome.Source != domain.SourceRules {
		t.Errorf("source = %s, want rules", outcome.Source)
	}
	if ai.calls != 0 {
		t.Error("rules_only mode must not call AI")
	}
}

func TestClassifyClampsUnknownCategory(t *testing.T) {
	rule := domain.Rule{
		RuleID:       "bad-cat",
		MustKeywords: []string{"kubernetes"},
		Category:     "not-a-category",
		Subcategory:  "whatever",
		Priority:     10,
	}
	eng := newEngine([]domain.Rule{rule}, domain.ModeRulesOnly)

	outcome, err := eng.Classify(context.Background(), k8sRepo(), nil)
	if err != nil {
		t.Fatalf("Classify failed: %v", err)
	}
	if outcome.Result.Category != taxonomy.FallbackCategory {
		t.Errorf("unknown category must clamp to fallback, got %s", outcome.Result.Category)
	}
	if outcome.Result.Subcategory != taxonomy.FallbackSubcategory {
		t.Errorf("subcategory must clamp with its category, got %s", outcome.Result.Subcategory)
	}
}

func TestClassifyClampsUnknownSubcategory(t *testing.T) {
	rule := domain.Rule{
		RuleID:       "bad-sub",
		MustKeywords: []string{"kubernetes"},
		Category:     "devops-infra",
		Subcategory:  "not-a-subcategory",
		Priority:     10,
	}
	eng := newEngine([]domain.Rule{rule}, domain.ModeRulesOnly)

	outcome, err := eng.Classify(context.Background(), k8sRepo(), nil)
	if err != nil {
		t.Fatalf("Classify failed: %v", err)
	}
	if outcome.Result.Category != "devops-infra" {
		t.Errorf("valid category must survive, got %s", outcome.Result.Category)
	}
	if outcome.Result.Subcategory != "other" {
		t.Errorf("subcategory outside the category must clamp, got %q", outcome.Result.Subcategory)
	}
}
