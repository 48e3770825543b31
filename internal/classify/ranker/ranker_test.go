package ranker

import (
	"math"
	"testing"

	"github.com/vietddude/starsort/internal/core/domain"
	"github.com/vietddude/starsort/internal/core/taxonomy"
)

func testTaxonomy() *taxonomy.Taxonomy {
	return taxonomy.New(
		[]taxonomy.Category{
			{Name: "devops-infra", Subcategories: []string{"containers", "other"}},
			{Name: "developer-tools", Subcategories: []string{"cli", "other"}},
		},
		nil,
		[]taxonomy.TagDef{
			{ID: "kubernetes", Name: "Kubernetes"},
			{ID: "cli-tool", Name: "CLI tool"},
		},
	)
}

func repo(description string, topics ...string) *domain.Repo {
	return &domain.Repo{
		FullName:    "acme/widget",
		Name:        "widget",
		Description: description,
		Topics:      topics,
	}
}

func TestHaystackWordBoundary(t *testing.T) {
	h := BuildHaystack(repo("a django web framework"))

	if h.Contains("go") {
		t.Error("'go' must not match inside 'django'")
	}
	if !h.Contains("django") {
		t.Error("expected 'django' to match")
	}
	if !h.Contains("web framework") {
		t.Error("expected phrase match")
	}

	h = BuildHaystack(repo("written in go"))
	if !h.Contains("go") {
		t.Error("expected standalone 'go' to match")
	}
}

func TestHaystackSubstringForNonWordTokens(t *testing.T) {
	h := BuildHaystack(repo("c++ bindings (v2)"))
	if !h.Contains("c++ bindings (v2") {
		t.Error("non word-like keywords should use plain substring matching")
	}
}

func TestRankEligibility(t *testing.T) {
	tax := testTaxonomy()
	rules := []domain.Rule{
		{
			RuleID:          "k8s",
			MustKeywords:    []string{"kubernetes"},
			ShouldKeywords:  []string{"operator", "helm"},
			ExcludeKeywords: []string{"awesome list"},
			Category:        "devops-infra",
			Subcategory:     "containers",
			Priority:        5,
		},
		{
			RuleID:         "cli",
			ShouldKeywords: []string{"terminal", "tui"},
			Category:       "developer-tools",
			Subcategory:    "cli",
		},
	}

	// Excluded keyword disqualifies even when everything else matches.
	got := Rank(repo("awesome list of kubernetes operator tools"), rules, tax)
	if len(got) != 0 {
		t.Fatalf("expected no candidates, got %d", len(got))
	}

	// Missing a required keyword disqualifies.
	got = Rank(repo("an operator sdk"), rules, tax)
	if len(got) != 0 {
		t.Fatalf("expected no candidates without required keyword, got %d", len(got))
	}

	// A rule with only optional keywords needs at least one hit.
	got = Rank(repo("kubernetes operator"), rules, tax)
	if len(got) != 1 || got[0].RuleID != "k8s" {
		t.Fatalf("expected only k8s candidate, got %+v", got)
	}
}

func TestRankScore(t *testing.T) {
	tax := testTaxonomy()
	rule := domain.Rule{
		RuleID:         "k8s",
		MustKeywords:   []string{"kubernetes"},
		ShouldKeywords: []string{"operator", "helm", "crd", "controller"},
		Category:       "devops-infra",
		Subcategory:    "containers",
		Priority:       5,
	}

	got := Rank(repo("kubernetes operator with helm charts"), []domain.Rule{rule}, tax)
	if len(got) != 1 {
		t.Fatalf("expected one candidate, got %d", len(got))
	}

	// 0.55 (required) + 0.35*2/4 (optional) + min(0.10, 5*0.02) (priority)
	want := 0.55 + 0.175 + 0.10
	if math.Abs(got[0].Score-want) > 1e-9 {
		t.Errorf("score = %v, want %v", got[0].Score, want)
	}
	if len(got[0].MustHits) != 1 || len(got[0].ShouldHits) != 2 {
		t.Errorf("hits = %v / %v", got[0].MustHits, got[0].ShouldHits)
	}
}

func TestRankScoreFlatWithoutOptional(t *testing.T) {
	tax := testTaxonomy()
	rule := domain.Rule{
		RuleID:       "only-must",
		MustKeywords: []string{"terminal"},
		Category:     "developer-tools",
		Subcategory:  "cli",
	}

	got := Rank(repo("a terminal emulator"), []domain.Rule{rule}, tax)
	if len(got) != 1 {
		t.Fatalf("expected one candidate, got %d", len(got))
	}
	// 0.55 + flat 0.20, priority 0.
	if math.Abs(got[0].Score-0.75) > 1e-9 {
		t.Errorf("score = %v, want 0.75", got[0].Score)
	}
}

func TestRankNegativePriorityIgnored(t *testing.T) {
	tax := testTaxonomy()
	rule := domain.Rule{
		RuleID:       "neg",
		MustKeywords: []string{"terminal"},
		Category:     "developer-tools",
		Subcategory:  "cli",
		Priority:     -3,
	}

	got := Rank(repo("a terminal emulator"), []domain.Rule{rule}, tax)
	if len(got) != 1 {
		t.Fatalf("expected one candidate, got %d", len(got))
	}
	if math.Abs(got[0].Score-0.75) > 1e-9 {
		t.Errorf("negative priority must not reduce score, got %v", got[0].Score)
	}
}

func TestRankOrderingDeterministic(t *testing.T) {
	tax := testTaxonomy()
	rules := []domain.Rule{
		{RuleID: "b", MustKeywords: []string{"terminal"}, Category: "developer-tools", Subcategory: "cli"},
		{RuleID: "a", MustKeywords: []string{"terminal"}, Category: "developer-tools", Subcategory: "cli"},
		{RuleID: "high", MustKeywords: []string{"terminal"}, Category: "developer-tools", Subcategory: "cli", Priority: 2},
	}

	got := Rank(repo("a terminal emulator"), rules, tax)
	if len(got) != 3 {
		t.Fatalf("expected three candidates, got %d", len(got))
	}
	if got[0].RuleID != "high" {
		t.Errorf("highest priority should win, got %s", got[0].RuleID)
	}
	if got[1].RuleID != "b" || got[2].RuleID != "a" {
		t.Errorf("equal candidates must tie-break by descending rule id, got %s, %s", got[1].RuleID, got[2].RuleID)
	}
}

func TestRankTieBreakDescendingRuleID(t *testing.T) {
	tax := testTaxonomy()
	rules := []domain.Rule{
		{RuleID: "alpha", MustKeywords: []string{"terminal"}, Category: "developer-tools", Subcategory: "cli"},
		{RuleID: "beta", MustKeywords: []string{"terminal"}, Category: "developer-tools", Subcategory: "cli"},
	}

	got := Rank(repo("a terminal emulator"), rules, tax)
	if len(got) != 2 {
		t.Fatalf("expected two candidates, got %d", len(got))
	}
	if got[0].RuleID != "beta" || got[1].RuleID != "alpha" {
		t.Errorf("equal-score rules must rank by descending rule id, got %s, %s", got[0].RuleID, got[1].RuleID)
	}
}

func TestRankNormalizesTagIDs(t *testing.T) {
	tax := testTaxonomy()
	rule := domain.Rule{
		RuleID:       "k8s",
		MustKeywords: []string{"kubernetes"},
		Category:     "devops-infra",
		Subcategory:  "containers",
		TagIDs:       []string{"kubernetes", "Kubernetes", "bogus-tag"},
	}

	got := Rank(repo("kubernetes operator"), []domain.Rule{rule}, tax)
	if len(got) != 1 {
		t.Fatalf("expected one candidate, got %d", len(got))
	}
	if len(got[0].TagIDs) != 1 || got[0].TagIDs[0] != "kubernetes" {
		t.Errorf("tag ids should be deduplicated and validated, got %v", got[0].TagIDs)
	}
}

func TestRankResolvesTagNamesToIDs(t *testing.T) {
	tax := testTaxonomy()
	rule := domain.Rule{
		RuleID:       "cli",
		MustKeywords: []string{"terminal"},
		Category:     "developer-tools",
		Subcategory:  "cli",
		Tags:         []string{"CLI tool", "Kubernetes"},
	}

	got := Rank(repo("a terminal emulator"), []domain.Rule{rule}, tax)
	if len(got) != 1 {
		t.Fatalf("expected one candidate, got %d", len(got))
	}
	want := []string{"cli-tool", "kubernetes"}
	if len(got[0].TagIDs) != len(want) {
		t.Fatalf("tag ids = %v, want %v", got[0].TagIDs, want)
	}
	for i, id := range want {
		if got[0].TagIDs[i] != id {
			t.Errorf("tag ids[%d] = %q, want %q", i, got[0].TagIDs[i], id)
		}
	}
}
