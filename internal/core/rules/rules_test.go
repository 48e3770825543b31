package rules

import (
	"os"
	"path/filepath"
	"testing"
)

const sampleRules = `{
  "rules": [
    {
      "rule_id": "k8s",
      "must_keywords": ["kubernetes"],
      "should_keywords": ["operator"],
      "candidate_category": "devops-infra",
      "candidate_subcategory": "containers",
      "tag_ids": ["kubernetes"],
      "priority": 5
    }
  ]
}`

func TestLoadInlineTakesPrecedence(t *testing.T) {
	got := Load(sampleRules, "nonexistent.json")
	if len(got) != 1 || got[0].RuleID != "k8s" {
		t.Fatalf("got %+v", got)
	}
	if got[0].Category != "devops-infra" || got[0].Priority != 5 {
		t.Errorf("rule fields = %+v", got[0])
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.json")
	if err := os.WriteFile(path, []byte(sampleRules), 0o644); err != nil {
		t.Fatal(err)
	}

	got := Load("", path)
	if len(got) != 1 || got[0].RuleID != "k8s" {
		t.Fatalf("got %+v", got)
	}
}

func TestLoadLenientOnBadInput(t *testing.T) {
	if got := Load("not json", ""); got != nil {
		t.Errorf("bad inline should yield nil, got %v", got)
	}
	if got := Load("", "missing.json"); got != nil {
		t.Errorf("missing file should yield nil, got %v", got)
	}
	if got := Load("", ""); got != nil {
		t.Errorf("empty sources should yield nil, got %v", got)
	}
}

func TestLoadFileStrict(t *testing.T) {
	if _, err := LoadFile("missing.json"); err == nil {
		t.Error("LoadFile should surface missing files")
	}

	path := filepath.Join(t.TempDir(), "rules.json")
	if err := os.WriteFile(path, []byte("not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFile(path); err == nil {
		t.Error("LoadFile should surface parse errors")
	}
}
