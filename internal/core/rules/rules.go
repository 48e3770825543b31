// Package rules loads the keyword rule set used by the candidate ranker.
package rules

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/vietddude/starsort/internal/core/domain"
)

type ruleFile struct {
	Rules []domain.Rule `json:"rules"`
}

// Load parses the rule set from inline JSON, falling back to a file path.
// Rules are configuration: an empty or unparseable source yields an empty
// set rather than an error, matching how the service treats a missing rule
// file (AI-only operation).
func Load(inline string, path string) []domain.Rule {
	if inline != "" {
		if parsed := parse([]byte(inline)); len(parsed) > 0 {
			return parsed
		}
	}
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	return parse(data)
}

// LoadFile parses rules from a file, surfacing errors. Used by the CLI where
// a bad path should be reported instead of silently ignored.
func LoadFile(path string) ([]domain.Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}
	var parsed ruleFile
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse rules file: %w", err)
	}
	return parsed.Rules, nil
}

func parse(data []byte) []domain.Rule {
	var parsed ruleFile
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil
	}
	return parsed.Rules
}
