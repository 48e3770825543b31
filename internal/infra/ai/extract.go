package ai

import (
	"encoding/json"
	"strings"
)

// ExtractJSONObject pulls a JSON object out of model output that may be
// wrapped in a code fence or interleaved with prose. It tries a direct parse,
// then the first fenced block, then the outermost brace-delimited substring.
// Returns nil when all three fail.
func ExtractJSONObject(text string) map[string]any {
	candidate := unfence(text)
	if candidate == "" {
		return nil
	}

	var obj map[string]any
	if err := json.Unmarshal([]byte(candidate), &obj); err == nil {
		return obj
	}

	start := strings.Index(candidate, "{")
	end := strings.LastIndex(candidate, "}")
	if start == -1 || end == -1 || end <= start {
		return nil
	}
	if err := json.Unmarshal([]byte(candidate[start:end+1]), &obj); err != nil {
		return nil
	}
	return obj
}

// ExtractJSONArray is the batch-mode counterpart of ExtractJSONObject.
func ExtractJSONArray(text string) []any {
	candidate := unfence(text)
	if candidate == "" {
		return nil
	}

	var arr []any
	if err := json.Unmarshal([]byte(candidate), &arr); err == nil {
		return arr
	}

	start := strings.Index(candidate, "[")
	end := strings.LastIndex(candidate, "]")
	if start == -1 || end == -1 || end <= start {
		return nil
	}
	if err := json.Unmarshal([]byte(candidate[start:end+1]), &arr); err != nil {
		return nil
	}
	return arr
}

func unfence(text string) string {
	candidate := strings.TrimSpace(text)
	if strings.HasPrefix(candidate, "```") {
		parts := strings.Split(candidate, "```")
		if len(parts) >= 3 {
			inner := strings.TrimSpace(parts[1])
			// Strip a language hint like "json" on the fence line.
			if idx := strings.IndexAny(inner, "\n"); idx != -1 {
				first := strings.TrimSpace(inner[:idx])
				if first != "" && !strings.ContainsAny(first, "{}[]") {
					inner = strings.TrimSpace(inner[idx+1:])
				}
			}
			candidate = inner
		}
	}
	return candidate
}
