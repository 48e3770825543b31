package ai

import (
	"encoding/json"
	"regexp"
	"strings"
)

// Keys whose values are masked wherever they appear in a JSON payload.
var sensitiveKeys = map[string]struct{}{
	"api_key":       {},
	"apikey":        {},
	"authorization": {},
	"access_token":  {},
	"token":         {},
	"secret":        {},
	"password":      {},
	"x-api-key":     {},
}

var (
	bearerPattern = regexp.MustCompile(`(?i)(authorization\s*[:=]\s*bearer\s+)[^\s"']+`)
	apiKeyHeader  = regexp.MustCompile(`(?i)(x-api-key\s*[:=]\s*)[^\s"']+`)
	apiKeyField   = regexp.MustCompile(`(?i)(api_key\s*[:=]\s*)[^\s"']+`)
	skKeyPattern  = regexp.MustCompile(`\bsk-[A-Za-z0-9\-]{8,}\b`)
)

func maskValue(value any) any {
	if value == nil {
		return nil
	}
	if s, ok := value.(string); ok {
		if len(s) <= 4 {
			return "****"
		}
		return s[:2] + "***" + s[len(s)-2:]
	}
	return "***"
}

func maskPayload(payload any) any {
	switch v := payload.(type) {
	case map[string]any:
		masked := make(map[string]any, len(v))
		for key, value := range v {
			if _, sensitive := sensitiveKeys[strings.ToLower(key)]; sensitive {
				masked[key] = maskValue(value)
			} else {
				masked[key] = maskPayload(value)
			}
		}
		return masked
	case []any:
		masked := make([]any, len(v))
		for i, item := range v {
			masked[i] = maskPayload(item)
		}
		return masked
	default:
		return payload
	}
}

// MaskSecrets redacts bearer tokens, API key headers and well-known key
// prefixes from free text. Used on anything that ends up in a log line or an
// error message.
func MaskSecrets(text string) string {
	masked := bearerPattern.ReplaceAllString(text, "${1}***")
	masked = apiKeyHeader.ReplaceAllString(masked, "${1}***")
	masked = apiKeyField.ReplaceAllString(masked, "${1}***")
	masked = skKeyPattern.ReplaceAllString(masked, "sk-***")
	return masked
}

// sanitizeResponseBody masks secrets in a response body before it is attached
// to an error. JSON bodies are masked structurally, anything else textually.
func sanitizeResponseBody(text string) string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return ""
	}
	var parsed any
	if err := json.Unmarshal([]byte(trimmed), &parsed); err != nil {
		return MaskSecrets(trimmed)
	}
	masked, err := json.Marshal(maskPayload(parsed))
	if err != nil {
		return MaskSecrets(trimmed)
	}
	return string(masked)
}

func truncateDetail(detail string) string {
	if len(detail) > 800 {
		return detail[:800] + "..."
	}
	return detail
}
