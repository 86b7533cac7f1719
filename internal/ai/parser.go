package ai

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var thinkTagRegex = regexp.MustCompile(`(?s)<think>.*?</think>`)

// StripThinkTags removes DeepSeek R1 reasoning tags from the response.
func StripThinkTags(text string) string {
	return strings.TrimSpace(thinkTagRegex.ReplaceAllString(text, ""))
}

// ParseVerdict extracts the verdict object from a model reply.
// Handles: bare JSON, markdown code fences, JSON embedded in prose.
func ParseVerdict(text string) (Verdict, error) {
	cleaned := StripThinkTags(text)

	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	var v Verdict
	if cleaned == "" {
		return v, nil
	}
	if err := json.Unmarshal([]byte(cleaned), &v); err == nil {
		return v, nil
	}

	jsonStart := strings.Index(cleaned, "{")
	jsonEnd := strings.LastIndex(cleaned, "}")
	if jsonStart >= 0 && jsonEnd > jsonStart {
		if err := json.Unmarshal([]byte(cleaned[jsonStart:jsonEnd+1]), &v); err == nil {
			return v, nil
		}
	}

	// a bare index array is accepted too
	var idx []int
	jsonStart = strings.Index(cleaned, "[")
	jsonEnd = strings.LastIndex(cleaned, "]")
	if jsonStart >= 0 && jsonEnd > jsonStart {
		if err := json.Unmarshal([]byte(cleaned[jsonStart:jsonEnd+1]), &idx); err == nil {
			return Verdict{HighImpact: idx}, nil
		}
	}

	return Verdict{}, fmt.Errorf("failed to parse AI response as JSON: %.200s", cleaned)
}
