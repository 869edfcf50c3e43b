package base

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ReviewOutput is the JSON document agents are instructed to emit
type ReviewOutput struct {
	Summary  string    `json:"summary"`
	Findings []Finding `json:"findings"`
}

// ExtractJSON extracts JSON from a string that may contain other text,
// such as markdown fences or prose around the document
func ExtractJSON(content string) (string, error) {
	// Find the first { and last }
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")

	if start == -1 || end == -1 || end <= start {
		return "", fmt.Errorf("no valid JSON found in content")
	}

	return content[start : end+1], nil
}

// ParseReviewOutput extracts and parses the review JSON from raw agent output.
// Finding severities are normalized to lower case.
func ParseReviewOutput(content string) (*ReviewOutput, error) {
	jsonStr, err := ExtractJSON(content)
	if err != nil {
		return nil, err
	}

	var out ReviewOutput
	if err := json.Unmarshal([]byte(jsonStr), &out); err != nil {
		return nil, fmt.Errorf("failed to parse review output: %w", err)
	}

	for i := range out.Findings {
		out.Findings[i].Severity = strings.ToLower(strings.TrimSpace(out.Findings[i].Severity))
	}

	return &out, nil
}

// IsModelError checks if the error or CLI output indicates a model
// availability problem, which makes fallback models worth trying
func IsModelError(err error, output string) bool {
	if err == nil {
		return false
	}

	keywords := []string{
		"invalid model",
		"model not found",
		"model unavailable",
		"model not available",
		"unknown model",
		"unsupported model",
		"model error",
	}

	errStr := strings.ToLower(err.Error())
	outStr := strings.ToLower(output)
	for _, keyword := range keywords {
		if strings.Contains(errStr, keyword) || strings.Contains(outStr, keyword) {
			return true
		}
	}

	return false
}
