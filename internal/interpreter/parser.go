// internal/interpreter/parser.go
package interpreter

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// Regex definitions use \x60 for backticks because Go raw strings cannot
// contain backticks.
var (
	// jsonObjectRegex extracts a JSON object wrapped in a markdown fence.
	jsonObjectRegex = regexp.MustCompile("(?s)\x60\x60\x60(?:json)?\\s*({.*})\\s*\x60\x60\x60")
	// jsonArrayRegex extracts a JSON array wrapped in a markdown fence.
	jsonArrayRegex = regexp.MustCompile("(?s)\x60\x60\x60(?:json)?\\s*(\\[.*\\])\\s*\x60\x60\x60")
)

// ParseJSONResponse parses an LLM response string into a target Go type.
// It tolerates the usual formatting sins: markdown code fences, conversational
// text around the payload, and minor JSON syntax damage (repaired via
// jsonrepair as a last resort).
func ParseJSONResponse[T any](response string) (*T, error) {
	response = strings.TrimSpace(response)
	candidate := extractJSONPayload(response)

	var result T
	if err := json.Unmarshal([]byte(candidate), &result); err == nil {
		return &result, nil
	}

	// The model produced something almost-JSON; try to repair it.
	repaired, repairErr := jsonrepair.JSONRepair(candidate)
	if repairErr != nil {
		return nil, fmt.Errorf("failed to parse LLM response as JSON (repair also failed: %v)", repairErr)
	}
	if err := json.Unmarshal([]byte(repaired), &result); err != nil {
		return nil, fmt.Errorf("failed to parse repaired LLM response: %w", err)
	}
	return &result, nil
}

// extractJSONPayload isolates the JSON object/array inside a raw response.
func extractJSONPayload(response string) string {
	isObject := strings.Contains(response, "{")
	isArray := strings.Contains(response, "[")

	// 1. Markdown fence wrapping (most common case).
	if strings.HasPrefix(response, "```") {
		var matches []string
		if isObject {
			matches = jsonObjectRegex.FindStringSubmatch(response)
		}
		if len(matches) <= 1 && isArray {
			matches = jsonArrayRegex.FindStringSubmatch(response)
		}
		if len(matches) > 1 {
			return matches[1]
		}
	}

	// 2. Structure embedded in conversational text.
	if (isObject || isArray) && !strings.HasPrefix(response, "{") && !strings.HasPrefix(response, "[") {
		if isObject {
			fb, lb := strings.Index(response, "{"), strings.LastIndex(response, "}")
			if fb != -1 && lb > fb {
				return response[fb : lb+1]
			}
		}
		if isArray {
			fb, lb := strings.Index(response, "["), strings.LastIndex(response, "]")
			if fb != -1 && lb > fb {
				return response[fb : lb+1]
			}
		}
	}

	return response
}
