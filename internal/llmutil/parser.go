package llmutil

import (
	"fmt"
	"regexp"
	"strings"

	json "github.com/json-iterator/go"
)

var (
	// Regex definitions use \x60 (hex representation) for backticks because Go raw strings cannot contain backticks.

	// jsonObjectRegex extracts a JSON object if the response is wrapped in markdown.
	jsonObjectRegex = regexp.MustCompile("(?s)\x60\x60\x60(?:json)?\\s*({.*})\\s*\x60\x60\x60")
	// jsonArrayRegex extracts a JSON array if the response is wrapped in markdown.
	jsonArrayRegex = regexp.MustCompile("(?s)\x60\x60\x60(?:json)?\\s*(\\[.*\\])\\s*\x60\x60\x60")
)

// ParseJSONResponse parses a model response into a target Go type. Models
// regularly wrap their JSON in markdown fences or conversational filler, so
// the document is located before unmarshaling.
func ParseJSONResponse[T any](response string) (*T, error) {
	jsonString := ExtractJSON(response)
	if jsonString == "" {
		return nil, fmt.Errorf("could not find any JSON in the response")
	}

	var parsed T
	if err := json.Unmarshal([]byte(jsonString), &parsed); err != nil {
		return nil, fmt.Errorf("failed to unmarshal extracted JSON: %w", err)
	}
	return &parsed, nil
}

// ExtractJSON returns the JSON document embedded in a response, or "" when
// none is present. Markdown fences win over bare bracket scanning.
func ExtractJSON(response string) string {
	response = strings.TrimSpace(response)

	objIdx := strings.Index(response, "{")
	arrIdx := strings.Index(response, "[")
	// An array whose elements are objects must be parsed as the array, so
	// whichever bracket opens first decides the document shape.
	preferArray := arrIdx != -1 && (objIdx == -1 || arrIdx < objIdx)

	if strings.HasPrefix(response, "\x60\x60\x60") {
		primary, secondary := jsonObjectRegex, jsonArrayRegex
		if preferArray {
			primary, secondary = jsonArrayRegex, jsonObjectRegex
		}
		matches := primary.FindStringSubmatch(response)
		if len(matches) <= 1 {
			matches = secondary.FindStringSubmatch(response)
		}
		if len(matches) > 1 {
			return strings.TrimSpace(matches[1])
		}
	}

	// Bare or conversational responses: take the outermost bracket pair.
	if preferArray {
		if last := strings.LastIndex(response, "]"); last > arrIdx {
			return response[arrIdx : last+1]
		}
		return ""
	}
	if objIdx != -1 {
		if last := strings.LastIndex(response, "}"); last > objIdx {
			return response[objIdx : last+1]
		}
	}
	return ""
}
