package tools

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
)

// Models produce almost-JSON often enough that a hard parse failure would
// cripple tool calling. These patterns fix the two most common defects:
// single-quoted strings and bare object keys.
var (
	singleQuoted = regexp.MustCompile(`'([^']*)'`)
	bareKeys     = regexp.MustCompile(`([{,]\s*)([A-Za-z_][A-Za-z0-9_]*)(\s*:)`)
)

// ParseArguments decodes a tool call's raw arguments leniently. It never
// fails: arguments that resist strict parsing go through a sanitize pass,
// and anything still unparseable becomes {"text": <raw>} so the tool at
// least sees the input. Every degradation is reported as a warning.
func ParseArguments(raw string) (map[string]any, []string) {
	var warnings []string

	raw = strings.TrimSpace(raw)
	if raw == "" {
		return map[string]any{}, nil
	}

	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err == nil {
		return args, nil
	}

	sanitized := sanitizeJSON(raw)
	if sanitized != raw {
		if err := json.Unmarshal([]byte(sanitized), &args); err == nil {
			warnings = append(warnings, "arguments required sanitization before parsing")
			return args, warnings
		}
	}

	warnings = append(warnings, fmt.Sprintf("arguments are not valid JSON; passing raw input as text: %.120s", raw))
	return map[string]any{"text": raw}, warnings
}

// sanitizeJSON repairs common model-generated JSON defects.
func sanitizeJSON(raw string) string {
	fixed := bareKeys.ReplaceAllString(raw, `$1"$2"$3`)
	fixed = singleQuoted.ReplaceAllString(fixed, `"$1"`)
	return fixed
}

// Indicator phrases tools use to say they found nothing. Matched
// case-insensitively against the head of the result.
var emptyIndicators = []string{
	"no results",
	"not found",
	"empty",
	"no notes found",
	"0 results",
}

// DefaultIsEmptyResult is the shared heuristic for semantically empty
// tool results: an empty payload, a top-level results array with no
// entries, a zero count field, or a no-results phrase near the start.
func DefaultIsEmptyResult(result string) bool {
	trimmed := strings.TrimSpace(result)
	if trimmed == "" || trimmed == "{}" || trimmed == "[]" || trimmed == "null" {
		return true
	}

	if gjson.Valid(trimmed) {
		parsed := gjson.Parse(trimmed)
		if parsed.IsArray() && len(parsed.Array()) == 0 {
			return true
		}
		if results := parsed.Get("results"); results.Exists() && results.IsArray() && len(results.Array()) == 0 {
			return true
		}
		if count := parsed.Get("count"); count.Exists() && count.Int() == 0 {
			return true
		}
	}

	head := strings.ToLower(trimmed)
	if len(head) > 200 {
		head = head[:200]
	}
	for _, indicator := range emptyIndicators {
		if strings.Contains(head, indicator) {
			return true
		}
	}
	return false
}
