/**
 * Structured Output Extraction
 *
 * Vision-language models wrap JSON in markdown fences, preambles, or
 * trailing commentary. ExtractJSON recovers the payload from:
 * - fenced code blocks (```json ... ``` or bare ``` ... ```)
 * - a bare JSON object embedded in prose (outermost-brace match)
 * Anything else is a parse failure handled by the caller.
 */

package processor

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ExtractJSON locates and unmarshals the first JSON object in free-form
// model text.
func ExtractJSON(raw string, out interface{}) error {
	candidate := jsonCandidate(raw)
	if candidate == "" {
		return fmt.Errorf("no JSON object found in response")
	}

	if err := json.Unmarshal([]byte(candidate), out); err != nil {
		return fmt.Errorf("failed to unmarshal extracted JSON: %w", err)
	}
	return nil
}

// jsonCandidate returns the best JSON substring of raw, or "".
func jsonCandidate(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	// Fenced code block first: models that fence usually fence the whole
	// payload.
	if fenced := stripFence(raw); fenced != "" {
		if obj := outermostObject(fenced); obj != "" {
			return obj
		}
	}

	return outermostObject(raw)
}

// stripFence extracts the body of the first markdown code fence, tolerating
// a language tag after the opening backticks.
func stripFence(raw string) string {
	start := strings.Index(raw, "```")
	if start < 0 {
		return ""
	}

	body := raw[start+3:]
	// Drop the language tag line ("json", "JSON", ...).
	if nl := strings.IndexByte(body, '\n'); nl >= 0 {
		first := strings.TrimSpace(body[:nl])
		if first != "" && !strings.ContainsAny(first, "{}") {
			body = body[nl+1:]
		}
	}

	end := strings.Index(body, "```")
	if end < 0 {
		return strings.TrimSpace(body)
	}
	return strings.TrimSpace(body[:end])
}

// outermostObject returns the substring spanning the first top-level balanced
// {...} in s, or "". Braces inside JSON strings are skipped.
func outermostObject(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(s); i++ {
		c := s[i]

		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}

	return ""
}
