// -----------------------------------------------------------------------
// Robust JSON extraction from LLM responses
// -----------------------------------------------------------------------

// Package jsonextract turns arbitrary model text into a parsed JSON object.
// Model output is the least reliable input in the system: responses arrive
// wrapped in markdown fences, prefixed with prose, concatenated with a second
// object, or truncated. Extract applies a cascade of repair strategies and
// stops at the first one that parses.
package jsonextract

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// UnparseableError is returned when every repair strategy fails. Preview
// carries the head and tail of the offending text; ArtifactPath points at the
// captured raw response, if the write succeeded.
type UnparseableError struct {
	Preview      string
	ArtifactPath string
}

func (e *UnparseableError) Error() string {
	return fmt.Sprintf("no parseable JSON object in response: %s", e.Preview)
}

// fencePattern matches a whole response wrapped in a markdown code fence,
// with or without a language hint.
var fencePattern = regexp.MustCompile("(?s)^\\s*```(?:json|JSON)?\\s*\\n?(.*?)\\n?\\s*```\\s*$")

// concatSeparators are the object boundaries seen when the model emits two
// JSON documents back to back.
var concatSeparators = []string{"}\n{", "}\r\n{", "} {", "}\n\n{"}

// shallowObjectPattern matches maximal {...} substrings with one level of
// balanced nesting, used by the aggressive fallback.
var shallowObjectPattern = regexp.MustCompile(`\{(?:[^{}]|\{[^{}]*\})*\}`)

// Extract parses raw model text into a JSON object. requiredKey is the
// top-level key the caller expects (e.g. "scenarios"); it disambiguates
// candidates in the aggressive fallback. debugDir, when non-empty, receives a
// timestamped artifact of the raw text on terminal failure.
//
// Deterministic on its input; the artifact write is the only side effect.
func Extract(raw, requiredKey, debugDir string) (map[string]interface{}, error) {
	// 1. The text is already valid JSON.
	if obj, err := parseObject(raw); err == nil {
		return obj, nil
	}

	// 2. Strip a surrounding code fence and stray backticks.
	if obj, err := parseObject(stripFences(raw)); err == nil {
		return obj, nil
	}

	// 3. Concatenated objects: keep the first document.
	if first, ok := truncateConcatenated(raw); ok {
		if obj, err := parseObject(first); err == nil {
			return obj, nil
		}
		if obj, err := parseObject(stripFences(first)); err == nil {
			return obj, nil
		}
	}

	// 4. Brace-balanced extraction from the first '{'.
	if candidate, ok := balancedObject(raw); ok {
		if obj, err := parseObject(candidate); err == nil {
			return obj, nil
		}
	}

	// 5. Aggressive fallback: try every shallow {...} substring, longest
	// first, accepting the first parse that carries the expected key. If
	// nothing matches, strip all fences globally and rescan.
	if obj, ok := scanCandidates(raw, requiredKey); ok {
		return obj, nil
	}
	defenced := strings.ReplaceAll(raw, "```", "")
	if candidate, ok := balancedObject(defenced); ok {
		if obj, err := parseObject(candidate); err == nil {
			return obj, nil
		}
	}
	if obj, ok := scanCandidates(defenced, requiredKey); ok {
		return obj, nil
	}

	// 6. Terminal failure: capture the raw text for offline inspection.
	artifact := writeDebugArtifact(debugDir, raw)
	return nil, &UnparseableError{
		Preview:      preview(raw),
		ArtifactPath: artifact,
	}
}

// parseObject parses s as JSON and requires an object root.
func parseObject(s string) (map[string]interface{}, error) {
	var obj map[string]interface{}
	if err := json.Unmarshal([]byte(strings.TrimSpace(s)), &obj); err != nil {
		return nil, err
	}
	return obj, nil
}

// stripFences removes a wrapping markdown fence, then any stray backticks.
func stripFences(s string) string {
	s = strings.TrimSpace(s)

	if matches := fencePattern.FindStringSubmatch(s); len(matches) > 1 {
		s = matches[1]
	}

	// Fallback: simple prefix/suffix trimming, then global backtick removal
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```JSON")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.ReplaceAll(s, "`", "")

	return strings.TrimSpace(s)
}

// truncateConcatenated detects two JSON documents joined by a known
// separator and returns the text up to and including the first closing brace.
func truncateConcatenated(s string) (string, bool) {
	cut := -1
	for _, sep := range concatSeparators {
		if idx := strings.Index(s, sep); idx >= 0 && (cut < 0 || idx < cut) {
			cut = idx
		}
	}
	if cut < 0 {
		return "", false
	}
	return s[:cut+1], true
}

// balancedObject walks s tracking string context and brace depth, returning
// the substring from the first '{' to its matching '}'. Braces inside
// double-quoted strings are literal; backslash escapes are honored.
func balancedObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if escaped {
			escaped = false
			continue
		}
		switch c {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return s[start : i+1], true
				}
			}
		}
	}
	return "", false
}

// scanCandidates tries every shallow {...} match from longest to shortest and
// accepts the first whose parsed root contains requiredKey.
func scanCandidates(s, requiredKey string) (map[string]interface{}, bool) {
	matches := shallowObjectPattern.FindAllString(s, -1)
	if len(matches) == 0 {
		return nil, false
	}

	// Longest first
	for i := 0; i < len(matches); i++ {
		for j := i + 1; j < len(matches); j++ {
			if len(matches[j]) > len(matches[i]) {
				matches[i], matches[j] = matches[j], matches[i]
			}
		}
	}

	for _, candidate := range matches {
		obj, err := parseObject(candidate)
		if err != nil {
			continue
		}
		if requiredKey == "" {
			return obj, true
		}
		if _, ok := obj[requiredKey]; ok {
			return obj, true
		}
	}
	return nil, false
}

// preview returns the first and last 500 characters of s for error messages.
func preview(s string) string {
	const edge = 500
	s = strings.TrimSpace(s)
	if len(s) <= 2*edge {
		return s
	}
	return s[:edge] + " ... " + s[len(s)-edge:]
}

// writeDebugArtifact persists the offending raw text with a timestamped
// filename. Returns the path, or empty string if the write was skipped or
// failed; extraction failure reporting never depends on this succeeding.
func writeDebugArtifact(debugDir, raw string) string {
	if debugDir == "" {
		return ""
	}
	if err := os.MkdirAll(debugDir, 0755); err != nil {
		return ""
	}
	name := fmt.Sprintf("unparseable_%s.txt", time.Now().Format("20060102_150405.000000000"))
	path := filepath.Join(debugDir, name)
	if err := os.WriteFile(path, []byte(raw), 0644); err != nil {
		return ""
	}
	return path
}
