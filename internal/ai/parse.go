package ai

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// Model output is JSON in theory and JSON-wrapped-in-prose in
// practice. These patterns peel away the common wrappers.
var (
	codeFenceRegex     = regexp.MustCompile("(?s)`{3}(?:json)?\\s*\\n?([\\s\\S]*?)\\n?`{3}")
	trailingCommaRegex = regexp.MustCompile(`,(\s*[}\]])`)
	objectRegex        = regexp.MustCompile(`(?s)\{[\s\S]*\}`)
	arrayRegex         = regexp.MustCompile(`(?s)\[[\s\S]*\]`)
)

// ParseResult is the outcome of parsing a model response.
type ParseResult[T any] struct {
	Success bool
	Data    T
	Error   string
}

// Parse decodes a model response into T, tolerating code fences,
// trailing commas, and prose around the JSON. Strategies, in order:
// direct parse, fence removal, comma cleanup, JSON extraction from
// mixed content.
func Parse[T any](text, context string) ParseResult[T] {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return parseError[T](context, "empty input")
	}

	if result, err := tryParse[T](trimmed); err == nil {
		return ParseResult[T]{Success: true, Data: result}
	}

	unfenced := strings.TrimSpace(codeFenceRegex.ReplaceAllString(trimmed, "$1"))
	if result, err := tryParse[T](unfenced); err == nil {
		return ParseResult[T]{Success: true, Data: result}
	}

	cleaned := trailingCommaRegex.ReplaceAllString(unfenced, "$1")
	if result, err := tryParse[T](cleaned); err == nil {
		return ParseResult[T]{Success: true, Data: result}
	}

	if extracted := extractJSON(cleaned); extracted != "" {
		if result, err := tryParse[T](extracted); err == nil {
			return ParseResult[T]{Success: true, Data: result}
		}
	}

	return parseError[T](context, "all parsing strategies failed")
}

// ParseOrDefault parses a model response, returning fallback when
// nothing salvageable comes back.
func ParseOrDefault[T any](text, context string, fallback T) T {
	result := Parse[T](text, context)
	if result.Success {
		return result.Data
	}
	return fallback
}

func tryParse[T any](text string) (T, error) {
	var result T
	err := json.Unmarshal([]byte(text), &result)
	return result, err
}

// extractJSON pulls the outermost JSON object or array out of mixed
// content. The first-character check keeps an array from being
// mis-extracted as its first element.
func extractJSON(text string) string {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		return arrayRegex.FindString(trimmed)
	}
	if match := objectRegex.FindString(trimmed); match != "" {
		return match
	}
	return arrayRegex.FindString(trimmed)
}

func parseError[T any](context, message string) ParseResult[T] {
	var zero T
	if context != "" {
		message = context + ": " + message
	}
	return ParseResult[T]{Success: false, Data: zero, Error: message}
}

// truncate bounds a string for error messages and logs.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

// parseInto is the common decode-or-fail path used by the task
// surfaces: parse the response and wrap the failure with a preview of
// what the model actually said.
func parseInto[T any](response, context string) (T, error) {
	result := Parse[T](response, context)
	if !result.Success {
		var zero T
		return zero, fmt.Errorf("failed to parse %s: %s (response: %s)",
			context, result.Error, truncate(response, 200))
	}
	return result.Data, nil
}
