package content

import (
	"fmt"
	"regexp"
	"strings"
)

const maxTagLength = 50

var tagInvalidChars = regexp.MustCompile(`[^a-z0-9-]+`)

// NormalizeTag canonicalizes a tag name: lowercase, trimmed, internal
// whitespace to single hyphens, anything outside [a-z0-9-] dropped.
// Returns "" when nothing survives.
func NormalizeTag(name string) string {
	tag := strings.ToLower(strings.TrimSpace(name))
	tag = strings.Join(strings.Fields(tag), "-")
	tag = tagInvalidChars.ReplaceAllString(tag, "")
	tag = strings.Trim(tag, "-")
	if len(tag) > maxTagLength {
		tag = strings.Trim(tag[:maxTagLength], "-")
	}
	return tag
}

// ValidateTag normalizes a tag and rejects names that normalize to
// nothing usable. Returns the canonical form.
func ValidateTag(name string) (string, error) {
	tag := NormalizeTag(name)
	if tag == "" {
		return "", fmt.Errorf("tag %q is empty after normalization", name)
	}
	return tag, nil
}

// NormalizeTags canonicalizes a set, dropping empties and duplicates
// while preserving first-seen order.
func NormalizeTags(names []string) []string {
	seen := make(map[string]bool, len(names))
	var out []string
	for _, name := range names {
		tag := NormalizeTag(name)
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		out = append(out, tag)
	}
	return out
}
