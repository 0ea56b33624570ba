// Package strings holds small string helpers shared across services.
package strings

import "strings"

// DedupeAndTrim normalizes a caller-supplied tag list: whitespace is trimmed
// from each element, empty elements are dropped, and the first occurrence of
// each tag wins. Order of first occurrence is preserved and case is kept
// as-is, since tags like regulation names ("GDPR") are matched verbatim
// downstream.
func DedupeAndTrim(values []string) []string {
	if len(values) == 0 {
		return values
	}

	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))
	for _, v := range values {
		tag := strings.TrimSpace(v)
		if tag == "" {
			continue
		}
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		result = append(result, tag)
	}
	return result
}
