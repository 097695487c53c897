package calls

import "strings"

// Repair attempts to fix argument text truncated mid-generation. Streams
// cut off by a stalled upstream lose trailing characters, so the heuristic
// appends: first a closing quote when the text contains an odd number of
// double quotes, then one closing brace per unmatched opening brace.
// Quote closure must run before brace counting so that a brace inside the
// unterminated string literal is not double-counted.
//
// The result is not guaranteed to parse; callers re-validate and fail the
// call when it does not.
func Repair(s string) string {
	if strings.Count(s, `"`)%2 == 1 {
		s += `"`
	}
	if n := strings.Count(s, "{") - strings.Count(s, "}"); n > 0 {
		s += strings.Repeat("}", n)
	}
	return s
}
