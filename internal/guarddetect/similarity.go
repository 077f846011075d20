package guarddetect

import "github.com/antzucaro/matchr"

// Ratio scores how similar two tool or server names are, for typosquat
// detection (guards.ServerWhitelist). It wraps the teacher's own
// Levenshtein-family dependency — matchr is already used for phonetic
// transcript correction in internal/transcript/phonetic — reusing
// Jaro-Winkler rather than introducing a second string-distance library for
// what is, at its core, the same "how close are these two strings" question.
//
// Ratio is symmetric and returns a value in [0, 1], where 1 means identical.
func Ratio(a, b string) float64 {
	if a == b {
		return 1
	}
	return matchr.JaroWinkler(a, b, false)
}
