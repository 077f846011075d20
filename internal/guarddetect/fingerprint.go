package guarddetect

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/cespare/xxhash/v2"
)

var markupStripRe = regexp.MustCompile(`<[^>]*>`)

// NormalizeText lowercases s, strips simple HTML/markup tags, and collapses
// runs of whitespace to a single space, so that cosmetic edits (re-wrapped
// text, added markup, re-cased words) do not register as a rug-pull change.
func NormalizeText(s string) string {
	s = markupStripRe.ReplaceAllString(s, " ")
	s = strings.ToLower(s)
	return strings.Join(strings.Fields(s), " ")
}

// DescHash returns a stable fingerprint of a tool description, computed
// over normalized text with xxhash — already an indirect dependency of the
// teacher's stack, promoted to direct here because it is exactly the
// "strong non-cryptographic hash" the fingerprint scheme calls for.
func DescHash(description string) uint64 {
	return xxhash.Sum64String(NormalizeText(description))
}

// SchemaHash returns a stable fingerprint of a tool's input schema, computed
// over a canonical JSON encoding (keys sorted, insignificant whitespace
// stripped) so that field reordering between two tools/list calls is not
// mistaken for a schema change — the same canonicalize-then-hash approach
// the teacher uses when comparing decoded provider configuration.
func SchemaHash(schema map[string]any) uint64 {
	canonical := canonicalizeJSON(schema)
	return xxhash.Sum64String(canonical)
}

// canonicalizeJSON renders v as JSON with no insignificant whitespace and
// map keys in a stable order. encoding/json already marshals map[string]any
// keys in sorted order at every nesting level, which is exactly the
// canonical form the schema fingerprint needs — no separate sort pass is
// required.
func canonicalizeJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		// A JSON-decoded schema value is always marshalable; this only
		// guards against a construction bug elsewhere.
		return ""
	}
	return string(b)
}
