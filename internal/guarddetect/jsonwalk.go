package guarddetect

import (
	"strconv"

	"github.com/tidwall/gjson"
)

// StringField is one scalar string value found while walking a JSON
// document, addressed by a gjson/sjson-compatible selector path.
type StringField struct {
	Path  string
	Value string
}

// WalkStrings performs a depth-first walk of the JSON document raw, yielding
// one StringField per string-valued leaf. Paths use gjson/sjson's
// dotted-with-brackets syntax (e.g. "user.emails.0") — the engine's PII
// guard scans Value and, on a hit, hands the same Path straight to
// guardcore.RedactedField so the write side (sjson.Set) addresses exactly
// what the read side (gjson) found, round-tripping without a separate
// path-translation layer.
func WalkStrings(raw []byte) []StringField {
	if !gjson.ValidBytes(raw) {
		return nil
	}
	root := gjson.ParseBytes(raw)
	var out []StringField
	walkValue("", root, &out)
	return out
}

func walkValue(path string, v gjson.Result, out *[]StringField) {
	switch {
	case v.IsObject():
		v.ForEach(func(key, value gjson.Result) bool {
			childPath := key.String()
			if path != "" {
				childPath = path + "." + childPath
			}
			walkValue(childPath, value, out)
			return true
		})
	case v.IsArray():
		i := 0
		v.ForEach(func(_, value gjson.Result) bool {
			childPath := itoaPath(path, i)
			walkValue(childPath, value, out)
			i++
			return true
		})
	case v.Type == gjson.String:
		*out = append(*out, StringField{Path: path, Value: v.String()})
	}
}

func itoaPath(path string, index int) string {
	suffix := strconv.Itoa(index)
	if path == "" {
		return suffix
	}
	return path + "." + suffix
}
