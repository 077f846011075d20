package guardschema

// Well-known widget identifiers used by built-in guard schemas. The admin
// UI maps these to concrete form controls; guardschema itself never
// interprets them.
const (
	WidgetText        = "text"
	WidgetTextarea    = "textarea"
	WidgetNumber      = "number"
	WidgetToggle      = "toggle"
	WidgetSelect      = "select"
	WidgetMultiSelect = "multiselect"
	WidgetTagList     = "taglist"
)

// hint is a small constructor to keep schemas_builtin.go's per-field UI
// hint declarations on one line each.
func hint(widget, label, group string, order int) UIHint {
	return UIHint{Widget: widget, Label: label, Group: group, Order: order}
}

// advanced marks h as belonging to the "advanced" disclosure group in the
// admin UI, for fields most users should not need to touch.
func advanced(h UIHint) UIHint {
	h.Advanced = true
	return h
}

// numPtr takes the address of a float64 literal, since jsonschema.Schema's
// Minimum/Maximum are *float64 (absent vs. zero must be distinguishable —
// a schema bounding a value to >= 0 is different from one with no bound at
// all) and Go does not allow taking the address of a literal directly.
func numPtr(f float64) *float64 { return &f }
