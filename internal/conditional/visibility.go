package conditional

import "github.com/marcus/formsync/internal/models"

// IsVisible reports whether a single field is shown for values.
func IsVisible(field models.Field, values models.FormValues) bool {
	rule := field.Rule()
	if rule == nil {
		return true
	}
	return Evaluate(*rule, values)
}

// VisibleFields returns the fields shown for values, in their original order.
// Rules are evaluated against the raw values, so two fields that depend on
// each other can both end up hidden.
func VisibleFields(fields []models.Field, values models.FormValues) []models.Field {
	visible := make([]models.Field, 0, len(fields))
	for _, f := range fields {
		if IsVisible(f, values) {
			visible = append(visible, f)
		}
	}
	return visible
}

// VisibleValues drops every entry of values whose key is not a visible field.
func VisibleValues(fields []models.Field, values models.FormValues) models.FormValues {
	out := make(models.FormValues)
	for _, f := range VisibleFields(fields, values) {
		if v, ok := values[f.ID]; ok {
			out[f.ID] = v
		}
	}
	return out
}
