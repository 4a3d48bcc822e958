package conditional

import "github.com/marcus/formsync/internal/models"

// IsReferenceType reports whether fields of type t may be picked as the
// source of a show-if rule when authoring.
//
// number and textarea are left out here, but Evaluate accepts rules on any
// field type. Check reports such rules as ineligible_source.
func IsReferenceType(t models.FieldType) bool {
	switch t {
	case models.FieldText, models.FieldEmail, models.FieldSelect, models.FieldCheckbox:
		return true
	default:
		return false
	}
}

// EligibleReferences returns the fields a rule on excludeID may reference.
// An empty excludeID excludes nothing.
func EligibleReferences(fields []models.Field, excludeID string) []models.Field {
	out := make([]models.Field, 0, len(fields))
	for _, f := range fields {
		if excludeID != "" && f.ID == excludeID {
			continue
		}
		if !IsReferenceType(f.Type) {
			continue
		}
		out = append(out, f)
	}
	return out
}
