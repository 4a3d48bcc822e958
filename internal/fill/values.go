package fill

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/marcus/formsync/internal/conditional"
	"github.com/marcus/formsync/internal/models"
	"github.com/marcus/formsync/internal/suggest"
)

// ParseAssignments turns "field=value" pairs into form values for the
// non-interactive fill mode. A field is named by its ID or, ignoring case,
// its label. Values are converted to the field's type, and answers for
// fields hidden by the other answers are dropped.
func ParseAssignments(form *models.Form, pairs []string) (models.FormValues, error) {
	values := make(models.FormValues, len(pairs))
	for _, pair := range pairs {
		name, raw, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("invalid value %q: expected field=value", pair)
		}
		f := lookupField(form, strings.TrimSpace(name))
		if f == nil {
			return nil, fmt.Errorf("unknown field %q%s", name, suggest.Hint(suggest.Similar(name, fieldNames(form))))
		}
		v, err := convert(*f, strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f.Label, err)
		}
		values[f.ID] = v
	}
	return conditional.VisibleValues(form.Fields, values), nil
}

// fieldNames lists every field's ID and label.
func fieldNames(form *models.Form) []string {
	names := make([]string, 0, 2*len(form.Fields))
	for _, f := range form.Fields {
		names = append(names, f.ID, f.Label)
	}
	return names
}

func lookupField(form *models.Form, name string) *models.Field {
	if f := form.FieldByID(name); f != nil {
		return f
	}
	for i := range form.Fields {
		if strings.EqualFold(form.Fields[i].Label, name) {
			return &form.Fields[i]
		}
	}
	return nil
}

func convert(f models.Field, raw string) (any, error) {
	switch f.Type {
	case models.FieldCheckbox:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("expected true or false, got %q", raw)
		}
		return b, nil
	case models.FieldNumber:
		n, ok := parseNumber(raw)
		if !ok {
			return nil, fmt.Errorf("expected a number, got %q", raw)
		}
		return n, nil
	case models.FieldSelect:
		for _, o := range f.Options {
			if o == raw {
				return raw, nil
			}
		}
		return nil, fmt.Errorf("%q is not one of %s", raw, strings.Join(f.Options, ", "))
	default:
		return raw, nil
	}
}

// parseNumber accepts finite numbers only; NaN and infinities cannot be
// encoded as JSON.
func parseNumber(s string) (float64, bool) {
	n, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, false
	}
	return n, true
}
