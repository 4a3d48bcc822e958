// Package conditional decides which form fields are visible for a set of
// entered values, and which fields may serve as the source of a show-if rule.
//
// Everything here is a pure function of its arguments and safe to call from
// any goroutine.
package conditional

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/marcus/formsync/internal/models"
)

// unknownOperatorResult is returned for operators outside the closed set.
// Fields guarded by such a rule stay visible.
const unknownOperatorResult = true

// Evaluate reports whether rule holds for values. An absent value compares
// as the empty string.
func Evaluate(rule models.ConditionalRule, values models.FormValues) bool {
	actual := StringValue(values[rule.FieldID])

	switch rule.Operator {
	case models.OpEquals:
		return actual == rule.Value
	case models.OpNotEquals:
		return actual != rule.Value
	case models.OpContains:
		return strings.Contains(strings.ToLower(actual), strings.ToLower(rule.Value))
	case models.OpIsEmpty:
		return isBlank(actual)
	case models.OpIsNotEmpty:
		return !isBlank(actual)
	default:
		return unknownOperatorResult
	}
}

// StringValue renders a submitted value the way rules compare it.
// nil, false, numeric zero and "" all render as "" so that an unticked
// checkbox and an untouched input look the same to is_empty.
func StringValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		if x {
			return "true"
		}
		return ""
	case float64:
		if x == 0 {
			return ""
		}
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		if x == 0 {
			return ""
		}
		return strconv.Itoa(x)
	case int64:
		if x == 0 {
			return ""
		}
		return strconv.FormatInt(x, 10)
	case json.Number:
		if f, err := x.Float64(); err == nil && f == 0 {
			return ""
		}
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
