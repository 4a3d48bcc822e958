package conditional

import (
	"encoding/json"
	"testing"

	"github.com/marcus/formsync/internal/models"
)

func rule(field string, op models.Operator, value string) models.ConditionalRule {
	return models.ConditionalRule{FieldID: field, Operator: op, Value: value}
}

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name   string
		rule   models.ConditionalRule
		values models.FormValues
		want   bool
	}{
		{"equals match", rule("f", models.OpEquals, "Yes"), models.FormValues{"f": "Yes"}, true},
		{"equals is case sensitive", rule("f", models.OpEquals, "Yes"), models.FormValues{"f": "yes"}, false},
		{"equals absent vs empty", rule("f", models.OpEquals, ""), models.FormValues{}, true},
		{"equals absent vs value", rule("f", models.OpEquals, "x"), nil, false},
		{"equals bool true", rule("f", models.OpEquals, "true"), models.FormValues{"f": true}, true},
		{"equals bool false is empty", rule("f", models.OpEquals, ""), models.FormValues{"f": false}, true},
		{"equals number", rule("f", models.OpEquals, "42"), models.FormValues{"f": float64(42)}, true},
		{"not_equals differs", rule("f", models.OpNotEquals, "Yes"), models.FormValues{"f": "No"}, true},
		{"not_equals same", rule("f", models.OpNotEquals, "Yes"), models.FormValues{"f": "Yes"}, false},
		{"not_equals absent", rule("f", models.OpNotEquals, "Yes"), models.FormValues{}, true},
		{"contains ignores case", rule("f", models.OpContains, "AB"), models.FormValues{"f": "xabz"}, true},
		{"contains miss", rule("f", models.OpContains, "q"), models.FormValues{"f": "xabz"}, false},
		{"contains empty needle", rule("f", models.OpContains, ""), models.FormValues{}, true},
		{"is_empty absent", rule("x", models.OpIsEmpty, ""), models.FormValues{}, true},
		{"is_empty whitespace", rule("x", models.OpIsEmpty, ""), models.FormValues{"x": "  "}, true},
		{"is_empty value", rule("x", models.OpIsEmpty, ""), models.FormValues{"x": "hi"}, false},
		{"is_empty unticked", rule("x", models.OpIsEmpty, ""), models.FormValues{"x": false}, true},
		{"is_not_empty value", rule("x", models.OpIsNotEmpty, ""), models.FormValues{"x": "hi"}, true},
		{"is_not_empty whitespace", rule("x", models.OpIsNotEmpty, ""), models.FormValues{"x": "\t"}, false},
		{"unknown operator shows", rule("x", models.Operator("greater_than"), "1"), models.FormValues{"x": "0"}, true},
		{"empty operator shows", rule("x", "", ""), nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Evaluate(tt.rule, tt.values); got != tt.want {
				t.Errorf("Evaluate(%+v, %v) = %v, want %v", tt.rule, tt.values, got, tt.want)
			}
		})
	}
}

func TestEvaluateNegations(t *testing.T) {
	values := []models.FormValues{
		nil,
		{},
		{"f": ""},
		{"f": "   "},
		{"f": "Yes"},
		{"f": "yes"},
		{"f": true},
		{"f": false},
		{"f": float64(0)},
		{"f": float64(3.5)},
	}
	compare := []string{"", "Yes", "true", "3.5"}

	for _, v := range values {
		for _, c := range compare {
			eq := Evaluate(rule("f", models.OpEquals, c), v)
			neq := Evaluate(rule("f", models.OpNotEquals, c), v)
			if eq == neq {
				t.Errorf("equals/not_equals agree for %v vs %q", v, c)
			}
			if eq != (StringValue(v["f"]) == c) {
				t.Errorf("equals(%v, %q) = %v, want stringified comparison", v, c, eq)
			}
		}
		empty := Evaluate(rule("f", models.OpIsEmpty, ""), v)
		notEmpty := Evaluate(rule("f", models.OpIsNotEmpty, ""), v)
		if empty == notEmpty {
			t.Errorf("is_empty/is_not_empty agree for %v", v)
		}
	}
}

func TestStringValue(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{nil, ""},
		{"", ""},
		{"abc", "abc"},
		{true, "true"},
		{false, ""},
		{float64(0), ""},
		{float64(1.25), "1.25"},
		{float64(100), "100"},
		{7, "7"},
		{int64(0), ""},
		{json.Number("12"), "12"},
		{json.Number("0"), ""},
	}
	for _, tt := range tests {
		if got := StringValue(tt.in); got != tt.want {
			t.Errorf("StringValue(%#v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
