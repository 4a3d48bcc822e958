package models

import (
	"time"
)

// FieldType is the input kind of a form field
type FieldType string

const (
	FieldText     FieldType = "text"
	FieldEmail    FieldType = "email"
	FieldNumber   FieldType = "number"
	FieldSelect   FieldType = "select"
	FieldCheckbox FieldType = "checkbox"
	FieldTextarea FieldType = "textarea"
)

// FieldTypes returns every supported field type in authoring order.
func FieldTypes() []FieldType {
	return []FieldType{FieldText, FieldEmail, FieldNumber, FieldSelect, FieldCheckbox, FieldTextarea}
}

// IsValid reports whether t is one of the supported field types.
func (t FieldType) IsValid() bool {
	for _, ft := range FieldTypes() {
		if ft == t {
			return true
		}
	}
	return false
}

// Operator is the comparison applied by a conditional rule
type Operator string

const (
	OpEquals     Operator = "equals"
	OpNotEquals  Operator = "not_equals"
	OpContains   Operator = "contains"
	OpIsEmpty    Operator = "is_empty"
	OpIsNotEmpty Operator = "is_not_empty"
)

// Operators returns the closed set of rule operators.
func Operators() []Operator {
	return []Operator{OpEquals, OpNotEquals, OpContains, OpIsEmpty, OpIsNotEmpty}
}

// IsValid reports whether op belongs to the closed operator set.
func (op Operator) IsValid() bool {
	for _, o := range Operators() {
		if o == op {
			return true
		}
	}
	return false
}

// NeedsValue reports whether the operator compares against Rule.Value.
func (op Operator) NeedsValue() bool {
	return op != OpIsEmpty && op != OpIsNotEmpty
}

// ConditionalRule shows a field only when another field's value matches
type ConditionalRule struct {
	FieldID  string   `json:"field_id"`
	Operator Operator `json:"operator"`
	Value    string   `json:"value"`
}

// ConditionalLogic wraps the single rule a field may carry
type ConditionalLogic struct {
	ShowIf ConditionalRule `json:"show_if"`
}

// Field is one input definition within a form
type Field struct {
	ID               string            `json:"id"`
	Type             FieldType         `json:"type"`
	Label            string            `json:"label"`
	Required         bool              `json:"required"`
	Options          []string          `json:"options,omitempty"`
	ConditionalLogic *ConditionalLogic `json:"conditional_logic,omitempty"`
}

// Rule returns the field's show-if rule, or nil when the field is unconditional.
func (f Field) Rule() *ConditionalRule {
	if f.ConditionalLogic == nil {
		return nil
	}
	return &f.ConditionalLogic.ShowIf
}

// FormValues maps field IDs to the values entered during one fill session.
// Values are strings, bools, or numbers as decoded from JSON; a missing key is an absent value.
type FormValues map[string]any

// Form is a named, ordered list of fields owned by a user
type Form struct {
	ID              string    `json:"id"`
	UserID          string    `json:"user_id"`
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	Fields          []Field   `json:"fields"`
	AirtableBaseID  string    `json:"airtable_base_id,omitempty"`
	AirtableTableID string    `json:"airtable_table_id,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// FieldIndex returns the position of the field with the given ID, or -1.
func (f *Form) FieldIndex(id string) int {
	for i := range f.Fields {
		if f.Fields[i].ID == id {
			return i
		}
	}
	return -1
}

// FieldByID returns the field with the given ID, or nil.
func (f *Form) FieldByID(id string) *Field {
	if i := f.FieldIndex(id); i >= 0 {
		return &f.Fields[i]
	}
	return nil
}

// Submission is one stored set of answers to a form
type Submission struct {
	ID               string     `json:"id"`
	FormID           string     `json:"form_id"`
	Data             FormValues `json:"data"`
	SubmittedAt      time.Time  `json:"submitted_at"`
	Synced           bool       `json:"synced"`
	AirtableRecordID string     `json:"airtable_record_id,omitempty"`
	SyncError        string     `json:"sync_error,omitempty"`
}
