// Package formdef reads and writes form definition files, the YAML
// documents behind `formsync forms import` and `forms export`.
//
// A definition looks like:
//
//	title: RSVP
//	description: Let us know if you can make it.
//	airtable:
//	  base: appXXXX
//	  table: tblXXXX
//	fields:
//	  - key: attending
//	    type: select
//	    label: Are you attending?
//	    required: true
//	    options: ["Yes", "No"]
//	  - key: guests
//	    type: number
//	    label: Number of guests
//	    show_if:
//	      field: attending
//	      operator: equals
//	      value: "Yes"
//
// A field's key is only a local handle for show_if; the stored field ID is
// the explicit id when given, otherwise a fresh UUID.
package formdef

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/marcus/formsync/internal/models"
)

// Definition is a parsed form definition with every reference resolved to
// field IDs.
type Definition struct {
	Title           string
	Description     string
	AirtableBaseID  string
	AirtableTableID string
	Fields          []models.Field
}

// Form returns the definition as an unsaved form.
func (d *Definition) Form() *models.Form {
	return &models.Form{
		Title:           d.Title,
		Description:     d.Description,
		Fields:          d.Fields,
		AirtableBaseID:  d.AirtableBaseID,
		AirtableTableID: d.AirtableTableID,
	}
}

type fileDef struct {
	Title       string      `yaml:"title"`
	Description string      `yaml:"description,omitempty"`
	Airtable    *fileTarget `yaml:"airtable,omitempty"`
	Fields      []fileField `yaml:"fields"`
}

type fileTarget struct {
	Base  string `yaml:"base,omitempty"`
	Table string `yaml:"table,omitempty"`
}

type fileField struct {
	ID       string    `yaml:"id,omitempty"`
	Key      string    `yaml:"key,omitempty"`
	Type     string    `yaml:"type"`
	Label    string    `yaml:"label"`
	Required bool      `yaml:"required,omitempty"`
	Options  []string  `yaml:"options,omitempty"`
	ShowIf   *fileRule `yaml:"show_if,omitempty"`
}

type fileRule struct {
	Field    string `yaml:"field"`
	Operator string `yaml:"operator"`
	Value    string `yaml:"value,omitempty"`
}

// Load reads and parses a definition file.
func Load(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading form definition: %w", err)
	}
	def, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return def, nil
}

// Parse decodes a definition. Unknown keys are rejected so typos such as
// "show-if" do not silently drop a rule.
func Parse(data []byte) (*Definition, error) {
	var raw fileDef
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("empty form definition")
		}
		return nil, fmt.Errorf("parsing form definition: %w", err)
	}

	def := &Definition{
		Title:       strings.TrimSpace(raw.Title),
		Description: strings.TrimSpace(raw.Description),
	}
	if def.Title == "" {
		return nil, errors.New("title is required")
	}
	if raw.Airtable != nil {
		def.AirtableBaseID = strings.TrimSpace(raw.Airtable.Base)
		def.AirtableTableID = strings.TrimSpace(raw.Airtable.Table)
	}

	// First pass: assign IDs and index handles.
	ids := make([]string, len(raw.Fields))
	handles := make(map[string]string, len(raw.Fields)*2)
	seen := make(map[string]bool, len(raw.Fields))
	for i, rf := range raw.Fields {
		id := strings.TrimSpace(rf.ID)
		if id == "" {
			id = uuid.NewString()
		}
		if seen[id] {
			return nil, fmt.Errorf("fields[%d]: duplicate id %q", i, id)
		}
		seen[id] = true
		ids[i] = id
		handles[id] = id

		if key := strings.TrimSpace(rf.Key); key != "" {
			if _, dup := handles[key]; dup && key != id {
				return nil, fmt.Errorf("fields[%d]: duplicate key %q", i, key)
			}
			handles[key] = id
		}
	}

	// Second pass: build fields and resolve rules.
	def.Fields = make([]models.Field, 0, len(raw.Fields))
	for i, rf := range raw.Fields {
		f, err := buildField(rf, ids[i], handles)
		if err != nil {
			return nil, fmt.Errorf("fields[%d]: %w", i, err)
		}
		def.Fields = append(def.Fields, f)
	}

	return def, nil
}

func buildField(rf fileField, id string, handles map[string]string) (models.Field, error) {
	t := models.FieldType(strings.TrimSpace(rf.Type))
	if !t.IsValid() {
		return models.Field{}, fmt.Errorf("unknown type %q", rf.Type)
	}
	label := strings.TrimSpace(rf.Label)
	if label == "" {
		return models.Field{}, errors.New("label is required")
	}

	f := models.Field{
		ID:       id,
		Type:     t,
		Label:    label,
		Required: rf.Required,
	}
	for _, o := range rf.Options {
		if o = strings.TrimSpace(o); o != "" {
			f.Options = append(f.Options, o)
		}
	}
	if t == models.FieldSelect && len(f.Options) == 0 {
		return models.Field{}, errors.New("select fields need at least one option")
	}

	if rf.ShowIf == nil {
		return f, nil
	}
	ref, ok := handles[strings.TrimSpace(rf.ShowIf.Field)]
	if !ok {
		return models.Field{}, fmt.Errorf("show_if references unknown field %q", rf.ShowIf.Field)
	}
	if ref == id {
		return models.Field{}, errors.New("show_if cannot reference the field itself")
	}
	op := models.Operator(strings.TrimSpace(rf.ShowIf.Operator))
	if !op.IsValid() {
		return models.Field{}, fmt.Errorf("unknown show_if operator %q", rf.ShowIf.Operator)
	}
	rule := models.ConditionalRule{FieldID: ref, Operator: op}
	if op.NeedsValue() {
		rule.Value = rf.ShowIf.Value
	}
	f.ConditionalLogic = &models.ConditionalLogic{ShowIf: rule}
	return f, nil
}

// Marshal renders a form as a definition file. Field IDs are written out
// so that re-importing the file keeps references and Airtable columns stable.
// Rules that Parse would reject (dangling or self references, unknown
// operators) are an error, so every exported file can be imported again.
func Marshal(form *models.Form) ([]byte, error) {
	raw := fileDef{
		Title:       form.Title,
		Description: form.Description,
		Fields:      make([]fileField, 0, len(form.Fields)),
	}
	if form.AirtableBaseID != "" || form.AirtableTableID != "" {
		raw.Airtable = &fileTarget{Base: form.AirtableBaseID, Table: form.AirtableTableID}
	}
	for _, f := range form.Fields {
		ff := fileField{
			ID:       f.ID,
			Type:     string(f.Type),
			Label:    f.Label,
			Required: f.Required,
			Options:  f.Options,
		}
		if rule := f.Rule(); rule != nil {
			switch {
			case form.FieldByID(rule.FieldID) == nil:
				return nil, fmt.Errorf("field %q: show_if references unknown field %q", f.Label, rule.FieldID)
			case rule.FieldID == f.ID:
				return nil, fmt.Errorf("field %q: show_if cannot reference the field itself", f.Label)
			case !rule.Operator.IsValid():
				return nil, fmt.Errorf("field %q: unknown show_if operator %q", f.Label, rule.Operator)
			}
			ff.ShowIf = &fileRule{Field: rule.FieldID, Operator: string(rule.Operator), Value: rule.Value}
		}
		raw.Fields = append(raw.Fields, ff)
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(raw); err != nil {
		return nil, fmt.Errorf("encoding form definition: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
