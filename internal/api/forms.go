package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/marcus/formsync/internal/models"
	"github.com/marcus/formsync/internal/serverdb"
)

// RuleInput is a show-if rule as sent by clients.
type RuleInput struct {
	FieldID  string `json:"field_id" validate:"required,max=64"`
	Operator string `json:"operator" validate:"required,oneof=equals not_equals contains is_empty is_not_empty"`
	Value    string `json:"value" validate:"max=500"`
}

// ConditionalInput mirrors models.ConditionalLogic.
type ConditionalInput struct {
	ShowIf RuleInput `json:"show_if"`
}

// FieldInput is a field as sent by clients in a whole-form write.
// A field without an ID is given one.
type FieldInput struct {
	ID               string            `json:"id" validate:"max=64"`
	Type             string            `json:"type" validate:"required,oneof=text email number select checkbox textarea"`
	Label            string            `json:"label" validate:"max=500"`
	Required         bool              `json:"required"`
	Options          []string          `json:"options" validate:"max=200,dive,max=500"`
	ConditionalLogic *ConditionalInput `json:"conditional_logic"`
}

// FormRequest is the JSON body for POST /v1/forms and PUT /v1/forms/{id}.
type FormRequest struct {
	Title           string       `json:"title" validate:"required,max=200"`
	Description     string       `json:"description" validate:"max=5000"`
	Fields          []FieldInput `json:"fields" validate:"max=500,dive"`
	AirtableBaseID  string       `json:"airtable_base_id" validate:"max=64"`
	AirtableTableID string       `json:"airtable_table_id" validate:"max=64"`
}

// FormSummary is one entry of the form listing.
type FormSummary struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	FieldCount  int    `json:"field_count"`
	UpdatedAt   string `json:"updated_at"`
}

// handleCreateForm handles POST /v1/forms.
func (s *Server) handleCreateForm(w http.ResponseWriter, r *http.Request) {
	user := getUserFromContext(r.Context())

	params, ok := decodeFormRequest(w, r)
	if !ok {
		return
	}

	form, err := s.store.CreateForm(user.UserID, params)
	if err != nil {
		logFor(r.Context()).Error("create form", "err", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to create form")
		return
	}

	logFor(r.Context()).Info("form created", "form", form.ID, "fields", len(form.Fields))
	writeJSON(w, http.StatusCreated, form)
}

// handleListForms handles GET /v1/forms.
func (s *Server) handleListForms(w http.ResponseWriter, r *http.Request) {
	user := getUserFromContext(r.Context())

	forms, err := s.store.ListFormsForUser(user.UserID)
	if err != nil {
		logFor(r.Context()).Error("list forms", "err", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to list forms")
		return
	}

	resp := make([]FormSummary, 0, len(forms))
	for _, f := range forms {
		resp = append(resp, FormSummary{
			ID:          f.ID,
			Title:       f.Title,
			Description: f.Description,
			FieldCount:  len(f.Fields),
			UpdatedAt:   f.UpdatedAt.Format("2006-01-02T15:04:05Z07:00"),
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleGetForm handles GET /v1/forms/{id}. Forms are public so that
// respondents can fill them.
func (s *Server) handleGetForm(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, getFormFromContext(r.Context()))
}

// handleUpdateForm handles PUT /v1/forms/{id}.
func (s *Server) handleUpdateForm(w http.ResponseWriter, r *http.Request) {
	form := getFormFromContext(r.Context())

	params, ok := decodeFormRequest(w, r)
	if !ok {
		return
	}

	s.saveForm(w, r, form.ID, params, http.StatusOK)
}

// handleDeleteForm handles DELETE /v1/forms/{id}. Submissions go with it.
func (s *Server) handleDeleteForm(w http.ResponseWriter, r *http.Request) {
	form := getFormFromContext(r.Context())

	if err := s.store.DeleteForm(form.ID); err != nil {
		logFor(r.Context()).Error("delete form", "err", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to delete form")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// saveForm replaces the form's editable parts and writes the stored result.
func (s *Server) saveForm(w http.ResponseWriter, r *http.Request, formID string, params serverdb.FormParams, status int) {
	updated, err := s.store.UpdateForm(formID, params)
	if err != nil {
		logFor(r.Context()).Error("update form", "err", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to update form")
		return
	}
	if updated == nil {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "form not found")
		return
	}
	writeJSON(w, status, updated)
}

// decodeFormRequest reads and validates a whole-form body. It writes the
// error response itself when the body is unusable.
func decodeFormRequest(w http.ResponseWriter, r *http.Request) (serverdb.FormParams, bool) {
	var req FormRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "invalid json body")
		return serverdb.FormParams{}, false
	}
	req.Title = strings.TrimSpace(req.Title)
	if errs := validateRequest(req); errs != nil {
		writeValidationError(w, errs)
		return serverdb.FormParams{}, false
	}

	fields, errs := fieldsFromInput(req.Fields)
	if errs != nil {
		writeValidationError(w, errs)
		return serverdb.FormParams{}, false
	}

	return serverdb.FormParams{
		Title:           req.Title,
		Description:     strings.TrimSpace(req.Description),
		Fields:          fields,
		AirtableBaseID:  strings.TrimSpace(req.AirtableBaseID),
		AirtableTableID: strings.TrimSpace(req.AirtableTableID),
	}, true
}

// fieldsFromInput converts client fields to models, assigning missing IDs
// and rejecting duplicate IDs and rules that reference their own field.
func fieldsFromInput(in []FieldInput) ([]models.Field, map[string]string) {
	errs := map[string]string{}
	seen := make(map[string]bool, len(in))
	fields := make([]models.Field, 0, len(in))

	for i, fi := range in {
		id := strings.TrimSpace(fi.ID)
		if id == "" {
			id = uuid.NewString()
		}
		if seen[id] {
			errs[fmt.Sprintf("fields[%d].id", i)] = "duplicate field id"
			continue
		}
		seen[id] = true

		f := models.Field{
			ID:       id,
			Type:     models.FieldType(fi.Type),
			Label:    strings.TrimSpace(fi.Label),
			Required: fi.Required,
			Options:  normalizeOptions(fi.Options),
		}
		if fi.ConditionalLogic != nil {
			rule := ruleFromInput(fi.ConditionalLogic.ShowIf)
			if rule.FieldID == id {
				errs[fmt.Sprintf("fields[%d].conditional_logic.show_if.field_id", i)] = "a field cannot depend on itself"
				continue
			}
			f.ConditionalLogic = &models.ConditionalLogic{ShowIf: rule}
		}
		fields = append(fields, f)
	}

	if len(errs) > 0 {
		return nil, errs
	}
	return fields, nil
}

func ruleFromInput(in RuleInput) models.ConditionalRule {
	rule := models.ConditionalRule{
		FieldID:  strings.TrimSpace(in.FieldID),
		Operator: models.Operator(in.Operator),
		Value:    in.Value,
	}
	if !rule.Operator.NeedsValue() {
		rule.Value = ""
	}
	return rule
}

// normalizeOptions trims option labels and drops blank ones.
func normalizeOptions(opts []string) []string {
	var out []string
	for _, o := range opts {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}
