package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/marcus/formsync/internal/models"
	"github.com/marcus/formsync/internal/serverdb"
)

// defaultSelectOptions seed a new select field.
var defaultSelectOptions = []string{"Option 1", "Option 2"}

// AddFieldRequest is the JSON body for POST /v1/forms/{id}/fields.
type AddFieldRequest struct {
	Type     string   `json:"type" validate:"required,oneof=text email number select checkbox textarea"`
	Label    string   `json:"label" validate:"max=500"`
	Required bool     `json:"required"`
	Options  []string `json:"options" validate:"max=200,dive,max=500"`
}

// UpdateFieldRequest is the JSON body for PATCH /v1/forms/{id}/fields/{fieldID}.
// Absent members are left unchanged.
type UpdateFieldRequest struct {
	Label          *string    `json:"label" validate:"omitempty,max=500"`
	Required       *bool      `json:"required"`
	Options        []string   `json:"options" validate:"max=200,dive,max=500"`
	ShowIf         *RuleInput `json:"show_if"`
	ClearCondition bool       `json:"clear_condition"`
}

// MoveFieldRequest is the JSON body for POST /v1/forms/{id}/fields/{fieldID}/move.
type MoveFieldRequest struct {
	Index int `json:"index" validate:"min=0"`
}

// NewField returns a field of type t with the authoring defaults applied.
func NewField(t models.FieldType) models.Field {
	f := models.Field{
		ID:    uuid.NewString(),
		Type:  t,
		Label: fmt.Sprintf("New %s field", t),
	}
	if t == models.FieldSelect {
		f.Options = slices.Clone(defaultSelectOptions)
	}
	return f
}

// handleAddField handles POST /v1/forms/{id}/fields.
func (s *Server) handleAddField(w http.ResponseWriter, r *http.Request) {
	form := getFormFromContext(r.Context())

	var req AddFieldRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "invalid json body")
		return
	}
	if errs := validateRequest(req); errs != nil {
		writeValidationError(w, errs)
		return
	}

	field := NewField(models.FieldType(req.Type))
	if label := strings.TrimSpace(req.Label); label != "" {
		field.Label = label
	}
	field.Required = req.Required
	if opts := normalizeOptions(req.Options); len(opts) > 0 {
		field.Options = opts
	}

	params := serverdb.FormParamsOf(form)
	params.Fields = append(params.Fields, field)

	if !s.storeFields(w, r, form.ID, params) {
		return
	}
	logFor(r.Context()).Info("field added", "field", field.ID, "type", field.Type)
	writeJSON(w, http.StatusCreated, field)
}

// handleUpdateField handles PATCH /v1/forms/{id}/fields/{fieldID}.
func (s *Server) handleUpdateField(w http.ResponseWriter, r *http.Request) {
	form := getFormFromContext(r.Context())
	fieldID := r.PathValue("fieldID")

	var req UpdateFieldRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "invalid json body")
		return
	}
	if errs := validateRequest(req); errs != nil {
		writeValidationError(w, errs)
		return
	}
	if req.ShowIf != nil && req.ClearCondition {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "show_if and clear_condition are mutually exclusive")
		return
	}

	params := serverdb.FormParamsOf(form)
	i := slices.IndexFunc(params.Fields, func(f models.Field) bool { return f.ID == fieldID })
	if i < 0 {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "field not found")
		return
	}
	field := params.Fields[i]

	if req.Label != nil {
		field.Label = strings.TrimSpace(*req.Label)
	}
	if req.Required != nil {
		field.Required = *req.Required
	}
	if req.Options != nil {
		field.Options = normalizeOptions(req.Options)
	}
	if req.ClearCondition {
		field.ConditionalLogic = nil
	}
	if req.ShowIf != nil {
		rule := ruleFromInput(*req.ShowIf)
		if rule.FieldID == field.ID {
			writeValidationError(w, map[string]string{"show_if.field_id": "a field cannot depend on itself"})
			return
		}
		if form.FieldByID(rule.FieldID) == nil {
			writeValidationError(w, map[string]string{"show_if.field_id": "no such field in this form"})
			return
		}
		field.ConditionalLogic = &models.ConditionalLogic{ShowIf: rule}
	}
	params.Fields[i] = field

	if !s.storeFields(w, r, form.ID, params) {
		return
	}
	writeJSON(w, http.StatusOK, field)
}

// handleRemoveField handles DELETE /v1/forms/{id}/fields/{fieldID}. Rules of
// other fields that pointed at it are left in place and show up in the check.
func (s *Server) handleRemoveField(w http.ResponseWriter, r *http.Request) {
	form := getFormFromContext(r.Context())
	fieldID := r.PathValue("fieldID")

	params := serverdb.FormParamsOf(form)
	i := slices.IndexFunc(params.Fields, func(f models.Field) bool { return f.ID == fieldID })
	if i < 0 {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "field not found")
		return
	}
	params.Fields = slices.Delete(params.Fields, i, i+1)

	if !s.storeFields(w, r, form.ID, params) {
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleMoveField handles POST /v1/forms/{id}/fields/{fieldID}/move.
func (s *Server) handleMoveField(w http.ResponseWriter, r *http.Request) {
	form := getFormFromContext(r.Context())
	fieldID := r.PathValue("fieldID")

	var req MoveFieldRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "invalid json body")
		return
	}
	if errs := validateRequest(req); errs != nil {
		writeValidationError(w, errs)
		return
	}

	params := serverdb.FormParamsOf(form)
	from := slices.IndexFunc(params.Fields, func(f models.Field) bool { return f.ID == fieldID })
	if from < 0 {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "field not found")
		return
	}
	if req.Index >= len(params.Fields) {
		writeValidationError(w, map[string]string{"index": fmt.Sprintf("must be below %d", len(params.Fields))})
		return
	}

	params.Fields = moveField(params.Fields, from, req.Index)
	s.saveForm(w, r, form.ID, params, http.StatusOK)
}

// moveField returns fields with the element at from placed at to.
func moveField(fields []models.Field, from, to int) []models.Field {
	f := fields[from]
	fields = slices.Delete(fields, from, from+1)
	return slices.Insert(fields, to, f)
}

func (s *Server) storeFields(w http.ResponseWriter, r *http.Request, formID string, params serverdb.FormParams) bool {
	updated, err := s.store.UpdateForm(formID, params)
	if err != nil {
		logFor(r.Context()).Error("update form fields", "err", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to update form")
		return false
	}
	if updated == nil {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "form not found")
		return false
	}
	return true
}
