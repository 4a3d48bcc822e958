package api

import (
	"encoding/json"
	"net/http"

	"github.com/marcus/formsync/internal/conditional"
	"github.com/marcus/formsync/internal/models"
)

// VisibleRequest is the JSON body for POST /v1/forms/{id}/visible.
type VisibleRequest struct {
	Values models.FormValues `json:"values"`
}

// VisibleResponse lists the fields shown for the posted values, in form order.
type VisibleResponse struct {
	FieldIDs []string       `json:"field_ids"`
	Fields   []models.Field `json:"fields"`
}

// CheckResponse is the diagnostic report of GET /v1/forms/{id}/check.
type CheckResponse struct {
	OK     bool                `json:"ok"`
	Issues []conditional.Issue `json:"issues"`
}

// handleReferences handles GET /v1/forms/{id}/references?exclude=<fieldID>,
// listing the fields a rule may use as its source.
func (s *Server) handleReferences(w http.ResponseWriter, r *http.Request) {
	form := getFormFromContext(r.Context())
	writeJSON(w, http.StatusOK, conditional.EligibleReferences(form.Fields, r.URL.Query().Get("exclude")))
}

// handleVisible handles POST /v1/forms/{id}/visible.
func (s *Server) handleVisible(w http.ResponseWriter, r *http.Request) {
	form := getFormFromContext(r.Context())

	var req VisibleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "invalid json body")
		return
	}

	visible := conditional.VisibleFields(form.Fields, req.Values)
	resp := VisibleResponse{
		FieldIDs: make([]string, 0, len(visible)),
		Fields:   visible,
	}
	for _, f := range visible {
		resp.FieldIDs = append(resp.FieldIDs, f.ID)
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleCheckForm handles GET /v1/forms/{id}/check.
func (s *Server) handleCheckForm(w http.ResponseWriter, r *http.Request) {
	form := getFormFromContext(r.Context())

	issues := conditional.Check(form.Fields)
	if issues == nil {
		issues = []conditional.Issue{}
	}
	writeJSON(w, http.StatusOK, CheckResponse{OK: len(issues) == 0, Issues: issues})
}
