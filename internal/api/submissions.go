package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/marcus/formsync/internal/airtable"
	"github.com/marcus/formsync/internal/conditional"
	"github.com/marcus/formsync/internal/models"
	"github.com/marcus/formsync/internal/webhook"
)

// SubmitRequest is the JSON body for POST /v1/forms/{id}/submissions.
type SubmitRequest struct {
	Data models.FormValues `json:"data"`
}

// SubmissionList is the response of GET /v1/forms/{id}/submissions.
type SubmissionList struct {
	Submissions []*models.Submission `json:"submissions"`
	Unsynced    int                  `json:"unsynced"`
}

// handleSubmit handles POST /v1/forms/{id}/submissions. Only visible fields
// are validated and stored. The Airtable sync runs before the response but
// never fails the submission.
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	form := getFormFromContext(r.Context())

	var req SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "invalid json body")
		return
	}
	if errs := conditional.Validate(form.Fields, req.Data); errs != nil {
		writeValidationError(w, errs)
		return
	}

	sub, err := s.store.CreateSubmission(form.ID, conditional.VisibleValues(form.Fields, req.Data))
	if err != nil {
		logFor(r.Context()).Error("create submission", "err", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to store submission")
		return
	}
	s.metrics.RecordSubmission()
	logger := logFor(r.Context()).With("submission", sub.ID)

	if err := s.syncSubmission(r.Context(), form, sub); err != nil {
		if errors.Is(err, airtable.ErrNotConfigured) {
			logger.Debug("airtable sync skipped")
		} else {
			logger.Warn("airtable sync failed", "err", err)
		}
	}

	s.dispatchWebhook(form, sub)

	writeJSON(w, http.StatusCreated, sub)
}

// dispatchWebhook delivers the submission notification in the background.
func (s *Server) dispatchWebhook(form *models.Form, sub *models.Submission) {
	if s.webhook == nil {
		return
	}
	payload := webhook.BuildPayload(form, sub)
	s.goBackground("webhook", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := s.webhook.Dispatch(ctx, payload); err != nil {
			s.metrics.RecordWebhookFailure()
			slog.Warn("webhook delivery failed", "submission", sub.ID, "err", err)
		}
	})
}

// handleListSubmissions handles GET /v1/forms/{id}/submissions.
func (s *Server) handleListSubmissions(w http.ResponseWriter, r *http.Request) {
	form := getFormFromContext(r.Context())

	subs, err := s.store.ListSubmissions(form.ID)
	if err != nil {
		logFor(r.Context()).Error("list submissions", "err", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to list submissions")
		return
	}
	if subs == nil {
		subs = []*models.Submission{}
	}

	unsynced := 0
	for _, sub := range subs {
		if !sub.Synced {
			unsynced++
		}
	}

	writeJSON(w, http.StatusOK, SubmissionList{Submissions: subs, Unsynced: unsynced})
}

// handleResync handles POST /v1/submissions/{id}/sync.
func (s *Server) handleResync(w http.ResponseWriter, r *http.Request) {
	user := getUserFromContext(r.Context())

	sub, err := s.store.GetSubmission(r.PathValue("id"))
	if err != nil {
		logFor(r.Context()).Error("get submission", "err", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to get submission")
		return
	}
	if sub == nil {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "submission not found")
		return
	}

	form, err := s.store.GetForm(sub.FormID)
	if err != nil {
		logFor(r.Context()).Error("get form of submission", "err", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to get form")
		return
	}
	if form == nil || form.UserID != user.UserID {
		writeError(w, http.StatusForbidden, ErrCodeForbidden, "you do not own this submission")
		return
	}

	sub.SyncError = ""
	if err := s.syncSubmission(r.Context(), form, sub); err != nil {
		if errors.Is(err, airtable.ErrNotConfigured) {
			writeError(w, http.StatusBadRequest, ErrCodeAirtableNotConfigured, "connect airtable and choose a base and table first")
			return
		}
		// a failed record creation is reported on the submission itself
		if sub.SyncError == "" {
			logFor(r.Context()).Error("resync submission", "submission", sub.ID, "err", err)
			writeError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to sync submission")
			return
		}
		logFor(r.Context()).Warn("resync failed", "submission", sub.ID, "err", err)
	}

	writeJSON(w, http.StatusOK, sub)
}
