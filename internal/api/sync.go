package api

import (
	"context"
	"fmt"
	"time"

	"github.com/marcus/formsync/internal/airtable"
	"github.com/marcus/formsync/internal/models"
	"golang.org/x/oauth2"
)

// airtableClient returns a client authenticated as userID. Refreshed OAuth
// tokens are written back to the store as they are issued.
func (s *Server) airtableClient(ctx context.Context, userID string) (*airtable.Client, error) {
	conn, err := s.store.GetAirtableConnection(userID)
	if err != nil {
		return nil, fmt.Errorf("get airtable connection: %w", err)
	}
	if conn == nil {
		return nil, airtable.ErrNotConfigured
	}

	tok := &oauth2.Token{
		AccessToken:  conn.AccessToken,
		RefreshToken: conn.RefreshToken,
		TokenType:    conn.TokenType,
	}
	if conn.ExpiresAt != nil {
		tok.Expiry = *conn.ExpiresAt
	}

	var ts oauth2.TokenSource
	if s.oauth != nil {
		ts = s.oauth.TokenSource(ctx, tok, func(t *oauth2.Token) error {
			var exp *time.Time
			if !t.Expiry.IsZero() {
				e := t.Expiry.UTC()
				exp = &e
			}
			return s.store.UpdateAirtableToken(userID, t.AccessToken, t.RefreshToken, exp)
		})
	} else {
		ts = oauth2.StaticTokenSource(tok)
	}

	return airtable.NewClient(ctx, s.config.AirtableAPIURL, ts), nil
}

// syncTarget resolves the base and table a form's submissions go to: the
// form's own settings, else the owner's defaults.
func (s *Server) syncTarget(form *models.Form) (baseID, tableID string, err error) {
	baseID, tableID = form.AirtableBaseID, form.AirtableTableID
	if baseID != "" && tableID != "" {
		return baseID, tableID, nil
	}

	owner, err := s.store.GetUserByID(form.UserID)
	if err != nil {
		return "", "", fmt.Errorf("get form owner: %w", err)
	}
	if owner == nil {
		return "", "", airtable.ErrNotConfigured
	}
	if baseID == "" {
		baseID = owner.AirtableBaseID
	}
	if tableID == "" {
		tableID = owner.AirtableTableID
	}
	if baseID == "" || tableID == "" {
		return "", "", airtable.ErrNotConfigured
	}
	return baseID, tableID, nil
}

// syncSubmission pushes sub to Airtable as a new record and records the
// outcome on the submission. It returns airtable.ErrNotConfigured, without
// touching the submission, when the owner has no token or no target table.
func (s *Server) syncSubmission(ctx context.Context, form *models.Form, sub *models.Submission) error {
	baseID, tableID, err := s.syncTarget(form)
	if err != nil {
		return err
	}
	client, err := s.airtableClient(ctx, form.UserID)
	if err != nil {
		return err
	}

	recordID, err := client.CreateRecord(ctx, baseID, tableID, airtable.RecordFields(form, sub.Data, sub.SubmittedAt))
	if err != nil {
		s.metrics.RecordSync(false)
		sub.Synced = false
		sub.SyncError = err.Error()
		if merr := s.store.MarkSubmissionSyncFailed(sub.ID, sub.SyncError); merr != nil {
			logFor(ctx).Error("mark submission sync failed", "submission", sub.ID, "err", merr)
		}
		return fmt.Errorf("create airtable record: %w", err)
	}

	s.metrics.RecordSync(true)
	sub.Synced = true
	sub.AirtableRecordID = recordID
	sub.SyncError = ""
	if err := s.store.MarkSubmissionSynced(sub.ID, recordID); err != nil {
		return fmt.Errorf("mark submission synced: %w", err)
	}
	return nil
}
