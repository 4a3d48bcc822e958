package serverdb

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/marcus/formsync/internal/models"
)

const submissionColumns = `id, form_id, data, submitted_at, synced, airtable_record_id, sync_error`

func scanSubmission(row interface{ Scan(...any) error }) (*models.Submission, error) {
	s := &models.Submission{}
	var data string
	if err := row.Scan(&s.ID, &s.FormID, &data, &s.SubmittedAt, &s.Synced, &s.AirtableRecordID, &s.SyncError); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(data), &s.Data); err != nil {
		return nil, fmt.Errorf("decode data of submission %s: %w", s.ID, err)
	}
	if s.Data == nil {
		s.Data = models.FormValues{}
	}
	return s, nil
}

// CreateSubmission stores submitted values for a form. The caller is expected
// to have reduced data to the visible fields.
func (db *ServerDB) CreateSubmission(formID string, data models.FormValues) (*models.Submission, error) {
	if data == nil {
		data = models.FormValues{}
	}
	b, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode submission data: %w", err)
	}

	id, err := generateID("s_")
	if err != nil {
		return nil, fmt.Errorf("generate submission id: %w", err)
	}

	now := time.Now().UTC()
	_, err = db.conn.Exec(
		`INSERT INTO submissions (id, form_id, data, submitted_at) VALUES (?, ?, ?, ?)`,
		id, formID, string(b), now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert submission: %w", err)
	}

	return &models.Submission{ID: id, FormID: formID, Data: data, SubmittedAt: now}, nil
}

// GetSubmission returns the submission with the given ID, or nil if not found.
func (db *ServerDB) GetSubmission(id string) (*models.Submission, error) {
	s, err := scanSubmission(db.conn.QueryRow(`SELECT `+submissionColumns+` FROM submissions WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get submission: %w", err)
	}
	return s, nil
}

// ListSubmissions returns a form's submissions, newest first.
func (db *ServerDB) ListSubmissions(formID string) ([]*models.Submission, error) {
	rows, err := db.conn.Query(
		`SELECT `+submissionColumns+` FROM submissions WHERE form_id = ? ORDER BY submitted_at DESC, id`, formID,
	)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	defer rows.Close()

	var subs []*models.Submission
	for rows.Next() {
		s, err := scanSubmission(rows)
		if err != nil {
			return nil, fmt.Errorf("scan submission: %w", err)
		}
		subs = append(subs, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list submissions: iterate: %w", err)
	}
	return subs, nil
}

// MarkSubmissionSynced records the Airtable record created for a submission
// and clears any earlier sync error.
func (db *ServerDB) MarkSubmissionSynced(id, recordID string) error {
	res, err := db.conn.Exec(
		`UPDATE submissions SET synced = 1, airtable_record_id = ?, sync_error = '' WHERE id = ?`,
		recordID, id,
	)
	if err != nil {
		return fmt.Errorf("mark submission synced: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("submission not found: %s", id)
	}
	return nil
}

// MarkSubmissionSyncFailed records why the last sync attempt failed.
// A submission that already synced keeps its record ID.
func (db *ServerDB) MarkSubmissionSyncFailed(id, message string) error {
	res, err := db.conn.Exec(`UPDATE submissions SET sync_error = ? WHERE id = ?`, message, id)
	if err != nil {
		return fmt.Errorf("mark submission sync failed: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("submission not found: %s", id)
	}
	return nil
}

// CountUnsynced returns how many of a form's submissions have not reached Airtable.
func (db *ServerDB) CountUnsynced(formID string) (int, error) {
	var n int
	if err := db.conn.QueryRow(
		`SELECT COUNT(*) FROM submissions WHERE form_id = ? AND synced = 0`, formID,
	).Scan(&n); err != nil {
		return 0, fmt.Errorf("count unsynced: %w", err)
	}
	return n, nil
}
