package serverdb

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/marcus/formsync/internal/models"
)

// FormParams carries the editable parts of a form.
type FormParams struct {
	Title           string
	Description     string
	Fields          []models.Field
	AirtableBaseID  string
	AirtableTableID string
}

const formColumns = `id, user_id, title, description, fields, airtable_base_id, airtable_table_id, created_at, updated_at`

func scanForm(row interface{ Scan(...any) error }) (*models.Form, error) {
	f := &models.Form{}
	var fields string
	if err := row.Scan(&f.ID, &f.UserID, &f.Title, &f.Description, &fields,
		&f.AirtableBaseID, &f.AirtableTableID, &f.CreatedAt, &f.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(fields), &f.Fields); err != nil {
		return nil, fmt.Errorf("decode fields of form %s: %w", f.ID, err)
	}
	if f.Fields == nil {
		f.Fields = []models.Field{}
	}
	return f, nil
}

func encodeFields(fields []models.Field) (string, error) {
	if fields == nil {
		fields = []models.Field{}
	}
	b, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("encode fields: %w", err)
	}
	return string(b), nil
}

// CreateForm stores a new form owned by userID.
func (db *ServerDB) CreateForm(userID string, p FormParams) (*models.Form, error) {
	p.Title = strings.TrimSpace(p.Title)
	if p.Title == "" {
		return nil, fmt.Errorf("form title is required")
	}

	id, err := generateID("f_")
	if err != nil {
		return nil, fmt.Errorf("generate form id: %w", err)
	}
	fields, err := encodeFields(p.Fields)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	_, err = db.conn.Exec(
		`INSERT INTO forms (`+formColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, userID, p.Title, p.Description, fields, p.AirtableBaseID, p.AirtableTableID, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert form: %w", err)
	}

	if p.Fields == nil {
		p.Fields = []models.Field{}
	}
	return &models.Form{
		ID:              id,
		UserID:          userID,
		Title:           p.Title,
		Description:     p.Description,
		Fields:          p.Fields,
		AirtableBaseID:  p.AirtableBaseID,
		AirtableTableID: p.AirtableTableID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// GetForm returns the form with the given ID, or nil if not found.
func (db *ServerDB) GetForm(id string) (*models.Form, error) {
	f, err := scanForm(db.conn.QueryRow(`SELECT `+formColumns+` FROM forms WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get form: %w", err)
	}
	return f, nil
}

// ListFormsForUser returns the user's forms, most recently updated first.
func (db *ServerDB) ListFormsForUser(userID string) ([]*models.Form, error) {
	rows, err := db.conn.Query(
		`SELECT `+formColumns+` FROM forms WHERE user_id = ? ORDER BY updated_at DESC, id`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list forms: %w", err)
	}
	defer rows.Close()

	var forms []*models.Form
	for rows.Next() {
		f, err := scanForm(rows)
		if err != nil {
			return nil, fmt.Errorf("scan form: %w", err)
		}
		forms = append(forms, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list forms: iterate: %w", err)
	}
	return forms, nil
}

// UpdateForm replaces the editable parts of a form and bumps updated_at.
// Returns nil if the form does not exist.
func (db *ServerDB) UpdateForm(id string, p FormParams) (*models.Form, error) {
	p.Title = strings.TrimSpace(p.Title)
	if p.Title == "" {
		return nil, fmt.Errorf("form title is required")
	}
	fields, err := encodeFields(p.Fields)
	if err != nil {
		return nil, err
	}

	res, err := db.conn.Exec(
		`UPDATE forms SET title = ?, description = ?, fields = ?, airtable_base_id = ?, airtable_table_id = ?, updated_at = ?
		 WHERE id = ?`,
		p.Title, p.Description, fields, p.AirtableBaseID, p.AirtableTableID, time.Now().UTC(), id,
	)
	if err != nil {
		return nil, fmt.Errorf("update form: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return nil, nil
	}
	return db.GetForm(id)
}

// DeleteForm removes a form and, by cascade, its submissions.
func (db *ServerDB) DeleteForm(id string) error {
	res, err := db.conn.Exec(`DELETE FROM forms WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete form: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("form not found: %s", id)
	}
	return nil
}

// FormParamsOf returns the editable parts of f, for read-modify-write updates.
func FormParamsOf(f *models.Form) FormParams {
	fields := make([]models.Field, len(f.Fields))
	copy(fields, f.Fields)
	return FormParams{
		Title:           f.Title,
		Description:     f.Description,
		Fields:          fields,
		AirtableBaseID:  f.AirtableBaseID,
		AirtableTableID: f.AirtableTableID,
	}
}
