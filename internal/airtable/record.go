package airtable

import (
	"time"

	"github.com/marcus/formsync/internal/models"
)

// Column names added to every synced record.
const (
	ColumnFormName    = "Form Name"
	ColumnSubmittedAt = "Submitted At"
)

// RecordFields maps submitted values to Airtable columns named after the
// field labels. Values for IDs that are not fields of the form are dropped.
func RecordFields(form *models.Form, values models.FormValues, submittedAt time.Time) map[string]any {
	out := make(map[string]any, len(values)+2)
	for _, f := range form.Fields {
		v, ok := values[f.ID]
		if !ok {
			continue
		}
		col := f.Label
		if col == "" {
			col = f.ID
		}
		out[col] = v
	}
	out[ColumnFormName] = form.Title
	out[ColumnSubmittedAt] = submittedAt.UTC().Format(time.RFC3339)
	return out
}
