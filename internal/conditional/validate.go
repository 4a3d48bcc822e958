package conditional

import (
	"fmt"
	"regexp"

	"github.com/marcus/formsync/internal/models"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// MsgInvalidEmail is reported for email fields that do not look like an address.
const MsgInvalidEmail = "Please enter a valid email address"

// Validate checks values against the fields visible for them and returns a
// message per failing field ID. Hidden fields are never validated.
// A nil map means the values are acceptable.
func Validate(fields []models.Field, values models.FormValues) map[string]string {
	var errs map[string]string
	fail := func(id, msg string) {
		if errs == nil {
			errs = make(map[string]string)
		}
		errs[id] = msg
	}

	for _, f := range VisibleFields(fields, values) {
		v := StringValue(values[f.ID])
		if f.Required && isBlank(v) {
			fail(f.ID, fmt.Sprintf("%s is required", f.Label))
		}
		if f.Type == models.FieldEmail && v != "" && !emailPattern.MatchString(v) {
			fail(f.ID, MsgInvalidEmail)
		}
	}
	return errs
}

// ValidEmail reports whether s looks like an email address.
func ValidEmail(s string) bool {
	return emailPattern.MatchString(s)
}
