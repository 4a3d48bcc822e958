// Package output provides styled terminal output helpers (success, error,
// warning, form and submission formatting) using lipgloss.
package output

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/marcus/formsync/internal/conditional"
	"github.com/marcus/formsync/internal/models"
)

var (
	// Styles
	titleStyle   = lipgloss.NewStyle().Bold(true)
	subtleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	typeStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("45"))
	ruleStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("141"))
	requireStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("212"))
)

// Success prints a success message
func Success(format string, args ...any) {
	fmt.Println(successStyle.Render(fmt.Sprintf(format, args...)))
}

// Error prints an error message
func Error(format string, args ...any) {
	fmt.Println(errorStyle.Render("ERROR: " + fmt.Sprintf(format, args...)))
}

// Warning prints a warning message
func Warning(format string, args ...any) {
	fmt.Println(warningStyle.Render("Warning: " + fmt.Sprintf(format, args...)))
}

// Info prints an info message
func Info(format string, args ...any) {
	fmt.Printf(format+"\n", args...)
}

// JSON outputs data as JSON
func JSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

// JSONError outputs an error in the server's error shape.
func JSONError(code, message string, fields map[string]string) {
	errObj := map[string]any{
		"code":    code,
		"message": message,
	}
	if len(fields) > 0 {
		errObj["fields"] = fields
	}
	data, _ := json.MarshalIndent(map[string]any{"error": errObj}, "", "  ")
	fmt.Println(string(data))
}

// Truncate shortens s to width terminal cells, ANSI sequences included.
func Truncate(s string, width int) string {
	if width <= 0 {
		return ""
	}
	return ansi.Truncate(s, width, "…")
}

// FormatTimeAgo formats a time as a human-readable "ago" string
func FormatTimeAgo(t time.Time) string {
	diff := time.Since(t)

	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		return fmt.Sprintf("%dm ago", int(diff.Minutes()))
	case diff < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(diff.Hours()))
	case diff < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(diff.Hours()/24))
	default:
		return t.Format("2006-01-02")
	}
}

// FormatFieldType formats a field type tag with color
func FormatFieldType(t models.FieldType) string {
	return typeStyle.Render(fmt.Sprintf("[%s]", t))
}

// FormatRule describes a show-if rule using the referenced field's label
// when the form has it.
func FormatRule(rule *models.ConditionalRule, form *models.Form) string {
	if rule == nil {
		return ""
	}
	ref := rule.FieldID
	if form != nil {
		if f := form.FieldByID(rule.FieldID); f != nil && f.Label != "" {
			ref = fmt.Sprintf("%q", f.Label)
		}
	}
	s := fmt.Sprintf("show if %s %s", ref, strings.ReplaceAll(string(rule.Operator), "_", " "))
	if rule.Operator.NeedsValue() {
		s += fmt.Sprintf(" %q", rule.Value)
	}
	return s
}

// FormatFieldLine formats one field of a form as a numbered line.
func FormatFieldLine(i int, f models.Field, form *models.Form) string {
	var parts []string
	parts = append(parts, subtleStyle.Render(fmt.Sprintf("%2d.", i+1)))
	parts = append(parts, FormatFieldType(f.Type))
	label := f.Label
	if f.Required {
		label += requireStyle.Render(" *")
	}
	parts = append(parts, label)
	parts = append(parts, subtleStyle.Render(f.ID))
	if rule := f.Rule(); rule != nil {
		parts = append(parts, ruleStyle.Render("("+FormatRule(rule, form)+")"))
	}
	return strings.Join(parts, "  ")
}

// FormatFormShort formats a form in the one-line listing format
func FormatFormShort(id, title string, fieldCount int, updatedAt time.Time) string {
	noun := "fields"
	if fieldCount == 1 {
		noun = "field"
	}
	return strings.Join([]string{
		titleStyle.Render(id),
		title,
		subtleStyle.Render(fmt.Sprintf("%d %s", fieldCount, noun)),
		subtleStyle.Render(FormatTimeAgo(updatedAt)),
	}, "  ")
}

// FormatFormLong formats a form with its description and every field.
func FormatFormLong(form *models.Form) string {
	var sb strings.Builder

	sb.WriteString(titleStyle.Render(fmt.Sprintf("%s: %s", form.ID, form.Title)))
	sb.WriteString("\n")
	if form.AirtableBaseID != "" || form.AirtableTableID != "" {
		sb.WriteString(fmt.Sprintf("Airtable: %s / %s\n", orDash(form.AirtableBaseID), orDash(form.AirtableTableID)))
	}
	sb.WriteString(subtleStyle.Render("Updated " + FormatTimeAgo(form.UpdatedAt)))
	sb.WriteString("\n")

	if form.Description != "" {
		sb.WriteString("\n")
		sb.WriteString(RenderDescription(form.Description))
		sb.WriteString("\n")
	}

	sb.WriteString(SectionHeader("Fields"))
	if len(form.Fields) == 0 {
		sb.WriteString(subtleStyle.Render("  (none)"))
		sb.WriteString("\n")
	}
	for i, f := range form.Fields {
		sb.WriteString("  ")
		sb.WriteString(FormatFieldLine(i, f, form))
		sb.WriteString("\n")
		if f.Type == models.FieldSelect && len(f.Options) > 0 {
			sb.WriteString(IndentString(subtleStyle.Render(strings.Join(f.Options, " | ")), 8))
			sb.WriteString("\n")
		}
	}

	return sb.String()
}

// SyncBadge returns the Airtable sync state of a submission with a symbol
// e.g., "✓ synced", "✗ failed", "○ pending"
func SyncBadge(sub *models.Submission) string {
	switch {
	case sub.Synced:
		return successStyle.Render("✓ synced")
	case sub.SyncError != "":
		return errorStyle.Render("✗ failed")
	default:
		return subtleStyle.Render("○ pending")
	}
}

// FormatSubmissionShort formats a submission as one line.
func FormatSubmissionShort(sub *models.Submission) string {
	parts := []string{
		titleStyle.Render(sub.ID),
		sub.SubmittedAt.Local().Format("2006-01-02 15:04"),
		SyncBadge(sub),
	}
	if sub.AirtableRecordID != "" {
		parts = append(parts, subtleStyle.Render(sub.AirtableRecordID))
	}
	if sub.SyncError != "" {
		parts = append(parts, errorStyle.Render(Truncate(sub.SyncError, 60)))
	}
	return strings.Join(parts, "  ")
}

// FormatSubmissionData lists a submission's answers by field label, in
// form order. Answers for fields no longer on the form come last.
func FormatSubmissionData(sub *models.Submission, form *models.Form) []string {
	var lines []string
	seen := make(map[string]bool, len(sub.Data))
	if form != nil {
		for _, f := range form.Fields {
			v, ok := sub.Data[f.ID]
			if !ok {
				continue
			}
			seen[f.ID] = true
			lines = append(lines, fmt.Sprintf("%s: %s", f.Label, displayValue(v)))
		}
	}
	var rest []string
	for k, v := range sub.Data {
		if !seen[k] {
			rest = append(rest, fmt.Sprintf("%s: %s", subtleStyle.Render(k), displayValue(v)))
		}
	}
	sort.Strings(rest)
	return append(lines, rest...)
}

// FormatIssue formats a form diagnostic.
func FormatIssue(issue conditional.Issue) string {
	return fmt.Sprintf("%s %s  %s", warningStyle.Render("!"), titleStyle.Render(issue.FieldID), issue.Message)
}

// SectionHeader returns a formatted section header for CLI output
// e.g., "\nFIELDS:\n"
func SectionHeader(title string) string {
	return fmt.Sprintf("\n%s:\n", strings.ToUpper(title))
}

// IndentString indents each line in a string by the specified number of spaces
func IndentString(s string, spaces int) string {
	if s == "" {
		return ""
	}
	indent := strings.Repeat(" ", spaces)
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = indent + line
	}
	return strings.Join(lines, "\n")
}

// displayValue renders an answer for people; unlike rule comparison, an
// unticked checkbox reads "no" rather than blank.
func displayValue(v any) string {
	if b, ok := v.(bool); ok {
		if b {
			return "yes"
		}
		return "no"
	}
	return conditional.StringValue(v)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
