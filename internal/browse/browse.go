// Package browse is the interactive submissions table behind
// `formsync submissions list --browse`.
package browse

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/marcus/formsync/internal/models"
	"github.com/marcus/formsync/internal/output"
)

var (
	baseStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.NormalBorder()).
			BorderForeground(lipgloss.Color("240"))
	detailStyle = lipgloss.NewStyle().PaddingLeft(1)
	helpStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
)

const detailHeight = 8

// ResyncFunc pushes one submission to Airtable again and returns its new state.
type ResyncFunc func(id string) (*models.Submission, error)

// resyncedMsg carries the result of a ResyncFunc back into Update.
type resyncedMsg struct {
	id  string
	sub *models.Submission
	err error
}

// Model is the bubbletea model for the submissions browser.
type Model struct {
	form    *models.Form
	subs    []*models.Submission
	table   table.Model
	resync  ResyncFunc
	pending string // id of the submission being resynced
	status  string
}

// New builds the browser for a form's submissions. resync may be nil, in
// which case the sync key is disabled.
func New(form *models.Form, subs []*models.Submission, resync ResyncFunc) Model {
	columns := []table.Column{
		{Title: "ID", Width: 22},
		{Title: "Submitted", Width: 16},
		{Title: "Sync", Width: 8},
		{Title: "Airtable", Width: 30},
	}
	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(10),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(false)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)
	t.SetStyles(s)

	m := Model{form: form, subs: subs, table: t, resync: resync}
	m.table.SetRows(m.rows())
	return m
}

func (m Model) rows() []table.Row {
	rows := make([]table.Row, 0, len(m.subs))
	for _, sub := range m.subs {
		rows = append(rows, table.Row{
			sub.ID,
			sub.SubmittedAt.Local().Format("2006-01-02 15:04"),
			syncState(sub),
			airtableColumn(sub),
		})
	}
	return rows
}

func syncState(sub *models.Submission) string {
	switch {
	case sub.Synced:
		return "synced"
	case sub.SyncError != "":
		return "failed"
	default:
		return "pending"
	}
}

func airtableColumn(sub *models.Submission) string {
	if sub.AirtableRecordID != "" {
		return sub.AirtableRecordID
	}
	return sub.SyncError
}

// Selected returns the highlighted submission, or nil for an empty table.
func (m Model) Selected() *models.Submission {
	i := m.table.Cursor()
	if i < 0 || i >= len(m.subs) {
		return nil
	}
	return m.subs[i]
}

func (m Model) Init() tea.Cmd { return nil }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.table.SetWidth(msg.Width - 2)
		m.table.SetHeight(max(msg.Height-detailHeight-6, 3))
		return m, nil

	case resyncedMsg:
		m.pending = ""
		if msg.err != nil {
			m.status = fmt.Sprintf("sync %s failed: %v", msg.id, msg.err)
			return m, nil
		}
		for i, sub := range m.subs {
			if sub.ID == msg.id {
				m.subs[i] = msg.sub
			}
		}
		m.table.SetRows(m.rows())
		if msg.sub.Synced {
			m.status = fmt.Sprintf("synced %s as %s", msg.id, msg.sub.AirtableRecordID)
		} else {
			m.status = fmt.Sprintf("sync %s failed: %s", msg.id, msg.sub.SyncError)
		}
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "s":
			sub := m.Selected()
			if sub == nil || m.resync == nil || m.pending != "" {
				return m, nil
			}
			m.pending = sub.ID
			m.status = "syncing " + sub.ID + "..."
			return m, m.resyncCmd(sub.ID)
		}
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m Model) resyncCmd(id string) tea.Cmd {
	resync := m.resync
	return func() tea.Msg {
		sub, err := resync(id)
		return resyncedMsg{id: id, sub: sub, err: err}
	}
}

func (m Model) View() string {
	var sb strings.Builder
	sb.WriteString(lipgloss.NewStyle().Bold(true).Render(m.form.Title))
	sb.WriteString(helpStyle.Render(fmt.Sprintf("  %d submissions", len(m.subs))))
	sb.WriteString("\n")
	sb.WriteString(baseStyle.Render(m.table.View()))
	sb.WriteString("\n")

	if sub := m.Selected(); sub != nil {
		lines := output.FormatSubmissionData(sub, m.form)
		if len(lines) > detailHeight {
			lines = append(lines[:detailHeight-1], fmt.Sprintf("… %d more", len(lines)-detailHeight+1))
		}
		sb.WriteString(detailStyle.Render(strings.Join(lines, "\n")))
		sb.WriteString("\n")
	}

	if m.status != "" {
		sb.WriteString(statusStyle.Render(m.status))
		sb.WriteString("\n")
	}
	help := "↑/↓ select • q quit"
	if m.resync != nil {
		help = "↑/↓ select • s sync to Airtable • q quit"
	}
	sb.WriteString(helpStyle.Render(help))
	sb.WriteString("\n")
	return sb.String()
}
