package browse

import (
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/x/ansi"

	"github.com/marcus/formsync/internal/models"
)

func testData() (*models.Form, []*models.Submission) {
	form := &models.Form{
		ID:    "frm_1",
		Title: "RSVP",
		Fields: []models.Field{
			{ID: "name", Type: models.FieldText, Label: "Name"},
		},
	}
	now := time.Now()
	subs := []*models.Submission{
		{ID: "sub_1", FormID: "frm_1", Data: models.FormValues{"name": "Ann"}, SubmittedAt: now, Synced: true, AirtableRecordID: "rec1"},
		{ID: "sub_2", FormID: "frm_1", Data: models.FormValues{"name": "Bob"}, SubmittedAt: now, SyncError: "boom"},
	}
	return form, subs
}

func key(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestRows(t *testing.T) {
	form, subs := testData()
	m := New(form, subs, nil)

	rows := m.rows()
	if len(rows) != 2 {
		t.Fatalf("rows = %d", len(rows))
	}
	if rows[0][2] != "synced" || rows[0][3] != "rec1" {
		t.Errorf("row 0 = %v", rows[0])
	}
	if rows[1][2] != "failed" || rows[1][3] != "boom" {
		t.Errorf("row 1 = %v", rows[1])
	}
}

func TestNavigationAndDetail(t *testing.T) {
	form, subs := testData()
	var model tea.Model = New(form, subs, nil)

	if got := model.(Model).Selected().ID; got != "sub_1" {
		t.Fatalf("initial selection = %s", got)
	}
	model, _ = model.Update(tea.KeyMsg{Type: tea.KeyDown})
	m := model.(Model)
	if got := m.Selected().ID; got != "sub_2" {
		t.Fatalf("after down = %s", got)
	}
	view := ansi.Strip(m.View())
	if !strings.Contains(view, "Name: Bob") {
		t.Errorf("detail missing selected answers:\n%s", view)
	}
	if strings.Contains(view, "s sync") {
		t.Errorf("sync help shown without a resync func:\n%s", view)
	}
}

func TestResync(t *testing.T) {
	form, subs := testData()
	var called string
	resync := func(id string) (*models.Submission, error) {
		called = id
		return &models.Submission{ID: id, Synced: true, AirtableRecordID: "rec2"}, nil
	}
	var model tea.Model = New(form, subs, resync)
	model, _ = model.Update(tea.KeyMsg{Type: tea.KeyDown})

	model, cmd := model.Update(key("s"))
	if cmd == nil {
		t.Fatal("expected a resync command")
	}
	if model.(Model).pending != "sub_2" {
		t.Errorf("pending = %q", model.(Model).pending)
	}

	// A second press while one is running is ignored.
	if _, again := model.Update(key("s")); again != nil {
		t.Error("expected no command while a resync is pending")
	}

	model, _ = model.Update(cmd())
	m := model.(Model)
	if called != "sub_2" {
		t.Errorf("resync called with %q", called)
	}
	if m.pending != "" || !strings.Contains(m.status, "synced sub_2 as rec2") {
		t.Errorf("status = %q pending = %q", m.status, m.pending)
	}
	if row := m.rows()[1]; row[2] != "synced" {
		t.Errorf("row not refreshed: %v", row)
	}
}

func TestResyncError(t *testing.T) {
	form, subs := testData()
	m := New(form, subs, func(string) (*models.Submission, error) { return nil, errors.New("offline") })

	model, _ := m.Update(resyncedMsg{id: "sub_1", err: errors.New("offline")})
	if got := model.(Model).status; got != "sync sub_1 failed: offline" {
		t.Errorf("status = %q", got)
	}
}

func TestQuit(t *testing.T) {
	form, subs := testData()
	_, cmd := New(form, subs, nil).Update(key("q"))
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("expected tea.QuitMsg")
	}
}

func TestEmpty(t *testing.T) {
	form, _ := testData()
	m := New(form, nil, nil)
	if m.Selected() != nil {
		t.Error("expected no selection")
	}
	if _, cmd := m.Update(key("s")); cmd != nil {
		t.Error("expected no command for empty table")
	}
}
