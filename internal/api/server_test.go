package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/marcus/formsync/internal/models"
	"github.com/marcus/formsync/internal/serverdb"
)

// newTestServer creates a Server backed by a temp database for testing.
func newTestServer(t *testing.T) (*Server, *serverdb.ServerDB) {
	return newTestServerWithConfig(t, nil)
}

// newTestServerWithConfig creates a test server with a custom config modifier.
func newTestServerWithConfig(t *testing.T, modCfg func(*Config)) (*Server, *serverdb.ServerDB) {
	t.Helper()

	store, err := serverdb.Open(filepath.Join(t.TempDir(), "formsync.db"))
	if err != nil {
		t.Fatalf("open server db: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	cfg := Config{
		ListenAddr:              ":0",
		AllowSignup:             true,
		BaseURL:                 "http://localhost:8080",
		RateLimitPublic:         100000,
		RateLimitOther:          100000,
		RateLimitEventRetention: 24 * time.Hour,
	}
	if modCfg != nil {
		modCfg(&cfg)
	}

	srv, err := NewServer(cfg, store)
	if err != nil {
		t.Fatalf("create server: %v", err)
	}
	t.Cleanup(func() { srv.background.Wait() })

	return srv, store
}

// createTestUser creates a user and API key, returning the user ID and bearer token.
func createTestUser(t *testing.T, store *serverdb.ServerDB, email string) (string, string) {
	t.Helper()
	user, err := store.CreateUser(email, "Test User")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	token, _, err := store.GenerateAPIKey(user.ID, "test", nil)
	if err != nil {
		t.Fatalf("generate api key: %v", err)
	}
	return user.ID, token
}

func doRequest(srv *Server, method, path, token string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}

	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(w.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, w.Body.String())
	}
	return v
}

func expectStatus(t *testing.T, w *httptest.ResponseRecorder, want int) {
	t.Helper()
	if w.Code != want {
		t.Fatalf("expected %d, got %d: %s", want, w.Code, w.Body.String())
	}
}

// rsvpForm is the two-field form from the product walkthrough: b shows only
// when a equals "Yes".
func rsvpForm() FormRequest {
	return FormRequest{
		Title: "RSVP",
		Fields: []FieldInput{
			{ID: "a", Type: "select", Label: "Attending", Required: true, Options: []string{"Yes", "No"}},
			{ID: "b", Type: "text", Label: "Guest name", Required: true, ConditionalLogic: &ConditionalInput{
				ShowIf: RuleInput{FieldID: "a", Operator: "equals", Value: "Yes"},
			}},
			{ID: "c", Type: "email", Label: "Email"},
		},
	}
}

func createTestForm(t *testing.T, srv *Server, token string, req FormRequest) *models.Form {
	t.Helper()
	w := doRequest(srv, "POST", "/v1/forms", token, req)
	expectStatus(t, w, http.StatusCreated)
	return decode[*models.Form](t, w)
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	w := doRequest(srv, "GET", "/healthz", "", nil)
	expectStatus(t, w, http.StatusOK)

	resp := decode[map[string]string](t, w)
	if resp["status"] != "ok" {
		t.Fatalf("expected status ok, got %s", resp["status"])
	}
}

func TestSignup(t *testing.T) {
	srv, _ := newTestServer(t)

	w := doRequest(srv, "POST", "/v1/users", "", SignupRequest{Email: "Ada@Example.com", Name: "Ada"})
	expectStatus(t, w, http.StatusCreated)
	resp := decode[SignupResponse](t, w)
	if resp.User.Email != "ada@example.com" || !strings.HasPrefix(resp.APIKey, serverdb.APIKeyPrefix) {
		t.Fatalf("signup response = %+v", resp)
	}

	w = doRequest(srv, "GET", "/v1/users/me", resp.APIKey, nil)
	expectStatus(t, w, http.StatusOK)
	me := decode[UserResponse](t, w)
	if me.ID != resp.User.ID || me.Name != "Ada" || me.AirtableConnected {
		t.Fatalf("me = %+v", me)
	}

	w = doRequest(srv, "POST", "/v1/users", "", SignupRequest{Email: "ada@example.com"})
	expectStatus(t, w, http.StatusConflict)
}

func TestSignupValidation(t *testing.T) {
	srv, _ := newTestServer(t)

	w := doRequest(srv, "POST", "/v1/users", "", SignupRequest{Email: "not-an-email"})
	expectStatus(t, w, http.StatusBadRequest)
	resp := decode[ErrorResponse](t, w)
	if resp.Error.Code != ErrCodeValidationFailed || resp.Error.Fields["email"] == "" {
		t.Fatalf("error = %+v", resp.Error)
	}
}

func TestSignupDisabled(t *testing.T) {
	srv, _ := newTestServerWithConfig(t, func(c *Config) { c.AllowSignup = false })

	w := doRequest(srv, "POST", "/v1/users", "", SignupRequest{Email: "a@example.com"})
	expectStatus(t, w, http.StatusForbidden)
	if resp := decode[ErrorResponse](t, w); resp.Error.Code != ErrCodeSignupDisabled {
		t.Fatalf("code = %s", resp.Error.Code)
	}
}

func TestRequireAuth(t *testing.T) {
	srv, _ := newTestServer(t)

	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"wrong scheme", "Basic abc"},
		{"unknown key", "Bearer fs_live_nope"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/v1/forms", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			srv.Handler().ServeHTTP(w, req)
			expectStatus(t, w, http.StatusUnauthorized)
		})
	}
}

func TestFormCRUD(t *testing.T) {
	srv, store := newTestServer(t)
	_, token := createTestUser(t, store, "owner@example.com")
	_, other := createTestUser(t, store, "other@example.com")

	form := createTestForm(t, srv, token, rsvpForm())
	if len(form.Fields) != 3 || form.Fields[1].Rule() == nil || form.Fields[1].Rule().FieldID != "a" {
		t.Fatalf("created form = %+v", form)
	}

	// Public read
	w := doRequest(srv, "GET", "/v1/forms/"+form.ID, "", nil)
	expectStatus(t, w, http.StatusOK)
	if got := decode[*models.Form](t, w); got.Title != "RSVP" {
		t.Fatalf("title = %q", got.Title)
	}

	w = doRequest(srv, "GET", "/v1/forms", token, nil)
	expectStatus(t, w, http.StatusOK)
	list := decode[[]FormSummary](t, w)
	if len(list) != 1 || list[0].FieldCount != 3 {
		t.Fatalf("list = %+v", list)
	}

	w = doRequest(srv, "GET", "/v1/forms", other, nil)
	if list := decode[[]FormSummary](t, w); len(list) != 0 {
		t.Fatalf("other user sees %d forms", len(list))
	}

	update := rsvpForm()
	update.Title = "RSVP 2026"
	update.Fields = update.Fields[:1]
	w = doRequest(srv, "PUT", "/v1/forms/"+form.ID, other, update)
	expectStatus(t, w, http.StatusForbidden)

	w = doRequest(srv, "PUT", "/v1/forms/"+form.ID, token, update)
	expectStatus(t, w, http.StatusOK)
	if got := decode[*models.Form](t, w); got.Title != "RSVP 2026" || len(got.Fields) != 1 {
		t.Fatalf("updated = %+v", got)
	}

	w = doRequest(srv, "DELETE", "/v1/forms/"+form.ID, token, nil)
	expectStatus(t, w, http.StatusNoContent)

	w = doRequest(srv, "GET", "/v1/forms/"+form.ID, "", nil)
	expectStatus(t, w, http.StatusNotFound)
}

func TestCreateFormValidation(t *testing.T) {
	srv, store := newTestServer(t)
	_, token := createTestUser(t, store, "owner@example.com")

	tests := []struct {
		name     string
		mutate   func(*FormRequest)
		wantKeys []string
	}{
		{"missing title", func(r *FormRequest) { r.Title = "  " }, []string{"title"}},
		{"bad field type", func(r *FormRequest) { r.Fields[0].Type = "date" }, []string{"fields[0].type"}},
		{"bad operator", func(r *FormRequest) { r.Fields[1].ConditionalLogic.ShowIf.Operator = "greater_than" }, []string{"fields[1].conditional_logic.show_if.operator"}},
		{"self reference", func(r *FormRequest) { r.Fields[1].ConditionalLogic.ShowIf.FieldID = "b" }, []string{"fields[1].conditional_logic.show_if.field_id"}},
		{"duplicate id", func(r *FormRequest) { r.Fields[2].ID = "a" }, []string{"fields[2].id"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := rsvpForm()
			tt.mutate(&req)
			w := doRequest(srv, "POST", "/v1/forms", token, req)
			expectStatus(t, w, http.StatusBadRequest)
			resp := decode[ErrorResponse](t, w)
			for _, k := range tt.wantKeys {
				if resp.Error.Fields[k] == "" {
					t.Errorf("missing error for %q in %v", k, resp.Error.Fields)
				}
			}
		})
	}
}

func TestCreateFormAssignsMissingIDs(t *testing.T) {
	srv, store := newTestServer(t)
	_, token := createTestUser(t, store, "owner@example.com")

	form := createTestForm(t, srv, token, FormRequest{
		Title:  "Feedback",
		Fields: []FieldInput{{Type: "textarea", Label: "Comments"}, {Type: "select", Options: []string{" Good ", "", "Bad"}}},
	})
	if form.Fields[0].ID == "" || form.Fields[1].ID == "" || form.Fields[0].ID == form.Fields[1].ID {
		t.Fatalf("ids = %q, %q", form.Fields[0].ID, form.Fields[1].ID)
	}
	if got := form.Fields[1].Options; len(got) != 2 || got[0] != "Good" || got[1] != "Bad" {
		t.Fatalf("options = %q", got)
	}
}

func TestFieldOperations(t *testing.T) {
	srv, store := newTestServer(t)
	_, token := createTestUser(t, store, "owner@example.com")
	form := createTestForm(t, srv, token, FormRequest{Title: "Survey"})
	base := "/v1/forms/" + form.ID + "/fields"

	w := doRequest(srv, "POST", base, token, AddFieldRequest{Type: "select"})
	expectStatus(t, w, http.StatusCreated)
	sel := decode[models.Field](t, w)
	if sel.Label != "New select field" || len(sel.Options) != 2 || sel.Options[0] != "Option 1" || sel.Required {
		t.Fatalf("select field = %+v", sel)
	}

	w = doRequest(srv, "POST", base, token, AddFieldRequest{Type: "text", Label: "Why?", Required: true})
	expectStatus(t, w, http.StatusCreated)
	txt := decode[models.Field](t, w)

	w = doRequest(srv, "POST", base, token, AddFieldRequest{Type: "rating"})
	expectStatus(t, w, http.StatusBadRequest)

	// Conditional rule
	w = doRequest(srv, "PATCH", base+"/"+txt.ID, token, UpdateFieldRequest{
		ShowIf: &RuleInput{FieldID: sel.ID, Operator: "equals", Value: "Option 2"},
	})
	expectStatus(t, w, http.StatusOK)
	if got := decode[models.Field](t, w); got.Rule() == nil || got.Rule().Value != "Option 2" || got.Label != "Why?" {
		t.Fatalf("patched = %+v", got)
	}

	w = doRequest(srv, "PATCH", base+"/"+txt.ID, token, UpdateFieldRequest{
		ShowIf: &RuleInput{FieldID: txt.ID, Operator: "is_empty"},
	})
	expectStatus(t, w, http.StatusBadRequest)

	w = doRequest(srv, "PATCH", base+"/"+txt.ID, token, UpdateFieldRequest{
		ShowIf: &RuleInput{FieldID: "missing", Operator: "is_empty"},
	})
	expectStatus(t, w, http.StatusBadRequest)

	w = doRequest(srv, "PATCH", base+"/nope", token, UpdateFieldRequest{})
	expectStatus(t, w, http.StatusNotFound)

	// Partial update keeps the rule
	label := "Tell us why"
	w = doRequest(srv, "PATCH", base+"/"+txt.ID, token, UpdateFieldRequest{Label: &label})
	expectStatus(t, w, http.StatusOK)
	if got := decode[models.Field](t, w); got.Label != label || got.Rule() == nil {
		t.Fatalf("after label update = %+v", got)
	}

	w = doRequest(srv, "PATCH", base+"/"+txt.ID, token, UpdateFieldRequest{ClearCondition: true})
	expectStatus(t, w, http.StatusOK)
	if got := decode[models.Field](t, w); got.Rule() != nil {
		t.Fatalf("condition not cleared: %+v", got)
	}

	// Move the text field to the front
	w = doRequest(srv, "POST", base+"/"+txt.ID+"/move", token, MoveFieldRequest{Index: 0})
	expectStatus(t, w, http.StatusOK)
	moved := decode[*models.Form](t, w)
	if moved.Fields[0].ID != txt.ID || moved.Fields[1].ID != sel.ID {
		t.Fatalf("order after move = %s, %s", moved.Fields[0].ID, moved.Fields[1].ID)
	}

	w = doRequest(srv, "POST", base+"/"+txt.ID+"/move", token, MoveFieldRequest{Index: 5})
	expectStatus(t, w, http.StatusBadRequest)

	w = doRequest(srv, "DELETE", base+"/"+sel.ID, token, nil)
	expectStatus(t, w, http.StatusNoContent)

	stored, _ := store.GetForm(form.ID)
	if len(stored.Fields) != 1 || stored.Fields[0].ID != txt.ID {
		t.Fatalf("stored fields = %+v", stored.Fields)
	}
}

func TestFieldOperationsRequireOwner(t *testing.T) {
	srv, store := newTestServer(t)
	_, token := createTestUser(t, store, "owner@example.com")
	_, other := createTestUser(t, store, "other@example.com")
	form := createTestForm(t, srv, token, rsvpForm())

	w := doRequest(srv, "POST", "/v1/forms/"+form.ID+"/fields", other, AddFieldRequest{Type: "text"})
	expectStatus(t, w, http.StatusForbidden)

	w = doRequest(srv, "POST", "/v1/forms/"+form.ID+"/fields", "", AddFieldRequest{Type: "text"})
	expectStatus(t, w, http.StatusUnauthorized)
}

func TestVisibleEndpoint(t *testing.T) {
	srv, store := newTestServer(t)
	_, token := createTestUser(t, store, "owner@example.com")
	form := createTestForm(t, srv, token, rsvpForm())

	tests := []struct {
		values models.FormValues
		want   string
	}{
		{models.FormValues{"a": "Yes"}, "a,b,c"},
		{models.FormValues{"a": "No"}, "a,c"},
		{nil, "a,c"},
	}
	for _, tt := range tests {
		w := doRequest(srv, "POST", "/v1/forms/"+form.ID+"/visible", "", VisibleRequest{Values: tt.values})
		expectStatus(t, w, http.StatusOK)
		resp := decode[VisibleResponse](t, w)
		if got := strings.Join(resp.FieldIDs, ","); got != tt.want {
			t.Errorf("values %v: visible = %s, want %s", tt.values, got, tt.want)
		}
	}
}

func TestReferencesEndpoint(t *testing.T) {
	srv, store := newTestServer(t)
	_, token := createTestUser(t, store, "owner@example.com")
	form := createTestForm(t, srv, token, FormRequest{
		Title: "Types",
		Fields: []FieldInput{
			{ID: "t", Type: "text"},
			{ID: "n", Type: "number"},
			{ID: "s", Type: "select"},
			{ID: "ta", Type: "textarea"},
		},
	})

	w := doRequest(srv, "GET", "/v1/forms/"+form.ID+"/references?exclude=t", "", nil)
	expectStatus(t, w, http.StatusOK)
	refs := decode[[]models.Field](t, w)
	if len(refs) != 1 || refs[0].ID != "s" {
		t.Fatalf("references = %+v", refs)
	}
}

func TestCheckEndpoint(t *testing.T) {
	srv, store := newTestServer(t)
	_, token := createTestUser(t, store, "owner@example.com")
	form := createTestForm(t, srv, token, FormRequest{
		Title: "Loops",
		Fields: []FieldInput{
			{ID: "x", Type: "text", ConditionalLogic: &ConditionalInput{ShowIf: RuleInput{FieldID: "y", Operator: "equals", Value: "1"}}},
			{ID: "y", Type: "text", ConditionalLogic: &ConditionalInput{ShowIf: RuleInput{FieldID: "x", Operator: "equals", Value: "1"}}},
		},
	})

	w := doRequest(srv, "GET", "/v1/forms/"+form.ID+"/check", token, nil)
	expectStatus(t, w, http.StatusOK)
	resp := decode[CheckResponse](t, w)
	if resp.OK || len(resp.Issues) == 0 || resp.Issues[0].Code != "cycle" {
		t.Fatalf("check = %+v", resp)
	}

	clean := createTestForm(t, srv, token, rsvpForm())
	w = doRequest(srv, "GET", "/v1/forms/"+clean.ID+"/check", token, nil)
	if resp := decode[CheckResponse](t, w); !resp.OK || resp.Issues == nil {
		t.Fatalf("clean check = %+v", resp)
	}
}

func TestSubmitValidatesVisibleFieldsOnly(t *testing.T) {
	srv, store := newTestServer(t)
	_, token := createTestUser(t, store, "owner@example.com")
	form := createTestForm(t, srv, token, rsvpForm())
	path := "/v1/forms/" + form.ID + "/submissions"

	// b is hidden, so its required flag does not apply and its value is dropped
	w := doRequest(srv, "POST", path, "", SubmitRequest{Data: models.FormValues{"a": "No", "b": "stale"}})
	expectStatus(t, w, http.StatusCreated)
	sub := decode[models.Submission](t, w)
	if _, ok := sub.Data["b"]; ok || sub.Data["a"] != "No" || sub.Synced {
		t.Fatalf("submission = %+v", sub)
	}

	// b is visible and empty
	w = doRequest(srv, "POST", path, "", SubmitRequest{Data: models.FormValues{"a": "Yes", "b": "  "}})
	expectStatus(t, w, http.StatusBadRequest)
	resp := decode[ErrorResponse](t, w)
	if resp.Error.Fields["b"] != "Guest name is required" {
		t.Fatalf("fields = %v", resp.Error.Fields)
	}

	w = doRequest(srv, "POST", path, "", SubmitRequest{Data: models.FormValues{"a": "No", "c": "nope"}})
	expectStatus(t, w, http.StatusBadRequest)
	if resp := decode[ErrorResponse](t, w); resp.Error.Fields["c"] != "Please enter a valid email address" {
		t.Fatalf("fields = %v", resp.Error.Fields)
	}

	w = doRequest(srv, "GET", path, token, nil)
	expectStatus(t, w, http.StatusOK)
	list := decode[SubmissionList](t, w)
	if len(list.Submissions) != 1 || list.Unsynced != 1 {
		t.Fatalf("list = %+v", list)
	}

	w = doRequest(srv, "GET", path, "", nil)
	expectStatus(t, w, http.StatusUnauthorized)
}

// fakeAirtable serves the Airtable endpoints used by the server.
type fakeAirtable struct {
	*httptest.Server

	mu         sync.Mutex
	records    []map[string]any
	failCreate bool
	tokens     []string
}

func newFakeAirtable(t *testing.T) *fakeAirtable {
	t.Helper()
	f := &fakeAirtable{}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /meta/whoami", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "Bearer bad" {
			w.WriteHeader(http.StatusUnauthorized)
			io.WriteString(w, `{"error":{"type":"AUTHENTICATION_REQUIRED","message":"Authentication required"}}`)
			return
		}
		io.WriteString(w, `{"id":"usrFake","email":"owner@airtable.test","scopes":["data.records:write"]}`)
	})
	mux.HandleFunc("GET /meta/bases", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"bases":[{"id":"appA","name":"CRM","permissionLevel":"create"}]}`)
	})
	mux.HandleFunc("POST /{base}/{table}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.tokens = append(f.tokens, r.Header.Get("Authorization"))
		if f.failCreate {
			w.WriteHeader(http.StatusUnprocessableEntity)
			io.WriteString(w, `{"error":{"type":"UNKNOWN_FIELD_NAME","message":"Unknown field name: \"Guest name\""}}`)
			return
		}
		var body struct {
			Fields map[string]any `json:"fields"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		f.records = append(f.records, body.Fields)
		fmt.Fprintf(w, `{"id":"rec%d","fields":{}}`, len(f.records))
	})
	mux.HandleFunc("POST /oauth2/v1/token", func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		w.Header().Set("Content-Type", "application/json")
		if r.PostForm.Get("code") != "good-code" || r.PostForm.Get("code_verifier") == "" {
			w.WriteHeader(http.StatusBadRequest)
			io.WriteString(w, `{"error":"invalid_grant"}`)
			return
		}
		io.WriteString(w, `{"access_token":"oauth-access","refresh_token":"oauth-refresh","token_type":"Bearer","expires_in":3600}`)
	})
	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Close)
	return f
}

func (f *fakeAirtable) setFailCreate(v bool) {
	f.mu.Lock()
	f.failCreate = v
	f.mu.Unlock()
}

func connectAirtable(t *testing.T, srv *Server, token string) {
	t.Helper()
	pat, base, table := "pat-good", "appA", "tblResponses"
	w := doRequest(srv, "PATCH", "/v1/users/me", token, UpdateMeRequest{
		AirtableToken:   &pat,
		AirtableBaseID:  &base,
		AirtableTableID: &table,
	})
	expectStatus(t, w, http.StatusOK)
	if me := decode[UserResponse](t, w); !me.AirtableConnected || me.AirtableBaseID != base {
		t.Fatalf("me = %+v", me)
	}
}

func TestSubmitSyncsToAirtable(t *testing.T) {
	fake := newFakeAirtable(t)
	srv, store := newTestServerWithConfig(t, func(c *Config) { c.AirtableAPIURL = fake.URL })
	_, token := createTestUser(t, store, "owner@example.com")
	connectAirtable(t, srv, token)
	form := createTestForm(t, srv, token, rsvpForm())

	w := doRequest(srv, "POST", "/v1/forms/"+form.ID+"/submissions", "", SubmitRequest{
		Data: models.FormValues{"a": "Yes", "b": "Grace"},
	})
	expectStatus(t, w, http.StatusCreated)
	sub := decode[models.Submission](t, w)
	if !sub.Synced || sub.AirtableRecordID != "rec1" || sub.SyncError != "" {
		t.Fatalf("submission = %+v", sub)
	}

	rec := fake.records[0]
	if rec["Attending"] != "Yes" || rec["Guest name"] != "Grace" || rec["Form Name"] != "RSVP" || rec["Submitted At"] == nil {
		t.Fatalf("record fields = %v", rec)
	}
	if fake.tokens[0] != "Bearer pat-good" {
		t.Fatalf("authorization = %q", fake.tokens[0])
	}

	stored, _ := store.GetSubmission(sub.ID)
	if !stored.Synced || stored.AirtableRecordID != "rec1" {
		t.Fatalf("stored = %+v", stored)
	}
	if snap := srv.metrics.Snapshot(); snap.SubmissionsAccepted != 1 || snap.SyncsSucceeded != 1 {
		t.Fatalf("metrics = %+v", snap)
	}
}

func TestSubmitSyncFailureKeepsSubmission(t *testing.T) {
	fake := newFakeAirtable(t)
	fake.setFailCreate(true)
	srv, store := newTestServerWithConfig(t, func(c *Config) { c.AirtableAPIURL = fake.URL })
	_, token := createTestUser(t, store, "owner@example.com")
	connectAirtable(t, srv, token)
	form := createTestForm(t, srv, token, rsvpForm())

	w := doRequest(srv, "POST", "/v1/forms/"+form.ID+"/submissions", "", SubmitRequest{Data: models.FormValues{"a": "No"}})
	expectStatus(t, w, http.StatusCreated)
	sub := decode[models.Submission](t, w)
	if sub.Synced || !strings.Contains(sub.SyncError, "UNKNOWN_FIELD_NAME") {
		t.Fatalf("submission = %+v", sub)
	}

	// Retry once Airtable accepts the record
	fake.setFailCreate(false)
	w = doRequest(srv, "POST", "/v1/submissions/"+sub.ID+"/sync", token, nil)
	expectStatus(t, w, http.StatusOK)
	if got := decode[models.Submission](t, w); !got.Synced || got.SyncError != "" {
		t.Fatalf("resynced = %+v", got)
	}
	if snap := srv.metrics.Snapshot(); snap.SyncsFailed != 1 || snap.SyncsSucceeded != 1 {
		t.Fatalf("metrics = %+v", snap)
	}
}

func TestResync(t *testing.T) {
	srv, store := newTestServer(t)
	_, token := createTestUser(t, store, "owner@example.com")
	_, other := createTestUser(t, store, "other@example.com")
	form := createTestForm(t, srv, token, rsvpForm())

	w := doRequest(srv, "POST", "/v1/forms/"+form.ID+"/submissions", "", SubmitRequest{Data: models.FormValues{"a": "No"}})
	expectStatus(t, w, http.StatusCreated)
	sub := decode[models.Submission](t, w)

	w = doRequest(srv, "POST", "/v1/submissions/"+sub.ID+"/sync", token, nil)
	expectStatus(t, w, http.StatusBadRequest)
	if resp := decode[ErrorResponse](t, w); resp.Error.Code != ErrCodeAirtableNotConfigured {
		t.Fatalf("code = %s", resp.Error.Code)
	}

	w = doRequest(srv, "POST", "/v1/submissions/"+sub.ID+"/sync", other, nil)
	expectStatus(t, w, http.StatusForbidden)

	w = doRequest(srv, "POST", "/v1/submissions/s_missing/sync", token, nil)
	expectStatus(t, w, http.StatusNotFound)
}

func TestUpdateMeRejectsBadToken(t *testing.T) {
	fake := newFakeAirtable(t)
	srv, store := newTestServerWithConfig(t, func(c *Config) { c.AirtableAPIURL = fake.URL })
	_, token := createTestUser(t, store, "owner@example.com")

	bad := "bad"
	w := doRequest(srv, "PATCH", "/v1/users/me", token, UpdateMeRequest{AirtableToken: &bad})
	expectStatus(t, w, http.StatusBadRequest)

	name := "Renamed"
	w = doRequest(srv, "PATCH", "/v1/users/me", token, UpdateMeRequest{Name: &name})
	expectStatus(t, w, http.StatusOK)
	if me := decode[UserResponse](t, w); me.Name != "Renamed" || me.AirtableConnected {
		t.Fatalf("me = %+v", me)
	}
}

func TestAirtableOAuthFlow(t *testing.T) {
	fake := newFakeAirtable(t)
	srv, store := newTestServerWithConfig(t, func(c *Config) {
		c.AirtableAPIURL = fake.URL
		c.AirtableClientID = "client-1"
		c.AirtableClientSecret = "secret-1"
		c.AirtableRedirectURL = "http://localhost:8080/v1/airtable/callback"
		c.AirtableAuthURL = fake.URL + "/oauth2/v1/authorize"
		c.AirtableTokenURL = fake.URL + "/oauth2/v1/token"
	})
	userID, token := createTestUser(t, store, "owner@example.com")

	w := doRequest(srv, "POST", "/v1/airtable/connect", token, nil)
	expectStatus(t, w, http.StatusOK)
	connect := decode[ConnectResponse](t, w)
	u, err := url.Parse(connect.AuthorizeURL)
	if err != nil {
		t.Fatal(err)
	}
	state := u.Query().Get("state")
	if state == "" || u.Query().Get("code_challenge_method") != "S256" {
		t.Fatalf("authorize url = %s", connect.AuthorizeURL)
	}

	w = doRequest(srv, "GET", "/v1/airtable/callback?code=good-code&state="+state, "", nil)
	expectStatus(t, w, http.StatusOK)
	if !strings.Contains(w.Body.String(), "Airtable connected") {
		t.Fatalf("callback page = %s", w.Body.String())
	}

	conn, err := store.GetAirtableConnection(userID)
	if err != nil || conn == nil {
		t.Fatalf("connection = %v, %v", conn, err)
	}
	if conn.AccessToken != "oauth-access" || conn.RefreshToken != "oauth-refresh" || conn.AirtableEmail != "owner@airtable.test" {
		t.Fatalf("connection = %+v", conn)
	}

	w = doRequest(srv, "GET", "/v1/airtable/status", token, nil)
	expectStatus(t, w, http.StatusOK)
	if st := decode[AirtableStatusResponse](t, w); !st.Connected || st.Kind != "oauth" || st.ExpiresAt == nil {
		t.Fatalf("status = %+v", st)
	}

	// State is single use
	w = doRequest(srv, "GET", "/v1/airtable/callback?code=good-code&state="+state, "", nil)
	expectStatus(t, w, http.StatusBadRequest)

	w = doRequest(srv, "GET", "/v1/airtable/bases", token, nil)
	expectStatus(t, w, http.StatusOK)
	if bases := decode[[]map[string]any](t, w); len(bases) != 1 || bases[0]["id"] != "appA" {
		t.Fatalf("bases = %v", bases)
	}

	w = doRequest(srv, "DELETE", "/v1/airtable/connection", token, nil)
	expectStatus(t, w, http.StatusNoContent)
	w = doRequest(srv, "GET", "/v1/airtable/bases", token, nil)
	expectStatus(t, w, http.StatusBadRequest)
}

func TestAirtableConnectWithoutOAuth(t *testing.T) {
	srv, store := newTestServer(t)
	_, token := createTestUser(t, store, "owner@example.com")

	w := doRequest(srv, "POST", "/v1/airtable/connect", token, nil)
	expectStatus(t, w, http.StatusBadRequest)

	w = doRequest(srv, "GET", "/v1/airtable/callback?error=access_denied", "", nil)
	expectStatus(t, w, http.StatusBadRequest)
	if !strings.Contains(w.Body.String(), "access_denied") {
		t.Fatalf("page = %s", w.Body.String())
	}
}

func TestSubmitDispatchesWebhook(t *testing.T) {
	received := make(chan map[string]any, 1)
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p map[string]any
		json.NewDecoder(r.Body).Decode(&p)
		received <- p
	}))
	defer hook.Close()

	srv, store := newTestServerWithConfig(t, func(c *Config) { c.WebhookURL = hook.URL })
	_, token := createTestUser(t, store, "owner@example.com")
	form := createTestForm(t, srv, token, rsvpForm())

	w := doRequest(srv, "POST", "/v1/forms/"+form.ID+"/submissions", "", SubmitRequest{Data: models.FormValues{"a": "No"}})
	expectStatus(t, w, http.StatusCreated)
	sub := decode[models.Submission](t, w)

	srv.background.Wait()
	select {
	case p := <-received:
		if p["submission_id"] != sub.ID || p["form_id"] != form.ID || p["event"] != "submission.created" {
			t.Fatalf("payload = %v", p)
		}
	default:
		t.Fatal("webhook not delivered")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	doRequest(srv, "GET", "/v1/forms/missing", "", nil)
	w := doRequest(srv, "GET", "/metricz", "", nil)
	expectStatus(t, w, http.StatusOK)

	snap := decode[MetricsSnapshot](t, w)
	if snap.Requests < 2 || snap.ClientErrors != 1 {
		t.Fatalf("metrics = %+v", snap)
	}
}
