package client

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/marcus/formsync/internal/models"
)

// recorded is what the fake server saw for the last request.
type recorded struct {
	method string
	path   string
	auth   string
	body   map[string]any
}

func newFakeServer(t *testing.T, status int, resp string) (*Client, *recorded) {
	t.Helper()
	rec := &recorded{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.method = r.Method
		rec.path = r.URL.RequestURI()
		rec.auth = r.Header.Get("Authorization")
		rec.body = nil
		if data, _ := io.ReadAll(r.Body); len(data) > 0 {
			if err := json.Unmarshal(data, &rec.body); err != nil {
				t.Errorf("request body is not json: %s", data)
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		io.WriteString(w, resp)
	}))
	t.Cleanup(srv.Close)
	return New(srv.URL+"/", "fs_testkey"), rec
}

func TestNewTrimsBaseURL(t *testing.T) {
	c := New("http://localhost:8080///", "")
	if c.BaseURL != "http://localhost:8080" {
		t.Errorf("BaseURL = %q", c.BaseURL)
	}
}

func TestHealthCheckSendsNoAuth(t *testing.T) {
	c, rec := newFakeServer(t, http.StatusOK, `{"status":"ok"}`)

	resp, err := c.HealthCheck()
	if err != nil {
		t.Fatalf("HealthCheck: %v", err)
	}
	if resp.Status != "ok" {
		t.Errorf("status = %q", resp.Status)
	}
	if rec.auth != "" {
		t.Errorf("auth header = %q, want none", rec.auth)
	}
}

func TestSignup(t *testing.T) {
	c, rec := newFakeServer(t, http.StatusCreated,
		`{"user":{"id":"u_1","email":"a@example.com","name":"Ann","airtable_connected":false},"api_key":"fs_new"}`)

	resp, err := c.Signup("a@example.com", "Ann")
	if err != nil {
		t.Fatalf("Signup: %v", err)
	}
	if resp.APIKey != "fs_new" || resp.User.Email != "a@example.com" {
		t.Errorf("resp = %+v", resp)
	}
	if rec.method != "POST" || rec.path != "/v1/users" || rec.auth != "" {
		t.Errorf("request = %s %s auth=%q", rec.method, rec.path, rec.auth)
	}
	if rec.body["email"] != "a@example.com" || rec.body["name"] != "Ann" {
		t.Errorf("body = %v", rec.body)
	}
}

func TestMeSendsBearer(t *testing.T) {
	c, rec := newFakeServer(t, http.StatusOK, `{"id":"u_1","email":"a@example.com","airtable_connected":true}`)

	u, err := c.Me()
	if err != nil {
		t.Fatalf("Me: %v", err)
	}
	if !u.AirtableConnected {
		t.Error("expected airtable_connected")
	}
	if rec.auth != "Bearer fs_testkey" {
		t.Errorf("auth = %q", rec.auth)
	}
}

func TestUpdateMeOmitsUnsetMembers(t *testing.T) {
	c, rec := newFakeServer(t, http.StatusOK, `{"id":"u_1"}`)

	base := "app1"
	if _, err := c.UpdateMe(UserUpdate{AirtableBaseID: &base}); err != nil {
		t.Fatalf("UpdateMe: %v", err)
	}
	if rec.method != "PATCH" {
		t.Errorf("method = %s", rec.method)
	}
	if _, ok := rec.body["name"]; ok {
		t.Errorf("name should be omitted: %v", rec.body)
	}
	if rec.body["airtable_base_id"] != "app1" {
		t.Errorf("body = %v", rec.body)
	}
}

func TestCreateFormSendsFields(t *testing.T) {
	c, rec := newFakeServer(t, http.StatusCreated, `{"id":"f_1","title":"RSVP","fields":[]}`)

	in := FormInput{
		Title: "RSVP",
		Fields: []models.Field{
			{ID: "attending", Type: models.FieldCheckbox, Label: "Attending"},
			{ID: "guests", Type: models.FieldNumber, Label: "Guests", ConditionalLogic: &models.ConditionalLogic{
				ShowIf: models.ConditionalRule{FieldID: "attending", Operator: models.OpEquals, Value: "true"},
			}},
		},
	}
	f, err := c.CreateForm(in)
	if err != nil {
		t.Fatalf("CreateForm: %v", err)
	}
	if f.ID != "f_1" {
		t.Errorf("id = %q", f.ID)
	}
	fields, _ := rec.body["fields"].([]any)
	if len(fields) != 2 {
		t.Fatalf("fields = %v", rec.body["fields"])
	}
	second := fields[1].(map[string]any)
	logic := second["conditional_logic"].(map[string]any)
	showIf := logic["show_if"].(map[string]any)
	if showIf["field_id"] != "attending" || showIf["operator"] != "equals" {
		t.Errorf("show_if = %v", showIf)
	}
}

func TestPathsAreEscaped(t *testing.T) {
	c, rec := newFakeServer(t, http.StatusOK, `[]`)

	if _, err := c.References("f 1", "a/b"); err != nil {
		t.Fatalf("References: %v", err)
	}
	if rec.path != "/v1/forms/f%201/references?exclude=a%2Fb" {
		t.Errorf("path = %q", rec.path)
	}
}

func TestMoveField(t *testing.T) {
	c, rec := newFakeServer(t, http.StatusOK, `{"id":"f_1","fields":[{"id":"b"},{"id":"a"}]}`)

	f, err := c.MoveField("f_1", "a", 1)
	if err != nil {
		t.Fatalf("MoveField: %v", err)
	}
	if rec.path != "/v1/forms/f_1/fields/a/move" || rec.body["index"] != float64(1) {
		t.Errorf("request = %s %v", rec.path, rec.body)
	}
	if len(f.Fields) != 2 || f.Fields[1].ID != "a" {
		t.Errorf("fields = %+v", f.Fields)
	}
}

func TestSubmitWrapsData(t *testing.T) {
	c, rec := newFakeServer(t, http.StatusCreated, `{"id":"s_1","form_id":"f_1","synced":true,"airtable_record_id":"rec1"}`)

	sub, err := c.Submit("f_1", models.FormValues{"name": "Ann"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if !sub.Synced || sub.AirtableRecordID != "rec1" {
		t.Errorf("sub = %+v", sub)
	}
	data, _ := rec.body["data"].(map[string]any)
	if data["name"] != "Ann" {
		t.Errorf("body = %v", rec.body)
	}
	if rec.auth != "" {
		t.Errorf("submit should be unauthenticated, got %q", rec.auth)
	}
}

func TestDeleteFormNoContent(t *testing.T) {
	c, rec := newFakeServer(t, http.StatusNoContent, ``)

	if err := c.DeleteForm("f_1"); err != nil {
		t.Fatalf("DeleteForm: %v", err)
	}
	if rec.method != "DELETE" || rec.path != "/v1/forms/f_1" {
		t.Errorf("request = %s %s", rec.method, rec.path)
	}
}

func TestSentinelErrors(t *testing.T) {
	tests := []struct {
		status int
		code   string
		want   error
	}{
		{http.StatusUnauthorized, "unauthorized", ErrUnauthorized},
		{http.StatusForbidden, "forbidden", ErrForbidden},
		{http.StatusNotFound, "not_found", ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			c, _ := newFakeServer(t, tt.status, `{"error":{"code":"`+tt.code+`","message":"nope"}}`)
			_, err := c.GetForm("f_1")
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			var apiErr *APIError
			if !errors.As(err, &apiErr) || apiErr.Code != tt.code || apiErr.Message != "nope" {
				t.Errorf("apiErr = %+v", apiErr)
			}
		})
	}
}

func TestValidationErrorFields(t *testing.T) {
	c, _ := newFakeServer(t, http.StatusBadRequest,
		`{"error":{"code":"validation_failed","message":"validation failed","fields":{"email":"Please enter a valid email address","name":"Name is required"}}}`)

	_, err := c.Submit("f_1", models.FormValues{})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *APIError", err)
	}
	if apiErr.Fields["name"] != "Name is required" || len(apiErr.Fields) != 2 {
		t.Errorf("fields = %v", apiErr.Fields)
	}
	msg := err.Error()
	if !strings.HasPrefix(msg, "validation_failed: validation failed") {
		t.Errorf("message = %q", msg)
	}
	if strings.Index(msg, "email:") > strings.Index(msg, "name:") {
		t.Errorf("fields not sorted: %q", msg)
	}
	if errors.Is(err, ErrNotFound) {
		t.Error("400 should not match a sentinel")
	}
}

func TestNonJSONError(t *testing.T) {
	c, _ := newFakeServer(t, http.StatusBadGateway, `upstream down`)

	err := c.AirtableDisconnect()
	if err == nil || !strings.Contains(err.Error(), "HTTP 502: upstream down") {
		t.Fatalf("err = %v", err)
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		t.Error("plain body should not parse as APIError")
	}
}
