// Package client is the HTTP client the formsync CLI uses to talk to a
// formsync server.
package client

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/marcus/formsync/internal/airtable"
	"github.com/marcus/formsync/internal/conditional"
	"github.com/marcus/formsync/internal/models"
)

// Sentinel errors for common HTTP error classes.
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not found")
)

// Client is an HTTP client for the formsync server.
type Client struct {
	BaseURL string
	APIKey  string
	HTTP    *http.Client
}

// New creates a new client.
func New(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		HTTP:    &http.Client{Timeout: 30 * time.Second},
	}
}

// --- User types (mirror internal/api/users.go, independently defined) ---

// User is the caller's account as reported by the server.
type User struct {
	ID                string `json:"id"`
	Email             string `json:"email"`
	Name              string `json:"name"`
	AirtableBaseID    string `json:"airtable_base_id,omitempty"`
	AirtableTableID   string `json:"airtable_table_id,omitempty"`
	AirtableConnected bool   `json:"airtable_connected"`
	CreatedAt         string `json:"created_at"`
}

// SignupResponse is the response from POST /v1/users.
type SignupResponse struct {
	User   User   `json:"user"`
	APIKey string `json:"api_key"`
}

// UserUpdate is the body for PATCH /v1/users/me. Nil members are left unchanged.
type UserUpdate struct {
	Name            *string `json:"name,omitempty"`
	AirtableToken   *string `json:"airtable_token,omitempty"`
	AirtableBaseID  *string `json:"airtable_base_id,omitempty"`
	AirtableTableID *string `json:"airtable_table_id,omitempty"`
}

// --- Form types ---

// FormInput is the body for creating or replacing a form.
type FormInput struct {
	Title           string         `json:"title"`
	Description     string         `json:"description"`
	Fields          []models.Field `json:"fields"`
	AirtableBaseID  string         `json:"airtable_base_id,omitempty"`
	AirtableTableID string         `json:"airtable_table_id,omitempty"`
}

// FormInputOf copies the editable parts of f.
func FormInputOf(f *models.Form) FormInput {
	return FormInput{
		Title:           f.Title,
		Description:     f.Description,
		Fields:          f.Fields,
		AirtableBaseID:  f.AirtableBaseID,
		AirtableTableID: f.AirtableTableID,
	}
}

// FormSummary is one entry of GET /v1/forms.
type FormSummary struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	FieldCount  int    `json:"field_count"`
	UpdatedAt   string `json:"updated_at"`
}

// NewField is the body for POST /v1/forms/{id}/fields.
type NewField struct {
	Type     models.FieldType `json:"type"`
	Label    string           `json:"label,omitempty"`
	Required bool             `json:"required,omitempty"`
	Options  []string         `json:"options,omitempty"`
}

// FieldPatch is the body for PATCH /v1/forms/{id}/fields/{fieldID}.
type FieldPatch struct {
	Label          *string                 `json:"label,omitempty"`
	Required       *bool                   `json:"required,omitempty"`
	Options        []string                `json:"options,omitempty"`
	ShowIf         *models.ConditionalRule `json:"show_if,omitempty"`
	ClearCondition bool                    `json:"clear_condition,omitempty"`
}

// VisibleResponse is the response from POST /v1/forms/{id}/visible.
type VisibleResponse struct {
	FieldIDs []string       `json:"field_ids"`
	Fields   []models.Field `json:"fields"`
}

// CheckResponse is the response from GET /v1/forms/{id}/check.
type CheckResponse struct {
	OK     bool                `json:"ok"`
	Issues []conditional.Issue `json:"issues"`
}

// SubmissionList is the response from GET /v1/forms/{id}/submissions.
type SubmissionList struct {
	Submissions []*models.Submission `json:"submissions"`
	Unsynced    int                  `json:"unsynced"`
}

// --- Airtable types ---

// ConnectResponse is the response from POST /v1/airtable/connect.
type ConnectResponse struct {
	AuthorizeURL string `json:"authorize_url"`
	ExpiresAt    string `json:"expires_at"`
}

// AirtableStatus is the response from GET /v1/airtable/status.
type AirtableStatus struct {
	Connected      bool    `json:"connected"`
	Kind           string  `json:"kind,omitempty"`
	AirtableUserID string  `json:"airtable_user_id,omitempty"`
	AirtableEmail  string  `json:"airtable_email,omitempty"`
	Scopes         string  `json:"scopes,omitempty"`
	ExpiresAt      *string `json:"expires_at,omitempty"`
	DefaultBaseID  string  `json:"default_base_id,omitempty"`
	DefaultTableID string  `json:"default_table_id,omitempty"`
	OAuthAvailable bool    `json:"oauth_available"`
}

// HealthResponse is the response from GET /healthz.
type HealthResponse struct {
	Status string `json:"status"`
}

// HealthCheck hits the /healthz endpoint to verify server reachability.
func (c *Client) HealthCheck() (*HealthResponse, error) {
	var resp HealthResponse
	if err := c.doNoAuth("GET", "/healthz", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// --- User methods ---

// Signup registers a new account. No API key required.
func (c *Client) Signup(email, name string) (*SignupResponse, error) {
	body := map[string]string{"email": email, "name": name}
	var resp SignupResponse
	if err := c.doNoAuth("POST", "/v1/users", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Me returns the authenticated user.
func (c *Client) Me() (*User, error) {
	var resp User
	if err := c.do("GET", "/v1/users/me", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// UpdateMe changes the authenticated user's settings.
func (c *Client) UpdateMe(u UserUpdate) (*User, error) {
	var resp User
	if err := c.do("PATCH", "/v1/users/me", u, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// --- Form methods ---

// CreateForm creates a new form.
func (c *Client) CreateForm(in FormInput) (*models.Form, error) {
	var resp models.Form
	if err := c.do("POST", "/v1/forms", in, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListForms lists the forms owned by the authenticated user.
func (c *Client) ListForms() ([]FormSummary, error) {
	var resp []FormSummary
	if err := c.do("GET", "/v1/forms", nil, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// GetForm fetches a form. Forms are public, so no API key is needed.
func (c *Client) GetForm(id string) (*models.Form, error) {
	var resp models.Form
	if err := c.doNoAuth("GET", formPath(id), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// UpdateForm replaces a form's title, description, fields and sync target.
func (c *Client) UpdateForm(id string, in FormInput) (*models.Form, error) {
	var resp models.Form
	if err := c.do("PUT", formPath(id), in, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// DeleteForm deletes a form and its submissions.
func (c *Client) DeleteForm(id string) error {
	return c.do("DELETE", formPath(id), nil, nil)
}

// --- Field methods ---

// AddField appends a field with the server's defaults for its type.
func (c *Client) AddField(formID string, f NewField) (*models.Field, error) {
	var resp models.Field
	if err := c.do("POST", formPath(formID)+"/fields", f, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// UpdateField applies a partial update to one field.
func (c *Client) UpdateField(formID, fieldID string, p FieldPatch) (*models.Field, error) {
	var resp models.Field
	if err := c.do("PATCH", fieldPath(formID, fieldID), p, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RemoveField deletes one field.
func (c *Client) RemoveField(formID, fieldID string) error {
	return c.do("DELETE", fieldPath(formID, fieldID), nil, nil)
}

// MoveField moves a field to index and returns the reordered form.
func (c *Client) MoveField(formID, fieldID string, index int) (*models.Form, error) {
	var resp models.Form
	body := map[string]int{"index": index}
	if err := c.do("POST", fieldPath(formID, fieldID)+"/move", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// --- Conditional logic methods ---

// References lists the fields a rule on exclude may reference.
func (c *Client) References(formID, exclude string) ([]models.Field, error) {
	path := formPath(formID) + "/references"
	if exclude != "" {
		path += "?exclude=" + url.QueryEscape(exclude)
	}
	var resp []models.Field
	if err := c.doNoAuth("GET", path, nil, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// Visible asks the server which fields show for values.
func (c *Client) Visible(formID string, values models.FormValues) (*VisibleResponse, error) {
	var resp VisibleResponse
	body := map[string]any{"values": values}
	if err := c.doNoAuth("POST", formPath(formID)+"/visible", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CheckForm returns the diagnostics for a form's conditional rules.
func (c *Client) CheckForm(formID string) (*CheckResponse, error) {
	var resp CheckResponse
	if err := c.do("GET", formPath(formID)+"/check", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// --- Submission methods ---

// Submit sends a filled form. No API key required.
func (c *Client) Submit(formID string, values models.FormValues) (*models.Submission, error) {
	var resp models.Submission
	body := map[string]any{"data": values}
	if err := c.doNoAuth("POST", formPath(formID)+"/submissions", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListSubmissions lists the submissions of a form, newest first.
func (c *Client) ListSubmissions(formID string) (*SubmissionList, error) {
	var resp SubmissionList
	if err := c.do("GET", formPath(formID)+"/submissions", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SyncSubmission pushes one submission to Airtable again.
func (c *Client) SyncSubmission(id string) (*models.Submission, error) {
	var resp models.Submission
	if err := c.do("POST", "/v1/submissions/"+url.PathEscape(id)+"/sync", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// --- Airtable methods ---

// AirtableConnect starts the OAuth flow and returns the consent page URL.
func (c *Client) AirtableConnect() (*ConnectResponse, error) {
	var resp ConnectResponse
	if err := c.do("POST", "/v1/airtable/connect", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// AirtableStatus reports the caller's Airtable connection.
func (c *Client) AirtableStatus() (*AirtableStatus, error) {
	var resp AirtableStatus
	if err := c.do("GET", "/v1/airtable/status", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// AirtableBases lists the bases visible to the caller's Airtable connection.
func (c *Client) AirtableBases() ([]airtable.Base, error) {
	var resp []airtable.Base
	if err := c.do("GET", "/v1/airtable/bases", nil, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// AirtableTables lists the tables of a base.
func (c *Client) AirtableTables(baseID string) ([]airtable.Table, error) {
	var resp []airtable.Table
	if err := c.do("GET", "/v1/airtable/bases/"+url.PathEscape(baseID)+"/tables", nil, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// AirtableDisconnect removes the caller's Airtable connection.
func (c *Client) AirtableDisconnect() error {
	return c.do("DELETE", "/v1/airtable/connection", nil, nil)
}

func formPath(id string) string {
	return "/v1/forms/" + url.PathEscape(id)
}

func fieldPath(formID, fieldID string) string {
	return formPath(formID) + "/fields/" + url.PathEscape(fieldID)
}

// --- HTTP helpers ---

// APIError is the standard error body from the server.
type APIError struct {
	Status  int
	Code    string
	Message string
	Fields  map[string]string // per-field messages of validation_failed
}

func (e *APIError) Error() string {
	var b strings.Builder
	b.WriteString(e.Code)
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "\n  %s: %s", k, e.Fields[k])
	}
	return b.String()
}

// Unwrap maps the status to one of the sentinel errors.
func (e *APIError) Unwrap() error {
	switch e.Status {
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	}
	return nil
}

// parseAPIError reads {"error":{"code","message","fields"}} from body.
// It returns nil when body is not in that shape.
func parseAPIError(status int, body []byte) *APIError {
	e := gjson.GetBytes(body, "error")
	code := e.Get("code").String()
	if !e.IsObject() || code == "" {
		return nil
	}
	apiErr := &APIError{Status: status, Code: code, Message: e.Get("message").String()}
	if fields := e.Get("fields"); fields.IsObject() {
		apiErr.Fields = make(map[string]string)
		fields.ForEach(func(k, v gjson.Result) bool {
			apiErr.Fields[k.String()] = v.String()
			return true
		})
	}
	return apiErr
}

// do executes an authenticated HTTP request.
func (c *Client) do(method, path string, body, result any) error {
	return c.doRequest(method, path, body, result, true)
}

// doNoAuth executes an unauthenticated HTTP request.
func (c *Client) doNoAuth(method, path string, body, result any) error {
	return c.doRequest(method, path, body, result, false)
}

func (c *Client) doRequest(method, path string, body, result any, auth bool) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.BaseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if auth && c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		if apiErr := parseAPIError(resp.StatusCode, respBody); apiErr != nil {
			return apiErr
		}
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}

	return nil
}
