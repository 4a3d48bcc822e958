// Package airtable talks to the Airtable REST API on behalf of a connected user.
package airtable

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/oauth2"
)

// DefaultAPIURL is the Airtable REST API root.
const DefaultAPIURL = "https://api.airtable.com/v0"

// Sentinel errors.
var (
	ErrUnauthorized  = errors.New("airtable: unauthorized")
	ErrNotConfigured = errors.New("airtable: not configured")
)

// APIError is a non-2xx response from Airtable.
type APIError struct {
	Status  int
	Type    string
	Message string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("airtable: HTTP %d %s: %s", e.Status, e.Type, e.Message)
	}
	return fmt.Sprintf("airtable: HTTP %d %s", e.Status, e.Type)
}

// Unwrap lets callers match 401 responses with errors.Is(err, ErrUnauthorized).
func (e *APIError) Unwrap() error {
	if e.Status == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	return nil
}

// parseError reads either {"error":{"type":..,"message":..}} or {"error":"TYPE"}.
func parseError(status int, body []byte) *APIError {
	e := &APIError{Status: status}
	r := gjson.GetBytes(body, "error")
	switch {
	case r.IsObject():
		e.Type = r.Get("type").String()
		e.Message = r.Get("message").String()
	case r.Type == gjson.String:
		e.Type = r.String()
	}
	if e.Type == "" {
		e.Type = strings.ToUpper(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
	return e
}

// Base is an Airtable base visible to the token.
type Base struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	PermissionLevel string `json:"permissionLevel"`
}

// TableField is one column of a table.
type TableField struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
}

// Table is a table of a base with its schema.
type Table struct {
	ID             string       `json:"id"`
	Name           string       `json:"name"`
	PrimaryFieldID string       `json:"primaryFieldId"`
	Fields         []TableField `json:"fields"`
}

// Identity is the response of the whoami endpoint.
type Identity struct {
	ID     string   `json:"id"`
	Email  string   `json:"email"`
	Scopes []string `json:"scopes"`
}

// Client is an Airtable API client. Authentication is carried by the
// underlying HTTP client's transport.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

// NewClient returns a client that authenticates every request with tokens
// from ts.
func NewClient(ctx context.Context, baseURL string, ts oauth2.TokenSource) *Client {
	if baseURL == "" {
		baseURL = DefaultAPIURL
	}
	hc := oauth2.NewClient(ctx, ts)
	hc.Timeout = 30 * time.Second
	return &Client{BaseURL: strings.TrimRight(baseURL, "/"), HTTP: hc}
}

// NewTokenClient returns a client for a fixed access token, such as a
// personal access token.
func NewTokenClient(ctx context.Context, baseURL, token string) *Client {
	return NewClient(ctx, baseURL, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}))
}

// ListBases returns every base the token can see, following pagination.
func (c *Client) ListBases(ctx context.Context) ([]Base, error) {
	var bases []Base
	offset := ""
	for {
		path := "/meta/bases"
		if offset != "" {
			path += "?offset=" + url.QueryEscape(offset)
		}
		var page struct {
			Bases  []Base `json:"bases"`
			Offset string `json:"offset"`
		}
		if err := c.do(ctx, http.MethodGet, path, nil, &page); err != nil {
			return nil, fmt.Errorf("list bases: %w", err)
		}
		bases = append(bases, page.Bases...)
		if page.Offset == "" {
			return bases, nil
		}
		offset = page.Offset
	}
}

// ListTables returns the tables of a base.
func (c *Client) ListTables(ctx context.Context, baseID string) ([]Table, error) {
	var resp struct {
		Tables []Table `json:"tables"`
	}
	if err := c.do(ctx, http.MethodGet, "/meta/bases/"+url.PathEscape(baseID)+"/tables", nil, &resp); err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	return resp.Tables, nil
}

// CreateRecord appends a row to a table and returns the new record ID.
func (c *Client) CreateRecord(ctx context.Context, baseID, tableID string, fields map[string]any) (string, error) {
	body := map[string]any{"fields": fields, "typecast": true}
	var raw json.RawMessage
	path := "/" + url.PathEscape(baseID) + "/" + url.PathEscape(tableID)
	if err := c.do(ctx, http.MethodPost, path, body, &raw); err != nil {
		return "", fmt.Errorf("create record: %w", err)
	}
	id := gjson.GetBytes(raw, "id").String()
	if id == "" {
		return "", fmt.Errorf("create record: response has no record id")
	}
	return id, nil
}

// WhoAmI returns the identity behind the token.
func (c *Client) WhoAmI(ctx context.Context) (*Identity, error) {
	var id Identity
	if err := c.do(ctx, http.MethodGet, "/meta/whoami", nil, &id); err != nil {
		return nil, fmt.Errorf("whoami: %w", err)
	}
	return &id, nil
}

// TestConnection reports whether the token is accepted.
func (c *Client) TestConnection(ctx context.Context) bool {
	_, err := c.WhoAmI(ctx)
	return err == nil
}

func (c *Client) do(ctx context.Context, method, path string, body, result any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && (re.Response == nil || re.Response.StatusCode < 500) {
			return fmt.Errorf("%w: token refresh: %v", ErrUnauthorized, re)
		}
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 300 {
		return parseError(resp.StatusCode, respBody)
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
