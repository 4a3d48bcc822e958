package api

import (
	"embed"
	"errors"
	"html/template"
	"net/http"
	"strings"
	"time"

	"github.com/marcus/formsync/internal/airtable"
	"github.com/marcus/formsync/internal/serverdb"
)

//go:embed templates/airtable_callback.html
var callbackFS embed.FS

var callbackTmpl = template.Must(template.ParseFS(callbackFS, "templates/airtable_callback.html"))

// callbackPageData holds template data for the OAuth callback page.
type callbackPageData struct {
	Success bool
	Email   string
	Error   string
}

// ConnectResponse is the JSON response for POST /v1/airtable/connect.
type ConnectResponse struct {
	AuthorizeURL string `json:"authorize_url"`
	ExpiresAt    string `json:"expires_at"`
}

// AirtableStatusResponse describes the caller's Airtable connection.
type AirtableStatusResponse struct {
	Connected      bool    `json:"connected"`
	Kind           string  `json:"kind,omitempty"` // "oauth" or "token"
	AirtableUserID string  `json:"airtable_user_id,omitempty"`
	AirtableEmail  string  `json:"airtable_email,omitempty"`
	Scopes         string  `json:"scopes,omitempty"`
	ExpiresAt      *string `json:"expires_at,omitempty"`
	DefaultBaseID  string  `json:"default_base_id,omitempty"`
	DefaultTableID string  `json:"default_table_id,omitempty"`
	OAuthAvailable bool    `json:"oauth_available"`
}

// handleAirtableConnect handles POST /v1/airtable/connect. The PKCE verifier
// stays on the server, keyed by the state handed to Airtable.
func (s *Server) handleAirtableConnect(w http.ResponseWriter, r *http.Request) {
	user := getUserFromContext(r.Context())

	if !s.oauth.Configured() {
		writeError(w, http.StatusBadRequest, ErrCodeAirtableNotConfigured, "airtable oauth is not configured on this server")
		return
	}

	verifier := airtable.NewVerifier()
	st, err := s.store.CreateOAuthState(user.UserID, verifier, s.config.OAuthStateTTL)
	if err != nil {
		logFor(r.Context()).Error("create oauth state", "err", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to start airtable connection")
		return
	}

	writeJSON(w, http.StatusOK, ConnectResponse{
		AuthorizeURL: s.oauth.AuthCodeURL(st.State, verifier),
		ExpiresAt:    st.ExpiresAt.Format(time.RFC3339),
	})
}

// handleAirtableCallback handles GET /v1/airtable/callback, the browser
// redirect back from Airtable's consent page.
func (s *Server) handleAirtableCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	if e := q.Get("error"); e != "" {
		msg := q.Get("error_description")
		if msg == "" {
			msg = e
		}
		renderCallback(w, http.StatusBadRequest, callbackPageData{Error: "Airtable declined the request: " + msg})
		return
	}

	code, state := q.Get("code"), q.Get("state")
	if code == "" || state == "" {
		renderCallback(w, http.StatusBadRequest, callbackPageData{Error: "The callback is missing its code or state."})
		return
	}
	if !s.oauth.Configured() {
		renderCallback(w, http.StatusBadRequest, callbackPageData{Error: "Airtable OAuth is not configured on this server."})
		return
	}

	st, err := s.store.ConsumeOAuthState(state)
	if err != nil {
		logFor(r.Context()).Error("consume oauth state", "err", err)
		renderCallback(w, http.StatusInternalServerError, callbackPageData{Error: "Something went wrong on our side."})
		return
	}
	if st == nil {
		renderCallback(w, http.StatusBadRequest, callbackPageData{Error: "This link has expired or was already used."})
		return
	}
	logger := logFor(r.Context()).With("uid", st.UserID)

	tok, err := s.oauth.Exchange(r.Context(), code, st.Verifier)
	if err != nil {
		logger.Warn("airtable token exchange", "err", err)
		renderCallback(w, http.StatusBadGateway, callbackPageData{Error: "Airtable did not accept the authorization code."})
		return
	}

	id, err := airtable.NewTokenClient(r.Context(), s.config.AirtableAPIURL, tok.AccessToken).WhoAmI(r.Context())
	if err != nil {
		logger.Warn("airtable whoami", "err", err)
		renderCallback(w, http.StatusBadGateway, callbackPageData{Error: "Could not read your Airtable account."})
		return
	}

	conn := &serverdb.AirtableConnection{
		UserID:         st.UserID,
		AccessToken:    tok.AccessToken,
		RefreshToken:   tok.RefreshToken,
		TokenType:      tok.TokenType,
		AirtableUserID: id.ID,
		AirtableEmail:  id.Email,
		Scopes:         strings.Join(id.Scopes, " "),
	}
	if !tok.Expiry.IsZero() {
		exp := tok.Expiry.UTC()
		conn.ExpiresAt = &exp
	}
	if err := s.store.SaveAirtableConnection(conn); err != nil {
		logger.Error("save airtable connection", "err", err)
		renderCallback(w, http.StatusInternalServerError, callbackPageData{Error: "Something went wrong on our side."})
		return
	}

	logger.Info("airtable connected", "airtable_user", id.ID)
	renderCallback(w, http.StatusOK, callbackPageData{Success: true, Email: id.Email})
}

func renderCallback(w http.ResponseWriter, status int, data callbackPageData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	callbackTmpl.Execute(w, data)
}

// handleAirtableStatus handles GET /v1/airtable/status.
func (s *Server) handleAirtableStatus(w http.ResponseWriter, r *http.Request) {
	authUser := getUserFromContext(r.Context())

	user, err := s.store.GetUserByID(authUser.UserID)
	if err != nil || user == nil {
		logFor(r.Context()).Error("get user", "err", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to get user")
		return
	}
	conn, err := s.store.GetAirtableConnection(user.ID)
	if err != nil {
		logFor(r.Context()).Error("get airtable connection", "err", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to get airtable connection")
		return
	}

	resp := AirtableStatusResponse{
		DefaultBaseID:  user.AirtableBaseID,
		DefaultTableID: user.AirtableTableID,
		OAuthAvailable: s.oauth.Configured(),
	}
	if conn != nil {
		resp.Connected = true
		resp.Kind = "token"
		if conn.RefreshToken != "" {
			resp.Kind = "oauth"
		}
		resp.AirtableUserID = conn.AirtableUserID
		resp.AirtableEmail = conn.AirtableEmail
		resp.Scopes = conn.Scopes
		if conn.ExpiresAt != nil {
			exp := conn.ExpiresAt.Format(time.RFC3339)
			resp.ExpiresAt = &exp
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleAirtableBases handles GET /v1/airtable/bases.
func (s *Server) handleAirtableBases(w http.ResponseWriter, r *http.Request) {
	user := getUserFromContext(r.Context())

	client, err := s.airtableClient(r.Context(), user.UserID)
	if err != nil {
		writeAirtableError(w, r, "airtable client", err)
		return
	}
	bases, err := client.ListBases(r.Context())
	if err != nil {
		writeAirtableError(w, r, "list airtable bases", err)
		return
	}
	if bases == nil {
		bases = []airtable.Base{}
	}
	writeJSON(w, http.StatusOK, bases)
}

// handleAirtableTables handles GET /v1/airtable/bases/{baseID}/tables.
func (s *Server) handleAirtableTables(w http.ResponseWriter, r *http.Request) {
	user := getUserFromContext(r.Context())

	client, err := s.airtableClient(r.Context(), user.UserID)
	if err != nil {
		writeAirtableError(w, r, "airtable client", err)
		return
	}
	tables, err := client.ListTables(r.Context(), r.PathValue("baseID"))
	if err != nil {
		writeAirtableError(w, r, "list airtable tables", err)
		return
	}
	if tables == nil {
		tables = []airtable.Table{}
	}
	writeJSON(w, http.StatusOK, tables)
}

// handleAirtableDisconnect handles DELETE /v1/airtable/connection.
func (s *Server) handleAirtableDisconnect(w http.ResponseWriter, r *http.Request) {
	user := getUserFromContext(r.Context())

	if err := s.store.DeleteAirtableConnection(user.UserID); err != nil {
		logFor(r.Context()).Error("delete airtable connection", "err", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to disconnect airtable")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// writeAirtableError maps errors from the Airtable client to API responses.
func writeAirtableError(w http.ResponseWriter, r *http.Request, op string, err error) {
	var apiErr *airtable.APIError
	switch {
	case errors.Is(err, airtable.ErrNotConfigured):
		writeError(w, http.StatusBadRequest, ErrCodeAirtableNotConfigured, "airtable is not connected")
	case errors.Is(err, airtable.ErrUnauthorized):
		writeError(w, http.StatusBadGateway, ErrCodeAirtableError, "airtable rejected the stored credentials; reconnect airtable")
	case errors.As(err, &apiErr):
		logFor(r.Context()).Warn(op, "status", apiErr.Status, "type", apiErr.Type)
		writeError(w, http.StatusBadGateway, ErrCodeAirtableError, apiErr.Error())
	default:
		logFor(r.Context()).Error(op, "err", err)
		writeError(w, http.StatusBadGateway, ErrCodeAirtableError, "could not reach airtable")
	}
}
