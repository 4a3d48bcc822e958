package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/marcus/formsync/internal/airtable"
	"github.com/marcus/formsync/internal/serverdb"
)

// SignupRequest is the JSON body for POST /v1/users.
type SignupRequest struct {
	Email string `json:"email" validate:"required,email,max=254"`
	Name  string `json:"name" validate:"max=200"`
}

// SignupResponse carries the new user and the only copy of their API key.
type SignupResponse struct {
	User   UserResponse `json:"user"`
	APIKey string       `json:"api_key"`
}

// UserResponse is the JSON representation of a user.
type UserResponse struct {
	ID                string `json:"id"`
	Email             string `json:"email"`
	Name              string `json:"name"`
	AirtableBaseID    string `json:"airtable_base_id,omitempty"`
	AirtableTableID   string `json:"airtable_table_id,omitempty"`
	AirtableConnected bool   `json:"airtable_connected"`
	CreatedAt         string `json:"created_at"`
}

// UpdateMeRequest is the JSON body for PATCH /v1/users/me. An empty
// airtable_token removes the stored Airtable connection.
type UpdateMeRequest struct {
	Name            *string `json:"name" validate:"omitempty,max=200"`
	AirtableToken   *string `json:"airtable_token"`
	AirtableBaseID  *string `json:"airtable_base_id" validate:"omitempty,max=64"`
	AirtableTableID *string `json:"airtable_table_id" validate:"omitempty,max=64"`
}

// handleSignup handles POST /v1/users.
func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	if !s.config.AllowSignup {
		writeError(w, http.StatusForbidden, ErrCodeSignupDisabled, "signups are disabled")
		return
	}

	var req SignupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "invalid json body")
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if errs := validateRequest(req); errs != nil {
		writeValidationError(w, errs)
		return
	}

	existing, err := s.store.GetUserByEmail(req.Email)
	if err != nil {
		logFor(r.Context()).Error("check user for signup", "err", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to check user")
		return
	}
	if existing != nil {
		writeError(w, http.StatusConflict, ErrCodeConflict, "email already registered")
		return
	}

	user, err := s.store.CreateUser(req.Email, req.Name)
	if err != nil {
		logFor(r.Context()).Error("create user", "err", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to create user")
		return
	}

	key, _, err := s.store.GenerateAPIKey(user.ID, "default", nil)
	if err != nil {
		logFor(r.Context()).Error("generate api key", "uid", user.ID, "err", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to create api key")
		return
	}

	logFor(r.Context()).Info("user signed up", "uid", user.ID)
	writeJSON(w, http.StatusCreated, SignupResponse{User: userToResponse(user, false), APIKey: key})
}

// handleGetMe handles GET /v1/users/me.
func (s *Server) handleGetMe(w http.ResponseWriter, r *http.Request) {
	s.writeMe(w, r)
}

// handleUpdateMe handles PATCH /v1/users/me.
func (s *Server) handleUpdateMe(w http.ResponseWriter, r *http.Request) {
	authUser := getUserFromContext(r.Context())

	var req UpdateMeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "invalid json body")
		return
	}
	if errs := validateRequest(req); errs != nil {
		writeValidationError(w, errs)
		return
	}

	user, err := s.store.GetUserByID(authUser.UserID)
	if err != nil || user == nil {
		logFor(r.Context()).Error("get user for update", "err", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to get user")
		return
	}

	if req.Name != nil {
		if err := s.store.UpdateUserName(user.ID, *req.Name); err != nil {
			logFor(r.Context()).Error("update user name", "err", err)
			writeError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to update user")
			return
		}
	}

	if req.AirtableBaseID != nil || req.AirtableTableID != nil {
		baseID, tableID := user.AirtableBaseID, user.AirtableTableID
		if req.AirtableBaseID != nil {
			baseID = *req.AirtableBaseID
		}
		if req.AirtableTableID != nil {
			tableID = *req.AirtableTableID
		}
		if err := s.store.SetAirtableDefaults(user.ID, baseID, tableID); err != nil {
			logFor(r.Context()).Error("set airtable defaults", "err", err)
			writeError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to update airtable defaults")
			return
		}
	}

	if req.AirtableToken != nil {
		token := strings.TrimSpace(*req.AirtableToken)
		if token == "" {
			if err := s.store.DeleteAirtableConnection(user.ID); err != nil {
				logFor(r.Context()).Error("delete airtable connection", "err", err)
				writeError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to remove airtable token")
				return
			}
		} else if !s.savePersonalToken(w, r, user.ID, token) {
			return
		}
	}

	s.writeMe(w, r)
}

// savePersonalToken checks a personal access token against Airtable and
// stores it as the user's connection. It writes the error response itself
// and reports whether the caller may continue.
func (s *Server) savePersonalToken(w http.ResponseWriter, r *http.Request, userID, token string) bool {
	client := airtable.NewTokenClient(r.Context(), s.config.AirtableAPIURL, token)
	id, err := client.WhoAmI(r.Context())
	if err != nil {
		if errors.Is(err, airtable.ErrUnauthorized) {
			writeError(w, http.StatusBadRequest, ErrCodeAirtableError, "airtable rejected the token")
			return false
		}
		logFor(r.Context()).Warn("airtable whoami", "err", err)
		writeError(w, http.StatusBadGateway, ErrCodeAirtableError, "could not reach airtable")
		return false
	}

	conn := &serverdb.AirtableConnection{
		UserID:         userID,
		AccessToken:    token,
		AirtableUserID: id.ID,
		AirtableEmail:  id.Email,
		Scopes:         strings.Join(id.Scopes, " "),
	}
	if err := s.store.SaveAirtableConnection(conn); err != nil {
		logFor(r.Context()).Error("save airtable connection", "err", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to save airtable token")
		return false
	}
	return true
}

func (s *Server) writeMe(w http.ResponseWriter, r *http.Request) {
	authUser := getUserFromContext(r.Context())

	user, err := s.store.GetUserByID(authUser.UserID)
	if err != nil {
		logFor(r.Context()).Error("get user", "err", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to get user")
		return
	}
	if user == nil {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "user not found")
		return
	}

	conn, err := s.store.GetAirtableConnection(user.ID)
	if err != nil {
		logFor(r.Context()).Error("get airtable connection", "err", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to get airtable connection")
		return
	}

	writeJSON(w, http.StatusOK, userToResponse(user, conn != nil))
}

func userToResponse(u *serverdb.User, connected bool) UserResponse {
	return UserResponse{
		ID:                u.ID,
		Email:             u.Email,
		Name:              u.Name,
		AirtableBaseID:    u.AirtableBaseID,
		AirtableTableID:   u.AirtableTableID,
		AirtableConnected: connected,
		CreatedAt:         u.CreatedAt.Format(time.RFC3339),
	}
}
