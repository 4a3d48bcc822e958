package serverdb

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DefaultOAuthStateTTL bounds how long a user has to finish the Airtable consent screen.
const DefaultOAuthStateTTL = 10 * time.Minute

// OAuthState ties an in-flight authorization request to a user and its PKCE verifier.
type OAuthState struct {
	State     string
	UserID    string
	Verifier  string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// CreateOAuthState stores a new random state for userID.
func (db *ServerDB) CreateOAuthState(userID, verifier string, ttl time.Duration) (*OAuthState, error) {
	if ttl <= 0 {
		ttl = DefaultOAuthStateTTL
	}
	now := time.Now().UTC()
	st := &OAuthState{
		State:     uuid.NewString(),
		UserID:    userID,
		Verifier:  verifier,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}
	_, err := db.conn.Exec(
		`INSERT INTO oauth_states (state, user_id, verifier, expires_at, created_at) VALUES (?, ?, ?, ?, ?)`,
		st.State, st.UserID, st.Verifier, st.ExpiresAt, st.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert oauth state: %w", err)
	}
	return st, nil
}

// ConsumeOAuthState removes and returns the state. It returns nil if the
// state is unknown, already used or expired.
func (db *ServerDB) ConsumeOAuthState(state string) (*OAuthState, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	st := &OAuthState{}
	err = tx.QueryRow(
		`SELECT state, user_id, verifier, expires_at, created_at FROM oauth_states WHERE state = ?`, state,
	).Scan(&st.State, &st.UserID, &st.Verifier, &st.ExpiresAt, &st.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get oauth state: %w", err)
	}

	if _, err := tx.Exec(`DELETE FROM oauth_states WHERE state = ?`, state); err != nil {
		return nil, fmt.Errorf("delete oauth state: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	if !st.ExpiresAt.After(time.Now().UTC()) {
		return nil, nil
	}
	return st, nil
}

// CleanupExpiredOAuthStates deletes states past their expiry.
func (db *ServerDB) CleanupExpiredOAuthStates() (int64, error) {
	res, err := db.conn.Exec(`DELETE FROM oauth_states WHERE expires_at <= ?`, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("cleanup expired oauth states: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
