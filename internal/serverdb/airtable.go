package serverdb

import (
	"database/sql"
	"fmt"
	"time"
)

// AirtableConnection holds the Airtable credentials of one user. Connections
// made with a personal access token have no refresh token and no expiry.
type AirtableConnection struct {
	UserID         string
	AccessToken    string
	RefreshToken   string
	TokenType      string
	ExpiresAt      *time.Time
	AirtableUserID string
	AirtableEmail  string
	Scopes         string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// SaveAirtableConnection inserts or replaces the user's connection.
func (db *ServerDB) SaveAirtableConnection(c *AirtableConnection) error {
	if c.UserID == "" || c.AccessToken == "" {
		return fmt.Errorf("user id and access token are required")
	}
	if c.TokenType == "" {
		c.TokenType = "Bearer"
	}
	access, err := db.tokens.Seal(c.AccessToken)
	if err != nil {
		return fmt.Errorf("seal access token: %w", err)
	}
	refresh, err := db.tokens.Seal(c.RefreshToken)
	if err != nil {
		return fmt.Errorf("seal refresh token: %w", err)
	}
	now := time.Now().UTC()
	_, err = db.conn.Exec(`
		INSERT INTO airtable_connections
			(user_id, access_token, refresh_token, token_type, expires_at, airtable_user_id, airtable_email, scopes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			token_type = excluded.token_type,
			expires_at = excluded.expires_at,
			airtable_user_id = excluded.airtable_user_id,
			airtable_email = excluded.airtable_email,
			scopes = excluded.scopes,
			updated_at = excluded.updated_at`,
		c.UserID, access, refresh, c.TokenType, c.ExpiresAt,
		c.AirtableUserID, c.AirtableEmail, c.Scopes, now, now,
	)
	if err != nil {
		return fmt.Errorf("save airtable connection: %w", err)
	}
	c.UpdatedAt = now
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	return nil
}

// GetAirtableConnection returns the user's connection, or nil if none.
func (db *ServerDB) GetAirtableConnection(userID string) (*AirtableConnection, error) {
	c := &AirtableConnection{}
	err := db.conn.QueryRow(`
		SELECT user_id, access_token, refresh_token, token_type, expires_at, airtable_user_id, airtable_email, scopes, created_at, updated_at
		FROM airtable_connections WHERE user_id = ?`, userID,
	).Scan(&c.UserID, &c.AccessToken, &c.RefreshToken, &c.TokenType, &c.ExpiresAt,
		&c.AirtableUserID, &c.AirtableEmail, &c.Scopes, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get airtable connection: %w", err)
	}
	if c.AccessToken, err = db.tokens.Open(c.AccessToken); err != nil {
		return nil, fmt.Errorf("open access token: %w", err)
	}
	if c.RefreshToken, err = db.tokens.Open(c.RefreshToken); err != nil {
		return nil, fmt.Errorf("open refresh token: %w", err)
	}
	return c, nil
}

// UpdateAirtableToken stores a refreshed token pair. An empty refresh token
// keeps the stored one, since Airtable may omit it on refresh.
func (db *ServerDB) UpdateAirtableToken(userID, accessToken, refreshToken string, expiresAt *time.Time) error {
	accessToken, err := db.tokens.Seal(accessToken)
	if err != nil {
		return fmt.Errorf("seal access token: %w", err)
	}
	if refreshToken, err = db.tokens.Seal(refreshToken); err != nil {
		return fmt.Errorf("seal refresh token: %w", err)
	}
	res, err := db.conn.Exec(`
		UPDATE airtable_connections
		SET access_token = ?,
		    refresh_token = CASE WHEN ? = '' THEN refresh_token ELSE ? END,
		    expires_at = ?,
		    updated_at = ?
		WHERE user_id = ?`,
		accessToken, refreshToken, refreshToken, expiresAt, time.Now().UTC(), userID,
	)
	if err != nil {
		return fmt.Errorf("update airtable token: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("no airtable connection for user %s", userID)
	}
	return nil
}

// DeleteAirtableConnection removes the user's connection. Deleting a
// connection that does not exist is not an error.
func (db *ServerDB) DeleteAirtableConnection(userID string) error {
	if _, err := db.conn.Exec(`DELETE FROM airtable_connections WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("delete airtable connection: %w", err)
	}
	return nil
}
