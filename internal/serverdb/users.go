package serverdb

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// User represents a registered form author.
type User struct {
	ID              string
	Email           string
	Name            string
	AirtableBaseID  string // default sync target for forms without their own
	AirtableTableID string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

const userColumns = `id, email, name, airtable_base_id, airtable_table_id, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (*User, error) {
	u := &User{}
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.AirtableBaseID, &u.AirtableTableID, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

// CreateUser inserts a new user with the given email (lowercased) and display name.
func (db *ServerDB) CreateUser(email, name string) (*User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, fmt.Errorf("email is required")
	}
	name = strings.TrimSpace(name)

	id, err := generateID("u_")
	if err != nil {
		return nil, fmt.Errorf("generate user id: %w", err)
	}

	now := time.Now().UTC()
	_, err = db.conn.Exec(
		`INSERT INTO users (id, email, name, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		id, email, name, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}

	return &User{ID: id, Email: email, Name: name, CreatedAt: now, UpdatedAt: now}, nil
}

// GetUserByID returns the user with the given ID, or nil if not found.
func (db *ServerDB) GetUserByID(id string) (*User, error) {
	u, err := scanUser(db.conn.QueryRow(`SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user by id: %w", err)
	}
	return u, nil
}

// GetUserByEmail returns the user with the given email (case-insensitive), or nil if not found.
func (db *ServerDB) GetUserByEmail(email string) (*User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	u, err := scanUser(db.conn.QueryRow(`SELECT `+userColumns+` FROM users WHERE LOWER(email) = ?`, email))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return u, nil
}

// ListUsers returns all users.
func (db *ServerDB) ListUsers() ([]*User, error) {
	rows, err := db.conn.Query(`SELECT ` + userColumns + ` FROM users ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list users: iterate: %w", err)
	}
	return users, nil
}

// UpdateUserName sets the user's display name.
func (db *ServerDB) UpdateUserName(userID, name string) error {
	res, err := db.conn.Exec(
		`UPDATE users SET name = ?, updated_at = ? WHERE id = ?`,
		strings.TrimSpace(name), time.Now().UTC(), userID,
	)
	if err != nil {
		return fmt.Errorf("update user name: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("user not found: %s", userID)
	}
	return nil
}

// SetAirtableDefaults sets the base and table that submissions sync to when
// the form names none.
func (db *ServerDB) SetAirtableDefaults(userID, baseID, tableID string) error {
	res, err := db.conn.Exec(
		`UPDATE users SET airtable_base_id = ?, airtable_table_id = ?, updated_at = ? WHERE id = ?`,
		strings.TrimSpace(baseID), strings.TrimSpace(tableID), time.Now().UTC(), userID,
	)
	if err != nil {
		return fmt.Errorf("set airtable defaults: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("user not found: %s", userID)
	}
	return nil
}
