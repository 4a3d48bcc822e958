package serverdb

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Endpoint classes recorded with rate limit events.
const (
	EndpointClassPublic = "public" // unauthenticated writes, limited per IP
	EndpointClassOther  = "other"  // authenticated routes, limited per API key
)

// RateLimitEvent is one rejected request.
type RateLimitEvent struct {
	ID            int64
	KeyID         string // empty for IP-based limits
	IP            string
	EndpointClass string
	CreatedAt     string
}

// InsertRateLimitEvent records a rejected request. keyID may be empty for
// IP-based limiting and is then stored as NULL.
func (db *ServerDB) InsertRateLimitEvent(keyID, ip, endpointClass string) error {
	var keyIDParam any
	if keyID != "" {
		keyIDParam = keyID
	}
	_, err := db.conn.Exec(
		`INSERT INTO rate_limit_events (key_id, ip, endpoint_class, created_at) VALUES (?, ?, ?, ?)`,
		keyIDParam, ip, endpointClass, time.Now().UTC().Format(time.DateTime),
	)
	if err != nil {
		return fmt.Errorf("insert rate limit event: %w", err)
	}
	return nil
}

// QueryRateLimitEvents lists events newest first, filtered by exact key ID
// and IP when given, with cursor pagination.
func (db *ServerDB) QueryRateLimitEvents(keyID, ip string, limit int, cursor string) (*PaginatedResult[RateLimitEvent], error) {
	query := "SELECT id, key_id, ip, endpoint_class, created_at FROM rate_limit_events"
	var conditions []string
	var args []any

	if keyID != "" {
		conditions = append(conditions, "key_id = ?")
		args = append(args, keyID)
	}
	if ip != "" {
		conditions = append(conditions, "ip = ?")
		args = append(args, ip)
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	scanRow := func(rows *sql.Rows) (RateLimitEvent, string, error) {
		var e RateLimitEvent
		var keyIDNull sql.NullString
		if err := rows.Scan(&e.ID, &keyIDNull, &e.IP, &e.EndpointClass, &e.CreatedAt); err != nil {
			return e, "", err
		}
		e.KeyID = keyIDNull.String
		return e, fmt.Sprintf("%d", e.ID), nil
	}

	return PaginatedQuery(db.conn, query, args, limit, cursor, "id", scanRow)
}

// CleanupRateLimitEvents deletes events older than the given duration.
// Returns the number of rows deleted.
func (db *ServerDB) CleanupRateLimitEvents(olderThan time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-olderThan).Format(time.DateTime)
	res, err := db.conn.Exec(`DELETE FROM rate_limit_events WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleanup rate limit events: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
