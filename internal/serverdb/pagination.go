package serverdb

import (
	"database/sql"
	"fmt"
	"strings"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// PaginatedResult is one page of rows plus the cursor for the next page.
type PaginatedResult[T any] struct {
	Data       []T
	NextCursor string
	HasMore    bool
}

// PaginatedQuery runs query in descending cursorCol order, starting after
// cursor when one is given. scanRow returns each row and its cursor value.
func PaginatedQuery[T any](
	conn *sql.DB,
	query string,
	args []any,
	limit int,
	cursor string,
	cursorCol string,
	scanRow func(*sql.Rows) (T, string, error),
) (*PaginatedResult[T], error) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	if cursor != "" {
		if strings.Contains(strings.ToUpper(query), " WHERE ") {
			query += " AND "
		} else {
			query += " WHERE "
		}
		query += cursorCol + " < ?"
		args = append(args, cursor)
	}
	query += fmt.Sprintf(" ORDER BY %s DESC LIMIT %d", cursorCol, limit+1)

	rows, err := conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("paginated query: %w", err)
	}
	defer rows.Close()

	result := &PaginatedResult[T]{Data: []T{}}
	var cursors []string
	for rows.Next() {
		item, c, err := scanRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		result.Data = append(result.Data, item)
		cursors = append(cursors, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("paginated query: iterate: %w", err)
	}

	if len(result.Data) > limit {
		result.Data = result.Data[:limit]
		result.HasMore = true
		result.NextCursor = cursors[limit-1]
	}
	return result, nil
}
