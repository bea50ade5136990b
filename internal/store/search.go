package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/rcliao/data-assistant/internal/model"
)

// SearchParams holds parameters for searching the transcript log.
type SearchParams struct {
	SessionID string
	Role      model.Role
	Query     string
	Limit     int
}

// SearchMessages finds recorded messages whose content or generated SQL
// contains the query substring, newest first.
func (s *SQLiteStore) SearchMessages(ctx context.Context, p SearchParams) ([]ExportedMessage, error) {
	limit := p.Limit
	if limit <= 0 {
		limit = 20
	}
	if strings.TrimSpace(p.Query) == "" {
		return nil, fmt.Errorf("search query is empty")
	}

	query := "%" + p.Query + "%"
	where := []string{"(content LIKE ? OR json_extract(result, '$.sql') LIKE ?)"}
	args := []interface{}{query, query}

	if p.SessionID != "" {
		where = append(where, "session_id = ?")
		args = append(args, p.SessionID)
	}
	if p.Role != "" {
		where = append(where, "role = ?")
		args = append(args, string(p.Role))
	}
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT session_id, id, seq, role, content, result, reply_to, created_at
		FROM messages
		WHERE %s
		ORDER BY rowid DESC
		LIMIT ?`, strings.Join(where, " AND ")), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []ExportedMessage
	for rows.Next() {
		var e ExportedMessage
		m, err := scanMessage(sessionScanner{rows, &e.SessionID})
		if err != nil {
			return nil, err
		}
		e.ChatMessage = m
		results = append(results, e)
	}
	return results, rows.Err()
}
