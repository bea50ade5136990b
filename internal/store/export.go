package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/rcliao/data-assistant/internal/model"
)

// ExportedMessage is a transcript entry tagged with its session.
type ExportedMessage struct {
	SessionID string `json:"session_id"`
	model.ChatMessage
}

// ExportMessages returns every recorded message in append order, optionally
// filtered by session.
func (s *SQLiteStore) ExportMessages(ctx context.Context, sessionID string) ([]ExportedMessage, error) {
	where := "1 = 1"
	args := []interface{}{}
	if sessionID != "" {
		where = "session_id = ?"
		args = append(args, sessionID)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id, id, seq, role, content, result, reply_to, created_at
		 FROM messages WHERE `+where+` ORDER BY rowid`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ExportedMessage
	for rows.Next() {
		var e ExportedMessage
		m, err := scanMessage(sessionScanner{rows, &e.SessionID})
		if err != nil {
			return nil, err
		}
		e.ChatMessage = m
		out = append(out, e)
	}
	return out, rows.Err()
}

// sessionScanner peels the leading session_id column off a row before the
// message columns.
type sessionScanner struct {
	row       scanner
	sessionID *string
}

func (s sessionScanner) Scan(dest ...interface{}) error {
	return s.row.Scan(append([]interface{}{s.sessionID}, dest...)...)
}

// ImportMessages appends exported messages. Messages whose id is already
// recorded are skipped. It returns the number of messages added.
func (s *SQLiteStore) ImportMessages(ctx context.Context, msgs []ExportedMessage) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	insert := strings.Replace(insertMessage, "INSERT INTO", "INSERT OR IGNORE INTO", 1)
	added := 0
	for _, e := range msgs {
		if e.ID == "" || e.SessionID == "" {
			return 0, fmt.Errorf("import message: missing id or session")
		}
		args, err := messageArgs(e.SessionID, e.ChatMessage)
		if err != nil {
			return 0, err
		}
		res, err := tx.ExecContext(ctx, insert, args...)
		if err != nil {
			return 0, fmt.Errorf("import message %s: %w", e.ID, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			added++
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return added, nil
}
