package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/rcliao/data-assistant/internal/model"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens or creates a SQLite database at the given path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	s := &SQLiteStore{db: db}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS settings (
		key        TEXT PRIMARY KEY,
		value      TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS datasets (
		dataset_id        TEXT PRIMARY KEY,
		position          INTEGER NOT NULL,
		user_id           TEXT,
		dataset_name      TEXT NOT NULL,
		original_filename TEXT,
		table_name        TEXT,
		row_count         INTEGER NOT NULL DEFAULT 0,
		created_at        TEXT,
		gcs_uri           TEXT,
		file_type         TEXT,
		fetched_at        TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_datasets_owner ON datasets(user_id);

	CREATE TABLE IF NOT EXISTS messages (
		id         TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		seq        INTEGER NOT NULL,
		role       TEXT NOT NULL CHECK (role IN ('user', 'assistant')),
		content    TEXT NOT NULL,
		result     TEXT,
		reply_to   TEXT,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

func (s *SQLiteStore) Set(ctx context.Context, key, value string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, now)
	if err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

func (s *SQLiteStore) ReplaceDatasets(ctx context.Context, snap model.Snapshot) error {
	fetchedAt := snap.FetchedAt
	if fetchedAt.IsZero() {
		fetchedAt = time.Now()
	}
	fetched := fetchedAt.UTC().Format(time.RFC3339Nano)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM datasets`); err != nil {
		return fmt.Errorf("clear datasets: %w", err)
	}

	for i, d := range snap.Datasets {
		var createdAt *string
		if !d.CreatedAt.IsZero() {
			c := d.CreatedAt.UTC().Format(time.RFC3339Nano)
			createdAt = &c
		}
		// A listing with duplicate ids keeps the first occurrence.
		_, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO datasets (dataset_id, position, user_id, dataset_name, original_filename,
			                                 table_name, row_count, created_at, gcs_uri, file_type, fetched_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			d.ID, i, nullString(d.Owner), d.Name, nullString(d.OriginalFilename),
			nullString(d.Table), d.RowCount, createdAt, nullString(d.GCSURI), nullString(d.FileType), fetched)
		if err != nil {
			return fmt.Errorf("insert dataset %s: %w", d.ID, err)
		}
	}

	return tx.Commit()
}

func (s *SQLiteStore) LoadDatasets(ctx context.Context) (model.Snapshot, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT dataset_id, user_id, dataset_name, original_filename, table_name, row_count,
		        created_at, gcs_uri, file_type, fetched_at
		 FROM datasets ORDER BY position`)
	if err != nil {
		return model.Snapshot{}, err
	}
	defer rows.Close()

	var snap model.Snapshot
	for rows.Next() {
		var d model.Dataset
		var owner, filename, table, createdAt, gcsURI, fileType sql.NullString
		var fetched string
		if err := rows.Scan(&d.ID, &owner, &d.Name, &filename, &table, &d.RowCount,
			&createdAt, &gcsURI, &fileType, &fetched); err != nil {
			return model.Snapshot{}, err
		}
		d.Owner = owner.String
		d.OriginalFilename = filename.String
		d.Table = table.String
		d.GCSURI = gcsURI.String
		d.FileType = fileType.String
		if createdAt.Valid {
			t, _ := time.Parse(time.RFC3339Nano, createdAt.String)
			d.CreatedAt = model.Timestamp{Time: t}
		}
		if snap.FetchedAt.IsZero() {
			snap.FetchedAt, _ = time.Parse(time.RFC3339Nano, fetched)
		}
		snap.Datasets = append(snap.Datasets, d)
	}
	if err := rows.Err(); err != nil {
		return model.Snapshot{}, err
	}
	snap.Count = len(snap.Datasets)
	return snap, nil
}

func (s *SQLiteStore) AppendMessage(ctx context.Context, sessionID string, m model.ChatMessage) error {
	args, err := messageArgs(sessionID, m)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, insertMessage, args...); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

const insertMessage = `INSERT INTO messages (id, session_id, seq, role, content, result, reply_to, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

func messageArgs(sessionID string, m model.ChatMessage) ([]interface{}, error) {
	var result *string
	if m.Result != nil {
		b, err := json.Marshal(m.Result)
		if err != nil {
			return nil, fmt.Errorf("encode result: %w", err)
		}
		r := string(b)
		result = &r
	}
	createdAt := m.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	return []interface{}{
		m.ID, sessionID, m.Seq, string(m.Role), m.Content, result, nullString(m.ReplyTo),
		createdAt.UTC().Format(time.RFC3339Nano),
	}, nil
}

func (s *SQLiteStore) ListMessages(ctx context.Context, p ListMessagesParams) ([]model.ChatMessage, error) {
	limit := p.Limit
	if limit <= 0 {
		limit = 100
	}

	where := "1 = 1"
	args := []interface{}{}
	if p.SessionID != "" {
		where = "session_id = ?"
		args = append(args, p.SessionID)
	}
	args = append(args, limit)

	// Newest N, then flipped back to append order.
	query := `SELECT id, seq, role, content, result, reply_to, created_at FROM (
		SELECT rowid AS rid, id, seq, role, content, result, reply_to, created_at
		FROM messages WHERE ` + where + `
		ORDER BY rowid DESC LIMIT ?
	) ORDER BY rid`

	return s.queryMessages(ctx, query, args...)
}

func (s *SQLiteStore) queryMessages(ctx context.Context, query string, args ...interface{}) ([]model.ChatMessage, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []model.ChatMessage
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

func (s *SQLiteStore) ListSessions(ctx context.Context, limit int) ([]SessionSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id, COUNT(*), MIN(created_at), MAX(created_at)
		 FROM messages GROUP BY session_id
		 ORDER BY MAX(rowid) DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []SessionSummary
	for rows.Next() {
		var ss SessionSummary
		if err := rows.Scan(&ss.ID, &ss.Messages, &ss.StartedAt, &ss.LastAt); err != nil {
			return nil, err
		}
		sessions = append(sessions, ss)
	}
	return sessions, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanMessage(row scanner) (model.ChatMessage, error) {
	var m model.ChatMessage
	var role, createdAt string
	var result, replyTo sql.NullString

	err := row.Scan(&m.ID, &m.Seq, &role, &m.Content, &result, &replyTo, &createdAt)
	if err != nil {
		return m, err
	}

	m.Role = model.Role(role)
	m.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	if replyTo.Valid {
		m.ReplyTo = replyTo.String
	}
	if result.Valid {
		var r model.QueryResult
		if err := json.Unmarshal([]byte(result.String), &r); err == nil {
			m.Result = &r
		}
	}
	return m, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
