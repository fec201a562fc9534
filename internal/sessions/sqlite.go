package sessions

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	_ "modernc.org/sqlite" // pure-Go driver, no cgo

	"github.com/haasonsaas/nexus/internal/models"
)

// SQLiteStore is the durable Store implementation: a single-file embedded
// database per spec.md §4.2. Safe for concurrent callers; readers observe
// all writes that completed before the read began because each operation
// runs a single committed statement against database/sql's connection
// pool.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if necessary) a session store at path.
// Use ":memory:" for an ephemeral in-process database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	s := &SQLiteStore{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) init() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS messages (
			message_id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			ts INTEGER NOT NULL,
			seq INTEGER NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("create messages table: %w", err)
	}
	_, err = s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_messages_session_seq ON messages(session_id, seq)`)
	if err != nil {
		return fmt.Errorf("create session index: %w", err)
	}
	return nil
}

func (s *SQLiteStore) AddMessage(ctx context.Context, sessionID string, msg models.Message) (models.Message, error) {
	if msg.MessageID == "" {
		msg.MessageID = uuid.NewString()
	}
	if msg.Ts == 0 {
		msg.Ts = nowUnix()
	}

	var nextSeq int64
	row := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) + 1 FROM messages WHERE session_id = ?`, sessionID)
	if err := row.Scan(&nextSeq); err != nil {
		return models.Message{}, fmt.Errorf("compute next sequence: %w", err)
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (message_id, session_id, role, content, ts, seq) VALUES (?, ?, ?, ?, ?, ?)`,
		msg.MessageID, sessionID, string(msg.Role), msg.Content, msg.Ts, nextSeq,
	)
	if err != nil {
		return models.Message{}, fmt.Errorf("insert message: %w", err)
	}
	return msg, nil
}

func (s *SQLiteStore) ListMessages(ctx context.Context, sessionID string) ([]models.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT message_id, role, content, ts FROM messages WHERE session_id = ? ORDER BY seq ASC`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var out []models.Message
	for rows.Next() {
		var msg models.Message
		var role string
		if err := rows.Scan(&msg.MessageID, &role, &msg.Content, &msg.Ts); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msg.Role = models.Role(role)
		out = append(out, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return out, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
