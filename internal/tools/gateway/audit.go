package gateway

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/haasonsaas/nexus/internal/models"
)

// MemoryAuditSink keeps ToolCallLog entries in process memory, for tests
// and local runs.
type MemoryAuditSink struct {
	mu      sync.Mutex
	entries []models.ToolCallLog
}

// NewMemoryAuditSink creates an empty in-memory sink.
func NewMemoryAuditSink() *MemoryAuditSink {
	return &MemoryAuditSink{}
}

func (s *MemoryAuditSink) Write(ctx context.Context, entry models.ToolCallLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return nil
}

// Entries returns a snapshot of everything written so far.
func (s *MemoryAuditSink) Entries() []models.ToolCallLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.ToolCallLog, len(s.entries))
	copy(out, s.entries)
	return out
}

// SQLiteAuditSink persists ToolCallLog entries to the same kind of
// single-file embedded database the durable State Store uses.
type SQLiteAuditSink struct {
	db *sql.DB
}

// NewSQLiteAuditSink creates the tool_call_log table in db if it does not
// exist and returns a sink that writes to it.
func NewSQLiteAuditSink(db *sql.DB) (*SQLiteAuditSink, error) {
	sink := &SQLiteAuditSink{db: db}
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS tool_call_log (
			call_id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			tool_name TEXT NOT NULL,
			args TEXT NOT NULL,
			result TEXT,
			ok INTEGER NOT NULL,
			elapsed_ms INTEGER NOT NULL,
			ts INTEGER NOT NULL
		)
	`)
	if err != nil {
		return nil, fmt.Errorf("create tool_call_log table: %w", err)
	}
	return sink, nil
}

func (s *SQLiteAuditSink) Write(ctx context.Context, entry models.ToolCallLog) error {
	args, err := json.Marshal(entry.Args)
	if err != nil {
		return fmt.Errorf("encode args: %w", err)
	}
	result, err := json.Marshal(entry.Result)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	ok := 0
	if entry.OK {
		ok = 1
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO tool_call_log (call_id, session_id, tool_name, args, result, ok, elapsed_ms, ts)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.CallID, entry.SessionID, entry.ToolName, string(args), string(result), ok, entry.ElapsedMS, entry.Ts,
	)
	if err != nil {
		return fmt.Errorf("insert tool_call_log: %w", err)
	}
	return nil
}
