package builtin

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/haasonsaas/nexus/internal/models"
	"github.com/haasonsaas/nexus/internal/tools/registry"
)

// Note is one append-only note record.
type Note struct {
	ID      string
	Title   string
	Content string
	Ts      int64
}

// NotesStore is the persistence contract notes.append/notes.search use.
type NotesStore interface {
	Add(ctx context.Context, title, content string, ts int64) (Note, error)
	Search(ctx context.Context, query string) ([]Note, error)
}

// MemoryNotesStore is an in-memory NotesStore, for tests.
type MemoryNotesStore struct {
	mu    sync.Mutex
	notes []Note
}

// NewMemoryNotesStore builds an empty in-memory notes store.
func NewMemoryNotesStore() *MemoryNotesStore {
	return &MemoryNotesStore{}
}

func (s *MemoryNotesStore) Add(ctx context.Context, title, content string, ts int64) (Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := Note{ID: "note_" + uuid.NewString(), Title: title, Content: content, Ts: ts}
	s.notes = append(s.notes, n)
	return n, nil
}

func (s *MemoryNotesStore) Search(ctx context.Context, query string) ([]Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Note
	q := strings.ToLower(query)
	for _, n := range s.notes {
		if strings.Contains(strings.ToLower(n.Title), q) || strings.Contains(strings.ToLower(n.Content), q) {
			out = append(out, n)
		}
	}
	return out, nil
}

// SQLiteNotesStore is the durable NotesStore.
type SQLiteNotesStore struct {
	db *sql.DB
}

// NewSQLiteNotesStore opens (creating the schema if necessary) a notes
// store over db.
func NewSQLiteNotesStore(db *sql.DB) (*SQLiteNotesStore, error) {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS notes (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			content TEXT NOT NULL,
			ts INTEGER NOT NULL
		)
	`); err != nil {
		return nil, fmt.Errorf("create notes table: %w", err)
	}
	return &SQLiteNotesStore{db: db}, nil
}

func (s *SQLiteNotesStore) Add(ctx context.Context, title, content string, ts int64) (Note, error) {
	id := "note_" + uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO notes (id, title, content, ts) VALUES (?, ?, ?, ?)`, id, title, content, ts)
	if err != nil {
		return Note{}, fmt.Errorf("insert note: %w", err)
	}
	return Note{ID: id, Title: title, Content: content, Ts: ts}, nil
}

func (s *SQLiteNotesStore) Search(ctx context.Context, query string) ([]Note, error) {
	like := "%" + query + "%"
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, content, ts FROM notes WHERE title LIKE ? OR content LIKE ?`, like, like)
	if err != nil {
		return nil, fmt.Errorf("search notes: %w", err)
	}
	defer rows.Close()

	var out []Note
	for rows.Next() {
		var n Note
		if err := rows.Scan(&n.ID, &n.Title, &n.Content, &n.Ts); err != nil {
			return nil, fmt.Errorf("scan note: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

var notesAppendSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"title": {"type": "string"},
		"content": {"type": "string"}
	},
	"required": ["title", "content"]
}`)

var notesSearchSchema = json.RawMessage(`{
	"type": "object",
	"properties": {"query": {"type": "string"}},
	"required": ["query"]
}`)

// RegisterNotes registers notes.append and notes.search against store.
func RegisterNotes(reg *registry.Registry, store NotesStore, now func() int64) error {
	if err := reg.Register(models.ToolSpec{
		Name:        "notes.append",
		Description: "Append a note",
		ArgsSchema:  notesAppendSchema,
		Risk:        models.RiskSafe,
		TimeoutMS:   2000,
		Caps:        []string{"notes"},
	}, func(ctx context.Context, args map[string]any) (any, error) {
		title, _ := args["title"].(string)
		content, _ := args["content"].(string)
		n, err := store.Add(ctx, title, content, now())
		if err != nil {
			return nil, fmt.Errorf("notes.append: %w", err)
		}
		return n.ID, nil
	}); err != nil {
		return err
	}

	return reg.Register(models.ToolSpec{
		Name:        "notes.search",
		Description: "Search notes",
		ArgsSchema:  notesSearchSchema,
		Risk:        models.RiskSafe,
		TimeoutMS:   2000,
		Caps:        []string{"notes"},
	}, func(ctx context.Context, args map[string]any) (any, error) {
		query, _ := args["query"].(string)
		notes, err := store.Search(ctx, query)
		if err != nil {
			return nil, fmt.Errorf("notes.search: %w", err)
		}
		results := make([]map[string]any, len(notes))
		for i, n := range notes {
			results[i] = map[string]any{"id": n.ID, "title": n.Title, "content": n.Content}
		}
		return results, nil
	})
}
