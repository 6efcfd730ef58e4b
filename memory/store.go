// Package memory persists note memories and a full-text index of vault notes
// in a single SQLite database.
package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	notes "github.com/haowjy/meridian-notes-go"
)

// SourceSQLite is the MemorySnippet.Source of memories recorded by the server.
const SourceSQLite = "sqlite"

// Note is one indexed vault document.
type Note struct {
	Path     string            `json:"path"` // vault-relative, slash separated
	Title    string            `json:"title"`
	Text     string            `json:"text"`
	Metadata map[string]string `json:"metadata"`
	Modified time.Time         `json:"modified"`
}

// Store is the SQLite-backed memory and retrieval store.
// Safe for concurrent use.
type Store struct {
	db        *sql.DB
	namespace string
}

// Option configures a Store.
type Option func(*Store)

// WithNamespace scopes memories to ns. Stores opened on the same database
// with different namespaces never see each other's memories. Indexed notes
// are shared.
func WithNamespace(ns string) Option {
	return func(s *Store) {
		s.namespace = strings.TrimSpace(ns)
	}
}

const schema = `
CREATE TABLE IF NOT EXISTS memories (
    id          TEXT PRIMARY KEY,
    namespace   TEXT NOT NULL DEFAULT '',
    note_path   TEXT NOT NULL,
    source      TEXT NOT NULL,
    text        TEXT NOT NULL,
    created_at  TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS memories_scope ON memories(namespace, note_path);

CREATE TABLE IF NOT EXISTS notes (
    path        TEXT PRIMARY KEY,
    title       TEXT NOT NULL,
    text        TEXT NOT NULL,
    metadata    TEXT NOT NULL,
    modified    TEXT NOT NULL
);

CREATE VIRTUAL TABLE IF NOT EXISTS notes_fts USING fts5(
    path UNINDEXED,
    title,
    text
);
`

// DefaultDBPath returns the default database path (~/.config/meridian-notes/notes.db).
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("memory: cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".config", "meridian-notes", "notes.db"), nil
}

// NewStore opens (or creates) a SQLite database at the given path and initializes the schema.
func NewStore(dbPath string, opts ...Option) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("memory: failed to create directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("memory: failed to open database %s: %w", dbPath, err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("memory: failed to initialize schema: %w", err)
	}

	s := &Store{db: db}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Namespace returns the namespace memories are scoped to.
func (s *Store) Namespace() string {
	return s.namespace
}

func (s *Store) Close() error {
	return s.db.Close()
}

// --- Memories ---

// Remember records text as a memory of notePath. An empty notePath is stored
// under "default"; an empty source under SourceSQLite.
func (s *Store) Remember(ctx context.Context, notePath, text, source string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if notePath == "" {
		notePath = "default"
	}
	if source == "" {
		source = SourceSQLite
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO memories (id, namespace, note_path, source, text, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		uuid.New().String(), s.namespace, notePath, source, text, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("memory: remember: %w", err)
	}
	return nil
}

// Recall returns up to limit memories of notePath, newest first.
// limit <= 0 means no limit.
func (s *Store) Recall(ctx context.Context, notePath string, limit int) ([]notes.MemorySnippet, error) {
	if notePath == "" {
		notePath = "default"
	}
	if limit <= 0 {
		limit = -1
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, note_path, source, text, created_at FROM memories
		 WHERE namespace = ? AND note_path = ? ORDER BY rowid DESC LIMIT ?`, s.namespace, notePath, limit)
	if err != nil {
		return nil, fmt.Errorf("memory: recall: %w", err)
	}
	return scanMemories(rows)
}

// ListMemories returns every memory, or only those of notePath when it is
// non-empty, oldest first.
func (s *Store) ListMemories(ctx context.Context, notePath string) ([]notes.MemorySnippet, error) {
	query := `SELECT id, note_path, source, text, created_at FROM memories WHERE namespace = ? ORDER BY rowid ASC`
	args := []any{s.namespace}
	if notePath != "" {
		query = `SELECT id, note_path, source, text, created_at FROM memories WHERE namespace = ? AND note_path = ? ORDER BY rowid ASC`
		args = append(args, notePath)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("memory: list memories: %w", err)
	}
	return scanMemories(rows)
}

func scanMemories(rows *sql.Rows) ([]notes.MemorySnippet, error) {
	defer rows.Close()

	memories := []notes.MemorySnippet{}
	for rows.Next() {
		var id, notePath, source, text, createdAt string
		if err := rows.Scan(&id, &notePath, &source, &text, &createdAt); err != nil {
			return nil, fmt.Errorf("memory: scan memory: %w", err)
		}
		memories = append(memories, notes.MemorySnippet{
			Source: source,
			Text:   text,
			Metadata: map[string]string{
				"id":         id,
				"note_path":  notePath,
				"created_at": createdAt,
			},
		})
	}
	return memories, rows.Err()
}

// --- Notes ---

// IndexNote inserts or replaces a note and its full-text entry.
func (s *Store) IndexNote(ctx context.Context, n Note) error {
	metadata, err := json.Marshal(n.Metadata)
	if err != nil {
		return fmt.Errorf("memory: marshal note metadata: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("memory: index note: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO notes (path, title, text, metadata, modified) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(path) DO UPDATE SET title = excluded.title, text = excluded.text,
		 metadata = excluded.metadata, modified = excluded.modified`,
		n.Path, n.Title, n.Text, string(metadata), n.Modified.UTC().Format(time.RFC3339)); err != nil {
		return fmt.Errorf("memory: index note %s: %w", n.Path, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM notes_fts WHERE path = ?`, n.Path); err != nil {
		return fmt.Errorf("memory: index note %s: %w", n.Path, err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO notes_fts (path, title, text) VALUES (?, ?, ?)`, n.Path, n.Title, n.Text); err != nil {
		return fmt.Errorf("memory: index note %s: %w", n.Path, err)
	}

	return tx.Commit()
}

// RemoveNote deletes a note from the index. Missing notes are not an error.
func (s *Store) RemoveNote(ctx context.Context, path string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("memory: remove note: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM notes WHERE path = ?`, path); err != nil {
		return fmt.Errorf("memory: remove note %s: %w", path, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM notes_fts WHERE path = ?`, path); err != nil {
		return fmt.Errorf("memory: remove note %s: %w", path, err)
	}
	return tx.Commit()
}

// CountNotes returns the number of indexed notes.
func (s *Store) CountNotes(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM notes`).Scan(&count); err != nil {
		return 0, fmt.Errorf("memory: count notes: %w", err)
	}
	return count, nil
}

// Search returns the k notes that best match query. Score is the negated
// bm25 rank, so higher is better. The hit ID is the note path.
func (s *Store) Search(ctx context.Context, query string, k int) ([]notes.RetrievalHit, error) {
	hits := []notes.RetrievalHit{}
	match := matchExpression(query)
	if match == "" || k <= 0 {
		return hits, nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT n.path, n.title, n.text, n.metadata, n.modified, bm25(notes_fts) AS score
		 FROM notes_fts JOIN notes n ON n.path = notes_fts.path
		 WHERE notes_fts MATCH ? ORDER BY score LIMIT ?`, match, k)
	if err != nil {
		return nil, fmt.Errorf("memory: search: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var path, title, text, metadataJSON, modified string
		var rank float64
		if err := rows.Scan(&path, &title, &text, &metadataJSON, &modified, &rank); err != nil {
			return nil, fmt.Errorf("memory: search scan: %w", err)
		}

		metadata := map[string]string{}
		if err := json.Unmarshal([]byte(metadataJSON), &metadata); err != nil || metadata == nil {
			metadata = map[string]string{}
		}
		metadata["path"] = path
		metadata["title"] = title
		metadata["modified"] = modified

		hits = append(hits, notes.RetrievalHit{
			ID:       path,
			Score:    -rank,
			Text:     text,
			Metadata: metadata,
		})
	}
	return hits, rows.Err()
}

// matchExpression turns free text into an FTS5 query that ORs every word.
// Words are quoted so punctuation and FTS operators in the input are inert.
func matchExpression(query string) string {
	words := strings.FieldsFunc(query, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})

	seen := make(map[string]bool, len(words))
	terms := make([]string, 0, len(words))
	for _, w := range words {
		w = strings.ToLower(w)
		if seen[w] {
			continue
		}
		seen[w] = true
		terms = append(terms, strconv.Quote(w))
	}
	return strings.Join(terms, " OR ")
}
