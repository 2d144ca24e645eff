// Package notestore maintains a local SQLite index of notes the chat tools
// search against. The host application syncs notes into the index; the
// pipeline only reads from it.
package notestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
	"unicode/utf8"

	sq "github.com/Masterminds/squirrel"
	"github.com/rs/zerolog"
)

// Attribute is one label or relation attached to a note.
type Attribute struct {
	Name  string `json:"name"`
	Value string `json:"value,omitempty"`
}

// Note is one indexed note.
type Note struct {
	ID         string
	ParentID   string
	Title      string
	Type       string
	Content    string
	Attributes []Attribute
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Result is one search or listing hit.
type Result struct {
	ID      string
	Title   string
	Preview string
	Score   float64
}

const previewChars = 200

// Store indexes notes in SQLite with an FTS5 companion table for full-text
// search.
type Store struct {
	db     *sql.DB
	logger zerolog.Logger
}

// NewStore creates a Store over an open database handle.
func NewStore(db *sql.DB, logger zerolog.Logger) *Store {
	return &Store{
		db:     db,
		logger: logger.With().Str("component", "notestore").Logger(),
	}
}

// UpsertNote inserts or replaces a note in the index. The FTS table follows
// via triggers.
func (s *Store) UpsertNote(ctx context.Context, note Note) error {
	if note.ID == "" {
		return fmt.Errorf("note id is required")
	}

	attrsJSON, err := json.Marshal(note.Attributes)
	if err != nil {
		return fmt.Errorf("marshal attributes: %w", err)
	}

	now := time.Now().Unix()
	createdAt := now
	if !note.CreatedAt.IsZero() {
		createdAt = note.CreatedAt.Unix()
	}

	// Delete-then-insert instead of INSERT OR REPLACE: REPLACE skips the
	// delete triggers that keep the FTS index in sync unless recursive
	// triggers are enabled.
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	deleteStr, deleteArgs, err := sq.Delete("notes").
		Where(sq.Eq{"note_id": note.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete: %w", err)
	}
	if _, err := tx.ExecContext(ctx, deleteStr, deleteArgs...); err != nil {
		return fmt.Errorf("delete existing note: %w", err)
	}

	queryStr, args, err := sq.Insert("notes").
		Columns("note_id", "parent_id", "title", "type", "content", "attributes", "created_at", "updated_at").
		Values(note.ID, nullable(note.ParentID), note.Title, note.Type, note.Content, string(attrsJSON), createdAt, now).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := tx.ExecContext(ctx, queryStr, args...); err != nil {
		return fmt.Errorf("insert note: %w", err)
	}

	return tx.Commit()
}

// DeleteNote removes a note from the index.
func (s *Store) DeleteNote(ctx context.Context, noteID string) error {
	queryStr, args, err := sq.Delete("notes").
		Where(sq.Eq{"note_id": noteID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}

	_, err = s.db.ExecContext(ctx, queryStr, args...)
	return err
}

// ReadNote fetches one note by id.
func (s *Store) ReadNote(ctx context.Context, noteID string) (*Note, error) {
	query := sq.Select(noteColumns()...).
		From("notes").
		Where(sq.Eq{"note_id": noteID})

	queryStr, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, queryStr, args...)
	if err != nil {
		return nil, fmt.Errorf("query note: %w", err)
	}
	defer rows.Close() //nolint:errcheck // no remedy for rows close error

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("note %q not found", noteID)
	}
	return loadNoteFromRow(rows)
}

// ListNotes lists child notes under a parent, or top-level notes when
// parentID is empty.
func (s *Store) ListNotes(ctx context.Context, parentID string, limit int) ([]Result, error) {
	if limit <= 0 {
		limit = 20
	}

	query := sq.Select(noteColumns()...).
		From("notes").
		OrderBy("title ASC").
		Limit(uint64(limit))
	if parentID == "" {
		query = query.Where(sq.Eq{"parent_id": nil})
	} else {
		query = query.Where(sq.Eq{"parent_id": parentID})
	}

	queryStr, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, queryStr, args...)
	if err != nil {
		return nil, fmt.Errorf("query notes: %w", err)
	}
	defer rows.Close() //nolint:errcheck // no remedy for rows close error

	var results []Result
	for rows.Next() {
		note, err := loadNoteFromRow(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, Result{
			ID:      note.ID,
			Title:   note.Title,
			Preview: preview(note.Content),
		})
	}
	return results, rows.Err()
}

func noteColumns() []string {
	return []string{
		"note_id", "parent_id", "title", "type", "content",
		"attributes", "created_at", "updated_at",
	}
}

func loadNoteFromRow(rows *sql.Rows) (*Note, error) {
	var (
		noteID, title, typ, content string
		parentID, attrsJSON         sql.NullString
		createdAt, updatedAt        int64
	)
	if err := rows.Scan(&noteID, &parentID, &title, &typ, &content,
		&attrsJSON, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	return noteFromColumns(noteID, parentID, title, typ, content, attrsJSON, createdAt, updatedAt), nil
}

func noteFromColumns(noteID string, parentID sql.NullString, title, typ, content string, attrsJSON sql.NullString, createdAt, updatedAt int64) *Note {
	var attrs []Attribute
	if attrsJSON.Valid && attrsJSON.String != "" {
		if err := json.Unmarshal([]byte(attrsJSON.String), &attrs); err != nil {
			attrs = nil
		}
	}

	return &Note{
		ID:         noteID,
		ParentID:   parentID.String,
		Title:      title,
		Type:       typ,
		Content:    content,
		Attributes: attrs,
		CreatedAt:  time.Unix(createdAt, 0),
		UpdatedAt:  time.Unix(updatedAt, 0),
	}
}

func preview(content string) string {
	if len(content) <= previewChars {
		return content
	}
	cut := previewChars
	for cut > 0 && !utf8.RuneStart(content[cut]) {
		cut--
	}
	return content[:cut] + "..."
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
