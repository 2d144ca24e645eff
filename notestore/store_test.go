package notestore

import (
	"context"
	"database/sql"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/quillhq/chatd/migrations"

	_ "github.com/mattn/go-sqlite3"
)

// setupTestStore creates a Store over an in-memory database with the index
// seeded.
func setupTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := migrations.RunMigrations(db, zerolog.Nop()); err != nil {
		t.Fatalf("run migrations: %v", err)
	}

	store := NewStore(db, zerolog.Nop())
	ctx := context.Background()

	notes := []Note{
		{
			ID:      "n1",
			Title:   "Go generics",
			Type:    "text",
			Content: "Type parameters landed in Go 1.18 and changed generic programming.",
			Attributes: []Attribute{
				{Name: "topic", Value: "golang"},
			},
		},
		{
			ID:       "n2",
			ParentID: "n1",
			Title:    "Go error handling",
			Type:     "text",
			Content:  "Wrap errors with fmt.Errorf and inspect them with errors.As.",
			Attributes: []Attribute{
				{Name: "topic", Value: "golang"},
				{Name: "status", Value: "draft"},
			},
		},
		{
			ID:      "n3",
			Title:   "Grocery list",
			Type:    "text",
			Content: "Milk, eggs, coffee beans.",
		},
	}
	for _, note := range notes {
		if err := store.UpsertNote(ctx, note); err != nil {
			t.Fatalf("upsert %s: %v", note.ID, err)
		}
	}
	return store
}

func TestStore_ReadNote(t *testing.T) {
	store := setupTestStore(t)

	note, err := store.ReadNote(context.Background(), "n2")
	if err != nil {
		t.Fatalf("ReadNote: %v", err)
	}
	if note.Title != "Go error handling" || note.ParentID != "n1" {
		t.Errorf("note = %+v", note)
	}
	if len(note.Attributes) != 2 {
		t.Errorf("attributes = %+v, want 2", note.Attributes)
	}

	if _, err := store.ReadNote(context.Background(), "missing"); err == nil {
		t.Error("expected an error for an unknown note")
	}
}

func TestStore_UpsertReplacesExisting(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	if err := store.UpsertNote(ctx, Note{ID: "n3", Title: "Shopping", Type: "text", Content: "Bread."}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	note, err := store.ReadNote(ctx, "n3")
	if err != nil {
		t.Fatalf("ReadNote: %v", err)
	}
	if note.Title != "Shopping" || note.Content != "Bread." {
		t.Errorf("note = %+v, want the replacement", note)
	}
}

func TestStore_ListNotes(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	// Empty parent lists top-level notes.
	top, err := store.ListNotes(ctx, "", 10)
	if err != nil {
		t.Fatalf("ListNotes: %v", err)
	}
	if len(top) != 2 {
		t.Fatalf("got %d top-level notes, want 2", len(top))
	}
	// Ordered by title.
	if top[0].Title != "Go generics" || top[1].Title != "Grocery list" {
		t.Errorf("order = %q, %q", top[0].Title, top[1].Title)
	}

	children, err := store.ListNotes(ctx, "n1", 10)
	if err != nil {
		t.Fatalf("ListNotes children: %v", err)
	}
	if len(children) != 1 || children[0].ID != "n2" {
		t.Errorf("children = %+v", children)
	}
}

func TestStore_SearchNotes(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	results, err := store.SearchNotes(ctx, "generic programming", 10)
	if err != nil {
		t.Fatalf("SearchNotes: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	if results[0].ID != "n1" {
		t.Errorf("hit = %+v", results[0])
	}
	if results[0].Preview == "" || !strings.Contains(results[0].Preview, "Type parameters") {
		t.Errorf("preview = %q", results[0].Preview)
	}

	// Deleted notes drop out of the index through the triggers.
	if err := store.DeleteNote(ctx, "n1"); err != nil {
		t.Fatalf("DeleteNote: %v", err)
	}
	results, err = store.SearchNotes(ctx, "generic programming", 10)
	if err != nil {
		t.Fatalf("SearchNotes after delete: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("deleted note still indexed: %+v", results)
	}
}

func TestStore_SearchNotes_EmptyQuery(t *testing.T) {
	store := setupTestStore(t)

	results, err := store.SearchNotes(context.Background(), "   ", 10)
	if err != nil {
		t.Fatalf("SearchNotes: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("blank query returned %d results", len(results))
	}
}

func TestStore_KeywordSearch(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	results, err := store.KeywordSearch(ctx, "errors", 10)
	if err != nil {
		t.Fatalf("KeywordSearch: %v", err)
	}
	if len(results) != 1 || results[0].ID != "n2" {
		t.Errorf("results = %+v, want just n2", results)
	}
}

func TestStore_KeywordSearch_Attributes(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	results, err := store.KeywordSearch(ctx, "#topic=golang", 10)
	if err != nil {
		t.Fatalf("KeywordSearch: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want both golang notes", len(results))
	}

	results, err = store.KeywordSearch(ctx, "#status=draft", 10)
	if err != nil {
		t.Fatalf("KeywordSearch: %v", err)
	}
	if len(results) != 1 || results[0].ID != "n2" {
		t.Errorf("results = %+v, want just the draft", results)
	}

	// Label presence plus a keyword.
	results, err = store.KeywordSearch(ctx, "#topic errors", 10)
	if err != nil {
		t.Fatalf("KeywordSearch: %v", err)
	}
	if len(results) != 1 || results[0].ID != "n2" {
		t.Errorf("results = %+v", results)
	}

	results, err = store.KeywordSearch(ctx, "#topic=python", 10)
	if err != nil {
		t.Fatalf("KeywordSearch: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("results = %+v, want none", results)
	}
}
