package migrations

import (
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

func TestRunMigrations(t *testing.T) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	if err := checkFTS5(db); err != nil {
		t.Fatalf("driver check failed; build tests with -tags sqlite_fts5: %v", err)
	}
	if err := RunMigrations(db, zerolog.Nop()); err != nil {
		t.Fatalf("RunMigrations: %v", err)
	}

	// Applying again is a no-op, not an error.
	if err := RunMigrations(db, zerolog.Nop()); err != nil {
		t.Fatalf("RunMigrations (second run): %v", err)
	}

	for _, table := range []string{"messages", "tool_executions", "notes", "notes_fts"} {
		var name string
		err := db.QueryRow(
			"SELECT name FROM sqlite_master WHERE name = ?", table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %s missing after migrations: %v", table, err)
		}
	}
}
