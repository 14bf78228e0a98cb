// Package storetest opens migrated throwaway databases for tests.
package storetest

import (
	"path/filepath"
	"testing"

	"github.com/matheus3301/chatd/internal/store"
)

// New opens a migrated database in a temp dir, closed on cleanup.
func New(t testing.TB) *store.DB {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// Count returns the number of rows in table.
func Count(t testing.TB, db *store.DB, table string) int {
	t.Helper()
	var n int
	if err := db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&n); err != nil {
		t.Fatal(err)
	}
	return n
}
