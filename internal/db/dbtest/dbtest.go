// Package dbtest opens isolated in-memory databases for tests.
package dbtest

import (
	"context"
	"database/sql"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/BrandonDHaskell/irisvault/internal/db"
)

// Open returns an in-memory SQLite connection with the same PRAGMAs and
// schema as production, plus a Worker over it. Both are closed when the test
// finishes.
func Open(t testing.TB) (*sql.DB, *db.Worker) {
	t.Helper()

	conn := OpenRaw(t)
	if _, err := db.Migrate(context.Background(), conn); err != nil {
		t.Fatalf("dbtest.Open: migrate: %v", err)
	}

	w := db.NewWorker(conn)
	t.Cleanup(w.Close)
	return conn, w
}

// OpenRaw is Open without migrations or a Worker.
func OpenRaw(t testing.TB) *sql.DB {
	t.Helper()

	// Each test gets its own named database; subtest names contain slashes.
	name := "test_" + strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	conn, err := db.Open(context.Background(), db.Config{
		Path:        name,
		Memory:      true,
		SkipMigrate: true,
		Logger:      zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("dbtest.OpenRaw: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}
