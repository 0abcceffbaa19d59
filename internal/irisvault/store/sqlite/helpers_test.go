package sqlite_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/BrandonDHaskell/irisvault/internal/db/dbtest"
	"github.com/BrandonDHaskell/irisvault/internal/irisvault/types"
	sqlitestore "github.com/BrandonDHaskell/irisvault/internal/irisvault/store/sqlite"
)

var t0 = time.Date(2026, 2, 15, 12, 0, 0, 0, time.UTC)

// seedPerson inserts an active person and returns its id.
func seedPerson(t *testing.T, conn *sql.DB, name string) types.PersonID {
	t.Helper()

	res, err := conn.ExecContext(context.Background(), `
INSERT INTO persons(name, active, enrolled_at_ms, updated_at_ms) VALUES (?, 1, ?, ?);
`, name, t0.UnixMilli(), t0.UnixMilli())
	if err != nil {
		t.Fatalf("seedPerson(%q): %v", name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		t.Fatalf("seedPerson(%q): last id: %v", name, err)
	}
	return types.PersonID(id)
}

func countRows(t *testing.T, conn *sql.DB, table string) int {
	t.Helper()

	var n int
	if err := conn.QueryRowContext(context.Background(), `SELECT COUNT(*) FROM `+table).Scan(&n); err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return n
}

type stores struct {
	conn        *sql.DB
	persons     *sqlitestore.PersonStore
	templates   *sqlitestore.TemplateStore
	credentials *sqlitestore.CredentialStore
	access      *sqlitestore.AccessEventStore
	audit       *sqlitestore.AuditStore
	votes       *sqlitestore.VoteStore
	settings    *sqlitestore.SettingsStore
	models      *sqlitestore.ModelStore
}

func openStores(t *testing.T) stores {
	t.Helper()

	conn, w := dbtest.Open(t)
	return stores{
		conn:        conn,
		persons:     sqlitestore.NewPersonStore(conn, w),
		templates:   sqlitestore.NewTemplateStore(conn, w),
		credentials: sqlitestore.NewCredentialStore(conn, w),
		access:      sqlitestore.NewAccessEventStore(conn, w),
		audit:       sqlitestore.NewAuditStore(conn, w),
		votes:       sqlitestore.NewVoteStore(conn, w),
		settings:    sqlitestore.NewSettingsStore(conn, w),
		models:      sqlitestore.NewModelStore(conn, w),
	}
}
