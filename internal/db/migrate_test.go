package db_test

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/BrandonDHaskell/irisvault/internal/db"
	"github.com/BrandonDHaskell/irisvault/internal/db/dbtest"
)

// ═══════════════════════════════════════════════════════════════════════════
// Migrate — fresh database
// ═══════════════════════════════════════════════════════════════════════════

func TestMigrate_FreshDatabaseAppliesAllSteps(t *testing.T) {
	conn := dbtest.OpenRaw(t)
	ctx := context.Background()

	pending, err := db.Pending(ctx, conn)
	if err != nil {
		t.Fatalf("Pending: %v", err)
	}

	applied, err := db.Migrate(ctx, conn)
	if err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	if len(applied) == 0 {
		t.Fatal("expected steps to be applied on a fresh database")
	}
	if len(applied) != len(pending) {
		t.Errorf("expected %d applied steps (pending), got %d", len(pending), len(applied))
	}
	for i := 1; i < len(applied); i++ {
		if applied[i].Version <= applied[i-1].Version {
			t.Errorf("steps out of order: %v then %v", applied[i-1], applied[i])
		}
	}

	v, err := db.CurrentVersion(ctx, conn)
	if err != nil {
		t.Fatalf("CurrentVersion: %v", err)
	}
	if v != applied[len(applied)-1].Version {
		t.Errorf("expected current version %d, got %d", applied[len(applied)-1].Version, v)
	}

	for _, table := range []string{
		"persons", "templates", "credentials", "access_events",
		"audit_log", "voting_records", "system_settings", "model_versions",
	} {
		if !tableExists(t, conn, table) {
			t.Errorf("expected table %s to exist", table)
		}
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Migrate — idempotent
// ═══════════════════════════════════════════════════════════════════════════

func TestMigrate_SecondRunIsNoOp(t *testing.T) {
	conn := dbtest.OpenRaw(t)
	ctx := context.Background()

	if _, err := db.Migrate(ctx, conn); err != nil {
		t.Fatalf("first Migrate: %v", err)
	}

	nowMs := time.Now().UTC().UnixMilli()
	if _, err := conn.ExecContext(ctx, `
INSERT INTO persons(name, active, enrolled_at_ms, updated_at_ms) VALUES ('Ada', 1, ?, ?);`, nowMs, nowMs); err != nil {
		t.Fatalf("seed person: %v", err)
	}

	applied, err := db.Migrate(ctx, conn)
	if err != nil {
		t.Fatalf("second Migrate: %v", err)
	}
	if len(applied) != 0 {
		t.Errorf("expected no steps on second run, got %v", applied)
	}

	var n int
	if err := conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM persons`).Scan(&n); err != nil {
		t.Fatalf("count persons: %v", err)
	}
	if n != 1 {
		t.Errorf("expected existing data to survive, got %d persons", n)
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Migrate — legacy schema patched by hand
// ═══════════════════════════════════════════════════════════════════════════

func TestMigrate_ColumnAlreadyPresentIsRecordedNotReapplied(t *testing.T) {
	conn := dbtest.OpenRaw(t)
	ctx := context.Background()

	// Simulate an older install that added the column with a one-off script
	// before the versioned step existed.
	if _, err := conn.ExecContext(ctx, `
CREATE TABLE persons (
  id                INTEGER PRIMARY KEY AUTOINCREMENT,
  name              TEXT NOT NULL,
  email             TEXT,
  phone             TEXT,
  active            INTEGER NOT NULL DEFAULT 1,
  enrolled_at_ms    INTEGER NOT NULL,
  updated_at_ms     INTEGER NOT NULL,
  deactivated_at_ms INTEGER,
  last_access_at_ms INTEGER
);`); err != nil {
		t.Fatalf("create legacy persons: %v", err)
	}

	applied, err := db.Migrate(ctx, conn)
	if err != nil {
		t.Fatalf("Migrate: %v", err)
	}

	found := false
	for _, st := range applied {
		if st.Name == "persons_last_access_at" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected persons_last_access_at to be recorded, got %v", applied)
	}
	if !hasColumn(t, conn, "persons", "last_access_at_ms") {
		t.Error("expected persons.last_access_at_ms to exist")
	}
	if !hasColumn(t, conn, "access_events", "override_of") {
		t.Error("expected access_events.override_of to exist")
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Append-only triggers
// ═══════════════════════════════════════════════════════════════════════════

func TestMigrate_AuditLogRejectsUpdateAndDelete(t *testing.T) {
	conn := dbtest.OpenRaw(t)
	ctx := context.Background()
	if _, err := db.Migrate(ctx, conn); err != nil {
		t.Fatalf("Migrate: %v", err)
	}

	if _, err := conn.ExecContext(ctx, `
INSERT INTO audit_log(ts_ms, actor, action, resource, detail, prev_hash, record_hash)
VALUES (1, 'system', 'test', 'r', '', 'p', 'h');`); err != nil {
		t.Fatalf("insert: %v", err)
	}

	if _, err := conn.ExecContext(ctx, `UPDATE audit_log SET actor = 'mallory'`); err == nil {
		t.Error("expected UPDATE on audit_log to be rejected")
	}
	if _, err := conn.ExecContext(ctx, `DELETE FROM audit_log`); err == nil {
		t.Error("expected DELETE on audit_log to be rejected")
	}
}

// ── Test helpers ─────────────────────────────────────────────────────────────

func tableExists(t *testing.T, conn *sql.DB, name string) bool {
	t.Helper()
	var n int
	if err := conn.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`, name).Scan(&n); err != nil {
		t.Fatalf("sqlite_master %s: %v", name, err)
	}
	return n == 1
}

func hasColumn(t *testing.T, conn *sql.DB, tableName, colName string) bool {
	t.Helper()
	rows, err := conn.Query(fmt.Sprintf("PRAGMA table_info(%s)", tableName))
	if err != nil {
		t.Fatalf("table_info %s: %v", tableName, err)
	}
	defer rows.Close()

	for rows.Next() {
		var cid int
		var name, ctype string
		var notNull int
		var dflt sql.NullString
		var pk int
		if err := rows.Scan(&cid, &name, &ctype, &notNull, &dflt, &pk); err != nil {
			t.Fatalf("scan table_info %s: %v", tableName, err)
		}
		if name == colName {
			return true
		}
	}
	if err := rows.Err(); err != nil {
		t.Fatalf("iterate table_info %s: %v", tableName, err)
	}
	return false
}
