package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/BrandonDHaskell/irisvault/internal/irisvault/vaulterr"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Step identifies one applied schema step.
type Step struct {
	Version int
	Name    string
}

// columnAdd is an additive step: add a nullable column if it is absent.
// Databases patched by hand before the step existed are recorded without
// running the ALTER.
type columnAdd struct {
	table  string
	column string
	ddl    string
}

type migration struct {
	version int
	name    string
	sql     string
	column  *columnAdd
}

// columnMigrations are versioned after the embedded SQL files they extend.
var columnMigrations = []migration{
	{version: 3, name: "persons_last_access_at", column: &columnAdd{
		table: "persons", column: "last_access_at_ms", ddl: "INTEGER",
	}},
	{version: 4, name: "credentials_totp_last_step", column: &columnAdd{
		table: "credentials", column: "totp_last_step", ddl: "INTEGER",
	}},
	{version: 5, name: "access_events_override_of", column: &columnAdd{
		table: "access_events", column: "override_of", ddl: "INTEGER REFERENCES access_events(id)",
	}},
}

// Migrate applies every missing step in version order and returns the steps
// it applied. Each step commits with its schema_migrations row, so calling
// Migrate again is a no-op.
func Migrate(ctx context.Context, db *sql.DB) ([]Step, error) {
	const op = "db.Migrate"

	// Tracking table lives outside the versioned steps so it always exists.
	if _, err := db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS schema_migrations (
  version       INTEGER PRIMARY KEY,
  name          TEXT NOT NULL,
  applied_at_ms INTEGER NOT NULL
);`); err != nil {
		return nil, vaulterr.E(vaulterr.SchemaMigration, op, fmt.Errorf("ensure schema_migrations: %w", err))
	}

	ms, err := loadMigrations()
	if err != nil {
		return nil, vaulterr.E(vaulterr.SchemaMigration, op, err)
	}

	var applied []Step
	for _, m := range ms {
		done, err := isApplied(ctx, db, m.version)
		if err != nil {
			return applied, vaulterr.E(vaulterr.SchemaMigration, op, err)
		}
		if done {
			continue
		}
		if err := apply(ctx, db, m); err != nil {
			return applied, vaulterr.E(vaulterr.SchemaMigration, op, err)
		}
		applied = append(applied, Step{Version: m.version, Name: m.name})
	}

	return applied, nil
}

// CurrentVersion returns the highest applied schema version, 0 for a fresh file.
func CurrentVersion(ctx context.Context, db *sql.DB) (int, error) {
	var exists int
	if err := db.QueryRowContext(ctx, `
SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'schema_migrations';
`).Scan(&exists); err != nil {
		return 0, fmt.Errorf("CurrentVersion lookup: %w", err)
	}
	if exists == 0 {
		return 0, nil
	}
	var v int
	if err := db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations;`).Scan(&v); err != nil {
		return 0, fmt.Errorf("CurrentVersion: %w", err)
	}
	return v, nil
}

// Pending lists the steps Migrate would apply without applying them.
func Pending(ctx context.Context, db *sql.DB) ([]Step, error) {
	ms, err := loadMigrations()
	if err != nil {
		return nil, err
	}
	var out []Step
	for _, m := range ms {
		done, err := isApplied(ctx, db, m.version)
		if err != nil {
			// No tracking table yet: everything is pending.
			if strings.Contains(err.Error(), "no such table") {
				done = false
			} else {
				return nil, err
			}
		}
		if !done {
			out = append(out, Step{Version: m.version, Name: m.name})
		}
	}
	return out, nil
}

func loadMigrations() ([]migration, error) {
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}

	var ms []migration
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		v, err := parseVersion(e.Name()) // e.g. 0001_init.sql -> 1
		if err != nil {
			return nil, err
		}
		b, err := migrationsFS.ReadFile("migrations/" + e.Name())
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", e.Name(), err)
		}
		ms = append(ms, migration{
			version: v,
			name:    strings.TrimSuffix(e.Name(), ".sql"),
			sql:     string(b),
		})
	}
	ms = append(ms, columnMigrations...)

	sort.Slice(ms, func(i, j int) bool { return ms[i].version < ms[j].version })
	for i := 1; i < len(ms); i++ {
		if ms[i].version == ms[i-1].version {
			return nil, fmt.Errorf("duplicate migration version %d (%s, %s)", ms[i].version, ms[i-1].name, ms[i].name)
		}
	}
	return ms, nil
}

func apply(ctx context.Context, db *sql.DB, m migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	if m.column != nil {
		has, err := hasColumn(ctx, tx, m.column.table, m.column.column)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("apply migration %s: %w", m.name, err)
		}
		if !has {
			stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s;", m.column.table, m.column.column, m.column.ddl)
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("apply migration %s: %w", m.name, err)
			}
		}
	} else if _, err := tx.ExecContext(ctx, m.sql); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("apply migration %s: %w", m.name, err)
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO schema_migrations(version, name, applied_at_ms) VALUES(?, ?, ?);",
		m.version, m.name, time.Now().UTC().UnixMilli(),
	); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("record migration %s: %w", m.name, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration %s: %w", m.name, err)
	}
	return nil
}

func hasColumn(ctx context.Context, tx *sql.Tx, table, column string) (bool, error) {
	rows, err := tx.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s);", table))
	if err != nil {
		return false, fmt.Errorf("table_info %s: %w", table, err)
	}
	defer rows.Close()

	found := false
	for rows.Next() {
		var (
			cid     int
			name    string
			ctype   string
			notNull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notNull, &dflt, &pk); err != nil {
			return false, fmt.Errorf("scan table_info %s: %w", table, err)
		}
		if name == column {
			found = true
		}
	}
	if err := rows.Err(); err != nil {
		return false, fmt.Errorf("iterate table_info %s: %w", table, err)
	}
	return found, nil
}

func isApplied(ctx context.Context, db *sql.DB, version int) (bool, error) {
	var v int
	err := db.QueryRowContext(ctx, "SELECT version FROM schema_migrations WHERE version = ?;", version).Scan(&v)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check migration %d: %w", version, err)
	}
	return true, nil
}

func parseVersion(filename string) (int, error) {
	parts := strings.SplitN(filename, "_", 2)
	if len(parts) < 2 {
		return 0, fmt.Errorf("bad migration filename: %s", filename)
	}
	s := strings.TrimLeft(parts[0], "0")
	if s == "" {
		s = "0"
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("bad migration version %s: %w", filename, err)
	}
	return v, nil
}
