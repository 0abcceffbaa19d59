package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

type Config struct {
	Path string // e.g. "./data/irisvault.db"
	Env  string // "dev" | "prod"

	// BusyTimeout is how long a statement waits on a locked database;
	// 5s when zero.
	BusyTimeout time.Duration

	// Memory opens a private in-memory database named after Path.
	Memory bool

	// SkipMigrate leaves the schema untouched; the migrate tool uses it to
	// report the steps it applies itself.
	SkipMigrate bool

	Logger zerolog.Logger
}

// DSN returns the modernc.org/sqlite DSN with the per-connection PRAGMAs the
// store relies on. Foreign keys must be on for Template/AccessEvent/Vote
// references to be enforced.
func DSN(path string, busy time.Duration) string {
	return fmt.Sprintf(
		"file:%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(%d)",
		path, busy.Milliseconds(),
	)
}

// MemoryDSN is DSN for a named shared-cache in-memory database. The shared
// cache keeps the database alive while the pool holds its connection.
func MemoryDSN(name string) string {
	return fmt.Sprintf(
		"file:%s?mode=memory&cache=shared&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)",
		name,
	)
}

func Open(ctx context.Context, cfg Config) (*sql.DB, error) {
	if cfg.Path == "" {
		cfg.Path = "./data/irisvault.db"
	}
	if cfg.Env == "" {
		cfg.Env = "dev"
	}
	if cfg.BusyTimeout <= 0 {
		cfg.BusyTimeout = 5 * time.Second
	}

	dsn := MemoryDSN(cfg.Path)
	if !cfg.Memory {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
			return nil, fmt.Errorf("mkdir db dir: %w", err)
		}
		dsn = DSN(cfg.Path, cfg.BusyTimeout)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql.Open: %w", err)
	}

	// Single connection: SQLite has one writer anyway, and the Worker owns
	// every write transaction.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}

	cfg.Logger.Debug().Str("env", cfg.Env).Str("path", cfg.Path).Bool("memory", cfg.Memory).Msg("database opened")

	if cfg.SkipMigrate {
		return db, nil
	}

	applied, err := Migrate(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	for _, st := range applied {
		cfg.Logger.Info().Int("version", st.Version).Str("name", st.Name).Msg("schema step applied")
	}

	return db, nil
}
