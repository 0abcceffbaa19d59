package sqlite

import (
	"database/sql"

	dbpkg "github.com/BrandonDHaskell/irisvault/internal/db"
	"github.com/BrandonDHaskell/irisvault/internal/irisvault/store"
)

// NewStores wires every SQLite store over one connection and writer.
func NewStores(db *sql.DB, writer *dbpkg.Worker) store.Set {
	return store.Set{
		Persons:     NewPersonStore(db, writer),
		Templates:   NewTemplateStore(db, writer),
		Credentials: NewCredentialStore(db, writer),
		Access:      NewAccessEventStore(db, writer),
		Audit:       NewAuditStore(db, writer),
		Votes:       NewVoteStore(db, writer),
		Settings:    NewSettingsStore(db, writer),
		Models:      NewModelStore(db, writer),
	}
}
