// Package store declares the persistence interfaces the services depend on.
//
// Write methods join the transaction carried by ctx when there is one, so a
// service can compose several of them into one atomic unit. Lookups that
// find nothing return an error of kind vaulterr.NotFound.
package store

import (
	"context"
	"time"

	"github.com/BrandonDHaskell/irisvault/internal/irisvault/types"
)

type PersonStore interface {
	CreatePerson(ctx context.Context, p types.Person) (types.PersonID, error)
	GetPerson(ctx context.Context, id types.PersonID) (types.Person, error)
	ListPersons(ctx context.Context, activeOnly bool) ([]types.Person, error)
	DeactivatePerson(ctx context.Context, id types.PersonID, at time.Time) error
	TouchLastAccess(ctx context.Context, id types.PersonID, at time.Time) error
}

// TemplateStore has no update or delete; templates are replaced by adding.
type TemplateStore interface {
	AddTemplate(ctx context.Context, t types.Template) (int64, error)
	ListTemplates(ctx context.Context, personID types.PersonID) ([]types.Template, error)
}

// Set bundles one implementation of every store.
type Set struct {
	Persons     PersonStore
	Templates   TemplateStore
	Credentials CredentialStore
	Access      AccessEventStore
	Audit       AuditStore
	Votes       VoteStore
	Settings    SettingsStore
	Models      ModelStore
}
