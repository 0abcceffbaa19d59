// Package service implements the vault's domain operations. Every state
// change runs inside one write transaction from the db Worker and appends
// its audit entry in that same transaction.
package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	dbpkg "github.com/BrandonDHaskell/irisvault/internal/db"
	"github.com/BrandonDHaskell/irisvault/internal/irisvault/authn"
	"github.com/BrandonDHaskell/irisvault/internal/irisvault/store"
	"github.com/BrandonDHaskell/irisvault/internal/irisvault/vaulterr"
	"github.com/BrandonDHaskell/irisvault/internal/metrics"
)

type Config struct {
	// TokenKey signs capability tokens; at least 32 bytes.
	TokenKey []byte
	// TOTPIssuer labels enrollment URLs in authenticator apps.
	TOTPIssuer string
}

type Option func(*env)

func WithLogger(l zerolog.Logger) Option {
	return func(e *env) { e.log = l }
}

// WithClock replaces time.Now; tests use it to step through lockout windows.
func WithClock(now func() time.Time) Option {
	return func(e *env) { e.clock = now }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *env) { e.metrics = m }
}

// env is shared by every service of one Vault.
type env struct {
	db      *sql.DB
	writer  *dbpkg.Worker
	st      store.Set
	log     zerolog.Logger
	clock   func() time.Time
	metrics *metrics.Metrics
}

func (e *env) now() time.Time {
	return e.clock().UTC().Truncate(time.Millisecond)
}

// Vault groups the services over one database.
type Vault struct {
	Audit      *AuditLedger
	Settings   *SettingsRegistry
	Models     *ModelRegistry
	Auth       *AuthService
	Biometrics *BiometricService
	Access     *AccessLog
	Voting     *VotingService
}

func New(db *sql.DB, writer *dbpkg.Worker, st store.Set, cfg Config, opts ...Option) (*Vault, error) {
	e := &env{
		db:     db,
		writer: writer,
		st:     st,
		log:    zerolog.Nop(),
		clock:  time.Now,
	}
	for _, o := range opts {
		o(e)
	}

	tokens, err := authn.NewTokenManager(cfg.TokenKey, e.clock)
	if err != nil {
		return nil, vaulterr.E(vaulterr.Invalid, "service.New", err)
	}
	issuer := cfg.TOTPIssuer
	if issuer == "" {
		issuer = "irisvault"
	}

	audit := &AuditLedger{env: e}
	settings := &SettingsRegistry{env: e, audit: audit}
	models := &ModelRegistry{env: e, audit: audit}
	access := &AccessLog{env: e}
	return &Vault{
		Audit:    audit,
		Settings: settings,
		Models:   models,
		Auth: &AuthService{
			env:      e,
			audit:    audit,
			settings: settings,
			tokens:   tokens,
			issuer:   issuer,
		},
		Biometrics: &BiometricService{
			env:      e,
			audit:    audit,
			settings: settings,
			models:   models,
			access:   access,
		},
		Access: access,
		Voting: &VotingService{env: e, audit: audit, settings: settings},
	}, nil
}

// storageErr leaves classified errors alone and marks the rest StorageIO.
func storageErr(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case vaulterr.Has(err):
		return err
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	}
	return vaulterr.E(vaulterr.StorageIO, op, err)
}

// detail renders audit detail as JSON with sorted keys.
func detail(fields map[string]any) (string, error) {
	if len(fields) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("encode audit detail: %w", err)
	}
	return string(b), nil
}
