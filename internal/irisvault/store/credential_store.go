package store

import (
	"context"
	"time"

	"github.com/BrandonDHaskell/irisvault/internal/irisvault/types"
)

type CredentialStore interface {
	CreateCredential(ctx context.Context, c types.Credential) (int64, error)
	GetCredential(ctx context.Context, id int64) (types.Credential, error)
	GetCredentialByUsername(ctx context.Context, username string) (types.Credential, error)
	ListCredentials(ctx context.Context) ([]types.Credential, error)
	CountCredentials(ctx context.Context) (int, error)

	// RecordLoginFailure stores the new failure count and, when the
	// threshold was reached, the lock expiry.
	RecordLoginFailure(ctx context.Context, id int64, failed int, lockUntil *time.Time, at time.Time) error
	// RecordLoginSuccess clears the failure state and stamps last_login_at.
	// A non-nil totpStep becomes the new replay floor.
	RecordLoginSuccess(ctx context.Context, id int64, totpStep *int64, at time.Time) error

	SetRole(ctx context.Context, id int64, role types.Role, at time.Time) error
	SetActive(ctx context.Context, id int64, active bool, at time.Time) error
	SetTOTPSecret(ctx context.Context, id int64, secret string, at time.Time) error
	ClearLock(ctx context.Context, id int64, at time.Time) error
}
