package types

import (
	"strings"
	"time"

	"github.com/BrandonDHaskell/irisvault/internal/irisvault/vaulterr"
)

type Role string

const (
	RoleAdmin    Role = "admin"
	RoleOperator Role = "operator"
	RoleViewer   Role = "viewer"
)

func ParseRole(s string) (Role, error) {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case RoleAdmin, RoleOperator, RoleViewer:
		return r, nil
	}
	return "", vaulterr.Newf(vaulterr.Invalid, "types.ParseRole", "unknown role %q", s)
}

// Credential is a login identity. Only the PBKDF2 output and its salt are
// stored, never the password.
type Credential struct {
	ID             int64
	Username       string
	PasswordHash   []byte
	Salt           []byte
	Iterations     int
	TOTPSecret     string
	TOTPLastStep   *int64
	Role           Role
	FailedAttempts int
	LockUntil      *time.Time
	PersonID       *PersonID
	Active         bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
	LastLoginAt    *time.Time
}

// LockedAt reports whether the credential refuses authentication at now.
func (c Credential) LockedAt(now time.Time) bool {
	return c.LockUntil != nil && now.Before(*c.LockUntil)
}

func (c Credential) HasTOTP() bool { return c.TOTPSecret != "" }
