package api

import (
	"time"

	"github.com/BrandonDHaskell/irisvault/internal/irisvault/authn"
	"github.com/BrandonDHaskell/irisvault/internal/irisvault/rbac"
	"github.com/BrandonDHaskell/irisvault/internal/irisvault/types"
)

// ── Requests ─────────────────────────────────────────────────────────────────

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	TOTPCode string `json:"totp_code,omitempty"`
}

type EnrollRequest struct {
	Person   types.PersonAttributes `json:"person"`
	Template []byte                 `json:"template"`
	Quality  float64                `json:"quality"`
	Eye      types.Eye              `json:"eye"`
}

type OverrideRequest struct {
	EventID int64  `json:"event_id"`
	Granted bool   `json:"granted"`
	Reason  string `json:"reason"`
}

type CastVoteRequest struct {
	ElectionID string         `json:"election_id"`
	PersonID   types.PersonID `json:"person_id"`
	ChoiceID   string         `json:"choice_id"`
	Method     string         `json:"method"`
}

type VerifyReceiptRequest struct {
	Receipt  types.VoteReceipt `json:"receipt"`
	PersonID types.PersonID    `json:"person_id"`
	ChoiceID string            `json:"choice_id"`
}

type CreateCredentialRequest struct {
	Username string          `json:"username"`
	Password string          `json:"password"`
	Role     types.Role      `json:"role"`
	PersonID *types.PersonID `json:"person_id,omitempty"`
}

type RegisterModelRequest struct {
	Name     string `json:"name"`
	Version  string `json:"version"`
	Checksum string `json:"checksum,omitempty"`
}

// ── Views ────────────────────────────────────────────────────────────────────

type SessionView struct {
	CredentialID int64             `json:"credential_id"`
	Username     string            `json:"username"`
	Role         types.Role        `json:"role"`
	SessionID    string            `json:"session_id"`
	ExpiresAt    time.Time         `json:"expires_at"`
	Capabilities []rbac.Capability `json:"capabilities"`
}

func sessionView(c *authn.Claims) SessionView {
	v := SessionView{
		CredentialID: c.CredentialID,
		Username:     c.Username,
		Role:         c.Role,
		SessionID:    c.SessionID(),
		Capabilities: rbac.Capabilities(c.Role),
	}
	if c.ExpiresAt != nil {
		v.ExpiresAt = c.ExpiresAt.Time.UTC()
	}
	return v
}

// CredentialView is a credential without its password hash, salt or TOTP
// secret.
type CredentialView struct {
	ID             int64           `json:"id"`
	Username       string          `json:"username"`
	Role           types.Role      `json:"role"`
	Active         bool            `json:"active"`
	TOTPEnabled    bool            `json:"totp_enabled"`
	FailedAttempts int             `json:"failed_attempts"`
	LockUntil      *time.Time      `json:"lock_until,omitempty"`
	PersonID       *types.PersonID `json:"person_id,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	LastLoginAt    *time.Time      `json:"last_login_at,omitempty"`
}

func credentialView(c types.Credential) CredentialView {
	return CredentialView{
		ID:             c.ID,
		Username:       c.Username,
		Role:           c.Role,
		Active:         c.Active,
		TOTPEnabled:    c.HasTOTP(),
		FailedAttempts: c.FailedAttempts,
		LockUntil:      c.LockUntil,
		PersonID:       c.PersonID,
		CreatedAt:      c.CreatedAt,
		LastLoginAt:    c.LastLoginAt,
	}
}

func credentialViews(cs []types.Credential) []CredentialView {
	out := make([]CredentialView, 0, len(cs))
	for _, c := range cs {
		out = append(out, credentialView(c))
	}
	return out
}
