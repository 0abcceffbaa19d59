package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BrandonDHaskell/irisvault/internal/irisvault/authn"
	"github.com/BrandonDHaskell/irisvault/internal/irisvault/rbac"
	"github.com/BrandonDHaskell/irisvault/internal/irisvault/types"
	"github.com/BrandonDHaskell/irisvault/internal/irisvault/vaulterr"
)

const minPasswordLen = 8

// Reasons recorded in login_failed details.
const (
	failBadPassword = "bad_password"
	failBadTOTP     = "bad_totp"
	failLocked      = "locked"
	failDisabled    = "disabled"
)

// AuthResult is returned on a successful login.
type AuthResult struct {
	Token        string     `json:"token"`
	Role         types.Role `json:"role"`
	CredentialID int64      `json:"credential_id"`
	SessionID    string     `json:"session_id"`
	ExpiresAt    time.Time  `json:"expires_at"`
}

type NewCredential struct {
	Username string
	Password string
	Role     types.Role
	PersonID *types.PersonID
}

// AuthService manages credentials, lockout and capability tokens.
type AuthService struct {
	*env
	audit    *AuditLedger
	settings *SettingsRegistry
	tokens   *authn.TokenManager
	issuer   string
}

// Authenticate checks username, password and, when enrolled, a TOTP code.
// An unknown username and a wrong password are indistinguishable to the
// caller, and the failure bookkeeping commits even though the call fails.
//
// Key derivation runs before the write transaction so it never holds the
// Worker; the credential is re-read inside the transaction and counters are
// applied to that fresh copy.
func (s *AuthService) Authenticate(ctx context.Context, username, password, totpCode string) (AuthResult, error) {
	const op = "service.AuthService.Authenticate"
	username = strings.TrimSpace(username)

	res, authErr, err := s.authenticate(ctx, op, username, password, totpCode)
	if err != nil {
		return AuthResult{}, storageErr(op, err)
	}
	if authErr != nil {
		switch vaulterr.KindOf(authErr) {
		case vaulterr.AccountLocked:
			s.metrics.IncrementAuth("locked")
		default:
			s.metrics.IncrementAuth("failed")
		}
		return AuthResult{}, authErr
	}
	s.metrics.IncrementAuth("succeeded")
	s.log.Info().Str("username", username).Str("role", string(res.Role)).Msg("login succeeded")
	return res, nil
}

// authenticate returns the caller-facing failure in authErr and storage
// failures in err.
func (s *AuthService) authenticate(ctx context.Context, op, username, password, totpCode string) (res AuthResult, authErr, err error) {
	invalid := vaulterr.Newf(vaulterr.Unauthenticated, op, "invalid username or password")

	cred, err := s.st.Credentials.GetCredentialByUsername(ctx, username)
	if errors.Is(err, vaulterr.NotFound) {
		iters, err := s.settings.Int(ctx, KeyPBKDF2Iterations)
		if err != nil {
			return AuthResult{}, nil, err
		}
		authn.BurnPassword(password, iters)
		s.log.Warn().Str("username", username).Msg("login for unknown username")
		return AuthResult{}, invalid, nil
	}
	if err != nil {
		return AuthResult{}, nil, err
	}

	// checkedAt decides whether the password was verified or burned, so the
	// lock test inside the transaction uses it too.
	checkedAt := s.now()
	passwordOK := false
	if cred.Active && !cred.LockedAt(checkedAt) {
		passwordOK = authn.VerifyPassword(password, authn.PasswordHash{
			Hash:       cred.PasswordHash,
			Salt:       cred.Salt,
			Iterations: cred.Iterations,
		})
	} else {
		authn.BurnPassword(password, cred.Iterations)
	}

	err = s.writer.Do(ctx, func(ctx context.Context, _ *sql.Tx) error {
		res, authErr = AuthResult{}, nil

		cred, err := s.st.Credentials.GetCredential(ctx, cred.ID)
		if err != nil {
			return err
		}
		now := s.now()
		resource := credentialResource(cred.ID)

		if !cred.Active {
			authErr = invalid
			_, err := s.audit.record(ctx, cred.Username, types.ActionLoginFailed, resource,
				map[string]any{"reason": failDisabled})
			return err
		}

		if cred.LockedAt(checkedAt) {
			authErr = vaulterr.Newf(vaulterr.AccountLocked, op, "locked until %s", cred.LockUntil.Format(time.RFC3339))
			return s.recordFailure(ctx, cred, failLocked, checkedAt)
		}
		if cred.LockedAt(now) {
			authErr = vaulterr.Newf(vaulterr.AccountLocked, op, "locked until %s", cred.LockUntil.Format(time.RFC3339))
			return s.recordFailure(ctx, cred, failLocked, now)
		}

		ok, reason := passwordOK, failBadPassword
		var step *int64
		if ok && cred.HasTOTP() {
			st, matched := authn.MatchTOTP(cred.TOTPSecret, totpCode, now, cred.TOTPLastStep)
			if matched {
				step = &st
			} else {
				ok, reason = false, failBadTOTP
			}
		}

		if !ok {
			authErr = invalid
			return s.recordFailure(ctx, cred, reason, now)
		}

		if err := s.st.Credentials.RecordLoginSuccess(ctx, cred.ID, step, now); err != nil {
			return err
		}
		if _, err := s.audit.record(ctx, cred.Username, types.ActionLoginSucceeded, resource,
			map[string]any{"totp": step != nil}); err != nil {
			return err
		}

		ttl, err := s.settings.Duration(ctx, KeyTokenTTL)
		if err != nil {
			return err
		}
		raw, claims, err := s.tokens.Issue(cred, ttl)
		if err != nil {
			return err
		}
		res = AuthResult{
			Token:        raw,
			Role:         cred.Role,
			CredentialID: cred.ID,
			SessionID:    claims.SessionID(),
			ExpiresAt:    claims.ExpiresAt.Time,
		}
		return nil
	})
	return res, authErr, err
}

// recordFailure counts one failed attempt. A lock is set when the count
// reaches the threshold; an attempt against an existing lock is counted but
// leaves lock_until where it is.
func (s *AuthService) recordFailure(ctx context.Context, cred types.Credential, reason string, now time.Time) error {
	threshold, err := s.settings.Int(ctx, KeyLockoutThreshold)
	if err != nil {
		return err
	}
	lockFor, err := s.settings.Duration(ctx, KeyLockoutDuration)
	if err != nil {
		return err
	}

	failed := cred.FailedAttempts + 1
	var lockUntil *time.Time
	if failed >= threshold && !cred.LockedAt(now) {
		t := now.Add(lockFor)
		lockUntil = &t
	}

	if err := s.st.Credentials.RecordLoginFailure(ctx, cred.ID, failed, lockUntil, now); err != nil {
		return err
	}
	resource := credentialResource(cred.ID)
	if _, err := s.audit.record(ctx, cred.Username, types.ActionLoginFailed, resource,
		map[string]any{"reason": reason, "failed_attempts": failed}); err != nil {
		return err
	}
	if lockUntil == nil {
		return nil
	}
	s.log.Warn().Str("username", cred.Username).Time("lock_until", *lockUntil).Msg("account locked")
	_, err = s.audit.record(ctx, types.ActorSystem, types.ActionAccountLocked, resource,
		map[string]any{"until": lockUntil.Format(time.RFC3339), "failed_attempts": failed})
	return err
}

// Verify resolves a raw token to its claims. The credential must still be
// active and hold the role the token was issued for.
func (s *AuthService) Verify(ctx context.Context, raw string) (*authn.Claims, error) {
	const op = "service.AuthService.Verify"

	claims, err := s.tokens.Parse(raw)
	if err != nil {
		return nil, vaulterr.E(vaulterr.Unauthenticated, op, err)
	}
	cred, err := s.st.Credentials.GetCredential(ctx, claims.CredentialID)
	if errors.Is(err, vaulterr.NotFound) {
		return nil, vaulterr.Newf(vaulterr.Unauthenticated, op, "credential no longer exists")
	}
	if err != nil {
		return nil, storageErr(op, err)
	}
	if !cred.Active {
		return nil, vaulterr.Newf(vaulterr.Unauthenticated, op, "credential disabled")
	}
	if cred.Role != claims.Role {
		return nil, vaulterr.Newf(vaulterr.Unauthenticated, op, "role changed since token was issued")
	}
	return claims, nil
}

// Authorize is pure: it looks only at the role carried by the claims.
func (s *AuthService) Authorize(claims *authn.Claims, c rbac.Capability) bool {
	return claims != nil && rbac.Authorize(claims.Role, c)
}

func (s *AuthService) CreateCredential(ctx context.Context, actor string, nc NewCredential) (types.Credential, error) {
	const op = "service.AuthService.CreateCredential"

	out, err := s.prepare(ctx, op, nc)
	if err != nil {
		return types.Credential{}, storageErr(op, err)
	}
	err = s.writer.Do(ctx, func(ctx context.Context, _ *sql.Tx) error {
		return s.insert(ctx, actor, &out)
	})
	if err != nil {
		return types.Credential{}, storageErr(op, err)
	}
	s.log.Info().Str("username", out.Username).Str("role", string(out.Role)).Str("actor", actor).Msg("credential created")
	return out, nil
}

// Bootstrap creates the first admin. It refuses once any credential exists.
func (s *AuthService) Bootstrap(ctx context.Context, username, password string) (types.Credential, error) {
	const op = "service.AuthService.Bootstrap"

	out, err := s.prepare(ctx, op, NewCredential{
		Username: username,
		Password: password,
		Role:     types.RoleAdmin,
	})
	if err != nil {
		return types.Credential{}, storageErr(op, err)
	}
	err = s.writer.Do(ctx, func(ctx context.Context, _ *sql.Tx) error {
		n, err := s.st.Credentials.CountCredentials(ctx)
		if err != nil {
			return err
		}
		if n > 0 {
			return vaulterr.Newf(vaulterr.Invalid, op, "credentials already exist")
		}
		return s.insert(ctx, types.ActorSystem, &out)
	})
	if err != nil {
		return types.Credential{}, storageErr(op, err)
	}
	return out, nil
}

// prepare validates nc and derives its password hash. It runs outside the
// write transaction.
func (s *AuthService) prepare(ctx context.Context, op string, nc NewCredential) (types.Credential, error) {
	username := strings.TrimSpace(nc.Username)
	if username == "" {
		return types.Credential{}, vaulterr.Newf(vaulterr.Invalid, op, "username is required")
	}
	if len(nc.Password) < minPasswordLen {
		return types.Credential{}, vaulterr.Newf(vaulterr.Invalid, op, "password must be at least %d characters", minPasswordLen)
	}
	role, err := types.ParseRole(string(nc.Role))
	if err != nil {
		return types.Credential{}, err
	}
	iters, err := s.settings.Int(ctx, KeyPBKDF2Iterations)
	if err != nil {
		return types.Credential{}, err
	}
	h, err := authn.HashPassword(nc.Password, iters)
	if err != nil {
		return types.Credential{}, vaulterr.E(vaulterr.Invalid, op, err)
	}

	cred := types.Credential{
		Username:     username,
		PasswordHash: h.Hash,
		Salt:         h.Salt,
		Iterations:   h.Iterations,
		Role:         role,
		PersonID:     nc.PersonID,
		Active:       true,
		CreatedAt:    s.now(),
	}
	cred.UpdatedAt = cred.CreatedAt
	return cred, nil
}

func (s *AuthService) insert(ctx context.Context, actor string, cred *types.Credential) error {
	id, err := s.st.Credentials.CreateCredential(ctx, *cred)
	if err != nil {
		return err
	}
	cred.ID = id
	_, err = s.audit.record(ctx, actor, types.ActionCredentialCreated, credentialResource(cred.ID), map[string]any{
		"username": cred.Username,
		"role":     string(cred.Role),
	})
	return err
}

func (s *AuthService) SetRole(ctx context.Context, actor string, id int64, role types.Role) error {
	const op = "service.AuthService.SetRole"
	role, err := types.ParseRole(string(role))
	if err != nil {
		return err
	}
	return s.adminChange(ctx, op, actor, id, func(ctx context.Context, cred types.Credential) (string, map[string]any, error) {
		if err := s.st.Credentials.SetRole(ctx, id, role, s.now()); err != nil {
			return "", nil, err
		}
		return types.ActionRoleChanged, map[string]any{"from": string(cred.Role), "to": string(role)}, nil
	})
}

func (s *AuthService) DisableCredential(ctx context.Context, actor string, id int64) error {
	const op = "service.AuthService.DisableCredential"
	return s.adminChange(ctx, op, actor, id, func(ctx context.Context, cred types.Credential) (string, map[string]any, error) {
		if err := s.st.Credentials.SetActive(ctx, id, false, s.now()); err != nil {
			return "", nil, err
		}
		return types.ActionCredentialDisabled, map[string]any{"username": cred.Username}, nil
	})
}

// Unlock clears a lockout and the failure counter.
func (s *AuthService) Unlock(ctx context.Context, actor string, id int64) error {
	const op = "service.AuthService.Unlock"
	return s.adminChange(ctx, op, actor, id, func(ctx context.Context, cred types.Credential) (string, map[string]any, error) {
		if err := s.st.Credentials.ClearLock(ctx, id, s.now()); err != nil {
			return "", nil, err
		}
		return types.ActionAccountUnlocked, map[string]any{"failed_attempts": cred.FailedAttempts}, nil
	})
}

// EnableTOTP generates a new secret for the credential. The secret and its
// otpauth URL are returned once and must be shown to the user.
func (s *AuthService) EnableTOTP(ctx context.Context, actor string, id int64) (authn.TOTPKey, error) {
	const op = "service.AuthService.EnableTOTP"
	var key authn.TOTPKey
	err := s.adminChange(ctx, op, actor, id, func(ctx context.Context, cred types.Credential) (string, map[string]any, error) {
		var err error
		key, err = authn.GenerateTOTP(s.issuer, cred.Username)
		if err != nil {
			return "", nil, err
		}
		if err := s.st.Credentials.SetTOTPSecret(ctx, id, key.Secret, s.now()); err != nil {
			return "", nil, err
		}
		return types.ActionTOTPEnabled, map[string]any{"username": cred.Username}, nil
	})
	if err != nil {
		return authn.TOTPKey{}, err
	}
	return key, nil
}

type credentialChange func(ctx context.Context, cred types.Credential) (action string, fields map[string]any, err error)

func (s *AuthService) adminChange(ctx context.Context, op, actor string, id int64, change credentialChange) error {
	err := s.writer.Do(ctx, func(ctx context.Context, _ *sql.Tx) error {
		cred, err := s.st.Credentials.GetCredential(ctx, id)
		if err != nil {
			return err
		}
		action, fields, err := change(ctx, cred)
		if err != nil {
			return err
		}
		_, err = s.audit.record(ctx, actor, action, credentialResource(id), fields)
		return err
	})
	if err != nil {
		return storageErr(op, err)
	}
	s.log.Info().Int64("credential_id", id).Str("actor", actor).Msg("credential updated")
	return nil
}

func (s *AuthService) Credential(ctx context.Context, id int64) (types.Credential, error) {
	c, err := s.st.Credentials.GetCredential(ctx, id)
	return c, storageErr("service.AuthService.Credential", err)
}

func (s *AuthService) Credentials(ctx context.Context) ([]types.Credential, error) {
	out, err := s.st.Credentials.ListCredentials(ctx)
	return out, storageErr("service.AuthService.Credentials", err)
}

func credentialResource(id int64) string { return fmt.Sprintf("credential:%d", id) }
