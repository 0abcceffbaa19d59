package sqlite_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/BrandonDHaskell/irisvault/internal/irisvault/types"
	"github.com/BrandonDHaskell/irisvault/internal/irisvault/vaulterr"
)

func newCredential(username string) types.Credential {
	return types.Credential{
		Username:     username,
		PasswordHash: []byte("0123456789abcdef0123456789abcdef"),
		Salt:         []byte("saltsaltsaltsalt"),
		Iterations:   10000,
		Role:         types.RoleOperator,
		CreatedAt:    t0,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// CredentialStore — create / lookup
// ═══════════════════════════════════════════════════════════════════════════

func TestCredentialStore_CreateAndLookup(t *testing.T) {
	s := openStores(t)
	ctx := context.Background()

	id, err := s.credentials.CreateCredential(ctx, newCredential("op1"))
	if err != nil {
		t.Fatalf("CreateCredential: %v", err)
	}

	byName, err := s.credentials.GetCredentialByUsername(ctx, " op1 ")
	if err != nil {
		t.Fatalf("GetCredentialByUsername: %v", err)
	}
	byID, err := s.credentials.GetCredential(ctx, id)
	if err != nil {
		t.Fatalf("GetCredential: %v", err)
	}
	if byName.ID != id || byID.Username != "op1" {
		t.Errorf("lookup mismatch: %+v / %+v", byName, byID)
	}
	if byID.Role != types.RoleOperator || !byID.Active || byID.FailedAttempts != 0 {
		t.Errorf("unexpected defaults: %+v", byID)
	}
	if byID.HasTOTP() || byID.TOTPLastStep != nil || byID.LockUntil != nil {
		t.Errorf("expected no totp/lock, got %+v", byID)
	}

	n, err := s.credentials.CountCredentials(ctx)
	if err != nil || n != 1 {
		t.Errorf("CountCredentials = %d, %v", n, err)
	}
}

func TestCredentialStore_DuplicateUsername(t *testing.T) {
	s := openStores(t)
	ctx := context.Background()

	if _, err := s.credentials.CreateCredential(ctx, newCredential("op1")); err != nil {
		t.Fatalf("CreateCredential: %v", err)
	}
	_, err := s.credentials.CreateCredential(ctx, newCredential("op1"))
	if !errors.Is(err, vaulterr.UniquenessViolation) {
		t.Fatalf("expected UniquenessViolation, got %v", err)
	}
}

func TestCredentialStore_UnknownUsernameIsNotFound(t *testing.T) {
	s := openStores(t)

	_, err := s.credentials.GetCredentialByUsername(context.Background(), "ghost")
	if !errors.Is(err, vaulterr.NotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// CredentialStore — failure / success bookkeeping
// ═══════════════════════════════════════════════════════════════════════════

func TestCredentialStore_LoginBookkeeping(t *testing.T) {
	s := openStores(t)
	ctx := context.Background()
	id, err := s.credentials.CreateCredential(ctx, newCredential("op1"))
	if err != nil {
		t.Fatalf("CreateCredential: %v", err)
	}

	lock := t0.Add(15 * time.Minute)
	if err := s.credentials.RecordLoginFailure(ctx, id, 5, &lock, t0); err != nil {
		t.Fatalf("RecordLoginFailure: %v", err)
	}
	c, err := s.credentials.GetCredential(ctx, id)
	if err != nil {
		t.Fatalf("GetCredential: %v", err)
	}
	if c.FailedAttempts != 5 || c.LockUntil == nil || !c.LockUntil.Equal(lock) {
		t.Errorf("expected 5 failures locked until %v, got %+v", lock, c)
	}

	// A later failure without a new lock keeps the existing lock_until.
	if err := s.credentials.RecordLoginFailure(ctx, id, 6, nil, t0.Add(time.Minute)); err != nil {
		t.Fatalf("RecordLoginFailure: %v", err)
	}
	c, _ = s.credentials.GetCredential(ctx, id)
	if c.LockUntil == nil || !c.LockUntil.Equal(lock) {
		t.Errorf("expected lock to survive, got %v", c.LockUntil)
	}

	step := int64(12345)
	login := t0.Add(time.Hour)
	if err := s.credentials.RecordLoginSuccess(ctx, id, &step, login); err != nil {
		t.Fatalf("RecordLoginSuccess: %v", err)
	}
	c, _ = s.credentials.GetCredential(ctx, id)
	if c.FailedAttempts != 0 || c.LockUntil != nil {
		t.Errorf("expected cleared failure state, got %+v", c)
	}
	if c.TOTPLastStep == nil || *c.TOTPLastStep != step {
		t.Errorf("expected totp_last_step %d, got %v", step, c.TOTPLastStep)
	}
	if c.LastLoginAt == nil || !c.LastLoginAt.Equal(login) {
		t.Errorf("expected last_login_at %v, got %v", login, c.LastLoginAt)
	}
}

func TestCredentialStore_AdminUpdates(t *testing.T) {
	s := openStores(t)
	ctx := context.Background()
	id, err := s.credentials.CreateCredential(ctx, newCredential("op1"))
	if err != nil {
		t.Fatalf("CreateCredential: %v", err)
	}

	if err := s.credentials.SetRole(ctx, id, types.RoleAdmin, t0); err != nil {
		t.Fatalf("SetRole: %v", err)
	}
	if err := s.credentials.SetTOTPSecret(ctx, id, "JBSWY3DPEHPK3PXP", t0); err != nil {
		t.Fatalf("SetTOTPSecret: %v", err)
	}
	if err := s.credentials.SetActive(ctx, id, false, t0); err != nil {
		t.Fatalf("SetActive: %v", err)
	}

	c, err := s.credentials.GetCredential(ctx, id)
	if err != nil {
		t.Fatalf("GetCredential: %v", err)
	}
	if c.Role != types.RoleAdmin || !c.HasTOTP() || c.Active {
		t.Errorf("unexpected credential after updates: %+v", c)
	}

	if err := s.credentials.SetRole(ctx, 999, types.RoleViewer, t0); !errors.Is(err, vaulterr.NotFound) {
		t.Errorf("expected NotFound for missing credential, got %v", err)
	}
	if _, err := s.conn.ExecContext(ctx, `DELETE FROM credentials`); err == nil {
		t.Error("expected DELETE on credentials to be rejected")
	}
}
