package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BrandonDHaskell/irisvault/internal/irisvault/authn"
	"github.com/BrandonDHaskell/irisvault/internal/irisvault/rbac"
	"github.com/BrandonDHaskell/irisvault/internal/irisvault/service"
	"github.com/BrandonDHaskell/irisvault/internal/irisvault/types"
	"github.com/BrandonDHaskell/irisvault/internal/irisvault/vaulterr"
)

const password = "s3cret-passphrase"

func (f *fixture) credential(t *testing.T, username string, role types.Role) types.Credential {
	t.Helper()
	c, err := f.v.Auth.CreateCredential(context.Background(), "admin", service.NewCredential{
		Username: username,
		Password: password,
		Role:     role,
	})
	require.NoError(t, err)
	return c
}

func (f *fixture) actions(t *testing.T, from int) []string {
	t.Helper()
	entries, err := f.v.Audit.List(context.Background(), types.AuditRange{From: int64(from) + 1})
	require.NoError(t, err)
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Action)
	}
	return out
}

func TestAuthenticateSuccess(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.credential(t, "op1", types.RoleOperator)
	before := f.auditLen(t)

	res, err := f.v.Auth.Authenticate(ctx, "op1", password, "")
	require.NoError(t, err)
	assert.Equal(t, types.RoleOperator, res.Role)
	assert.Equal(t, c.ID, res.CredentialID)
	assert.True(t, res.ExpiresAt.Equal(t0.Add(time.Hour)), "expires at %s", res.ExpiresAt)
	assert.NotEmpty(t, res.SessionID)
	assert.Equal(t, []string{types.ActionLoginSucceeded}, f.actions(t, before))

	claims, err := f.v.Auth.Verify(ctx, res.Token)
	require.NoError(t, err)
	assert.True(t, f.v.Auth.Authorize(claims, rbac.Enroll))
	assert.False(t, f.v.Auth.Authorize(claims, rbac.ManageCredentials))

	stored, err := f.v.Auth.Credential(ctx, c.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.LastLoginAt)
	assert.Equal(t, t0, *stored.LastLoginAt)
	assert.NotContains(t, string(stored.PasswordHash), password)
}

func TestAuthenticateUnknownUserMatchesBadPassword(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.credential(t, "op1", types.RoleOperator)
	before := f.auditLen(t)

	_, errUnknown := f.v.Auth.Authenticate(ctx, "ghost", password, "")
	_, errBad := f.v.Auth.Authenticate(ctx, "op1", "wrong-password", "")

	require.ErrorIs(t, errUnknown, vaulterr.Unauthenticated)
	require.ErrorIs(t, errBad, vaulterr.Unauthenticated)
	assert.Equal(t, errUnknown.Error(), errBad.Error())

	// Only the real account's failure is chained.
	assert.Equal(t, []string{types.ActionLoginFailed}, f.actions(t, before))
}

func TestLockoutWindow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.v.Settings.Set(ctx, "admin", service.KeyLockoutThreshold, "3")
	require.NoError(t, err)
	_, err = f.v.Settings.Set(ctx, "admin", service.KeyLockoutDuration, "600")
	require.NoError(t, err)
	c := f.credential(t, "op1", types.RoleOperator)
	before := f.auditLen(t)

	for i := 0; i < 3; i++ {
		_, err := f.v.Auth.Authenticate(ctx, "op1", "wrong-password", "")
		require.ErrorIs(t, err, vaulterr.Unauthenticated)
	}
	assert.Equal(t, []string{
		types.ActionLoginFailed, types.ActionLoginFailed, types.ActionLoginFailed, types.ActionAccountLocked,
	}, f.actions(t, before))

	stored, err := f.v.Auth.Credential(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, stored.FailedAttempts)
	require.NotNil(t, stored.LockUntil)
	assert.Equal(t, t0.Add(10*time.Minute), *stored.LockUntil)

	// The correct password does not help while locked.
	f.clk.Advance(9 * time.Minute)
	before = f.auditLen(t)
	_, err = f.v.Auth.Authenticate(ctx, "op1", password, "")
	require.ErrorIs(t, err, vaulterr.AccountLocked)
	assert.Equal(t, []string{types.ActionLoginFailed}, f.actions(t, before))

	// Counted, but the lock does not move.
	stored, err = f.v.Auth.Credential(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, stored.FailedAttempts)
	require.NotNil(t, stored.LockUntil)
	assert.Equal(t, t0.Add(10*time.Minute), *stored.LockUntil)

	f.clk.Advance(2 * time.Minute)
	_, err = f.v.Auth.Authenticate(ctx, "op1", password, "")
	require.NoError(t, err)

	stored, err = f.v.Auth.Credential(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, stored.FailedAttempts)
	assert.Nil(t, stored.LockUntil)

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.AuthOutcomes.WithLabelValues("locked")))
	assert.Equal(t, 3.0, testutil.ToFloat64(f.metrics.AuthOutcomes.WithLabelValues("failed")))
}

func TestUnlockClearsLock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.v.Settings.Set(ctx, "admin", service.KeyLockoutThreshold, "1")
	require.NoError(t, err)
	c := f.credential(t, "op1", types.RoleOperator)

	_, err = f.v.Auth.Authenticate(ctx, "op1", "wrong-password", "")
	require.ErrorIs(t, err, vaulterr.Unauthenticated)
	_, err = f.v.Auth.Authenticate(ctx, "op1", password, "")
	require.ErrorIs(t, err, vaulterr.AccountLocked)

	require.NoError(t, f.v.Auth.Unlock(ctx, "admin", c.ID))
	_, err = f.v.Auth.Authenticate(ctx, "op1", password, "")
	require.NoError(t, err)
}

func TestConcurrentFailuresAllCounted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.v.Settings.Set(ctx, "admin", service.KeyLockoutThreshold, "100")
	require.NoError(t, err)
	c := f.credential(t, "op1", types.RoleOperator)

	const n = 8
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.v.Auth.Authenticate(ctx, "op1", "wrong-password", "")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.ErrorIs(t, err, vaulterr.Unauthenticated)
	}

	stored, err := f.v.Auth.Credential(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, n, stored.FailedAttempts)
	assert.Nil(t, stored.LockUntil)
}

func TestSlowLoginDoesNotBlockWrites(t *testing.T) {
	if testing.Short() {
		t.Skip("derives a deliberately expensive key")
	}
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.v.Settings.Set(ctx, "admin", service.KeyPBKDF2Iterations, "2000000")
	require.NoError(t, err)
	f.credential(t, "op1", types.RoleOperator)

	loginDone := make(chan struct{})
	go func() {
		defer close(loginDone)
		_, _ = f.v.Auth.Authenticate(ctx, "op1", "wrong-password", "")
	}()
	time.Sleep(20 * time.Millisecond)

	d, err := f.v.Biometrics.RecordMatchAttempt(ctx, "gate", types.MatchAttempt{Confidence: 0.2})
	require.NoError(t, err)
	assert.False(t, d.Granted)
	select {
	case <-loginDone:
		t.Fatal("login finished before the match attempt was recorded")
	default:
	}
	<-loginDone
}

func TestTOTPRequiredAndReplayRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.credential(t, "op1", types.RoleOperator)

	key, err := f.v.Auth.EnableTOTP(ctx, "admin", c.ID)
	require.NoError(t, err)
	assert.Contains(t, key.URL, "irisvault-test")

	_, err = f.v.Auth.Authenticate(ctx, "op1", password, "")
	require.ErrorIs(t, err, vaulterr.Unauthenticated)

	code, err := authn.TOTPCode(key.Secret, f.clk.Now())
	require.NoError(t, err)
	_, err = f.v.Auth.Authenticate(ctx, "op1", password, code)
	require.NoError(t, err)

	_, err = f.v.Auth.Authenticate(ctx, "op1", password, code)
	require.ErrorIs(t, err, vaulterr.Unauthenticated, "replayed code")

	f.clk.Advance(30 * time.Second)
	next, err := authn.TOTPCode(key.Secret, f.clk.Now())
	require.NoError(t, err)
	_, err = f.v.Auth.Authenticate(ctx, "op1", password, next)
	require.NoError(t, err)
}

func TestVerifyRejectsStaleTokens(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.credential(t, "op1", types.RoleOperator)

	res, err := f.v.Auth.Authenticate(ctx, "op1", password, "")
	require.NoError(t, err)

	require.NoError(t, f.v.Auth.SetRole(ctx, "admin", c.ID, types.RoleViewer))
	_, err = f.v.Auth.Verify(ctx, res.Token)
	require.ErrorIs(t, err, vaulterr.Unauthenticated)

	res, err = f.v.Auth.Authenticate(ctx, "op1", password, "")
	require.NoError(t, err)
	require.NoError(t, f.v.Auth.DisableCredential(ctx, "admin", c.ID))
	_, err = f.v.Auth.Verify(ctx, res.Token)
	require.ErrorIs(t, err, vaulterr.Unauthenticated)

	_, err = f.v.Auth.Authenticate(ctx, "op1", password, "")
	require.ErrorIs(t, err, vaulterr.Unauthenticated)

	f.clk.Advance(2 * time.Hour)
	_, err = f.v.Auth.Verify(ctx, res.Token)
	require.ErrorIs(t, err, vaulterr.Unauthenticated)
}

func TestCreateCredentialValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.credential(t, "op1", types.RoleOperator)

	_, err := f.v.Auth.CreateCredential(ctx, "admin", service.NewCredential{Username: "op1", Password: password, Role: types.RoleViewer})
	assert.ErrorIs(t, err, vaulterr.UniquenessViolation)
	_, err = f.v.Auth.CreateCredential(ctx, "admin", service.NewCredential{Username: "op2", Password: "short", Role: types.RoleViewer})
	assert.ErrorIs(t, err, vaulterr.Invalid)
	_, err = f.v.Auth.CreateCredential(ctx, "admin", service.NewCredential{Username: "op2", Password: password, Role: "root"})
	assert.ErrorIs(t, err, vaulterr.Invalid)
}

func TestBootstrapOnlyOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	admin, err := f.v.Auth.Bootstrap(ctx, "root", password)
	require.NoError(t, err)
	assert.Equal(t, types.RoleAdmin, admin.Role)

	_, err = f.v.Auth.Bootstrap(ctx, "root2", password)
	assert.ErrorIs(t, err, vaulterr.Invalid)

	tail, ok, err := f.v.Audit.Tail(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, types.ActionCredentialCreated, tail.Action)
	assert.Equal(t, types.ActorSystem, tail.Actor)
}
