package authn_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BrandonDHaskell/irisvault/internal/irisvault/authn"
	"github.com/BrandonDHaskell/irisvault/internal/irisvault/types"
)

var testKey = []byte("0123456789abcdef0123456789abcdef")

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time { return c.t }

func TestTokenIssueParse(t *testing.T) {
	clk := &fakeClock{t: time.Date(2026, 2, 15, 12, 0, 0, 0, time.UTC)}
	m, err := authn.NewTokenManager(testKey, clk.Now)
	require.NoError(t, err)

	raw, issued, err := m.Issue(types.Credential{ID: 7, Username: "op", Role: types.RoleOperator}, time.Hour)
	require.NoError(t, err)
	require.NotEmpty(t, issued.SessionID())

	claims, err := m.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, int64(7), claims.CredentialID)
	assert.Equal(t, "op", claims.Username)
	assert.Equal(t, types.RoleOperator, claims.Role)
	assert.Equal(t, issued.SessionID(), claims.SessionID())
}

func TestTokenExpires(t *testing.T) {
	clk := &fakeClock{t: time.Date(2026, 2, 15, 12, 0, 0, 0, time.UTC)}
	m, err := authn.NewTokenManager(testKey, clk.Now)
	require.NoError(t, err)

	raw, _, err := m.Issue(types.Credential{ID: 1, Username: "a", Role: types.RoleAdmin}, time.Minute)
	require.NoError(t, err)

	clk.t = clk.t.Add(2 * time.Minute)
	_, err = m.Parse(raw)
	assert.ErrorIs(t, err, authn.ErrInvalidToken)
}

func TestTokenRejectsOtherKeyAndTampering(t *testing.T) {
	m, err := authn.NewTokenManager(testKey, nil)
	require.NoError(t, err)
	other, err := authn.NewTokenManager([]byte(strings.Repeat("x", 32)), nil)
	require.NoError(t, err)

	raw, _, err := other.Issue(types.Credential{ID: 1, Username: "a", Role: types.RoleAdmin}, time.Hour)
	require.NoError(t, err)
	_, err = m.Parse(raw)
	assert.ErrorIs(t, err, authn.ErrInvalidToken)

	_, err = m.Parse("not.a.token")
	assert.ErrorIs(t, err, authn.ErrInvalidToken)
}

func TestNewTokenManagerShortKey(t *testing.T) {
	_, err := authn.NewTokenManager([]byte("short"), nil)
	assert.Error(t, err)
}
