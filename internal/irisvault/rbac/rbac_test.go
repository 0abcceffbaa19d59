package rbac_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/BrandonDHaskell/irisvault/internal/irisvault/rbac"
	"github.com/BrandonDHaskell/irisvault/internal/irisvault/types"
)

func TestAuthorize(t *testing.T) {
	cases := []struct {
		role types.Role
		cap  rbac.Capability
		want bool
	}{
		{types.RoleAdmin, rbac.ManageCredentials, true},
		{types.RoleAdmin, rbac.OverrideAccess, true},
		{types.RoleOperator, rbac.Enroll, true},
		{types.RoleOperator, rbac.CastVote, true},
		{types.RoleOperator, rbac.OverrideAccess, false},
		{types.RoleOperator, rbac.ManageSettings, false},
		{types.RoleOperator, rbac.Tally, true},
		{types.RoleOperator, rbac.VerifyChain, true},
		{types.RoleOperator, rbac.CorrectAudit, false},
		{types.RoleViewer, rbac.ViewAudit, true},
		{types.RoleViewer, rbac.CorrectAudit, false},
		{types.RoleAdmin, rbac.CorrectAudit, true},
		{types.RoleViewer, rbac.Enroll, false},
		{types.RoleViewer, rbac.CastVote, false},
		{types.Role("root"), rbac.ViewAudit, false},
		{"", rbac.ReadSettings, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, rbac.Authorize(tc.role, tc.cap), "%s/%s", tc.role, tc.cap)
	}
}

func TestRolesNest(t *testing.T) {
	chain := []types.Role{types.RoleViewer, types.RoleOperator, types.RoleAdmin}
	for i := 0; i+1 < len(chain); i++ {
		lower, upper := chain[i], chain[i+1]
		for _, c := range rbac.Capabilities(lower) {
			assert.True(t, rbac.Authorize(upper, c), "%s lacks %s held by %s", upper, c, lower)
		}
		assert.Greater(t, len(rbac.Capabilities(upper)), len(rbac.Capabilities(lower)),
			"%s should hold strictly more than %s", upper, lower)
	}
}

func TestCapabilities(t *testing.T) {
	assert.ElementsMatch(t,
		[]rbac.Capability{rbac.ViewPersons, rbac.ViewAccessLog, rbac.ViewAudit, rbac.VerifyChain, rbac.ReadSettings, rbac.Tally},
		rbac.Capabilities(types.RoleViewer))
	assert.Empty(t, rbac.Capabilities("nobody"))
}
