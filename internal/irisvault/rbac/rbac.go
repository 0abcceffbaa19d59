// Package rbac maps roles to the capabilities they hold. Each role lists its
// capabilities explicitly rather than inheriting them, but the sets nest:
// admin holds everything operator holds, and operator everything viewer holds.
package rbac

import "github.com/BrandonDHaskell/irisvault/internal/irisvault/types"

type Capability string

const (
	Enroll            Capability = "enroll"
	DeactivatePerson  Capability = "deactivate_person"
	ViewPersons       Capability = "view_persons"
	RecordAccess      Capability = "record_access"
	OverrideAccess    Capability = "override_access"
	ViewAccessLog     Capability = "view_access_log"
	CastVote          Capability = "cast_vote"
	Tally             Capability = "tally"
	ViewAudit         Capability = "view_audit"
	VerifyChain       Capability = "verify_chain"
	CorrectAudit      Capability = "correct_audit"
	ManageCredentials Capability = "manage_credentials"
	ManageSettings    Capability = "manage_settings"
	ReadSettings      Capability = "read_settings"
	ManageModels      Capability = "manage_models"
)

var grants = map[types.Role]map[Capability]bool{
	types.RoleAdmin: set(
		Enroll, DeactivatePerson, ViewPersons,
		RecordAccess, OverrideAccess, ViewAccessLog,
		CastVote, Tally,
		ViewAudit, VerifyChain, CorrectAudit,
		ManageCredentials, ManageSettings, ReadSettings, ManageModels,
	),
	types.RoleOperator: set(
		Enroll, ViewPersons,
		RecordAccess, ViewAccessLog,
		CastVote, Tally,
		ViewAudit, VerifyChain,
		ReadSettings,
	),
	types.RoleViewer: set(
		ViewPersons, ViewAccessLog, ViewAudit, VerifyChain, ReadSettings, Tally,
	),
}

func set(caps ...Capability) map[Capability]bool {
	m := make(map[Capability]bool, len(caps))
	for _, c := range caps {
		m[c] = true
	}
	return m
}

// Authorize is pure: it depends only on the role and the capability.
func Authorize(role types.Role, c Capability) bool {
	return grants[role][c]
}

// Capabilities lists what role holds, in no particular order.
func Capabilities(role types.Role) []Capability {
	out := make([]Capability, 0, len(grants[role]))
	for c := range grants[role] {
		out = append(out, c)
	}
	return out
}
