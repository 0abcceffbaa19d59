package types

import "time"

// AuditEntry is one link in the hash chain.
type AuditEntry struct {
	Seq        int64     `json:"seq"`
	Timestamp  time.Time `json:"timestamp"`
	Actor      string    `json:"actor"`
	Action     string    `json:"action"`
	Resource   string    `json:"resource"`
	Detail     string    `json:"detail"`
	PrevHash   string    `json:"prev_hash"`
	RecordHash string    `json:"record_hash"`
}

// Audit actions.
const (
	ActionLoginSucceeded     = "login_succeeded"
	ActionLoginFailed        = "login_failed"
	ActionAccountLocked      = "account_locked"
	ActionAccountUnlocked    = "account_unlocked"
	ActionCredentialCreated  = "credential_created"
	ActionRoleChanged        = "role_changed"
	ActionCredentialDisabled = "credential_disabled"
	ActionTOTPEnabled        = "totp_enabled"
	ActionPersonEnrolled     = "person_enrolled"
	ActionTemplateAdded      = "template_added"
	ActionPersonDeactivated  = "person_deactivated"
	ActionAccessGranted      = "access_granted"
	ActionAccessOverride     = "access_override"
	ActionVoteCast           = "vote_cast"
	ActionSettingChanged     = "setting_changed"
	ActionModelRegistered    = "model_registered"
	ActionModelActivated     = "model_activated"
	ActionCorrection         = "correction"
)

// ActorSystem is used for actions with no authenticated caller.
const ActorSystem = "system"

// AuditRange selects entries by seq. Zero bounds are open.
type AuditRange struct {
	From int64
	To   int64
}

// Mismatch kinds reported by chain verification.
const (
	MismatchHash      = "hash_mismatch"
	MismatchLink      = "broken_link"
	MismatchTruncated = "truncated"
)

type Mismatch struct {
	Seq    int64  `json:"seq"`
	Kind   string `json:"kind"`
	Detail string `json:"detail"`
}

type VerificationResult struct {
	Checked    int        `json:"checked"`
	FirstSeq   int64      `json:"first_seq"`
	LastSeq    int64      `json:"last_seq"`
	Mismatches []Mismatch `json:"mismatches,omitempty"`
}

func (r VerificationResult) OK() bool { return len(r.Mismatches) == 0 }
