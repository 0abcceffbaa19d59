package api

import (
	"context"

	"github.com/BrandonDHaskell/irisvault/internal/irisvault/rbac"
	"github.com/BrandonDHaskell/irisvault/internal/irisvault/types"
)

func (a *API) AuditLog(ctx context.Context, token string, r types.AuditRange) (_ []types.AuditEntry, err error) {
	_, done, err := a.begin(ctx, "AuditLog", token, rbac.ViewAudit)
	if err != nil {
		return nil, err
	}
	defer func() { done(err) }()

	return a.vault.Audit.List(ctx, r)
}

// VerifyChain returns the full result alongside the IntegrityViolation
// error so the GUI can show every mismatch position.
func (a *API) VerifyChain(ctx context.Context, token string, r types.AuditRange) (_ types.VerificationResult, err error) {
	_, done, err := a.begin(ctx, "VerifyChain", token, rbac.VerifyChain)
	if err != nil {
		return types.VerificationResult{}, err
	}
	defer func() { done(err) }()

	return a.vault.Audit.VerifyChain(ctx, r)
}

func (a *API) CorrectAudit(ctx context.Context, token string, seq int64, note string) (_ types.AuditEntry, err error) {
	claims, done, err := a.begin(ctx, "CorrectAudit", token, rbac.CorrectAudit)
	if err != nil {
		return types.AuditEntry{}, err
	}
	defer func() { done(err) }()

	return a.vault.Audit.Correct(ctx, claims.Username, seq, note)
}
