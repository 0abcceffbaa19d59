package api

import (
	"context"

	"github.com/BrandonDHaskell/irisvault/internal/irisvault/rbac"
	"github.com/BrandonDHaskell/irisvault/internal/irisvault/types"
)

// ── Persons ──────────────────────────────────────────────────────────────────

func (a *API) Enroll(ctx context.Context, token string, req EnrollRequest) (_ types.PersonID, err error) {
	claims, done, err := a.begin(ctx, "Enroll", token, rbac.Enroll)
	if err != nil {
		return 0, err
	}
	defer func() { done(err) }()

	return a.vault.Biometrics.Enroll(ctx, claims.Username, req.Person, req.Template, req.Quality, req.Eye)
}

func (a *API) DeactivatePerson(ctx context.Context, token string, id types.PersonID) (err error) {
	claims, done, err := a.begin(ctx, "DeactivatePerson", token, rbac.DeactivatePerson)
	if err != nil {
		return err
	}
	defer func() { done(err) }()

	return a.vault.Biometrics.Deactivate(ctx, claims.Username, id)
}

func (a *API) GetPerson(ctx context.Context, token string, id types.PersonID) (_ types.Person, err error) {
	_, done, err := a.begin(ctx, "GetPerson", token, rbac.ViewPersons)
	if err != nil {
		return types.Person{}, err
	}
	defer func() { done(err) }()

	return a.vault.Biometrics.GetPerson(ctx, id)
}

func (a *API) ListPersons(ctx context.Context, token string, activeOnly bool) (_ []types.Person, err error) {
	_, done, err := a.begin(ctx, "ListPersons", token, rbac.ViewPersons)
	if err != nil {
		return nil, err
	}
	defer func() { done(err) }()

	return a.vault.Biometrics.ListPersons(ctx, activeOnly)
}

// ListTemplates returns template metadata; blobs never leave the vault
// through JSON.
func (a *API) ListTemplates(ctx context.Context, token string, id types.PersonID) (_ []types.Template, err error) {
	_, done, err := a.begin(ctx, "ListTemplates", token, rbac.ViewPersons)
	if err != nil {
		return nil, err
	}
	defer func() { done(err) }()

	return a.vault.Biometrics.ListTemplates(ctx, id)
}

// ── Access ───────────────────────────────────────────────────────────────────

func (a *API) RecordMatch(ctx context.Context, token string, m types.MatchAttempt) (_ types.Decision, err error) {
	claims, done, err := a.begin(ctx, "RecordMatch", token, rbac.RecordAccess)
	if err != nil {
		return types.Decision{}, err
	}
	defer func() { done(err) }()

	return a.vault.Biometrics.RecordMatchAttempt(ctx, claims.Username, m)
}

func (a *API) OverrideAccess(ctx context.Context, token string, req OverrideRequest) (_ types.AccessEvent, err error) {
	claims, done, err := a.begin(ctx, "OverrideAccess", token, rbac.OverrideAccess)
	if err != nil {
		return types.AccessEvent{}, err
	}
	defer func() { done(err) }()

	return a.vault.Biometrics.OverrideAccess(ctx, claims.Username, req.EventID, req.Granted, req.Reason)
}

func (a *API) QueryAccess(ctx context.Context, token string, q types.AccessQuery) (_ []types.AccessEvent, err error) {
	_, done, err := a.begin(ctx, "QueryAccess", token, rbac.ViewAccessLog)
	if err != nil {
		return nil, err
	}
	defer func() { done(err) }()

	return a.vault.Access.Query(ctx, q)
}

func (a *API) GetAccessEvent(ctx context.Context, token string, id int64) (_ types.AccessEvent, err error) {
	_, done, err := a.begin(ctx, "GetAccessEvent", token, rbac.ViewAccessLog)
	if err != nil {
		return types.AccessEvent{}, err
	}
	defer func() { done(err) }()

	return a.vault.Access.Get(ctx, id)
}
