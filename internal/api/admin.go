package api

import (
	"context"

	"github.com/BrandonDHaskell/irisvault/internal/irisvault/authn"
	"github.com/BrandonDHaskell/irisvault/internal/irisvault/rbac"
	"github.com/BrandonDHaskell/irisvault/internal/irisvault/service"
	"github.com/BrandonDHaskell/irisvault/internal/irisvault/types"
)

// ── Credentials ──────────────────────────────────────────────────────────────

func (a *API) CreateCredential(ctx context.Context, token string, req CreateCredentialRequest) (_ CredentialView, err error) {
	claims, done, err := a.begin(ctx, "CreateCredential", token, rbac.ManageCredentials)
	if err != nil {
		return CredentialView{}, err
	}
	defer func() { done(err) }()

	c, err := a.vault.Auth.CreateCredential(ctx, claims.Username, service.NewCredential{
		Username: req.Username,
		Password: req.Password,
		Role:     req.Role,
		PersonID: req.PersonID,
	})
	if err != nil {
		return CredentialView{}, err
	}
	return credentialView(c), nil
}

func (a *API) ListCredentials(ctx context.Context, token string) (_ []CredentialView, err error) {
	_, done, err := a.begin(ctx, "ListCredentials", token, rbac.ManageCredentials)
	if err != nil {
		return nil, err
	}
	defer func() { done(err) }()

	cs, err := a.vault.Auth.Credentials(ctx)
	if err != nil {
		return nil, err
	}
	return credentialViews(cs), nil
}

func (a *API) SetRole(ctx context.Context, token string, id int64, role types.Role) (err error) {
	claims, done, err := a.begin(ctx, "SetRole", token, rbac.ManageCredentials)
	if err != nil {
		return err
	}
	defer func() { done(err) }()

	return a.vault.Auth.SetRole(ctx, claims.Username, id, role)
}

func (a *API) DisableCredential(ctx context.Context, token string, id int64) (err error) {
	claims, done, err := a.begin(ctx, "DisableCredential", token, rbac.ManageCredentials)
	if err != nil {
		return err
	}
	defer func() { done(err) }()

	return a.vault.Auth.DisableCredential(ctx, claims.Username, id)
}

func (a *API) Unlock(ctx context.Context, token string, id int64) (err error) {
	claims, done, err := a.begin(ctx, "Unlock", token, rbac.ManageCredentials)
	if err != nil {
		return err
	}
	defer func() { done(err) }()

	return a.vault.Auth.Unlock(ctx, claims.Username, id)
}

// EnableTOTP returns the new secret and otpauth URL. They are not stored
// anywhere the caller can read them again.
func (a *API) EnableTOTP(ctx context.Context, token string, id int64) (_ authn.TOTPKey, err error) {
	claims, done, err := a.begin(ctx, "EnableTOTP", token, rbac.ManageCredentials)
	if err != nil {
		return authn.TOTPKey{}, err
	}
	defer func() { done(err) }()

	return a.vault.Auth.EnableTOTP(ctx, claims.Username, id)
}

// ── Settings ─────────────────────────────────────────────────────────────────

// Settings returns the current version of every known key.
func (a *API) Settings(ctx context.Context, token string) (_ []types.Setting, err error) {
	_, done, err := a.begin(ctx, "Settings", token, rbac.ReadSettings)
	if err != nil {
		return nil, err
	}
	defer func() { done(err) }()

	keys := service.KnownSettings()
	out := make([]types.Setting, 0, len(keys))
	for _, k := range keys {
		s, err := a.vault.Settings.Get(ctx, k)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func (a *API) SettingHistory(ctx context.Context, token, key string) (_ []types.Setting, err error) {
	_, done, err := a.begin(ctx, "SettingHistory", token, rbac.ReadSettings)
	if err != nil {
		return nil, err
	}
	defer func() { done(err) }()

	return a.vault.Settings.History(ctx, key)
}

func (a *API) SetSetting(ctx context.Context, token, key, value string) (_ types.Setting, err error) {
	claims, done, err := a.begin(ctx, "SetSetting", token, rbac.ManageSettings)
	if err != nil {
		return types.Setting{}, err
	}
	defer func() { done(err) }()

	return a.vault.Settings.Set(ctx, claims.Username, key, value)
}

// ── Models ───────────────────────────────────────────────────────────────────

func (a *API) RegisterModel(ctx context.Context, token string, req RegisterModelRequest) (_ types.ModelVersion, err error) {
	claims, done, err := a.begin(ctx, "RegisterModel", token, rbac.ManageModels)
	if err != nil {
		return types.ModelVersion{}, err
	}
	defer func() { done(err) }()

	return a.vault.Models.Register(ctx, claims.Username, req.Name, req.Version, req.Checksum)
}

func (a *API) ActivateModel(ctx context.Context, token string, id int64) (err error) {
	claims, done, err := a.begin(ctx, "ActivateModel", token, rbac.ManageModels)
	if err != nil {
		return err
	}
	defer func() { done(err) }()

	return a.vault.Models.Activate(ctx, claims.Username, id)
}

func (a *API) ListModels(ctx context.Context, token string) (_ []types.ModelVersion, err error) {
	_, done, err := a.begin(ctx, "ListModels", token, rbac.ReadSettings)
	if err != nil {
		return nil, err
	}
	defer func() { done(err) }()

	return a.vault.Models.List(ctx)
}
