// Package api is the in-process request/response boundary used by the GUI.
// Every operation takes the caller's raw capability token, resolves it once
// and checks the one capability the operation needs before any domain work.
package api

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/BrandonDHaskell/irisvault/internal/irisvault/authn"
	"github.com/BrandonDHaskell/irisvault/internal/irisvault/rbac"
	"github.com/BrandonDHaskell/irisvault/internal/irisvault/service"
	"github.com/BrandonDHaskell/irisvault/internal/irisvault/vaulterr"
)

type Dependencies struct {
	Logger zerolog.Logger
	Vault  *service.Vault
}

type API struct {
	logger zerolog.Logger
	vault  *service.Vault
}

func New(d Dependencies) *API {
	return &API{
		logger: d.Logger.With().Str("component", "api").Logger(),
		vault:  d.Vault,
	}
}

// Login exchanges a username, password and optional TOTP code for a token.
func (a *API) Login(ctx context.Context, req LoginRequest) (res service.AuthResult, err error) {
	done := a.observe("Login", req.Username)
	defer func() { done(err) }()

	return a.vault.Auth.Authenticate(ctx, req.Username, req.Password, req.TOTPCode)
}

// Session returns the claims behind token and the capabilities its role
// holds, so the GUI can decide what to show.
func (a *API) Session(ctx context.Context, token string) (SessionView, error) {
	claims, err := a.vault.Auth.Verify(ctx, token)
	if err != nil {
		return SessionView{}, err
	}
	return sessionView(claims), nil
}

// begin resolves token and checks c. The returned func logs the outcome and
// must be called with the operation's final error.
func (a *API) begin(ctx context.Context, op, token string, c rbac.Capability) (*authn.Claims, func(error), error) {
	claims, err := a.vault.Auth.Verify(ctx, token)
	if err != nil {
		a.logger.Warn().Str("op", op).Err(err).Msg("rejected token")
		return nil, nil, err
	}
	if !a.vault.Auth.Authorize(claims, c) {
		a.logger.Warn().Str("op", op).Str("actor", claims.Username).Str("role", string(claims.Role)).
			Str("capability", string(c)).Msg("capability denied")
		return nil, nil, vaulterr.Newf(vaulterr.Unauthorized, "api."+op,
			"role %s lacks %s", claims.Role, c)
	}
	return claims, a.observe(op, claims.Username), nil
}

func (a *API) observe(op, actor string) func(error) {
	start := time.Now()
	return func(err error) {
		ev := a.logger.Debug()
		if err != nil {
			ev = a.logger.Info().Str("kind", vaulterr.KindOf(err).String()).Err(err)
		}
		ev.Str("op", op).Str("actor", actor).Dur("dur", time.Since(start)).Msg("api call")
	}
}
