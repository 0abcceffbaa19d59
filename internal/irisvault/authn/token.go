package authn

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/BrandonDHaskell/irisvault/internal/irisvault/types"
)

const tokenIssuer = "irisvault"

// Claims is the capability a successful login hands out.
type Claims struct {
	CredentialID int64      `json:"cid"`
	Username     string     `json:"usr"`
	Role         types.Role `json:"role"`
	jwt.RegisteredClaims
}

// SessionID is the token's unique id.
func (c *Claims) SessionID() string { return c.ID }

// TokenManager signs and verifies HS256 capability tokens.
type TokenManager struct {
	key []byte
	now func() time.Time
}

var ErrInvalidToken = errors.New("invalid capability token")

func NewTokenManager(key []byte, now func() time.Time) (*TokenManager, error) {
	if len(key) < 32 {
		return nil, fmt.Errorf("token signing key must be at least 32 bytes, got %d", len(key))
	}
	if now == nil {
		now = time.Now
	}
	k := make([]byte, len(key))
	copy(k, key)
	return &TokenManager{key: k, now: now}, nil
}

// Issue signs a token for the credential valid for ttl.
func (m *TokenManager) Issue(cred types.Credential, ttl time.Duration) (string, *Claims, error) {
	now := m.now().UTC()
	claims := &Claims{
		CredentialID: cred.ID,
		Username:     cred.Username,
		Role:         cred.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    tokenIssuer,
			Subject:   strconv.FormatInt(cred.ID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.key)
	if err != nil {
		return "", nil, fmt.Errorf("sign token: %w", err)
	}
	return raw, claims, nil
}

// Parse verifies signature, algorithm, issuer and expiry.
func (m *TokenManager) Parse(raw string) (*Claims, error) {
	claims := &Claims{}
	tok, err := jwt.ParseWithClaims(raw, claims,
		func(*jwt.Token) (any, error) { return m.key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !tok.Valid || claims.CredentialID <= 0 {
		return nil, ErrInvalidToken
	}
	if _, err := types.ParseRole(string(claims.Role)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return claims, nil
}
