// Package authn holds the credential primitives: salted PBKDF2 password
// hashes, RFC 6238 one-time codes and signed capability tokens.
package authn

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

const (
	SaltSize = 16
	KeySize  = 32

	// MinIterations guards against a settings row that would make hashes cheap.
	MinIterations = 10000
)

// PasswordHash is what gets persisted for a password.
type PasswordHash struct {
	Hash       []byte
	Salt       []byte
	Iterations int
}

// HashPassword derives a new salted hash.
func HashPassword(password string, iterations int) (PasswordHash, error) {
	if iterations < MinIterations {
		return PasswordHash{}, fmt.Errorf("pbkdf2 iterations %d below minimum %d", iterations, MinIterations)
	}
	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return PasswordHash{}, fmt.Errorf("password salt: %w", err)
	}
	return PasswordHash{
		Hash:       derive(password, salt, iterations),
		Salt:       salt,
		Iterations: iterations,
	}, nil
}

// VerifyPassword compares in constant time.
func VerifyPassword(password string, h PasswordHash) bool {
	if len(h.Hash) == 0 || len(h.Salt) == 0 || h.Iterations <= 0 {
		return false
	}
	got := derive(password, h.Salt, h.Iterations)
	return subtle.ConstantTimeCompare(got, h.Hash) == 1
}

var dummySalt = make([]byte, SaltSize)

// BurnPassword performs the same derivation work as a real verification so
// an unknown username costs as much as a wrong password.
func BurnPassword(password string, iterations int) {
	if iterations < MinIterations {
		iterations = MinIterations
	}
	_ = derive(password, dummySalt, iterations)
}

func derive(password string, salt []byte, iterations int) []byte {
	return pbkdf2.Key([]byte(password), salt, iterations, KeySize, sha256.New)
}
