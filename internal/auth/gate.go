package auth

import (
	"golang.org/x/crypto/bcrypt"
)

// Gate is the shared-secret access check shown before sign-in. It is a
// usability speed-bump, not a security boundary: the pass flag lives in
// client-local storage and a motivated user can set it by hand.
type Gate struct {
	secretHash []byte
}

// NewGate builds a Gate from the bcrypt hash of the shared secret. An empty
// hash disables the gate entirely.
func NewGate(secretHash string) *Gate {
	return &Gate{secretHash: []byte(secretHash)}
}

// Enabled reports whether a secret is configured.
func (g *Gate) Enabled() bool {
	return len(g.secretHash) > 0
}

// Check compares the user input against the configured secret.
func (g *Gate) Check(input string) bool {
	if !g.Enabled() {
		return true
	}
	return bcrypt.CompareHashAndPassword(g.secretHash, []byte(input)) == nil
}

// HashSecret derives the bcrypt hash to configure for a plain secret.
func HashSecret(secret string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	return string(hash), err
}
