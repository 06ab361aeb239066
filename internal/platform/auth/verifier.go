package auth

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// Verifier decides whether a credential pair is acceptable.
type Verifier interface {
	Verify(id, secret string) bool
}

// VerifierFunc is a function adapter for Verifier.
type VerifierFunc func(id, secret string) bool

func (f VerifierFunc) Verify(id, secret string) bool {
	return f(id, secret)
}

// StaticVerifier accepts exactly one plaintext pair. Both fields must match
// byte for byte.
type StaticVerifier struct {
	ID     string
	Secret string
}

func (v StaticVerifier) Verify(id, secret string) bool {
	return id == v.ID && secret == v.Secret
}

// BcryptVerifier accepts one id whose secret is stored as a bcrypt hash.
type BcryptVerifier struct {
	id   string
	hash []byte
}

// NewBcryptVerifier checks that hash is a usable bcrypt hash.
func NewBcryptVerifier(id, hash string) (*BcryptVerifier, error) {
	if _, err := bcrypt.Cost([]byte(hash)); err != nil {
		return nil, fmt.Errorf("parse bcrypt hash: %w", err)
	}
	return &BcryptVerifier{id: id, hash: []byte(hash)}, nil
}

func (v *BcryptVerifier) Verify(id, secret string) bool {
	if id != v.id {
		return false
	}
	return bcrypt.CompareHashAndPassword(v.hash, []byte(secret)) == nil
}

// HashSecret returns a bcrypt hash suitable for AUTH_PASSWORD_HASH.
func HashSecret(secret string, cost int) (string, error) {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), cost)
	if err != nil {
		return "", fmt.Errorf("hash secret: %w", err)
	}
	return string(hash), nil
}
