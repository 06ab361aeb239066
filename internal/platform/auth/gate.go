package auth

import (
	"errors"
)

var (
	// ErrAuthentication is returned for a credential mismatch. The session
	// is left unchanged and the caller may retry.
	ErrAuthentication = errors.New("invalid email or password")
	// ErrUnauthenticated is returned when a protected operation is invoked
	// on a session that has not passed the gate.
	ErrUnauthenticated = errors.New("session is not authenticated")
)

// Gate is the single access check in front of the ABG workflow.
type Gate struct {
	verifier Verifier
}

func NewGate(v Verifier) *Gate {
	return &Gate{verifier: v}
}

// Check reports whether the pair is the configured credential.
func (g *Gate) Check(email, password string) bool {
	return g.verifier.Verify(email, password)
}

// Login flips sess to authenticated when the pair checks out. No attempt
// limit applies.
func (g *Gate) Login(sess *Session, email, password string) error {
	if sess == nil {
		return ErrUnauthenticated
	}
	if !g.Check(email, password) {
		return ErrAuthentication
	}
	sess.Authenticated = true
	sess.Subject = email
	return nil
}
