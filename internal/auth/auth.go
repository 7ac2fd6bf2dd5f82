// Package auth verifies unlock credentials.
//
// A Verifier answers a single question: are these candidate bytes an
// acceptable credential. Two sources exist, a fixed secret loaded from a
// file and the system authenticator reached through PAM; either one
// accepting is sufficient. With no source configured verification fails
// closed.
package auth

import "errors"

// Verification errors.
var (
	// ErrNoSource indicates that neither a secret file nor PAM is
	// configured. A verifier is never built in this state.
	ErrNoSource = errors.New("auth: no authentication source configured")
)

// Verifier checks a candidate credential.
type Verifier interface {
	// Verify reports whether candidate is an acceptable credential.
	// It must never default-accept.
	Verify(candidate []byte) bool
}

// Multi accepts when any of its sources accepts. An empty Multi fails
// closed.
type Multi []Verifier

// Verify tries each source in order and stops at the first acceptance.
func (m Multi) Verify(candidate []byte) bool {
	for _, v := range m {
		if v.Verify(candidate) {
			return true
		}
	}
	return false
}

// New builds a verifier from the configured sources. It returns
// ErrNoSource when called with none, so misconfiguration is caught at
// startup rather than discovered at the lock screen.
func New(sources ...Verifier) (Verifier, error) {
	var m Multi
	for _, s := range sources {
		if s != nil {
			m = append(m, s)
		}
	}
	if len(m) == 0 {
		return nil, ErrNoSource
	}
	return m, nil
}
