//go:build !cgo

package auth

import "errors"

// PAM is unavailable without cgo; the stub keeps the package buildable
// so pure-Go builds can still run with a secret file.
type PAM struct{}

// NewPAM always fails when built without cgo.
func NewPAM() (*PAM, error) {
	return nil, errors.New("auth: PAM support requires a cgo build")
}

// Verify refuses every candidate.
func (p *PAM) Verify(candidate []byte) bool {
	return false
}
