package auth

import (
	"bytes"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"latchd/internal/security"
)

// maxSecretFileSize bounds the secret file read at startup.
const maxSecretFileSize = 64 * 1024

// Secret is a fixed-secret verifier. The secret is loaded once at
// startup and is read-only for the lifetime of the process.
type Secret struct {
	secret []byte
	hashed bool
}

// LoadSecretFile reads the fixed secret from path. The file must be
// owned by the invoking user with no group/other access; anything looser
// is a fatal misconfiguration. A single trailing newline is stripped so
// files written with an editor compare equal to typed input.
//
// A secret starting with a bcrypt version prefix is treated as a hash
// and verified with bcrypt instead of byte equality.
func LoadSecretFile(path string) (*Secret, error) {
	data, err := security.ReadSecretFile(path, maxSecretFileSize)
	if err != nil {
		return nil, fmt.Errorf("secret file: %w", err)
	}

	data = bytes.TrimSuffix(data, []byte("\n"))

	return &Secret{
		secret: data,
		hashed: isBcryptHash(data),
	}, nil
}

// NewSecret builds a fixed-secret verifier from raw bytes. Used by tests
// and by callers that source the secret elsewhere.
func NewSecret(secret []byte) *Secret {
	s := make([]byte, len(secret))
	copy(s, secret)
	return &Secret{secret: s, hashed: isBcryptHash(s)}
}

// Verify reports whether candidate matches the secret. Plain secrets
// compare in constant time; hashed secrets go through bcrypt.
func (s *Secret) Verify(candidate []byte) bool {
	if s.hashed {
		return bcrypt.CompareHashAndPassword(s.secret, candidate) == nil
	}
	return security.ConstantTimeCompare(s.secret, candidate)
}

// isBcryptHash reports whether data looks like a bcrypt hash
// ($2a$, $2b$ or $2y$ prefix).
func isBcryptHash(data []byte) bool {
	if len(data) < 4 || data[0] != '$' || data[1] != '2' || data[3] != '$' {
		return false
	}
	switch data[2] {
	case 'a', 'b', 'y':
		return true
	}
	return false
}
