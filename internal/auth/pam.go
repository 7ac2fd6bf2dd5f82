//go:build cgo

package auth

import (
	"errors"
	"fmt"
	"os/user"

	"github.com/msteinert/pam/v2"
)

// pamService is the PAM service name latchd authenticates against.
const pamService = "latchd"

// PAM delegates verification to the system authenticator. It is
// stateless; each Verify runs a full PAM conversation for the current
// user with the candidate bytes as the response to the password prompt.
type PAM struct {
	username string
}

// NewPAM builds a PAM verifier for the effective user.
func NewPAM() (*PAM, error) {
	u, err := user.Current()
	if err != nil {
		return nil, fmt.Errorf("pam: resolve current user: %w", err)
	}
	return &PAM{username: u.Username}, nil
}

// Verify runs a PAM authentication conversation. Any PAM error, from a
// rejected credential to a broken module stack, is a refusal.
func (p *PAM) Verify(candidate []byte) bool {
	password := string(candidate)

	tx, err := pam.StartFunc(pamService, p.username, func(style pam.Style, _ string) (string, error) {
		switch style {
		case pam.PromptEchoOff, pam.PromptEchoOn:
			return password, nil
		case pam.ErrorMsg, pam.TextInfo:
			return "", nil
		}
		return "", errors.New("unsupported conversation style")
	})
	if err != nil {
		return false
	}
	defer tx.End()

	if err := tx.Authenticate(0); err != nil {
		return false
	}

	// A valid credential for an expired or locked account does not
	// unlock the screen of a session the account can no longer hold.
	return tx.AcctMgmt(0) == nil
}
