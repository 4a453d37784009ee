package yggdrasil

import (
	"crypto/sha256"
	"encoding/binary"
	"strconv"
)

const personalInviteLength = 10

// derivePersonalInvite computes an account's shareable invite code from
// values fixed at registration. The code is stable for the account's
// lifetime but changes if the password hash is rotated, which retires
// any widely shared code after a password reset.
func derivePersonalInvite(userID, registrationIP, passwordHash string) string {
	sum := sha256.Sum256([]byte(userID + "|" + registrationIP + "|" + passwordHash))
	n := binary.BigEndian.Uint64(sum[:8])

	code := strconv.FormatUint(n, 36)
	for len(code) < personalInviteLength {
		code = "0" + code
	}
	return code[:personalInviteLength]
}

// sharedInviteValid reports whether code is one of the operator
// configured shared codes.
func (e *Engine) sharedInviteValid(code string) bool {
	for _, c := range e.cfg.Registration.InviteCodes {
		if c != "" && c == code {
			return true
		}
	}
	return false
}
