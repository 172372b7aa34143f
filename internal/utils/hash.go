package utils

import (
	"crypto/sha256"
	"encoding/hex"
)

// ChallengeHash answers the device login challenge: the lowercase hex SHA-256
// of "username:nonce:password". Inputs are used verbatim, empty ones included.
func ChallengeHash(username, nonce, password string) string {
	h := sha256.New()
	h.Write([]byte(username))
	h.Write([]byte{':'})
	h.Write([]byte(nonce))
	h.Write([]byte{':'})
	h.Write([]byte(password))
	return hex.EncodeToString(h.Sum(nil))
}
