package common

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Sha256Hex hashes parts joined by NUL and returns lowercase hex. The
// separator keeps ("ab", "c") and ("a", "bc") apart.
func Sha256Hex(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "\x00")))
	return hex.EncodeToString(sum[:])
}
