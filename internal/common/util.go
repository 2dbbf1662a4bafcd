package common

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// RandomToken returns n bytes from crypto/rand as lowercase hex, so the
// result is 2n characters long. Refresh tokens use n = 32.
func RandomToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("random token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// Wipe zeroes b in place. Derived keys and terminal input pass through it
// once they are no longer needed.
func Wipe(b []byte) {
	clear(b)
}
