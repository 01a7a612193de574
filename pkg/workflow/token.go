package workflow

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

const tokenBytes = 32

// newToken mints a callback token and returns it with its digest. Only the
// digest is ever persisted.
func newToken() (token, digest string, err error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("generate callback token: %w", err)
	}
	token = base64.RawURLEncoding.EncodeToString(buf)
	return token, Digest(token), nil
}

// Digest returns the hex blake2b-256 digest of a callback token.
func Digest(token string) string {
	sum := blake2b.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
