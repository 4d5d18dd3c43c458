package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// nonceBytes is the number of random bytes in a CSRF nonce (16 bytes = 32 hex chars).
const nonceBytes = 16

// GenerateNonce creates a random hex CSRF nonce.
func GenerateNonce() (string, error) {
	b := make([]byte, nonceBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// TokenFingerprint returns a short SHA-256 prefix of a credential, safe to log.
func TokenFingerprint(token string) string {
	if token == "" {
		return ""
	}
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:6])
}
