package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
)

const (
	// KeyPrefix is the prefix for generated ops keys
	KeyPrefix = "cs_ops_"
	// KeyLength is the number of random bytes in a key
	KeyLength = 32
)

// GenerateAPIKey generates a new ops API key suitable for OPS_API_KEY.
func GenerateAPIKey() (string, error) {
	bytes := make([]byte, KeyLength)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("generating random bytes: %w", err)
	}
	return KeyPrefix + hex.EncodeToString(bytes), nil
}

// Fingerprint returns a short, loggable identifier for a key.
func Fingerprint(key string) string {
	hash := sha256.Sum256([]byte(key))
	return hex.EncodeToString(hash[:])[:12]
}

// Equal compares two keys in constant time.
func Equal(got, want string) bool {
	g := sha256.Sum256([]byte(got))
	w := sha256.Sum256([]byte(want))
	return subtle.ConstantTimeCompare(g[:], w[:]) == 1
}
