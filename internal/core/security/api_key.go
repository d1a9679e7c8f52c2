package security

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"
)

// KeyPrefix starts every IDDO API key.
const KeyPrefix = "iddo_live_"

// GenerateAPIKey creates a random API key and the SHA256 hash that is stored
// in its place. The raw key is shown to the caller once.
func GenerateAPIKey() (realKey string, keyHash string, err error) {
	// 1. Generate 32 random bytes
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	// 2. Hex encode and prefix
	realKey = KeyPrefix + hex.EncodeToString(buf)

	// 3. Hash it - this is what we save to DB
	return realKey, HashKey(realKey), nil
}

// HashKey returns the hex SHA256 of an API key.
func HashKey(key string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(key)))
	return hex.EncodeToString(sum[:])
}

// ValidateKey checks a provided key against a stored hash in constant time.
func ValidateKey(providedKey, storedHash string) bool {
	computed := HashKey(providedKey)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(storedHash)) == 1
}

// TokensEqual compares two shared secrets in constant time.
func TokensEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
