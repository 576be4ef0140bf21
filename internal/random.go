package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"

	"github.com/google/uuid"
)

// RefreshSecretSize is the number of random bytes in a refresh secret (512 bits).
const RefreshSecretSize = 64

// NewTokenID returns a random UUIDv4 string used for jti, refresh token ids and
// session ids.
func NewTokenID() string {
	return uuid.NewString()
}

// NewRefreshSecret returns a fresh base64url (unpadded) refresh secret.
func NewRefreshSecret() (string, error) {
	var raw [RefreshSecretSize]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}

// HashSecret returns the hex SHA-256 of secret. Only this value is persisted.
func HashSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

// ValidRefreshSecret reports whether s has the shape NewRefreshSecret produces.
func ValidRefreshSecret(s string) bool {
	if len(s) != base64.RawURLEncoding.EncodedLen(RefreshSecretSize) {
		return false
	}
	_, err := base64.RawURLEncoding.DecodeString(s)
	return err == nil
}
