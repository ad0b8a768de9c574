// AngelaMos | 2026
// security.go

package core

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

const (
	refreshTokenBytes   = 32
	magicLinkTokenBytes = 32
)

func GenerateSecureToken(length int) (string, error) {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("generate random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(bytes), nil
}

func GenerateRefreshToken() (string, error) {
	return GenerateSecureToken(refreshTokenBytes)
}

// GenerateMagicLinkToken returns a URL-safe token that can be placed in a
// query string without escaping.
func GenerateMagicLinkToken() (string, error) {
	return GenerateSecureToken(magicLinkTokenBytes)
}

// HashToken is the form tokens are stored and looked up in.
func HashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}
