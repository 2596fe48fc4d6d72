package utils

import (
	"crypto/rand"
	"encoding/base64"
)

// GenerateRandomKey returns length random bytes, URL-safe base64 encoded.
// Used for the ephemeral SECRET_KEY.
func GenerateRandomKey(length int) (string, error) {
	// Generate random bytes
	b := make([]byte, length)
	_, err := rand.Read(b)
	// err == nil only if len(b) bytes were read
	if err != nil {
		return "", err
	}

	// Encode to base64, safe for env files and URLs
	return base64.URLEncoding.EncodeToString(b), nil
}
