package utils

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"io"
	"log/slog"
)

// DeriveKey turns an arbitrary secret into a 32 byte AES-256 key.
func DeriveKey(secret string) []byte {
	sum := sha256.Sum256([]byte(secret))
	return sum[:]
}

// Encrypt seals plaintext with AES-GCM. label is authenticated but not
// stored, so the result only opens with the same label.
func Encrypt(plaintext, key []byte, label string) (string, error) {
	// Create AES cipher block
	block, err := aes.NewCipher(key)
	if err != nil {
		slog.Info(err.Error())
		return "", err
	}

	// Create GCM (Galois/Counter Mode) for encryption
	aesGCM, err := cipher.NewGCM(block)
	if err != nil {
		slog.Info(err.Error())
		return "", err
	}

	// Create a nonce
	nonce := make([]byte, aesGCM.NonceSize())
	if _, err = io.ReadFull(rand.Reader, nonce); err != nil {
		slog.Info(err.Error())
		return "", err
	}

	// Encrypt the data, bound to the label
	ciphertext := aesGCM.Seal(nil, nonce, plaintext, []byte(label))

	// Combine nonce and ciphertext
	finalData := append(nonce, ciphertext...)

	// Encode in base64 so it fits a JSON string
	return base64.StdEncoding.EncodeToString(finalData), nil
}

// Decrypt opens the base64 output of Encrypt with the same key and label.
func Decrypt(encryptedData string, key []byte, label string) (string, error) {
	// Decode the base64-encoded ciphertext
	data, err := base64.StdEncoding.DecodeString(encryptedData)
	if err != nil {
		slog.Info(err.Error())
		return "", err
	}

	// Create AES cipher block
	block, err := aes.NewCipher(key)
	if err != nil {
		slog.Info(err.Error())
		return "", err
	}

	// Create GCM for decryption
	aesGCM, err := cipher.NewGCM(block)
	if err != nil {
		slog.Info(err.Error())
		return "", err
	}

	// Extract nonce and ciphertext
	nonceSize := aesGCM.NonceSize()
	if len(data) < nonceSize {
		return "", errors.New("ciphertext too short")
	}
	nonce, ciphertext := data[:nonceSize], data[nonceSize:]

	// Decrypt the data; fails on a wrong key or label
	plaintext, err := aesGCM.Open(nil, nonce, ciphertext, []byte(label))
	if err != nil {
		slog.Info(err.Error())
		return "", err
	}

	return string(plaintext), nil
}
