// Package credman keeps the account password out of the key-value store in
// plain text, either by encrypting it or by handing it to the OS keyring.
package credman

import "github.com/maheshrc27/skyqueue/pkg/utils"

// Vault seals a secret before it is persisted and opens it on the way back.
type Vault interface {
	Seal(identifier, secret string) (string, error)
	Open(identifier, sealed string) (string, error)
	Forget(identifier string) error
}

// PlainVault stores the secret as is. Used when no SECRET_KEY is configured.
type PlainVault struct{}

func (PlainVault) Seal(_, secret string) (string, error) { return secret, nil }
func (PlainVault) Open(_, sealed string) (string, error) { return sealed, nil }
func (PlainVault) Forget(string) error                   { return nil }

// CipherVault encrypts the secret with AES-GCM, bound to the identifier it
// belongs to.
type CipherVault struct {
	key []byte
}

func NewCipherVault(secretKey string) *CipherVault {
	return &CipherVault{key: utils.DeriveKey(secretKey)}
}

func (v *CipherVault) Seal(identifier, secret string) (string, error) {
	return utils.Encrypt([]byte(secret), v.key, identifier)
}

func (v *CipherVault) Open(identifier, sealed string) (string, error) {
	return utils.Decrypt(sealed, v.key, identifier)
}

func (v *CipherVault) Forget(string) error { return nil }
