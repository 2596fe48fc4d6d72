package credman

import (
	"errors"

	"github.com/zalando/go-keyring"
)

// marker persisted in place of the password when the keyring holds it
const keyringMarker = "keyring"

var (
	keyringSet    = keyring.Set
	keyringGet    = keyring.Get
	keyringDelete = keyring.Delete
)

// KeyringVault stores the secret in the OS keyring under AppName, keyed by
// the account identifier.
type KeyringVault struct {
	AppName string
}

func NewKeyringVault() *KeyringVault {
	return &KeyringVault{AppName: "skyqueue"}
}

func (k *KeyringVault) Seal(identifier, secret string) (string, error) {
	if err := keyringSet(k.AppName, identifier, secret); err != nil {
		return "", err
	}
	return keyringMarker, nil
}

func (k *KeyringVault) Open(identifier, sealed string) (string, error) {
	if sealed != keyringMarker {
		return "", errors.New("credentials were not stored in the keyring")
	}
	return keyringGet(k.AppName, identifier)
}

func (k *KeyringVault) Forget(identifier string) error {
	err := keyringDelete(k.AppName, identifier)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil
	}
	return err
}
