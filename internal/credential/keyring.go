package credential

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/99designs/keyring"

	"github.com/nhle/inbox-companion/internal/apperr"
	"github.com/nhle/inbox-companion/internal/model"
)

const serviceName = "inboxd"

// Vault reads and writes secrets in a keyring.
type Vault struct {
	ring keyring.Keyring
}

// NewVault wraps an already opened keyring.
func NewVault(ring keyring.Keyring) *Vault {
	return &Vault{ring: ring}
}

// Open opens the system keyring, falling back to an encrypted file store
// under ~/.config/inboxd/credentials.
func Open() (*Vault, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  fileDir(),
		FilePasswordFunc:         keyring.FixedStringPrompt("inboxd-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return &Vault{ring: ring}, nil
}

func fileDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "credentials")
	}
	return filepath.Join(home, ".config", "inboxd", "credentials")
}

// Get retrieves a credential value by key.
func (v *Vault) Get(key string) (string, error) {
	item, err := v.ring.Get(key)
	if err != nil {
		if errors.Is(err, keyring.ErrKeyNotFound) {
			return "", apperr.NotFoundf("credential.get", "no credential stored for %q", key)
		}
		return "", fmt.Errorf("getting credential %q: %w", key, err)
	}
	return string(item.Data), nil
}

// Set stores a credential value by key.
func (v *Vault) Set(key, value string) error {
	err := v.ring.Set(keyring.Item{
		Key:   key,
		Data:  []byte(value),
		Label: serviceName + " " + key,
	})
	if err != nil {
		return fmt.Errorf("setting credential %q: %w", key, err)
	}
	return nil
}

// Delete removes a credential by key.
func (v *Vault) Delete(key string) error {
	if err := v.ring.Remove(key); err != nil {
		if errors.Is(err, keyring.ErrKeyNotFound) {
			return apperr.NotFoundf("credential.delete", "no credential stored for %q", key)
		}
		return fmt.Errorf("deleting credential %q: %w", key, err)
	}
	return nil
}

// IMAPPassword returns the configured password, or the one stored in the
// keyring under cfg.CredentialKey() when the config leaves it empty.
func (v *Vault) IMAPPassword(cfg model.IMAPConfig) (string, error) {
	if cfg.Password != "" {
		return cfg.Password, nil
	}
	if v == nil {
		return "", apperr.Validationf("credential.imap", "imap.password is empty and no keyring is available")
	}
	return v.Get(cfg.CredentialKey())
}
