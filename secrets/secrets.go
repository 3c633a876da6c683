package secrets

import (
	"fmt"
	"os"
	"strings"

	"github.com/zalando/go-keyring"
)

const keyringService = "parley"

type SecretStore interface {
	GetSecret(secretName string) (string, error)
	SetSecret(secretName string, secret string) error
	DeleteSecret(secretName string) error
	GetType() SecretStoreType
}

type SecretStoreType string

const (
	EnvSecretStoreType     SecretStoreType = "env"
	KeyringSecretStoreType SecretStoreType = "keyring"
	MockSecretStoreType    SecretStoreType = "mock"
)

// EnvSecretStore resolves secrets from PARLEY_-prefixed environment
// variables. The secret name is upper-cased and non-alphanumerics become
// underscores, so the key for backend "My Backend" is PARLEY_MY_BACKEND.
type EnvSecretStore struct{}

func envVarName(secretName string) string {
	mapped := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r - 'a' + 'A'
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, secretName)
	return "PARLEY_" + mapped
}

func (e EnvSecretStore) GetSecret(secretName string) (string, error) {
	envName := envVarName(secretName)
	secret := os.Getenv(envName)
	if secret == "" {
		return "", fmt.Errorf("secret %s not found in environment", envName)
	}
	return secret, nil
}

func (e EnvSecretStore) SetSecret(secretName string, secret string) error {
	return fmt.Errorf("cannot set secrets in environment secret store - secrets must be set as environment variables")
}

func (e EnvSecretStore) DeleteSecret(secretName string) error {
	return fmt.Errorf("cannot delete secrets in environment secret store - secrets must be managed via environment variables")
}

func (e EnvSecretStore) GetType() SecretStoreType {
	return EnvSecretStoreType
}

type KeyringSecretStore struct{}

func (k KeyringSecretStore) GetSecret(secretName string) (string, error) {
	secret, err := keyring.Get(keyringService, secretName)
	if err != nil {
		return "", fmt.Errorf("error retrieving %s from keyring: %w", secretName, err)
	}
	return secret, nil
}

func (k KeyringSecretStore) SetSecret(secretName string, secret string) error {
	if err := keyring.Set(keyringService, secretName, secret); err != nil {
		return fmt.Errorf("error setting %s in keyring: %w", secretName, err)
	}
	return nil
}

func (k KeyringSecretStore) DeleteSecret(secretName string) error {
	if err := keyring.Delete(keyringService, secretName); err != nil {
		return fmt.Errorf("error deleting %s from keyring: %w", secretName, err)
	}
	return nil
}

func (k KeyringSecretStore) GetType() SecretStoreType {
	return KeyringSecretStoreType
}

// MockSecretStore is an in-memory store for tests.
type MockSecretStore struct {
	secrets map[string]string
}

func (m *MockSecretStore) GetSecret(secretName string) (string, error) {
	if secret, ok := m.secrets[secretName]; ok {
		return secret, nil
	}
	return "", fmt.Errorf("secret %s not found", secretName)
}

func (m *MockSecretStore) SetSecret(secretName string, secret string) error {
	if m.secrets == nil {
		m.secrets = make(map[string]string)
	}
	m.secrets[secretName] = secret
	return nil
}

func (m *MockSecretStore) DeleteSecret(secretName string) error {
	delete(m.secrets, secretName)
	return nil
}

func (m *MockSecretStore) GetType() SecretStoreType {
	return MockSecretStoreType
}

// ChainSecretStore tries each store in order and returns the first hit.
// Writes and deletes go to the first store that accepts them.
type ChainSecretStore struct {
	stores []SecretStore
}

func NewChainSecretStore(stores ...SecretStore) *ChainSecretStore {
	return &ChainSecretStore{stores: stores}
}

func (c *ChainSecretStore) GetSecret(secretName string) (string, error) {
	var lastErr error
	for _, s := range c.stores {
		secret, err := s.GetSecret(secretName)
		if err == nil {
			return secret, nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no secret stores configured")
	}
	return "", fmt.Errorf("secret %s not found in any store: %w", secretName, lastErr)
}

func (c *ChainSecretStore) SetSecret(secretName string, secret string) error {
	var lastErr error
	for _, s := range c.stores {
		if err := s.SetSecret(secretName, secret); err == nil {
			return nil
		} else {
			lastErr = err
		}
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no secret stores configured")
	}
	return lastErr
}

func (c *ChainSecretStore) DeleteSecret(secretName string) error {
	var lastErr error
	for _, s := range c.stores {
		if err := s.DeleteSecret(secretName); err == nil {
			return nil
		} else {
			lastErr = err
		}
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no secret stores configured")
	}
	return lastErr
}

func (c *ChainSecretStore) GetType() SecretStoreType {
	if len(c.stores) > 0 {
		return c.stores[0].GetType()
	}
	return MockSecretStoreType
}

// DefaultSecretStore is the production chain: environment variables first,
// then the OS keyring.
func DefaultSecretStore() SecretStore {
	return NewChainSecretStore(EnvSecretStore{}, KeyringSecretStore{})
}
