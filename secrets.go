package rxseal

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/hengadev/rxseal/internal/security"
)

// SecretProvider is the contract for reading the service's secrets.
//
// Implementations:
//   - Environment variables: rxseal.EnvSecretStore
//   - HashiCorp Vault KV v2: github.com/hengadev/rxseal/providers/secrets/vault.KVStore
//   - In-Memory (testing): rxseal.InMemorySecretStore
//
// GetSecret returns an error wrapping ErrSecretNotFound when the secret does
// not exist and ErrSecretStorageUnavailable when the backend cannot be reached.
type SecretProvider interface {
	GetSecret(ctx context.Context, name string) ([]byte, error)
	SecretExists(ctx context.Context, name string) (bool, error)
}

// EnvSecretStore reads secrets from environment variables.
type EnvSecretStore struct {
	vars map[string]string
}

// NewEnvSecretStore maps the standard secret names to RXSEAL_* variables.
func NewEnvSecretStore() *EnvSecretStore {
	return &EnvSecretStore{
		vars: map[string]string{
			SecretEncryptionPassphrase: EnvEncryptionPassphrase,
			SecretSigningSecret:        EnvSigningSecret,
			SecretJWTSecret:            EnvJWTSecret,
		},
	}
}

func (s *EnvSecretStore) GetSecret(ctx context.Context, name string) ([]byte, error) {
	key, ok := s.vars[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown secret %s", ErrSecretNotFound, name)
	}
	value := os.Getenv(key)
	if value == "" {
		return nil, fmt.Errorf("%w: %s is not set", ErrSecretNotFound, key)
	}
	return []byte(value), nil
}

func (s *EnvSecretStore) SecretExists(ctx context.Context, name string) (bool, error) {
	key, ok := s.vars[name]
	if !ok {
		return false, nil
	}
	return os.Getenv(key) != "", nil
}

// InMemorySecretStore keeps secrets in memory. It is meant for tests and
// examples.
//
// Usage:
//
//	store := rxseal.NewInMemorySecretStore()
//	store.StoreSecret(ctx, rxseal.SecretSigningSecret, []byte("sign-key"))
type InMemorySecretStore struct {
	mu      sync.RWMutex
	secrets map[string][]byte
}

func NewInMemorySecretStore() *InMemorySecretStore {
	return &InMemorySecretStore{
		secrets: make(map[string][]byte),
	}
}

// StoreSecret stores a copy of value under name.
func (s *InMemorySecretStore) StoreSecret(ctx context.Context, name string, value []byte) error {
	if len(value) == 0 {
		return fmt.Errorf("%w: secret %s cannot be empty", ErrInvalidConfiguration, name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.secrets[name] = security.SecureCopy(value)
	return nil
}

func (s *InMemorySecretStore) GetSecret(ctx context.Context, name string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	value, exists := s.secrets[name]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrSecretNotFound, name)
	}
	return security.SecureCopy(value), nil
}

func (s *InMemorySecretStore) SecretExists(ctx context.Context, name string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, exists := s.secrets[name]
	return exists, nil
}

// serviceSecrets are the three secrets the service cannot start without.
type serviceSecrets struct {
	passphrase    string
	signingSecret []byte
	jwtSecret     []byte
}

var devSecrets = map[string]string{
	SecretEncryptionPassphrase: devEncryptionPassphrase,
	SecretSigningSecret:        devSigningSecret,
	SecretJWTSecret:            devJWTSecret,
}

// loadSecrets reads every service secret. A missing secret is replaced by its
// development value only when insecure is true; storage failures are always
// returned.
func loadSecrets(ctx context.Context, provider SecretProvider, insecure bool) (serviceSecrets, []string, error) {
	var (
		values   = make(map[string][]byte, len(devSecrets))
		defaults []string
	)
	for _, name := range []string{SecretEncryptionPassphrase, SecretSigningSecret, SecretJWTSecret} {
		value, err := provider.GetSecret(ctx, name)
		switch {
		case err == nil:
			values[name] = value
		case errors.Is(err, ErrSecretNotFound) && insecure:
			values[name] = []byte(devSecrets[name])
			defaults = append(defaults, name)
		default:
			return serviceSecrets{}, nil, fmt.Errorf("load secret %s: %w", name, err)
		}
	}
	return serviceSecrets{
		passphrase:    string(values[SecretEncryptionPassphrase]),
		signingSecret: values[SecretSigningSecret],
		jwtSecret:     values[SecretJWTSecret],
	}, defaults, nil
}
