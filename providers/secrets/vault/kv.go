package vault

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/hashicorp/vault/api"

	"github.com/hengadev/rxseal"
)

// Logical is the part of the Vault API used by KVStore. *api.Logical
// satisfies it.
type Logical interface {
	ReadWithContext(ctx context.Context, path string) (*api.Secret, error)
	WriteWithContext(ctx context.Context, path string, data map[string]interface{}) (*api.Secret, error)
}

// KVStore implements rxseal.SecretProvider using the HashiCorp Vault KV v2
// engine. Each secret lives at secret/data/{alias}/{name} with its value
// base64 encoded under the "value" key.
type KVStore struct {
	logical Logical
	alias   string
}

var _ rxseal.SecretProvider = (*KVStore)(nil)

// NewKVStore creates a KVStore configured from the environment (see
// createVaultClient).
//
// The KV v2 engine must be enabled in Vault before use:
//
//	vault secrets enable -path=secret kv-v2
func NewKVStore(alias string) (*KVStore, error) {
	client, err := createVaultClient()
	if err != nil {
		return nil, err
	}
	return NewKVStoreWithLogical(client.Logical(), alias), nil
}

// NewKVStoreWithLogical wraps an existing Vault client.
func NewKVStoreWithLogical(logical Logical, alias string) *KVStore {
	if alias == "" {
		alias = rxseal.DefaultVaultAlias
	}
	return &KVStore{logical: logical, alias: alias}
}

// GetStoragePath returns the Vault KV v2 path for a secret name.
//
// Examples:
//   - "signing-secret" with alias "rxseal" -> "secret/data/rxseal/signing-secret"
func (k *KVStore) GetStoragePath(name string) string {
	return fmt.Sprintf(rxseal.VaultSecretPathTemplate, k.alias, name)
}

// StoreSecret writes a new version of name.
func (k *KVStore) StoreSecret(ctx context.Context, name string, value []byte) error {
	if len(value) == 0 {
		return fmt.Errorf("%w: secret %s cannot be empty", rxseal.ErrInvalidConfiguration, name)
	}

	// KV v2 requires data to be wrapped in a "data" key
	data := map[string]interface{}{
		"data": map[string]interface{}{
			"value": base64.StdEncoding.EncodeToString(value),
		},
	}
	if _, err := k.logical.WriteWithContext(ctx, k.GetStoragePath(name), data); err != nil {
		return fmt.Errorf("%w: failed to store secret in Vault KV: %w", rxseal.ErrSecretStorageUnavailable, err)
	}
	return nil
}

// GetSecret reads the latest version of name.
func (k *KVStore) GetSecret(ctx context.Context, name string) ([]byte, error) {
	secret, err := k.logical.ReadWithContext(ctx, k.GetStoragePath(name))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read secret from Vault KV: %w", rxseal.ErrSecretStorageUnavailable, err)
	}
	// Vault returns a nil secret for "not found"
	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("%w: %s", rxseal.ErrSecretNotFound, k.GetStoragePath(name))
	}

	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: invalid KV v2 secret format for %s", rxseal.ErrSecretStorageUnavailable, name)
	}
	encoded, ok := data["value"].(string)
	if !ok {
		return nil, fmt.Errorf("%w: value missing for %s", rxseal.ErrSecretNotFound, name)
	}
	value, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to decode secret %s: %w", rxseal.ErrSecretStorageUnavailable, name, err)
	}
	if len(value) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", rxseal.ErrSecretNotFound, name)
	}
	return value, nil
}

// SecretExists reports whether name holds a value. Only storage failures
// are returned as errors.
func (k *KVStore) SecretExists(ctx context.Context, name string) (bool, error) {
	secret, err := k.logical.ReadWithContext(ctx, k.GetStoragePath(name))
	if err != nil {
		return false, fmt.Errorf("%w: failed to check if secret exists: %w", rxseal.ErrSecretStorageUnavailable, err)
	}
	if secret == nil || secret.Data == nil {
		return false, nil
	}
	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return false, nil
	}
	_, ok = data["value"].(string)
	return ok, nil
}
