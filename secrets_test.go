package rxseal

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockSecretProvider struct {
	mock.Mock
}

func (m *mockSecretProvider) GetSecret(ctx context.Context, name string) ([]byte, error) {
	args := m.Called(ctx, name)
	if v := args.Get(0); v != nil {
		return v.([]byte), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockSecretProvider) SecretExists(ctx context.Context, name string) (bool, error) {
	args := m.Called(ctx, name)
	return args.Bool(0), args.Error(1)
}

func TestEnvSecretStore(t *testing.T) {
	ctx := context.Background()
	store := NewEnvSecretStore()

	t.Setenv(EnvSigningSecret, "sign-me")
	t.Setenv(EnvJWTSecret, "")

	value, err := store.GetSecret(ctx, SecretSigningSecret)
	require.NoError(t, err)
	assert.Equal(t, []byte("sign-me"), value)

	_, err = store.GetSecret(ctx, SecretJWTSecret)
	assert.ErrorIs(t, err, ErrSecretNotFound)

	_, err = store.GetSecret(ctx, "pepper")
	assert.ErrorIs(t, err, ErrSecretNotFound)

	exists, err := store.SecretExists(ctx, SecretSigningSecret)
	require.NoError(t, err)
	assert.True(t, exists)
	exists, _ = store.SecretExists(ctx, SecretJWTSecret)
	assert.False(t, exists)
}

func TestInMemorySecretStore_CopiesValues(t *testing.T) {
	ctx := context.Background()
	store := NewInMemorySecretStore()

	value := []byte("secret")
	require.NoError(t, store.StoreSecret(ctx, "a", value))
	value[0] = 'X'

	got, err := store.GetSecret(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []byte("secret"), got)
	got[0] = 'Y'

	again, _ := store.GetSecret(ctx, "a")
	assert.Equal(t, []byte("secret"), again)

	assert.ErrorIs(t, store.StoreSecret(ctx, "b", nil), ErrInvalidConfiguration)
	_, err = store.GetSecret(ctx, "b")
	assert.ErrorIs(t, err, ErrSecretNotFound)
}

func TestLoadSecrets(t *testing.T) {
	ctx := context.Background()

	t.Run("all present", func(t *testing.T) {
		provider := &mockSecretProvider{}
		provider.On("GetSecret", ctx, SecretEncryptionPassphrase).Return([]byte("pass"), nil)
		provider.On("GetSecret", ctx, SecretSigningSecret).Return([]byte("sign"), nil)
		provider.On("GetSecret", ctx, SecretJWTSecret).Return([]byte("jwt"), nil)

		secrets, defaulted, err := loadSecrets(ctx, provider, false)
		require.NoError(t, err)
		assert.Empty(t, defaulted)
		assert.Equal(t, "pass", secrets.passphrase)
		assert.Equal(t, []byte("sign"), secrets.signingSecret)
		assert.Equal(t, []byte("jwt"), secrets.jwtSecret)
		provider.AssertExpectations(t)
	})

	t.Run("missing with insecure defaults", func(t *testing.T) {
		provider := &mockSecretProvider{}
		provider.On("GetSecret", ctx, SecretEncryptionPassphrase).Return(nil, ErrSecretNotFound)
		provider.On("GetSecret", ctx, SecretSigningSecret).Return([]byte("sign"), nil)
		provider.On("GetSecret", ctx, SecretJWTSecret).Return(nil, ErrSecretNotFound)

		secrets, defaulted, err := loadSecrets(ctx, provider, true)
		require.NoError(t, err)
		assert.Equal(t, []string{SecretEncryptionPassphrase, SecretJWTSecret}, defaulted)
		assert.Equal(t, devEncryptionPassphrase, secrets.passphrase)
		assert.Equal(t, []byte(devJWTSecret), secrets.jwtSecret)
	})

	t.Run("missing without insecure defaults", func(t *testing.T) {
		provider := &mockSecretProvider{}
		provider.On("GetSecret", ctx, SecretEncryptionPassphrase).Return(nil, ErrSecretNotFound)

		_, _, err := loadSecrets(ctx, provider, false)
		assert.ErrorIs(t, err, ErrSecretNotFound)
		provider.AssertNumberOfCalls(t, "GetSecret", 1)
	})

	t.Run("storage failure is never defaulted", func(t *testing.T) {
		provider := &mockSecretProvider{}
		provider.On("GetSecret", ctx, SecretEncryptionPassphrase).
			Return(nil, errors.Join(ErrSecretStorageUnavailable, errors.New("vault sealed")))

		_, _, err := loadSecrets(ctx, provider, true)
		assert.ErrorIs(t, err, ErrSecretStorageUnavailable)
	})
}
