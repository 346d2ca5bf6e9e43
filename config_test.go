package rxseal

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hengadev/errsx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_ValidateAppliesDefaults(t *testing.T) {
	var cfg Config
	require.NoError(t, cfg.Validate())

	assert.Equal(t, DefaultAddr, cfg.Addr)
	assert.Equal(t, DefaultStoreDriver, cfg.StoreDriver)
	assert.Equal(t, DefaultStorePath, cfg.StorePath)
	assert.Equal(t, DefaultSecretsSource, cfg.SecretsSource)
	assert.Equal(t, DefaultKexGroup, cfg.KexGroup)
	assert.Equal(t, DefaultKexKDF, cfg.KexKDF)
	assert.Equal(t, DefaultSessionTTL, cfg.SessionTTL)
	assert.Equal(t, DefaultMaxSessions, cfg.MaxSessions)
	assert.Equal(t, DefaultAuditPrefix, cfg.AuditPrefix)
}

func TestConfig_ValidateReportsEveryProblem(t *testing.T) {
	cfg := Config{
		StoreDriver:   "mongodb",
		SecretsSource: "ssm",
		KexGroup:      "ffdhe9000",
		KexKDF:        "md5",
		SessionTTL:    -time.Second,
	}
	err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidConfiguration)
	var errs errsx.Map
	require.True(t, errors.As(err, &errs), "expected errsx.Map in chain")
	for _, field := range []string{"store_driver", "secrets_source", "kex_group", "kex_kdf", "session_ttl"} {
		assert.Contains(t, errs, field)
	}
}

func TestLoadConfigFromEnvironment(t *testing.T) {
	t.Setenv(EnvStoreDriver, "leveldb")
	t.Setenv(EnvStorePath, "/tmp/rxseal")
	t.Setenv(EnvKexGroup, "x25519")
	t.Setenv(EnvKexKDF, "hkdf")
	t.Setenv(EnvSessionTTL, "5m")
	t.Setenv(EnvMaxSessions, "20")
	t.Setenv(EnvInsecureDefaults, "true")

	cfg, err := LoadConfigFromEnvironment()
	require.NoError(t, err)
	assert.Equal(t, "leveldb", cfg.StoreDriver)
	assert.Equal(t, "/tmp/rxseal", cfg.StorePath)
	assert.Equal(t, "x25519", cfg.KexGroup)
	assert.Equal(t, "hkdf", cfg.KexKDF)
	assert.Equal(t, 5*time.Minute, cfg.SessionTTL)
	assert.Equal(t, 20, cfg.MaxSessions)
	assert.True(t, cfg.InsecureDefaults)
	assert.Equal(t, DefaultAddr, cfg.Addr)
}

func TestLoadConfigFromEnvironment_BadValues(t *testing.T) {
	tests := []struct {
		name, key, value string
	}{
		{"ttl", EnvSessionTTL, "soon"},
		{"max sessions", EnvMaxSessions, "many"},
		{"insecure", EnvInsecureDefaults, "maybe"},
		{"group", EnvKexGroup, "rsa"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := LoadConfigFromEnvironment()
			assert.ErrorIs(t, err, ErrInvalidConfiguration)
		})
	}
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rxseal.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
addr: ":9090"
store_driver: memory
kex_group: p256
session_ttl: 10m
audit_bucket: clinic-audits
`), 0o600))

	cfg, err := LoadConfigFile(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Addr)
	assert.Equal(t, "memory", cfg.StoreDriver)
	assert.Equal(t, "p256", cfg.KexGroup)
	assert.Equal(t, 10*time.Minute, cfg.SessionTTL)
	assert.Equal(t, "clinic-audits", cfg.AuditBucket)
	assert.Equal(t, DefaultKexKDF, cfg.KexKDF)

	_, err = LoadConfigFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("addr: [unterminated"), 0o600))
	_, err = LoadConfigFile(bad)
	assert.ErrorIs(t, err, ErrInvalidConfiguration)
}

func TestLoadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("RXSEAL_VAULT_ALIAS=clinic\nRXSEAL_ADDR=:7000\n"), 0o600))

	// Already-set variables win over the file.
	t.Setenv(EnvAddr, ":6000")
	t.Setenv(EnvVaultAlias, "")
	os.Unsetenv(EnvVaultAlias)

	require.NoError(t, LoadEnvFile(path, filepath.Join(t.TempDir(), "absent.env")))
	assert.Equal(t, "clinic", os.Getenv(EnvVaultAlias))
	assert.Equal(t, ":6000", os.Getenv(EnvAddr))
	os.Unsetenv(EnvVaultAlias)

	assert.NoError(t, LoadEnvFile())
}
