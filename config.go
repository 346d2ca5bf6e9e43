package rxseal

import (
	"fmt"
	"strings"
	"time"

	"github.com/hengadev/errsx"

	"github.com/hengadev/rxseal/internal/kex"
	"github.com/hengadev/rxseal/internal/monitoring"
	"github.com/hengadev/rxseal/internal/store"
)

// Config holds everything NewService needs apart from secrets.
//
// Configuration can be loaded from the environment (LoadConfigFromEnvironment),
// a YAML file (LoadConfigFile) or built in code. Validate applies defaults to
// every empty field.
//
// Example usage:
//
//	cfg := rxseal.Config{
//	    StoreDriver: "leveldb",
//	    StorePath:   "/var/lib/rxseal/data",
//	    KexGroup:    "x25519",
//	    KexKDF:      "hkdf",
//	}
//	if err := cfg.Validate(); err != nil {
//	    log.Fatal(err)
//	}
type Config struct {
	// Addr is the HTTP listen address. Default: ":8080"
	Addr string `yaml:"addr"`

	// StoreDriver is sqlite, leveldb or memory. Default: sqlite
	StoreDriver string `yaml:"store_driver"`

	// StorePath is the SQLite file or LevelDB directory. Default: rxseal.db
	StorePath string `yaml:"store_path"`

	// SecretsSource is env or vault. Default: env
	SecretsSource string `yaml:"secrets_source"`

	// VaultAlias scopes Vault KV paths, see VaultSecretPathTemplate. Default: rxseal
	VaultAlias string `yaml:"vault_alias"`

	// KexGroup is the group used when a client does not ask for one:
	// modp2048, p256 or x25519. Default: modp2048
	KexGroup string `yaml:"kex_group"`

	// KexKDF derives the session key from the shared secret: sha256 or hkdf.
	// Clients must use the same derivation. Default: sha256
	KexKDF string `yaml:"kex_kdf"`

	// SessionTTL bounds a key exchange session. Default: 30m
	SessionTTL time.Duration `yaml:"session_ttl"`

	// MaxSessions caps the number of key exchange sessions; further inits are
	// refused and health reports degraded. Default: 10000
	MaxSessions int `yaml:"max_sessions"`

	// LogLevel is debug, info, warn or error. Default: info
	LogLevel string `yaml:"log_level"`

	// LogFormat is json, text or console. Default: json
	LogFormat string `yaml:"log_format"`

	// AuditBucket enables S3 audit exports when set.
	AuditBucket string `yaml:"audit_bucket"`

	// AuditPrefix is prepended to audit object keys. Default: audits/
	AuditPrefix string `yaml:"audit_prefix"`

	// JWTIssuer, when set, is required on every bearer token.
	JWTIssuer string `yaml:"jwt_issuer"`

	// InsecureDefaults falls back to built-in development secrets when a
	// secret is missing. Never enable in production.
	InsecureDefaults bool `yaml:"insecure_defaults"`
}

// Validate checks the configuration and applies defaults to empty fields.
// All problems are reported together.
func (c *Config) Validate() error {
	if c.Addr == "" {
		c.Addr = DefaultAddr
	}
	if c.StoreDriver == "" {
		c.StoreDriver = DefaultStoreDriver
	}
	if c.StorePath == "" {
		c.StorePath = DefaultStorePath
	}
	if c.SecretsSource == "" {
		c.SecretsSource = DefaultSecretsSource
	}
	if c.VaultAlias == "" {
		c.VaultAlias = DefaultVaultAlias
	}
	if c.KexGroup == "" {
		c.KexGroup = DefaultKexGroup
	}
	if c.KexKDF == "" {
		c.KexKDF = DefaultKexKDF
	}
	if c.SessionTTL == 0 {
		c.SessionTTL = DefaultSessionTTL
	}
	if c.MaxSessions == 0 {
		c.MaxSessions = DefaultMaxSessions
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogFormat == "" {
		c.LogFormat = "json"
	}
	if c.AuditPrefix == "" {
		c.AuditPrefix = DefaultAuditPrefix
	}

	var errs errsx.Map
	switch strings.ToLower(c.StoreDriver) {
	case store.DriverSQLite, store.DriverLevelDB, store.DriverMemory:
	default:
		errs.Set("store_driver", fmt.Errorf("unsupported store driver '%s'", c.StoreDriver))
	}
	switch c.SecretsSource {
	case "env", "vault":
	default:
		errs.Set("secrets_source", fmt.Errorf("unsupported secrets source '%s'", c.SecretsSource))
	}
	if _, err := kex.GroupByName(c.KexGroup); err != nil {
		errs.Set("kex_group", err)
	}
	if _, err := kex.ParseKDF(c.KexKDF); err != nil {
		errs.Set("kex_kdf", err)
	}
	if c.SessionTTL < 0 {
		errs.Set("session_ttl", fmt.Errorf("session ttl must be positive, got %s", c.SessionTTL))
	}
	if c.MaxSessions < 0 {
		errs.Set("max_sessions", fmt.Errorf("max sessions cannot be negative, got %d", c.MaxSessions))
	}
	if !errs.IsEmpty() {
		return fmt.Errorf("%w: %w", ErrInvalidConfiguration, errs.AsError())
	}
	return nil
}

func (c *Config) loggerConfig() monitoring.LoggerConfig {
	return monitoring.LoggerConfig{
		Level:     monitoring.ParseLogLevel(c.LogLevel),
		Format:    monitoring.ParseLogFormat(c.LogFormat),
		Component: "rxseal",
		Version:   Version,
	}
}
