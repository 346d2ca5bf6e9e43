package rxseal

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// LoadConfigFromEnvironment loads configuration from environment variables.
//
// Every variable is optional; Validate fills in defaults for the ones that are
// not set. Secrets are not part of Config and are read by a SecretProvider.
//
// Recognised variables:
//   - RXSEAL_ADDR: HTTP listen address (default: :8080)
//   - RXSEAL_STORE_DRIVER: sqlite, leveldb or memory (default: sqlite)
//   - RXSEAL_STORE_PATH: SQLite file or LevelDB directory (default: rxseal.db)
//   - RXSEAL_SECRETS_SOURCE: env or vault (default: env)
//   - RXSEAL_KEX_GROUP: modp2048, p256 or x25519 (default: modp2048)
//   - RXSEAL_KEX_KDF: sha256 or hkdf (default: sha256)
//   - RXSEAL_SESSION_TTL: Go duration (default: 30m)
//
// Example usage:
//
//	_ = rxseal.LoadEnvFile(".env")
//	cfg, err := rxseal.LoadConfigFromEnvironment()
//	if err != nil {
//	    log.Fatal(err)
//	}
func LoadConfigFromEnvironment() (Config, error) {
	cfg := Config{
		Addr:          os.Getenv(EnvAddr),
		StoreDriver:   os.Getenv(EnvStoreDriver),
		StorePath:     os.Getenv(EnvStorePath),
		SecretsSource: getEnvOrDefault(EnvSecretsSource, DefaultSecretsSource),
		VaultAlias:    getEnvOrDefault(EnvVaultAlias, DefaultVaultAlias),
		KexGroup:      getEnvOrDefault(EnvKexGroup, DefaultKexGroup),
		KexKDF:        getEnvOrDefault(EnvKexKDF, DefaultKexKDF),
		LogLevel:      os.Getenv(EnvLogLevel),
		LogFormat:     os.Getenv(EnvLogFormat),
		AuditBucket:   os.Getenv(EnvAuditBucket),
		AuditPrefix:   os.Getenv(EnvAuditPrefix),
		JWTIssuer:     os.Getenv(EnvJWTIssuer),
	}

	if v := os.Getenv(EnvSessionTTL); v != "" {
		ttl, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("%w: %s: %v", ErrInvalidConfiguration, EnvSessionTTL, err)
		}
		cfg.SessionTTL = ttl
	}
	if v := os.Getenv(EnvMaxSessions); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("%w: %s: %v", ErrInvalidConfiguration, EnvMaxSessions, err)
		}
		cfg.MaxSessions = n
	}
	if v := os.Getenv(EnvInsecureDefaults); v != "" {
		insecure, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("%w: %s: %v", ErrInvalidConfiguration, EnvInsecureDefaults, err)
		}
		cfg.InsecureDefaults = insecure
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// LoadConfigFile reads a YAML configuration file. Environment variables are
// not consulted.
func LoadConfigFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file '%s': %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("%w: parse config file '%s': %v", ErrInvalidConfiguration, path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// LoadEnvFile loads dotenv files into the process environment without
// overriding variables that are already set. Missing files are skipped.
func LoadEnvFile(paths ...string) error {
	var existing []string
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			existing = append(existing, p)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	if err := godotenv.Load(existing...); err != nil {
		return fmt.Errorf("load env file: %w", err)
	}
	return nil
}

// getEnvOrDefault returns the value of an environment variable, or
// defaultValue if it is unset or empty.
func getEnvOrDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}
