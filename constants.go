package rxseal

import "time"

// Environment variable names
const (
	// EnvAddr is the HTTP listen address.
	EnvAddr = "RXSEAL_ADDR"

	// EnvStoreDriver selects the prescription store: sqlite, leveldb or memory.
	EnvStoreDriver = "RXSEAL_STORE_DRIVER"

	// EnvStorePath is the SQLite file or LevelDB directory.
	EnvStorePath = "RXSEAL_STORE_PATH"

	// EnvSecretsSource selects where secrets come from: env or vault.
	EnvSecretsSource = "RXSEAL_SECRETS_SOURCE"

	// EnvVaultAlias is the service alias used to build Vault KV paths.
	EnvVaultAlias = "RXSEAL_VAULT_ALIAS"

	// EnvKexGroup is the default key exchange group.
	EnvKexGroup = "RXSEAL_KEX_GROUP"

	// EnvKexKDF is the session key derivation: sha256 or hkdf.
	EnvKexKDF = "RXSEAL_KEX_KDF"

	// EnvSessionTTL bounds the life of a key exchange session (Go duration).
	EnvSessionTTL = "RXSEAL_SESSION_TTL"

	// EnvMaxSessions caps the number of key exchange sessions.
	EnvMaxSessions = "RXSEAL_MAX_SESSIONS"

	// EnvLogLevel and EnvLogFormat configure the structured logger.
	EnvLogLevel  = "RXSEAL_LOG_LEVEL"
	EnvLogFormat = "RXSEAL_LOG_FORMAT"

	// EnvAuditBucket and EnvAuditPrefix locate S3 audit exports.
	EnvAuditBucket = "RXSEAL_AUDIT_BUCKET"
	EnvAuditPrefix = "RXSEAL_AUDIT_PREFIX"

	// EnvJWTIssuer is the required iss claim on bearer tokens, if set.
	EnvJWTIssuer = "RXSEAL_JWT_ISSUER"

	// EnvInsecureDefaults allows the built-in development secrets.
	EnvInsecureDefaults = "RXSEAL_INSECURE_DEFAULTS"

	// Secret values read by EnvSecretStore.
	EnvEncryptionPassphrase = "RXSEAL_ENCRYPTION_PASSPHRASE"
	EnvSigningSecret        = "RXSEAL_SIGNING_SECRET"
	EnvJWTSecret            = "RXSEAL_JWT_SECRET"
)

// Secret names understood by every SecretProvider.
const (
	SecretEncryptionPassphrase = "encryption-passphrase"
	SecretSigningSecret        = "signing-secret"
	SecretJWTSecret            = "jwt-secret"
)

// Default values
const (
	DefaultAddr          = ":8080"
	DefaultStoreDriver   = "sqlite"
	DefaultStorePath     = "rxseal.db"
	DefaultSecretsSource = "env"
	DefaultVaultAlias    = "rxseal"
	DefaultKexGroup      = "modp2048"
	DefaultKexKDF        = "sha256"
	DefaultSessionTTL    = 30 * time.Minute
	DefaultMaxSessions   = 10000
	DefaultAuditPrefix   = "audits/"
)

// Development-only secrets, used when insecure defaults are enabled and no
// secret is configured.
const (
	devEncryptionPassphrase = "medicare-secret-key"
	devSigningSecret        = "medicare-sign-key"
	devJWTSecret            = "rxseal-dev-jwt-secret"
)

// VaultSecretPathTemplate is the Vault KV v2 path for a secret. The first %s
// is the service alias, the second the secret name.
const VaultSecretPathTemplate = "secret/data/%s/%s"
