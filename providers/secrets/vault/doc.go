// Package vault reads rxseal secrets from the HashiCorp Vault KV v2 engine.
//
// # Basic Usage
//
//	kv, err := vault.NewKVStore("rxseal")
//	if err != nil {
//	    // handle error
//	}
//	svc, err := rxseal.NewService(ctx, cfg, kv)
//
// # Configuration
//
//	export VAULT_ADDR="https://vault.example.com:8200"
//	export VAULT_TOKEN="hvs.your-token-here"
//	export VAULT_NAMESPACE="my-namespace"  // optional
//
// AppRole login is used instead of a token when VAULT_ROLE_ID and
// VAULT_SECRET_ID are both set.
//
// # Secret Layout
//
// Each secret is stored at secret/data/{alias}/{name}:
//
//	secret/data/rxseal/encryption-passphrase
//	secret/data/rxseal/signing-secret
//	secret/data/rxseal/jwt-secret
//
// The token needs this policy:
//
//	path "secret/data/rxseal/*" {
//	    capabilities = ["create", "read", "update"]
//	}
//
// Rotating signing-secret invalidates every issued prescription signature,
// and rotating encryption-passphrase makes static-key records unreadable.
package vault
