// Package rxseal protects prescriptions at rest and in transit.
//
// A prescription belongs to an appointment and carries three fields
// (diagnosis, medicines, advice). Each field is encrypted with AES-256-CBC and
// the plaintext is signed with HMAC-SHA256 together with the appointment id,
// so tampering shows up as an invalid signature on read. Once an admin
// revokes a prescription its content is withheld from every reader and it can
// no longer be edited.
//
// Clients may negotiate a per-session key with a Diffie-Hellman exchange
// (RFC 3526 MODP 2048, P-256 or X25519). Requests carrying an established
// session id encrypt under that key; everything else falls back to the
// static key derived from the configured passphrase.
//
// # Quick Start
//
//	cfg, err := rxseal.LoadConfigFromEnvironment()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	svc, err := rxseal.NewService(ctx, cfg, rxseal.NewEnvSecretStore())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer svc.Close()
//
//	sessionID, params, err := svc.InitKeyExchange(ctx, "", "")
//	// send params to the client, receive its public value
//	err = svc.CompleteKeyExchange(ctx, sessionID, clientPublic)
//
//	err = svc.WritePrescription(ctx, sessionID, prescription.WriteRequest{
//	    AppointmentID: id,
//	    Diagnosis:     "flu",
//	    Medicines:     "paracetamol",
//	    Advice:        "rest",
//	    Actor:         doctor,
//	})
//
// # Configuration
//
// Configuration is read from RXSEAL_* environment variables (optionally via
// a .env file) or a YAML file. Secrets come from a SecretProvider: the
// environment, HashiCorp Vault KV v2 (providers/secrets/vault) or memory.
package rxseal
