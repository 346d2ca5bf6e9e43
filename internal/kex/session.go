package kex

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"golang.org/x/crypto/hkdf"

	"github.com/hengadev/rxseal/internal/crypto"
	"github.com/hengadev/rxseal/internal/security"
)

var (
	ErrNotInitialized = errors.New("key exchange not initialized")
	ErrSessionExpired = errors.New("key exchange session expired")
	ErrUnknownKDF     = errors.New("unknown key derivation function")
)

// KDF names the function turning a raw shared secret into a session key.
type KDF string

const (
	// KDFSHA256 hashes the raw shared secret with SHA-256.
	KDFSHA256 KDF = "sha256"
	// KDFHKDF expands the shared secret with HKDF-SHA256 and a fixed info label.
	KDFHKDF KDF = "hkdf"

	hkdfInfo = "rxseal session key v1"
)

// ParseKDF resolves a configured KDF name. Empty selects sha256.
func ParseKDF(name string) (KDF, error) {
	switch KDF(strings.ToLower(strings.TrimSpace(name))) {
	case "", KDFSHA256:
		return KDFSHA256, nil
	case KDFHKDF:
		return KDFHKDF, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownKDF, name)
	}
}

// Derive produces a fixed-length symmetric key from a shared secret.
func (k KDF) Derive(secret []byte) (crypto.Key, error) {
	switch k {
	case KDFSHA256, "":
		return sha256.Sum256(secret), nil
	case KDFHKDF:
		var key crypto.Key
		if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte(hkdfInfo)), key[:]); err != nil {
			return crypto.Key{}, fmt.Errorf("hkdf expansion failed: %w", err)
		}
		return key, nil
	default:
		return crypto.Key{}, fmt.Errorf("%w: %q", ErrUnknownKDF, string(k))
	}
}

// State is the position of a Session in the exchange.
type State int

const (
	Uninitialized State = iota
	KeysGenerated
	Established
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case KeysGenerated:
		return "keys_generated"
	case Established:
		return "established"
	default:
		return "unknown"
	}
}

// Params is what init returns to the client.
type Params struct {
	Group           string
	Prime           string
	Generator       string
	ServerPublicKey string
}

// Session is the server side of one key exchange. It is not safe for
// concurrent use; Store serializes access.
type Session struct {
	ID        string
	CreatedAt time.Time
	ExpiresAt time.Time

	group Group
	kdf   KDF
	state State
	pair  KeyPair
	key   *crypto.Key
}

// NewSession creates an uninitialized session.
func NewSession(id string, group Group, kdf KDF) *Session {
	return &Session{ID: id, group: group, kdf: kdf}
}

// State returns the current state.
func (s *Session) State() State { return s.state }

// Group returns the group the session was created with.
func (s *Session) Group() Group { return s.group }

// Init generates a fresh key pair. Any previous key pair and derived key are
// discarded, so a client that completes against an earlier init can no longer
// reach the key it expects.
func (s *Session) Init(random io.Reader) (Params, error) {
	pair, err := s.group.GenerateKey(random)
	if err != nil {
		return Params{}, err
	}
	s.reset()
	s.pair = pair
	s.state = KeysGenerated

	prime, gen := s.group.Parameters()
	return Params{
		Group:           s.group.Name(),
		Prime:           prime,
		Generator:       gen,
		ServerPublicKey: pair.PublicKey(),
	}, nil
}

// Complete derives and stores the session key from the client's public value.
// A failed completion leaves the session unchanged.
func (s *Session) Complete(clientPublic string) error {
	if s.state < KeysGenerated || s.pair == nil {
		return ErrNotInitialized
	}
	secret, err := s.pair.SharedSecret(clientPublic)
	if err != nil {
		return err
	}
	defer security.ZeroBytes(secret)

	key, err := s.kdf.Derive(secret)
	if err != nil {
		return err
	}
	if s.key != nil {
		security.ZeroKey((*[32]byte)(s.key))
	}
	s.key = &key
	s.state = Established
	return nil
}

// Key returns the derived session key once established.
func (s *Session) Key() (crypto.Key, bool) {
	if s.state != Established || s.key == nil {
		return crypto.Key{}, false
	}
	return *s.key, true
}

// Destroy wipes the session and returns it to Uninitialized.
func (s *Session) Destroy() {
	s.reset()
}

func (s *Session) reset() {
	if s.pair != nil {
		s.pair.Destroy()
		s.pair = nil
	}
	if s.key != nil {
		security.ZeroKey((*[32]byte)(s.key))
		s.key = nil
	}
	s.state = Uninitialized
}
