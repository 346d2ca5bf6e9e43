package kex

import (
	"crypto/ecdh"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"math/big"
	"strings"
)

// Group names accepted by GroupByName.
const (
	GroupMODP2048 = "modp2048"
	GroupP256     = "p256"
	GroupX25519   = "x25519"
)

var (
	ErrUnknownGroup     = errors.New("unknown key exchange group")
	ErrInvalidPublicKey = errors.New("invalid public key")
)

// Group is an agreed key-agreement group.
type Group interface {
	Name() string
	// Parameters returns the hex prime and generator for finite-field groups,
	// and empty strings for curves where they are implied by the name.
	Parameters() (prime, generator string)
	GenerateKey(random io.Reader) (KeyPair, error)
}

// KeyPair is one side's ephemeral exchange state.
type KeyPair interface {
	// PublicKey returns the wire encoding of the public value.
	PublicKey() string
	// SharedSecret combines the private value with a peer's encoded public value.
	SharedSecret(peerPublic string) ([]byte, error)
	Destroy()
}

// GroupByName resolves a configured group name. An empty name selects modp2048.
func GroupByName(name string) (Group, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", GroupMODP2048:
		return MODP2048(), nil
	case GroupP256:
		return NewECDHGroup(GroupP256, ecdh.P256()), nil
	case GroupX25519:
		return NewECDHGroup(GroupX25519, ecdh.X25519()), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownGroup, name)
	}
}

// RFC 3526 group 14.
const modp2048Hex = "FFFFFFFFFFFFFFFFC90FDAA22168C234C4C6628B80DC1CD1" +
	"29024E088A67CC74020BBEA63B139B22514A08798E3404DD" +
	"EF9519B3CD3A431B302B0A6DF25F14374FE1356D6D51C245" +
	"E485B576625E7EC6F44C42E9A637ED6B0BFF5CB6F406B7ED" +
	"EE386BFB5A899FA5AE9F24117C4B1FE649286651ECE45B3D" +
	"C2007CB8A163BF0598DA48361C55D39A69163FA8FD24CF5F" +
	"83655D23DCA3AD961C62F356208552BB9ED529077096966D" +
	"670C354E4ABC9804F1746C08CA18217C32905E462E36CE3B" +
	"E39E772C180E86039B2783A2EC07A28FB5C55DF06F4C52C9" +
	"DE2BCBF6955817183995497CEA956AE515D2261898FA0510" +
	"15728E5A8AACAA68FFFFFFFFFFFFFFFF"

type modpGroup struct {
	name string
	p    *big.Int
	g    *big.Int
	size int
}

// MODP2048 returns the 2048-bit finite-field Diffie-Hellman group.
func MODP2048() Group {
	p, _ := new(big.Int).SetString(modp2048Hex, 16)
	return NewMODPGroup(GroupMODP2048, p, big.NewInt(2))
}

// NewMODPGroup builds a finite-field group from a prime and generator.
func NewMODPGroup(name string, p, g *big.Int) Group {
	return &modpGroup{name: name, p: p, g: g, size: (p.BitLen() + 7) / 8}
}

func (m *modpGroup) Name() string { return m.name }

func (m *modpGroup) Parameters() (string, string) {
	return hex.EncodeToString(m.p.Bytes()), hex.EncodeToString(m.g.Bytes())
}

func (m *modpGroup) GenerateKey(random io.Reader) (KeyPair, error) {
	if random == nil {
		random = rand.Reader
	}
	// x in [2, p-2]
	limit := new(big.Int).Sub(m.p, big.NewInt(3))
	x, err := rand.Int(random, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to generate private exponent: %w", err)
	}
	x.Add(x, big.NewInt(2))
	return &modpKeyPair{
		group: m,
		x:     x,
		y:     new(big.Int).Exp(m.g, x, m.p),
	}, nil
}

type modpKeyPair struct {
	group *modpGroup
	x     *big.Int
	y     *big.Int
}

func (k *modpKeyPair) PublicKey() string {
	return hex.EncodeToString(k.y.Bytes())
}

func (k *modpKeyPair) SharedSecret(peerPublic string) ([]byte, error) {
	if k.x == nil {
		return nil, errors.New("key pair destroyed")
	}
	raw, err := hex.DecodeString(strings.TrimSpace(peerPublic))
	if err != nil || len(raw) == 0 {
		return nil, fmt.Errorf("%w: expected hex encoding", ErrInvalidPublicKey)
	}
	peer := new(big.Int).SetBytes(raw)
	upper := new(big.Int).Sub(k.group.p, big.NewInt(1))
	if peer.Cmp(big.NewInt(1)) <= 0 || peer.Cmp(upper) >= 0 {
		return nil, fmt.Errorf("%w: value out of range", ErrInvalidPublicKey)
	}
	secret := new(big.Int).Exp(peer, k.x, k.group.p)
	// left-pad to the prime length
	return secret.FillBytes(make([]byte, k.group.size)), nil
}

func (k *modpKeyPair) Destroy() {
	if k.x != nil {
		k.x.SetInt64(0)
	}
	k.x = nil
}

type ecdhGroup struct {
	name  string
	curve ecdh.Curve
}

// NewECDHGroup wraps a crypto/ecdh curve. Public values travel as standard
// base64 of the raw encoding.
func NewECDHGroup(name string, curve ecdh.Curve) Group {
	return &ecdhGroup{name: name, curve: curve}
}

func (e *ecdhGroup) Name() string { return e.name }

func (e *ecdhGroup) Parameters() (string, string) { return "", "" }

func (e *ecdhGroup) GenerateKey(random io.Reader) (KeyPair, error) {
	if random == nil {
		random = rand.Reader
	}
	priv, err := e.curve.GenerateKey(random)
	if err != nil {
		return nil, fmt.Errorf("failed to generate %s key: %w", e.name, err)
	}
	return &ecdhKeyPair{curve: e.curve, priv: priv}, nil
}

type ecdhKeyPair struct {
	curve ecdh.Curve
	priv  *ecdh.PrivateKey
}

func (k *ecdhKeyPair) PublicKey() string {
	return base64.StdEncoding.EncodeToString(k.priv.PublicKey().Bytes())
}

func (k *ecdhKeyPair) SharedSecret(peerPublic string) ([]byte, error) {
	if k.priv == nil {
		return nil, errors.New("key pair destroyed")
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(peerPublic))
	if err != nil {
		return nil, fmt.Errorf("%w: expected base64 encoding", ErrInvalidPublicKey)
	}
	pub, err := k.curve.NewPublicKey(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPublicKey, err)
	}
	secret, err := k.priv.ECDH(pub)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPublicKey, err)
	}
	return secret, nil
}

func (k *ecdhKeyPair) Destroy() {
	k.priv = nil
}
