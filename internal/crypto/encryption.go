package crypto

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
)

const (
	// KeySize is the AES-256 key length in bytes.
	KeySize = 32
	// IVSize is the CBC initialization vector length in bytes.
	IVSize = aes.BlockSize

	ivSeparator = ":"
)

var (
	ErrEmptyCiphertext     = errors.New("empty ciphertext")
	ErrMalformedCiphertext = errors.New("malformed ciphertext")
	ErrInvalidIV           = errors.New("invalid initialization vector")
)

// Key is a fixed-size AES-256 key.
type Key [KeySize]byte

// DeriveKey hashes a passphrase into an AES-256 key with SHA-256.
func DeriveKey(passphrase string) Key {
	return sha256.Sum256([]byte(passphrase))
}

// KeyFromBytes copies raw key material into a Key.
func KeyFromBytes(b []byte) (Key, error) {
	var k Key
	if len(b) != KeySize {
		return k, fmt.Errorf("invalid key length: expected %d, got %d", KeySize, len(b))
	}
	copy(k[:], b)
	return k, nil
}

// zeroIV is the all-zero IV of the legacy static path. Identical plaintexts
// under the same key produce identical ciphertexts with it.
var zeroIV = make([]byte, IVSize)

// SymmetricCipher performs AES-256-CBC encryption with PKCS#7 padding.
type SymmetricCipher struct {
	random io.Reader
}

// NewSymmetricCipher creates a SymmetricCipher. A nil reader uses crypto/rand.
func NewSymmetricCipher(random io.Reader) *SymmetricCipher {
	if random == nil {
		random = rand.Reader
	}
	return &SymmetricCipher{random: random}
}

// Encrypt encrypts plaintext with the given key and IV.
func (c *SymmetricCipher) Encrypt(plaintext []byte, key Key, iv []byte) ([]byte, error) {
	if len(iv) != IVSize {
		return nil, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidIV, IVSize, len(iv))
	}
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}
	padded := pad(plaintext)
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, padded)
	return out, nil
}

// Decrypt decrypts ciphertext with the given key and IV.
func (c *SymmetricCipher) Decrypt(ciphertext []byte, key Key, iv []byte) ([]byte, error) {
	if len(iv) != IVSize {
		return nil, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidIV, IVSize, len(iv))
	}
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("%w: length %d is not a positive multiple of the block size", ErrMalformedCiphertext, len(ciphertext))
	}
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}
	out := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, ciphertext)
	return unpad(out)
}

// EncryptFixedIV encrypts with the all-zero IV and returns lowercase hex.
func (c *SymmetricCipher) EncryptFixedIV(plaintext string, key Key) (string, error) {
	ct, err := c.Encrypt([]byte(plaintext), key, zeroIV)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(ct), nil
}

// DecryptFixedIV reverses EncryptFixedIV.
func (c *SymmetricCipher) DecryptFixedIV(ciphertext string, key Key) (string, error) {
	if ciphertext == "" {
		return "", ErrEmptyCiphertext
	}
	raw, err := hex.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrMalformedCiphertext, err)
	}
	pt, err := c.Decrypt(raw, key, zeroIV)
	if err != nil {
		return "", err
	}
	return string(pt), nil
}

// EncryptRandomIV encrypts with a fresh IV and returns "hex(iv):hex(ciphertext)".
func (c *SymmetricCipher) EncryptRandomIV(plaintext string, key Key) (string, error) {
	iv := make([]byte, IVSize)
	if _, err := io.ReadFull(c.random, iv); err != nil {
		return "", fmt.Errorf("failed to generate IV: %w", err)
	}
	ct, err := c.Encrypt([]byte(plaintext), key, iv)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(iv) + ivSeparator + hex.EncodeToString(ct), nil
}

// DecryptRandomIV reverses EncryptRandomIV.
func (c *SymmetricCipher) DecryptRandomIV(ciphertext string, key Key) (string, error) {
	if ciphertext == "" {
		return "", ErrEmptyCiphertext
	}
	ivHex, ctHex, ok := strings.Cut(ciphertext, ivSeparator)
	if !ok {
		return "", fmt.Errorf("%w: missing IV separator", ErrMalformedCiphertext)
	}
	iv, err := hex.DecodeString(ivHex)
	if err != nil || len(iv) != IVSize {
		return "", fmt.Errorf("%w: bad IV encoding", ErrMalformedCiphertext)
	}
	raw, err := hex.DecodeString(ctHex)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrMalformedCiphertext, err)
	}
	pt, err := c.Decrypt(raw, key, iv)
	if err != nil {
		return "", err
	}
	return string(pt), nil
}

// HasRandomIV reports whether ciphertext uses the "iv:ciphertext" layout.
func HasRandomIV(ciphertext string) bool {
	return strings.Contains(ciphertext, ivSeparator)
}

func pad(b []byte) []byte {
	n := aes.BlockSize - len(b)%aes.BlockSize
	return append(bytes.Clone(b), bytes.Repeat([]byte{byte(n)}, n)...)
}

func unpad(b []byte) ([]byte, error) {
	n := int(b[len(b)-1])
	if n == 0 || n > aes.BlockSize || n > len(b) {
		return nil, fmt.Errorf("%w: bad padding", ErrMalformedCiphertext)
	}
	for _, v := range b[len(b)-n:] {
		if int(v) != n {
			return nil, fmt.Errorf("%w: bad padding", ErrMalformedCiphertext)
		}
	}
	return b[:len(b)-n], nil
}
