// Package fieldcipher encrypts individual prescription fields under either the
// static server key or a negotiated session key.
package fieldcipher

import (
	"errors"
	"fmt"

	"github.com/hengadev/rxseal/internal/crypto"
)

// Mode tags a CipherContext.
type Mode int

const (
	ModeStatic Mode = iota
	ModeSession
)

func (m Mode) String() string {
	if m == ModeSession {
		return "session"
	}
	return "static"
}

// CipherContext selects the key used for a field operation. The zero value is
// the static context.
type CipherContext struct {
	mode Mode
	key  crypto.Key
}

// Static returns the context that uses the server's static key.
func Static() CipherContext { return CipherContext{mode: ModeStatic} }

// Session returns a context bound to a negotiated session key.
func Session(key crypto.Key) CipherContext {
	return CipherContext{mode: ModeSession, key: key}
}

// Mode reports which key the context selects.
func (c CipherContext) Mode() Mode { return c.mode }

// Field is the outcome of decrypting one field. Unreadable is set whenever the
// text could not be recovered; Err then says why.
type Field struct {
	Text       string
	Unreadable bool
	Err        error
}

// Malformed reports whether the failure came from the ciphertext itself
// (bad encoding, wrong key, corrupt padding) rather than an internal error.
func (f Field) Malformed() bool {
	return errors.Is(f.Err, crypto.ErrMalformedCiphertext) || errors.Is(f.Err, crypto.ErrEmptyCiphertext)
}

// Facade encrypts and decrypts fields, choosing the key from a CipherContext.
type Facade struct {
	cipher    *crypto.SymmetricCipher
	staticKey crypto.Key
}

// New creates a Facade with the given static key.
func New(cipher *crypto.SymmetricCipher, staticKey crypto.Key) *Facade {
	if cipher == nil {
		cipher = crypto.NewSymmetricCipher(nil)
	}
	return &Facade{cipher: cipher, staticKey: staticKey}
}

// EncryptField encrypts plaintext. The session context uses a random IV;
// the static context keeps the fixed-IV legacy format. Empty plaintext still
// produces a padded block, so DecryptField round-trips it.
func (f *Facade) EncryptField(cc CipherContext, plaintext string) (string, error) {
	switch cc.mode {
	case ModeSession:
		return f.cipher.EncryptRandomIV(plaintext, cc.key)
	case ModeStatic:
		return f.cipher.EncryptFixedIV(plaintext, f.staticKey)
	default:
		return "", fmt.Errorf("unknown cipher mode %d", cc.mode)
	}
}

// DecryptField decrypts a field and never fails: problems are reported through
// Field.Unreadable. The ciphertext layout picks the IV policy; random-IV blobs
// use the session key when one is in context, fixed-IV blobs always use the
// static key.
func (f *Facade) DecryptField(cc CipherContext, ciphertext string) Field {
	if ciphertext == "" {
		return Field{Unreadable: true, Err: crypto.ErrEmptyCiphertext}
	}

	var (
		text string
		err  error
	)
	if crypto.HasRandomIV(ciphertext) {
		key := f.staticKey
		if cc.mode == ModeSession {
			key = cc.key
		}
		text, err = f.cipher.DecryptRandomIV(ciphertext, key)
	} else {
		text, err = f.cipher.DecryptFixedIV(ciphertext, f.staticKey)
	}
	if err != nil {
		return Field{Unreadable: true, Err: err}
	}
	return Field{Text: text}
}

// DecryptOptional decrypts a field that may legitimately be empty, such as advice.
func (f *Facade) DecryptOptional(cc CipherContext, ciphertext string) Field {
	if ciphertext == "" {
		return Field{}
	}
	return f.DecryptField(cc, ciphertext)
}
