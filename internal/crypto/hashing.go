package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"

	"github.com/hengadev/rxseal/internal/security"
)

var ErrEmptySigningSecret = errors.New("signing secret cannot be empty")

// Signer computes and verifies HMAC-SHA256 tags keyed by a server-held secret.
type Signer struct {
	secret []byte
}

// NewSigner creates a Signer. The secret is copied.
func NewSigner(secret []byte) (*Signer, error) {
	if len(secret) == 0 {
		return nil, ErrEmptySigningSecret
	}
	s := make([]byte, len(secret))
	copy(s, secret)
	return &Signer{secret: s}, nil
}

// Sign returns the lowercase hex HMAC-SHA256 of data.
func (s *Signer) Sign(data string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(data))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify recomputes the tag for data and compares it with tag.
// An empty tag is never valid.
func (s *Signer) Verify(data, tag string) bool {
	if tag == "" {
		return false
	}
	return security.ConstantTimeEq([]byte(s.Sign(data)), []byte(tag))
}

// PrescriptionPayload builds the signed string for a prescription.
//
// Fields are concatenated without delimiters, so moving characters between
// adjacent fields yields the same payload. Already issued signatures depend on
// this layout.
func PrescriptionPayload(diagnosis, medicines, advice, recordID string) string {
	return diagnosis + medicines + advice + recordID
}
