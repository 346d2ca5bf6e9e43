package security

import (
	"crypto/subtle"
	"runtime"
)

// ZeroBytes overwrites a byte slice holding key material.
//
// Go strings cannot be wiped, so secrets that must be erased are kept as []byte.
func ZeroBytes(data []byte) {
	if len(data) == 0 {
		return
	}
	for _, pattern := range []byte{0xFF, 0xAA, 0x55, 0x00} {
		for i := range data {
			data[i] = pattern
		}
		runtime.KeepAlive(data)
	}
}

// ZeroKey wipes a fixed-size 32-byte key in place.
func ZeroKey(key *[32]byte) {
	if key == nil {
		return
	}
	ZeroBytes(key[:])
}

// ConstantTimeEq reports whether a and b are equal without leaking where they differ.
func ConstantTimeEq(a, b []byte) bool {
	return subtle.ConstantTimeCompare(a, b) == 1
}

// SecureCopy returns an independent copy of src, or nil when src is empty.
func SecureCopy(src []byte) []byte {
	if len(src) == 0 {
		return nil
	}
	dst := make([]byte, len(src))
	copy(dst, src)
	return dst
}
