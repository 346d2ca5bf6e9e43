package fieldcipher

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hengadev/rxseal/internal/crypto"
)

func newFacade() *Facade {
	return New(crypto.NewSymmetricCipher(nil), crypto.DeriveKey("medicare-secret-key"))
}

func TestCipherContext_ZeroValueIsStatic(t *testing.T) {
	var cc CipherContext
	assert.Equal(t, ModeStatic, cc.Mode())
	assert.Equal(t, ModeSession, Session(crypto.DeriveKey("s")).Mode())
	assert.Equal(t, "session", ModeSession.String())
	assert.Equal(t, "static", ModeStatic.String())
}

func TestFacade_StaticFallbackRoundTrip(t *testing.T) {
	f := newFacade()

	for _, p := range []string{"", "flu", "paracetamol 500mg", "rest: 3 days"} {
		ct, err := f.EncryptField(Static(), p)
		require.NoError(t, err)
		assert.False(t, crypto.HasRandomIV(ct))

		got := f.DecryptField(Static(), ct)
		assert.False(t, got.Unreadable)
		assert.Equal(t, p, got.Text)
	}
}

func TestFacade_SessionRoundTrip(t *testing.T) {
	f := newFacade()
	cc := Session(crypto.DeriveKey("negotiated"))

	ct, err := f.EncryptField(cc, "flu")
	require.NoError(t, err)
	assert.True(t, crypto.HasRandomIV(ct))

	got := f.DecryptField(cc, ct)
	assert.False(t, got.Unreadable)
	assert.Equal(t, "flu", got.Text)
}

func TestFacade_StaticRecordsReadableFromSession(t *testing.T) {
	f := newFacade()

	ct, err := f.EncryptField(Static(), "flu")
	require.NoError(t, err)

	got := f.DecryptField(Session(crypto.DeriveKey("any")), ct)
	assert.False(t, got.Unreadable)
	assert.Equal(t, "flu", got.Text)
}

func TestFacade_SessionRecordUnderOtherKeyIsUnreadableOrDifferent(t *testing.T) {
	f := newFacade()

	ct, err := f.EncryptField(Session(crypto.DeriveKey("a")), "paracetamol")
	require.NoError(t, err)

	for _, cc := range []CipherContext{Static(), Session(crypto.DeriveKey("b"))} {
		got := f.DecryptField(cc, ct)
		if !got.Unreadable {
			assert.NotEqual(t, "paracetamol", got.Text)
		}
	}
}

func TestFacade_EmptyFields(t *testing.T) {
	f := newFacade()

	for name, cc := range map[string]CipherContext{
		"static":  Static(),
		"session": Session(crypto.DeriveKey("negotiated")),
	} {
		ct, err := f.EncryptField(cc, "")
		require.NoError(t, err, name)
		assert.NotEmpty(t, ct, name)

		got := f.DecryptField(cc, ct)
		assert.False(t, got.Unreadable, name)
		assert.Empty(t, got.Text, name)
	}

	got := f.DecryptField(Static(), "")
	assert.True(t, got.Unreadable)
	assert.True(t, got.Malformed())

	opt := f.DecryptOptional(Static(), "")
	assert.False(t, opt.Unreadable)
	assert.Empty(t, opt.Text)
}

func TestFacade_MalformedCiphertext(t *testing.T) {
	f := newFacade()

	for _, ct := range []string{"zz", "abcd", "00:11", "not:hex:at:all"} {
		got := f.DecryptField(Static(), ct)
		assert.True(t, got.Unreadable, ct)
		assert.True(t, got.Malformed(), ct)
		assert.Empty(t, got.Text)
	}
}
