package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hengadev/rxseal/internal/prescription"
)

var secret = []byte("test-jwt-secret")

func TestVerifier_IssueVerify(t *testing.T) {
	v, err := NewVerifier(secret, WithIssuer("rxseal"))
	require.NoError(t, err)

	token, err := v.Issue(prescription.Actor{ID: "doc-1", Role: prescription.RoleDoctor}, time.Hour)
	require.NoError(t, err)

	actor, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "doc-1", actor.ID)
	assert.Equal(t, prescription.RoleDoctor, actor.Role)
}

func TestVerifier_Rejects(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	v, err := NewVerifier(secret, WithClock(func() time.Time { return now }))
	require.NoError(t, err)

	other, err := NewVerifier([]byte("another-secret"), WithClock(func() time.Time { return now }))
	require.NoError(t, err)
	foreign, err := other.Issue(prescription.Actor{ID: "x", Role: prescription.RoleAdmin}, time.Hour)
	require.NoError(t, err)

	expired, err := v.Issue(prescription.Actor{ID: "x", Role: prescription.RoleAdmin}, -time.Minute)
	require.NoError(t, err)

	badRole, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Role:             "nurse",
		RegisteredClaims: jwt.RegisteredClaims{Subject: "x"},
	}).SignedString(secret)
	require.NoError(t, err)

	noSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{Role: "admin"}).SignedString(secret)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{"garbage", "not.a.token"},
		{"wrong secret", foreign},
		{"expired", expired},
		{"unknown role", badRole},
		{"no subject", noSubject},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Verify(tt.token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestVerifier_IssuerMismatch(t *testing.T) {
	issuer, err := NewVerifier(secret, WithIssuer("someone-else"))
	require.NoError(t, err)
	token, err := issuer.Issue(prescription.Actor{ID: "p", Role: prescription.RolePatient}, time.Hour)
	require.NoError(t, err)

	v, err := NewVerifier(secret, WithIssuer("rxseal"))
	require.NoError(t, err)
	_, err = v.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestNewVerifier_EmptySecret(t *testing.T) {
	_, err := NewVerifier(nil)
	assert.ErrorIs(t, err, ErrEmptySecret)
}

func TestMiddleware(t *testing.T) {
	v, err := NewVerifier(secret)
	require.NoError(t, err)
	token, err := v.Issue(prescription.Actor{ID: "adm-1", Role: prescription.RoleAdmin}, time.Hour)
	require.NoError(t, err)

	var seen prescription.Actor
	handler := Middleware(v, func(w http.ResponseWriter, r *http.Request, err error) {
		w.WriteHeader(http.StatusUnauthorized)
	})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = ActorFrom(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, prescription.Actor{ID: "adm-1", Role: prescription.RoleAdmin}, seen)

	for _, header := range []string{"", "Basic abc", "Bearer "} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, header)
	}
}
