// Package auth verifies bearer tokens and carries the resulting actor through
// request contexts.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hengadev/rxseal/internal/prescription"
)

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid token")
	ErrEmptySecret  = errors.New("token secret cannot be empty")
)

// Claims is the token payload: the standard claims plus the caller's role.
// The subject is the actor id.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Verifier validates HS256 tokens.
type Verifier struct {
	secret []byte
	issuer string
	now    func() time.Time
}

type Option func(*Verifier)

// WithIssuer requires and stamps the iss claim.
func WithIssuer(issuer string) Option {
	return func(v *Verifier) { v.issuer = issuer }
}

// WithClock overrides the clock used for expiry checks and issuing.
func WithClock(now func() time.Time) Option {
	return func(v *Verifier) { v.now = now }
}

// NewVerifier creates a Verifier for the shared secret.
func NewVerifier(secret []byte, opts ...Option) (*Verifier, error) {
	if len(secret) == 0 {
		return nil, ErrEmptySecret
	}
	v := &Verifier{secret: append([]byte(nil), secret...), now: time.Now}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// Verify parses token and returns the actor it names.
func (v *Verifier) Verify(token string) (prescription.Actor, error) {
	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(v.now),
	}
	if v.issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(v.issuer))
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, parserOpts...)
	if err != nil || !parsed.Valid {
		return prescription.Actor{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	role := prescription.Role(strings.ToLower(claims.Role))
	if !role.Valid() {
		return prescription.Actor{}, fmt.Errorf("%w: unknown role '%s'", ErrInvalidToken, claims.Role)
	}
	if claims.Subject == "" {
		return prescription.Actor{}, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return prescription.Actor{ID: claims.Subject, Role: role}, nil
}

// Authenticate extracts and verifies the bearer token on r.
func (v *Verifier) Authenticate(r *http.Request) (prescription.Actor, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return prescription.Actor{}, ErrMissingToken
	}
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || strings.TrimSpace(token) == "" {
		return prescription.Actor{}, ErrMissingToken
	}
	return v.Verify(strings.TrimSpace(token))
}

// Issue mints a token for actor valid for ttl.
func (v *Verifier) Issue(actor prescription.Actor, ttl time.Duration) (string, error) {
	now := v.now()
	claims := Claims{
		Role: string(actor.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.ID,
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

type actorKey struct{}

// WithActor stores actor in ctx.
func WithActor(ctx context.Context, actor prescription.Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFrom returns the actor stored by WithActor.
func ActorFrom(ctx context.Context) (prescription.Actor, bool) {
	actor, ok := ctx.Value(actorKey{}).(prescription.Actor)
	return actor, ok
}

// Middleware authenticates every request and stores the actor in its context.
// Failures are handed to onError and the request goes no further.
func Middleware(v *Verifier, onError func(w http.ResponseWriter, r *http.Request, err error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, err := v.Authenticate(r)
			if err != nil {
				onError(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
		})
	}
}
