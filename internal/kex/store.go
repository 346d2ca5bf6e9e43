package kex

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hengadev/rxseal/internal/crypto"
)

// DefaultSessionTTL bounds how long an exchange state and its key are kept.
const DefaultSessionTTL = 30 * time.Minute

var (
	ErrInvalidSessionID = errors.New("invalid session id")
	ErrTooManySessions  = errors.New("too many key exchange sessions")
)

// Store holds key exchange sessions keyed by session id. Distinct ids never
// share key material.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*Session

	group       Group
	kdf         KDF
	ttl         time.Duration
	maxSessions int
	now         func() time.Time
	random      io.Reader
}

type StoreOption func(*Store)

// WithTTL sets the session lifetime. Zero disables expiry.
func WithTTL(ttl time.Duration) StoreOption {
	return func(s *Store) { s.ttl = ttl }
}

// WithMaxSessions caps the number of tracked sessions. New ids are refused
// with ErrTooManySessions once the cap is reached and no session has expired.
// Zero means unlimited.
func WithMaxSessions(n int) StoreOption {
	return func(s *Store) { s.maxSessions = n }
}

// WithKDF selects the session key derivation.
func WithKDF(kdf KDF) StoreOption {
	return func(s *Store) { s.kdf = kdf }
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) { s.now = now }
}

// WithRandom overrides the entropy source.
func WithRandom(r io.Reader) StoreOption {
	return func(s *Store) { s.random = r }
}

// NewStore creates a session store using group for new exchanges.
func NewStore(group Group, opts ...StoreOption) *Store {
	s := &Store{
		sessions: make(map[string]*Session),
		group:    group,
		kdf:      KDFSHA256,
		ttl:      DefaultSessionTTL,
		now:      time.Now,
		random:   rand.Reader,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Init starts (or restarts) the exchange for sessionID. An empty id allocates
// a new one. Restarting discards the previous key pair and session key.
func (s *Store) Init(ctx context.Context, sessionID string) (string, Params, error) {
	return s.InitGroup(ctx, sessionID, nil)
}

// InitGroup is Init with a per-session group; nil selects the store default.
// Restarting a session with a different group replaces its group.
func (s *Store) InitGroup(ctx context.Context, sessionID string, group Group) (string, Params, error) {
	if err := ctx.Err(); err != nil {
		return "", Params{}, err
	}
	if sessionID == "" {
		sessionID = uuid.NewString()
	} else if _, err := uuid.Parse(sessionID); err != nil {
		return "", Params{}, fmt.Errorf("%w: %w", ErrInvalidSessionID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if group == nil {
		group = s.group
	}
	sess, ok := s.sessions[sessionID]
	if !ok && s.full() {
		return "", Params{}, fmt.Errorf("%w: limit %d", ErrTooManySessions, s.maxSessions)
	}
	if !ok || sess.Group().Name() != group.Name() {
		if ok {
			sess.Destroy()
		}
		sess = NewSession(sessionID, group, s.kdf)
	}
	params, err := sess.Init(s.random)
	if err != nil {
		return "", Params{}, err
	}
	now := s.now()
	sess.CreatedAt = now
	sess.ExpiresAt = s.expiry(now)
	s.sessions[sessionID] = sess
	return sessionID, params, nil
}

// Complete finishes the exchange for sessionID.
func (s *Store) Complete(ctx context.Context, sessionID, clientPublic string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.lookup(sessionID)
	if err != nil {
		return err
	}
	if err := sess.Complete(clientPublic); err != nil {
		return err
	}
	sess.ExpiresAt = s.expiry(s.now())
	return nil
}

// Key returns the established key for sessionID.
func (s *Store) Key(sessionID string) (crypto.Key, bool) {
	if sessionID == "" {
		return crypto.Key{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.lookup(sessionID)
	if err != nil {
		return crypto.Key{}, false
	}
	return sess.Key()
}

// State reports the state of sessionID; absent or expired sessions are Uninitialized.
func (s *Store) State(sessionID string) State {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.lookup(sessionID)
	if err != nil {
		return Uninitialized
	}
	return sess.State()
}

// Drop wipes and forgets sessionID.
func (s *Store) Drop(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[sessionID]; ok {
		sess.Destroy()
		delete(s.sessions, sessionID)
	}
}

// Sweep removes sessions expired at now and returns how many were removed.
func (s *Store) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sweepLocked(now)
}

func (s *Store) sweepLocked(now time.Time) int {
	n := 0
	for id, sess := range s.sessions {
		if s.expired(sess, now) {
			sess.Destroy()
			delete(s.sessions, id)
			n++
		}
	}
	return n
}

// GroupName returns the group of sessionID, or "" when it is not tracked.
func (s *Store) GroupName(sessionID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[sessionID]; ok {
		return sess.Group().Name()
	}
	return ""
}

// full reports whether a new session would exceed the cap, dropping expired
// sessions first. It must be called with mu held.
func (s *Store) full() bool {
	if s.maxSessions <= 0 || len(s.sessions) < s.maxSessions {
		return false
	}
	s.sweepLocked(s.now())
	return len(s.sessions) >= s.maxSessions
}

// Len returns the number of tracked sessions, expired ones included.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Run sweeps expired sessions every interval until ctx is done.
func (s *Store) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(s.now())
		}
	}
}

// lookup must be called with mu held. Expired sessions are wiped but stay
// tracked until Sweep, so every caller sees ErrSessionExpired.
func (s *Store) lookup(sessionID string) (*Session, error) {
	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrNotInitialized
	}
	if s.expired(sess, s.now()) {
		sess.Destroy()
		return nil, fmt.Errorf("%w: %w", ErrNotInitialized, ErrSessionExpired)
	}
	return sess, nil
}

func (s *Store) expiry(now time.Time) time.Time {
	if s.ttl <= 0 {
		return time.Time{}
	}
	return now.Add(s.ttl)
}

func (s *Store) expired(sess *Session, now time.Time) bool {
	return !sess.ExpiresAt.IsZero() && !now.Before(sess.ExpiresAt)
}
