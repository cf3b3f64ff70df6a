// Package session implements the client's credential store: the bearer token
// with its client-side expiry, and the cached user profile.
//
// The store is an explicit object built once at start-up (NewStore + Init)
// and handed to the components that need it. Both values live in a
// storage.Repository so they survive restarts; the profile is additionally
// cached in memory.
//
// Guarantees:
//   - Load never returns an expired token. Expiry is checked on every read.
//   - Destroying the token (Clear, or expiry detected by any read) removes
//     the profile in the same storage call.
//   - A profile never outlives its token: LoadUser checks the token first and
//     SaveUser refuses to cache a profile without a live session.
//   - Corrupt persisted data reads as "absent" and is purged; it is logged,
//     never returned as an error.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/client/storage"
	"github.com/dmitrijs2005/gophauth/internal/logging"
)

// Storage keys.
const (
	KeyToken = "token"
	KeyUser  = "user"
)

// ErrNoSession is returned when a profile is saved without a live token.
var ErrNoSession = errors.New("no active session")

// DefaultExpiryDays is the client-side token lifetime when none is configured.
const DefaultExpiryDays = 7

type Store struct {
	repo   storage.Repository
	expiry time.Duration
	now    func() time.Time
	log    logging.Logger

	mu         sync.Mutex
	user       *User
	userCached bool // user reflects durable state (including "no user")
}

type Option func(*Store)

// WithExpiryDays sets the client-side token lifetime. Values below 1 keep the
// default.
func WithExpiryDays(days int) Option {
	return func(s *Store) {
		if days > 0 {
			s.expiry = time.Duration(days) * 24 * time.Hour
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func WithLogger(l logging.Logger) Option {
	return func(s *Store) { s.log = l }
}

func NewStore(repo storage.Repository, opts ...Option) *Store {
	s := &Store{
		repo:   repo,
		expiry: DefaultExpiryDays * 24 * time.Hour,
		now:    time.Now,
		log:    logging.Nop(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Init reconciles persisted state at start-up: an expired or corrupt token is
// purged together with the profile, and a profile without a token is dropped.
// On a live session the profile is loaded into memory.
func (s *Store) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.loadTokenLocked(ctx); !ok {
		return s.clearLocked(ctx)
	}
	s.loadUserLocked(ctx)
	return nil
}

// Save stores token with expiry now+ExpiryDays, replacing any previous token.
// An empty token is ignored.
func (s *Store) Save(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	raw, err := s.encodeToken(token)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.repo.Set(ctx, KeyToken, raw)
}

// Load returns the bearer token if one is stored and not expired. Otherwise
// it purges whatever is stored and reports false.
func (s *Store) Load(ctx context.Context) (string, bool) {
	t, ok := s.Token(ctx)
	return t.Value, ok
}

// Token is Load returning the full record including the expiry instant.
func (s *Store) Token(ctx context.Context) (Token, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.loadTokenLocked(ctx)
	if !ok {
		return Token{}, false
	}
	return t, true
}

// SaveUser replaces the cached profile. A nil user is ignored. Without a live
// token it fails with ErrNoSession; use SaveSession to store both.
func (s *Store) SaveUser(ctx context.Context, u *User) error {
	if u == nil {
		return nil
	}
	raw, err := json.Marshal(u)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.loadTokenLocked(ctx); !ok {
		return ErrNoSession
	}
	if err := s.repo.Set(ctx, KeyUser, raw); err != nil {
		return err
	}
	s.user, s.userCached = u.clone(), true
	return nil
}

// LoadUser returns a copy of the cached profile, reading durable storage only
// on the first call after construction or after the cache was invalidated.
// Without a live token it reports false and drops any leftover profile.
func (s *Store) LoadUser(ctx context.Context) (*User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.loadTokenLocked(ctx); !ok {
		if s.user != nil || !s.userCached {
			s.purgeLocked(ctx)
		}
		return nil, false
	}
	u := s.loadUserLocked(ctx)
	return u.clone(), u != nil
}

// SaveSession writes token and/or user in a single storage batch. Empty token
// or nil user leave the corresponding value untouched. A user without a token
// needs a live session, as with SaveUser.
func (s *Store) SaveSession(ctx context.Context, token string, u *User) error {
	batch := make(map[string][]byte, 2)
	if token != "" {
		raw, err := s.encodeToken(token)
		if err != nil {
			return err
		}
		batch[KeyToken] = raw
	}
	if u != nil {
		raw, err := json.Marshal(u)
		if err != nil {
			return err
		}
		batch[KeyUser] = raw
	}
	if len(batch) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if token == "" {
		if _, ok := s.loadTokenLocked(ctx); !ok {
			return ErrNoSession
		}
	}
	if err := s.repo.SetMany(ctx, batch); err != nil {
		return err
	}
	if u != nil {
		s.user, s.userCached = u.clone(), true
	}
	return nil
}

// Clear removes token and profile together. It is idempotent.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clearLocked(ctx)
}

// Authenticated reports whether a usable token is stored.
func (s *Store) Authenticated(ctx context.Context) bool {
	_, ok := s.Load(ctx)
	return ok
}

func (s *Store) encodeToken(token string) ([]byte, error) {
	rec := tokenRecord{Value: token, Expiry: s.now().Add(s.expiry).UnixMilli()}
	return json.Marshal(rec)
}

func (s *Store) loadTokenLocked(ctx context.Context) (Token, bool) {
	raw, err := s.repo.Get(ctx, KeyToken)
	if err != nil {
		s.log.Warn(ctx, "token read failed", "error", err)
		return Token{}, false
	}
	if raw == nil {
		return Token{}, false
	}

	var rec tokenRecord
	if err := json.Unmarshal(raw, &rec); err != nil || rec.Value == "" {
		s.log.Warn(ctx, "discarding malformed stored token")
		s.purgeLocked(ctx)
		return Token{}, false
	}

	t := Token{Value: rec.Value, Expiry: time.UnixMilli(rec.Expiry)}
	if t.Expired(s.now()) {
		s.log.Info(ctx, "stored token expired", "expiry", t.Expiry)
		s.purgeLocked(ctx)
		return Token{}, false
	}
	return t, true
}

func (s *Store) loadUserLocked(ctx context.Context) *User {
	if s.userCached {
		return s.user
	}

	raw, err := s.repo.Get(ctx, KeyUser)
	if err != nil {
		s.log.Warn(ctx, "profile read failed", "error", err)
		return nil
	}
	if raw == nil {
		s.user, s.userCached = nil, true
		return nil
	}

	var u User
	if err := json.Unmarshal(raw, &u); err != nil {
		s.log.Warn(ctx, "discarding malformed stored profile")
		if err := s.repo.Delete(ctx, KeyUser); err != nil {
			s.log.Warn(ctx, "profile purge failed", "error", err)
		}
		s.user, s.userCached = nil, true
		return nil
	}
	s.user, s.userCached = &u, true
	return s.user
}

// purgeLocked is clearLocked for read paths, where failures are only logged.
func (s *Store) purgeLocked(ctx context.Context) {
	if err := s.clearLocked(ctx); err != nil {
		s.log.Warn(ctx, "session purge failed", "error", err)
	}
}

func (s *Store) clearLocked(ctx context.Context) error {
	s.user, s.userCached = nil, true
	return s.repo.Delete(ctx, KeyToken, KeyUser)
}
