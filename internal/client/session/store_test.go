package session

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/client/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---- helpers ----

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newStore(t *testing.T, opts ...Option) (*Store, *storage.MemoryRepository, *fakeClock) {
	t.Helper()
	repo := storage.NewMemoryRepository()
	clk := newClock()
	s := NewStore(repo, append([]Option{WithClock(clk.Now)}, opts...)...)
	return s, repo, clk
}

// stored counts the session keys present in repo.
func stored(t *testing.T, repo storage.Repository) int {
	t.Helper()
	n := 0
	for _, k := range []string{KeyToken, KeyUser} {
		v, err := repo.Get(context.Background(), k)
		require.NoError(t, err)
		if v != nil {
			n++
		}
	}
	return n
}

func sampleUser() *User {
	return &User{ID: 42, Name: "Ada", Email: "ada@example.com", AuthType: AuthTypeLocal, IsVerified: true}
}

// brokenRepo fails every call.
type brokenRepo struct{}

var errBroken = errors.New("disk on fire")

func (brokenRepo) Get(context.Context, string) ([]byte, error) { return nil, errBroken }
func (brokenRepo) Set(context.Context, string, []byte) error { return errBroken }
func (brokenRepo) SetMany(context.Context, map[string][]byte) error { return errBroken }
func (brokenRepo) Delete(context.Context, ...string) error { return errBroken }

// ---- tests ----

func TestLoad_FirstVisit_ReturnsNone(t *testing.T) {
	s, _, _ := newStore(t)

	tok, ok := s.Load(context.Background())
	assert.False(t, ok)
	assert.Empty(t, tok)
}

func TestSaveThenLoad(t *testing.T) {
	s, _, clk := newStore(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, "abc"))

	tok, ok := s.Load(ctx)
	require.True(t, ok)
	assert.Equal(t, "abc", tok)

	full, ok := s.Token(ctx)
	require.True(t, ok)
	assert.Equal(t, clk.Now().Add(7*24*time.Hour).UnixMilli(), full.Expiry.UnixMilli())
}

func TestSave_Overwrites(t *testing.T) {
	s, _, _ := newStore(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, "old"))
	require.NoError(t, s.Save(ctx, "new"))

	tok, ok := s.Load(ctx)
	require.True(t, ok)
	assert.Equal(t, "new", tok)
}

func TestSave_EmptyTokenIgnored(t *testing.T) {
	s, repo, _ := newStore(t)

	require.NoError(t, s.Save(context.Background(), ""))
	assert.Zero(t, stored(t, repo))
}

func TestLoad_NeverReturnsExpiredToken(t *testing.T) {
	tests := []struct {
		name    string
		advance time.Duration
		want    bool
	}{
		{"just before expiry", 2*24*time.Hour - time.Millisecond, true},
		{"exactly at expiry", 2 * 24 * time.Hour, false},
		{"after expiry", 3 * 24 * time.Hour, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, repo, clk := newStore(t, WithExpiryDays(2))
			ctx := context.Background()

			require.NoError(t, s.SaveSession(ctx, "abc", sampleUser()))
			clk.Advance(tt.advance)

			_, ok := s.Load(ctx)
			assert.Equal(t, tt.want, ok)
			if !tt.want {
				assert.Zero(t, stored(t, repo), "expired token and its profile must be purged")
				_, hasUser := s.LoadUser(ctx)
				assert.False(t, hasUser)
			}
		})
	}
}

func TestLoad_CorruptTokenTreatedAsAbsent(t *testing.T) {
	s, repo, _ := newStore(t)
	ctx := context.Background()

	for _, raw := range [][]byte{[]byte("{not json"), []byte(`{"value":"","expiry":1}`), []byte(`"just a string"`)} {
		require.NoError(t, repo.Set(ctx, KeyToken, raw))

		tok, ok := s.Load(ctx)
		assert.False(t, ok)
		assert.Empty(t, tok)

		v, err := repo.Get(ctx, KeyToken)
		require.NoError(t, err)
		assert.Nil(t, v, "corrupt token must be purged")
	}
}

func TestLoad_RepositoryErrorIsNotFatal(t *testing.T) {
	s := NewStore(brokenRepo{})

	tok, ok := s.Load(context.Background())
	assert.False(t, ok)
	assert.Empty(t, tok)
}

func TestUser_MemoryCachePreferred(t *testing.T) {
	s, repo, _ := newStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveSession(ctx, "abc", sampleUser()))

	// corrupt durable copy; the in-memory one must still be served
	require.NoError(t, repo.Set(ctx, KeyUser, []byte("garbage")))

	u, ok := s.LoadUser(ctx)
	require.True(t, ok)
	assert.Equal(t, "Ada", u.Name)
}

func TestUser_FallsBackToDurableStorageOnFirstAccess(t *testing.T) {
	repo := storage.NewMemoryRepository()
	ctx := context.Background()

	first := NewStore(repo)
	require.NoError(t, first.SaveSession(ctx, "abc", sampleUser()))

	// fresh process: new store over the same repository
	second := NewStore(repo)
	u, ok := second.LoadUser(ctx)
	require.True(t, ok)
	assert.Equal(t, int64(42), u.ID)
	assert.Equal(t, "ada@example.com", u.Email)
}

func TestUser_ReturnedCopyIsIsolated(t *testing.T) {
	s, _, _ := newStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveSession(ctx, "abc", sampleUser()))

	u, _ := s.LoadUser(ctx)
	u.Name = "mutated"

	again, _ := s.LoadUser(ctx)
	assert.Equal(t, "Ada", again.Name)
}

func TestUser_CorruptProfileTreatedAsAbsent(t *testing.T) {
	repo := storage.NewMemoryRepository()
	ctx := context.Background()
	require.NoError(t, NewStore(repo).Save(ctx, "abc"))
	require.NoError(t, repo.Set(ctx, KeyUser, []byte("{oops")))

	s := NewStore(repo)
	u, ok := s.LoadUser(ctx)
	assert.False(t, ok)
	assert.Nil(t, u)
	assert.Equal(t, 1, stored(t, repo), "only the profile is dropped")
	assert.True(t, s.Authenticated(ctx))
}

func TestUser_ProfileNeverOutlivesToken(t *testing.T) {
	s, repo, clk := newStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveSession(ctx, "abc", sampleUser()))
	clk.Advance(8 * 24 * time.Hour)

	// No Load in between: the profile read alone must notice the expiry.
	u, ok := s.LoadUser(ctx)
	assert.False(t, ok)
	assert.Nil(t, u)
	assert.Zero(t, stored(t, repo))
}

func TestUser_SaveWithoutSessionRefused(t *testing.T) {
	s, repo, _ := newStore(t)
	ctx := context.Background()

	require.ErrorIs(t, s.SaveUser(ctx, sampleUser()), ErrNoSession)
	_, ok := s.LoadUser(ctx)
	assert.False(t, ok)
	assert.Zero(t, stored(t, repo))

	require.NoError(t, s.Save(ctx, "abc"))
	require.NoError(t, s.SaveUser(ctx, sampleUser()))
	u, ok := s.LoadUser(ctx)
	require.True(t, ok)
	assert.Equal(t, "Ada", u.Name)
}

func TestUser_OrphanProfileDroppedOnRead(t *testing.T) {
	repo := storage.NewMemoryRepository()
	ctx := context.Background()
	require.NoError(t, repo.Set(ctx, KeyUser, []byte(`{"id":42,"name":"Ada"}`)))

	_, ok := NewStore(repo).LoadUser(ctx)
	assert.False(t, ok)
	assert.Zero(t, stored(t, repo))
}

func TestClear_RemovesBothAndIsIdempotent(t *testing.T) {
	s, repo, _ := newStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveSession(ctx, "abc", sampleUser()))
	require.NoError(t, s.Clear(ctx))
	require.NoError(t, s.Clear(ctx))

	assert.Zero(t, stored(t, repo))
	_, ok := s.Load(ctx)
	assert.False(t, ok)
	_, ok = s.LoadUser(ctx)
	assert.False(t, ok)
}

func TestSaveSession_PartialValues(t *testing.T) {
	s, _, _ := newStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveSession(ctx, "", nil))
	assert.False(t, s.Authenticated(ctx))
	require.ErrorIs(t, s.SaveSession(ctx, "", sampleUser()), ErrNoSession)

	require.NoError(t, s.SaveSession(ctx, "abc", nil))
	assert.True(t, s.Authenticated(ctx))
	_, ok := s.LoadUser(ctx)
	assert.False(t, ok)

	require.NoError(t, s.SaveSession(ctx, "", sampleUser()))
	tok, _ := s.Load(ctx)
	assert.Equal(t, "abc", tok)
	u, ok := s.LoadUser(ctx)
	require.True(t, ok)
	assert.Equal(t, "Ada", u.Name)
}

func TestInit(t *testing.T) {
	ctx := context.Background()

	t.Run("live session warms profile", func(t *testing.T) {
		repo := storage.NewMemoryRepository()
		require.NoError(t, NewStore(repo).SaveSession(ctx, "abc", sampleUser()))

		s := NewStore(repo)
		require.NoError(t, s.Init(ctx))
		require.NoError(t, repo.Delete(ctx, KeyUser)) // cache must already hold it

		u, ok := s.LoadUser(ctx)
		require.True(t, ok)
		assert.Equal(t, "Ada", u.Name)
	})

	t.Run("orphan profile dropped", func(t *testing.T) {
		repo := storage.NewMemoryRepository()
		require.NoError(t, repo.Set(ctx, KeyUser, []byte(`{"id":42,"name":"Ada"}`)))

		s := NewStore(repo)
		require.NoError(t, s.Init(ctx))
		assert.Zero(t, stored(t, repo))
	})
}

func TestStore_SQLiteBacked(t *testing.T) {
	ctx := context.Background()
	db, err := storage.OpenSQLite(ctx, filepath.Join(t.TempDir(), "session.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	repo := storage.NewSQLiteRepository(db)
	require.NoError(t, NewStore(repo).SaveSession(ctx, "persisted", sampleUser()))

	s := NewStore(repo)
	require.NoError(t, s.Init(ctx))
	tok, ok := s.Load(ctx)
	require.True(t, ok)
	assert.Equal(t, "persisted", tok)

	require.NoError(t, s.Clear(ctx))
	v, err := repo.Get(ctx, KeyUser)
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestStore_ConcurrentSavesLastWriterWins(t *testing.T) {
	s, _, _ := newStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for _, tok := range []string{"a", "b", "c", "d"} {
		wg.Add(1)
		go func(tok string) {
			defer wg.Done()
			_ = s.Save(ctx, tok)
			_, _ = s.Load(ctx)
		}(tok)
	}
	wg.Wait()

	tok, ok := s.Load(ctx)
	require.True(t, ok)
	assert.Contains(t, []string{"a", "b", "c", "d"}, tok)
}
