package redis_test

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jrsteele09/go-identity-core/codes"
	apperrors "github.com/jrsteele09/go-identity-core/internal/errors"
	"github.com/jrsteele09/go-identity-core/loginsession"
	"github.com/jrsteele09/go-identity-core/storage/redis"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

const testPrefix = "idp:test:"

type testFixture struct {
	mr    *miniredis.Miniredis
	store *redis.Store
	now   time.Time
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()
	f := &testFixture{mr: miniredis.RunT(t), now: time.Now()}
	client := goredis.NewClient(&goredis.Options{Addr: f.mr.Addr()})
	f.store = redis.NewWithClient(client, testPrefix, redis.WithNowTime(func() time.Time { return f.now }))
	t.Cleanup(func() { f.store.Close() })
	return f
}

func TestCodeRepo_MarkUsedOnce(t *testing.T) {
	f := setupTestFixture(t)
	repo := f.store.Codes()
	ctx := context.Background()

	code := &codes.Code{
		ID:             "c1",
		TenantID:       "acme",
		Type:           codes.TypeAuthorizationCode,
		LoginSessionID: "ls1",
		CreatedAt:      f.now,
		ExpiresAt:      f.now.Add(5 * time.Minute),
	}
	require.NoError(t, repo.Create(ctx, code))
	require.ErrorIs(t, repo.Create(ctx, code), apperrors.ErrConflict)

	for _, k := range f.mr.Keys() {
		require.True(t, strings.HasPrefix(k, testPrefix), k)
	}

	_, err := repo.Get(ctx, "acme", "c1", codes.TypeOAuth2State)
	require.ErrorIs(t, err, apperrors.ErrNotFound)

	var wins, losses atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := repo.MarkUsed(ctx, "acme", "c1", f.now)
			switch {
			case err == nil:
				wins.Add(1)
			case apperrors.Is(err, apperrors.ErrCodeAlreadyUsed):
				losses.Add(1)
			}
		}()
	}
	wg.Wait()
	require.Equal(t, int32(1), wins.Load())
	require.Equal(t, int32(19), losses.Load())

	got, err := repo.Get(ctx, "acme", "c1", codes.TypeAuthorizationCode)
	require.NoError(t, err)
	require.True(t, got.Used())
	require.Equal(t, "ls1", got.LoginSessionID)

	require.ErrorIs(t, repo.MarkUsed(ctx, "acme", "missing", f.now), apperrors.ErrNotFound)

	require.NoError(t, repo.Delete(ctx, "acme", "c1"))
	_, err = repo.Get(ctx, "acme", "c1", codes.TypeAuthorizationCode)
	require.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestCodeRepo_KeysExpire(t *testing.T) {
	f := setupTestFixture(t)
	repo := f.store.Codes()
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, &codes.Code{ID: "c1", TenantID: "acme", Type: codes.TypeOAuth2State, ExpiresAt: f.now.Add(time.Minute)}))
	f.mr.FastForward(2 * time.Hour)

	_, err := repo.Get(ctx, "acme", "c1", codes.TypeOAuth2State)
	require.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestLoginSessionRepo_WithMachine(t *testing.T) {
	f := setupTestFixture(t)
	repo := f.store.LoginSessions()
	ctx := context.Background()
	machine, err := loginsession.NewMachine(repo, loginsession.WithNowTime(func() time.Time { return f.now }))
	require.NoError(t, err)

	ls, err := machine.Create(ctx, "acme", loginsession.AuthParams{ClientID: "web", RedirectURI: "https://app/cb"})
	require.NoError(t, err)
	ttl := f.mr.TTL(testPrefix + "login_session:acme:" + ls.ID)
	require.Greater(t, ttl, 24*time.Hour)

	require.NoError(t, machine.Authenticate(ctx, ls, "auth2|jane", "s1"))
	require.Equal(t, ttl, f.mr.TTL(testPrefix+"login_session:acme:"+ls.ID))

	got, err := repo.Get(ctx, "acme", ls.ID)
	require.NoError(t, err)
	require.Equal(t, loginsession.StateAuthenticated, got.State)
	require.Equal(t, "auth2|jane", got.UserID)

	_, err = repo.Get(ctx, "acme", "missing")
	require.ErrorIs(t, err, apperrors.ErrNotFound)
	require.ErrorIs(t, repo.Update(ctx, &loginsession.LoginSession{TenantID: "acme", ID: "missing"}), apperrors.ErrNotFound)
}

func TestRevokedTokenCache(t *testing.T) {
	f := setupTestFixture(t)
	cache := f.store.RevokedTokens()
	ctx := context.Background()

	require.NoError(t, cache.Add(ctx, "jti-1", f.now.Add(time.Minute)))
	require.NoError(t, cache.Add(ctx, "jti-old", f.now.Add(-time.Minute)))

	revoked, err := cache.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	require.True(t, revoked)

	revoked, err = cache.IsRevoked(ctx, "jti-old")
	require.NoError(t, err)
	require.False(t, revoked)

	f.mr.FastForward(2 * time.Minute)
	revoked, err = cache.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	require.False(t, revoked)
}
