package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/glaucoscan/internal/repository"
)

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisStore(client), mr
}

func TestManagerIssueAndResolve(t *testing.T) {
	ctx := context.Background()
	m := NewManager(NewMemoryStore(), "secret", time.Hour)

	token, issued, err := m.Issue(ctx, 7, repository.RolePatient)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	s, err := m.Resolve(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, issued.ID, s.ID)
	assert.Equal(t, uint(7), s.UserID)
	assert.Equal(t, repository.RolePatient, s.Role)
}

func TestManagerRejectsBadTokens(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	m := NewManager(store, "secret", time.Hour)
	other := NewManager(store, "other-secret", time.Hour)

	token, _, err := m.Issue(ctx, 1, repository.RoleAdmin)
	require.NoError(t, err)

	_, err = m.Resolve(ctx, "")
	assert.ErrorIs(t, err, ErrNoSession)

	_, err = m.Resolve(ctx, "garbage")
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = other.Resolve(ctx, token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = m.Resolve(ctx, token+"x")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestManagerRevoke(t *testing.T) {
	ctx := context.Background()
	m := NewManager(NewMemoryStore(), "secret", time.Hour)

	token, _, err := m.Issue(ctx, 1, repository.RolePatient)
	require.NoError(t, err)

	require.NoError(t, m.Revoke(ctx, token))
	_, err = m.Resolve(ctx, token)
	assert.ErrorIs(t, err, ErrNoSession)

	assert.NoError(t, m.Revoke(ctx, "not-a-token"))
}

func TestManagerExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	store := NewMemoryStore()
	store.now = func() time.Time { return now }
	m := NewManager(store, "secret", time.Minute)
	m.now = func() time.Time { return now }

	token, _, err := m.Issue(ctx, 1, repository.RolePatient)
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	_, err = m.Resolve(ctx, token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestMemoryStoreDropsExpired(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	store := NewMemoryStore()
	store.now = func() time.Time { return now }

	require.NoError(t, store.Save(ctx, &Session{ID: "a", UserID: 1}, time.Minute))
	_, err := store.Load(ctx, "a")
	require.NoError(t, err)

	now = now.Add(time.Minute)
	_, err = store.Load(ctx, "a")
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestRedisStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, mr := newRedisStore(t)

	s := &Session{ID: "abc", UserID: 3, Role: repository.RoleAdmin, CreatedAt: time.Now().UTC().Truncate(time.Second)}
	require.NoError(t, store.Save(ctx, s, time.Minute))
	assert.True(t, mr.Exists("session:abc"))

	loaded, err := store.Load(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, s.UserID, loaded.UserID)
	assert.Equal(t, s.Role, loaded.Role)
	assert.True(t, s.CreatedAt.Equal(loaded.CreatedAt))

	require.NoError(t, store.Delete(ctx, "abc"))
	_, err = store.Load(ctx, "abc")
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestRedisStoreHonoursTTL(t *testing.T) {
	ctx := context.Background()
	store, mr := newRedisStore(t)

	require.NoError(t, store.Save(ctx, &Session{ID: "ttl", UserID: 1}, time.Minute))
	mr.FastForward(2 * time.Minute)

	_, err := store.Load(ctx, "ttl")
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestManagerOverRedis(t *testing.T) {
	ctx := context.Background()
	store, _ := newRedisStore(t)
	m := NewManager(store, "secret", time.Hour)

	token, _, err := m.Issue(ctx, 11, repository.RolePatient)
	require.NoError(t, err)

	s, err := m.Resolve(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, uint(11), s.UserID)
}
