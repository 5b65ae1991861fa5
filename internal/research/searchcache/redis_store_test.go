package searchcache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "meeting-intel/internal/common/errors"
	"meeting-intel/internal/models"
)

func newMiniRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewRedisStore(client, "test-cache:"), mr
}

func TestRedisStore_RoundTrip(t *testing.T) {
	store, mr := newMiniRedisStore(t)
	ctx := context.Background()
	fetched := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	entry := Entry{
		Results:   []models.SearchResult{{Title: "Acme", Snippet: "s", Link: "https://acme.test"}},
		FetchedAt: fetched,
	}
	require.NoError(t, store.Set(ctx, "acme overview", entry, 15*time.Minute))

	got, ok, err := store.Get(ctx, "acme overview")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, entry.Results, got.Results)
	assert.True(t, fetched.Equal(got.FetchedAt))

	assert.True(t, mr.Exists(store.Key("acme overview")))
	assert.Equal(t, 15*time.Minute, mr.TTL(store.Key("acme overview")))
}

func TestRedisStore_Miss(t *testing.T) {
	store, _ := newMiniRedisStore(t)

	_, ok, err := store.Get(context.Background(), "unknown")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisStore_CorruptValueIsMiss(t *testing.T) {
	store, mr := newMiniRedisStore(t)
	require.NoError(t, mr.Set(store.Key("q"), "{not json"))

	_, ok, err := store.Get(context.Background(), "q")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisStore_ClearOnlyRemovesPrefixedKeys(t *testing.T) {
	store, mr := newMiniRedisStore(t)
	ctx := context.Background()

	for _, q := range []string{"a", "b", "c"} {
		require.NoError(t, store.Set(ctx, q, Entry{FetchedAt: time.Now()}, time.Minute))
	}
	require.NoError(t, mr.Set("other:key", "keep"))

	require.NoError(t, store.Clear(ctx))

	for _, q := range []string{"a", "b", "c"} {
		assert.False(t, mr.Exists(store.Key(q)))
	}
	assert.True(t, mr.Exists("other:key"))
}

func TestRedisStore_GetFailureIsCacheStoreError(t *testing.T) {
	client, mock := redismock.NewClientMock()
	store := NewRedisStore(client, "")

	mock.ExpectGet(store.Key("q")).SetErr(errors.New("connection refused"))

	_, ok, err := store.Get(context.Background(), "q")
	assert.False(t, ok)
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeCacheStoreFailed))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCache_RedisReadFailureFallsBackToProvider(t *testing.T) {
	client, mock := redismock.NewClientMock()
	store := NewRedisStore(client, "")
	mock.ExpectGet(store.Key("q")).SetErr(errors.New("timeout"))
	mock.ExpectGet(store.Key("q")).SetErr(errors.New("timeout"))

	provider := &countingProvider{results: sampleResults(2)}
	c := New(provider, WithStore(store))

	results := c.GetOrFetch(context.Background(), "q", 2)
	assert.Len(t, results, 2)
	assert.Equal(t, int32(1), provider.calls.Load())
}

func TestCache_WithRedisStoreSharesEntriesAcrossInstances(t *testing.T) {
	store, _ := newMiniRedisStore(t)
	provider := &countingProvider{results: sampleResults(3)}

	first := New(provider, WithStore(store))
	second := New(provider, WithStore(store))

	first.GetOrFetch(context.Background(), "shared", 3)
	second.GetOrFetch(context.Background(), "shared", 3)

	assert.Equal(t, int32(1), provider.calls.Load())
}
