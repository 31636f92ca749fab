// Package storetest holds the behaviour every TokenStore backend must share.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wadjakorntonsri/go-safelink/pkg/core/domain"
	"github.com/wadjakorntonsri/go-safelink/pkg/ports"
)

// Run exercises newStore, which must return an empty store per call.
func Run(t *testing.T, newStore func(t *testing.T) ports.TokenStore) {
	t.Run("PutGet", func(t *testing.T) { testPutGet(t, newStore(t)) })
	t.Run("DuplicateToken", func(t *testing.T) { testDuplicate(t, newStore(t)) })
	t.Run("NotFound", func(t *testing.T) { testNotFound(t, newStore(t)) })
	t.Run("MarkFirstViewedOnce", func(t *testing.T) { testMarkFirstViewed(t, newStore(t)) })
	t.Run("ConcurrentIncrements", func(t *testing.T) { testConcurrentIncrements(t, newStore(t)) })
	t.Run("Dump", func(t *testing.T) { testDump(t, newStore(t)) })
}

func newLink(token string, created time.Time) *domain.Link {
	return &domain.Link{
		Token:       token,
		OriginalURL: "https://example.com/" + token,
		CreatedAt:   created,
	}
}

func testPutGet(t *testing.T, store ports.TokenStore) {
	ctx := context.Background()
	created := time.Date(2024, 3, 4, 5, 6, 7, 0, time.UTC)
	require.NoError(t, store.Put(ctx, newLink("abcd1234", created)))

	got, err := store.Get(ctx, "abcd1234")
	require.NoError(t, err)
	assert.Equal(t, "abcd1234", got.Token)
	assert.Equal(t, "https://example.com/abcd1234", got.OriginalURL)
	assert.True(t, created.Equal(got.CreatedAt), "created_at %v", got.CreatedAt)
	assert.Zero(t, got.Clicks)
	assert.Nil(t, got.FirstViewedAt)
}

func testDuplicate(t *testing.T, store ports.TokenStore) {
	ctx := context.Background()
	require.NoError(t, store.Put(ctx, newLink("abcd1234", time.Now().UTC())))

	dup := newLink("abcd1234", time.Now().UTC())
	dup.OriginalURL = "https://other.example"
	assert.ErrorIs(t, store.Put(ctx, dup), domain.ErrDuplicateToken)

	got, err := store.Get(ctx, "abcd1234")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/abcd1234", got.OriginalURL)
}

func testNotFound(t *testing.T, store ports.TokenStore) {
	ctx := context.Background()

	_, err := store.Get(ctx, "missing1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.ErrorIs(t, store.IncrementClicks(ctx, "missing1"), domain.ErrNotFound)
	assert.ErrorIs(t, store.MarkFirstViewed(ctx, "missing1", time.Now().UTC()), domain.ErrNotFound)
}

func testMarkFirstViewed(t *testing.T, store ports.TokenStore) {
	ctx := context.Background()
	require.NoError(t, store.Put(ctx, newLink("abcd1234", time.Now().UTC())))

	first := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, store.MarkFirstViewed(ctx, "abcd1234", first))
	require.NoError(t, store.MarkFirstViewed(ctx, "abcd1234", first.Add(time.Hour)))

	got, err := store.Get(ctx, "abcd1234")
	require.NoError(t, err)
	require.NotNil(t, got.FirstViewedAt)
	assert.True(t, first.Equal(*got.FirstViewedAt), "first_viewed_at %v", got.FirstViewedAt)
	assert.Zero(t, got.Clicks)
}

func testConcurrentIncrements(t *testing.T, store ports.TokenStore) {
	ctx := context.Background()
	require.NoError(t, store.Put(ctx, newLink("abcd1234", time.Now().UTC())))

	const n = 50
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- store.IncrementClicks(ctx, "abcd1234")
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	got, err := store.Get(ctx, "abcd1234")
	require.NoError(t, err)
	assert.EqualValues(t, n, got.Clicks)
}

func testDump(t *testing.T, store ports.TokenStore) {
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		require.NoError(t, store.Put(ctx, newLink(fmt.Sprintf("tok%05d", i), base.Add(time.Duration(i)*time.Minute))))
	}
	require.NoError(t, store.IncrementClicks(ctx, "tok00001"))

	links, err := store.Dump(ctx)
	require.NoError(t, err)
	require.Len(t, links, 3)
	for i, l := range links {
		assert.Equal(t, fmt.Sprintf("tok%05d", i), l.Token)
	}
	assert.EqualValues(t, 1, links[1].Clicks)
}
