package cache

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"ArticleHarvester/internal/domain"
)

func newTestStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client, err := NewClient(context.Background(), ClientConfig{Address: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	return NewRedisStore(client, time.Hour), mr
}

func TestNewClientRequiresAddress(t *testing.T) {
	t.Parallel()

	_, err := NewClient(context.Background(), ClientConfig{})
	require.ErrorIs(t, err, ErrEmptyAddress)
}

func TestRecordBatchThenExists(t *testing.T) {
	t.Parallel()

	store, mr := newTestStore(t)
	ctx := context.Background()
	fetched := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	article := domain.Article{
		ID:         "a1",
		Title:      "Go 1.22 Released",
		URL:        "https://go.dev/blog/go1.22",
		Source:     "gonews",
		Tags:       []string{"go"},
		Detail:     &domain.ArticleDetail{Summary: "notes", PublishedAt: fetched},
		Score:      4,
		Categories: []domain.Category{{ID: 2, Name: "Go"}},
		FetchedAt:  fetched,
	}

	exists, err := store.Exists(ctx, article.DedupKey())
	require.NoError(t, err)
	require.False(t, exists)

	require.NoError(t, store.RecordBatch(ctx, []domain.Article{article}))

	exists, err = store.Exists(ctx, domain.NormalizeTitle("  go 1.22 RELEASED"))
	require.NoError(t, err)
	require.True(t, exists)

	raw, err := mr.Get(TitleKey("go 1.22 released"))
	require.NoError(t, err)
	var cached cachedArticle
	require.NoError(t, json.Unmarshal([]byte(raw), &cached))
	require.Equal(t, "a1", cached.ID)
	require.Equal(t, "notes", cached.Summary)
	require.Equal(t, []domain.Category{{ID: 2, Name: "Go"}}, cached.Categories)
	require.Equal(t, time.Hour, mr.TTL(TitleKey("go 1.22 released")))

	members, err := mr.ZMembers(CategoryKey(2))
	require.NoError(t, err)
	require.Equal(t, []string{"a1"}, members)

	score, err := mr.ZScore(SourceKey("gonews"), "a1")
	require.NoError(t, err)
	require.Equal(t, float64(fetched.Unix()), score)
}

func TestRecordEmptyBatchIsNoop(t *testing.T) {
	t.Parallel()

	store, mr := newTestStore(t)
	require.NoError(t, store.RecordBatch(context.Background(), nil))
	require.Empty(t, mr.Keys())
}

func TestExistsReportsConnectionErrors(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	store := NewRedisStore(client, 0)
	mr.Close()

	_, err := store.Exists(context.Background(), "anything")
	require.Error(t, err)
	require.Error(t, store.RecordBatch(context.Background(), []domain.Article{{ID: "x", Title: "x"}}))
}

func TestMemoryStore(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.RecordBatch(ctx, []domain.Article{{Title: "Hello World"}}))
	exists, err := store.Exists(ctx, "hello world")
	require.NoError(t, err)
	require.True(t, exists)

	exists, err = store.Exists(ctx, "other")
	require.NoError(t, err)
	require.False(t, exists)
	require.Equal(t, 1, store.Len())
}
