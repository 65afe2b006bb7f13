package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"ArticleHarvester/internal/domain"
	"ArticleHarvester/internal/ports"
)

const (
	titleKeyPrefix    = "harvester:title:"
	categoryKeyPrefix = "harvester:category:"
	sourceKeyPrefix   = "harvester:source:"

	connectionTimeout = 5 * time.Second
)

// ErrEmptyAddress is returned when the Redis address is not configured.
var ErrEmptyAddress = errors.New("redis address is required")

// ClientConfig holds Redis connection configuration.
type ClientConfig struct {
	Address  string
	Password string
	DB       int
}

// NewClient creates a Redis client and verifies the connection.
func NewClient(ctx context.Context, cfg ClientConfig) (*redis.Client, error) {
	if cfg.Address == "" {
		return nil, ErrEmptyAddress
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, connectionTimeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return client, nil
}

// RedisStore is the dedup store and cache sink. Each harvested article is
// kept under its normalized title and indexed by category and by source.
type RedisStore struct {
	client redis.Cmdable
	ttl    time.Duration
}

var _ ports.DedupStore = (*RedisStore)(nil)

// NewRedisStore wraps a client; ttl <= 0 keeps entries forever.
func NewRedisStore(client redis.Cmdable, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

// Exists reports whether the normalized title was already recorded.
func (s *RedisStore) Exists(ctx context.Context, normalizedTitle string) (bool, error) {
	n, err := s.client.Exists(ctx, TitleKey(normalizedTitle)).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists: %w", err)
	}
	return n > 0, nil
}

// RecordBatch writes the batch in one pipeline. Concurrent writers for the
// same title overwrite each other (last write wins).
func (s *RedisStore) RecordBatch(ctx context.Context, articles []domain.Article) error {
	if len(articles) == 0 {
		return nil
	}

	payloads := make([][]byte, len(articles))
	for i, article := range articles {
		payload, err := json.Marshal(newCachedArticle(article))
		if err != nil {
			return fmt.Errorf("marshal article %s: %w", article.ID, err)
		}
		payloads[i] = payload
	}

	_, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, article := range articles {
			pipe.Set(ctx, TitleKey(article.DedupKey()), payloads[i], s.ttl)
			for _, cat := range article.Categories {
				pipe.ZAdd(ctx, CategoryKey(cat.ID), redis.Z{Score: article.Score, Member: article.ID})
			}
			pipe.ZAdd(ctx, SourceKey(article.Source), redis.Z{
				Score:  float64(article.FetchedAt.Unix()),
				Member: article.ID,
			})
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis pipeline: %w", err)
	}
	return nil
}

// TitleKey is the dedup key for a normalized title.
func TitleKey(normalizedTitle string) string {
	return titleKeyPrefix + normalizedTitle
}

// CategoryKey is the sorted set of article IDs ranked by score.
func CategoryKey(id int) string {
	return categoryKeyPrefix + strconv.Itoa(id)
}

// SourceKey is the sorted set of article IDs ordered by fetch time.
func SourceKey(source string) string {
	return sourceKeyPrefix + source
}

type cachedArticle struct {
	ID          string            `json:"id"`
	Title       string            `json:"title"`
	URL         string            `json:"url"`
	Source      string            `json:"source"`
	Tags        []string          `json:"tags"`
	Summary     string            `json:"summary,omitempty"`
	Authors     []string          `json:"authors,omitempty"`
	PublishedAt *time.Time        `json:"publishedAt,omitempty"`
	Score       float64           `json:"score"`
	Categories  []domain.Category `json:"categories"`
	FetchedAt   time.Time         `json:"fetchedAt"`
}

func newCachedArticle(a domain.Article) cachedArticle {
	c := cachedArticle{
		ID:         a.ID,
		Title:      a.Title,
		URL:        a.URL,
		Source:     a.Source,
		Tags:       a.Tags,
		Score:      a.Score,
		Categories: a.Categories,
		FetchedAt:  a.FetchedAt,
	}
	if a.Detail != nil {
		c.Summary = a.Detail.Summary
		c.Authors = a.Detail.Authors
		if !a.Detail.PublishedAt.IsZero() {
			published := a.Detail.PublishedAt
			c.PublishedAt = &published
		}
	}
	return c
}
