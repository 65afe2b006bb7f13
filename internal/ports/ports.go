package ports

import (
	"context"
	"time"

	"ArticleHarvester/internal/domain"
)

// SourceAdapter supplies candidates and performs detail enrichment for one
// external source.
type SourceAdapter interface {
	Name() string
	// Schedule declares the source's start delay and period. It is read once
	// when the source is registered with the scheduler.
	Schedule() domain.SourceJobConfig
	FetchCandidates(ctx context.Context) ([]domain.Article, error)
	// EnrichDetail fills Detail/Tags best-effort. It may drop invalid items
	// but never adds new ones. The returned error aggregates per-item
	// failures; the returned slice is used regardless.
	EnrichDetail(ctx context.Context, articles []domain.Article) ([]domain.Article, error)
}

// DedupStore answers whether a normalized title was already harvested and
// records finished batches in the cache layer.
type DedupStore interface {
	Exists(ctx context.Context, normalizedTitle string) (bool, error)
	RecordBatch(ctx context.Context, articles []domain.Article) error
}

// DurableStore persists finished batches.
type DurableStore interface {
	InsertBatch(ctx context.Context, articles []domain.Article) error
}

// Categorizer maps a title and tags to an ordered set of categories.
type Categorizer interface {
	Classify(ctx context.Context, title string, tags []string) ([]domain.Category, error)
}

// IDGenerator produces article identifiers.
type IDGenerator interface {
	NewID() (string, error)
}

// Job is a unit of work fired by a Scheduler.
type Job func(ctx context.Context, trigger time.Time)

// Scheduler drives jobs on per-name timers.
type Scheduler interface {
	Schedule(name string, cfg domain.SourceJobConfig, job Job) error
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}
