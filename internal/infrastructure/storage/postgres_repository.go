package storage

import (
	"context"
	"fmt"
	"regexp"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/multierr"

	"ArticleHarvester/internal/domain"
	"ArticleHarvester/internal/ports"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Postgres caps a statement at 65535 bind parameters; 1000 rows stays well below.
const defaultRowsPerInsert = 1000

// RepositoryConfig controls the Postgres connection pool.
type RepositoryConfig struct {
	DSN      string
	Table    string
	MaxConns int32
}

type execCloser interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

// PostgresRepository persists finished articles into Postgres.
type PostgresRepository struct {
	pool      execCloser
	table     string
	chunkSize int
}

var _ ports.DurableStore = (*PostgresRepository)(nil)

// NewPostgresRepository connects a pgx pool using the provided config.
func NewPostgresRepository(ctx context.Context, cfg RepositoryConfig) (*PostgresRepository, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return NewPostgresRepositoryWithPool(pool, cfg.Table)
}

// NewPostgresRepositoryWithPool constructs a repository from an existing pool.
func NewPostgresRepositoryWithPool(pool execCloser, table string) (*PostgresRepository, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "articles"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &PostgresRepository{pool: pool, table: table, chunkSize: defaultRowsPerInsert}, nil
}

// Close releases the underlying pool resources.
func (r *PostgresRepository) Close() {
	if r == nil || r.pool == nil {
		return
	}
	r.pool.Close()
}

// InsertBatch writes articles with one multi-row statement per chunk. Titles
// that already exist are skipped. Every chunk is attempted; failures are
// combined.
func (r *PostgresRepository) InsertBatch(ctx context.Context, articles []domain.Article) error {
	var errs error
	for start := 0; start < len(articles); start += r.chunkSize {
		end := min(start+r.chunkSize, len(articles))
		if err := r.insertChunk(ctx, articles[start:end]); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("rows %d-%d: %w", start, end-1, err))
		}
	}
	return errs
}

func (r *PostgresRepository) insertChunk(ctx context.Context, articles []domain.Article) error {
	query, args, err := r.insertQuery(articles)
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := r.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert articles: %w", err)
	}
	return nil
}

var articleColumns = []string{
	"id",
	"external_id",
	"normalized_title",
	"title",
	"url",
	"source",
	"tags",
	"summary",
	"content",
	"authors",
	"published_at",
	"score",
	"categories",
	"fetched_at",
}

func (r *PostgresRepository) insertQuery(articles []domain.Article) (string, []any, error) {
	builder := sq.Insert(r.table).
		Columns(articleColumns...).
		Suffix("ON CONFLICT (normalized_title) DO NOTHING").
		PlaceholderFormat(sq.Dollar)

	for _, a := range articles {
		var (
			summary, content *string
			authors          []string
			publishedAt      *time.Time
		)
		if a.Detail != nil {
			summary = nullable(a.Detail.Summary)
			content = nullable(a.Detail.Content)
			authors = a.Detail.Authors
			if !a.Detail.PublishedAt.IsZero() {
				published := a.Detail.PublishedAt
				publishedAt = &published
			}
		}

		categories := make([]string, 0, len(a.Categories))
		for _, c := range a.Categories {
			categories = append(categories, c.Name)
		}

		builder = builder.Values(
			a.ID,
			a.ExternalID,
			a.DedupKey(),
			a.Title,
			a.URL,
			a.Source,
			nonNil(a.Tags),
			summary,
			content,
			nonNil(authors),
			publishedAt,
			a.Score,
			categories,
			a.FetchedAt,
		)
	}

	return builder.ToSql()
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
