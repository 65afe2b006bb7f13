package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"go.uber.org/multierr"

	"ArticleHarvester/internal/domain"
	"ArticleHarvester/internal/idgen"
	"ArticleHarvester/internal/metrics"
	"ArticleHarvester/internal/ports"
)

// Stage names used in logs and metrics.
const (
	StageFetch      = "fetch"
	StageDedup      = "dedup"
	StageEnrich     = "enrich"
	StageScore      = "score"
	StageCategorize = "categorize"
	StagePersist    = "persist"
)

// ScoreFunc computes a deterministic, non-negative weight for an article.
type ScoreFunc func(domain.Article) float64

// KeepScore leaves the score untouched until a scoring model exists.
func KeepScore(a domain.Article) float64 {
	return a.Score
}

// PipelineDeps wires all driven adapters into the analysis pipeline.
type PipelineDeps struct {
	Dedup       ports.DedupStore
	Durable     ports.DurableStore
	Categorizer ports.Categorizer
	IDs         ports.IDGenerator
	Score       ScoreFunc
	Now         func() time.Time
	Logger      *slog.Logger
}

// Pipeline applies dedup, enrich, score, categorize and persist to one batch
// at a time. Every stage is total: failures are logged, counted and isolated
// to the article or sink that caused them.
type Pipeline struct {
	dedup       ports.DedupStore
	durable     ports.DurableStore
	categorizer ports.Categorizer
	ids         ports.IDGenerator
	score       ScoreFunc
	now         func() time.Time
	logger      *slog.Logger
}

// Report summarizes a single execution for one source.
type Report struct {
	Source             string
	Fetched            int
	Deduplicated       int
	Enriched           int
	Persisted          int
	EnrichFailures     int
	CategorizeFailures int
	SinkErrors         error
	Duration           time.Duration
}

// NewPipeline constructs the orchestration component. A nil Durable store
// disables the durable sink.
func NewPipeline(deps PipelineDeps) *Pipeline {
	p := &Pipeline{
		dedup:       deps.Dedup,
		durable:     deps.Durable,
		categorizer: deps.Categorizer,
		ids:         deps.IDs,
		score:       deps.Score,
		now:         deps.Now,
		logger:      deps.Logger,
	}
	if p.ids == nil {
		p.ids = idgen.New()
	}
	if p.score == nil {
		p.score = KeepScore
	}
	if p.now == nil {
		p.now = func() time.Time { return time.Now().UTC() }
	}
	if p.logger == nil {
		p.logger = slog.New(slog.DiscardHandler)
	}
	return p
}

// Run fetches candidates from the adapter and analyzes them. A fetch failure
// aborts this execution only and is returned as *domain.FetchError.
func (p *Pipeline) Run(ctx context.Context, adapter ports.SourceAdapter) (Report, error) {
	source := adapter.Name()
	started := p.now()
	defer metrics.TrackInFlight(source)()

	candidates, err := p.fetch(ctx, adapter)
	if err != nil {
		fetchErr := &domain.FetchError{Source: source, Err: err}
		metrics.ObserveRun(source, metrics.StatusFetchFailed, p.now().Sub(started))
		return Report{Source: source, Duration: p.now().Sub(started)}, fetchErr
	}
	metrics.ObserveStage(source, StageFetch, len(candidates))

	report := p.Analyze(ctx, adapter, candidates)
	report.Duration = p.now().Sub(started)

	status := metrics.StatusOK
	if report.SinkErrors != nil || report.EnrichFailures > 0 || report.CategorizeFailures > 0 {
		status = metrics.StatusPartial
	}
	metrics.ObserveRun(source, status, report.Duration)
	return report, nil
}

func (p *Pipeline) fetch(ctx context.Context, adapter ports.SourceAdapter) (articles []domain.Article, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return adapter.FetchCandidates(ctx)
}

// Analyze runs the fixed stage sequence over one batch. Each stage finishes
// the whole batch before the next begins.
func (p *Pipeline) Analyze(ctx context.Context, adapter ports.SourceAdapter, batch []domain.Article) Report {
	source := adapter.Name()
	log := p.logger.With("source", source)
	report := Report{Source: source, Fetched: len(batch)}

	articles := p.filterExisting(ctx, log, source, batch)
	report.Deduplicated = len(articles)
	metrics.ObserveStage(source, StageDedup, len(articles))
	log.Debug("dedup done", "in", len(batch), "out", len(articles))
	if len(articles) == 0 {
		return report
	}

	articles, report.EnrichFailures = p.enrich(ctx, log, adapter, articles)
	report.Enriched = len(articles)
	metrics.ObserveStage(source, StageEnrich, len(articles))
	log.Debug("enrich done", "out", len(articles), "failures", report.EnrichFailures)
	if len(articles) == 0 {
		return report
	}

	p.applyScores(articles)
	metrics.ObserveStage(source, StageScore, len(articles))

	report.CategorizeFailures = p.classify(ctx, log, articles)
	metrics.ObserveStage(source, StageCategorize, len(articles))

	report.Persisted, report.SinkErrors = p.persist(ctx, articles)
	for _, e := range multierr.Errors(report.SinkErrors) {
		log.Error("persist batch", "error", e)
	}
	metrics.ObserveStage(source, StagePersist, report.Persisted)

	log.Info("batch analyzed",
		"fetched", report.Fetched,
		"new", report.Deduplicated,
		"enriched", report.Enriched,
		"persisted", report.Persisted)
	return report
}

// filterExisting keeps an article iff its normalized title is neither in the
// dedup store nor already seen earlier in the same batch.
func (p *Pipeline) filterExisting(ctx context.Context, log *slog.Logger, source string, batch []domain.Article) []domain.Article {
	filtered := make([]domain.Article, 0, len(batch))
	seen := make(map[string]struct{}, len(batch))
	fetchedAt := p.now()

	for _, article := range batch {
		key := article.DedupKey()
		if key == "" {
			log.Debug("skip article without title", "url", article.URL)
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		if p.dedup != nil {
			exists, err := p.dedup.Exists(ctx, key)
			if err != nil {
				// The store write stays the final authority, so keep the article.
				log.Warn("dedup lookup failed", "title", key, "error", err)
			} else if exists {
				continue
			}
		}

		if article.ID == "" {
			id, err := p.ids.NewID()
			if err != nil {
				log.Warn("assign article id", "title", key, "error", err)
				continue
			}
			article.ID = id
		}
		if article.Source == "" {
			article.Source = source
		}
		if article.FetchedAt.IsZero() {
			article.FetchedAt = fetchedAt
		}
		filtered = append(filtered, article)
	}

	return filtered
}

// enrich delegates to the adapter and guarantees the batch never grows: only
// articles whose ID was in the input survive, each at most once.
func (p *Pipeline) enrich(ctx context.Context, log *slog.Logger, adapter ports.SourceAdapter, articles []domain.Article) ([]domain.Article, int) {
	enriched, panicked, err := p.callEnrich(ctx, adapter, articles)
	failures := len(multierr.Errors(err))
	for _, e := range multierr.Errors(err) {
		log.Warn("enrich article", "error", e)
	}
	if panicked {
		return articles, failures
	}

	allowed := make(map[string]struct{}, len(articles))
	for _, a := range articles {
		allowed[a.ID] = struct{}{}
	}

	bounded := make([]domain.Article, 0, len(enriched))
	for _, a := range enriched {
		if _, ok := allowed[a.ID]; !ok {
			log.Warn("adapter returned unknown article, dropping", "id", a.ID, "title", a.Title)
			continue
		}
		delete(allowed, a.ID)
		bounded = append(bounded, a)
	}
	return bounded, failures
}

func (p *Pipeline) callEnrich(ctx context.Context, adapter ports.SourceAdapter, articles []domain.Article) (out []domain.Article, panicked bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, panicked = nil, true
			err = &domain.EnrichmentError{Source: adapter.Name(), Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	// Adapters get their own copy so a panic leaves the input untouched.
	input := make([]domain.Article, len(articles))
	copy(input, articles)
	out, err = adapter.EnrichDetail(ctx, input)
	return out, false, err
}

func (p *Pipeline) applyScores(articles []domain.Article) {
	for i := range articles {
		score := p.score(articles[i])
		if math.IsNaN(score) || score < 0 {
			score = 0
		}
		articles[i].Score = score
	}
}

// classify assigns categories per article; a failure leaves that article with
// an empty, non-nil category list.
func (p *Pipeline) classify(ctx context.Context, log *slog.Logger, articles []domain.Article) int {
	failures := 0
	for i := range articles {
		categories, err := p.classifyOne(ctx, articles[i])
		if err != nil {
			failures++
			log.Warn("categorize article", "error", err)
			categories = nil
		}
		if categories == nil {
			categories = []domain.Category{}
		}
		articles[i].Categories = categories
	}
	return failures
}

func (p *Pipeline) classifyOne(ctx context.Context, article domain.Article) (categories []domain.Category, err error) {
	if p.categorizer == nil {
		return []domain.Category{}, nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = &domain.CategorizationError{Title: article.Title, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	categories, err = p.categorizer.Classify(ctx, article.Title, article.Tags)
	if err != nil {
		return nil, &domain.CategorizationError{Title: article.Title, Err: err}
	}
	return categories, nil
}

// persist writes to the durable sink (when configured) and then to the cache
// sink. Each sink is attempted regardless of the other's outcome. The count
// is the number of articles at least one sink accepted.
func (p *Pipeline) persist(ctx context.Context, articles []domain.Article) (int, error) {
	var (
		errs     error
		accepted bool
	)

	if p.durable != nil {
		if err := guardSink(func() error { return p.durable.InsertBatch(ctx, articles) }); err != nil {
			errs = multierr.Append(errs, &domain.StoreError{Sink: "durable", Err: err})
		} else {
			accepted = true
		}
	}

	if p.dedup != nil {
		if err := guardSink(func() error { return p.dedup.RecordBatch(ctx, articles) }); err != nil {
			errs = multierr.Append(errs, &domain.StoreError{Sink: "cache", Err: err})
		} else {
			accepted = true
		}
	}

	if !accepted {
		return 0, errs
	}
	return len(articles), errs
}

func guardSink(write func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return write()
}
