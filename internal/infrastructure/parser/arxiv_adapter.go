package parser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"ArticleHarvester/internal/domain"
	"ArticleHarvester/internal/ports"
	"ArticleHarvester/internal/scanner"
)

const (
	arxivBaseURL       = "https://arxiv.org"
	defaultPageSize    = 100
	defaultConcurrency = 4
	userAgent          = "ArticleHarvester/1.0"
)

var (
	dateExpr    = regexp.MustCompile(`\d{1,2} [A-Za-z]{3} \d{4}`)
	subjectCode = regexp.MustCompile(`\s*\([^)]*\)\s*$`)
)

// ArxivStrategy builds adapters that crawl arxiv listing pages.
type ArxivStrategy struct {
	client *http.Client
}

var _ scanner.Strategy = (*ArxivStrategy)(nil)

// NewArxivStrategy wires an HTTP client shared by all arxiv sites.
func NewArxivStrategy(client *http.Client) *ArxivStrategy {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	return &ArxivStrategy{client: client}
}

// Name identifies the strategy inside the registry.
func (s *ArxivStrategy) Name() string {
	return "arxiv"
}

// NewAdapter validates the site and returns its adapter. Options: pageSize,
// concurrency, baseURL.
func (s *ArxivStrategy) NewAdapter(site scanner.Site) (ports.SourceAdapter, error) {
	if len(site.Categories) == 0 {
		return nil, fmt.Errorf("no categories provided for site %s", site.Name)
	}
	pageSize, err := intOption(site, "pageSize", defaultPageSize)
	if err != nil {
		return nil, err
	}
	concurrency, err := intOption(site, "concurrency", defaultConcurrency)
	if err != nil {
		return nil, err
	}

	logger := site.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &ArxivAdapter{
		client:      s.client,
		site:        site,
		baseURL:     strings.TrimSuffix(site.Option("baseURL", arxivBaseURL), "/"),
		pageSize:    pageSize,
		concurrency: concurrency,
		logger:      logger,
	}, nil
}

// ArxivAdapter lists fresh entries per category and enriches them from the
// abstract page.
type ArxivAdapter struct {
	client      *http.Client
	site        scanner.Site
	baseURL     string
	pageSize    int
	concurrency int
	logger      *slog.Logger
}

var _ ports.SourceAdapter = (*ArxivAdapter)(nil)

func (a *ArxivAdapter) Name() string { return a.site.Name }

func (a *ArxivAdapter) Schedule() domain.SourceJobConfig { return a.site.Schedule }

// FetchCandidates reads the first listing page of every category.
func (a *ArxivAdapter) FetchCandidates(ctx context.Context) ([]domain.Article, error) {
	results := make([]domain.Article, 0)
	seen := map[string]struct{}{}

	for _, cat := range a.site.Categories {
		pageURL, err := buildPageURL(cat.URL, 0, a.pageSize)
		if err != nil {
			return nil, fmt.Errorf("category %s: %w", cat.Name, err)
		}

		doc, err := fetchDocument(ctx, a.client, pageURL)
		if err != nil {
			return nil, fmt.Errorf("category %s: %w", cat.Name, err)
		}

		doc.Find("dl > dt").Each(func(_ int, dt *goquery.Selection) {
			article, err := parseEntry(dt, dt.Next(), a.baseURL, a.site.Name, cat.Name)
			if err != nil {
				a.logger.Debug("skip listing entry", "category", cat.Name, "error", err)
				return
			}
			if _, ok := seen[article.ExternalID]; ok {
				return
			}
			seen[article.ExternalID] = struct{}{}
			results = append(results, article)
		})
	}

	a.logger.Debug("arxiv candidates", "site", a.site.Name, "count", len(results))
	return results, nil
}

// EnrichDetail loads each abstract page. Withdrawn entries (404/410) are
// dropped; any other failure keeps the article as-is.
func (a *ArxivAdapter) EnrichDetail(ctx context.Context, articles []domain.Article) ([]domain.Article, error) {
	return enrichConcurrently(articles, a.concurrency, func(article domain.Article) (domain.Article, bool, error) {
		doc, err := fetchDocument(ctx, a.client, article.URL)
		if err != nil {
			var statusErr *statusError
			if errors.As(err, &statusErr) && statusErr.gone() {
				a.logger.Debug("drop withdrawn article", "url", article.URL, "status", statusErr.code)
				return article, false, nil
			}
			return article, true, &domain.EnrichmentError{Source: a.site.Name, URL: article.URL, Err: err}
		}

		applyAbstractPage(&article, doc)
		return article, true, nil
	})
}

// enrichConcurrently runs fn over articles with bounded parallelism and
// returns the kept articles in input order.
func enrichConcurrently(
	articles []domain.Article,
	limit int,
	fn func(domain.Article) (domain.Article, bool, error),
) ([]domain.Article, error) {
	type result struct {
		article domain.Article
		keep    bool
		err     error
	}
	results := make([]result, len(articles))

	var g errgroup.Group
	g.SetLimit(max(limit, 1))
	for i := range articles {
		g.Go(func() error {
			article, keep, err := fn(articles[i])
			results[i] = result{article: article, keep: keep, err: err}
			return nil
		})
	}
	_ = g.Wait()

	var errs error
	kept := make([]domain.Article, 0, len(articles))
	for _, r := range results {
		errs = multierr.Append(errs, r.err)
		if r.keep {
			kept = append(kept, r.article)
		}
	}
	return kept, errs
}

type statusError struct {
	code   int
	status string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status %s", e.status)
}

func (e *statusError) gone() bool {
	return e.code == http.StatusNotFound || e.code == http.StatusGone
}

func fetchDocument(ctx context.Context, client *http.Client, pageURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &statusError{code: resp.StatusCode, status: resp.Status}
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}

	return doc, nil
}

func parseEntry(dt, dd *goquery.Selection, baseURL, siteName, category string) (domain.Article, error) {
	link := dt.Find("a[href*=\"/abs/\"]").First()
	href, ok := link.Attr("href")
	if !ok || href == "" {
		return domain.Article{}, fmt.Errorf("entry has no abstract link")
	}

	id := strings.TrimSpace(link.Text())
	if id == "" {
		id = strings.TrimPrefix(href, "/abs/")
	}
	if !strings.HasPrefix(href, "http") {
		href = baseURL + href
	}

	title := strings.TrimSpace(dd.Find(".list-title").First().Text())
	title = strings.TrimSpace(strings.TrimPrefix(title, "Title:"))
	if title == "" {
		return domain.Article{}, fmt.Errorf("entry %s has no title", id)
	}

	source := siteName
	var tags []string
	if category != "" {
		source = fmt.Sprintf("%s/%s", siteName, category)
		tags = []string{category}
	}

	return domain.Article{
		ExternalID: id,
		Title:      title,
		URL:        href,
		Source:     source,
		Tags:       tags,
	}, nil
}

func applyAbstractPage(article *domain.Article, doc *goquery.Document) {
	detail := article.Detail
	if detail == nil {
		detail = &domain.ArticleDetail{}
	}

	summary := strings.TrimSpace(doc.Find("blockquote.abstract").First().Text())
	if summary = strings.TrimSpace(strings.TrimPrefix(summary, "Abstract:")); summary != "" {
		detail.Summary = summary
	}

	var authors []string
	doc.Find("div.authors a").Each(func(_ int, s *goquery.Selection) {
		if name := strings.TrimSpace(s.Text()); name != "" {
			authors = append(authors, name)
		}
	})
	if len(authors) > 0 {
		detail.Authors = authors
	}

	if match := dateExpr.FindString(doc.Find(".dateline").First().Text()); match != "" {
		if parsed, err := time.Parse("2 Jan 2006", match); err == nil {
			detail.PublishedAt = parsed
		}
	}

	for _, subject := range strings.Split(doc.Find("td.subjects").First().Text(), ";") {
		name := strings.TrimSpace(subjectCode.ReplaceAllString(subject, ""))
		if name != "" {
			article.Tags = appendUnique(article.Tags, name)
		}
	}

	article.Detail = detail
}

func appendUnique(tags []string, tag string) []string {
	for _, existing := range tags {
		if strings.EqualFold(existing, tag) {
			return tags
		}
	}
	return append(tags, tag)
}

func buildPageURL(base string, skip, pageSize int) (string, error) {
	parsed, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid category url %s: %w", base, err)
	}

	query := parsed.Query()
	query.Set("skip", strconv.Itoa(skip))
	query.Set("show", strconv.Itoa(pageSize))
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}

func intOption(site scanner.Site, key string, fallback int) (int, error) {
	raw := site.Option(key, "")
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("site %s: option %s must be a positive integer, got %q", site.Name, key, raw)
	}
	return v, nil
}
