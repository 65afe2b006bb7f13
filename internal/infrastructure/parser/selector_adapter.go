package parser

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"

	"ArticleHarvester/internal/domain"
	"ArticleHarvester/internal/ports"
	"ArticleHarvester/internal/scanner"
)

const defaultRequestTimeout = 20 * time.Second

// SelectorStrategy builds adapters for sites described purely by CSS
// selectors in config.
type SelectorStrategy struct {
	timeout time.Duration
}

var _ scanner.Strategy = (*SelectorStrategy)(nil)

// NewSelectorStrategy returns the strategy; zero timeout means 20s.
func NewSelectorStrategy(timeout time.Duration) *SelectorStrategy {
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	return &SelectorStrategy{timeout: timeout}
}

// Name identifies the strategy inside the registry.
func (s *SelectorStrategy) Name() string {
	return "selector"
}

// selectors groups the CSS selectors a site declares via options.
type selectors struct {
	item    string
	title   string
	link    string
	tag     string
	content string
	author  string
}

// NewAdapter reads the listing URLs from categories (or the listURL option)
// and the selectors from options. itemSelector is required.
func (s *SelectorStrategy) NewAdapter(site scanner.Site) (ports.SourceAdapter, error) {
	sel := selectors{
		item:    site.Option("itemSelector", ""),
		title:   site.Option("titleSelector", "a"),
		link:    site.Option("linkSelector", "a"),
		tag:     site.Option("tagSelector", ""),
		content: site.Option("contentSelector", ""),
		author:  site.Option("authorSelector", ""),
	}
	if sel.item == "" {
		return nil, fmt.Errorf("site %s: option itemSelector is required", site.Name)
	}

	var listURLs []string
	if u := site.Option("listURL", ""); u != "" {
		listURLs = append(listURLs, u)
	}
	for _, cat := range site.Categories {
		listURLs = append(listURLs, cat.URL)
	}
	if len(listURLs) == 0 {
		return nil, fmt.Errorf("site %s: no listURL or categories configured", site.Name)
	}

	concurrency, err := intOption(site, "concurrency", defaultConcurrency)
	if err != nil {
		return nil, err
	}

	logger := site.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &SelectorAdapter{
		site:        site,
		listURLs:    listURLs,
		sel:         sel,
		timeout:     s.timeout,
		concurrency: concurrency,
		logger:      logger,
	}, nil
}

// SelectorAdapter scrapes listing and detail pages with colly.
type SelectorAdapter struct {
	site        scanner.Site
	listURLs    []string
	sel         selectors
	timeout     time.Duration
	concurrency int
	logger      *slog.Logger
}

var _ ports.SourceAdapter = (*SelectorAdapter)(nil)

func (a *SelectorAdapter) Name() string { return a.site.Name }

func (a *SelectorAdapter) Schedule() domain.SourceJobConfig { return a.site.Schedule }

func (a *SelectorAdapter) collector(ctx context.Context) *colly.Collector {
	c := colly.NewCollector(
		colly.UserAgent(userAgent),
		colly.StdlibContext(ctx),
	)
	c.AllowURLRevisit = true
	c.SetRequestTimeout(a.timeout)
	return c
}

// FetchCandidates visits every listing URL and collects one article per item.
func (a *SelectorAdapter) FetchCandidates(ctx context.Context) ([]domain.Article, error) {
	var articles []domain.Article
	seen := map[string]struct{}{}

	c := a.collector(ctx)
	c.OnHTML(a.sel.item, func(e *colly.HTMLElement) {
		title := strings.TrimSpace(e.ChildText(a.sel.title))
		href := e.ChildAttr(a.sel.link, "href")
		if title == "" || href == "" {
			return
		}
		link := e.Request.AbsoluteURL(href)
		if _, ok := seen[link]; ok {
			return
		}
		seen[link] = struct{}{}

		article := domain.Article{
			ExternalID: link,
			Title:      title,
			URL:        link,
			Source:     a.site.Name,
		}
		if a.sel.tag != "" {
			for _, tag := range e.ChildTexts(a.sel.tag) {
				if tag = strings.TrimSpace(tag); tag != "" {
					article.Tags = appendUnique(article.Tags, tag)
				}
			}
		}
		articles = append(articles, article)
	})

	for _, u := range a.listURLs {
		if err := c.Visit(u); err != nil {
			return nil, fmt.Errorf("visit %s: %w", u, err)
		}
	}

	a.logger.Debug("selector candidates", "site", a.site.Name, "count", len(articles))
	return articles, nil
}

// EnrichDetail visits each article page for content, authors and tags.
// Pages answering 404/410 are dropped.
func (a *SelectorAdapter) EnrichDetail(ctx context.Context, articles []domain.Article) ([]domain.Article, error) {
	if a.sel.content == "" && a.sel.author == "" && a.sel.tag == "" {
		return articles, nil
	}

	return enrichConcurrently(articles, a.concurrency, func(article domain.Article) (domain.Article, bool, error) {
		var (
			content []string
			authors []string
			tags    []string
			status  int
		)

		c := a.collector(ctx)
		if a.sel.content != "" {
			c.OnHTML(a.sel.content, func(e *colly.HTMLElement) {
				if text := strings.TrimSpace(e.Text); text != "" {
					content = append(content, text)
				}
			})
		}
		if a.sel.author != "" {
			c.OnHTML(a.sel.author, func(e *colly.HTMLElement) {
				if name := strings.TrimSpace(e.Text); name != "" {
					authors = append(authors, name)
				}
			})
		}
		if a.sel.tag != "" {
			c.OnHTML(a.sel.tag, func(e *colly.HTMLElement) {
				if tag := strings.TrimSpace(e.Text); tag != "" {
					tags = append(tags, tag)
				}
			})
		}
		c.OnError(func(r *colly.Response, _ error) {
			if r != nil {
				status = r.StatusCode
			}
		})

		if err := c.Visit(article.URL); err != nil {
			if status == http.StatusNotFound || status == http.StatusGone {
				a.logger.Debug("drop removed article", "url", article.URL, "status", status)
				return article, false, nil
			}
			return article, true, &domain.EnrichmentError{Source: a.site.Name, URL: article.URL, Err: err}
		}

		detail := article.Detail
		if detail == nil {
			detail = &domain.ArticleDetail{}
		}
		if len(content) > 0 {
			detail.Content = strings.Join(content, "\n\n")
		}
		if len(authors) > 0 {
			detail.Authors = authors
		}
		for _, tag := range tags {
			article.Tags = appendUnique(article.Tags, tag)
		}
		article.Detail = detail
		return article, true, nil
	})
}
