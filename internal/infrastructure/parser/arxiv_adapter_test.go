package parser

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"

	"ArticleHarvester/internal/domain"
	"ArticleHarvester/internal/scanner"
)

const listingHTML = `
<dl>
  <dt>
    <span class="list-identifier"><a href="/abs/2501.00001">arXiv:2501.00001</a></span>
  </dt>
  <dd>
    <div class="list-title mathjax">Title: Fresh Article</div>
  </dd>
  <dt>
    <span class="list-identifier"><a href="/abs/2501.00002">arXiv:2501.00002</a></span>
  </dt>
  <dd>
    <div class="list-title mathjax">Title: Withdrawn Article</div>
  </dd>
  <dt>
    <span class="list-identifier"><a href="/abs/2501.00003">arXiv:2501.00003</a></span>
  </dt>
  <dd>
    <div class="list-title mathjax">Title: Flaky Article</div>
  </dd>
  <dt>
    <span class="list-identifier"></span>
  </dt>
  <dd>
    <div class="list-title mathjax">Title: No Link</div>
  </dd>
</dl>`

const abstractHTML = `
<div class="dateline">[Submitted on 8 Nov 2025]</div>
<h1 class="title">Title: Fresh Article</h1>
<div class="authors"><a href="/a/1">Ada Lovelace</a>, <a href="/a/2">Alan Turing</a></div>
<blockquote class="abstract">Abstract: brand new.</blockquote>
<table><tr><td class="tablecell subjects">Artificial Intelligence (cs.AI); Machine Learning (cs.LG)</td></tr></table>`

func newArxivServer(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/list/cs.AI", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("show") != "10" {
			t.Errorf("unexpected show parameter: %s", r.URL.Query().Get("show"))
		}
		_, _ = w.Write([]byte(listingHTML))
	})
	mux.HandleFunc("/list/cs.LG", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(listingHTML))
	})
	mux.HandleFunc("/abs/2501.00001", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(abstractHTML))
	})
	mux.HandleFunc("/abs/2501.00002", func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	})
	mux.HandleFunc("/abs/2501.00003", func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "oops", http.StatusInternalServerError)
	})
	return httptest.NewServer(mux)
}

func newTestArxivAdapter(t *testing.T, server *httptest.Server, categories ...string) *ArxivAdapter {
	t.Helper()

	site := scanner.Site{
		Name:     "arxiv-ai",
		Options:  map[string]string{"pageSize": "10", "baseURL": server.URL},
		Schedule: domain.SourceJobConfig{InitialDelay: time.Second, Period: time.Hour},
	}
	for _, c := range categories {
		site.Categories = append(site.Categories, scanner.Category{Name: c, URL: server.URL + "/list/" + c})
	}

	adapter, err := NewArxivStrategy(server.Client()).NewAdapter(site)
	if err != nil {
		t.Fatalf("NewAdapter: %v", err)
	}
	return adapter.(*ArxivAdapter)
}

func TestBuildPageURL(t *testing.T) {
	t.Parallel()

	base := "https://export.arxiv.org/list/cs.AI/pastweek"
	u, err := buildPageURL(base, 200, 100)
	if err != nil {
		t.Fatalf("buildPageURL returned error: %v", err)
	}

	parsed, err := url.Parse(u)
	if err != nil {
		t.Fatalf("parse result: %v", err)
	}

	if parsed.Scheme != "https" || parsed.Host != "export.arxiv.org" {
		t.Fatalf("unexpected host: %s", parsed.Host)
	}

	q := parsed.Query()
	if q.Get("skip") != "200" {
		t.Fatalf("expected skip=200, got %s", q.Get("skip"))
	}
	if q.Get("show") != "100" {
		t.Fatalf("expected show=100, got %s", q.Get("show"))
	}
}

func TestParseEntry(t *testing.T) {
	t.Parallel()

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(listingHTML))
	if err != nil {
		t.Fatalf("new document: %v", err)
	}

	dt := doc.Find("dt").First()
	article, err := parseEntry(dt, dt.Next(), arxivBaseURL, "arxiv-ai", "cs.AI")
	if err != nil {
		t.Fatalf("parseEntry error: %v", err)
	}

	if article.ExternalID != "arXiv:2501.00001" {
		t.Fatalf("unexpected id: %s", article.ExternalID)
	}
	if article.Title != "Fresh Article" {
		t.Fatalf("unexpected title: %s", article.Title)
	}
	if article.URL != "https://arxiv.org/abs/2501.00001" {
		t.Fatalf("unexpected url: %s", article.URL)
	}
	if article.Source != "arxiv-ai/cs.AI" {
		t.Fatalf("unexpected source: %s", article.Source)
	}
	if len(article.Tags) != 1 || article.Tags[0] != "cs.AI" {
		t.Fatalf("unexpected tags: %v", article.Tags)
	}
	if article.Detail != nil {
		t.Fatalf("listing entries must not carry detail")
	}
}

func TestNewAdapterValidatesSite(t *testing.T) {
	t.Parallel()

	strategy := NewArxivStrategy(nil)
	if _, err := strategy.NewAdapter(scanner.Site{Name: "empty"}); err == nil {
		t.Fatalf("expected error for site without categories")
	}

	site := scanner.Site{
		Name:       "bad",
		Categories: []scanner.Category{{Name: "cs.AI", URL: "https://arxiv.org/list/cs.AI"}},
		Options:    map[string]string{"pageSize": "-1"},
	}
	if _, err := strategy.NewAdapter(site); err == nil {
		t.Fatalf("expected error for negative page size")
	}
}

func TestArxivFetchCandidates(t *testing.T) {
	t.Parallel()

	server := newArxivServer(t)
	defer server.Close()

	adapter := newTestArxivAdapter(t, server, "cs.AI", "cs.LG")
	if adapter.Name() != "arxiv-ai" || adapter.Schedule().Period != time.Hour {
		t.Fatalf("unexpected adapter identity: %s %v", adapter.Name(), adapter.Schedule())
	}

	articles, err := adapter.FetchCandidates(context.Background())
	if err != nil {
		t.Fatalf("FetchCandidates error: %v", err)
	}

	// Both categories list the same three entries; the one without a link is skipped.
	if len(articles) != 3 {
		t.Fatalf("expected 3 articles, got %d", len(articles))
	}
	if articles[0].URL != server.URL+"/abs/2501.00001" {
		t.Fatalf("unexpected url: %s", articles[0].URL)
	}
}

func TestArxivFetchCandidatesFailsOnBadStatus(t *testing.T) {
	t.Parallel()

	server := newArxivServer(t)
	defer server.Close()

	adapter := newTestArxivAdapter(t, server, "cs.XX")
	if _, err := adapter.FetchCandidates(context.Background()); err == nil {
		t.Fatalf("expected error for missing listing")
	}
}

func TestArxivEnrichDetail(t *testing.T) {
	t.Parallel()

	server := newArxivServer(t)
	defer server.Close()

	adapter := newTestArxivAdapter(t, server, "cs.AI")
	candidates, err := adapter.FetchCandidates(context.Background())
	if err != nil {
		t.Fatalf("FetchCandidates error: %v", err)
	}
	for i := range candidates {
		candidates[i].ID = candidates[i].ExternalID
	}

	enriched, err := adapter.EnrichDetail(context.Background(), candidates)

	var enrichErr *domain.EnrichmentError
	if !errors.As(err, &enrichErr) {
		t.Fatalf("expected enrichment error for flaky article, got %v", err)
	}
	if len(enriched) != 2 {
		t.Fatalf("expected withdrawn article to be dropped, got %d articles", len(enriched))
	}

	fresh := enriched[0]
	if fresh.Detail == nil || fresh.Detail.Summary != "brand new." {
		t.Fatalf("unexpected detail: %+v", fresh.Detail)
	}
	if len(fresh.Detail.Authors) != 2 || fresh.Detail.Authors[1] != "Alan Turing" {
		t.Fatalf("unexpected authors: %v", fresh.Detail.Authors)
	}
	if got := fresh.Detail.PublishedAt.Format("2006-01-02"); got != "2025-11-08" {
		t.Fatalf("unexpected published date: %s", got)
	}
	wantTags := []string{"cs.AI", "Artificial Intelligence", "Machine Learning"}
	if strings.Join(fresh.Tags, "|") != strings.Join(wantTags, "|") {
		t.Fatalf("unexpected tags: %v", fresh.Tags)
	}

	flaky := enriched[1]
	if flaky.Title != "Flaky Article" || flaky.Detail != nil {
		t.Fatalf("flaky article should pass through untouched: %+v", flaky)
	}
}
