package domain

import (
	"strings"
	"time"
)

// Article is a harvested content item. Adapters populate Title and URL (and
// optionally Tags); every pipeline stage after that enriches it in place.
type Article struct {
	ID         string
	ExternalID string
	Title      string
	URL        string
	Source     string
	Tags       []string
	Detail     *ArticleDetail
	Score      float64
	Categories []Category
	FetchedAt  time.Time
}

// ArticleDetail carries the fields filled by source-specific enrichment.
type ArticleDetail struct {
	Summary     string
	Content     string
	Authors     []string
	PublishedAt time.Time
	Views       int
	Likes       int
	Comments    int
}

// Category is produced by a Categorizer and is opaque to the pipeline.
type Category struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// DedupKey returns the normalized title used as the global dedup key.
func (a Article) DedupKey() string {
	return NormalizeTitle(a.Title)
}

// NormalizeTitle lower-cases a title, trims it and collapses inner whitespace.
func NormalizeTitle(title string) string {
	return strings.ToLower(strings.Join(strings.Fields(title), " "))
}
