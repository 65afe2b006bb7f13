// Package classifier provides Categorizer implementations: a local keyword
// matcher and a client for a remote classification service.
package classifier

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"unicode"

	ahocorasick "github.com/cloudflare/ahocorasick"

	"ArticleHarvester/internal/domain"
	"ArticleHarvester/internal/ports"
)

// Rule maps a set of keywords to one category.
type Rule struct {
	ID       int
	Name     string
	Keywords []string
}

// KeywordClassifier matches whole-word keywords in a single Aho-Corasick pass
// over the title and tags.
type KeywordClassifier struct {
	rules []Rule

	// Match keeps per-call state inside the matcher.
	mu        sync.Mutex
	matcher   *ahocorasick.Matcher
	keywords  []string
	kwToRules map[string][]int // padded keyword -> rule indices
}

var _ ports.Categorizer = (*KeywordClassifier)(nil)

// NewKeywordClassifier builds the automaton. Rules without a name are rejected.
func NewKeywordClassifier(rules []Rule) (*KeywordClassifier, error) {
	c := &KeywordClassifier{
		rules:     make([]Rule, 0, len(rules)),
		kwToRules: make(map[string][]int),
	}

	for _, rule := range rules {
		if strings.TrimSpace(rule.Name) == "" {
			return nil, fmt.Errorf("category rule %d has no name", rule.ID)
		}
		idx := len(c.rules)
		c.rules = append(c.rules, rule)

		for _, kw := range rule.Keywords {
			normalized := normalizeText(kw)
			if normalized == "" {
				continue
			}
			// Padding with spaces on both sides turns a substring match into a
			// whole-word match against padded text.
			padded := " " + normalized + " "
			if _, ok := c.kwToRules[padded]; !ok {
				c.keywords = append(c.keywords, padded)
			}
			if !containsInt(c.kwToRules[padded], idx) {
				c.kwToRules[padded] = append(c.kwToRules[padded], idx)
			}
		}
	}

	if len(c.keywords) > 0 {
		c.matcher = ahocorasick.NewStringMatcher(c.keywords)
	}
	return c, nil
}

// Classify returns the categories whose keywords appear in the title or tags,
// in rule order. No match yields an empty slice.
func (c *KeywordClassifier) Classify(ctx context.Context, title string, tags []string) ([]domain.Category, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := []domain.Category{}
	if c.matcher == nil {
		return out, nil
	}

	parts := make([]string, 0, len(tags)+1)
	parts = append(parts, title)
	parts = append(parts, tags...)
	text := " " + normalizeText(strings.Join(parts, " ")) + " "

	c.mu.Lock()
	hits := c.matcher.Match([]byte(text))
	c.mu.Unlock()

	matched := make([]bool, len(c.rules))
	for _, hit := range hits {
		if hit >= len(c.keywords) {
			continue
		}
		for _, idx := range c.kwToRules[c.keywords[hit]] {
			matched[idx] = true
		}
	}

	for idx, ok := range matched {
		if ok {
			out = append(out, domain.Category{ID: c.rules[idx].ID, Name: c.rules[idx].Name})
		}
	}
	return out, nil
}

// normalizeText lower-cases and replaces everything but letters and digits
// with single spaces.
func normalizeText(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

func containsInt(values []int, v int) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}
