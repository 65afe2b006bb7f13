package scanner

import (
	"fmt"
	"log/slog"
	"sort"

	"ArticleHarvester/internal/domain"
	"ArticleHarvester/internal/ports"
)

// Category describes a concrete section endpoint provided by config.
type Category struct {
	Name string
	URL  string
}

// Site carries everything a strategy needs to build one source adapter.
type Site struct {
	Name       string
	Categories []Category
	Options    map[string]string
	Schedule   domain.SourceJobConfig
	Logger     *slog.Logger
}

// Option returns a site option or fallback when it is unset.
func (s Site) Option(key, fallback string) string {
	if v, ok := s.Options[key]; ok && v != "" {
		return v
	}
	return fallback
}

// Strategy builds source adapters for one kind of site (arxiv, selector, ...).
type Strategy interface {
	Name() string
	NewAdapter(site Site) (ports.SourceAdapter, error)
}

// Registry keeps a mapping from strategy names to their implementations.
type Registry struct {
	strategies map[string]Strategy
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{strategies: map[string]Strategy{}}
}

// Register adds or replaces a strategy implementation.
func (r *Registry) Register(strategy Strategy) {
	if r.strategies == nil {
		r.strategies = map[string]Strategy{}
	}
	r.strategies[strategy.Name()] = strategy
}

// Resolve returns a strategy by name or an error if it is absent.
func (r *Registry) Resolve(name string) (Strategy, error) {
	if strategy, ok := r.strategies[name]; ok {
		return strategy, nil
	}
	return nil, fmt.Errorf("scanner %s is not registered", name)
}

// Names lists registered strategies in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.strategies))
	for name := range r.strategies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
