package parser

import (
	"fmt"
	"log/slog"

	"ArticleHarvester/internal/config"
	"ArticleHarvester/internal/domain"
	"ArticleHarvester/internal/ports"
	"ArticleHarvester/internal/scanner"
)

// BuildAdapters resolves each configured site's strategy and builds one
// source adapter per site, carrying the site's schedule.
func BuildAdapters(reg *scanner.Registry, sites []config.SiteConfig, log *slog.Logger) ([]ports.SourceAdapter, error) {
	if reg == nil {
		return nil, fmt.Errorf("scanner registry is not configured")
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	adapters := make([]ports.SourceAdapter, 0, len(sites))
	for _, site := range sites {
		strategy, err := reg.Resolve(site.Scanner)
		if err != nil {
			return nil, fmt.Errorf("site %s: %w", site.Name, err)
		}

		adapter, err := strategy.NewAdapter(scanner.Site{
			Name:       site.Name,
			Categories: toScannerCategories(site.Categories),
			Options:    site.Options,
			Schedule: domain.SourceJobConfig{
				InitialDelay: site.InitialDelay,
				Period:       site.Period,
			},
			Logger: log.With("source", site.Name),
		})
		if err != nil {
			return nil, fmt.Errorf("build site %s: %w", site.Name, err)
		}

		log.Debug("source adapter built", "site", site.Name, "scanner", site.Scanner, "categories", len(site.Categories))
		adapters = append(adapters, adapter)
	}

	return adapters, nil
}

func toScannerCategories(cfg []config.CategoryConfig) []scanner.Category {
	categories := make([]scanner.Category, 0, len(cfg))
	for _, cat := range cfg {
		categories = append(categories, scanner.Category{
			Name: cat.Name,
			URL:  cat.URL,
		})
	}
	return categories
}
