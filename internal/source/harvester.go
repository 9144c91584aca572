// Package source talks to the upstream catalog: it harvests detail
// references from the search listing, extracts records from detail pages,
// and resolves mirror pages to downloadable file URLs.
package source

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"go.uber.org/zap"

	"github.com/mrtz90/Libgen-Scraper-CLI/internal/catalog"
	"github.com/mrtz90/Libgen-Scraper-CLI/internal/metrics"
	"github.com/mrtz90/Libgen-Scraper-CLI/internal/parser"
)

// HarvesterConfig describes the paginated search endpoint.
type HarvesterConfig struct {
	SearchURL      string
	ResultsPerPage int
	TableIndex     int
	DetailPrefix   string
}

// Harvester walks the search listing page by page.
type Harvester struct {
	fetcher   catalog.Fetcher
	parser    parser.ListingParser
	searchURL *url.URL
	perPage   int
	logger    *zap.Logger
}

// NewHarvester validates the search endpoint.
func NewHarvester(cfg HarvesterConfig, fetcher catalog.Fetcher, logger *zap.Logger) (*Harvester, error) {
	if fetcher == nil {
		return nil, fmt.Errorf("harvester requires a fetcher")
	}
	u, err := url.Parse(cfg.SearchURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, &catalog.ConfigError{Field: "search.url", Reason: "must be an absolute URL"}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	perPage := cfg.ResultsPerPage
	if perPage <= 0 {
		perPage = 25
	}
	return &Harvester{
		fetcher:   fetcher,
		parser:    parser.ListingParser{TableIndex: cfg.TableIndex, DetailPrefix: cfg.DetailPrefix},
		searchURL: u,
		perPage:   perPage,
		logger:    logger,
	}, nil
}

// Harvest fetches pages fromPage..toPage in order and concatenates their
// detail references. A failed page is logged and skipped. The only error
// returned is the context's, together with whatever was gathered before it.
func (h *Harvester) Harvest(ctx context.Context, term string, fromPage, toPage int) ([]catalog.DetailRef, error) {
	var refs []catalog.DetailRef
	for page := fromPage; page <= toPage; page++ {
		if err := ctx.Err(); err != nil {
			return refs, fmt.Errorf("harvest interrupted before page %d: %w", page, err)
		}
		pageURL := h.PageURL(term, page)
		resp, err := h.fetcher.Fetch(ctx, pageURL)
		if err != nil {
			metrics.ObserveListingPage("failed")
			h.logger.Warn("listing page fetch failed",
				zap.Int("page", page),
				zap.String("url", pageURL),
				zap.Error(err),
			)
			continue
		}
		listing, err := h.parser.Parse(resp.Body)
		if err != nil {
			metrics.ObserveListingPage("failed")
			h.logger.Warn("listing page unreadable",
				zap.Int("page", page),
				zap.String("url", pageURL),
				zap.Error(err),
			)
			continue
		}
		if listing.SkippedRows > 0 {
			h.logger.Debug("skipped short listing rows", zap.Int("page", page), zap.Int("rows", listing.SkippedRows))
		}
		metrics.ObserveListingPage("ok")
		h.logger.Info("listing page harvested", zap.Int("page", page), zap.Int("refs", len(listing.Refs)))
		refs = append(refs, listing.Refs...)
	}
	return refs, nil
}

// PageURL builds the search URL for one page of results.
func (h *Harvester) PageURL(term string, page int) string {
	u := *h.searchURL
	q := u.Query()
	q.Set("req", term)
	q.Set("open", "0")
	q.Set("res", strconv.Itoa(h.perPage))
	q.Set("view", "simple")
	q.Set("phrase", "1")
	q.Set("column", "def")
	q.Set("page", strconv.Itoa(page))
	u.RawQuery = q.Encode()
	return u.String()
}
