package source

import (
	"context"
	"fmt"
	"net/url"

	"go.uber.org/zap"

	"github.com/mrtz90/Libgen-Scraper-CLI/internal/catalog"
	"github.com/mrtz90/Libgen-Scraper-CLI/internal/parser"
)

// Extractor fetches and parses detail pages.
type Extractor struct {
	fetcher catalog.Fetcher
	parser  parser.DetailParser
	base    *url.URL
	logger  *zap.Logger
}

// NewExtractor resolves references against detailBase and cover images
// against imageBase.
func NewExtractor(detailBase, imageBase string, fetcher catalog.Fetcher, logger *zap.Logger) (*Extractor, error) {
	if fetcher == nil {
		return nil, fmt.Errorf("extractor requires a fetcher")
	}
	base, err := url.Parse(detailBase)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, &catalog.ConfigError{Field: "search.detail_base_url", Reason: "must be an absolute URL"}
	}
	p, err := parser.NewDetailParser(imageBase)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{fetcher: fetcher, parser: p, base: base, logger: logger}, nil
}

// DetailURL resolves ref against the detail host.
func (e *Extractor) DetailURL(ref catalog.DetailRef) (string, error) {
	rel, err := url.Parse(string(ref))
	if err != nil {
		return "", &catalog.StructuralError{Page: parser.PageListing, Ref: string(ref), Field: "href", Reason: err.Error()}
	}
	return e.base.ResolveReference(rel).String(), nil
}

// Extract fetches the detail page of ref and returns its record together
// with the raw page, which later becomes the html snapshot.
func (e *Extractor) Extract(ctx context.Context, ref catalog.DetailRef) (catalog.Detail, error) {
	detailURL, err := e.DetailURL(ref)
	if err != nil {
		return catalog.Detail{}, err
	}
	resp, err := e.fetcher.Fetch(ctx, detailURL)
	if err != nil {
		return catalog.Detail{}, fmt.Errorf("fetch detail %s: %w", ref, err)
	}
	rec, err := e.parser.Parse(string(ref), resp.Body)
	if err != nil {
		return catalog.Detail{}, err
	}
	rec.Ref = ref
	rec.DetailURL = detailURL
	e.logger.Debug("detail extracted", zap.String("ref", string(ref)), zap.String("title", rec.Title))
	return catalog.Detail{Record: rec, Snapshot: resp.Body}, nil
}
