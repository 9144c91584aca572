package local

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/mrtz90/Libgen-Scraper-CLI/internal/catalog"
	"github.com/mrtz90/Libgen-Scraper-CLI/internal/metrics"
)

// Downloader fetches resources and writes them into a run's output area.
type Downloader struct {
	area    *Area
	fetcher catalog.Fetcher
	logger  *zap.Logger
}

// NewDownloader builds a Downloader for area.
func NewDownloader(area *Area, fetcher catalog.Fetcher, logger *zap.Logger) (*Downloader, error) {
	if area == nil {
		return nil, errors.New("downloader requires an output area")
	}
	if fetcher == nil {
		return nil, errors.New("downloader requires a fetcher")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Downloader{area: area, fetcher: fetcher, logger: logger}, nil
}

// Download writes src under the category's folder, named after title, and
// returns the written path. A source carrying a body is written as is;
// otherwise its URL is fetched first.
func (d *Downloader) Download(ctx context.Context, src catalog.Source, category catalog.Category, title string) (string, error) {
	label := metricLabel(category)
	body := src.Body
	if body == nil {
		if src.URL == "" {
			metrics.ObserveDownload(label, "skipped", 0)
			return "", fmt.Errorf("download %s for %q: no url or body", category, title)
		}
		resp, err := d.fetcher.Fetch(ctx, src.URL)
		if err != nil {
			metrics.ObserveDownload(label, "failed", 0)
			return "", fmt.Errorf("download %s for %q: %w", category, title, err)
		}
		body = resp.Body
	}

	path, n, err := d.area.Write(category, title, bytes.NewReader(body))
	if err != nil {
		metrics.ObserveDownload(label, "failed", 0)
		return "", err
	}
	metrics.ObserveDownload(label, "ok", int(n))
	d.logger.Debug("resource saved",
		zap.String("category", string(category)),
		zap.String("path", path),
		zap.Int64("bytes", n),
	)
	return path, nil
}

func metricLabel(category catalog.Category) string {
	switch category {
	case catalog.CategoryImage, catalog.CategoryHTML:
		return string(category)
	default:
		return "file"
	}
}
