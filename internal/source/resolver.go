package source

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/mrtz90/Libgen-Scraper-CLI/internal/catalog"
	"github.com/mrtz90/Libgen-Scraper-CLI/internal/parser"
)

// ResolverConfig controls mirror resolution.
type ResolverConfig struct {
	// BaseURL anchors relative mirror references.
	BaseURL string
	// Extensions lists accepted document suffixes, such as ".pdf".
	Extensions []string
	CacheSize  int
}

// Resolver turns mirror page references into final file URLs.
type Resolver struct {
	fetcher    catalog.Fetcher
	parser     parser.MirrorParser
	base       *url.URL
	extensions []string
	cache      *lru.Cache[string, resolution]
	logger     *zap.Logger
}

type resolution struct {
	url string
	err error
}

// NewResolver builds a Resolver with an LRU of past resolutions.
func NewResolver(cfg ResolverConfig, fetcher catalog.Fetcher, logger *zap.Logger) (*Resolver, error) {
	if fetcher == nil {
		return nil, fmt.Errorf("resolver requires a fetcher")
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, &catalog.ConfigError{Field: "search.detail_base_url", Reason: "must be an absolute URL"}
	}
	exts := make([]string, 0, len(cfg.Extensions))
	for _, ext := range cfg.Extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		exts = append(exts, ext)
	}
	if len(exts) == 0 {
		return nil, &catalog.ConfigError{Field: "search.file_extensions", Reason: "at least one extension is required"}
	}
	size := cfg.CacheSize
	if size <= 0 {
		size = 512
	}
	cache, err := lru.New[string, resolution](size)
	if err != nil {
		return nil, fmt.Errorf("resolver cache: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		fetcher:    fetcher,
		base:       base,
		extensions: exts,
		cache:      cache,
		logger:     logger,
	}, nil
}

// ResolveFileURL fetches the mirror page at fileRef and returns its download
// link when the link points at an accepted document type. Structural and
// link failures are remembered; transport failures are not.
func (r *Resolver) ResolveFileURL(ctx context.Context, fileRef string) (string, error) {
	if cached, ok := r.cache.Get(fileRef); ok {
		return cached.url, cached.err
	}
	link, err := r.resolve(ctx, fileRef)
	if err != nil && catalog.IsTransport(err) {
		return "", err
	}
	if err != nil && errors.Is(err, context.Canceled) {
		return "", err
	}
	r.cache.Add(fileRef, resolution{url: link, err: err})
	return link, err
}

func (r *Resolver) resolve(ctx context.Context, fileRef string) (string, error) {
	ref, err := url.Parse(strings.TrimSpace(fileRef))
	if err != nil || fileRef == "" {
		return "", &catalog.StructuralError{Page: parser.PageDetail, Ref: fileRef, Field: "file_url", Reason: "unparseable mirror reference"}
	}
	mirrorURL := r.base.ResolveReference(ref)
	resp, err := r.fetcher.Fetch(ctx, mirrorURL.String())
	if err != nil {
		return "", fmt.Errorf("fetch mirror: %w", err)
	}
	href, err := r.parser.Parse(fileRef, resp.Body)
	if err != nil {
		return "", err
	}
	pageURL := mirrorURL
	if final, err := url.Parse(resp.URL); err == nil && final.Host != "" {
		pageURL = final
	}
	target, err := url.Parse(href)
	if err != nil {
		return "", fmt.Errorf("mirror %s: link %q: %w", fileRef, href, catalog.ErrNoDownloadLink)
	}
	resolved := pageURL.ResolveReference(target)
	if !r.accepted(resolved.Path) {
		r.logger.Debug("mirror link has unexpected type", zap.String("file_ref", fileRef), zap.String("link", resolved.String()))
		return "", fmt.Errorf("mirror %s: link %q has no accepted extension: %w", fileRef, resolved.String(), catalog.ErrNoDownloadLink)
	}
	return resolved.String(), nil
}

func (r *Resolver) accepted(path string) bool {
	lower := strings.ToLower(path)
	for _, ext := range r.extensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}
