// Package collyfetcher implements catalog.Fetcher using gocolly.
package collyfetcher

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/mrtz90/Libgen-Scraper-CLI/internal/catalog"
	"github.com/mrtz90/Libgen-Scraper-CLI/internal/metrics"
	"github.com/mrtz90/Libgen-Scraper-CLI/internal/policy/retry"
)

// Config controls collector behavior.
type Config struct {
	UserAgent          string
	Timeout            time.Duration
	MaxBodyBytes       int
	InsecureSkipVerify bool
	// Transport replaces the default pooled transport when set.
	Transport http.RoundTripper
}

// ErrBodyTooLarge marks a response longer than Config.MaxBodyBytes.
var ErrBodyTooLarge = errors.New("response body exceeds limit")

// Limiter throttles requests per host.
type Limiter interface {
	Wait(ctx context.Context, rawURL string) error
}

// RetryPolicy decides on follow-up attempts after a failed fetch.
type RetryPolicy interface {
	ShouldRetry(err error, attempt int) bool
	Backoff(attempt int) time.Duration
}

// Fetcher implements catalog.Fetcher using the Colly collector.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
	limiter       Limiter
	retry         RetryPolicy
	logger        *zap.Logger
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Fetcher. A nil limiter or policy means no throttling and a
// single attempt per fetch.
func New(cfg Config, limiter Limiter, policy RetryPolicy, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	opts := []colly.CollectorOption{
		colly.Async(false),
		// Duplicate references and retries hit the same URL again.
		colly.AllowURLRevisit(),
		colly.IgnoreRobotsTxt(),
		colly.MaxBodySize(0),
	}
	if cfg.MaxBodyBytes > 0 {
		// colly truncates silently; one extra byte exposes the overflow.
		opts[len(opts)-1] = colly.MaxBodySize(cfg.MaxBodyBytes + 1)
	}
	if cfg.UserAgent != "" {
		opts = append(opts, colly.UserAgent(cfg.UserAgent))
	}
	c := colly.NewCollector(opts...)

	transport := cfg.Transport
	if transport == nil {
		transport = newHTTPTransport(cfg.InsecureSkipVerify)
	}
	// Clones share the backend client, so transport and timeout are set once.
	c.WithTransport(transport)
	c.SetRequestTimeout(cfg.Timeout)

	return &Fetcher{
		cfg:           cfg,
		baseCollector: c,
		limiter:       limiter,
		retry:         policy,
		logger:        logger,
	}
}

// Fetch issues a GET, retrying according to the policy.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (catalog.Response, error) {
	if _, err := url.ParseRequestURI(rawURL); err != nil {
		return catalog.Response{}, &catalog.TransportError{URL: rawURL, Err: fmt.Errorf("invalid url: %w", err)}
	}
	start := time.Now()
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return catalog.Response{}, &catalog.TransportError{URL: rawURL, Err: err}
		}
		if f.limiter != nil {
			if err := f.limiter.Wait(ctx, rawURL); err != nil {
				return catalog.Response{}, &catalog.TransportError{URL: rawURL, Err: err}
			}
		}
		resp, err := f.fetchOnce(ctx, rawURL)
		if err == nil {
			resp.Attempts = attempt
			resp.Duration = time.Since(start)
			return resp, nil
		}
		if f.retry == nil || !f.retry.ShouldRetry(err, attempt) {
			return catalog.Response{}, err
		}
		delay := f.retry.Backoff(attempt)
		f.logger.Debug("retrying fetch",
			zap.String("url", rawURL),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", delay),
			zap.Error(err),
		)
		if err := retry.Sleep(ctx, delay); err != nil {
			return catalog.Response{}, &catalog.TransportError{URL: rawURL, Err: err}
		}
	}
}

func (f *Fetcher) fetchOnce(ctx context.Context, rawURL string) (catalog.Response, error) {
	var (
		result catalog.Response
		failed *failure
	)
	start := time.Now()
	collector := f.buildCollector(ctx)
	f.configureCollectorHooks(collector, start, &result, &failed)

	finished, err := f.runCollector(ctx, collector, rawURL)
	if !finished {
		// The visit is still unwinding; its callbacks may yet write result.
		metrics.ObserveFetch(rawURL, 0, time.Since(start))
		return catalog.Response{}, &catalog.TransportError{URL: rawURL, Err: err}
	}
	if failed != nil {
		metrics.ObserveFetch(rawURL, failed.status, time.Since(start))
		return catalog.Response{}, &catalog.TransportError{URL: rawURL, StatusCode: failed.status, Err: failed.err}
	}
	metrics.ObserveFetch(rawURL, result.StatusCode, time.Since(start))
	if err != nil {
		return catalog.Response{}, &catalog.TransportError{URL: rawURL, StatusCode: result.StatusCode, Err: err}
	}
	return result, nil
}

type failure struct {
	status int
	err    error
}

func (f *Fetcher) buildCollector(ctx context.Context) *colly.Collector {
	collector := f.baseCollector.Clone()
	collector.Context = ctx
	return collector
}

func (f *Fetcher) configureCollectorHooks(
	hooks collectorHooks,
	start time.Time,
	result *catalog.Response,
	failed **failure,
) {
	hooks.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept", "text/html,application/xhtml+xml,*/*;q=0.8")
	})

	hooks.OnResponse(func(r *colly.Response) {
		if limit := f.cfg.MaxBodyBytes; limit > 0 && len(r.Body) > limit {
			*failed = &failure{
				status: r.StatusCode,
				err:    fmt.Errorf("%w: more than %d bytes", ErrBodyTooLarge, limit),
			}
			return
		}
		*result = catalog.Response{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Headers:    cloneHeaders(r.Headers),
			Body:       r.Body,
			Duration:   time.Since(start),
		}
	})

	hooks.OnError(func(r *colly.Response, err error) {
		fail := &failure{err: err}
		if r != nil {
			fail.status = r.StatusCode
		}
		*failed = fail
	})
}

// runCollector reports finished=false when ctx ended before Visit returned.
func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, rawURL string) (bool, error) {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(rawURL)
	}()

	select {
	case <-ctx.Done():
		return false, fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return true, fmt.Errorf("colly visit failed: %w", err)
		}
		return true, nil
	}
}

func cloneHeaders(h *http.Header) http.Header {
	if h == nil {
		return http.Header{}
	}
	return h.Clone()
}

func newHTTPTransport(insecure bool) *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		// The mirrors are frequently served with broken certificates.
		TLSClientConfig: &tls.Config{InsecureSkipVerify: insecure}, //nolint:gosec // opt-in via http.insecure_skip_verify
	}
}
