// Package metrics exposes Prometheus collectors for the scraper pipeline.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	listingPagesTotal          *prometheus.CounterVec
	referencesTotal            *prometheus.CounterVec
	downloadsTotal             *prometheus.CounterVec
	downloadBytesTotal         *prometheus.CounterVec
	fetchesTotal               *prometheus.CounterVec
	fetchDurationSeconds       *prometheus.HistogramVec
	persistTotal               *prometheus.CounterVec
	pipelineTransitionsTotal   *prometheus.CounterVec
	activeWorkers              prometheus.Gauge
	rateLimitDelaysSeconds     *prometheus.HistogramVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		listingPagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "libgen_listing_pages_total",
				Help: "Search listing pages fetched, labeled by status.",
			},
			[]string{"status"},
		)

		referencesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "libgen_references_total",
				Help: "Detail references processed by the worker pool, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		downloadsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "libgen_downloads_total",
				Help: "Resources written to the output area, labeled by category and status.",
			},
			[]string{"category", "status"},
		)

		downloadBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "libgen_download_bytes_total",
				Help: "Bytes written to the output area, labeled by category.",
			},
			[]string{"category"},
		)

		fetchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "libgen_fetches_total",
				Help: "Upstream fetch attempts, labeled by site and status.",
			},
			[]string{"site", "status"},
		)

		fetchDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "libgen_fetch_duration_seconds",
				Help:    "Histogram of upstream fetch latencies, retries included.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"site"},
		)

		persistTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "libgen_persist_total",
				Help: "Records handled by the catalog store, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		pipelineTransitionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "libgen_pipeline_transitions_total",
				Help: "Pipeline state transitions, labeled by the state entered.",
			},
			[]string{"state"},
		)

		activeWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "libgen_active_workers",
				Help: "Number of workers currently processing a reference.",
			},
		)

		rateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "libgen_rate_limit_delays_seconds",
				Help:    "Histogram of rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"host"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveListingPage counts a listing page by status ("ok", "failed").
func ObserveListingPage(status string) {
	if listingPagesTotal == nil {
		return
	}
	listingPagesTotal.WithLabelValues(status).Inc()
}

// ObserveReference counts a processed detail reference by outcome.
func ObserveReference(outcome string) {
	if referencesTotal == nil {
		return
	}
	referencesTotal.WithLabelValues(outcome).Inc()
}

// ObserveDownload counts a resource write and the bytes it produced.
func ObserveDownload(category, status string, bytesWritten int) {
	if downloadsTotal == nil {
		return
	}
	downloadsTotal.WithLabelValues(category, status).Inc()
	if bytesWritten > 0 {
		downloadBytesTotal.WithLabelValues(category).Add(float64(bytesWritten))
	}
}

// ObserveFetch records one upstream fetch.
func ObserveFetch(rawURL string, status int, duration time.Duration) {
	if fetchesTotal == nil {
		return
	}
	site := SanitizeSite(rawURL)
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	fetchesTotal.WithLabelValues(site, label).Inc()
	fetchDurationSeconds.WithLabelValues(site).Observe(duration.Seconds())
}

// ObservePersist counts records handled by the store by outcome.
func ObservePersist(outcome string, n int) {
	if persistTotal == nil || n <= 0 {
		return
	}
	persistTotal.WithLabelValues(outcome).Add(float64(n))
}

// ObserveTransition counts a pipeline state change.
func ObserveTransition(state string) {
	if pipelineTransitionsTotal == nil {
		return
	}
	pipelineTransitionsTotal.WithLabelValues(state).Inc()
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	if activeWorkers == nil {
		return
	}
	activeWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	if activeWorkers == nil {
		return
	}
	activeWorkers.Dec()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(host string, duration time.Duration) {
	if rateLimitDelaysSeconds == nil {
		return
	}
	rateLimitDelaysSeconds.WithLabelValues(host).Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	if httpRequestsTotal == nil {
		return
	}
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
