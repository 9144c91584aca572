// Package api hosts the optional operator HTTP server that runs alongside a
// scrape. Notable routes:
//   - GET /healthz and /readyz for liveness and database readiness.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/runs/latest and /v1/runs/{run_id} for run progress.
package api
