// Package api hosts the HTTP server, middleware, and REST handlers for operator
// access. Notable routes:
//   - GET /healthz / readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/cycles to start a crawl cycle in the background.
//   - GET /v1/cycles/last for the summary of the most recent cycle.
package api
