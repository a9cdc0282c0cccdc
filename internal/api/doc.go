// Package api hosts the operator HTTP server. Routes:
//   - GET /healthz for liveness.
//   - GET /readyz, which fails until headers are loaded and the store answers.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/status for a summary of the polling loop.
package api
