// Package http provides the HTTP REST API implementation.
//
// The HTTP server exposes endpoints for:
//   - Workflow run submission and management
//   - Status and result queries
//   - Health checks
//   - Prometheus metrics
package http
