// Package middleware provides HTTP middleware for the photoframe API.
//
// It includes:
//   - Request logging in W3C Extended Log Format
//   - Prometheus request metrics with path normalization
//   - Response compression (gzip)
//   - Configurable filtering for health checks and the image proxy
package middleware
