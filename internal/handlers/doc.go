// Package handlers provides HTTP request handlers for the photoframe API.
//
// It includes handlers for:
//   - Enqueueing and inspecting pipeline tasks
//   - Queue and worker statistics
//   - Serving stored originals and thumbnails through the image proxy
//   - Health checks and Prometheus metrics
package handlers
