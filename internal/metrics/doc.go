// Package metrics defines Prometheus collectors for the photoframe
// ingestion server: queue throughput, pipeline stage timings, storage
// provider operations, database queries and the HTTP surface.
//
// Collectors are registered with promauto at package init and exposed
// via the /metrics endpoint.
package metrics
