// Package metrics declares the Prometheus instrumentation for the media
// pipeline.
//
// All collectors are registered with the default registry via promauto at
// package load; main exposes them on the metrics port. Covered areas:
//   - Ingestion: attempts, durations, hashed bytes, dedup hits
//   - Variant generation: per-preset render durations and failures
//   - Catalog: query counts, latencies, asset gauges
//   - Delivery: upload volume, retries, resolve cache effectiveness
//   - Analytics: serve-event throughput and advisor runs
package metrics
