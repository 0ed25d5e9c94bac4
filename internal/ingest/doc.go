// Package ingest orchestrates the ingestion pipeline: a bounded read and
// hash pass, content-addressed deduplication, format inspection, variant
// generation (image presets or the video ladder), cataloging, and delivery
// upload. Batch ingestion runs on a bounded worker pool with streamed
// outcomes and fire-and-forget progress events.
package ingest
