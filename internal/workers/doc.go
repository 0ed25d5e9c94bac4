// Package workers computes worker pool sizes for the ingestion pipeline
// based on available CPUs, with an environment override for operators.
package workers
