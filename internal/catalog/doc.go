// Package catalog provides the SQLite-backed metadata store for the media
// pipeline.
//
// It holds:
//   - Assets: one row per distinct content hash, with intrinsic properties
//   - Variants: derived renderings, regenerable and individually deletable
//   - Delivery mappings: variant URLs with cache metadata
//   - Tags: many-to-many labels used by search
//
// The catalog uses WAL mode for concurrent reads, enforces foreign keys so
// asset deletion cascades, and maintains an FTS5 trigram index over
// filenames for free-text search. Inserting an asset whose content hash
// already exists returns the existing row instead of failing.
package catalog
