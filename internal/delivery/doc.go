// Package delivery uploads rendered variants to a storage backend and
// resolves asset requests to delivery URLs. Backends are pluggable: a
// local filesystem backend with atomic writes and an S3 backend with an
// optional CDN prefix. The router keeps an LRU cache over resolutions and
// degrades to the best available variant when a preset is missing.
package delivery
