// Package config loads and validates pipeline configuration from the
// environment, with optional .env overrides for development.
//
// Validation is strict: an unusable storage root, a missing S3 bucket, or a
// nonsensical policy threshold aborts startup rather than degrading silently.
package config
