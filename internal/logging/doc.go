// Package logging provides leveled logging for the media pipeline.
//
// The level is resolved once from the DEBUG and LOG_LEVEL environment
// variables; output goes through the standard library logger so the
// process-wide flags and destination apply.
package logging
