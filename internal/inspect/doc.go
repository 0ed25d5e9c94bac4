// Package inspect validates uploaded media and extracts intrinsic
// properties.
//
// Validation compares the byte signature (magic bytes) against the declared
// MIME type; a mismatch is a hard rejection, never a silent coercion.
// Property extraction reads headers only: image dimensions come from
// DecodeConfig, video and audio metadata from an ffprobe container parse
// without decoding frames.
package inspect
