// Package imagegen renders the configured preset ladder of image
// derivatives from a source image. Resizing uses Lanczos resampling via
// the imaging package and never upscales; encoding goes through libvips
// when available for WebP, AVIF, and progressive JPEG output, with a
// pure-Go JPEG fallback. It also produces blurred inline placeholders
// and dominant color swatches.
package imagegen
