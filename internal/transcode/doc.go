// Package transcode runs source videos through a quality ladder with
// ffmpeg, producing progressive MP4 (and optionally VP9/WebM) renditions,
// a poster frame, a scrub sprite sheet, and an HLS master playlist. Rungs
// taller than the source are skipped, and individual rung failures do not
// abort the run.
package transcode
