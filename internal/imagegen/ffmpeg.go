package imagegen

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"os/exec"

	"media-pipeline/internal/logging"
)

// decodeWithFFmpeg extracts a single frame via ffmpeg for inputs the native
// decoders reject (HEIC, exotic TIFF variants, camera raw). The frame comes
// back over a pipe as PNG so nothing touches the scratch directory.
func decodeWithFFmpeg(ctx context.Context, src []byte) (image.Image, error) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return nil, fmt.Errorf("ffmpeg not available: %w", err)
	}

	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-hide_banner", "-loglevel", "error",
		"-i", "pipe:0",
		"-frames:v", "1",
		"-f", "image2pipe",
		"-vcodec", "png",
		"pipe:1",
	)
	cmd.Stdin = bytes.NewReader(src)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		logging.Debug("ffmpeg decode failed: %s", stderr.String())
		return nil, fmt.Errorf("ffmpeg decode: %w", err)
	}

	img, err := png.Decode(&stdout)
	if err != nil {
		return nil, fmt.Errorf("decode ffmpeg frame: %w", err)
	}
	return img, nil
}
