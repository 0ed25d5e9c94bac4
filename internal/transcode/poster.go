package transcode

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"time"
)

// posterTimestamp picks the poster frame time. Frame zero is usually black
// or a fade-in, so the default sits a few seconds in, clamped to the middle
// of clips shorter than that.
func posterTimestamp(at time.Duration, duration float64) float64 {
	ts := at.Seconds()
	if duration > 0 && ts >= duration {
		ts = duration / 2
	}
	if ts < 0 {
		ts = 0
	}
	return ts
}

func (p *Pipeline) poster(ctx context.Context, src, workDir string, at time.Duration, duration float64) (string, error) {
	outPath := filepath.Join(workDir, "poster.jpg")
	ts := posterTimestamp(at, duration)

	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-hide_banner", "-loglevel", "error", "-y",
		"-ss", fmt.Sprintf("%.3f", ts),
		"-i", src,
		"-frames:v", "1",
		"-q:v", "2",
		outPath,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("extract poster: %w (%s)", err, stderr.String())
	}
	return outPath, nil
}
