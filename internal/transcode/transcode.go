package transcode

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"media-pipeline/internal/inspect"
	"media-pipeline/internal/logging"
	"media-pipeline/internal/metrics"
)

// Version identifies the transcode pipeline. It participates in video
// variant storage keys so a ladder or encoder change rolls out under fresh
// keys, independently of the image pipeline's versioning.
const Version = "v1"

// RungOutput is one successfully encoded ladder rung.
type RungOutput struct {
	Rung   Rung
	Path   string
	Width  int
	Height int
	Size   int64
}

// Result collects everything a transcode run produced. Failures is keyed by
// rung name; a run with some failed rungs is still usable as long as at
// least one rung encoded.
type Result struct {
	Source     *inspect.ProbeResult
	WorkDir    string // holds every produced file; caller removes when done
	Outputs    []RungOutput
	Failures   map[string]string
	PosterPath string
	SpritePath string
	SpriteIdx  *SpriteIndex
	Manifest   string
}

// Options tunes a single transcode run.
type Options struct {
	Ladder   []Rung
	PosterAt time.Duration // poster timestamp, clamped to the clip
	Sprite   bool
	HLS      bool
}

// Pipeline runs ffmpeg ladder encodes into a scratch directory. Outputs are
// plain files; the caller owns uploading and cleanup.
type Pipeline struct {
	scratchDir  string
	rungTimeout time.Duration
}

// New builds a Pipeline. rungTimeout bounds each individual encode; zero
// means no per-rung deadline beyond the caller's context.
func New(scratchDir string, rungTimeout time.Duration) *Pipeline {
	return &Pipeline{scratchDir: scratchDir, rungTimeout: rungTimeout}
}

// Transcode probes src and encodes every applicable ladder rung. Rungs run
// sequentially because each encode already saturates the CPU. A rung
// failure is recorded and the run continues; the error return is non-nil
// only when probing fails or no rung at all succeeded.
func (p *Pipeline) Transcode(ctx context.Context, src string, opts Options) (*Result, error) {
	ladder := opts.Ladder
	if len(ladder) == 0 {
		ladder = DefaultLadder
	}
	if err := ValidateLadder(ladder); err != nil {
		return nil, err
	}

	info, err := inspect.Probe(ctx, src)
	if err != nil {
		return nil, fmt.Errorf("probe source: %w", err)
	}

	workDir, err := os.MkdirTemp(p.scratchDir, "transcode-")
	if err != nil {
		return nil, fmt.Errorf("create work dir: %w", err)
	}
	res := &Result{Source: info, WorkDir: workDir, Failures: make(map[string]string)}

	for _, rung := range applicableRungs(ladder, info.Height) {
		out, err := p.encodeRung(ctx, src, workDir, rung, info)
		if err != nil {
			if ctx.Err() != nil {
				os.RemoveAll(workDir)
				return nil, ctx.Err()
			}
			logging.Warn("rung %s failed for %s: %v", rung.Name, filepath.Base(src), err)
			metrics.TranscodeRungFailures.WithLabelValues(rung.Name).Inc()
			res.Failures[rung.Name] = err.Error()
			continue
		}
		res.Outputs = append(res.Outputs, out)
	}
	if len(res.Outputs) == 0 {
		os.RemoveAll(workDir)
		return nil, fmt.Errorf("all %d rungs failed", len(res.Failures))
	}

	posterAt := opts.PosterAt
	if posterAt <= 0 {
		posterAt = 3 * time.Second
	}
	poster, err := p.poster(ctx, src, workDir, posterAt, info.Duration)
	if err != nil {
		logging.Warn("poster extraction failed for %s: %v", filepath.Base(src), err)
	} else {
		res.PosterPath = poster
	}

	if opts.Sprite {
		spritePath, idx, err := p.sprite(ctx, src, workDir, info.Duration)
		if err != nil {
			logging.Warn("sprite generation failed for %s: %v", filepath.Base(src), err)
		} else {
			res.SpritePath = spritePath
			res.SpriteIdx = idx
		}
	}

	if opts.HLS {
		res.Manifest = masterManifest(res.Outputs)
	}
	return res, nil
}

// encodeRung runs one ffmpeg encode with its own deadline.
func (p *Pipeline) encodeRung(ctx context.Context, src, workDir string, rung Rung, info *inspect.ProbeResult) (RungOutput, error) {
	if p.rungTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.rungTimeout)
		defer cancel()
	}

	outPath := filepath.Join(workDir, rung.Name+"."+rung.Container)
	args := buildRungArgs(src, outPath, rung, info)

	start := time.Now()
	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return RungOutput{}, ctx.Err()
		}
		logging.Error("ffmpeg stderr: %s", stderr.String())
		return RungOutput{}, fmt.Errorf("encode %s: %w", rung.Name, err)
	}
	metrics.TranscodeRungDuration.WithLabelValues(rung.Name).Observe(time.Since(start).Seconds())

	fi, err := os.Stat(outPath)
	if err != nil {
		return RungOutput{}, fmt.Errorf("stat output: %w", err)
	}

	width := 0
	if info.Height > 0 && info.Width > 0 {
		// scale=-2 keeps the aspect ratio and rounds the width to even.
		width = info.Width * rung.Height / info.Height
		width -= width % 2
	}
	return RungOutput{Rung: rung, Path: outPath, Width: width, Height: rung.Height, Size: fi.Size()}, nil
}

// buildRungArgs assembles the ffmpeg invocation for a rung. Kept separate
// from process handling so the argument logic is testable without ffmpeg.
func buildRungArgs(src, out string, rung Rung, info *inspect.ProbeResult) []string {
	args := []string{
		"-hide_banner", "-loglevel", "error", "-y",
		"-i", src,
	}

	switch rung.Codec {
	case "vp9":
		args = append(args,
			"-c:v", "libvpx-vp9",
			"-b:v", rung.VideoBitrate,
			"-row-mt", "1",
			"-c:a", "libopus",
		)
	default:
		args = append(args,
			"-c:v", "libx264",
			"-preset", "fast",
			"-b:v", rung.VideoBitrate,
			"-maxrate", rung.VideoBitrate,
			"-bufsize", doubleRate(rung.VideoBitrate),
			"-c:a", "aac",
		)
	}
	args = append(args, "-b:a", rung.AudioBitrate)

	if info == nil || info.Height == 0 || rung.Height < info.Height {
		args = append(args, "-vf", fmt.Sprintf("scale=-2:%d", rung.Height))
	}
	if rung.MaxFrameRate > 0 && info != nil && info.FrameRate > rung.MaxFrameRate {
		args = append(args, "-r", fmt.Sprintf("%g", rung.MaxFrameRate))
	}

	if rung.Container == "mp4" {
		args = append(args, "-movflags", "+faststart", "-f", "mp4")
	} else {
		args = append(args, "-f", "webm")
	}
	return append(args, out)
}

// doubleRate turns "2800k" into "5600k" for the encoder buffer size.
func doubleRate(rate string) string {
	if len(rate) < 2 {
		return rate
	}
	unit := rate[len(rate)-1]
	var n int
	if _, err := fmt.Sscanf(rate[:len(rate)-1], "%d", &n); err != nil {
		return rate
	}
	return fmt.Sprintf("%d%c", n*2, unit)
}
