package imagegen

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"time"

	"media-pipeline/internal/logging"
	"media-pipeline/internal/metrics"
	"media-pipeline/internal/workers"

	"github.com/disintegration/imaging"
	"golang.org/x/sync/errgroup"
)

// Version identifies the rendering pipeline. It participates in variant
// storage keys so that bumping it after an algorithm change forces
// regeneration instead of serving stale derivatives.
const Version = "v1"

// Rendered is one encoded derivative of a source image.
type Rendered struct {
	PresetName string
	Format     string
	Width      int
	Height     int
	Quality    int
	Data       []byte
	Checksum   string
}

// Generator renders preset derivatives from decoded source images.
// The same source bytes and preset list always produce byte-identical
// output, which keeps re-ingestion of deduplicated content a no-op.
type Generator struct {
	presets []Preset
	formats []string
}

// New builds a Generator for the given presets and output formats.
// Formats that need libvips (webp, avif) are dropped with a warning when
// vips is unavailable, leaving the jpeg fallback in place.
func New(presets []Preset, formats []string) (*Generator, error) {
	if len(presets) == 0 {
		presets = DefaultPresets
	}
	if err := ValidatePresets(presets); err != nil {
		return nil, err
	}
	if len(formats) == 0 {
		formats = DefaultFormats
	}

	kept := make([]string, 0, len(formats))
	for _, f := range formats {
		switch f {
		case "jpeg", "png":
			kept = append(kept, f)
		case "webp", "avif":
			if IsVipsAvailable() {
				kept = append(kept, f)
			} else {
				logging.Warn("dropping %s output format: libvips not initialized", f)
			}
		default:
			return nil, fmt.Errorf("imagegen: unsupported output format %q", f)
		}
	}
	if len(kept) == 0 {
		return nil, fmt.Errorf("imagegen: no usable output formats")
	}

	return &Generator{presets: presets, formats: kept}, nil
}

// Presets returns the configured preset ladder.
func (g *Generator) Presets() []Preset { return g.presets }

// Formats returns the active output formats.
func (g *Generator) Formats() []string { return g.formats }

// Generate decodes src once and renders every preset in every configured
// format. Renders run in parallel; the first failure cancels the rest.
func (g *Generator) Generate(ctx context.Context, src []byte) ([]Rendered, error) {
	img, err := decode(ctx, src)
	if err != nil {
		return nil, fmt.Errorf("decode source: %w", err)
	}

	type task struct {
		preset Preset
		format string
	}
	tasks := make([]task, 0, len(g.presets)*len(g.formats))
	for _, p := range g.presets {
		for _, f := range g.formats {
			tasks = append(tasks, task{preset: p, format: f})
		}
	}

	out := make([]Rendered, len(tasks))
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(workers.ForCPU(0))

	for i, t := range tasks {
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			start := time.Now()
			r, err := render(img, t.preset, t.format)
			metrics.VariantRenderDuration.WithLabelValues(t.preset.Name, t.format).Observe(time.Since(start).Seconds())
			if err != nil {
				metrics.VariantRenderErrors.WithLabelValues(t.preset.Name, t.format).Inc()
				return fmt.Errorf("render %s/%s: %w", t.preset.Name, t.format, err)
			}
			out[i] = r
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// render resizes per the preset's fit mode and encodes. Derivatives never
// exceed the source dimensions.
func render(src image.Image, p Preset, format string) (Rendered, error) {
	bounds := src.Bounds()
	srcW, srcH := bounds.Dx(), bounds.Dy()

	var resized image.Image
	switch p.Fit {
	case FitCover:
		// Fill would upscale a small source, so cap the target box first.
		tw, th := p.MaxWidth, p.MaxHeight
		if tw > srcW {
			tw = srcW
		}
		if th > srcH {
			th = srcH
		}
		resized = imaging.Fill(src, tw, th, imaging.Center, imaging.Lanczos)
	default:
		// Fit scales down only; a source smaller than the box passes through.
		resized = imaging.Fit(src, p.MaxWidth, p.MaxHeight, imaging.Lanczos)
	}

	data, err := encode(resized, format, p.Quality)
	if err != nil {
		return Rendered{}, err
	}

	rb := resized.Bounds()
	sum := sha256.Sum256(data)
	return Rendered{
		PresetName: p.Name,
		Format:     format,
		Width:      rb.Dx(),
		Height:     rb.Dy(),
		Quality:    p.Quality,
		Data:       data,
		Checksum:   hex.EncodeToString(sum[:]),
	}, nil
}

func encode(img image.Image, format string, quality int) ([]byte, error) {
	switch format {
	case "jpeg":
		if IsVipsAvailable() {
			return encodeWithVips(img, "jpeg", quality)
		}
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case "png":
		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case "webp", "avif":
		return encodeWithVips(img, format, quality)
	default:
		return nil, fmt.Errorf("unsupported output format %q", format)
	}
}

// decode reads src with EXIF auto-orientation applied. Formats the pure-Go
// decoders cannot read fall back to a single-frame ffmpeg extraction.
func decode(ctx context.Context, src []byte) (image.Image, error) {
	img, err := imaging.Decode(bytes.NewReader(src), imaging.AutoOrientation(true))
	if err == nil {
		return img, nil
	}
	logging.Debug("native decode failed (%v), trying ffmpeg", err)
	return decodeWithFFmpeg(ctx, src)
}
