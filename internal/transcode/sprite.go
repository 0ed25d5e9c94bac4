package transcode

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"os"
	"os/exec"
	"path/filepath"
	"sort"

	"github.com/disintegration/imaging"
)

const (
	spriteTileWidth = 160
	spriteColumns   = 10
	// one tile every N seconds of video
	spriteInterval = 5.0
)

// SpriteIndex describes the layout of a scrub sprite sheet so a player can
// map a playback position to a tile.
type SpriteIndex struct {
	IntervalSeconds float64 `json:"interval_seconds"`
	TileWidth       int     `json:"tile_width"`
	TileHeight      int     `json:"tile_height"`
	Columns         int     `json:"columns"`
	Rows            int     `json:"rows"`
	Count           int     `json:"count"`
}

// spriteGrid computes the sheet dimensions for a tile count.
func spriteGrid(count, columns int) (cols, rows int) {
	if count <= 0 {
		return 0, 0
	}
	cols = columns
	if count < cols {
		cols = count
	}
	rows = (count + cols - 1) / cols
	return cols, rows
}

// sprite extracts evenly spaced frames and tiles them into one sheet used
// for scrub previews.
func (p *Pipeline) sprite(ctx context.Context, src, workDir string, duration float64) (string, *SpriteIndex, error) {
	frameDir := filepath.Join(workDir, "sprite-frames")
	if err := os.MkdirAll(frameDir, 0o755); err != nil {
		return "", nil, err
	}

	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-hide_banner", "-loglevel", "error", "-y",
		"-i", src,
		"-vf", fmt.Sprintf("fps=1/%g,scale=%d:-2", spriteInterval, spriteTileWidth),
		filepath.Join(frameDir, "tile-%04d.jpg"),
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", nil, fmt.Errorf("extract sprite frames: %w (%s)", err, stderr.String())
	}

	frames, err := filepath.Glob(filepath.Join(frameDir, "tile-*.jpg"))
	if err != nil || len(frames) == 0 {
		return "", nil, fmt.Errorf("no sprite frames produced")
	}
	sort.Strings(frames)

	first, err := imaging.Open(frames[0])
	if err != nil {
		return "", nil, fmt.Errorf("open sprite frame: %w", err)
	}
	tileW := first.Bounds().Dx()
	tileH := first.Bounds().Dy()

	cols, rows := spriteGrid(len(frames), spriteColumns)
	sheet := imaging.New(cols*tileW, rows*tileH, color.NRGBA{})

	for i, f := range frames {
		tile, err := imaging.Open(f)
		if err != nil {
			return "", nil, fmt.Errorf("open sprite frame %d: %w", i, err)
		}
		x := (i % cols) * tileW
		y := (i / cols) * tileH
		sheet = imaging.Paste(sheet, tile, image.Pt(x, y))
	}

	sheetPath := filepath.Join(workDir, "sprite.jpg")
	if err := imaging.Save(sheet, sheetPath, imaging.JPEGQuality(70)); err != nil {
		return "", nil, fmt.Errorf("save sprite sheet: %w", err)
	}

	return sheetPath, &SpriteIndex{
		IntervalSeconds: spriteInterval,
		TileWidth:       tileW,
		TileHeight:      tileH,
		Columns:         cols,
		Rows:            rows,
		Count:           len(frames),
	}, nil
}
