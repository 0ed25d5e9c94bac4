package inspect

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"

	_ "image/gif"  // GIF decoding
	_ "image/jpeg" // JPEG decoding
	_ "image/png"  // PNG decoding

	"github.com/google/uuid"
	_ "golang.org/x/image/bmp"  // BMP decoding
	_ "golang.org/x/image/tiff" // TIFF decoding
	_ "golang.org/x/image/webp" // WebP decoding

	"media-pipeline/internal/catalog"
	"media-pipeline/internal/logging"
)

var (
	// ErrSignatureMismatch is returned when a file's magic bytes contradict
	// its declared MIME type. This is a hard rejection: a disguised payload,
	// not a recoverable formatting quirk.
	ErrSignatureMismatch = errors.New("inspect: signature does not match declared type")

	// ErrUnsupportedKind is returned for content the pipeline does not
	// process. No best-effort handling is attempted.
	ErrUnsupportedKind = errors.New("inspect: unsupported media kind")
)

// Properties are the intrinsic properties extracted from a validated upload.
type Properties struct {
	Kind   catalog.Kind
	Format string // detected container/codec family, e.g. "jpeg", "mp4"
	catalog.Properties
}

// Inspector validates uploads and extracts intrinsic properties. Video and
// audio probing shells out to ffprobe and is disabled when the toolchain is
// absent.
type Inspector struct {
	scratchDir   string
	probeEnabled bool
}

// New creates an Inspector. scratchDir holds short-lived probe files;
// probeEnabled should reflect ffprobe availability (config.VideoEnabled).
func New(scratchDir string, probeEnabled bool) *Inspector {
	return &Inspector{scratchDir: scratchDir, probeEnabled: probeEnabled}
}

// Inspect validates data against declaredMime and extracts intrinsic
// properties. The declared type must agree with the detected signature;
// generic declarations (empty or application/octet-stream) defer to
// detection.
func (i *Inspector) Inspect(ctx context.Context, data []byte, declaredMime string) (*Properties, error) {
	format, kind := DetectSignature(data)
	if kind == "" {
		return nil, fmt.Errorf("%w: unrecognized signature (declared %q)", ErrUnsupportedKind, declaredMime)
	}

	if !mimeCompatible(declaredMime, format, kind) {
		return nil, fmt.Errorf("%w: declared %q, detected %s/%s", ErrSignatureMismatch, declaredMime, kind, format)
	}

	props := &Properties{Kind: kind, Format: format}

	switch kind {
	case catalog.KindImage:
		if cfg, _, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
			props.Width = cfg.Width
			props.Height = cfg.Height
		} else if i.probeEnabled {
			// heif/avif/jxl have no registered Go decoder; ffprobe reads
			// their headers fine.
			if err := i.probeInto(ctx, data, format, props); err != nil {
				logging.Debug("image probe fallback failed for %s: %v", format, err)
			}
		}
	case catalog.KindVideo, catalog.KindAudio:
		if !i.probeEnabled {
			return nil, fmt.Errorf("%w: %s content requires ffprobe", ErrUnsupportedKind, kind)
		}
		if err := i.probeInto(ctx, data, format, props); err != nil {
			return nil, fmt.Errorf("probe %s: %w", format, err)
		}
	case catalog.KindDocument:
		// No intrinsic properties extracted for documents.
	}

	return props, nil
}

// probeInto writes data to a scratch file and fills props from a container
// header parse. ffprobe needs a seekable input: mp4 moov atoms commonly sit
// at the end of the file, out of reach of a pipe.
func (i *Inspector) probeInto(ctx context.Context, data []byte, format string, props *Properties) error {
	path := filepath.Join(i.scratchDir, "probe-"+uuid.NewString()+"."+format)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write probe file: %w", err)
	}
	defer func() {
		if err := os.Remove(path); err != nil {
			logging.Warn("failed to remove probe file %s: %v", path, err)
		}
	}()

	info, err := Probe(ctx, path)
	if err != nil {
		return err
	}
	props.Width = info.Width
	props.Height = info.Height
	props.Duration = info.Duration
	props.FrameRate = info.FrameRate
	props.Codec = info.Codec
	props.ColorProfile = info.ColorSpace
	return nil
}

// mimeKinds maps MIME prefixes to the kinds they may declare.
var genericMimes = map[string]bool{
	"":                         true,
	"application/octet-stream": true,
	"binary/octet-stream":      true,
}

// mimeFormats lists detected formats acceptable for specific MIME subtypes
// whose names differ from ours.
var mimeFormats = map[string][]string{
	"image/jpeg":       {"jpeg"},
	"image/jpg":        {"jpeg"},
	"image/png":        {"png"},
	"image/gif":        {"gif"},
	"image/webp":       {"webp"},
	"image/bmp":        {"bmp"},
	"image/tiff":       {"tiff"},
	"image/heic":       {"heif"},
	"image/heif":       {"heif"},
	"image/avif":       {"avif"},
	"image/jxl":        {"jxl"},
	"video/mp4":        {"mp4"},
	"video/quicktime":  {"mov", "mp4"},
	"video/webm":       {"webm", "mkv"},
	"video/x-matroska": {"mkv", "webm"},
	"video/x-msvideo":  {"avi"},
	"audio/mpeg":       {"mp3"},
	"audio/mp3":        {"mp3"},
	"audio/flac":       {"flac"},
	"audio/x-flac":     {"flac"},
	"audio/ogg":        {"ogg"},
	"audio/wav":        {"wav"},
	"audio/x-wav":      {"wav"},
	"application/pdf":  {"pdf"},
}

func mimeCompatible(declared, format string, kind catalog.Kind) bool {
	declared = strings.ToLower(strings.TrimSpace(declared))
	if idx := strings.Index(declared, ";"); idx != -1 {
		declared = strings.TrimSpace(declared[:idx])
	}
	if genericMimes[declared] {
		return true
	}

	if formats, ok := mimeFormats[declared]; ok {
		for _, f := range formats {
			if f == format {
				return true
			}
		}
		return false
	}

	// Unlisted subtype: accept if at least the top-level type agrees.
	switch {
	case strings.HasPrefix(declared, "image/"):
		return kind == catalog.KindImage
	case strings.HasPrefix(declared, "video/"):
		return kind == catalog.KindVideo
	case strings.HasPrefix(declared, "audio/"):
		return kind == catalog.KindAudio
	}
	return false
}
