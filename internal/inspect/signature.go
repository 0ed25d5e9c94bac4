package inspect

import (
	"bytes"

	"media-pipeline/internal/catalog"
)

// DetectSignature classifies content by its magic bytes. It returns the
// detected format name and media kind, or empty values when the signature is
// not recognized. Only the header is examined; no decoding happens here.
func DetectSignature(data []byte) (string, catalog.Kind) {
	if len(data) < 4 {
		return "", ""
	}
	header := data
	if len(header) > 64 {
		header = header[:64]
	}

	switch {
	case header[0] == 0xFF && header[1] == 0xD8 && header[2] == 0xFF:
		return "jpeg", catalog.KindImage

	case len(header) >= 8 && bytes.Equal(header[:8], []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}):
		return "png", catalog.KindImage

	case bytes.HasPrefix(header, []byte("GIF87a")) || bytes.HasPrefix(header, []byte("GIF89a")):
		return "gif", catalog.KindImage

	case len(header) >= 12 && bytes.Equal(header[:4], []byte("RIFF")) && bytes.Equal(header[8:12], []byte("WEBP")):
		return "webp", catalog.KindImage

	case header[0] == 'B' && header[1] == 'M':
		return "bmp", catalog.KindImage

	case bytes.HasPrefix(header, []byte{0x49, 0x49, 0x2A, 0x00}) || bytes.HasPrefix(header, []byte{0x4D, 0x4D, 0x00, 0x2A}):
		return "tiff", catalog.KindImage

	case header[0] == 0xFF && header[1] == 0x0A:
		return "jxl", catalog.KindImage

	case len(header) >= 12 && bytes.Equal(header[:4], []byte{0x00, 0x00, 0x00, 0x0C}) && bytes.Equal(header[4:8], []byte("JXL ")):
		return "jxl", catalog.KindImage

	case len(header) >= 12 && bytes.Equal(header[4:8], []byte("ftyp")):
		return classifyISOBMFF(string(header[8:12]))

	case len(header) >= 4 && bytes.Equal(header[:4], []byte{0x1A, 0x45, 0xDF, 0xA3}):
		// EBML container: WebM and Matroska share the magic; the DocType
		// string sits within the first kilobyte.
		probe := data
		if len(probe) > 1024 {
			probe = probe[:1024]
		}
		if bytes.Contains(probe, []byte("webm")) {
			return "webm", catalog.KindVideo
		}
		return "mkv", catalog.KindVideo

	case len(header) >= 12 && bytes.Equal(header[:4], []byte("RIFF")) && bytes.Equal(header[8:12], []byte("AVI ")):
		return "avi", catalog.KindVideo

	case len(header) >= 12 && bytes.Equal(header[:4], []byte("RIFF")) && bytes.Equal(header[8:12], []byte("WAVE")):
		return "wav", catalog.KindAudio

	case bytes.HasPrefix(header, []byte("ID3")),
		header[0] == 0xFF && (header[1] == 0xFB || header[1] == 0xF3 || header[1] == 0xF2):
		return "mp3", catalog.KindAudio

	case bytes.HasPrefix(header, []byte("fLaC")):
		return "flac", catalog.KindAudio

	case bytes.HasPrefix(header, []byte("OggS")):
		return "ogg", catalog.KindAudio

	case bytes.HasPrefix(header, []byte("%PDF-")):
		return "pdf", catalog.KindDocument
	}

	return "", ""
}

// classifyISOBMFF resolves an ISO base media file format brand to a concrete
// format. HEIF/AVIF stills share the container with MP4/MOV video.
func classifyISOBMFF(brand string) (string, catalog.Kind) {
	switch brand {
	case "heic", "heix", "hevc", "hevx", "mif1", "msf1":
		return "heif", catalog.KindImage
	case "avif", "avis":
		return "avif", catalog.KindImage
	case "qt  ":
		return "mov", catalog.KindVideo
	default:
		return "mp4", catalog.KindVideo
	}
}
