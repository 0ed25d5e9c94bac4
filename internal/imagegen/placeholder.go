package imagegen

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image/jpeg"

	"github.com/disintegration/imaging"
)

const placeholderWidth = 32

// Placeholder produces a tiny blurred stand-in for an image, returned as a
// base64 data URI small enough to inline in markup while the real variant
// loads.
func Placeholder(ctx context.Context, src []byte) (string, error) {
	img, err := decode(ctx, src)
	if err != nil {
		return "", fmt.Errorf("decode for placeholder: %w", err)
	}

	tiny := imaging.Resize(img, placeholderWidth, 0, imaging.Lanczos)
	tiny = imaging.Blur(tiny, 1.5)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, tiny, &jpeg.Options{Quality: 40}); err != nil {
		return "", fmt.Errorf("encode placeholder: %w", err)
	}
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// DominantColor averages the image down to a single pixel and reports it as
// a #rrggbb hex string, suitable as a background swatch behind placeholders.
func DominantColor(ctx context.Context, src []byte) (string, error) {
	img, err := decode(ctx, src)
	if err != nil {
		return "", fmt.Errorf("decode for dominant color: %w", err)
	}

	px := imaging.Resize(img, 1, 1, imaging.Box)
	c := px.NRGBAAt(0, 0)
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B), nil
}

// Swatch computes both the placeholder and dominant color with a single
// decode of the source.
func Swatch(ctx context.Context, src []byte) (placeholder, dominant string, err error) {
	img, err := decode(ctx, src)
	if err != nil {
		return "", "", fmt.Errorf("decode for swatch: %w", err)
	}

	tiny := imaging.Resize(img, placeholderWidth, 0, imaging.Lanczos)
	tiny = imaging.Blur(tiny, 1.5)
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, tiny, &jpeg.Options{Quality: 40}); err != nil {
		return "", "", fmt.Errorf("encode placeholder: %w", err)
	}
	placeholder = "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())

	px := imaging.Resize(img, 1, 1, imaging.Box)
	c := px.NRGBAAt(0, 0)
	dominant = fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
	return placeholder, dominant, nil
}
