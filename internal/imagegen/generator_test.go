package imagegen

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"strings"
	"testing"
)

// encodePNG builds a solid-color test image. PNG keeps the color exact,
// which matters for the swatch assertions.
func encodePNG(t *testing.T, w, h int, c color.NRGBA) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode test image: %v", err)
	}
	return buf.Bytes()
}

func encodeJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x % 256), G: uint8(y % 256), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		t.Fatalf("encode test image: %v", err)
	}
	return buf.Bytes()
}

func TestValidatePresets(t *testing.T) {
	tests := []struct {
		name    string
		presets []Preset
		wantErr bool
	}{
		{"defaults", DefaultPresets, false},
		{"empty", nil, true},
		{"duplicate name", []Preset{
			{Name: "a", MaxWidth: 10, MaxHeight: 10, Fit: FitContain, Quality: 80},
			{Name: "a", MaxWidth: 20, MaxHeight: 20, Fit: FitContain, Quality: 80},
		}, true},
		{"zero width", []Preset{
			{Name: "a", MaxWidth: 0, MaxHeight: 10, Fit: FitContain, Quality: 80},
		}, true},
		{"bad fit", []Preset{
			{Name: "a", MaxWidth: 10, MaxHeight: 10, Fit: "stretch", Quality: 80},
		}, true},
		{"quality out of range", []Preset{
			{Name: "a", MaxWidth: 10, MaxHeight: 10, Fit: FitContain, Quality: 101},
		}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePresets(tt.presets)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidatePresets() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestGenerateContainNeverUpscales(t *testing.T) {
	gen, err := New([]Preset{
		{Name: "medium", MaxWidth: 800, MaxHeight: 800, Fit: FitContain, Quality: 80},
	}, []string{"jpeg"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	// Source is 300x200, well inside the 800x800 box.
	src := encodeJPEG(t, 300, 200)
	out, err := gen.Generate(context.Background(), src)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("got %d renders, want 1", len(out))
	}
	if out[0].Width != 300 || out[0].Height != 200 {
		t.Errorf("small source was scaled to %dx%d, want 300x200", out[0].Width, out[0].Height)
	}
}

func TestGenerateContainPreservesAspect(t *testing.T) {
	gen, err := New([]Preset{
		{Name: "small", MaxWidth: 400, MaxHeight: 400, Fit: FitContain, Quality: 80},
	}, []string{"jpeg"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	src := encodeJPEG(t, 1600, 800)
	out, err := gen.Generate(context.Background(), src)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if out[0].Width != 400 || out[0].Height != 200 {
		t.Errorf("got %dx%d, want 400x200", out[0].Width, out[0].Height)
	}
}

func TestGenerateCoverCropsToBox(t *testing.T) {
	gen, err := New([]Preset{
		{Name: "thumbnail", MaxWidth: 200, MaxHeight: 200, Fit: FitCover, Quality: 75},
	}, []string{"jpeg"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	src := encodeJPEG(t, 1600, 800)
	out, err := gen.Generate(context.Background(), src)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if out[0].Width != 200 || out[0].Height != 200 {
		t.Errorf("cover render is %dx%d, want exactly 200x200", out[0].Width, out[0].Height)
	}
}

func TestGenerateCoverCapsAtSource(t *testing.T) {
	gen, err := New([]Preset{
		{Name: "og", MaxWidth: 1200, MaxHeight: 630, Fit: FitCover, Quality: 85},
	}, []string{"jpeg"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	src := encodeJPEG(t, 600, 400)
	out, err := gen.Generate(context.Background(), src)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if out[0].Width > 600 || out[0].Height > 400 {
		t.Errorf("cover render %dx%d exceeds source 600x400", out[0].Width, out[0].Height)
	}
}

func TestGenerateDeterministic(t *testing.T) {
	gen, err := New([]Preset{
		{Name: "small", MaxWidth: 400, MaxHeight: 400, Fit: FitContain, Quality: 80},
		{Name: "thumbnail", MaxWidth: 200, MaxHeight: 200, Fit: FitCover, Quality: 75},
	}, []string{"jpeg", "png"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	src := encodeJPEG(t, 800, 600)
	first, err := gen.Generate(context.Background(), src)
	if err != nil {
		t.Fatalf("first Generate: %v", err)
	}
	second, err := gen.Generate(context.Background(), src)
	if err != nil {
		t.Fatalf("second Generate: %v", err)
	}
	if len(first) != len(second) {
		t.Fatalf("render counts differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].Checksum != second[i].Checksum {
			t.Errorf("render %s/%s not deterministic: %s vs %s",
				first[i].PresetName, first[i].Format, first[i].Checksum, second[i].Checksum)
		}
	}
}

func TestGenerateAllDefaultPresets(t *testing.T) {
	gen, err := New(nil, []string{"jpeg"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	src := encodeJPEG(t, 2500, 1500)
	out, err := gen.Generate(context.Background(), src)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(out) != len(DefaultPresets) {
		t.Fatalf("got %d renders, want %d", len(out), len(DefaultPresets))
	}
	for _, r := range out {
		if len(r.Data) == 0 {
			t.Errorf("render %s/%s has no data", r.PresetName, r.Format)
		}
		if r.Checksum == "" {
			t.Errorf("render %s/%s has no checksum", r.PresetName, r.Format)
		}
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := New(nil, []string{"bmp"}); err == nil {
		t.Error("expected error for unsupported output format")
	}
}

func TestGenerateRejectsGarbage(t *testing.T) {
	gen, err := New(nil, []string{"jpeg"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := gen.Generate(context.Background(), []byte("not an image")); err == nil {
		t.Error("expected decode error for garbage input")
	}
}

func TestPlaceholder(t *testing.T) {
	src := encodeJPEG(t, 640, 480)
	ph, err := Placeholder(context.Background(), src)
	if err != nil {
		t.Fatalf("Placeholder: %v", err)
	}
	if !strings.HasPrefix(ph, "data:image/jpeg;base64,") {
		t.Errorf("placeholder is not a jpeg data URI: %.40s", ph)
	}
	if len(ph) > 4096 {
		t.Errorf("placeholder too large to inline: %d bytes", len(ph))
	}
}

func TestDominantColor(t *testing.T) {
	src := encodePNG(t, 64, 64, color.NRGBA{R: 200, G: 30, B: 30, A: 255})
	hex, err := DominantColor(context.Background(), src)
	if err != nil {
		t.Fatalf("DominantColor: %v", err)
	}
	if hex != "#c81e1e" {
		t.Errorf("dominant color = %s, want #c81e1e", hex)
	}
}

func TestSwatchMatchesIndividualCalls(t *testing.T) {
	src := encodePNG(t, 64, 64, color.NRGBA{R: 10, G: 120, B: 240, A: 255})
	ph, dom, err := Swatch(context.Background(), src)
	if err != nil {
		t.Fatalf("Swatch: %v", err)
	}
	wantPh, err := Placeholder(context.Background(), src)
	if err != nil {
		t.Fatalf("Placeholder: %v", err)
	}
	wantDom, err := DominantColor(context.Background(), src)
	if err != nil {
		t.Fatalf("DominantColor: %v", err)
	}
	if ph != wantPh {
		t.Error("Swatch placeholder differs from Placeholder()")
	}
	if dom != wantDom {
		t.Errorf("Swatch dominant color %s differs from DominantColor() %s", dom, wantDom)
	}
}
