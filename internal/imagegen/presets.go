package imagegen

import "fmt"

// Fit controls how a preset maps source pixels onto the target box.
type Fit string

const (
	// FitContain scales to fit inside the box, preserving aspect ratio.
	FitContain Fit = "contain"
	// FitCover scales and center-crops to fill the box exactly.
	FitCover Fit = "cover"
)

// Preset is a named rendering target. Quality applies to lossy encoders.
type Preset struct {
	Name      string
	MaxWidth  int
	MaxHeight int
	Fit       Fit
	Quality   int
}

// DefaultPresets is the standard derivative ladder for images.
var DefaultPresets = []Preset{
	{Name: "thumbnail", MaxWidth: 200, MaxHeight: 200, Fit: FitCover, Quality: 75},
	{Name: "small", MaxWidth: 400, MaxHeight: 400, Fit: FitContain, Quality: 80},
	{Name: "medium", MaxWidth: 800, MaxHeight: 800, Fit: FitContain, Quality: 80},
	{Name: "large", MaxWidth: 1280, MaxHeight: 1280, Fit: FitContain, Quality: 82},
	{Name: "xlarge", MaxWidth: 2048, MaxHeight: 2048, Fit: FitContain, Quality: 82},
	{Name: "hero", MaxWidth: 1920, MaxHeight: 1920, Fit: FitContain, Quality: 85},
	{Name: "og", MaxWidth: 1200, MaxHeight: 630, Fit: FitCover, Quality: 85},
}

// DefaultFormats lists the output formats rendered per preset: a modern
// format plus one broadly compatible fallback. AVIF is opt-in.
var DefaultFormats = []string{"webp", "jpeg"}

// ValidatePresets rejects configurations the generator cannot honor.
func ValidatePresets(presets []Preset) error {
	if len(presets) == 0 {
		return fmt.Errorf("imagegen: no presets configured")
	}
	seen := make(map[string]bool, len(presets))
	for _, p := range presets {
		if p.Name == "" {
			return fmt.Errorf("imagegen: preset with empty name")
		}
		if seen[p.Name] {
			return fmt.Errorf("imagegen: duplicate preset %q", p.Name)
		}
		seen[p.Name] = true
		if p.MaxWidth <= 0 || p.MaxHeight <= 0 {
			return fmt.Errorf("imagegen: preset %q has non-positive dimensions", p.Name)
		}
		if p.Fit != FitContain && p.Fit != FitCover {
			return fmt.Errorf("imagegen: preset %q has unknown fit %q", p.Name, p.Fit)
		}
		if p.Quality < 1 || p.Quality > 100 {
			return fmt.Errorf("imagegen: preset %q quality %d out of range", p.Name, p.Quality)
		}
	}
	return nil
}
