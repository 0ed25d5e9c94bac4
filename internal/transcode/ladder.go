package transcode

import "fmt"

// Rung is one quality level of the transcode ladder. Bitrates are ffmpeg
// rate strings like "2800k".
type Rung struct {
	Name         string
	Height       int
	VideoBitrate string
	AudioBitrate string
	MaxFrameRate float64
	Codec        string // h264 or vp9
	Container    string // mp4 or webm
}

// DefaultLadder is the standard H.264 delivery ladder, highest first.
var DefaultLadder = []Rung{
	{Name: "1080p", Height: 1080, VideoBitrate: "5000k", AudioBitrate: "192k", MaxFrameRate: 60, Codec: "h264", Container: "mp4"},
	{Name: "720p", Height: 720, VideoBitrate: "2800k", AudioBitrate: "128k", MaxFrameRate: 60, Codec: "h264", Container: "mp4"},
	{Name: "480p", Height: 480, VideoBitrate: "1400k", AudioBitrate: "128k", MaxFrameRate: 30, Codec: "h264", Container: "mp4"},
	{Name: "360p", Height: 360, VideoBitrate: "800k", AudioBitrate: "96k", MaxFrameRate: 30, Codec: "h264", Container: "mp4"},
}

// VP9Ladder mirrors the default ladder in VP9/WebM for clients that prefer
// it. It is opt-in because the encodes are considerably slower.
var VP9Ladder = []Rung{
	{Name: "1080p-vp9", Height: 1080, VideoBitrate: "3500k", AudioBitrate: "160k", MaxFrameRate: 60, Codec: "vp9", Container: "webm"},
	{Name: "720p-vp9", Height: 720, VideoBitrate: "1800k", AudioBitrate: "128k", MaxFrameRate: 60, Codec: "vp9", Container: "webm"},
	{Name: "480p-vp9", Height: 480, VideoBitrate: "900k", AudioBitrate: "96k", MaxFrameRate: 30, Codec: "vp9", Container: "webm"},
}

// ValidateLadder rejects ladders the pipeline cannot execute.
func ValidateLadder(ladder []Rung) error {
	if len(ladder) == 0 {
		return fmt.Errorf("transcode: empty ladder")
	}
	seen := make(map[string]bool, len(ladder))
	for _, r := range ladder {
		if r.Name == "" {
			return fmt.Errorf("transcode: rung with empty name")
		}
		if seen[r.Name] {
			return fmt.Errorf("transcode: duplicate rung %q", r.Name)
		}
		seen[r.Name] = true
		if r.Height <= 0 {
			return fmt.Errorf("transcode: rung %q has non-positive height", r.Name)
		}
		if r.VideoBitrate == "" {
			return fmt.Errorf("transcode: rung %q has no video bitrate", r.Name)
		}
		switch r.Codec {
		case "h264", "vp9":
		default:
			return fmt.Errorf("transcode: rung %q has unsupported codec %q", r.Name, r.Codec)
		}
		switch r.Container {
		case "mp4", "webm":
		default:
			return fmt.Errorf("transcode: rung %q has unsupported container %q", r.Name, r.Container)
		}
		if r.Codec == "vp9" && r.Container == "mp4" {
			return fmt.Errorf("transcode: rung %q pairs vp9 with mp4", r.Name)
		}
	}
	return nil
}

// applicableRungs drops rungs taller than the source so the ladder never
// upscales. When the source is smaller than every rung, the smallest rung
// is kept and capped to the source height so at least one output exists.
func applicableRungs(ladder []Rung, sourceHeight int) []Rung {
	if sourceHeight <= 0 {
		return ladder
	}
	out := make([]Rung, 0, len(ladder))
	for _, r := range ladder {
		if r.Height <= sourceHeight {
			out = append(out, r)
		}
	}
	if len(out) > 0 {
		return out
	}
	smallest := ladder[0]
	for _, r := range ladder[1:] {
		if r.Height < smallest.Height {
			smallest = r
		}
	}
	smallest.Height = sourceHeight
	return []Rung{smallest}
}
