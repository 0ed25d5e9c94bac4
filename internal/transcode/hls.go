package transcode

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
)

// masterManifest renders an HLS master playlist over the encoded rungs,
// lowest bandwidth first so constrained players start on a rung they can
// sustain.
func masterManifest(outputs []RungOutput) string {
	rungs := make([]RungOutput, len(outputs))
	copy(rungs, outputs)
	sort.Slice(rungs, func(i, j int) bool {
		return rungBandwidth(rungs[i].Rung) < rungBandwidth(rungs[j].Rung)
	})

	var b strings.Builder
	b.WriteString("#EXTM3U\n")
	b.WriteString("#EXT-X-VERSION:4\n")
	for _, o := range rungs {
		codecs := "avc1.640028,mp4a.40.2"
		if o.Rung.Codec == "vp9" {
			codecs = "vp09.00.41.08,opus"
		}
		b.WriteString(fmt.Sprintf(
			"#EXT-X-STREAM-INF:BANDWIDTH=%d,RESOLUTION=%dx%d,CODECS=\"%s\"\n",
			rungBandwidth(o.Rung), o.Width, o.Height, codecs,
		))
		b.WriteString(filepath.Base(o.Path))
		b.WriteString("\n")
	}
	return b.String()
}

// rungBandwidth estimates total bits per second from the rung's rate
// strings, with 10% container overhead.
func rungBandwidth(r Rung) int {
	return (parseRate(r.VideoBitrate) + parseRate(r.AudioBitrate)) * 110 / 100
}

// parseRate converts ffmpeg rate strings ("2800k", "1M") to bits/second.
func parseRate(rate string) int {
	if rate == "" {
		return 0
	}
	mult := 1
	switch rate[len(rate)-1] {
	case 'k', 'K':
		mult = 1000
		rate = rate[:len(rate)-1]
	case 'm', 'M':
		mult = 1000000
		rate = rate[:len(rate)-1]
	}
	var n int
	if _, err := fmt.Sscanf(rate, "%d", &n); err != nil {
		return 0
	}
	return n * mult
}
