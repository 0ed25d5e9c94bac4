package analytics

import "time"

// ServeEvent records one delivery of a variant to a client. Events are
// append-only; nothing in the pipeline ever rewrites history.
type ServeEvent struct {
	AssetID          string    `json:"assetId"`
	PresetName       string    `json:"presetName"`
	FormatServed     string    `json:"formatServed"`
	BytesTransferred int64     `json:"bytesTransferred"`
	LatencyMs        int       `json:"latencyMs"`
	DeviceClass      string    `json:"deviceClass,omitempty"` // mobile, desktop, bot
	Timestamp        time.Time `json:"timestamp"`
}

// Recommendation kinds produced by the advisor.
const (
	RecUnusedVariant       = "unused-variant"
	RecRecompressCandidate = "recompress-candidate"
	RecOversizedOriginal   = "oversized-original"
)

// Recommendation is an ephemeral advisory snapshot. It carries evidence so
// an operator can judge it without re-running the aggregation.
type Recommendation struct {
	AssetID     string    `json:"assetId"`
	PresetName  string    `json:"presetName,omitempty"`
	Kind        string    `json:"kind"`
	Evidence    string    `json:"evidence"`
	GeneratedAt time.Time `json:"generatedAt"`
}
