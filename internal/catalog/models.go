package catalog

import (
	"time"

	"github.com/google/uuid"
)

// Kind classifies an asset by its media type.
type Kind string

const (
	// KindImage represents a still image asset.
	KindImage Kind = "image"
	// KindVideo represents a video asset.
	KindVideo Kind = "video"
	// KindAudio represents an audio asset.
	KindAudio Kind = "audio"
	// KindDocument represents a document asset.
	KindDocument Kind = "document"
)

// Properties holds kind-specific intrinsic properties extracted at ingestion.
// Image fields and video fields are mutually exclusive in practice but share
// one struct so the catalog schema stays flat.
type Properties struct {
	Width        int     `json:"width,omitempty"`
	Height       int     `json:"height,omitempty"`
	ColorProfile string  `json:"colorProfile,omitempty"`
	Duration     float64 `json:"duration,omitempty"`
	FrameRate    float64 `json:"frameRate,omitempty"`
	Codec        string  `json:"codec,omitempty"`
}

// Asset is one distinct piece of original media content, identified by the
// hash of its bytes. Exactly one Asset exists per content hash.
type Asset struct {
	ID               string     `json:"id"`
	ContentHash      string     `json:"contentHash"`
	Kind             Kind       `json:"kind"`
	OriginalFilename string     `json:"originalFilename"`
	MimeType         string     `json:"mimeType"`
	ByteSize         int64      `json:"byteSize"`
	Props            Properties `json:"intrinsicProperties"`
	Tags             []string   `json:"tags,omitempty"`
	Placeholder      string     `json:"placeholder,omitempty"`   // base64 blur thumb
	DominantColor    string     `json:"dominantColor,omitempty"` // CSS hex
	UploadedBy       string     `json:"uploadedBy,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
}

// Variant is one derivative rendering of an Asset. Variants are derived data:
// deleting one is always safe because it can be regenerated from the original.
type Variant struct {
	ID          int64     `json:"id"`
	AssetID     string    `json:"assetId"`
	PresetName  string    `json:"presetName"`
	Format      string    `json:"format"`
	Width       int       `json:"width,omitempty"`
	Height      int       `json:"height,omitempty"`
	Bitrate     int       `json:"bitrate,omitempty"` // kbit/s, video only
	ByteSize    int64     `json:"byteSize"`
	StorageKey  string    `json:"storageKey"`
	Checksum    string    `json:"checksum"`
	GeneratedAt time.Time `json:"generatedAt"`
}

// Mapping resolves an uploaded variant to an externally fetchable URL plus
// cache metadata. Mappings follow variant lifetime: created on upload,
// removed on variant or asset deletion.
type Mapping struct {
	AssetID    string    `json:"assetId"`
	PresetName string    `json:"presetName"`
	Format     string    `json:"format"`
	URL        string    `json:"url"`
	ETag       string    `json:"etag"`
	MaxAge     int       `json:"maxAge"` // seconds
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Filter selects assets in Find. Zero values mean "no constraint".
// Tags is an intersection: an asset must carry every listed tag.
type Filter struct {
	Kind  Kind
	Tags  []string
	Query string // free-text over filename and tag names
	Limit int
}

// Stats summarizes catalog contents.
type Stats struct {
	TotalAssets   int `json:"totalAssets"`
	TotalImages   int `json:"totalImages"`
	TotalVideos   int `json:"totalVideos"`
	TotalVariants int `json:"totalVariants"`
	TotalMappings int `json:"totalMappings"`
	TotalTags     int `json:"totalTags"`
}

// assetIDNamespace scopes deterministic asset ids to this pipeline.
var assetIDNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("media-pipeline/asset"))

// AssetID derives the stable asset identifier from a content hash. The same
// bytes always map to the same id, independent of filename or upload time.
func AssetID(contentHash string) string {
	return uuid.NewSHA1(assetIDNamespace, []byte(contentHash)).String()
}
