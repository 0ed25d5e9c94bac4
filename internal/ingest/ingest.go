package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"media-pipeline/internal/catalog"
	"media-pipeline/internal/config"
	"media-pipeline/internal/dedup"
	"media-pipeline/internal/delivery"
	"media-pipeline/internal/imagegen"
	"media-pipeline/internal/inspect"
	"media-pipeline/internal/logging"
	"media-pipeline/internal/metrics"
	"media-pipeline/internal/transcode"
)

// Meta carries caller-supplied context for an upload.
type Meta struct {
	Filename   string
	UploadedBy string
	Tags       []string
}

// Orchestrator drives the full ingestion pipeline: hash, dedup, inspect,
// generate, catalog, deliver.
type Orchestrator struct {
	cat       *catalog.Catalog
	index     *dedup.Index
	inspector *inspect.Inspector
	images    *imagegen.Generator
	videos    *transcode.Pipeline // nil when ffmpeg is unavailable
	router    *delivery.Router

	scratchDir     string
	maxUploadBytes int64
	hashTimeout    time.Duration
	inspectTimeout time.Duration
	imageTimeout   time.Duration
	workerCount    int
}

// New wires an Orchestrator from its components. videos may be nil, which
// turns video uploads into catalog-only ingests with a stored original.
func New(cfg *config.Config, cat *catalog.Catalog, index *dedup.Index,
	inspector *inspect.Inspector, images *imagegen.Generator,
	videos *transcode.Pipeline, router *delivery.Router) *Orchestrator {
	return &Orchestrator{
		cat:            cat,
		index:          index,
		inspector:      inspector,
		images:         images,
		videos:         videos,
		router:         router,
		scratchDir:     cfg.ScratchDir,
		maxUploadBytes: cfg.MaxUploadBytes,
		hashTimeout:    cfg.HashTimeout,
		inspectTimeout: cfg.InspectTimeout,
		imageTimeout:   cfg.ImageTimeout,
		workerCount:    cfg.WorkerCount,
	}
}

// Ingest processes one upload. A duplicate of an already-cataloged asset
// returns that asset with no error; use IngestBatch outcomes to observe
// the deduplicated flag.
func (o *Orchestrator) Ingest(ctx context.Context, r io.Reader, declaredMime string, meta Meta) (*catalog.Asset, error) {
	asset, _, err := o.ingest(ctx, r, declaredMime, meta, nil)
	return asset, err
}

// Delete removes an asset end to end: delivered objects and cached
// resolutions first, then the catalog row, which cascades variants, mappings,
// and tag links. Resolving the asset afterwards yields not-found rather than
// a stale URL.
func (o *Orchestrator) Delete(ctx context.Context, assetID string) error {
	if err := o.router.Remove(ctx, assetID); err != nil {
		return stageError("remove", err)
	}
	if err := o.cat.DeleteAsset(ctx, assetID); err != nil {
		return stageError("catalog", err)
	}
	logging.Info("deleted asset %s", assetID)
	return nil
}

func (o *Orchestrator) ingest(ctx context.Context, r io.Reader, declaredMime string, meta Meta, report func(Progress)) (*catalog.Asset, bool, error) {
	start := time.Now()
	kindLabel := "unknown"
	defer func() {
		metrics.IngestDuration.WithLabelValues(kindLabel).Observe(time.Since(start).Seconds())
	}()

	fail := func(stage string, err error) (*catalog.Asset, bool, error) {
		metrics.IngestTotal.WithLabelValues(kindLabel, "failed").Inc()
		return nil, false, stageError(stage, err)
	}

	// Stage 1: bounded read + hash in one pass.
	hashCtx, cancel := context.WithTimeout(ctx, o.hashTimeout)
	data, contentHash, err := o.readAndHash(hashCtx, r, report)
	cancel()
	if err != nil {
		return fail("hash", err)
	}

	// Stage 2: dedup.
	existing, reservation, err := o.index.LookupOrReserve(ctx, contentHash)
	if err != nil {
		return fail("dedup", err)
	}
	if existing != nil {
		kindLabel = string(existing.Kind)
		metrics.IngestTotal.WithLabelValues(kindLabel, "deduplicated").Inc()
		logging.Debug("dedup hit for %s (%s)", contentHash, existing.ID)
		return existing, true, nil
	}
	// Any exit before finalize must release the reservation so retries and
	// concurrent uploaders of the same content are not stuck for the TTL.
	finalized := false
	defer func() {
		if !finalized {
			reservation.Release()
		}
	}()

	// Stage 3: inspect.
	inspectCtx, cancel := context.WithTimeout(ctx, o.inspectTimeout)
	props, err := o.inspector.Inspect(inspectCtx, data, declaredMime)
	cancel()
	if err != nil {
		return fail("inspect", err)
	}
	kindLabel = string(props.Kind)

	asset := &catalog.Asset{
		ID:               catalog.AssetID(contentHash),
		ContentHash:      contentHash,
		Kind:             props.Kind,
		OriginalFilename: meta.Filename,
		MimeType:         declaredMime,
		ByteSize:         int64(len(data)),
		Props:            props.Properties,
		UploadedBy:       meta.UploadedBy,
	}

	// Stage 4: generate derivatives.
	var outputs []variantData
	switch props.Kind {
	case catalog.KindImage:
		imageCtx, cancel := context.WithTimeout(ctx, o.imageTimeout)
		outputs, err = o.generateImage(imageCtx, asset, data, props, report)
		cancel()
	case catalog.KindVideo:
		outputs, err = o.generateVideo(ctx, asset, data, report)
	default:
		// audio and documents keep only the stored original
	}
	if err != nil {
		return fail("generate", err)
	}
	outputs = append(outputs, originalVariant(asset, props, data))

	// Stage 5: catalog the asset, then its variants (FK order).
	stored, created, err := o.cat.PutAsset(ctx, asset)
	if err != nil {
		return fail("catalog", err)
	}
	if len(meta.Tags) > 0 {
		if err := o.cat.Tag(ctx, stored.ID, meta.Tags...); err != nil {
			return fail("catalog", err)
		}
	}

	// Stage 6: upload and record each variant.
	total := len(outputs)
	for i, out := range outputs {
		if err := ctx.Err(); err != nil {
			return fail("upload", err)
		}
		if err := o.cat.PutVariant(ctx, out.variant); err != nil {
			return fail("catalog", err)
		}
		if _, err := o.router.Upload(ctx, out.variant, out.data); err != nil {
			return fail("upload", Transient(err))
		}
		if report != nil {
			report(Progress{Stage: StageUpload, VariantDone: i + 1, VariantTotal: total})
		}
	}

	reservation.Finalize()
	finalized = true

	outcome := "created"
	if !created {
		outcome = "deduplicated"
	}
	metrics.IngestTotal.WithLabelValues(kindLabel, outcome).Inc()
	logging.Info("ingested %s as %s (%s, %d variants)", meta.Filename, stored.ID, kindLabel, total)
	return stored, !created, nil
}

// readAndHash pulls the upload into memory while hashing it, enforcing the
// size ceiling and the stage deadline. One byte past the limit aborts without
// reading the rest; a source that stalls past the deadline fails the read
// instead of hanging the worker.
func (o *Orchestrator) readAndHash(ctx context.Context, r io.Reader, report func(Progress)) ([]byte, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}

	var buf bytes.Buffer
	limited := io.LimitReader(newContextReader(ctx, r), o.maxUploadBytes+1)

	var counted int64
	progress := func(n int64) {
		metrics.IngestBytesHashed.Add(float64(n - counted))
		counted = n
		if report != nil {
			report(Progress{Stage: StageHash, BytesHashed: n})
		}
	}
	hash, n, err := dedup.Sum(io.TeeReader(limited, &buf), progress)
	if err != nil {
		return nil, "", err
	}
	if n > o.maxUploadBytes {
		return nil, "", ErrOversizeInput
	}
	if n == 0 {
		return nil, "", fmt.Errorf("empty input")
	}
	return buf.Bytes(), hash, nil
}

// variantData pairs a catalog row with the bytes to deliver.
type variantData struct {
	variant *catalog.Variant
	data    []byte
}

func storageKey(contentHash, version, name, format string) string {
	return fmt.Sprintf("assets/%s/%s/%s/%s.%s", contentHash[:2], contentHash, version, name, format)
}

// originalVariant stores the untouched upload so every asset is deliverable
// even before (or without) derivative generation.
func originalVariant(asset *catalog.Asset, props *inspect.Properties, data []byte) variantData {
	return variantData{
		variant: &catalog.Variant{
			AssetID:    asset.ID,
			PresetName: "original",
			Format:     props.Format,
			Width:      props.Width,
			Height:     props.Height,
			ByteSize:   int64(len(data)),
			StorageKey: storageKey(asset.ContentHash, "src", "original", props.Format),
			Checksum:   dedup.SumBytes(data),
		},
		data: data,
	}
}

func (o *Orchestrator) generateImage(ctx context.Context, asset *catalog.Asset, data []byte, props *inspect.Properties, report func(Progress)) ([]variantData, error) {
	rendered, err := o.images.Generate(ctx, data)
	if err != nil {
		return nil, err
	}

	if ph, dom, err := imagegen.Swatch(ctx, data); err == nil {
		asset.Placeholder = ph
		asset.DominantColor = dom
	} else {
		logging.Debug("swatch generation failed for %s: %v", asset.ContentHash, err)
	}

	outputs := make([]variantData, 0, len(rendered))
	for i, r := range rendered {
		outputs = append(outputs, variantData{
			variant: &catalog.Variant{
				AssetID:    asset.ID,
				PresetName: r.PresetName,
				Format:     r.Format,
				Width:      r.Width,
				Height:     r.Height,
				ByteSize:   int64(len(r.Data)),
				StorageKey: storageKey(asset.ContentHash, imagegen.Version, r.PresetName, r.Format),
				Checksum:   r.Checksum,
			},
			data: r.Data,
		})
		if report != nil {
			report(Progress{Stage: StageGenerate, VariantDone: i + 1, VariantTotal: len(rendered)})
		}
	}
	return outputs, nil
}

func (o *Orchestrator) generateVideo(ctx context.Context, asset *catalog.Asset, data []byte, report func(Progress)) ([]variantData, error) {
	if o.videos == nil {
		logging.Warn("video %s ingested without transcoding (ffmpeg unavailable)", asset.ContentHash)
		return nil, nil
	}

	// ffmpeg needs a seekable file
	src, err := os.CreateTemp(o.scratchDir, "ingest-*.src")
	if err != nil {
		return nil, Transient(fmt.Errorf("scratch file: %w", err))
	}
	srcPath := src.Name()
	defer os.Remove(srcPath)
	if _, err := src.Write(data); err != nil {
		src.Close()
		return nil, Transient(fmt.Errorf("write scratch file: %w", err))
	}
	src.Close()

	result, err := o.videos.Transcode(ctx, srcPath, transcode.Options{Sprite: true, HLS: true})
	if err != nil {
		return nil, Transient(err)
	}
	defer os.RemoveAll(result.WorkDir)
	for rung, reason := range result.Failures {
		logging.Warn("rung %s skipped for %s: %s", rung, asset.ContentHash, reason)
	}

	var outputs []variantData
	total := len(result.Outputs)
	for i, out := range result.Outputs {
		b, err := os.ReadFile(out.Path)
		if err != nil {
			return nil, Transient(fmt.Errorf("read rung output: %w", err))
		}
		bitrate := parseBitrateKbit(out.Rung.VideoBitrate)
		outputs = append(outputs, variantData{
			variant: &catalog.Variant{
				AssetID:    asset.ID,
				PresetName: out.Rung.Name,
				Format:     out.Rung.Container,
				Width:      out.Width,
				Height:     out.Height,
				Bitrate:    bitrate,
				ByteSize:   out.Size,
				StorageKey: storageKey(asset.ContentHash, transcode.Version, out.Rung.Name, out.Rung.Container),
				Checksum:   dedup.SumBytes(b),
			},
			data: b,
		})
		if report != nil {
			report(Progress{Stage: StageGenerate, VariantDone: i + 1, VariantTotal: total})
		}
	}

	if result.PosterPath != "" {
		if b, err := os.ReadFile(result.PosterPath); err == nil {
			outputs = append(outputs, videoExtra(asset, "poster", "jpeg", b))
			if ph, dom, err := imagegen.Swatch(ctx, b); err == nil {
				asset.Placeholder = ph
				asset.DominantColor = dom
			}
		}
	}
	if result.SpritePath != "" && result.SpriteIdx != nil {
		if b, err := os.ReadFile(result.SpritePath); err == nil {
			outputs = append(outputs, videoExtra(asset, "sprite", "jpeg", b))
		}
		if idx, err := json.Marshal(result.SpriteIdx); err == nil {
			outputs = append(outputs, videoExtra(asset, "sprite-index", "json", idx))
		}
	}
	if result.Manifest != "" {
		outputs = append(outputs, videoExtra(asset, "manifest", "m3u8", []byte(result.Manifest)))
	}
	return outputs, nil
}

func videoExtra(asset *catalog.Asset, name, format string, data []byte) variantData {
	return variantData{
		variant: &catalog.Variant{
			AssetID:    asset.ID,
			PresetName: name,
			Format:     format,
			ByteSize:   int64(len(data)),
			StorageKey: storageKey(asset.ContentHash, transcode.Version, name, format),
			Checksum:   dedup.SumBytes(data),
		},
		data: data,
	}
}

// parseBitrateKbit converts "2800k" to 2800 for the catalog's kbit field.
func parseBitrateKbit(rate string) int {
	var n int
	if _, err := fmt.Sscanf(rate, "%dk", &n); err == nil {
		return n
	}
	if _, err := fmt.Sscanf(rate, "%dM", &n); err == nil {
		return n * 1000
	}
	return 0
}
