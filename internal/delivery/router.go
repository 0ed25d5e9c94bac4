package delivery

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"mime"
	"time"

	"media-pipeline/internal/catalog"
	"media-pipeline/internal/metrics"

	lru "github.com/hashicorp/golang-lru/v2"
)

// ErrNotFound is returned by Resolve when an asset has no delivered
// variants at all. A missing preset alone is not an error; Resolve degrades
// to the best available variant instead.
var ErrNotFound = fmt.Errorf("delivery: no variant available")

const (
	defaultCacheSize = 4096
	// content-addressed keys never change, so variants cache hard
	immutableMaxAge = 31536000
	// posters and manifests are rewritten in place on regeneration
	mutableMaxAge = 3600
)

// Source is one entry of a responsive image descriptor.
type Source struct {
	Width  int    `json:"width"`
	URL    string `json:"url"`
	Format string `json:"format"`
}

// Router pairs a storage backend with the catalog: it uploads rendered
// variants, records their delivery mappings, and resolves asset+preset
// requests to URLs with graceful degradation.
type Router struct {
	cat     *catalog.Catalog
	backend Backend
	retry   RetryConfig
	cache   *lru.Cache[string, *catalog.Mapping]
}

// NewRouter builds a Router with the default resolve cache and retry
// policy.
func NewRouter(cat *catalog.Catalog, backend Backend) (*Router, error) {
	cache, err := lru.New[string, *catalog.Mapping](defaultCacheSize)
	if err != nil {
		return nil, err
	}
	return &Router{cat: cat, backend: backend, retry: DefaultRetryConfig(), cache: cache}, nil
}

// Backend exposes the underlying storage backend.
func (r *Router) Backend() Backend { return r.backend }

func cacheKey(assetID, preset, format string) string {
	return assetID + "/" + preset + "/" + format
}

// Upload verifies the variant's checksum, writes the bytes to the backend
// with retry, and records the delivery mapping. The mapping's ETag is the
// content checksum, which makes conditional requests exact.
func (r *Router) Upload(ctx context.Context, v *catalog.Variant, data []byte) (*catalog.Mapping, error) {
	sum := sha256.Sum256(data)
	if got := hex.EncodeToString(sum[:]); v.Checksum != "" && got != v.Checksum {
		return nil, fmt.Errorf("checksum mismatch for %s/%s: %s != %s",
			v.AssetID, v.PresetName, got, v.Checksum)
	}

	maxAge := immutableMaxAge
	if v.PresetName == "poster" || v.Format == "m3u8" || v.Format == "json" {
		maxAge = mutableMaxAge
	}
	opts := PutOptions{
		ContentType:  contentTypeFor(v.Format),
		CacheControl: fmt.Sprintf("public, max-age=%d", maxAge),
	}
	if err := putWithRetry(ctx, r.backend, v.StorageKey, data, opts, r.retry); err != nil {
		return nil, fmt.Errorf("upload %s: %w", v.StorageKey, err)
	}
	metrics.UploadBytes.WithLabelValues(r.backend.Name()).Add(float64(len(data)))

	m := &catalog.Mapping{
		AssetID:    v.AssetID,
		PresetName: v.PresetName,
		Format:     v.Format,
		URL:        r.backend.URL(v.StorageKey),
		ETag:       v.Checksum,
		MaxAge:     maxAge,
		UpdatedAt:  time.Now(),
	}
	if err := r.cat.PutMapping(ctx, m); err != nil {
		return nil, fmt.Errorf("record mapping: %w", err)
	}
	r.cache.Remove(cacheKey(v.AssetID, v.PresetName, v.Format))
	return m, nil
}

// Resolve returns the delivery mapping for an asset and preset. When the
// exact preset was never generated it falls back to the best available
// variant, preferring the requested format. ErrNotFound means the asset has
// nothing delivered at all. format may be empty to accept any.
func (r *Router) Resolve(ctx context.Context, assetID, presetName, format string) (*catalog.Mapping, error) {
	key := cacheKey(assetID, presetName, format)
	if m, ok := r.cache.Get(key); ok {
		metrics.ResolveCacheHits.Inc()
		return m, nil
	}
	metrics.ResolveCacheMisses.Inc()

	m, err := r.resolve(ctx, assetID, presetName, format)
	if err != nil {
		return nil, err
	}
	r.cache.Add(key, m)
	return m, nil
}

func (r *Router) resolve(ctx context.Context, assetID, presetName, format string) (*catalog.Mapping, error) {
	exact, err := r.cat.MappingsFor(ctx, assetID, presetName)
	if err != nil {
		return nil, err
	}
	if m := pickFormat(exact, format); m != nil {
		return m, nil
	}

	// Requested preset missing. Degrade to the widest variant that has a
	// mapping, never to nothing, so a late or failed render still serves.
	variants, err := r.cat.VariantsFor(ctx, assetID)
	if err != nil {
		return nil, err
	}
	all, err := r.cat.MappingsFor(ctx, assetID, "")
	if err != nil {
		return nil, err
	}
	if len(all) == 0 {
		return nil, ErrNotFound
	}

	byKey := make(map[string]*catalog.Mapping, len(all))
	for _, m := range all {
		byKey[m.PresetName+"/"+m.Format] = m
	}

	// variants come back ordered by width ascending; walk from the widest
	var fallback *catalog.Mapping
	for i := len(variants) - 1; i >= 0; i-- {
		v := variants[i]
		m, ok := byKey[v.PresetName+"/"+v.Format]
		if !ok {
			continue
		}
		if format == "" || v.Format == format {
			return m, nil
		}
		if fallback == nil {
			fallback = m
		}
	}
	if fallback != nil {
		return fallback, nil
	}
	// mappings exist but no variant rows matched them; serve any
	return all[0], nil
}

func pickFormat(mappings []*catalog.Mapping, format string) *catalog.Mapping {
	if len(mappings) == 0 {
		return nil
	}
	if format == "" {
		// prefer the modern format when the caller has no preference
		for _, m := range mappings {
			if m.Format == "webp" || m.Format == "avif" {
				return m
			}
		}
		return mappings[0]
	}
	for _, m := range mappings {
		if m.Format == format {
			return m
		}
	}
	return nil
}

// ResponsiveDescriptor lists an asset's image variants as width-ordered
// sources for srcset construction. format may be empty to include all
// formats.
func (r *Router) ResponsiveDescriptor(ctx context.Context, assetID, format string) ([]Source, error) {
	variants, err := r.cat.VariantsFor(ctx, assetID)
	if err != nil {
		return nil, err
	}
	mappings, err := r.cat.MappingsFor(ctx, assetID, "")
	if err != nil {
		return nil, err
	}
	byKey := make(map[string]*catalog.Mapping, len(mappings))
	for _, m := range mappings {
		byKey[m.PresetName+"/"+m.Format] = m
	}

	var sources []Source
	for _, v := range variants {
		if v.Width == 0 {
			continue
		}
		if format != "" && v.Format != format {
			continue
		}
		m, ok := byKey[v.PresetName+"/"+v.Format]
		if !ok {
			continue
		}
		sources = append(sources, Source{Width: v.Width, URL: m.URL, Format: v.Format})
	}
	if len(sources) == 0 {
		return nil, ErrNotFound
	}
	return sources, nil
}

// Invalidate removes delivery mappings and cached resolutions for an asset.
// With preset names it is scoped to those presets; without, everything for
// the asset goes.
func (r *Router) Invalidate(ctx context.Context, assetID string, presetNames ...string) error {
	if len(presetNames) == 0 {
		if err := r.cat.DeleteMappings(ctx, assetID, ""); err != nil {
			return err
		}
	} else {
		for _, p := range presetNames {
			if err := r.cat.DeleteMappings(ctx, assetID, p); err != nil {
				return err
			}
		}
	}
	// the cache is keyed with the request format too, so scan and purge
	for _, key := range r.cache.Keys() {
		if len(key) > len(assetID) && key[:len(assetID)] == assetID {
			r.cache.Remove(key)
		}
	}
	return nil
}

// Remove deletes an asset's delivered objects from the backend and its
// mappings from the catalog. Catalog rows for the asset itself are the
// caller's business.
func (r *Router) Remove(ctx context.Context, assetID string) error {
	variants, err := r.cat.VariantsFor(ctx, assetID)
	if err != nil {
		return err
	}
	keys := make([]string, 0, len(variants))
	for _, v := range variants {
		keys = append(keys, v.StorageKey)
	}
	if err := r.backend.Delete(ctx, keys...); err != nil {
		return err
	}
	return r.Invalidate(ctx, assetID)
}

func contentTypeFor(format string) string {
	switch format {
	case "jpeg":
		return "image/jpeg"
	case "m3u8":
		return "application/vnd.apple.mpegurl"
	case "json":
		return "application/json"
	case "mp4", "webm":
		return "video/" + format
	}
	if ct := mime.TypeByExtension("." + format); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
